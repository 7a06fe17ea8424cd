package molecule

import (
	"errors"
	"fmt"
	"slices"
)

// Graph errors.
var (
	ErrNodeNotFound = errors.New("node not found")
	ErrSelfLoop     = errors.New("self loops are not allowed")
)

// NodeID identifies a node within one molecule. Identifiers are assigned
// sequentially at insertion and are never reused, so removing a node leaves
// a permanent gap.
type NodeID int64

// Vec3 is a position in nanometers.
type Vec3 [3]float64

// Add returns the component-wise sum of v and other.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{v[0] + other[0], v[1] + other[1], v[2] + other[2]}
}

// Scale returns v multiplied by f.
func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{v[0] * f, v[1] * f, v[2] * f}
}

// Sub returns v minus other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{v[0] - other[0], v[1] - other[1], v[2] - other[2]}
}

// Norm2 returns the squared Euclidean length of v.
func (v Vec3) Norm2() float64 {
	return v[0]*v[0] + v[1]*v[1] + v[2]*v[2]
}

// Node is one atom or bead with its attribute map and optional position.
// Nodes are owned by their molecule; mutate attributes through
// Molecule.MergeAttributes so deletion semantics stay uniform.
type Node struct {
	ID          NodeID
	Attrs       Attributes
	Position    Vec3
	HasPosition bool
}

// StringAttr returns the string payload of the named attribute, or "" when
// the attribute is missing or not a string.
func (n *Node) StringAttr(key string) string {
	return n.Attrs[key].Str()
}

// IntAttr returns the named attribute as an integer, widening floats.
func (n *Node) IntAttr(key string) int64 {
	return n.Attrs[key].Intv()
}

// FloatAttr returns the named attribute as a float, widening integers.
func (n *Node) FloatAttr(key string) float64 {
	return n.Attrs[key].Num()
}

// BoolAttr returns the named attribute as a boolean.
func (n *Node) BoolAttr(key string) bool {
	return n.Attrs[key].Boolv()
}

// AtomName returns the atomname attribute.
func (n *Node) AtomName() string { return n.StringAttr(KeyAtomName) }

// ResName returns the resname attribute.
func (n *Node) ResName() string { return n.StringAttr(KeyResName) }

// ResID returns the resid attribute.
func (n *Node) ResID() int64 { return n.IntAttr(KeyResID) }

// Chain returns the chain attribute.
func (n *Node) Chain() string { return n.StringAttr(KeyChain) }

// Element returns the element attribute.
func (n *Node) Element() string { return n.StringAttr(KeyElement) }

// IsPTM reports whether the node carries the post-translational flag.
func (n *Node) IsPTM() bool { return n.BoolAttr(KeyPTM) }

// Edge is one undirected bond with its attributes, reported with A < B.
type Edge struct {
	A, B  NodeID
	Attrs Attributes
}

// Molecule is an undirected attributed graph of atoms or beads. Node
// iteration follows insertion order and edge iteration is sorted by
// endpoint pair, so repeated runs over the same input visit the graph
// identically.
type Molecule struct {
	// Name is the molecule type name, when known.
	Name string
	// Meta carries molecule-level annotations such as the exclusion count.
	Meta Attributes

	nextID NodeID
	nodes  map[NodeID]*Node
	order  []NodeID
	adj    map[NodeID]map[NodeID]Attributes
}

// NewMolecule returns an empty molecule whose node identifiers start at zero.
func NewMolecule() *Molecule {
	return NewMoleculeWithIDBase(0)
}

// NewMoleculeWithIDBase returns an empty molecule whose node identifiers
// start at base. Batch processing assigns each fragment a disjoint identifier
// range so results are stable regardless of processing order.
func NewMoleculeWithIDBase(base NodeID) *Molecule {
	return &Molecule{
		Meta:   Attributes{},
		nextID: base,
		nodes:  map[NodeID]*Node{},
		adj:    map[NodeID]map[NodeID]Attributes{},
	}
}

// AddNode appends a node with the given attributes and returns its fresh
// identifier. The molecule takes ownership of attrs; nil is treated as empty.
func (m *Molecule) AddNode(attrs Attributes) NodeID {
	if attrs == nil {
		attrs = Attributes{}
	}

	id := m.nextID
	m.nextID++

	m.nodes[id] = &Node{ID: id, Attrs: attrs}
	m.order = append(m.order, id)
	m.adj[id] = map[NodeID]Attributes{}

	return id
}

// AddNodeAt appends a node with a position.
func (m *Molecule) AddNodeAt(attrs Attributes, pos Vec3) NodeID {
	id := m.AddNode(attrs)
	node := m.nodes[id]
	node.Position = pos
	node.HasPosition = true

	return id
}

// Node returns the node with the given identifier.
func (m *Molecule) Node(id NodeID) (*Node, bool) {
	n, ok := m.nodes[id]

	return n, ok
}

// HasNode reports whether id is present.
func (m *Molecule) HasNode(id NodeID) bool {
	_, ok := m.nodes[id]

	return ok
}

// NodeCount returns the number of nodes.
func (m *Molecule) NodeCount() int { return len(m.nodes) }

// NodeIDs returns the node identifiers in insertion order.
func (m *Molecule) NodeIDs() []NodeID {
	return slices.Clone(m.order)
}

// Nodes calls fn for every node in insertion order, stopping early when fn
// returns false.
func (m *Molecule) Nodes(fn func(*Node) bool) {
	for _, id := range m.order {
		if !fn(m.nodes[id]) {
			return
		}
	}
}

// AddEdge inserts an undirected edge between a and b. Adding an edge that
// already exists merges the attributes instead of failing, with absent-marker
// values deleting keys. Self loops are rejected.
func (m *Molecule) AddEdge(a, b NodeID, attrs Attributes) error {
	if a == b {
		return fmt.Errorf("%w: node %d", ErrSelfLoop, a)
	}

	if !m.HasNode(a) {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, a)
	}

	if !m.HasNode(b) {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, b)
	}

	if existing, ok := m.adj[a][b]; ok {
		existing.Merge(attrs)

		return nil
	}

	stored := Attributes{}
	stored.Merge(attrs)

	m.adj[a][b] = stored
	m.adj[b][a] = stored

	return nil
}

// HasEdge reports whether a and b are bonded.
func (m *Molecule) HasEdge(a, b NodeID) bool {
	_, ok := m.adj[a][b]

	return ok
}

// EdgeAttrs returns the attributes of the edge between a and b.
func (m *Molecule) EdgeAttrs(a, b NodeID) (Attributes, bool) {
	attrs, ok := m.adj[a][b]

	return attrs, ok
}

// RemoveEdge deletes the edge between a and b if present.
func (m *Molecule) RemoveEdge(a, b NodeID) {
	delete(m.adj[a], b)
	delete(m.adj[b], a)
}

// Neighbors returns the nodes bonded to id, sorted ascending.
func (m *Molecule) Neighbors(id NodeID) []NodeID {
	adj := m.adj[id]
	out := make([]NodeID, 0, len(adj))

	for nb := range adj {
		out = append(out, nb)
	}

	slices.Sort(out)

	return out
}

// Degree returns the number of edges incident to id.
func (m *Molecule) Degree(id NodeID) int {
	return len(m.adj[id])
}

// EdgeCount returns the number of undirected edges.
func (m *Molecule) EdgeCount() int {
	total := 0
	for _, adj := range m.adj {
		total += len(adj)
	}

	return total / 2
}

// Edges returns every undirected edge once, with A < B, sorted by endpoint
// pair.
func (m *Molecule) Edges() []Edge {
	out := make([]Edge, 0, m.EdgeCount())

	for a, adj := range m.adj {
		for b, attrs := range adj {
			if a < b {
				out = append(out, Edge{A: a, B: b, Attrs: attrs})
			}
		}
	}

	slices.SortFunc(out, func(x, y Edge) int {
		if x.A != y.A {
			return int(x.A - y.A)
		}

		return int(x.B - y.B)
	})

	return out
}

// MergeAttributes overlays attrs onto the node's attribute map. Values
// replace existing keys and absent markers delete them; the node itself is
// never removed by this operation.
func (m *Molecule) MergeAttributes(id NodeID, attrs Attributes) error {
	node, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}

	node.Attrs.Merge(attrs)

	return nil
}

// RemoveNode deletes a node together with its incident edges. The identifier
// is retired, not recycled.
func (m *Molecule) RemoveNode(id NodeID) error {
	if !m.HasNode(id) {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}

	for nb := range m.adj[id] {
		delete(m.adj[nb], id)
	}

	delete(m.adj, id)
	delete(m.nodes, id)

	if idx := slices.Index(m.order, id); idx >= 0 {
		m.order = slices.Delete(m.order, idx, idx+1)
	}

	return nil
}

// Subgraph returns a new molecule containing the requested nodes, the edges
// among them, and deep copies of all attributes. Node identifiers are
// preserved, and the identifier counter carries over so later insertions in
// the subgraph cannot collide with the parent's numbering.
func (m *Molecule) Subgraph(ids []NodeID) *Molecule {
	sub := NewMoleculeWithIDBase(m.nextID)
	sub.Name = m.Name
	sub.Meta = m.Meta.Clone()

	if sub.Meta == nil {
		sub.Meta = Attributes{}
	}

	keep := make(map[NodeID]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	for _, id := range m.order {
		if !keep[id] {
			continue
		}

		node := m.nodes[id]
		clone := &Node{
			ID:          id,
			Attrs:       node.Attrs.Clone(),
			Position:    node.Position,
			HasPosition: node.HasPosition,
		}

		if clone.Attrs == nil {
			clone.Attrs = Attributes{}
		}

		sub.nodes[id] = clone
		sub.order = append(sub.order, id)
		sub.adj[id] = map[NodeID]Attributes{}
	}

	for _, edge := range m.Edges() {
		if keep[edge.A] && keep[edge.B] {
			attrs := edge.Attrs.Clone()
			sub.adj[edge.A][edge.B] = attrs
			sub.adj[edge.B][edge.A] = attrs
		}
	}

	return sub
}

// Clone returns a deep copy of the molecule.
func (m *Molecule) Clone() *Molecule {
	clone := m.Subgraph(m.order)
	clone.nextID = m.nextID

	return clone
}

// Absorb copies every node and edge of other into m, assigning fresh
// identifiers, and returns the mapping from other's identifiers to the new
// ones. Positions and attributes are deep-copied.
func (m *Molecule) Absorb(other *Molecule) map[NodeID]NodeID {
	mapping := make(map[NodeID]NodeID, other.NodeCount())

	other.Nodes(func(n *Node) bool {
		id := m.AddNode(n.Attrs.Clone())
		if n.HasPosition {
			m.nodes[id].Position = n.Position
			m.nodes[id].HasPosition = true
		}

		mapping[n.ID] = id

		return true
	})

	for _, edge := range other.Edges() {
		_ = m.AddEdge(mapping[edge.A], mapping[edge.B], edge.Attrs.Clone())
	}

	return mapping
}

// ConnectedComponents returns the node sets of each connected component.
// Components are ordered by their earliest-inserted member and each
// component lists its nodes in insertion order.
func (m *Molecule) ConnectedComponents() [][]NodeID {
	seen := make(map[NodeID]bool, len(m.nodes))
	var components [][]NodeID

	for _, start := range m.order {
		if seen[start] {
			continue
		}

		component := m.collectComponent(start, seen)
		components = append(components, component)
	}

	return components
}

// collectComponent walks the component containing start and returns its
// members in insertion order.
func (m *Molecule) collectComponent(start NodeID, seen map[NodeID]bool) []NodeID {
	stack := []NodeID{start}
	seen[start] = true
	member := map[NodeID]bool{start: true}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, nb := range m.Neighbors(cur) {
			if !seen[nb] {
				seen[nb] = true
				member[nb] = true
				stack = append(stack, nb)
			}
		}
	}

	out := make([]NodeID, 0, len(member))

	for _, id := range m.order {
		if member[id] {
			out = append(out, id)
		}
	}

	return out
}
