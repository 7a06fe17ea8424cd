package molecule

import (
	"fmt"
	"strconv"
	"strings"
)

// FromRef names one source atom inside a mapping rule. Residue is the
// zero-based index into the rule's from-block list; single-residue rules use
// index zero throughout.
type FromRef struct {
	Residue int
	Name    string
}

// String renders the reference in rule-file form: bare for residue zero,
// index-qualified otherwise.
func (r FromRef) String() string {
	if r.Residue == 0 {
		return r.Name
	}

	return strconv.Itoa(r.Residue) + ":" + r.Name
}

// BlockAtom is one declared source atom of a mapping rule with its match
// predicates.
type BlockAtom struct {
	Ref   FromRef
	Match Attributes
}

// BlockEdge is one required bond between source atoms of a mapping rule.
type BlockEdge struct {
	A, B  FromRef
	Attrs Attributes
}

// Assignment maps one source atom onto one destination bead with a weight.
type Assignment struct {
	Source FromRef
	Bead   string
	Weight float64
}

// Block is one mapping rule: a pattern over source atoms plus the weighted
// assignment of those atoms onto destination beads.
type Block struct {
	Name       string
	FromFF     string
	ToFF       string
	FromBlocks []string
	ToBlocks   []string
	FromNodes  []BlockAtom
	FromEdges  []BlockEdge
	Mapping    []Assignment
	References map[string]FromRef
	// DeclIndex is the position of the rule within its library, used as the
	// final tie-breaker during resolution.
	DeclIndex int
}

// Atom returns the declared source atom with the given reference.
func (b *Block) Atom(ref FromRef) (*BlockAtom, bool) {
	for i := range b.FromNodes {
		if b.FromNodes[i].Ref == ref {
			return &b.FromNodes[i], true
		}
	}

	return nil, false
}

// Specificity counts the defined match predicates across all declared source
// atoms. Wildcards do not count; absent predicates do.
func (b *Block) Specificity() int {
	total := 0
	for i := range b.FromNodes {
		total += b.FromNodes[i].Match.Constrained()
	}

	return total
}

// Beads returns the destination bead names in order of first appearance in
// the mapping table.
func (b *Block) Beads() []string {
	seen := map[string]bool{}
	var beads []string

	for _, asn := range b.Mapping {
		if !seen[asn.Bead] {
			seen[asn.Bead] = true
			beads = append(beads, asn.Bead)
		}
	}

	return beads
}

// SourcesFor returns the assignments feeding the named bead, in declaration
// order.
func (b *Block) SourcesFor(bead string) []Assignment {
	var out []Assignment

	for _, asn := range b.Mapping {
		if asn.Bead == bead {
			out = append(out, asn)
		}
	}

	return out
}

// Reference returns the declared identity reference atom for bead, if any.
func (b *Block) Reference(bead string) (FromRef, bool) {
	ref, ok := b.References[bead]

	return ref, ok
}

// Validate checks internal consistency: every edge endpoint, assignment
// source, and reference must name a declared source atom, and residue
// indices must fall inside the from-block list.
func (b *Block) Validate() error {
	residues := len(b.FromBlocks)
	if residues == 0 {
		residues = 1
	}

	declared := make(map[FromRef]bool, len(b.FromNodes))
	for _, atom := range b.FromNodes {
		declared[atom.Ref] = true
	}

	check := func(ref FromRef, where string) error {
		if ref.Residue < 0 || ref.Residue >= residues {
			return fmt.Errorf("mapping %q: %s references residue index %d outside the from list", b.Name, where, ref.Residue)
		}

		if !declared[ref] {
			return fmt.Errorf("mapping %q: %s references undeclared atom %q", b.Name, where, ref)
		}

		return nil
	}

	for _, edge := range b.FromEdges {
		if err := check(edge.A, "edge"); err != nil {
			return err
		}

		if err := check(edge.B, "edge"); err != nil {
			return err
		}
	}

	for _, asn := range b.Mapping {
		if err := check(asn.Source, "assignment"); err != nil {
			return err
		}
	}

	for bead, ref := range b.References {
		if err := check(ref, "reference for bead "+bead); err != nil {
			return err
		}
	}

	return nil
}

// ModAtom is one atom of a modification pattern. Match predicates select the
// atom, Replace attributes are applied on identification, and PTM marks
// atoms that exist only in the modified form.
type ModAtom struct {
	Name    string
	Match   Attributes
	Replace Attributes
	PTM     bool
}

// Subtractive reports whether applying this atom removes it from the
// structure: the atom is modification-specific and its replacement clears an
// attribute outright.
func (a ModAtom) Subtractive() bool {
	if !a.PTM {
		return false
	}

	for _, val := range a.Replace {
		if val.IsAbsent() {
			return true
		}
	}

	return false
}

// ModEdge is one bond of a modification pattern, named by atom.
type ModEdge struct {
	A, B  string
	Attrs Attributes
}

// Modification describes a deviation from a reference residue: extra or
// changed atoms, their bonds, and the attribute rewrites to apply when the
// pattern is identified.
type Modification struct {
	Name      string
	Atoms     []ModAtom
	Edges     []ModEdge
	DeclIndex int
}

// Atom returns the pattern atom with the given name.
func (m *Modification) Atom(name string) (*ModAtom, bool) {
	for i := range m.Atoms {
		if m.Atoms[i].Name == name {
			return &m.Atoms[i], true
		}
	}

	return nil, false
}

// Specificity counts the defined match predicates across the pattern's
// atoms.
func (m *Modification) Specificity() int {
	total := 0
	for i := range m.Atoms {
		total += m.Atoms[i].Match.Constrained()
	}

	return total
}

// AnchorNames returns the pattern atoms that appear only as edge endpoints,
// in first-use order. Anchors tie a modification to its host residue and are
// matched by atom name alone.
func (m *Modification) AnchorNames() []string {
	declared := make(map[string]bool, len(m.Atoms))
	for _, atom := range m.Atoms {
		declared[atom.Name] = true
	}

	seen := map[string]bool{}
	var anchors []string

	for _, edge := range m.Edges {
		for _, name := range []string{edge.A, edge.B} {
			if !declared[name] && !seen[name] {
				seen[name] = true
				anchors = append(anchors, name)
			}
		}
	}

	return anchors
}

// Interaction is one bonded-interaction record of a residue template or
// link: the participating atom names, the raw parameter strings, and
// optional metadata.
type Interaction struct {
	Atoms      []string
	Parameters []string
	Meta       map[string]string
}

// ResidueAtom is one atom of a residue template.
type ResidueAtom struct {
	Name  string
	Attrs Attributes
}

// Residue is a reference residue template: its atoms, intra-residue bonds,
// and bonded interactions keyed by interaction type.
type Residue struct {
	Name         string
	Atoms        []ResidueAtom
	Edges        [][2]string
	Interactions map[string][]Interaction
	Nrexcl       int
	DeclIndex    int
}

// Atom returns the template atom with the given name.
func (r *Residue) Atom(name string) (*ResidueAtom, bool) {
	for i := range r.Atoms {
		if r.Atoms[i].Name == name {
			return &r.Atoms[i], true
		}
	}

	return nil, false
}

// HasEdge reports whether the template declares a bond between a and b in
// either direction.
func (r *Residue) HasEdge(a, b string) bool {
	for _, edge := range r.Edges {
		if (edge[0] == a && edge[1] == b) || (edge[0] == b && edge[1] == a) {
			return true
		}
	}

	return false
}

// AddEdge records a bond between a and b unless already present.
func (r *Residue) AddEdge(a, b string) {
	if !r.HasEdge(a, b) {
		r.Edges = append(r.Edges, [2]string{a, b})
	}
}

// LinkAtom is one atom of an inter-residue link pattern. Order places the
// atom relative to the anchor residue: 0 is the residue itself, +1 the next,
// -1 the previous.
type LinkAtom struct {
	Name  string
	Order int
	Attrs Attributes
}

// Link is an inter-residue pattern carrying the bonded interactions that
// span residue boundaries.
type Link struct {
	Resname      string
	Atoms        []LinkAtom
	Edges        [][2]string
	Interactions map[string][]Interaction
	DeclIndex    int
}

// Atom returns the link atom with the given name.
func (l *Link) Atom(name string) (*LinkAtom, bool) {
	for i := range l.Atoms {
		if l.Atoms[i].Name == name {
			return &l.Atoms[i], true
		}
	}

	return nil, false
}

// Connected reports whether the link's atoms form a single connected
// component under its declared edges. Disconnected links cannot anchor to a
// structure and are discarded at parse time.
func (l *Link) Connected() bool {
	if len(l.Atoms) <= 1 {
		return true
	}

	adjacent := map[string][]string{}
	for _, edge := range l.Edges {
		adjacent[edge[0]] = append(adjacent[edge[0]], edge[1])
		adjacent[edge[1]] = append(adjacent[edge[1]], edge[0])
	}

	seen := map[string]bool{l.Atoms[0].Name: true}
	stack := []string{l.Atoms[0].Name}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, nb := range adjacent[cur] {
			if !seen[nb] {
				seen[nb] = true
				stack = append(stack, nb)
			}
		}
	}

	return len(seen) == len(l.Atoms)
}

// ParseAtomRef parses a rule-file atom reference of the form "name" or
// "index:name". The bare form resolves to residue index zero.
func ParseAtomRef(token string) (FromRef, error) {
	idx := strings.IndexByte(token, ':')
	if idx < 0 {
		return FromRef{Name: token}, nil
	}

	residue, err := strconv.Atoi(token[:idx])
	if err != nil {
		return FromRef{}, fmt.Errorf("atom reference %q: residue index is not a number", token)
	}

	if residue < 0 {
		return FromRef{}, fmt.Errorf("atom reference %q: residue index is negative", token)
	}

	name := token[idx+1:]
	if name == "" {
		return FromRef{}, fmt.Errorf("atom reference %q: missing atom name", token)
	}

	return FromRef{Residue: residue, Name: name}, nil
}
