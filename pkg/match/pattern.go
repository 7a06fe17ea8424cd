package match

import (
	"slices"

	"github.com/coarsen-md/coarsen/pkg/molecule"
)

// patternAtom is one atom of the compiled search pattern. residue is the
// declared residue index for block atoms and -1 when residue identity is not
// constrained.
type patternAtom struct {
	key     string
	match   molecule.Attributes
	residue int
}

// pattern is the compiled, record-independent form a search runs on.
type pattern struct {
	rule        string
	specificity int
	declIndex   int
	atoms       []patternAtom
	edges       [][2]int
	edgeAttrs   []molecule.Attributes
}

const noResidue = -1

// blockPattern compiles a block's source side. The atom reference name
// doubles as an atomname predicate and the from-block list contributes a
// resname predicate per residue index, unless the declared predicates already
// pin those keys down.
func blockPattern(block *molecule.Block) *pattern {
	pat := &pattern{
		rule:        block.Name,
		specificity: block.Specificity(),
		declIndex:   block.DeclIndex,
	}

	index := make(map[molecule.FromRef]int, len(block.FromNodes))

	for _, atom := range block.FromNodes {
		match := atom.Match.Clone()
		if match == nil {
			match = molecule.Attributes{}
		}

		if _, ok := match[molecule.KeyAtomName]; !ok {
			match[molecule.KeyAtomName] = molecule.String(atom.Ref.Name)
		}

		if _, ok := match[molecule.KeyResName]; !ok && atom.Ref.Residue < len(block.FromBlocks) {
			match[molecule.KeyResName] = molecule.String(block.FromBlocks[atom.Ref.Residue])
		}

		index[atom.Ref] = len(pat.atoms)
		pat.atoms = append(pat.atoms, patternAtom{
			key:     atom.Ref.String(),
			match:   match,
			residue: atom.Ref.Residue,
		})
	}

	for _, edge := range block.FromEdges {
		pat.edges = append(pat.edges, [2]int{index[edge.A], index[edge.B]})
		pat.edgeAttrs = append(pat.edgeAttrs, edge.Attrs)
	}

	return pat
}

// modificationPattern compiles a modification. Anchor atoms named only in the
// edge list are matched by atomname alone. With skipAdditive set, additive
// PTM atoms and the edges touching them are left out.
func modificationPattern(mod *molecule.Modification, skipAdditive bool) *pattern {
	pat := &pattern{
		rule:        mod.Name,
		specificity: mod.Specificity(),
		declIndex:   mod.DeclIndex,
	}

	index := map[string]int{}

	for _, atom := range mod.Atoms {
		if skipAdditive && atom.PTM && !atom.Subtractive() {
			continue
		}

		index[atom.Name] = len(pat.atoms)
		pat.atoms = append(pat.atoms, patternAtom{
			key:     atom.Name,
			match:   atom.Match,
			residue: noResidue,
		})
	}

	for _, name := range mod.AnchorNames() {
		index[name] = len(pat.atoms)
		pat.atoms = append(pat.atoms, patternAtom{
			key:     name,
			match:   molecule.Attributes{molecule.KeyAtomName: molecule.String(name)},
			residue: noResidue,
		})
	}

	for _, edge := range mod.Edges {
		a, okA := index[edge.A]
		b, okB := index[edge.B]

		if !okA || !okB {
			continue
		}

		pat.edges = append(pat.edges, [2]int{a, b})
		pat.edgeAttrs = append(pat.edgeAttrs, edge.Attrs)
	}

	return pat
}

// degree returns the number of pattern edges incident to atom i.
func (p *pattern) degree(i int) int {
	d := 0

	for _, edge := range p.edges {
		if edge[0] == i || edge[1] == i {
			d++
		}
	}

	return d
}

// searchOrder fixes the binding order: the most-constrained, highest-degree
// atom first, then always an atom adjacent to the already-ordered prefix when
// one exists, so every later binding is pruned by at least one edge check.
func (p *pattern) searchOrder(candidates [][]molecule.NodeID) []int {
	n := len(p.atoms)
	ordered := make([]int, 0, n)
	placed := make([]bool, n)
	adjacent := make([]bool, n)

	better := func(a, b int) bool {
		if len(candidates[a]) != len(candidates[b]) {
			return len(candidates[a]) < len(candidates[b])
		}

		if da, db := p.degree(a), p.degree(b); da != db {
			return da > db
		}

		return a < b
	}

	for len(ordered) < n {
		best := -1

		for i := 0; i < n; i++ {
			if placed[i] {
				continue
			}

			if best < 0 {
				best = i

				continue
			}

			// Atoms connected to the prefix beat disconnected ones outright.
			if adjacent[i] != adjacent[best] {
				if adjacent[i] {
					best = i
				}

				continue
			}

			if better(i, best) {
				best = i
			}
		}

		ordered = append(ordered, best)
		placed[best] = true

		for _, edge := range p.edges {
			if edge[0] == best && !placed[edge[1]] {
				adjacent[edge[1]] = true
			}

			if edge[1] == best && !placed[edge[0]] {
				adjacent[edge[0]] = true
			}
		}
	}

	return ordered
}

// search enumerates every binding of the pattern in the target, restricted to
// the given node set when restrict is non-nil. Results follow the target's
// node insertion order, so repeated runs are identical.
func (p *pattern) search(target *molecule.Molecule, restrict map[molecule.NodeID]bool) []Correspondence {
	if len(p.atoms) == 0 {
		return nil
	}

	candidates := p.collectCandidates(target, restrict)
	for _, list := range candidates {
		if len(list) == 0 {
			return nil
		}
	}

	s := &searcher{
		pattern:    p,
		target:     target,
		candidates: candidates,
		order:      p.searchOrder(candidates),
		binding:    make([]molecule.NodeID, len(p.atoms)),
		bound:      make([]bool, len(p.atoms)),
		used:       map[molecule.NodeID]bool{},
		residues:   map[int]molecule.ResidueKey{},
	}

	s.extend(0)

	return s.results
}

// collectCandidates filters target nodes per pattern atom by attribute
// predicates alone; structural pruning happens during the search.
func (p *pattern) collectCandidates(target *molecule.Molecule, restrict map[molecule.NodeID]bool) [][]molecule.NodeID {
	out := make([][]molecule.NodeID, len(p.atoms))

	target.Nodes(func(n *molecule.Node) bool {
		if restrict != nil && !restrict[n.ID] {
			return true
		}

		for i := range p.atoms {
			if n.Attrs.Satisfies(p.atoms[i].match) {
				out[i] = append(out[i], n.ID)
			}
		}

		return true
	})

	return out
}

type searcher struct {
	pattern    *pattern
	target     *molecule.Molecule
	candidates [][]molecule.NodeID
	order      []int
	binding    []molecule.NodeID
	bound      []bool
	used       map[molecule.NodeID]bool
	residues   map[int]molecule.ResidueKey
	results    []Correspondence
}

// extend binds the depth-th atom of the search order to each viable candidate
// and recurses; a full binding is emitted as a correspondence.
func (s *searcher) extend(depth int) {
	if depth == len(s.order) {
		s.emit()

		return
	}

	atom := s.order[depth]

	for _, node := range s.candidates[atom] {
		if s.used[node] || !s.consistent(atom, node) {
			continue
		}

		undo, ok := s.bindResidue(atom, node)
		if !ok {
			continue
		}

		s.binding[atom] = node
		s.bound[atom] = true
		s.used[node] = true

		s.extend(depth + 1)

		s.bound[atom] = false
		delete(s.used, node)
		undo()
	}
}

// consistent checks every pattern edge between atom and an already-bound atom
// against the target's bonds.
func (s *searcher) consistent(atom int, node molecule.NodeID) bool {
	for i, edge := range s.pattern.edges {
		other := -1

		switch {
		case edge[0] == atom:
			other = edge[1]
		case edge[1] == atom:
			other = edge[0]
		default:
			continue
		}

		if !s.bound[other] {
			continue
		}

		attrs, ok := s.target.EdgeAttrs(node, s.binding[other])
		if !ok {
			return false
		}

		if len(s.pattern.edgeAttrs[i]) > 0 && !attrs.Satisfies(s.pattern.edgeAttrs[i]) {
			return false
		}
	}

	return true
}

// bindResidue enforces residue-index consistency for block patterns: atoms
// sharing a declared index must share a residue, atoms with different indices
// must not. Returns an undo closure for backtracking.
func (s *searcher) bindResidue(atom int, node molecule.NodeID) (func(), bool) {
	idx := s.pattern.atoms[atom].residue
	if idx == noResidue {
		return func() {}, true
	}

	n, _ := s.target.Node(node)
	key := molecule.ResidueOf(n)

	if assigned, ok := s.residues[idx]; ok {
		if assigned != key {
			return nil, false
		}

		return func() {}, true
	}

	for other, assigned := range s.residues {
		if other != idx && assigned == key {
			return nil, false
		}
	}

	s.residues[idx] = key

	return func() { delete(s.residues, idx) }, true
}

func (s *searcher) emit() {
	binding := make(map[string]molecule.NodeID, len(s.binding))
	for i, atom := range s.pattern.atoms {
		binding[atom.key] = s.binding[i]
	}

	s.results = append(s.results, Correspondence{
		Rule:        s.pattern.rule,
		Binding:     binding,
		Specificity: s.pattern.specificity,
		DeclIndex:   s.pattern.declIndex,
	})
}

// SortStable orders correspondences by their bound node sets, then by rule
// declaration, giving shard-independent output ordering.
func SortStable(corrs []Correspondence) {
	slices.SortStableFunc(corrs, func(a, b Correspondence) int {
		an, bn := a.Nodes(), b.Nodes()

		for i := 0; i < len(an) && i < len(bn); i++ {
			if an[i] != bn[i] {
				return int(an[i] - bn[i])
			}
		}

		if len(an) != len(bn) {
			return len(an) - len(bn)
		}

		return a.DeclIndex - b.DeclIndex
	})
}
