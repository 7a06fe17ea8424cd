package molecule

// ResidueKey identifies one residue instance within a structure. Two atoms
// belong to the same residue exactly when all three fields agree.
type ResidueKey struct {
	Chain   string
	ResID   int64
	ResName string
}

// ResidueGroup is one residue instance with its member nodes in insertion
// order.
type ResidueGroup struct {
	Key   ResidueKey
	Nodes []NodeID
}

// ResidueOf returns the residue identity of a node.
func ResidueOf(n *Node) ResidueKey {
	return ResidueKey{
		Chain:   n.Chain(),
		ResID:   n.ResID(),
		ResName: n.ResName(),
	}
}

// Residues groups the molecule's nodes by residue identity, ordered by first
// appearance.
func (m *Molecule) Residues() []ResidueGroup {
	index := map[ResidueKey]int{}
	var groups []ResidueGroup

	m.Nodes(func(n *Node) bool {
		key := ResidueOf(n)

		idx, ok := index[key]
		if !ok {
			idx = len(groups)
			index[key] = idx
			groups = append(groups, ResidueGroup{Key: key})
		}

		groups[idx].Nodes = append(groups[idx].Nodes, n.ID)

		return true
	})

	return groups
}

// Chains returns the distinct chain identifiers in order of first appearance.
func (m *Molecule) Chains() []string {
	seen := map[string]bool{}
	var chains []string

	m.Nodes(func(n *Node) bool {
		chain := n.Chain()
		if !seen[chain] {
			seen[chain] = true
			chains = append(chains, chain)
		}

		return true
	})

	return chains
}
