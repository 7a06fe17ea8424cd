package molecule

// System is one loaded structure: the molecules it decomposes into, in input
// order, plus file-level metadata. Processors mutate the system in place and
// may replace the molecule list wholesale.
type System struct {
	// Molecules in input order. Entries may be nil transiently while a
	// processor rebuilds the list; exported systems never contain nils.
	Molecules []*Molecule

	// ForceField names the rule library the system was (or will be) mapped
	// with, when known.
	ForceField string

	// Meta carries file-level annotations such as the structure title or the
	// periodic box.
	Meta Attributes

	// Box is the periodic box, in nanometers, when the input declared one.
	Box    Vec3
	HasBox bool
}

// NewSystem returns an empty system.
func NewSystem() *System {
	return &System{Meta: Attributes{}}
}

// AtomCount returns the total number of nodes across all molecules.
func (s *System) AtomCount() int {
	total := 0
	for _, mol := range s.Molecules {
		if mol != nil {
			total += mol.NodeCount()
		}
	}

	return total
}

// BondCount returns the total number of edges across all molecules.
func (s *System) BondCount() int {
	total := 0
	for _, mol := range s.Molecules {
		if mol != nil {
			total += mol.EdgeCount()
		}
	}

	return total
}

// Compact drops nil molecule entries left behind by processors that consume
// molecules.
func (s *System) Compact() {
	kept := s.Molecules[:0]

	for _, mol := range s.Molecules {
		if mol != nil {
			kept = append(kept, mol)
		}
	}

	s.Molecules = kept
}
