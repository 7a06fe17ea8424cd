package processors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/coarsen-md/coarsen/pkg/molecule"
)

// Chain-selection errors.
var (
	ErrChainsAndAll = errors.New("an explicit chain list and all-chains cannot both be requested")
	ErrNoSelection  = errors.New("merge-chains needs a chain list or the all-chains flag")
)

// MergeChains combines the molecules whose chain sets fall inside the
// requested selection into one, possibly disconnected, molecule. The merged
// molecule takes the first consumed molecule's place and metadata; node
// identifiers are re-based on merge.
type MergeChains struct {
	// Chains is the explicit selection. Mutually exclusive with All.
	Chains []string

	// All selects every chain.
	All bool

	Logger *slog.Logger
}

// Name implements Processor.
func (m *MergeChains) Name() string { return "merge-chains" }

// RunSystem implements Processor.
func (m *MergeChains) RunSystem(ctx context.Context, sys *molecule.System) error {
	if m.All && len(m.Chains) > 0 {
		return ErrChainsAndAll
	}

	if !m.All && len(m.Chains) == 0 {
		return ErrNoSelection
	}

	logger := m.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	selected := make(map[string]bool, len(m.Chains))
	for _, chain := range m.Chains {
		selected[chain] = true
	}

	merged := molecule.NewMolecule()
	first := -1

	for i, mol := range sys.Molecules {
		if !m.wantMolecule(mol, selected) {
			continue
		}

		m.warnEmptyChains(ctx, logger, mol)

		if first < 0 {
			first = i
			merged.Name = mol.Name
			merged.Meta = mol.Meta.Clone()
		}

		merged.Absorb(mol)
		sys.Molecules[i] = nil
	}

	if first < 0 {
		logger.WarnContext(ctx, "no molecule matches the chain selection", "chains", m.Chains)

		return nil
	}

	sys.Molecules[first] = merged
	sys.Compact()

	return nil
}

// wantMolecule reports whether every chain of the molecule is selected.
func (m *MergeChains) wantMolecule(mol *molecule.Molecule, selected map[string]bool) bool {
	if m.All {
		return true
	}

	for _, chain := range mol.Chains() {
		if !selected[chain] {
			return false
		}
	}

	return true
}

func (m *MergeChains) warnEmptyChains(ctx context.Context, logger *slog.Logger, mol *molecule.Molecule) {
	empty := 0

	mol.Nodes(func(n *molecule.Node) bool {
		if n.Chain() == "" {
			empty++
		}

		return true
	})

	if empty > 0 {
		logger.WarnContext(ctx, "merging atoms with an empty chain identifier",
			"molecule", mol.Name,
			"atoms", empty)
	}
}
