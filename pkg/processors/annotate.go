package processors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coarsen-md/coarsen/pkg/match"
	"github.com/coarsen-md/coarsen/pkg/molecule"
	"github.com/coarsen-md/coarsen/pkg/resolve"
	"github.com/coarsen-md/coarsen/pkg/transform"
)

// AnnotateModifications identifies chemical modifications present in the
// input structure. For every region where modification patterns match, the
// most specific one is applied: matched atoms are tagged with the
// modification identity and their replace maps are merged. A region whose
// winning modification cannot be applied is skipped with a warning; a genuine
// ranking tie aborts the stage.
type AnnotateModifications struct {
	Modifications []*molecule.Modification
	Logger        *slog.Logger
}

// Name implements Processor.
func (a *AnnotateModifications) Name() string { return "annotate-modifications" }

// RunSystem implements Processor.
func (a *AnnotateModifications) RunSystem(ctx context.Context, sys *molecule.System) error {
	logger := a.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	byName := make(map[string]*molecule.Modification, len(a.Modifications))
	for _, mod := range a.Modifications {
		byName[mod.Name] = mod
	}

	for _, mol := range sys.Molecules {
		if err := a.annotateMolecule(ctx, logger, mol, byName); err != nil {
			return err
		}
	}

	return nil
}

func (a *AnnotateModifications) annotateMolecule(
	ctx context.Context, logger *slog.Logger,
	mol *molecule.Molecule, byName map[string]*molecule.Modification,
) error {
	var candidates []match.Correspondence
	for _, mod := range a.Modifications {
		candidates = append(candidates, match.Modification(mol, mod)...)
	}

	candidates = resolve.Dedupe(candidates)

	for _, region := range resolve.Regions(candidates) {
		winner, err := resolve.Pick(describeRegion(mol, region[0]), region)
		if err != nil {
			return err
		}

		applyErr := transform.ApplyModification(mol, byName[winner.Rule], winner)
		if applyErr != nil {
			var structural *transform.StructuralError
			if errors.As(applyErr, &structural) {
				logger.WarnContext(ctx, "skipping inconsistent modification",
					"modification", winner.Rule,
					"region", structural.Region,
					"reason", structural.Msg)

				continue
			}

			return applyErr
		}

		logger.DebugContext(ctx, "modification annotated",
			"modification", winner.Rule,
			"atoms", winner.Size())
	}

	return nil
}

// describeRegion names the residue a correspondence touches for error and log
// messages.
func describeRegion(mol *molecule.Molecule, corr match.Correspondence) string {
	for _, id := range corr.Nodes() {
		if node, ok := mol.Node(id); ok {
			return fmt.Sprintf("%s-%d", node.ResName(), node.ResID())
		}
	}

	return "unknown region"
}
