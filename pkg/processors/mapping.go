package processors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coarsen-md/coarsen/pkg/levenshtein"
	"github.com/coarsen-md/coarsen/pkg/match"
	"github.com/coarsen-md/coarsen/pkg/molecule"
	"github.com/coarsen-md/coarsen/pkg/observability"
	"github.com/coarsen-md/coarsen/pkg/resolve"
	"github.com/coarsen-md/coarsen/pkg/transform"
)

// shardIDStride reserves a node-identifier range per molecule so output IDs
// stay disjoint and reproducible regardless of processing order.
const shardIDStride = 1 << 20

// maxSuggestDistance caps how far a residue name may be from a block name
// before the "closest block" hint is withheld.
const maxSuggestDistance = 2

// DoMapping replaces each molecule with its coarse-grained image. Mapping
// blocks are matched everywhere, contained candidates are discarded under the
// first-full-containment-wins policy, one winner is resolved per overlap
// region, and the transformer assembles the output graph. Residues no block
// explains are reported; whether that is fatal is the caller's decision via
// Strict.
type DoMapping struct {
	Blocks []*molecule.Block
	Logger *slog.Logger

	// Metrics, when set, counts regions skipped over structural
	// inconsistencies.
	Metrics *observability.StageMetrics

	// Strict makes an unmapped residue fail the stage instead of producing a
	// warning.
	Strict bool
}

// Name implements Processor.
func (d *DoMapping) Name() string { return "do-mapping" }

// RunSystem implements Processor.
func (d *DoMapping) RunSystem(ctx context.Context, sys *molecule.System) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	byName := make(map[string]*molecule.Block, len(d.Blocks))
	for _, block := range d.Blocks {
		byName[block.Name] = block
	}

	for i, mol := range sys.Molecules {
		mapped, err := d.mapMolecule(ctx, logger, mol, byName, molecule.NodeID(i)*shardIDStride)
		if err != nil {
			return err
		}

		sys.Molecules[i] = mapped
	}

	return nil
}

func (d *DoMapping) mapMolecule(
	ctx context.Context, logger *slog.Logger, mol *molecule.Molecule,
	byName map[string]*molecule.Block, idBase molecule.NodeID,
) (*molecule.Molecule, error) {
	var candidates []match.Correspondence
	for _, block := range d.Blocks {
		candidates = append(candidates, match.Block(mol, block)...)
	}

	candidates = resolve.Dedupe(candidates)
	candidates = resolve.FilterContained(candidates)

	builder := transform.NewBuilder(idBase)
	covered := map[molecule.NodeID]bool{}

	for _, region := range resolve.Regions(candidates) {
		winner, err := resolve.Pick(describeRegion(mol, region[0]), region)
		if err != nil {
			return nil, err
		}

		applyErr := builder.ApplyBlock(mol, byName[winner.Rule], winner)
		if applyErr != nil {
			var structural *transform.StructuralError
			if errors.As(applyErr, &structural) {
				logger.WarnContext(ctx, "skipping inconsistent mapping",
					"block", winner.Rule,
					"region", structural.Region,
					"reason", structural.Msg)

				if d.Metrics != nil {
					d.Metrics.RecordSkippedResidue(ctx, d.Name())
				}

				continue
			}

			return nil, applyErr
		}

		for _, id := range winner.Nodes() {
			covered[id] = true
		}
	}

	if err := d.reportUnmapped(ctx, logger, mol, covered); err != nil {
		return nil, err
	}

	builder.InduceEdges(mol)

	out := builder.Result()
	out.Name = mol.Name
	out.Meta = mol.Meta.Clone()

	return out, nil
}

// reportUnmapped surfaces residues none of whose atoms reached the output.
func (d *DoMapping) reportUnmapped(
	ctx context.Context, logger *slog.Logger, mol *molecule.Molecule, covered map[molecule.NodeID]bool,
) error {
	var missed []string

	hints := map[string]string{}

	for _, group := range mol.Residues() {
		touched := false

		for _, id := range group.Nodes {
			if covered[id] {
				touched = true

				break
			}
		}

		if !touched {
			label := fmt.Sprintf("%s-%d", group.Key.ResName, group.Key.ResID)

			hint, seen := hints[group.Key.ResName]
			if !seen {
				hint = d.closestBlock(group.Key.ResName)
				hints[group.Key.ResName] = hint
			}

			if hint != "" {
				label += fmt.Sprintf(" (closest block: %s)", hint)
			}

			missed = append(missed, label)
		}
	}

	if len(missed) == 0 {
		return nil
	}

	if d.Strict {
		return fmt.Errorf("no mapping block matches residues: %s", strings.Join(missed, ", "))
	}

	logger.WarnContext(ctx, "residues without a mapping block",
		"molecule", mol.Name,
		"residues", strings.Join(missed, ", "))

	return nil
}

// closestBlock returns the block name nearest to resname by edit distance,
// or "" when nothing is close enough to be a plausible typo.
func (d *DoMapping) closestBlock(resname string) string {
	lev := &levenshtein.Context{}

	best := ""
	bestDist := maxSuggestDistance + 1

	for _, block := range d.Blocks {
		if block.Name == resname {
			continue
		}

		if dist := lev.Distance(resname, block.Name); dist < bestDist {
			best, bestDist = block.Name, dist
		}
	}

	return best
}
