package processors

import (
	"context"
	"log/slog"
	"math"

	"github.com/coarsen-md/coarsen/pkg/molecule"
)

// Covalent radii in nanometers, used to decide whether two positioned atoms
// are bonded. Elements outside the table fall back to carbon's radius.
var covalentRadii = map[string]float64{
	"H": 0.031,
	"C": 0.076,
	"N": 0.071,
	"O": 0.066,
	"F": 0.057,
	"P": 0.107,
	"S": 0.105,
	"Cl": 0.102,
	"Br": 0.120,
}

const (
	fallbackRadius = 0.076

	// bondFudge widens the radius sum to absorb strained geometries.
	bondFudge = 1.3
)

// MakeBonds infers bonds from interatomic distances for molecules that carry
// positions but no connectivity, as structure files without CONECT records
// produce. Two atoms bond when their distance is below the fudged sum of
// their covalent radii. Molecules that already have edges are left alone.
type MakeBonds struct {
	Logger *slog.Logger
}

// Name implements Processor.
func (mb *MakeBonds) Name() string { return "make-bonds" }

// RunSystem implements Processor.
func (mb *MakeBonds) RunSystem(ctx context.Context, sys *molecule.System) error {
	logger := mb.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	for _, mol := range sys.Molecules {
		if mol.EdgeCount() > 0 {
			continue
		}

		added := inferBonds(mol)
		if added > 0 {
			logger.DebugContext(ctx, "bonds inferred from distances",
				"molecule", mol.Name,
				"bonds", added)
		}
	}

	return nil
}

// inferBonds runs the distance criterion over a cell grid so only nearby
// pairs are examined.
func inferBonds(mol *molecule.Molecule) int {
	maxRadius := fallbackRadius
	for _, r := range covalentRadii {
		if r > maxRadius {
			maxRadius = r
		}
	}

	cellSize := 2 * maxRadius * bondFudge

	type cell [3]int

	grid := map[cell][]*molecule.Node{}
	cellOf := func(pos molecule.Vec3) cell {
		return cell{
			int(math.Floor(pos[0] / cellSize)),
			int(math.Floor(pos[1] / cellSize)),
			int(math.Floor(pos[2] / cellSize)),
		}
	}

	mol.Nodes(func(n *molecule.Node) bool {
		if n.HasPosition {
			c := cellOf(n.Position)
			grid[c] = append(grid[c], n)
		}

		return true
	})

	added := 0

	mol.Nodes(func(n *molecule.Node) bool {
		if !n.HasPosition {
			return true
		}

		home := cellOf(n.Position)

		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for dz := -1; dz <= 1; dz++ {
					neighbor := cell{home[0] + dx, home[1] + dy, home[2] + dz}

					for _, other := range grid[neighbor] {
						// Each pair once.
						if other.ID <= n.ID || !bonded(n, other) {
							continue
						}

						if err := mol.AddEdge(n.ID, other.ID, nil); err == nil {
							added++
						}
					}
				}
			}
		}

		return true
	})

	return added
}

func bonded(a, b *molecule.Node) bool {
	cutoff := (radiusOf(a) + radiusOf(b)) * bondFudge

	return a.Position.Sub(b.Position).Norm2() < cutoff*cutoff
}

func radiusOf(n *molecule.Node) float64 {
	if r, ok := covalentRadii[n.Element()]; ok {
		return r
	}

	return fallbackRadius
}
