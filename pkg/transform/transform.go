// Package transform builds output molecules from resolved correspondences.
// Block application aggregates matched source atoms into beads with
// weight-normalized attributes; modification application rewrites the target
// in place, adding and removing PTM atoms.
package transform

import (
	"fmt"

	"github.com/coarsen-md/coarsen/pkg/match"
	"github.com/coarsen-md/coarsen/pkg/molecule"
)

// StructuralError reports a matched rule whose edge or atom requirements
// cannot be satisfied in the graph. Fatal for the region, recoverable at the
// molecule level by skipping it.
type StructuralError struct {
	Rule   string
	Region string
	Msg    string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	return fmt.Sprintf("rule %q at %s: %s", e.Rule, e.Region, e.Msg)
}

// Attribute keys aggregated as weighted averages over a bead's source atoms.
// Everything else comes from the bead's reference atom.
var aggregatedKeys = []string{molecule.KeyCharge, molecule.KeyMass}

// weightedSource is one target atom contributing to a bead.
type weightedSource struct {
	node   molecule.NodeID
	weight float64
}

// Builder accumulates bead creation across block applications on one target
// molecule, then induces the output bonds in a single pass. One builder per
// output molecule.
type Builder struct {
	out         *molecule.Molecule
	beadSources map[molecule.NodeID][]weightedSource
	sourceBeads map[molecule.NodeID][]molecule.NodeID
}

// NewBuilder returns a builder whose output node identifiers start at base.
func NewBuilder(base molecule.NodeID) *Builder {
	return &Builder{
		out:         molecule.NewMoleculeWithIDBase(base),
		beadSources: map[molecule.NodeID][]weightedSource{},
		sourceBeads: map[molecule.NodeID][]molecule.NodeID{},
	}
}

// ApplyBlock creates the block's beads from one correspondence. Identity
// attributes come from each bead's reference atom, positions and the
// aggregated numeric attributes are weight-normalized over the contributing
// sources, and bookkeeping for edge induction is recorded.
func (b *Builder) ApplyBlock(target *molecule.Molecule, block *molecule.Block, corr match.Correspondence) error {
	for _, bead := range block.Beads() {
		sources, err := b.resolveSources(target, block, bead, corr)
		if err != nil {
			return err
		}

		refNode, err := b.referenceNode(target, block, bead, sources, corr)
		if err != nil {
			return err
		}

		id := b.createBead(target, bead, refNode, sources)

		b.beadSources[id] = sources
		for _, src := range sources {
			b.sourceBeads[src.node] = append(b.sourceBeads[src.node], id)
		}
	}

	return nil
}

// resolveSources maps the bead's declared source atoms through the
// correspondence.
func (b *Builder) resolveSources(
	target *molecule.Molecule, block *molecule.Block, bead string, corr match.Correspondence,
) ([]weightedSource, error) {
	assignments := block.SourcesFor(bead)
	sources := make([]weightedSource, 0, len(assignments))

	for _, asn := range assignments {
		node, ok := corr.Binding[asn.Source.String()]
		if !ok {
			return nil, &StructuralError{
				Rule:   block.Name,
				Region: regionOf(target, corr),
				Msg:    fmt.Sprintf("source atom %q of bead %q is not bound", asn.Source, bead),
			}
		}

		sources = append(sources, weightedSource{node: node, weight: asn.Weight})
	}

	return sources, nil
}

// referenceNode picks the atom anchoring the bead's identity: the declared
// reference when the block names one, otherwise the highest-weight source
// with ties going to declaration order.
func (b *Builder) referenceNode(
	target *molecule.Molecule, block *molecule.Block, bead string,
	sources []weightedSource, corr match.Correspondence,
) (*molecule.Node, error) {
	if ref, ok := block.Reference(bead); ok {
		id, bound := corr.Binding[ref.String()]
		if !bound {
			return nil, &StructuralError{
				Rule:   block.Name,
				Region: regionOf(target, corr),
				Msg:    fmt.Sprintf("reference atom %q of bead %q is not bound", ref, bead),
			}
		}

		node, _ := target.Node(id)

		return node, nil
	}

	best := sources[0]
	for _, src := range sources[1:] {
		if src.weight > best.weight {
			best = src
		}
	}

	node, _ := target.Node(best.node)

	return node, nil
}

// createBead adds the output node: identity from the reference atom, the bead
// name as atomname, and weighted aggregates for position and the numeric
// keys.
func (b *Builder) createBead(
	target *molecule.Molecule, bead string, ref *molecule.Node, sources []weightedSource,
) molecule.NodeID {
	attrs := molecule.Attributes{
		molecule.KeyAtomName: molecule.String(bead),
	}

	for _, key := range []string{molecule.KeyResName, molecule.KeyResID, molecule.KeyChain} {
		if val, ok := ref.Attrs[key]; ok {
			attrs[key] = val
		}
	}

	for _, key := range aggregatedKeys {
		if val, ok := aggregateScalar(target, sources, key); ok {
			attrs[key] = molecule.Float(val)
		}
	}

	pos, hasPos := aggregatePosition(target, sources)
	if hasPos {
		return b.out.AddNodeAt(attrs, pos)
	}

	return b.out.AddNode(attrs)
}

// aggregateScalar computes the weight-normalized average of one numeric
// attribute over the sources that carry it.
func aggregateScalar(target *molecule.Molecule, sources []weightedSource, key string) (float64, bool) {
	sum, total := 0.0, 0.0

	for _, src := range sources {
		node, ok := target.Node(src.node)
		if !ok {
			continue
		}

		val, ok := node.Attrs[key]
		if !ok || (val.Kind() != molecule.KindFloat && val.Kind() != molecule.KindInt) {
			continue
		}

		sum += src.weight * val.Num()
		total += src.weight
	}

	if total == 0 {
		return 0, false
	}

	return sum / total, true
}

// aggregatePosition computes the weight-normalized centroid over the sources
// that have positions.
func aggregatePosition(target *molecule.Molecule, sources []weightedSource) (molecule.Vec3, bool) {
	var sum molecule.Vec3

	total := 0.0

	for _, src := range sources {
		node, ok := target.Node(src.node)
		if !ok || !node.HasPosition {
			continue
		}

		sum = sum.Add(node.Position.Scale(src.weight))
		total += src.weight
	}

	if total == 0 {
		return molecule.Vec3{}, false
	}

	return sum.Scale(1 / total), true
}

// InduceEdges bonds every pair of distinct beads whose source sets are
// connected by at least one bond in the target. Beads whose sources share no
// bond stay unbonded, so unmapped atoms never leak edges into the output.
func (b *Builder) InduceEdges(target *molecule.Molecule) {
	for _, edge := range target.Edges() {
		for _, beadA := range b.sourceBeads[edge.A] {
			for _, beadB := range b.sourceBeads[edge.B] {
				if beadA != beadB {
					_ = b.out.AddEdge(beadA, beadB, nil)
				}
			}
		}
	}
}

// Result returns the output molecule built so far.
func (b *Builder) Result() *molecule.Molecule {
	return b.out
}

// regionOf describes the residue a correspondence touches, for error
// messages: resname and resid of the first bound atom.
func regionOf(target *molecule.Molecule, corr match.Correspondence) string {
	for _, id := range corr.Nodes() {
		node, ok := target.Node(id)
		if !ok {
			continue
		}

		return fmt.Sprintf("%s-%d", node.ResName(), node.ResID())
	}

	return "unbound region"
}
