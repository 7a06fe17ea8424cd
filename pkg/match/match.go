// Package match implements constrained subgraph isomorphism between a target
// molecule and rule records. Candidate atoms are filtered by attribute
// predicates first, then the record's edge requirements are enforced under
// the same binding. The matcher never mutates the target.
package match

import (
	"slices"

	"github.com/coarsen-md/coarsen/pkg/molecule"
)

// Correspondence binds rule atoms to target nodes. Block atoms are keyed by
// their reference string, modification atoms by name. Correspondences are
// ephemeral: produced here, consumed by resolution and transformation, then
// discarded.
type Correspondence struct {
	Rule        string
	Binding     map[string]molecule.NodeID
	Specificity int
	DeclIndex   int
}

// Size returns the number of bound atoms.
func (c Correspondence) Size() int { return len(c.Binding) }

// Nodes returns the bound target nodes, sorted ascending.
func (c Correspondence) Nodes() []molecule.NodeID {
	out := make([]molecule.NodeID, 0, len(c.Binding))
	for _, id := range c.Binding {
		out = append(out, id)
	}

	slices.Sort(out)

	return out
}

// Covers reports whether c's bound node set is a superset of other's.
func (c Correspondence) Covers(other Correspondence) bool {
	if len(other.Binding) > len(c.Binding) {
		return false
	}

	mine := make(map[molecule.NodeID]bool, len(c.Binding))
	for _, id := range c.Binding {
		mine[id] = true
	}

	for _, id := range other.Binding {
		if !mine[id] {
			return false
		}
	}

	return true
}

// Overlaps reports whether the two correspondences share any target node.
func (c Correspondence) Overlaps(other Correspondence) bool {
	mine := make(map[molecule.NodeID]bool, len(c.Binding))
	for _, id := range c.Binding {
		mine[id] = true
	}

	for _, id := range other.Binding {
		if mine[id] {
			return true
		}
	}

	return false
}

type options struct {
	restrict     map[molecule.NodeID]bool
	skipAdditive bool
}

// Option adjusts a single match call.
type Option func(*options)

// Within restricts candidate target atoms to the given node set. Callers that
// shard by residue pass the residue's nodes here.
func Within(nodes []molecule.NodeID) Option {
	return func(o *options) {
		o.restrict = make(map[molecule.NodeID]bool, len(nodes))
		for _, id := range nodes {
			o.restrict[id] = true
		}
	}
}

// SkipAdditive leaves additive PTM atoms out of the pattern. Used when a
// modification is applied to an unmodified structure, where those atoms do
// not exist yet.
func SkipAdditive() Option {
	return func(o *options) { o.skipAdditive = true }
}

// Block returns every correspondence of the block's source pattern in the
// target, in deterministic order. An empty result means the block does not
// apply; it is not an error.
func Block(target *molecule.Molecule, block *molecule.Block, opts ...Option) []Correspondence {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	pat := blockPattern(block)

	return pat.search(target, o.restrict)
}

// Modification returns every correspondence of the modification's pattern in
// the target, in deterministic order. Atoms that appear only as edge
// endpoints anchor the pattern and are matched by atom name alone.
func Modification(target *molecule.Molecule, mod *molecule.Modification, opts ...Option) []Correspondence {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	pat := modificationPattern(mod, o.skipAdditive)

	return pat.search(target, o.restrict)
}
