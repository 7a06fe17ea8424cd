// Package forcefield collects parsed rule records into named libraries and
// loads them from force-field directories.
package forcefield

import (
	"github.com/coarsen-md/coarsen/pkg/molecule"
)

// ForceField is a named rule library: the mapping blocks, modifications,
// residue templates, and links accumulated from a force-field directory.
// Immutable after loading; consumed read-only by matching.
type ForceField struct {
	Name        string
	Description string
	Citations   []string
	Variables   map[string]string

	Blocks        []*molecule.Block
	Modifications []*molecule.Modification
	Residues      []*molecule.Residue
	Links         []*molecule.Link
}

// New returns an empty force field.
func New(name string) *ForceField {
	return &ForceField{
		Name:      name,
		Variables: map[string]string{},
	}
}

// Block returns the mapping block with the given name.
func (ff *ForceField) Block(name string) (*molecule.Block, bool) {
	for _, block := range ff.Blocks {
		if block.Name == name {
			return block, true
		}
	}

	return nil, false
}

// Modification returns the modification with the given name.
func (ff *ForceField) Modification(name string) (*molecule.Modification, bool) {
	for _, mod := range ff.Modifications {
		if mod.Name == name {
			return mod, true
		}
	}

	return nil, false
}

// Residue returns the residue template with the given name.
func (ff *ForceField) Residue(name string) (*molecule.Residue, bool) {
	for _, res := range ff.Residues {
		if res.Name == name {
			return res, true
		}
	}

	return nil, false
}

// RecordCount returns the total number of rule records in the library.
func (ff *ForceField) RecordCount() int {
	return len(ff.Blocks) + len(ff.Modifications) + len(ff.Residues) + len(ff.Links)
}

// Merge layers another library on top of this one. The other library's
// records keep their relative order but rank after everything already loaded,
// so a separate mappings directory loses declaration-order ties against the
// base force field.
func (ff *ForceField) Merge(other *ForceField) {
	offset := ff.declBase()

	for _, block := range other.Blocks {
		block.DeclIndex += offset
		ff.Blocks = append(ff.Blocks, block)
	}

	for _, mod := range other.Modifications {
		mod.DeclIndex += offset
		ff.Modifications = append(ff.Modifications, mod)
	}

	ff.Residues = append(ff.Residues, other.Residues...)
	ff.Links = append(ff.Links, other.Links...)
}

// mergeRules appends one parsed rule file, shifting its declaration indices
// past everything already loaded. Records keep their relative order within
// the file, so ties still resolve by position in the source text.
func (ff *ForceField) mergeRules(blocks []*molecule.Block, mods []*molecule.Modification) {
	offset := ff.declBase()

	for _, block := range blocks {
		block.DeclIndex += offset
		ff.Blocks = append(ff.Blocks, block)
	}

	for _, mod := range mods {
		mod.DeclIndex += offset
		ff.Modifications = append(ff.Modifications, mod)
	}
}

// declBase returns the next free declaration index across blocks and
// modifications, which share one ordering for tie-breaking.
func (ff *ForceField) declBase() int {
	max := -1

	for _, block := range ff.Blocks {
		if block.DeclIndex > max {
			max = block.DeclIndex
		}
	}

	for _, mod := range ff.Modifications {
		if mod.DeclIndex > max {
			max = mod.DeclIndex
		}
	}

	return max + 1
}
