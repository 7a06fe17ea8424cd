// Package pdb reads and writes Protein Data Bank coordinate files into the
// molecular graph model. Positions convert between the PDB's angstroms and
// the model's nanometers at the boundary.
package pdb

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/coarsen-md/coarsen/pkg/molecule"
	"github.com/coarsen-md/coarsen/pkg/textutil"
	"github.com/coarsen-md/coarsen/pkg/units"
)

// Fixed column spans of an ATOM/HETATM record, zero-based half-open.
const (
	colSerialEnd  = 11
	colNameStart  = 12
	colNameEnd    = 16
	colResStart   = 17
	colResEnd     = 20
	colChain      = 21
	colResSeqEnd  = 26
	colCoordStart = 30
	colCoordWidth = 8
	colElemStart  = 76
	colElemEnd    = 78
)

// conectFieldWidth is the width of each serial column in a CONECT record.
const conectFieldWidth = 5

// ErrNoAtoms reports a structure file with no coordinate records.
var ErrNoAtoms = errors.New("no ATOM or HETATM records")

// Read parses PDB text into a system. Only the first MODEL is read. Atoms
// are split into one molecule per chain, except that chains bridged by a
// CONECT bond merge into one molecule.
func Read(data []byte, name string) (*molecule.System, error) {
	if textutil.IsBinary(data) {
		return nil, fmt.Errorf("%s: binary data is not a PDB file", name)
	}

	p := &parser{
		name:    name,
		atoms:   map[int64]molecule.NodeID{},
		working: molecule.NewMolecule(),
		system:  molecule.NewSystem(),
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))

	for scanner.Scan() {
		p.lineNo++

		if err := p.processLine(scanner.Text()); err != nil {
			return nil, err
		}

		if p.done {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	return p.finish()
}

type parser struct {
	name    string
	lineNo  int
	inModel bool
	done    bool

	// working accumulates every atom; chains are split out in finish.
	working *molecule.Molecule
	atoms   map[int64]molecule.NodeID
	system  *molecule.System
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%s:%d: %s", p.name, p.lineNo, fmt.Sprintf(format, args...))
}

func (p *parser) processLine(line string) error {
	switch {
	case strings.HasPrefix(line, "ATOM") || strings.HasPrefix(line, "HETATM"):
		return p.atomLine(line)
	case strings.HasPrefix(line, "CONECT"):
		return p.conectLine(line)
	case strings.HasPrefix(line, "CRYST1"):
		return p.crystLine(line)
	case strings.HasPrefix(line, "TITLE"):
		title := strings.TrimSpace(line[min(len(line), 10):])
		if title != "" {
			p.system.Meta["title"] = molecule.String(title)
		}
	case strings.HasPrefix(line, "MODEL"):
		p.inModel = true
	case strings.HasPrefix(line, "ENDMDL"):
		// Additional models repeat the same topology; the first one wins.
		if p.inModel {
			p.done = true
		}
	case strings.HasPrefix(line, "END"):
		p.done = true
	}

	return nil
}

func (p *parser) atomLine(line string) error {
	if len(line) < colCoordStart+3*colCoordWidth {
		return p.errorf("coordinate record is too short (%d columns)", len(line))
	}

	serial, err := strconv.ParseInt(field(line, 6, colSerialEnd), 10, 64)
	if err != nil {
		return p.errorf("atom serial %q is not a number", field(line, 6, colSerialEnd))
	}

	resSeq, err := strconv.ParseInt(field(line, 22, colResSeqEnd), 10, 64)
	if err != nil {
		return p.errorf("residue number %q is not a number", field(line, 22, colResSeqEnd))
	}

	var pos molecule.Vec3

	for i := 0; i < 3; i++ {
		start := colCoordStart + i*colCoordWidth

		coord, err := strconv.ParseFloat(field(line, start, start+colCoordWidth), 64)
		if err != nil {
			return p.errorf("coordinate %q is not a number", field(line, start, start+colCoordWidth))
		}

		pos[i] = coord * units.NmPerAngstrom
	}

	atomName := field(line, colNameStart, colNameEnd)

	attrs := molecule.Attributes{
		molecule.KeyAtomName: molecule.String(atomName),
		molecule.KeyResName:  molecule.String(field(line, colResStart, colResEnd)),
		molecule.KeyResID:    molecule.Int(resSeq),
		molecule.KeyChain:    molecule.String(field(line, colChain, colChain+1)),
		molecule.KeyElement:  molecule.String(elementOf(line, atomName)),
	}

	id := p.working.AddNodeAt(attrs, pos)
	p.atoms[serial] = id

	return nil
}

func (p *parser) conectLine(line string) error {
	serials := conectSerials(line)
	if len(serials) < 2 {
		return nil
	}

	center, ok := p.atoms[serials[0]]
	if !ok {
		return p.errorf("CONECT references unknown atom %d", serials[0])
	}

	for _, other := range serials[1:] {
		bonded, ok := p.atoms[other]
		if !ok {
			return p.errorf("CONECT references unknown atom %d", other)
		}

		if err := p.working.AddEdge(center, bonded, nil); err != nil {
			return p.errorf("CONECT %d-%d: %s", serials[0], other, err)
		}
	}

	return nil
}

func (p *parser) crystLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return nil
	}

	var box molecule.Vec3

	for i := 0; i < 3; i++ {
		val, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return p.errorf("CRYST1 length %q is not a number", fields[i+1])
		}

		box[i] = val * units.NmPerAngstrom
	}

	p.system.Box = box
	p.system.HasBox = true

	return nil
}

// finish splits the accumulated atoms into molecules: one per chain, with
// CONECT-bridged chains merged.
func (p *parser) finish() (*molecule.System, error) {
	if p.working.NodeCount() == 0 {
		return nil, fmt.Errorf("%s: %w", p.name, ErrNoAtoms)
	}

	groups := p.chainGroups()

	for _, chains := range groups {
		member := map[string]bool{}
		for _, chain := range chains {
			member[chain] = true
		}

		var ids []molecule.NodeID

		p.working.Nodes(func(n *molecule.Node) bool {
			if member[n.Chain()] {
				ids = append(ids, n.ID)
			}

			return true
		})

		mol := molecule.NewMolecule()
		mol.Absorb(p.working.Subgraph(ids))
		mol.Name = strings.Join(chains, "")

		p.system.Molecules = append(p.system.Molecules, mol)
	}

	return p.system, nil
}

// chainGroups unions chains connected by bonds and returns the groups in
// first-appearance order.
func (p *parser) chainGroups() [][]string {
	chains := p.working.Chains()

	parent := map[string]string{}
	for _, chain := range chains {
		parent[chain] = chain
	}

	var find func(string) string
	find = func(c string) string {
		if parent[c] != c {
			parent[c] = find(parent[c])
		}

		return parent[c]
	}

	for _, edge := range p.working.Edges() {
		a, _ := p.working.Node(edge.A)
		b, _ := p.working.Node(edge.B)

		if a.Chain() != b.Chain() {
			parent[find(a.Chain())] = find(b.Chain())
		}
	}

	index := map[string]int{}
	var groups [][]string

	for _, chain := range chains {
		root := find(chain)

		at, ok := index[root]
		if !ok {
			at = len(groups)
			index[root] = at
			groups = append(groups, nil)
		}

		groups[at] = append(groups[at], chain)
	}

	return groups
}

// field extracts a trimmed column span, tolerating short lines.
func field(line string, start, end int) string {
	if start >= len(line) {
		return ""
	}

	if end > len(line) {
		end = len(line)
	}

	return strings.TrimSpace(line[start:end])
}

// elementOf reads the element columns, falling back to the first letter of
// the atom name for files that leave them blank.
func elementOf(line, atomName string) string {
	if elem := field(line, colElemStart, colElemEnd); elem != "" {
		return normalizeElement(elem)
	}

	for _, r := range atomName {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' {
			return strings.ToUpper(string(r))
		}
	}

	return ""
}

func normalizeElement(elem string) string {
	elem = strings.ToUpper(elem)
	if len(elem) == 2 {
		return elem[:1] + strings.ToLower(elem[1:])
	}

	return elem
}

// conectSerials splits a CONECT record into its fixed-width serial columns.
func conectSerials(line string) []int64 {
	var out []int64

	for start := 6; start < len(line); start += conectFieldWidth {
		token := field(line, start, start+conectFieldWidth)
		if token == "" {
			continue
		}

		serial, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			continue
		}

		out = append(out, serial)
	}

	return out
}
