package grammar

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/coarsen-md/coarsen/pkg/molecule"
)

// Section names, normalized to lower case with collapsed whitespace.
const (
	secMacros       = "macros"
	secBlock        = "block"
	secModification = "modification"
	secFrom         = "from"
	secTo           = "to"
	secFromBlocks   = "from blocks"
	secToBlocks     = "to blocks"
	secFromNodes    = "from nodes"
	secFromEdges    = "from edges"
	secMapping      = "mapping"
	secReference    = "reference atoms"
	secAtoms        = "atoms"
	secEdges        = "edges"
)

// Defaults for optional fields.
const defaultMappingWeight = 1.0

// maxRuleLineBytes bounds a single line of rule text.
const maxRuleLineBytes = 1 << 20

// Library is the result of parsing one rule file: the mapping blocks and
// modifications in declaration order, plus the macro table of the session.
type Library struct {
	Blocks        []*molecule.Block
	Modifications []*molecule.Modification
	Macros        *MacroTable
}

// RecordCount returns the total number of parsed rule records.
func (l *Library) RecordCount() int {
	return len(l.Blocks) + len(l.Modifications)
}

// ParseRulesFile parses the rule file at path.
func ParseRulesFile(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule file: %w", err)
	}
	defer f.Close()

	return ParseRules(f, path)
}

// ParseRules parses rule text from r. The file name is used only for error
// context. Each call owns a fresh macro table; macros never leak across
// parse sessions.
func ParseRules(r io.Reader, file string) (*Library, error) {
	macros := NewMacroTable()
	p := &rulesParser{
		file:   file,
		macros: macros,
		lib:    &Library{Macros: macros},
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRuleLineBytes)

	for scanner.Scan() {
		p.lineNo++

		if err := p.processLine(scanner.Text()); err != nil {
			return nil, err
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rule file %s: %w", file, err)
	}

	if err := p.finish(); err != nil {
		return nil, err
	}

	return p.lib, nil
}

// rulesParser is the per-session state machine walking one rule file.
type rulesParser struct {
	file     string
	lineNo   int
	section  string
	macros   *MacroTable
	lib      *Library
	block    *molecule.Block
	mod      *molecule.Modification
	needName bool
	decl     int
}

func (p *rulesParser) errorf(format string, args ...any) error {
	return &GrammarError{
		File:    p.file,
		Line:    p.lineNo,
		Section: p.section,
		Msg:     fmt.Sprintf(format, args...),
	}
}

// wrapMacro attaches position context while keeping the MacroError visible
// to errors.As.
func (p *rulesParser) wrapMacro(err error) error {
	return fmt.Errorf("%s:%d: %w", p.file, p.lineNo, err)
}

func (p *rulesParser) processLine(raw string) error {
	line := stripComment(raw)

	if name, ok := sectionHeader(line); ok {
		return p.enterSection(name)
	}

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil
	}

	if p.needName {
		return p.takeRecordName(trimmed)
	}

	return p.contentLine(trimmed)
}

func (p *rulesParser) enterSection(rawName string) error {
	name := strings.ToLower(rawName)

	if p.needName {
		return p.errorf("record name is missing before section [%s]", name)
	}

	switch name {
	case secMacros:
		if err := p.closeRecord(); err != nil {
			return err
		}

		p.section = name
	case secBlock:
		if err := p.closeRecord(); err != nil {
			return err
		}

		p.section = name
		p.block = &molecule.Block{}
		p.needName = true
	case secModification:
		if err := p.closeRecord(); err != nil {
			return err
		}

		p.section = name
		p.mod = &molecule.Modification{}
		p.needName = true
	case secFrom, secTo, secFromBlocks, secToBlocks, secFromNodes, secFromEdges, secMapping, secReference:
		if p.block == nil {
			return p.errorf("section [%s] outside a block record", name)
		}

		p.section = name
	case secAtoms, secEdges:
		if p.mod == nil {
			return p.errorf("section [%s] outside a modification record", name)
		}

		p.section = name
	default:
		return p.errorf("unknown section [%s]", name)
	}

	return nil
}

func (p *rulesParser) takeRecordName(line string) error {
	tokens, err := tokenize(line)
	if err != nil {
		return p.errorf("%s", err)
	}

	if len(tokens) != 1 {
		return p.errorf("expected a single record name, got %d tokens", len(tokens))
	}

	switch {
	case p.block != nil:
		p.block.Name = tokens[0]
	case p.mod != nil:
		p.mod.Name = tokens[0]
	}

	p.needName = false

	return nil
}

func (p *rulesParser) contentLine(line string) error {
	if p.section == secMacros {
		return p.macroLine(line)
	}

	expanded, err := p.macros.Expand(line)
	if err != nil {
		return p.wrapMacro(err)
	}

	tokens, err := tokenize(expanded)
	if err != nil {
		return p.errorf("%s", err)
	}

	if len(tokens) == 0 {
		return nil
	}

	switch p.section {
	case secFrom:
		return p.setForceField(&p.block.FromFF, tokens)
	case secTo:
		return p.setForceField(&p.block.ToFF, tokens)
	case secFromBlocks:
		p.block.FromBlocks = append(p.block.FromBlocks, tokens...)
	case secToBlocks:
		p.block.ToBlocks = append(p.block.ToBlocks, tokens...)
	case secFromNodes:
		return p.fromNodeLine(tokens)
	case secFromEdges:
		return p.fromEdgeLine(tokens)
	case secMapping:
		return p.mappingLine(tokens)
	case secReference:
		return p.referenceLine(tokens)
	case secAtoms:
		return p.modAtomLine(tokens)
	case secEdges:
		return p.modEdgeLine(tokens)
	default:
		return p.errorf("content outside any section")
	}

	return nil
}

func (p *rulesParser) macroLine(line string) error {
	name, rest := splitFirstField(line)
	if name == "" || rest == "" {
		return p.errorf("macro definitions need a name and a value")
	}

	if err := p.macros.Define(name, rest); err != nil {
		return p.wrapMacro(err)
	}

	return nil
}

// splitFirstField separates the first whitespace-delimited field from the
// trimmed remainder of the line.
func splitFirstField(line string) (string, string) {
	end := strings.IndexAny(line, " \t")
	if end < 0 {
		return line, ""
	}

	return line[:end], strings.TrimSpace(line[end:])
}

func (p *rulesParser) setForceField(target *string, tokens []string) error {
	if len(tokens) != 1 {
		return p.errorf("expected a single force field name")
	}

	if *target != "" {
		return p.errorf("force field name already set to %q", *target)
	}

	*target = tokens[0]

	return nil
}

func (p *rulesParser) fromNodeLine(tokens []string) error {
	if len(tokens) > 2 {
		return p.errorf("expected atom reference with optional attribute object, got %d tokens", len(tokens))
	}

	ref, err := molecule.ParseAtomRef(tokens[0])
	if err != nil {
		return p.errorf("%s", err)
	}

	if _, exists := p.block.Atom(ref); exists {
		return p.errorf("duplicate from-node %q", ref)
	}

	atom := molecule.BlockAtom{Ref: ref, Match: molecule.Attributes{}}

	if len(tokens) == 2 {
		entry, err := parseAttributeObject(tokens[1], false)
		if err != nil {
			return p.errorf("%s", err)
		}

		atom.Match = entry.match
	}

	p.block.FromNodes = append(p.block.FromNodes, atom)

	return nil
}

func (p *rulesParser) fromEdgeLine(tokens []string) error {
	if len(tokens) < 2 || len(tokens) > 3 {
		return p.errorf("expected two atom references with optional attribute object")
	}

	a, err := molecule.ParseAtomRef(tokens[0])
	if err != nil {
		return p.errorf("%s", err)
	}

	b, err := molecule.ParseAtomRef(tokens[1])
	if err != nil {
		return p.errorf("%s", err)
	}

	edge := molecule.BlockEdge{A: a, B: b}

	if len(tokens) == 3 {
		entry, err := parseAttributeObject(tokens[2], false)
		if err != nil {
			return p.errorf("%s", err)
		}

		edge.Attrs = entry.match
	}

	p.block.FromEdges = append(p.block.FromEdges, edge)

	return nil
}

func (p *rulesParser) mappingLine(tokens []string) error {
	if len(tokens) < 2 || len(tokens) > 3 {
		return p.errorf("expected source atom, bead name, and optional weight")
	}

	source, err := molecule.ParseAtomRef(tokens[0])
	if err != nil {
		return p.errorf("%s", err)
	}

	weight := defaultMappingWeight

	if len(tokens) == 3 {
		weight, err = strconv.ParseFloat(tokens[2], 64)
		if err != nil {
			return p.errorf("mapping weight %q is not a number", tokens[2])
		}

		if weight <= 0 {
			return p.errorf("mapping weight must be positive, got %v", weight)
		}
	}

	p.block.Mapping = append(p.block.Mapping, molecule.Assignment{
		Source: source,
		Bead:   tokens[1],
		Weight: weight,
	})

	return nil
}

func (p *rulesParser) referenceLine(tokens []string) error {
	if len(tokens) != 2 {
		return p.errorf("expected bead name and source atom reference")
	}

	ref, err := molecule.ParseAtomRef(tokens[1])
	if err != nil {
		return p.errorf("%s", err)
	}

	if p.block.References == nil {
		p.block.References = map[string]molecule.FromRef{}
	}

	if _, exists := p.block.References[tokens[0]]; exists {
		return p.errorf("duplicate reference atom for bead %q", tokens[0])
	}

	p.block.References[tokens[0]] = ref

	return nil
}

func (p *rulesParser) modAtomLine(tokens []string) error {
	if len(tokens) > 2 {
		return p.errorf("expected atom name with optional attribute object, got %d tokens", len(tokens))
	}

	name := tokens[0]
	if _, exists := p.mod.Atom(name); exists {
		return p.errorf("duplicate modification atom %q", name)
	}

	atom := molecule.ModAtom{Name: name, Match: molecule.Attributes{}}

	if len(tokens) == 2 {
		entry, err := parseAttributeObject(tokens[1], true)
		if err != nil {
			return p.errorf("%s", err)
		}

		atom.Match = entry.match
		atom.Replace = entry.replace
		atom.PTM = entry.ptm
	}

	// The atom name doubles as the atomname predicate unless the object
	// already pins one down.
	if _, ok := atom.Match[molecule.KeyAtomName]; !ok {
		atom.Match[molecule.KeyAtomName] = molecule.String(name)
	}

	p.mod.Atoms = append(p.mod.Atoms, atom)

	return nil
}

func (p *rulesParser) modEdgeLine(tokens []string) error {
	if len(tokens) < 2 || len(tokens) > 3 {
		return p.errorf("expected two atom names with optional attribute object")
	}

	edge := molecule.ModEdge{A: tokens[0], B: tokens[1]}

	if len(tokens) == 3 {
		entry, err := parseAttributeObject(tokens[2], false)
		if err != nil {
			return p.errorf("%s", err)
		}

		edge.Attrs = entry.match
	}

	p.mod.Edges = append(p.mod.Edges, edge)

	return nil
}

// closeRecord validates and stores the record being built, if any.
func (p *rulesParser) closeRecord() error {
	switch {
	case p.block != nil:
		if err := p.block.Validate(); err != nil {
			return p.errorf("%s", err)
		}

		p.block.DeclIndex = p.decl
		p.decl++
		p.lib.Blocks = append(p.lib.Blocks, p.block)
		p.block = nil
	case p.mod != nil:
		if len(p.mod.Atoms) == 0 {
			return p.errorf("modification %q declares no atoms", p.mod.Name)
		}

		p.mod.DeclIndex = p.decl
		p.decl++
		p.lib.Modifications = append(p.lib.Modifications, p.mod)
		p.mod = nil
	}

	p.section = ""

	return nil
}

func (p *rulesParser) finish() error {
	if p.needName {
		return p.errorf("record name is missing at end of file")
	}

	return p.closeRecord()
}
