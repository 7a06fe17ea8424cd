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

// RTP subsection names and the number of atom columns each interaction type
// carries before its parameters start.
var rtpBondedAtoms = map[string]int{
	"bonds":      2,
	"angles":     3,
	"dihedrals":  4,
	"impropers":  4,
	"cmap":       5,
	"exclusions": 2,
}

// rtpInteractionKinds fixes the processing order of interaction types.
var rtpInteractionKinds = []string{"bonds", "angles", "dihedrals", "impropers", "cmap", "exclusions"}

const secBondedTypes = "bondedtypes"

// BondedTypes are the file-wide defaults declared in [ bondedtypes ]. The
// fields mirror the eight numeric columns of the section; the defaults match
// the reference GROMACS values.
type BondedTypes struct {
	Bonds        int
	Angles       int
	Dihedrals    int
	Impropers    int
	AllDihedrals int
	Nrexcl       int
	HH14         int
	RemoveDih    int
}

func defaultBondedTypes() BondedTypes {
	return BondedTypes{
		Bonds:        1,
		Angles:       1,
		Dihedrals:    1,
		Impropers:    1,
		AllDihedrals: 0,
		Nrexcl:       3,
		HH14:         1,
		RemoveDih:    1,
	}
}

// funcType returns the function type injected as the first interaction
// parameter. Exclusions and cmap entries always use 1.
func (bt BondedTypes) funcType(kind string) int {
	switch kind {
	case "bonds":
		return bt.Bonds
	case "angles":
		return bt.Angles
	case "dihedrals":
		return bt.Dihedrals
	case "impropers":
		return bt.Impropers
	default:
		return 1
	}
}

// RTPLibrary is the parsed content of one rtp residue library: the residue
// templates, the inter-residue links split out of them, and the bonded-type
// defaults.
type RTPLibrary struct {
	Residues    []*molecule.Residue
	Links       []*molecule.Link
	BondedTypes BondedTypes
}

// Residue returns the template with the given name.
func (l *RTPLibrary) Residue(name string) (*molecule.Residue, bool) {
	for _, res := range l.Residues {
		if res.Name == name {
			return res, true
		}
	}

	return nil, false
}

// ParseRTPFile parses the rtp residue library at path.
func ParseRTPFile(path string) (*RTPLibrary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rtp file: %w", err)
	}
	defer f.Close()

	return ParseRTP(f, path)
}

// ParseRTP parses an rtp residue library from r. Residue templates keep only
// the interactions fully inside the residue; every interaction that reaches
// a neighbor through a +/- prefixed atom is split into its own link. Links
// whose atoms do not form a connected pattern are discarded.
func ParseRTP(r io.Reader, file string) (*RTPLibrary, error) {
	p := &rtpParser{
		file:  file,
		types: defaultBondedTypes(),
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
		return nil, fmt.Errorf("read rtp file %s: %w", file, err)
	}

	return p.finish()
}

// orderedAtom is one interaction column: the token as written, the bare atom
// name, and the +/- neighbor offset encoded by the prefix.
type orderedAtom struct {
	token string
	name  string
	order int
}

type rtpInteraction struct {
	atoms  []orderedAtom
	params []string
}

func (i rtpInteraction) spansNeighbor() bool {
	for _, atom := range i.atoms {
		if atom.order != 0 {
			return true
		}
	}

	return false
}

func (i rtpInteraction) tokens() []string {
	out := make([]string, 0, len(i.atoms))
	for _, atom := range i.atoms {
		out = append(out, atom.token)
	}

	return out
}

// preResidue accumulates one residue before block/link splitting. Interaction
// atoms that never appear in [ atoms ] still become nodes, keyed by their
// written token.
type preResidue struct {
	name         string
	atoms        []molecule.ResidueAtom
	nodeOrder    []string
	nodes        map[string]molecule.Attributes
	interactions map[string][]rtpInteraction
	edges        [][2]string
	decl         int
}

func (pre *preResidue) ensureNode(token string, attrs molecule.Attributes) {
	if _, ok := pre.nodes[token]; ok {
		if attrs != nil {
			pre.nodes[token] = attrs
		}

		return
	}

	if attrs == nil {
		attrs = molecule.Attributes{}
	}

	pre.nodes[token] = attrs
	pre.nodeOrder = append(pre.nodeOrder, token)
}

func (pre *preResidue) hasEdge(a, b string) bool {
	for _, edge := range pre.edges {
		if (edge[0] == a && edge[1] == b) || (edge[0] == b && edge[1] == a) {
			return true
		}
	}

	return false
}

func (pre *preResidue) addEdge(a, b string) {
	if a != b && !pre.hasEdge(a, b) {
		pre.edges = append(pre.edges, [2]string{a, b})
	}
}

type rtpParser struct {
	file      string
	lineNo    int
	section   string
	types     BondedTypes
	typesSeen bool
	current   *preResidue
	pre       []*preResidue
}

func (p *rtpParser) errorf(format string, args ...any) error {
	return &GrammarError{
		File:    p.file,
		Line:    p.lineNo,
		Section: p.section,
		Msg:     fmt.Sprintf(format, args...),
	}
}

func (p *rtpParser) processLine(raw string) error {
	line := strings.TrimSpace(stripComment(raw))
	if line == "" {
		return nil
	}

	if name, ok := sectionHeader(line); ok {
		return p.enterSection(name)
	}

	return p.contentLine(line)
}

func (p *rtpParser) enterSection(rawName string) error {
	name := strings.ToLower(rawName)

	switch {
	case name == secBondedTypes:
		if p.current != nil {
			return p.errorf("[ bondedtypes ] must precede the first residue")
		}

		p.section = name
	case name == "atoms" || rtpBondedAtoms[name] > 0:
		if p.current == nil {
			return p.errorf("section [%s] outside a residue", name)
		}

		p.section = name
	default:
		// Any other header opens a residue. Residue names keep their case.
		p.current = &preResidue{
			name:         rawName,
			nodes:        map[string]molecule.Attributes{},
			interactions: map[string][]rtpInteraction{},
			decl:         len(p.pre),
		}
		p.pre = append(p.pre, p.current)
		p.section = ""
	}

	return nil
}

func (p *rtpParser) contentLine(line string) error {
	fields := strings.Fields(line)

	switch {
	case p.section == secBondedTypes:
		return p.bondedTypesLine(fields)
	case p.section == "atoms":
		return p.atomLine(fields)
	case rtpBondedAtoms[p.section] > 0:
		return p.bondedLine(fields)
	default:
		return p.errorf("content outside any section")
	}
}

func (p *rtpParser) bondedTypesLine(fields []string) error {
	if p.typesSeen {
		return p.errorf("[ bondedtypes ] holds a single line")
	}

	p.typesSeen = true

	slots := []*int{
		&p.types.Bonds, &p.types.Angles, &p.types.Dihedrals, &p.types.Impropers,
		&p.types.AllDihedrals, &p.types.Nrexcl, &p.types.HH14, &p.types.RemoveDih,
	}

	if len(fields) > len(slots) {
		return p.errorf("expected at most %d bonded-type columns, got %d", len(slots), len(fields))
	}

	for i, field := range fields {
		val, err := strconv.Atoi(field)
		if err != nil {
			return p.errorf("bonded-type column %d is not a number: %q", i+1, field)
		}

		*slots[i] = val
	}

	return nil
}

func (p *rtpParser) atomLine(fields []string) error {
	if len(fields) != 4 {
		return p.errorf("expected atom name, type, charge, and charge group, got %d fields", len(fields))
	}

	charge, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return p.errorf("charge %q is not a number", fields[2])
	}

	group, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return p.errorf("charge group %q is not a number", fields[3])
	}

	attrs := molecule.Attributes{
		molecule.KeyAtomName:    molecule.String(fields[0]),
		molecule.KeyAtomType:    molecule.String(fields[1]),
		molecule.KeyCharge:      molecule.Float(charge),
		molecule.KeyChargeGroup: molecule.Int(group),
	}

	p.current.atoms = append(p.current.atoms, molecule.ResidueAtom{Name: fields[0], Attrs: attrs})
	p.current.ensureNode(fields[0], attrs)

	return nil
}

func (p *rtpParser) bondedLine(fields []string) error {
	count := rtpBondedAtoms[p.section]
	if len(fields) < count {
		return p.errorf("expected at least %d atoms, got %d fields", count, len(fields))
	}

	atoms := make([]orderedAtom, 0, count)

	for _, token := range fields[:count] {
		atom, err := parseOrderedAtom(token)
		if err != nil {
			return p.errorf("%s", err)
		}

		atoms = append(atoms, atom)
		p.current.ensureNode(atom.token, nil)
	}

	p.current.interactions[p.section] = append(p.current.interactions[p.section], rtpInteraction{
		atoms:  atoms,
		params: append([]string(nil), fields[count:]...),
	})

	return nil
}

// parseOrderedAtom decodes the +/- neighbor prefix of an interaction atom:
// +N is the next residue's N, -C the previous residue's C.
func parseOrderedAtom(token string) (orderedAtom, error) {
	order := 0
	rest := token

	switch {
	case strings.HasPrefix(token, "+"):
		rest = strings.TrimLeft(token, "+")
		order = len(token) - len(rest)
	case strings.HasPrefix(token, "-"):
		rest = strings.TrimLeft(token, "-")
		order = -(len(token) - len(rest))
	}

	if rest == "" {
		return orderedAtom{}, fmt.Errorf("atom token %q has no name", token)
	}

	return orderedAtom{token: token, name: rest, order: order}, nil
}

func (p *rtpParser) finish() (*RTPLibrary, error) {
	lib := &RTPLibrary{BondedTypes: p.types}

	for _, pre := range p.pre {
		completeResidue(pre, p.types)

		residue, links := splitResidue(pre, p.types.Nrexcl, len(lib.Links))
		lib.Residues = append(lib.Residues, residue)
		lib.Links = append(lib.Links, links...)
	}

	return lib, nil
}

// completeResidue derives the connectivity implied by the interactions and
// injects the bonded function type as the leading parameter of each
// interaction.
func completeResidue(pre *preResidue, types BondedTypes) {
	for _, kind := range rtpInteractionKinds {
		for i := range pre.interactions[kind] {
			inter := &pre.interactions[kind][i]

			for _, edge := range chainEdges(kind, inter.tokens()) {
				pre.addEdge(edge[0], edge[1])
			}

			inter.params = append([]string{strconv.Itoa(types.funcType(kind))}, inter.params...)
		}
	}
}

// chainEdges derives the implied connectivity of an interaction: bonds link
// their two atoms, angles and dihedrals link consecutive atoms. Impropers,
// cmap, and exclusions imply no connectivity.
func chainEdges(kind string, atoms []string) [][2]string {
	switch kind {
	case "bonds":
		return [][2]string{{atoms[0], atoms[1]}}
	case "angles", "dihedrals":
		edges := make([][2]string, 0, len(atoms)-1)
		for i := 0; i+1 < len(atoms); i++ {
			edges = append(edges, [2]string{atoms[i], atoms[i+1]})
		}

		return edges
	default:
		return nil
	}
}

// splitResidue separates a completed residue into its intra-residue template
// and one link per interaction that reaches a neighbor.
func splitResidue(pre *preResidue, nrexcl, declBase int) (*molecule.Residue, []*molecule.Link) {
	residue := &molecule.Residue{
		Name:         pre.name,
		Interactions: map[string][]molecule.Interaction{},
		Nrexcl:       nrexcl,
		DeclIndex:    pre.decl,
	}

	// Template atoms are the order-0 nodes, declared or not, each stamped
	// with the residue name.
	for _, token := range pre.nodeOrder {
		if strings.HasPrefix(token, "+") || strings.HasPrefix(token, "-") {
			continue
		}

		attrs := pre.nodes[token].Clone()
		if attrs == nil {
			attrs = molecule.Attributes{}
		}

		if _, ok := attrs[molecule.KeyAtomName]; !ok {
			attrs[molecule.KeyAtomName] = molecule.String(token)
		}

		attrs[molecule.KeyResName] = molecule.String(pre.name)

		residue.Atoms = append(residue.Atoms, molecule.ResidueAtom{Name: token, Attrs: attrs})
	}

	var links []*molecule.Link

	for _, kind := range rtpInteractionKinds {
		for _, inter := range pre.interactions[kind] {
			if !inter.spansNeighbor() {
				residue.Interactions[kind] = append(residue.Interactions[kind], molecule.Interaction{
					Atoms:      inter.tokens(),
					Parameters: inter.params,
				})

				continue
			}

			if link := buildLink(pre, inter.tokens()); link != nil {
				link.DeclIndex = declBase + len(links)
				links = append(links, link)
			}
		}
	}

	for _, edge := range pre.edges {
		_, okA := residue.Atom(edge[0])
		_, okB := residue.Atom(edge[1])

		if okA && okB {
			residue.AddEdge(edge[0], edge[1])
		}
	}

	return residue, links
}

// buildLink extracts the subgraph spanned by one neighbor-reaching
// interaction, together with every interaction living fully inside it that
// also reaches a neighbor. Returns nil when the subgraph is disconnected.
func buildLink(pre *preResidue, tokens []string) *molecule.Link {
	member := map[string]bool{}
	for _, token := range tokens {
		member[token] = true
	}

	link := &molecule.Link{
		Resname:      pre.name,
		Interactions: map[string][]molecule.Interaction{},
	}

	for _, token := range pre.nodeOrder {
		if !member[token] {
			continue
		}

		atom, err := parseOrderedAtom(token)
		if err != nil {
			continue
		}

		attrs := molecule.Attributes{
			molecule.KeyAtomName: molecule.String(atom.name),
			molecule.KeyOrder:    molecule.Int(int64(atom.order)),
		}

		if atom.order == 0 {
			attrs[molecule.KeyResName] = molecule.String(pre.name)
		}

		link.Atoms = append(link.Atoms, molecule.LinkAtom{
			Name:  token,
			Order: atom.order,
			Attrs: attrs,
		})
	}

	for _, edge := range pre.edges {
		if member[edge[0]] && member[edge[1]] {
			link.Edges = append(link.Edges, edge)
		}
	}

	if !link.Connected() {
		return nil
	}

	for _, kind := range rtpInteractionKinds {
		for _, inter := range pre.interactions[kind] {
			if !inter.spansNeighbor() || !insideLink(inter, member) {
				continue
			}

			link.Interactions[kind] = append(link.Interactions[kind], molecule.Interaction{
				Atoms:      inter.tokens(),
				Parameters: inter.params,
			})
		}
	}

	return link
}

func insideLink(inter rtpInteraction, member map[string]bool) bool {
	for _, atom := range inter.atoms {
		if !member[atom.token] {
			return false
		}
	}

	return true
}
