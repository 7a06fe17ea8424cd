package grammar

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/coarsen-md/coarsen/pkg/molecule"
)

// FormatRules renders the library in canonical rule-file form: records in
// declaration order, macros fully expanded, attribute keys sorted. Parsing
// the output reproduces the library record for record.
func FormatRules(lib *Library) string {
	type record struct {
		decl  int
		write func(*strings.Builder)
	}

	records := make([]record, 0, lib.RecordCount())

	for _, block := range lib.Blocks {
		records = append(records, record{decl: block.DeclIndex, write: func(sb *strings.Builder) {
			writeBlock(sb, block)
		}})
	}

	for _, mod := range lib.Modifications {
		records = append(records, record{decl: mod.DeclIndex, write: func(sb *strings.Builder) {
			writeModification(sb, mod)
		}})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].decl < records[j].decl })

	var sb strings.Builder

	for i, rec := range records {
		if i > 0 {
			sb.WriteString("\n")
		}

		rec.write(&sb)
	}

	return sb.String()
}

// WriteRules writes the canonical form of the library to w.
func WriteRules(w io.Writer, lib *Library) error {
	_, err := io.WriteString(w, FormatRules(lib))

	return err
}

func writeBlock(sb *strings.Builder, block *molecule.Block) {
	sb.WriteString("[ block ]\n")
	sb.WriteString(block.Name + "\n")

	if block.FromFF != "" {
		sb.WriteString("[ from ]\n" + block.FromFF + "\n")
	}

	if block.ToFF != "" {
		sb.WriteString("[ to ]\n" + block.ToFF + "\n")
	}

	writeNameList(sb, "from blocks", block.FromBlocks)
	writeNameList(sb, "to blocks", block.ToBlocks)
	writeFromNodes(sb, block.FromNodes)
	writeFromEdges(sb, block.FromEdges)
	writeMapping(sb, block.Mapping)
	writeReferences(sb, block.References)
}

func writeNameList(sb *strings.Builder, section string, names []string) {
	if len(names) == 0 {
		return
	}

	sb.WriteString("[ " + section + " ]\n")
	sb.WriteString(strings.Join(names, " ") + "\n")
}

func writeFromNodes(sb *strings.Builder, atoms []molecule.BlockAtom) {
	if len(atoms) == 0 {
		return
	}

	sb.WriteString("[ from nodes ]\n")

	for _, atom := range atoms {
		sb.WriteString(atom.Ref.String())

		if object := formatAttributes(atom.Match); object != "" {
			sb.WriteString(" " + object)
		}

		sb.WriteString("\n")
	}
}

func writeFromEdges(sb *strings.Builder, edges []molecule.BlockEdge) {
	if len(edges) == 0 {
		return
	}

	sb.WriteString("[ from edges ]\n")

	for _, edge := range edges {
		sb.WriteString(edge.A.String() + " " + edge.B.String())

		if object := formatAttributes(edge.Attrs); object != "" {
			sb.WriteString(" " + object)
		}

		sb.WriteString("\n")
	}
}

func writeMapping(sb *strings.Builder, mapping []molecule.Assignment) {
	if len(mapping) == 0 {
		return
	}

	sb.WriteString("[ mapping ]\n")

	for _, asn := range mapping {
		sb.WriteString(asn.Source.String() + " " + asn.Bead)

		if asn.Weight != defaultMappingWeight {
			sb.WriteString(" " + strconv.FormatFloat(asn.Weight, 'g', -1, 64))
		}

		sb.WriteString("\n")
	}
}

func writeReferences(sb *strings.Builder, refs map[string]molecule.FromRef) {
	if len(refs) == 0 {
		return
	}

	sb.WriteString("[ reference atoms ]\n")

	beads := make([]string, 0, len(refs))
	for bead := range refs {
		beads = append(beads, bead)
	}

	sort.Strings(beads)

	for _, bead := range beads {
		sb.WriteString(bead + " " + refs[bead].String() + "\n")
	}
}

func writeModification(sb *strings.Builder, mod *molecule.Modification) {
	sb.WriteString("[ modification ]\n")
	sb.WriteString(mod.Name + "\n")
	sb.WriteString("[ atoms ]\n")

	for _, atom := range mod.Atoms {
		sb.WriteString(atom.Name)

		if object := formatModAtom(atom); object != "" {
			sb.WriteString(" " + object)
		}

		sb.WriteString("\n")
	}

	if len(mod.Edges) > 0 {
		sb.WriteString("[ edges ]\n")

		for _, edge := range mod.Edges {
			sb.WriteString(edge.A + " " + edge.B)

			if object := formatAttributes(edge.Attrs); object != "" {
				sb.WriteString(" " + object)
			}

			sb.WriteString("\n")
		}
	}
}

// formatModAtom renders the combined attribute object of a modification
// atom. An object carrying nothing beyond the implicit atomname predicate is
// elided entirely.
func formatModAtom(atom molecule.ModAtom) string {
	implicitOnly := len(atom.Match) == 1 &&
		atom.Match[molecule.KeyAtomName].Equal(molecule.String(atom.Name)) &&
		!atom.PTM && len(atom.Replace) == 0

	if implicitOnly {
		return ""
	}

	var pairs []string

	for _, key := range atom.Match.SortedKeys() {
		pairs = append(pairs, renderPair(key, atom.Match[key]))
	}

	if atom.PTM {
		pairs = append(pairs, fmt.Sprintf("%q: true", molecule.KeyPTM))
	}

	if len(atom.Replace) > 0 {
		var inner []string
		for _, key := range atom.Replace.SortedKeys() {
			inner = append(inner, renderPair(key, atom.Replace[key]))
		}

		pairs = append(pairs, fmt.Sprintf("%q: {%s}", "replace", strings.Join(inner, ", ")))
	}

	return "{" + strings.Join(pairs, ", ") + "}"
}

// formatAttributes renders a predicate map as a JSON object with sorted
// keys, or "" when there is nothing to say.
func formatAttributes(attrs molecule.Attributes) string {
	if len(attrs) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(attrs))
	for _, key := range attrs.SortedKeys() {
		pairs = append(pairs, renderPair(key, attrs[key]))
	}

	return "{" + strings.Join(pairs, ", ") + "}"
}

func renderPair(key string, val molecule.Value) string {
	data, err := val.MarshalJSON()
	if err != nil {
		data = []byte("null")
	}

	return fmt.Sprintf("%q: %s", key, data)
}
