package grammar

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coarsen-md/coarsen/pkg/molecule"
)

const backboneRules = `
; alanine backbone, three heavy atoms into one bead
[ block ]
ALA-backbone
[ from ]
charmm36
[ to ]
martini3
[ from blocks ]
ALA
[ to blocks ]
ALA
[ from nodes ]
N  {"element": "N"}
CA {"element": "C"}
C  {"element": "C"}
[ from edges ]
N CA
CA C
[ mapping ]
N  BB
CA BB 2.0
C  BB
[ reference atoms ]
BB CA
`

func parseText(t *testing.T, text string) *Library {
	t.Helper()

	lib, err := ParseRules(strings.NewReader(text), "test.rules")
	require.NoError(t, err)

	return lib
}

func TestParseBlock(t *testing.T) {
	t.Parallel()

	lib := parseText(t, backboneRules)

	require.Len(t, lib.Blocks, 1)
	block := lib.Blocks[0]

	assert.Equal(t, "ALA-backbone", block.Name)
	assert.Equal(t, "charmm36", block.FromFF)
	assert.Equal(t, "martini3", block.ToFF)
	assert.Equal(t, []string{"ALA"}, block.FromBlocks)
	assert.Equal(t, []string{"ALA"}, block.ToBlocks)

	require.Len(t, block.FromNodes, 3)
	assert.Equal(t, molecule.FromRef{Name: "CA"}, block.FromNodes[1].Ref)
	assert.True(t, block.FromNodes[1].Match.Equal(molecule.Attributes{
		molecule.KeyElement: molecule.String("C"),
	}))

	require.Len(t, block.FromEdges, 2)
	assert.Equal(t, molecule.FromRef{Name: "N"}, block.FromEdges[0].A)

	require.Len(t, block.Mapping, 3)
	assert.InDelta(t, 1.0, block.Mapping[0].Weight, 1e-12)
	assert.InDelta(t, 2.0, block.Mapping[1].Weight, 1e-12)

	ref, ok := block.Reference("BB")
	require.True(t, ok)
	assert.Equal(t, molecule.FromRef{Name: "CA"}, ref)
}

func TestParseHeadersAreCaseInsensitive(t *testing.T) {
	t.Parallel()

	lib := parseText(t, `
[ BLOCK ]
upper
[ FROM NODES ]
CA
`)

	require.Len(t, lib.Blocks, 1)
	assert.Equal(t, "upper", lib.Blocks[0].Name)
	require.Len(t, lib.Blocks[0].FromNodes, 1)
}

func TestParseCommentsAndBlankLines(t *testing.T) {
	t.Parallel()

	lib := parseText(t, `
; leading comment
[ block ] ; trailing comment
commented   ; record name

[ from nodes ]
CA {"resname": "AL;A"} ; semicolon inside a string survives
`)

	require.Len(t, lib.Blocks, 1)
	block := lib.Blocks[0]

	assert.Equal(t, "commented", block.Name)
	require.Len(t, block.FromNodes, 1)
	assert.True(t, block.FromNodes[0].Match[molecule.KeyResName].Equal(molecule.String("AL;A")))
}

func TestParseCrossResidueReferences(t *testing.T) {
	t.Parallel()

	lib := parseText(t, `
[ block ]
cys-bridge
[ from blocks ]
CYS CYS
[ from nodes ]
0:SG
1:SG
[ from edges ]
0:SG 1:SG
[ mapping ]
0:SG SC1
1:SG SC1
`)

	block := lib.Blocks[0]

	require.Len(t, block.FromNodes, 2)
	assert.Equal(t, molecule.FromRef{Residue: 1, Name: "SG"}, block.FromNodes[1].Ref)
}

func TestParseChoicePredicate(t *testing.T) {
	t.Parallel()

	lib := parseText(t, `
[ block ]
choice
[ from nodes ]
HN {"atomname": "HN|H1|H2"}
`)

	val := lib.Blocks[0].FromNodes[0].Match[molecule.KeyAtomName]

	assert.Equal(t, molecule.KindChoice, val.Kind())
	assert.Equal(t, []string{"HN", "H1", "H2"}, val.Members())
}

func TestParseModification(t *testing.T) {
	t.Parallel()

	lib := parseText(t, `
[ modification ]
C-ter
[ atoms ]
OXT {"PTM_atom": true, "element": "O"}
O   {"replace": {"atomname": null}}
C
[ edges ]
C OXT
C O
`)

	require.Len(t, lib.Modifications, 1)
	mod := lib.Modifications[0]

	assert.Equal(t, "C-ter", mod.Name)
	require.Len(t, mod.Atoms, 3)

	oxt, ok := mod.Atom("OXT")
	require.True(t, ok)
	assert.True(t, oxt.PTM)
	assert.True(t, oxt.Match.Equal(molecule.Attributes{
		molecule.KeyAtomName: molecule.String("OXT"),
		molecule.KeyElement:  molecule.String("O"),
	}), "the atom name becomes an implicit atomname predicate")

	o, ok := mod.Atom("O")
	require.True(t, ok)
	assert.True(t, o.Replace.Equal(molecule.Attributes{
		molecule.KeyAtomName: molecule.Absent(),
	}))
	assert.False(t, o.PTM)
	assert.False(t, o.Subtractive())

	require.Len(t, mod.Edges, 2)
}

func TestParseModificationEdgeMayNameAnchor(t *testing.T) {
	t.Parallel()

	lib := parseText(t, `
[ modification ]
N-ter-H
[ atoms ]
H1 {"PTM_atom": true}
[ edges ]
N H1
`)

	mod := lib.Modifications[0]

	assert.Equal(t, []string{"N"}, mod.AnchorNames())
}

func TestParseMacros(t *testing.T) {
	t.Parallel()

	lib := parseText(t, `
[ macros ]
protH HN|H1|H2
anyProt $protH|H3

[ block ]
macro-use
[ from nodes ]
HN {"atomname": "$anyProt"}
`)

	val := lib.Blocks[0].FromNodes[0].Match[molecule.KeyAtomName]

	assert.Equal(t, []string{"HN", "H1", "H2", "H3"}, val.Members())

	expanded, ok := lib.Macros.Lookup("anyProt")
	require.True(t, ok)
	assert.Equal(t, "HN|H1|H2|H3", expanded)
}

func TestParseMacroSelfReferenceFails(t *testing.T) {
	t.Parallel()

	_, err := ParseRules(strings.NewReader(`
[ macros ]
loop $loop|X
`), "test.rules")
	require.Error(t, err)

	var macroErr *MacroError
	require.ErrorAs(t, err, &macroErr)
	assert.Equal(t, "loop", macroErr.Name)
}

func TestParseUndefinedMacroFails(t *testing.T) {
	t.Parallel()

	_, err := ParseRules(strings.NewReader(`
[ block ]
bad
[ from nodes ]
HN {"atomname": "$missing"}
`), "test.rules")

	var macroErr *MacroError
	require.ErrorAs(t, err, &macroErr)
	assert.Equal(t, "missing", macroErr.Name)
}

func TestMacroTableCycleDetection(t *testing.T) {
	t.Parallel()

	table := NewMacroTable()
	require.NoError(t, table.Define("a", "x"))

	// Smuggle a mutual reference past definition-time expansion.
	table.defs["b"] = "$c"
	table.defs["c"] = "$b"

	_, err := table.Expand("$b")

	var macroErr *MacroError
	require.ErrorAs(t, err, &macroErr)
	assert.Contains(t, macroErr.Msg, "cyclic")
}

func TestGrammarErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "section outside record",
			text: "[ from nodes ]\nCA\n",
			want: "outside a block record",
		},
		{
			name: "modification section inside block",
			text: "[ block ]\nx\n[ atoms ]\nCA\n",
			want: "outside a modification record",
		},
		{
			name: "unknown section",
			text: "[ bogus ]\n",
			want: "unknown section",
		},
		{
			name: "edge references undeclared atom",
			text: "[ block ]\nx\n[ from nodes ]\nN\n[ from edges ]\nN CA\n",
			want: "undeclared atom",
		},
		{
			name: "mapping references undeclared atom",
			text: "[ block ]\nx\n[ from nodes ]\nN\n[ mapping ]\nCA BB\n",
			want: "undeclared atom",
		},
		{
			name: "residue index out of range",
			text: "[ block ]\nx\n[ from blocks ]\nALA\n[ from nodes ]\n1:SG\n[ mapping ]\n1:SG SC1\n",
			want: "outside the from list",
		},
		{
			name: "malformed attribute object",
			text: "[ block ]\nx\n[ from nodes ]\nCA {\"resname\": }\n",
			want: "malformed attribute object",
		},
		{
			name: "unbalanced attribute object",
			text: "[ block ]\nx\n[ from nodes ]\nCA {\"resname\": \"ALA\"\n",
			want: "unbalanced braces",
		},
		{
			name: "nested object outside replace",
			text: "[ block ]\nx\n[ from nodes ]\nCA {\"resname\": {\"deep\": 1}}\n",
			want: "nested objects",
		},
		{
			name: "replace on a block node",
			text: "[ block ]\nx\n[ from nodes ]\nCA {\"replace\": {\"atomname\": null}}\n",
			want: "replace is only allowed",
		},
		{
			name: "missing record name",
			text: "[ block ]\n[ from nodes ]\nCA\n",
			want: "record name is missing",
		},
		{
			name: "duplicate from node",
			text: "[ block ]\nx\n[ from nodes ]\nCA\nCA\n",
			want: "duplicate from-node",
		},
		{
			name: "negative mapping weight",
			text: "[ block ]\nx\n[ from nodes ]\nCA\n[ mapping ]\nCA BB -1\n",
			want: "must be positive",
		},
		{
			name: "modification without atoms",
			text: "[ modification ]\nempty\n",
			want: "declares no atoms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseRules(strings.NewReader(tt.text), "test.rules")
			require.Error(t, err)

			var gramErr *GrammarError
			require.True(t, errors.As(err, &gramErr), "expected a GrammarError, got %v", err)
			assert.Contains(t, gramErr.Msg, tt.want)
			assert.Equal(t, "test.rules", gramErr.File)
			assert.Positive(t, gramErr.Line)
		})
	}
}

func TestGrammarErrorMentionsPosition(t *testing.T) {
	t.Parallel()

	_, err := ParseRules(strings.NewReader("[ block ]\nx\n[ from nodes ]\nCA {bad}\n"), "residues.rules")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "residues.rules:4")
	assert.Contains(t, err.Error(), "[from nodes]")
}

func TestDeclarationOrderIsSharedAcrossRecordKinds(t *testing.T) {
	t.Parallel()

	lib := parseText(t, `
[ block ]
first
[ from nodes ]
CA

[ modification ]
second
[ atoms ]
CA

[ block ]
third
[ from nodes ]
CA
`)

	require.Len(t, lib.Blocks, 2)
	require.Len(t, lib.Modifications, 1)
	assert.Equal(t, 0, lib.Blocks[0].DeclIndex)
	assert.Equal(t, 1, lib.Modifications[0].DeclIndex)
	assert.Equal(t, 2, lib.Blocks[1].DeclIndex)
}
