package grammar

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coarsen-md/coarsen/pkg/molecule"
)

const alanineRTPText = `
[ bondedtypes ]
; bonds angles dihedrals impropers all_dih nrexcl HH14 remove_dih
    1      5       9         2        1       3     1       0

[ ALA ]
 [ atoms ]
    N    NH1   -0.47  0
   CA    CT1    0.07  1
    C      C    0.51  2
 [ bonds ]
    N   CA
   CA    C
    C   +N
 [ angles ]
    N   CA    C
`

func parseRTPText(t *testing.T, text string) *RTPLibrary {
	t.Helper()

	lib, err := ParseRTP(strings.NewReader(text), "test.rtp")
	require.NoError(t, err)

	return lib
}

func TestParseRTPBondedTypes(t *testing.T) {
	t.Parallel()

	lib := parseRTPText(t, alanineRTPText)

	assert.Equal(t, 1, lib.BondedTypes.Bonds)
	assert.Equal(t, 5, lib.BondedTypes.Angles)
	assert.Equal(t, 9, lib.BondedTypes.Dihedrals)
	assert.Equal(t, 2, lib.BondedTypes.Impropers)
	assert.Equal(t, 3, lib.BondedTypes.Nrexcl)
	assert.Equal(t, 0, lib.BondedTypes.RemoveDih)
}

func TestParseRTPBondedTypesDefaults(t *testing.T) {
	t.Parallel()

	lib := parseRTPText(t, "[ GLY ]\n [ atoms ]\n  CA CT2 0.0 0\n")

	assert.Equal(t, defaultBondedTypes(), lib.BondedTypes)
}

func TestParseRTPResidueTemplate(t *testing.T) {
	t.Parallel()

	lib := parseRTPText(t, alanineRTPText)

	require.Len(t, lib.Residues, 1)

	res, ok := lib.Residue("ALA")
	require.True(t, ok)

	// Three declared atoms; the +N neighbor never enters the template.
	require.Len(t, res.Atoms, 3)
	assert.Equal(t, "N", res.Atoms[0].Name)
	assert.Equal(t, 3, res.Nrexcl)

	n := res.Atoms[0].Attrs
	assert.Equal(t, "NH1", n[molecule.KeyAtomType].Str())
	assert.InDelta(t, -0.47, n[molecule.KeyCharge].Num(), 1e-12)
	assert.Equal(t, int64(0), n[molecule.KeyChargeGroup].Intv())
	assert.Equal(t, "ALA", n[molecule.KeyResName].Str())

	// Intra-residue edges only: N-CA, CA-C.
	assert.Len(t, res.Edges, 2)
}

func TestParseRTPInjectsFunctionTypes(t *testing.T) {
	t.Parallel()

	lib := parseRTPText(t, alanineRTPText)

	res, _ := lib.Residue("ALA")

	bonds := res.Interactions["bonds"]
	require.Len(t, bonds, 2, "the +N bond leaves the template")
	assert.Equal(t, []string{"1"}, bonds[0].Parameters)

	angles := res.Interactions["angles"]
	require.Len(t, angles, 1)
	assert.Equal(t, []string{"5"}, angles[0].Parameters)
}

func TestParseRTPSplitsNeighborBondIntoLink(t *testing.T) {
	t.Parallel()

	lib := parseRTPText(t, alanineRTPText)

	require.Len(t, lib.Links, 1)
	link := lib.Links[0]

	assert.Equal(t, "ALA", link.Resname)
	require.Len(t, link.Atoms, 2)

	assert.Equal(t, "C", link.Atoms[0].Name)
	assert.Equal(t, 0, link.Atoms[0].Order)
	assert.Equal(t, "+N", link.Atoms[1].Name)
	assert.Equal(t, 1, link.Atoms[1].Order)

	// The inter-residue atom carries no resname; it belongs to the neighbor.
	_, hasRes := link.Atoms[1].Attrs[molecule.KeyResName]
	assert.False(t, hasRes)

	require.Len(t, link.Interactions["bonds"], 1)
	assert.Equal(t, []string{"C", "+N"}, link.Interactions["bonds"][0].Atoms)
}

func TestParseRTPOrderedAtomPrefixes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		token string
		name  string
		order int
	}{
		{"N", "N", 0},
		{"+N", "N", 1},
		{"-C", "C", -1},
		{"++CA", "CA", 2},
		{"--CA", "CA", -2},
	}

	for _, tt := range tests {
		atom, err := parseOrderedAtom(tt.token)
		require.NoError(t, err, tt.token)
		assert.Equal(t, tt.name, atom.name, tt.token)
		assert.Equal(t, tt.order, atom.order, tt.token)
	}

	_, err := parseOrderedAtom("+")
	require.Error(t, err)
}

func TestParseRTPErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "bondedtypes after a residue",
			text: "[ ALA ]\n [ atoms ]\n N NH1 0.0 0\n[ bondedtypes ]\n1\n",
			want: "must precede",
		},
		{
			name: "atoms outside a residue",
			text: "[ atoms ]\n N NH1 0.0 0\n",
			want: "outside a residue",
		},
		{
			name: "bad charge",
			text: "[ ALA ]\n [ atoms ]\n N NH1 heavy 0\n",
			want: "is not a number",
		},
		{
			name: "short bond line",
			text: "[ ALA ]\n [ atoms ]\n N NH1 0.0 0\n [ bonds ]\n N\n",
			want: "expected at least 2 atoms",
		},
		{
			name: "content before any section",
			text: "N NH1 0.0 0\n",
			want: "outside any section",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseRTP(strings.NewReader(tt.text), "bad.rtp")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			var gerr *GrammarError
			assert.ErrorAs(t, err, &gerr)
		})
	}
}

func TestParseRTPDisconnectedLinkIsDropped(t *testing.T) {
	t.Parallel()

	// An exclusion spanning a neighbor implies no connectivity, so its
	// two-atom pattern never forms a connected link.
	text := "[ ALA ]\n [ atoms ]\n N NH1 0.0 0\n [ exclusions ]\n N +CB\n"

	lib := parseRTPText(t, text)
	assert.Empty(t, lib.Links)
}
