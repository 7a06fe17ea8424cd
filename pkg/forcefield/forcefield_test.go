package forcefield

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coarsen-md/coarsen/pkg/molecule"
)

const alaRules = `
[ block ]
ALA
[ from blocks ]
ALA
[ from nodes ]
N
CA
C
[ from edges ]
N CA
CA C
[ mapping ]
N  BB
CA BB
C  BB

[ modification ]
C-ter
[ atoms ]
OXT {"PTM_atom": true}
[ edges ]
C OXT
`

const glyRules = `
[ block ]
GLY
[ from blocks ]
GLY
[ from nodes ]
CA
[ mapping ]
CA BB
`

const alanineRTP = `
[ bondedtypes ]
1 5 9 4 0 3 1 0

[ ALA ]
 [ atoms ]
  N   NH1  -0.47  0
  CA  CT1   0.07  1
 [ bonds ]
  N  CA
  C +N
`

func writeDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	return dir
}

func TestLoadDirectoryDispatchesByExtension(t *testing.T) {
	t.Parallel()

	dir := writeDir(t, map[string]string{
		"proteins.ff":   alaRules,
		"aminoacids.rtp": alanineRTP,
		"metadata.yaml": "name: martini3\ndescription: test library\ncitations: [\"doi:1\"]\n",
		"notes.txt":     "not a rule file",
	})

	ff, err := LoadDirectory(dir, nil)
	require.NoError(t, err)

	assert.Equal(t, "martini3", ff.Name)
	assert.Equal(t, "test library", ff.Description)
	assert.Equal(t, []string{"doi:1"}, ff.Citations)

	require.Len(t, ff.Blocks, 1)
	require.Len(t, ff.Modifications, 1)
	require.Len(t, ff.Residues, 1)
	require.Len(t, ff.Links, 1, "the +N bond splits into an inter-residue link")

	block, ok := ff.Block("ALA")
	require.True(t, ok)
	assert.Len(t, block.FromNodes, 3)

	residue, ok := ff.Residue("ALA")
	require.True(t, ok)
	assert.Equal(t, 3, residue.Nrexcl)
}

func TestLoadDirectoryDefaultsNameToDirectory(t *testing.T) {
	t.Parallel()

	dir := writeDir(t, map[string]string{"a.ff": glyRules})

	ff, err := LoadDirectory(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), ff.Name)
}

func TestLoadDirectoryOrdersDeclarationsAcrossFiles(t *testing.T) {
	t.Parallel()

	// Lexical file order decides tie-breaking rank: 01_ala.ff loads before
	// 02_gly.ff regardless of directory enumeration.
	dir := writeDir(t, map[string]string{
		"01_ala.ff": alaRules,
		"02_gly.ff": glyRules,
	})

	ff, err := LoadDirectory(dir, nil)
	require.NoError(t, err)
	require.Len(t, ff.Blocks, 2)

	ala, _ := ff.Block("ALA")
	cter, _ := ff.Modification("C-ter")
	gly, _ := ff.Block("GLY")

	assert.Equal(t, 0, ala.DeclIndex)
	assert.Equal(t, 1, cter.DeclIndex, "blocks and modifications share one ordering")
	assert.Equal(t, 2, gly.DeclIndex)
}

func TestLoadDirectoryPropagatesParseErrors(t *testing.T) {
	t.Parallel()

	dir := writeDir(t, map[string]string{"bad.ff": "[ bogus ]\n"})

	_, err := LoadDirectory(dir, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown section")
}

func TestLoadDirectoryMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadDirectory(filepath.Join(t.TempDir(), "nope"), nil)
	require.Error(t, err)
}

func TestMergeShiftsDeclarationIndices(t *testing.T) {
	t.Parallel()

	base := New("base")
	base.Blocks = append(base.Blocks, &molecule.Block{Name: "A", DeclIndex: 0})
	base.Modifications = append(base.Modifications, &molecule.Modification{Name: "M", DeclIndex: 1})

	extra := New("extra")
	extra.Blocks = append(extra.Blocks, &molecule.Block{Name: "B", DeclIndex: 0})
	extra.Residues = append(extra.Residues, &molecule.Residue{Name: "R"})

	base.Merge(extra)

	require.Len(t, base.Blocks, 2)
	assert.Equal(t, 2, base.Blocks[1].DeclIndex, "merged records rank after the base library")
	require.Len(t, base.Residues, 1)
	assert.Equal(t, 4, base.RecordCount())
}
