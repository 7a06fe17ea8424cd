package ffcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coarsen-md/coarsen/pkg/forcefield"
	"github.com/coarsen-md/coarsen/pkg/molecule"
)

func sampleForceField() *forcefield.ForceField {
	ff := forcefield.New("martini3")
	ff.Description = "cached library"

	ff.Blocks = append(ff.Blocks, &molecule.Block{
		Name:       "ALA",
		FromBlocks: []string{"ALA"},
		FromNodes: []molecule.BlockAtom{
			{
				Ref:   molecule.FromRef{Name: "CA"},
				Match: molecule.Attributes{molecule.KeyElement: molecule.String("C")},
			},
		},
		Mapping: []molecule.Assignment{
			{Source: molecule.FromRef{Name: "CA"}, Bead: "BB", Weight: 1},
		},
		DeclIndex: 0,
	})

	ff.Modifications = append(ff.Modifications, &molecule.Modification{
		Name: "C-ter",
		Atoms: []molecule.ModAtom{
			{
				Name:    "OXT",
				Match:   molecule.Attributes{molecule.KeyAtomName: molecule.String("OXT")},
				Replace: molecule.Attributes{molecule.KeyCharge: molecule.Absent()},
				PTM:     true,
			},
		},
		DeclIndex: 1,
	})

	return ff
}

func TestCacheRoundTrip(t *testing.T) {
	t.Parallel()

	cache := New(t.TempDir(), nil)
	ff := sampleForceField()

	cache.Store("key-1", ff)

	got, ok := cache.Load("key-1")
	require.True(t, ok)

	assert.Equal(t, "martini3", got.Name)
	assert.Equal(t, "cached library", got.Description)
	require.Len(t, got.Blocks, 1)
	require.Len(t, got.Modifications, 1)

	block := got.Blocks[0]
	assert.Equal(t, "ALA", block.Name)
	assert.True(t, block.FromNodes[0].Match.Equal(molecule.Attributes{
		molecule.KeyElement: molecule.String("C"),
	}), "tagged attribute values survive the codec")

	mod := got.Modifications[0]
	assert.True(t, mod.Atoms[0].Replace[molecule.KeyCharge].IsAbsent(), "absent markers survive the codec")
	assert.True(t, mod.Atoms[0].Subtractive())
}

func TestCacheMissOnUnknownKey(t *testing.T) {
	t.Parallel()

	cache := New(t.TempDir(), nil)

	_, ok := cache.Load("never-stored")
	assert.False(t, ok)
}

func TestCacheCorruptEntryIsRemoved(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cache := New(dir, nil)

	path := filepath.Join(dir, "bad"+cacheExt)
	require.NoError(t, os.WriteFile(path, []byte("not lz4 at all"), 0o644))

	_, ok := cache.Load("bad")
	assert.False(t, ok)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "the corrupt entry is deleted on miss")
}

func TestCacheStoreCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "cache")
	cache := New(dir, nil)

	cache.Store("key", sampleForceField())

	_, ok := cache.Load("key")
	assert.True(t, ok)
}

func TestFingerprintTracksDirectoryContent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "rules.ff")
	require.NoError(t, os.WriteFile(file, []byte("[ block ]\nX\n"), 0o644))

	before, err := Fingerprint(dir)
	require.NoError(t, err)

	again, err := Fingerprint(dir)
	require.NoError(t, err)
	assert.Equal(t, before, again, "an unchanged directory keeps its key")

	// Push the mtime forward so size-preserving edits still change the key.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(file, future, future))

	after, err := Fingerprint(dir)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestFingerprintMissingDirectory(t *testing.T) {
	t.Parallel()

	_, err := Fingerprint(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}
