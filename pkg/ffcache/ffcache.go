// Package ffcache caches parsed force-field libraries on disk so repeated
// runs skip the rule-file grammar entirely. Entries are gob-encoded,
// LZ4-compressed, and keyed by a fingerprint of the source directory; a stale
// or unreadable entry falls back to parsing and is never an error.
package ffcache

import (
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/pierrec/lz4/v4"

	"github.com/coarsen-md/coarsen/pkg/forcefield"
)

// cacheExt marks cache entries on disk.
const cacheExt = ".ffc"

// Cache stores parsed libraries under one directory.
type Cache struct {
	dir    string
	logger *slog.Logger
}

// New returns a cache rooted at dir. The directory is created lazily on the
// first store.
func New(dir string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Cache{dir: dir, logger: logger}
}

// Fingerprint derives the cache key of a force-field directory from its file
// names, sizes, and modification times. Any change to the directory yields a
// new key, so entries never need invalidation.
func Fingerprint(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("fingerprint force-field directory: %w", err)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s\n", dir)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return "", fmt.Errorf("fingerprint %s: %w", entry.Name(), err)
		}

		fmt.Fprintf(h, "%s|%d|%d\n", entry.Name(), info.Size(), info.ModTime().UnixNano())
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Load returns the cached library for the given key, or false when no usable
// entry exists. Corrupt entries are removed and reported as misses.
func (c *Cache) Load(key string) (*forcefield.ForceField, bool) {
	path := c.entryPath(key)

	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer f.Close()

	var ff forcefield.ForceField
	if err := gob.NewDecoder(lz4.NewReader(f)).Decode(&ff); err != nil {
		c.logger.Debug("discarding corrupt force-field cache entry", "path", path, "err", err)
		_ = os.Remove(path)

		return nil, false
	}

	c.logger.Debug("force-field cache hit", "key", key, "records", ff.RecordCount())

	return &ff, true
}

// Store writes the library under the given key. The entry is written to a
// temporary file and renamed into place, so readers never observe a partial
// entry. Store failures are logged and swallowed: the cache is an
// optimization, not a dependency.
func (c *Cache) Store(key string, ff *forcefield.ForceField) {
	if err := c.store(key, ff); err != nil {
		c.logger.Debug("force-field cache store failed", "key", key, "err", err)
	}
}

func (c *Cache) store(key string, ff *forcefield.ForceField) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, "ffc-*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}

	zw := lz4.NewWriter(tmp)

	encodeErr := gob.NewEncoder(zw).Encode(ff)
	if encodeErr == nil {
		encodeErr = zw.Close()
	}

	closeErr := tmp.Close()

	if encodeErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())

		if encodeErr != nil {
			return fmt.Errorf("encode cache entry: %w", encodeErr)
		}

		return fmt.Errorf("close cache entry: %w", closeErr)
	}

	path := c.entryPath(key)
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("publish cache entry: %w", err)
	}

	if info, err := os.Stat(path); err == nil {
		c.logger.Debug("force-field cache stored",
			"key", key,
			"size", humanize.Bytes(uint64(info.Size())),
			"records", ff.RecordCount())
	}

	return nil
}

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, key+cacheExt)
}
