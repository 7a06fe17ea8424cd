package pdb

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"

	"github.com/coarsen-md/coarsen/pkg/molecule"
)

// ReadFile parses the PDB file at path. Regular files are memory-mapped for
// the duration of the parse; pipes and other irregular files fall back to a
// plain read.
func ReadFile(path string) (*molecule.System, error) {
	name := filepath.Base(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open structure file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat structure file: %w", err)
	}

	if !info.Mode().IsRegular() || info.Size() == 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read structure file: %w", err)
		}

		return Read(data, name)
	}

	mapped, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read structure file: %w", readErr)
		}

		return Read(data, name)
	}
	defer mapped.Unmap()

	return Read(mapped, name)
}
