package forcefield

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coarsen-md/coarsen/pkg/grammar"
)

// metadataFile is the optional per-directory descriptor.
const metadataFile = "metadata.yaml"

// Metadata is the YAML descriptor of a force-field directory.
type Metadata struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Citations   []string          `yaml:"citations"`
	Variables   map[string]string `yaml:"variables"`
}

// LoadDirectory reads every rule file under dir into one force field,
// dispatching by extension: .ff, .map, and .mapping files use the rule
// grammar, .rtp files the residue-library grammar, and metadata.yaml fills
// the descriptor fields. Files load in lexical order, so later files rank
// after earlier ones in tie-breaking. Unknown extensions are skipped.
func LoadDirectory(dir string, logger *slog.Logger) (*ForceField, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ff := New(filepath.Base(dir))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read force-field directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if err := loadFile(ff, filepath.Join(dir, entry.Name()), logger); err != nil {
			return nil, err
		}
	}

	logger.Debug("force field loaded",
		"name", ff.Name,
		"blocks", len(ff.Blocks),
		"modifications", len(ff.Modifications),
		"residues", len(ff.Residues),
		"links", len(ff.Links))

	return ff, nil
}

func loadFile(ff *ForceField, path string, logger *slog.Logger) error {
	if filepath.Base(path) == metadataFile {
		return loadMetadata(ff, path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".ff", ".map", ".mapping":
		lib, err := grammar.ParseRulesFile(path)
		if err != nil {
			return err
		}

		ff.mergeRules(lib.Blocks, lib.Modifications)
	case ".rtp":
		lib, err := grammar.ParseRTPFile(path)
		if err != nil {
			return err
		}

		ff.Residues = append(ff.Residues, lib.Residues...)
		ff.Links = append(ff.Links, lib.Links...)
	default:
		logger.Debug("skipping unrecognized force-field file", "path", path)
	}

	return nil
}

func loadMetadata(ff *ForceField, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}

	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if meta.Name != "" {
		ff.Name = meta.Name
	}

	ff.Description = meta.Description
	ff.Citations = meta.Citations

	for key, val := range meta.Variables {
		ff.Variables[key] = val
	}

	return nil
}
