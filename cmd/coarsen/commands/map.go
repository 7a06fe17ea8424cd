package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/coarsen-md/coarsen/pkg/forcefield"
	"github.com/coarsen-md/coarsen/pkg/gro"
	"github.com/coarsen-md/coarsen/pkg/molecule"
	"github.com/coarsen-md/coarsen/pkg/pdb"
	"github.com/coarsen-md/coarsen/pkg/processors"
)

// Flag names for the map command.
const (
	flagNameInput         = "file"
	flagNameOutput        = "output"
	flagNameForceField    = "forcefield"
	flagNameMappings      = "mappings"
	flagNameMergeChains   = "merge-chains"
	flagNameMergeAll      = "merge-all-chains"
	flagNameModifications = "modifications"
	flagNameStrict        = "strict"
	flagNameBonds         = "bonds"
)

// Sentinel errors for map command validation.
var (
	ErrNoForceField      = errors.New("a force-field directory is required (flag or config)")
	ErrUnknownFormat     = errors.New("unrecognized structure file extension")
	ErrNoMappingBlocks   = errors.New("the loaded library contains no mapping blocks")
	ErrConflictingMerges = errors.New("--merge-chains and --merge-all-chains are mutually exclusive")
)

// mapOptions collects the flag values of one map invocation.
type mapOptions struct {
	input         string
	output        string
	forceField    string
	mappings      string
	mergeChains   []string
	mergeAll      bool
	modifications bool
	strict        bool
	bonds         bool
}

// NewMapCommand creates the map command, which transforms an atomistic
// structure into its coarse-grained image.
func NewMapCommand() *cobra.Command {
	opts := &mapOptions{}

	cmd := &cobra.Command{
		Use:   "map",
		Short: "Transform a structure with a force-field's mapping rules",
		Long: `Map reads an atomistic structure (PDB or GRO), matches the force-field's
mapping blocks against it, and writes the coarse-grained result.

Modification rules (termini, PTMs) are applied first when --modifications is
set. Chains can be merged into single molecules before output.`,
		Example: `  coarsen map -f protein.pdb -o protein_cg.gro --forcefield ./martini3
  coarsen map -f complex.pdb -o complex_cg.pdb --forcefield ./martini3 --merge-chains A,B
  coarsen map -f protein.gro -o out.gro --forcefield ./martini3 --mappings ./custom --modifications`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMap(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.input, flagNameInput, "f", "", "input structure file (.pdb or .gro)")
	cmd.Flags().StringVarP(&opts.output, flagNameOutput, "o", "", "output structure file (.pdb or .gro)")
	cmd.Flags().StringVar(&opts.forceField, flagNameForceField, "", "force-field directory")
	cmd.Flags().StringVar(&opts.mappings, flagNameMappings, "", "additional mappings directory")
	cmd.Flags().StringSliceVar(&opts.mergeChains, flagNameMergeChains, nil, "chains to merge into one molecule")
	cmd.Flags().BoolVar(&opts.mergeAll, flagNameMergeAll, false, "merge all chains into one molecule")
	cmd.Flags().BoolVar(&opts.modifications, flagNameModifications, false, "apply modification rules before mapping")
	cmd.Flags().BoolVar(&opts.strict, flagNameStrict, false, "fail when a residue has no mapping block")
	cmd.Flags().BoolVar(&opts.bonds, flagNameBonds, true, "infer bonds from distances when the input has none")

	_ = cmd.MarkFlagRequired(flagNameInput)
	_ = cmd.MarkFlagRequired(flagNameOutput)

	return cmd
}

func runMap(cmd *cobra.Command, opts *mapOptions) error {
	if len(opts.mergeChains) > 0 && opts.mergeAll {
		return ErrConflictingMerges
	}

	rt, err := setupRuntime()
	if err != nil {
		return err
	}
	defer rt.close(cmd.Context())

	ff, err := loadMapLibrary(rt, opts)
	if err != nil {
		return err
	}

	if len(ff.Blocks) == 0 {
		return ErrNoMappingBlocks
	}

	if opts.modifications && len(ff.Modifications) == 0 {
		warnf("--modifications requested but %s defines no modification rules", ff.Name)
	}

	sys, err := readStructure(opts.input)
	if err != nil {
		return err
	}

	inputAtoms := sys.AtomCount()

	rt.logger.Info("structure loaded",
		"file", opts.input,
		"molecules", len(sys.Molecules),
		"atoms", humanize.Comma(int64(inputAtoms)),
		"forcefield", ff.Name)

	pipeline := processors.NewPipeline(buildStages(rt, opts, ff),
		processors.WithTracer(rt.providers.Tracer),
		processors.WithLogger(rt.logger),
		processors.WithMetrics(rt.metrics))

	start := time.Now()

	if err := pipeline.Run(cmd.Context(), sys); err != nil {
		return err
	}

	if err := writeStructure(opts.output, sys); err != nil {
		return err
	}

	if !flagQuiet {
		fmt.Fprintf(cmd.OutOrStdout(), "Mapped %s atoms to %s beads in %d molecule(s) (%s)\n",
			humanize.Comma(int64(inputAtoms)),
			humanize.Comma(int64(sys.AtomCount())),
			len(sys.Molecules),
			time.Since(start).Round(time.Millisecond))
	}

	return nil
}

// loadMapLibrary resolves the force-field and mappings directories from flags
// and config, loading through the cache.
func loadMapLibrary(rt *runtime, opts *mapOptions) (*forcefield.ForceField, error) {
	ffDir := opts.forceField
	if ffDir == "" {
		ffDir = rt.cfg.ForceField.Directory
	}

	if ffDir == "" {
		return nil, ErrNoForceField
	}

	ff, err := rt.loadLibrary(ffDir)
	if err != nil {
		return nil, err
	}

	mapDir := opts.mappings
	if mapDir == "" {
		mapDir = rt.cfg.ForceField.Mappings
	}

	if mapDir != "" {
		extra, err := rt.loadLibrary(mapDir)
		if err != nil {
			return nil, err
		}

		ff.Merge(extra)
	}

	return ff, nil
}

func buildStages(rt *runtime, opts *mapOptions, ff *forcefield.ForceField) []processors.Processor {
	var stages []processors.Processor

	if opts.bonds {
		stages = append(stages, &processors.MakeBonds{Logger: rt.logger})
	}

	if opts.modifications {
		stages = append(stages, &processors.AnnotateModifications{
			Modifications: ff.Modifications,
			Logger:        rt.logger,
		})
	}

	stages = append(stages, &processors.DoMapping{
		Blocks:  ff.Blocks,
		Logger:  rt.logger,
		Metrics: rt.metrics,
		Strict:  opts.strict,
	})

	if opts.mergeAll || len(opts.mergeChains) > 0 {
		stages = append(stages, &processors.MergeChains{
			Chains: opts.mergeChains,
			All:    opts.mergeAll,
			Logger: rt.logger,
		})
	}

	return stages
}

// readStructure dispatches on the file extension.
func readStructure(path string) (*molecule.System, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdb", ".ent":
		return pdb.ReadFile(path)
	case ".gro":
		return gro.ReadFile(path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(path))
	}
}

// writeStructure dispatches on the file extension.
func writeStructure(path string, sys *molecule.System) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdb", ".ent":
		return pdb.WriteFile(path, sys)
	case ".gro":
		return gro.WriteFile(path, sys)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Ext(path))
	}
}
