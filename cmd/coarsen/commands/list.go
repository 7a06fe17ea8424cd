package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/coarsen-md/coarsen/pkg/molecule"
)

// Flag names for the list command.
const (
	flagNameListBlocks        = "blocks"
	flagNameListModifications = "modifications"
	flagNameListResidues      = "residues"
)

// listOptions collects the flag values of one list invocation.
type listOptions struct {
	forceField    string
	mappings      string
	blocks        bool
	modifications bool
	residues      bool
}

// NewListCommand creates the list command, which prints the contents of a
// loaded rule library.
func NewListCommand() *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the contents of a loaded rule library",
		Long: `List loads a force-field directory and prints its mapping blocks,
modification rules, and residue templates. With no selection flags, every
section is shown.`,
		Example: `  coarsen list --forcefield ./martini3
  coarsen list --forcefield ./martini3 --blocks
  coarsen list --forcefield ./martini3 --mappings ./custom --modifications`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.forceField, flagNameForceField, "", "force-field directory")
	cmd.Flags().StringVar(&opts.mappings, flagNameMappings, "", "additional mappings directory")
	cmd.Flags().BoolVar(&opts.blocks, flagNameListBlocks, false, "show mapping blocks only")
	cmd.Flags().BoolVar(&opts.modifications, flagNameListModifications, false, "show modification rules only")
	cmd.Flags().BoolVar(&opts.residues, flagNameListResidues, false, "show residue templates only")

	return cmd
}

func runList(cmd *cobra.Command, opts *listOptions) error {
	rt, err := setupRuntime()
	if err != nil {
		return err
	}
	defer rt.close(cmd.Context())

	ffDir := opts.forceField
	if ffDir == "" {
		ffDir = rt.cfg.ForceField.Directory
	}

	if ffDir == "" {
		return ErrNoForceField
	}

	ff, err := rt.loadLibrary(ffDir)
	if err != nil {
		return err
	}

	if opts.mappings != "" {
		extra, err := rt.loadLibrary(opts.mappings)
		if err != nil {
			return err
		}

		ff.Merge(extra)
	}

	out := cmd.OutOrStdout()
	all := !opts.blocks && !opts.modifications && !opts.residues

	fmt.Fprintf(out, "Force field: %s (%d records)\n", ff.Name, ff.RecordCount())

	if ff.Description != "" {
		fmt.Fprintln(out, ff.Description)
	}

	if all || opts.blocks {
		fmt.Fprintf(out, "\n%s\n", renderBlocks(ff.Blocks))
	}

	if all || opts.modifications {
		fmt.Fprintf(out, "\n%s\n", renderModifications(ff.Modifications))
	}

	if all || opts.residues {
		fmt.Fprintf(out, "\n%s\n", renderResidues(ff.Residues))
	}

	return nil
}

func newListTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false

	return tbl
}

func renderBlocks(blocks []*molecule.Block) string {
	if len(blocks) == 0 {
		return "No mapping blocks."
	}

	tbl := newListTable()
	tbl.AppendHeader(table.Row{"Block", "From", "Beads", "Atoms", "Specificity"})

	for _, block := range blocks {
		tbl.AppendRow(table.Row{
			block.Name,
			strings.Join(block.FromBlocks, ","),
			strings.Join(block.Beads(), " "),
			len(block.FromNodes),
			block.Specificity(),
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d blocks", len(blocks))})

	return "Mapping blocks:\n" + tbl.Render()
}

func renderModifications(mods []*molecule.Modification) string {
	if len(mods) == 0 {
		return "No modification rules."
	}

	tbl := newListTable()
	tbl.AppendHeader(table.Row{"Modification", "Anchors", "Atoms", "Specificity"})

	for _, mod := range mods {
		tbl.AppendRow(table.Row{
			mod.Name,
			strings.Join(mod.AnchorNames(), " "),
			len(mod.Atoms),
			mod.Specificity(),
		})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d modifications", len(mods))})

	return "Modification rules:\n" + tbl.Render()
}

func renderResidues(residues []*molecule.Residue) string {
	if len(residues) == 0 {
		return "No residue templates."
	}

	tbl := newListTable()
	tbl.AppendHeader(table.Row{"Residue", "Atoms", "Bonds", "Interactions"})

	for _, res := range residues {
		interactions := 0
		for _, list := range res.Interactions {
			interactions += len(list)
		}

		tbl.AppendRow(table.Row{res.Name, len(res.Atoms), len(res.Edges), interactions})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d residues", len(residues))})

	return "Residue templates:\n" + tbl.Render()
}
