package commands

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/coarsen-md/coarsen/pkg/grammar"
)

// Flag names for the check command.
const flagNameCanonical = "canonical"

// ErrCheckFailed aggregates the per-file outcome for the exit status.
var ErrCheckFailed = errors.New("rule files contain errors")

// NewCheckCommand creates the check command, which validates rule files
// without loading a structure.
func NewCheckCommand() *cobra.Command {
	var canonical bool

	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: "Validate rule files",
		Long: `Check parses each rule file and reports grammar errors with their file,
line, and section. With --canonical, a parsed file is re-emitted in canonical
form on stdout, which round-trips through the parser.`,
		Example: `  coarsen check martini3/proteins.ff
  coarsen check --canonical custom.map > custom_canonical.map`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, canonical)
		},
	}

	cmd.Flags().BoolVar(&canonical, flagNameCanonical, false, "re-emit parsed rules in canonical form")

	return cmd
}

func runCheck(cmd *cobra.Command, paths []string, canonical bool) error {
	if flagNoColor {
		color.NoColor = true
	}

	out := cmd.OutOrStdout()
	failed := 0

	for _, path := range paths {
		err := checkFile(cmd, path, canonical)
		if err == nil {
			if !canonical && !flagQuiet {
				color.New(color.FgGreen).Fprintf(out, "ok\t%s\n", path)
			}

			continue
		}

		failed++

		reportCheckError(cmd, path, err)
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d files", ErrCheckFailed, failed, len(paths))
	}

	return nil
}

func checkFile(cmd *cobra.Command, path string, canonical bool) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rtp":
		_, err := grammar.ParseRTPFile(path)

		return err
	default:
		lib, err := grammar.ParseRulesFile(path)
		if err != nil {
			return err
		}

		if canonical {
			return grammar.WriteRules(cmd.OutOrStdout(), lib)
		}

		return nil
	}
}

// reportCheckError prints one failure, keeping the parser's position context
// on its own line when present.
func reportCheckError(cmd *cobra.Command, path string, err error) {
	errOut := cmd.ErrOrStderr()
	red := color.New(color.FgRed)

	var grammarErr *grammar.GrammarError
	if errors.As(err, &grammarErr) {
		red.Fprintf(errOut, "FAIL\t%s\n", path)
		fmt.Fprintf(errOut, "\t%s\n", grammarErr.Error())

		return
	}

	var macroErr *grammar.MacroError
	if errors.As(err, &macroErr) {
		red.Fprintf(errOut, "FAIL\t%s\n", path)
		fmt.Fprintf(errOut, "\t%s\n", macroErr.Error())

		return
	}

	red.Fprintf(errOut, "FAIL\t%s: %v\n", path, err)
}
