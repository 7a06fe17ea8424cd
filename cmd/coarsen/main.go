// Package main provides the entry point for the coarsen CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coarsen-md/coarsen/cmd/coarsen/commands"
	"github.com/coarsen-md/coarsen/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "coarsen",
		Short: "Coarsen - molecular structure transformation pipeline",
		Long: `Coarsen converts atomistic molecular structures into coarse-grained
representations using declarative mapping rules and modification rules.

Commands:
  map       Transform a structure with a force-field's mapping rules
  list      Show the contents of a loaded rule library
  check     Validate rule files`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	commands.AddGlobalFlags(rootCmd)

	rootCmd.AddCommand(commands.NewMapCommand())
	rootCmd.AddCommand(commands.NewListCommand())
	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "coarsen %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
