// Package main provides the entry point for the ordmap CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/ordmap/cmd/ordmap/commands"
	"github.com/Sumatoshi-tech/ordmap/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "ordmap",
		Short: "ordmap - arena-backed red-black tree map",
		Long: `ordmap exercises an ordered map built on an arena-backed red-black tree.

Commands:
  check     Verify the red-black invariants under a randomized workload
  bench     Measure throughput, height and fix-up statistics
  config    Manage the configuration file`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewCheckCommand())
	rootCmd.AddCommand(commands.NewBenchCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
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
			fmt.Fprintf(os.Stdout, "ordmap %s\n", version.String())
		},
	}
}
