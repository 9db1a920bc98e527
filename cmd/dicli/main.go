// Command dicli is a local inspection tool for a running container's
// configuration and diagnostics snapshots. It never talks to the
// container over a network — the core has no IPC surface — so each
// subcommand here loads configuration and prints what it computes,
// mirroring the shape of an inspection CLI rather than a remote client.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "dicli",
		Short:   "Inspection CLI for the DI container runtime",
		Long:    `dicli loads a dicontainer.yaml configuration and reports on the container it would produce: its toggles, a demo wiring's dependency graph, and health.`,
		Version: version,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to dicontainer.yaml (default: searched)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newHealthCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
