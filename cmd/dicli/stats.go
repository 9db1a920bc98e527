package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/corewire/di/di"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Run the demo wiring and print per-type usage counts",
		RunE:  runStatsCmd,
	}
}

func runStatsCmd(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := di.LoadConfig(path)
	if err != nil {
		return err
	}

	c := demoContainer(cfg)
	defer c.Close()

	names := make([]string, 0)
	stats := c.Stats()
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Printf("%-40s %d\n", name, stats[name])
	}
	return nil
}
