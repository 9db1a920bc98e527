package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/corewire/di/di"
)

func newGraphCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Run the demo wiring and print its nested-resolve dependency graph",
		RunE:  runGraphCmd,
	}
}

func runGraphCmd(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := di.LoadConfig(path)
	if err != nil {
		return err
	}

	c := demoContainer(cfg)
	defer c.Close()

	graph := c.Graph()
	parents := make([]string, 0, len(graph))
	for p := range graph {
		parents = append(parents, p)
	}
	sort.Strings(parents)

	for _, p := range parents {
		fmt.Printf("%s -> %v\n", p, graph[p])
	}

	if cycles := c.DetectedCycles(); len(cycles) > 0 {
		fmt.Println("detected cycles:")
		for _, cyc := range cycles {
			fmt.Println(" ", cyc)
		}
	}
	return nil
}
