package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corewire/di/di"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run the demo wiring and print its aggregate health report",
		RunE:  runHealthCmd,
	}
}

func runHealthCmd(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := di.LoadConfig(path)
	if err != nil {
		return err
	}

	c := demoContainer(cfg)
	defer c.Close()

	report := c.HealthReport()
	fmt.Printf("score:            %d\n", report.Score)
	fmt.Printf("duplicates:       %v\n", report.Duplicates)
	fmt.Printf("inconsistencies:  %v\n", report.Inconsistencies)
	fmt.Printf("dropped events:   %d\n", report.DroppedEvents)
	return nil
}
