package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate task statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := db.TaskStats()
	if err != nil {
		return fmt.Errorf("task stats: %w", err)
	}

	fmt.Println("Task statistics:")
	fmt.Printf("  Total:        %d\n", stats.Total)
	fmt.Printf("  Pending:      %s\n", fmt.Sprintf("%d", stats.Pending))
	fmt.Printf("  In progress:  %s\n", color.YellowString("%d", stats.InProgress))
	fmt.Printf("  Completed:    %s\n", color.GreenString("%d", stats.Completed))
	fmt.Printf("  Cancelled:    %s\n", color.RedString("%d", stats.Cancelled))
	fmt.Printf("  AI breakdown: %d\n", stats.WithBreakdown)
	return nil
}
