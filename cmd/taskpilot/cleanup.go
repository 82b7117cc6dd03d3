package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	cleanupDays  int
	cleanupForce bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Purge old completed and cancelled tasks",
	Long: `Delete completed and cancelled tasks that have not been touched
for the retention period, along with their subtasks.

Examples:
  taskpilot cleanup              # Purge with confirmation, config retention
  taskpilot cleanup --days 30    # Purge tasks untouched for 30 days
  taskpilot cleanup --force      # Skip confirmation prompt`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "Retention in days (default from config)")
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "Skip confirmation prompt")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	days := cleanupDays
	if days <= 0 {
		days = cfg.Cleanup.Days
	}

	if !cleanupForce {
		fmt.Printf("Purge completed/cancelled tasks untouched for %d days? [y/N] ", days)
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read confirmation: %w", err)
		}

		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Cleanup cancelled.")
			return nil
		}
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := db.PurgeOldTasks(time.Duration(days) * 24 * time.Hour)
	if err != nil {
		return fmt.Errorf("purge old tasks: %w", err)
	}

	fmt.Printf("Purged %d task(s).\n", removed)
	return nil
}
