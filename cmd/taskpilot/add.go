package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/pkg/models"
)

var (
	addDescription string
	addPriority    string
	addDue         string
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a new task",
	Long: `Create a new task in the local database.

Examples:
  taskpilot add "Build login page"
  taskpilot add "Migrate billing" -d "Move invoices to the new schema" -p high
  taskpilot add "Quarterly report" --due 2026-09-30`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func init() {
	addCmd.Flags().StringVarP(&addDescription, "description", "d", "", "Task description")
	addCmd.Flags().StringVarP(&addPriority, "priority", "p", "medium", "Priority: low, medium, high")
	addCmd.Flags().StringVar(&addDue, "due", "", "Due date (YYYY-MM-DD)")
}

func runAdd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	priority := models.TaskPriority(addPriority)
	if !priority.Valid() {
		return fmt.Errorf("invalid priority %q (want low, medium or high)", addPriority)
	}

	var dueDate *time.Time
	if addDue != "" {
		d, err := time.Parse("2006-01-02", addDue)
		if err != nil {
			return fmt.Errorf("invalid due date %q (want YYYY-MM-DD)", addDue)
		}
		dueDate = &d
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	now := time.Now()
	task := &models.Task{
		ID:          uuid.New().String(),
		Title:       strings.Join(args, " "),
		Description: addDescription,
		Status:      models.TaskStatusPending,
		Priority:    priority,
		DueDate:     dueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.CreateTask(task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	fmt.Printf("%s Created task %s\n", color.GreenString("✓"), task.ID)
	fmt.Printf("  Title: %s\n", task.Title)
	fmt.Printf("  Priority: %s\n", task.Priority)
	if task.DueDate != nil {
		fmt.Printf("  Due: %s\n", task.DueDate.Format("2006-01-02"))
	}
	return nil
}
