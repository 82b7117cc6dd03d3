package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/store"
	"github.com/taskpilot/taskpilot/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show a task with its subtasks and breakdown state",
	Long: `Display a task's details, breakdown progress and subtasks.

Without a task id, lists all tasks.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 0 {
		return displayTaskList(db)
	}
	return displayTask(db, args[0])
}

func displayTaskList(db *store.DB) error {
	tasks, err := db.ListTasks(store.TaskFilter{})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks. Run 'taskpilot add <title>' to create one.")
		return nil
	}

	for _, t := range tasks {
		marker := statusMarker(t.Status)
		line := fmt.Sprintf("%s %s  %s [%s/%s]", marker, t.ID[:8], t.Title, t.Status, t.Priority)
		if t.BreakdownRequested {
			line += "  (AI breakdown)"
		}
		fmt.Println(line)
	}
	return nil
}

func displayTask(db *store.DB, id string) error {
	task, err := db.GetTask(id)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}
	if task == nil {
		return fmt.Errorf("task %s not found", id)
	}

	fmt.Printf("Task: %s\n", task.Title)
	fmt.Printf("  ID: %s\n", task.ID)
	fmt.Printf("  Status: %s\n", task.Status)
	fmt.Printf("  Priority: %s\n", task.Priority)
	if task.Description != "" {
		fmt.Printf("  Description: %s\n", task.Description)
	}
	if task.DueDate != nil {
		fmt.Printf("  Due: %s\n", task.DueDate.Format("2006-01-02"))
	}
	fmt.Printf("  Created: %s\n", task.CreatedAt.Format(time.RFC3339))

	if err := displayBreakdown(db, task); err != nil {
		return err
	}
	return displaySubtasks(db, task.ID)
}

func displayBreakdown(db *store.DB, task *models.Task) error {
	rec, err := db.LatestBreakdown(task.ID)
	if err != nil {
		return fmt.Errorf("latest breakdown: %w", err)
	}
	if rec == nil {
		return nil
	}

	fmt.Println()
	fmt.Printf("Breakdown: %s\n", formatBreakdownStatus(rec.Status))
	fmt.Printf("  Attempts: %d\n", rec.AttemptCount)
	fmt.Printf("  Started: %s\n", rec.StartedAt.Format(time.RFC3339))
	if rec.CompletedAt != nil {
		fmt.Printf("  Finished: %s\n", rec.CompletedAt.Format(time.RFC3339))
	}
	if rec.ErrorMessage != "" {
		fmt.Printf("  Error: %s\n", rec.ErrorMessage)
	}
	return nil
}

func displaySubtasks(db *store.DB, taskID string) error {
	subtasks, err := db.ListSubtasks(taskID)
	if err != nil {
		return fmt.Errorf("list subtasks: %w", err)
	}
	if len(subtasks) == 0 {
		return nil
	}

	completion, err := db.CompletionPercentage(taskID)
	if err != nil {
		return fmt.Errorf("completion percentage: %w", err)
	}

	fmt.Println()
	fmt.Printf("Subtasks (%d, %.0f%% complete):\n", len(subtasks), completion)
	for _, s := range subtasks {
		line := fmt.Sprintf("  %s %d. %s", statusMarker(models.TaskStatus(s.Status)), s.Order, s.Title)
		if s.EstimatedHours != nil {
			line += fmt.Sprintf(" (~%dh)", *s.EstimatedHours)
		}
		fmt.Println(line)
	}
	return nil
}

func statusMarker(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return color.GreenString("✓")
	case models.TaskStatusInProgress:
		return color.YellowString("›")
	case models.TaskStatusCancelled:
		return color.RedString("✗")
	default:
		return "·"
	}
}

func formatBreakdownStatus(s models.BreakdownStatus) string {
	switch s {
	case models.BreakdownCompleted:
		return color.GreenString(string(s))
	case models.BreakdownFailed:
		return color.RedString(string(s))
	case models.BreakdownProcessing:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}
