package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/taskpilot/taskpilot/internal/breakdown"
	"github.com/taskpilot/taskpilot/internal/event"
	"github.com/taskpilot/taskpilot/internal/notify"
	"github.com/taskpilot/taskpilot/internal/store"
	"github.com/taskpilot/taskpilot/pkg/models"
)

var (
	breakdownComplexity string
	breakdownFocus      []string
	breakdownNoWait     bool
)

var breakdownCmd = &cobra.Command{
	Use:   "breakdown <task-id>",
	Short: "Break a task into subtasks with AI",
	Long: `Submit a task for AI breakdown and wait for the result.

The task's title and description are sent to the model, which proposes
3-8 ordered subtasks. On success the subtasks are stored under the task;
failed calls are retried before the request is marked failed.

Examples:
  taskpilot breakdown 4f7c…            # wait for the result
  taskpilot breakdown 4f7c… --complexity complex --focus backend --focus testing
  taskpilot breakdown 4f7c… --no-wait  # enqueue only (record stays pending)`,
	Args: cobra.ExactArgs(1),
	RunE: runBreakdown,
}

func init() {
	breakdownCmd.Flags().StringVar(&breakdownComplexity, "complexity", "", "Granularity hint: simple, moderate, complex")
	breakdownCmd.Flags().StringArrayVar(&breakdownFocus, "focus", nil, "Focus area (repeatable)")
	breakdownCmd.Flags().BoolVar(&breakdownNoWait, "no-wait", false, "Enqueue without waiting for completion")
}

func runBreakdown(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	bus := event.NewBus(16, 1)
	bus.Subscribe(notify.LogNotifier{})
	bus.Subscribe(notify.NewDBNotifier(db))
	defer bus.Close()

	pool := breakdown.NewPool(breakdown.PoolConfig{
		DB:        db,
		Generator: newGenerator(cfg),
		Bus:       bus,
		Workers:   1,
		Executor: breakdown.ExecutorConfig{
			MaxAttempts:    cfg.Breakdown.MaxAttempts,
			Backoff:        cfg.Breakdown.Backoff,
			AttemptTimeout: cfg.Breakdown.AttemptTimeout,
		},
	})
	defer pool.Stop()

	rec, err := pool.Submit(models.BreakdownRequest{
		TaskID: args[0],
		Options: models.BreakdownOptions{
			Complexity: models.Complexity(breakdownComplexity),
			FocusAreas: breakdownFocus,
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("Breakdown %s queued for task %s\n", rec.ID, rec.TaskID)
	if breakdownNoWait {
		return nil
	}

	final, err := waitForBreakdown(db, rec.ID)
	if err != nil {
		return err
	}

	if final.Status == models.BreakdownFailed {
		fmt.Printf("%s Breakdown failed after %d attempt(s): %s\n",
			color.RedString("✗"), final.AttemptCount, final.ErrorMessage)
		return fmt.Errorf("breakdown failed")
	}

	subtasks, err := db.ListSubtasks(rec.TaskID)
	if err != nil {
		return fmt.Errorf("list subtasks: %w", err)
	}
	fmt.Printf("%s Breakdown completed in %d attempt(s), %d subtask(s):\n",
		color.GreenString("✓"), final.AttemptCount, len(subtasks))
	for _, s := range subtasks {
		line := fmt.Sprintf("  %d. %s", s.Order, s.Title)
		if s.EstimatedHours != nil {
			line += fmt.Sprintf(" (~%dh)", *s.EstimatedHours)
		}
		fmt.Println(line)
	}
	return nil
}

// waitForBreakdown polls the record until it reaches a terminal status.
func waitForBreakdown(db *store.DB, id string) (*models.Breakdown, error) {
	for {
		rec, err := db.GetBreakdown(id)
		if err != nil {
			return nil, fmt.Errorf("poll breakdown: %w", err)
		}
		if rec == nil {
			return nil, fmt.Errorf("breakdown %s disappeared", id)
		}
		if rec.Status.Terminal() {
			return rec, nil
		}
		time.Sleep(500 * time.Millisecond)
	}
}
