package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/taskpilot/taskpilot/pkg/models"
)

// TaskFilter narrows ListTasks results. Zero values mean "no filter".
type TaskFilter struct {
	Status   models.TaskStatus
	Priority models.TaskPriority
	Search   string
}

const taskColumns = `id, title, description, status, priority, due_date,
	breakdown_requested, breakdown_completed_at, created_at, updated_at`

// CreateTask inserts a new task.
func (db *DB) CreateTask(t *models.Task) error {
	_, err := db.Exec(`
		INSERT INTO tasks (id, title, description, status, priority, due_date,
			breakdown_requested, breakdown_completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.Title, t.Description, string(t.Status), string(t.Priority),
		formatNullableTime(t.DueDate), boolToInt(t.BreakdownRequested),
		formatNullableTime(t.BreakdownCompletedAt), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID. Returns nil if not found.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)

	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// UpdateTask updates a task's mutable fields and bumps updated_at.
func (db *DB) UpdateTask(t *models.Task) error {
	t.UpdatedAt = time.Now()
	_, err := db.Exec(`
		UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?, due_date = ?,
			breakdown_requested = ?, breakdown_completed_at = ?, updated_at = ?
		WHERE id = ?
	`, t.Title, t.Description, string(t.Status), string(t.Priority),
		formatNullableTime(t.DueDate), boolToInt(t.BreakdownRequested),
		formatNullableTime(t.BreakdownCompletedAt), formatTime(t.UpdatedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return nil
}

// DeleteTask deletes a task together with its subtasks.
func (db *DB) DeleteTask(id string) error {
	return db.Transaction(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM subtasks WHERE task_id = ?", id); err != nil {
			return fmt.Errorf("delete subtasks: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM tasks WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		return nil
	})
}

// ListTasks lists tasks matching the filter, newest first.
func (db *DB) ListTasks(filter TaskFilter) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		query += " AND priority = ?"
		args = append(args, string(filter.Priority))
	}
	if filter.Search != "" {
		query += " AND (title LIKE ? OR description LIKE ?)"
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// MarkBreakdownRequested flags the task as having an AI breakdown pending.
func (db *DB) MarkBreakdownRequested(taskID string) error {
	_, err := db.Exec(`
		UPDATE tasks SET breakdown_requested = 1, updated_at = ? WHERE id = ?
	`, formatTime(time.Now()), taskID)
	if err != nil {
		return fmt.Errorf("mark breakdown requested: %w", err)
	}
	return nil
}

// MarkBreakdownCompleted records when the last successful breakdown finished.
func (db *DB) MarkBreakdownCompleted(taskID string, at time.Time) error {
	_, err := db.Exec(`
		UPDATE tasks SET breakdown_completed_at = ?, updated_at = ? WHERE id = ?
	`, formatTime(at), formatTime(time.Now()), taskID)
	if err != nil {
		return fmt.Errorf("mark breakdown completed: %w", err)
	}
	return nil
}

// TaskStats returns aggregate task counts.
func (db *DB) TaskStats() (*models.TaskStats, error) {
	stats := &models.TaskStats{}

	counts := []struct {
		dest  *int
		query string
	}{
		{&stats.Total, "SELECT COUNT(*) FROM tasks"},
		{&stats.Pending, "SELECT COUNT(*) FROM tasks WHERE status = 'pending'"},
		{&stats.InProgress, "SELECT COUNT(*) FROM tasks WHERE status = 'in_progress'"},
		{&stats.Completed, "SELECT COUNT(*) FROM tasks WHERE status = 'completed'"},
		{&stats.Cancelled, "SELECT COUNT(*) FROM tasks WHERE status = 'cancelled'"},
		{&stats.WithBreakdown, "SELECT COUNT(*) FROM tasks WHERE breakdown_requested = 1"},
	}

	for _, c := range counts {
		if err := db.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("task stats: %w", err)
		}
	}
	return stats, nil
}

// PurgeOldTasks deletes completed and cancelled tasks not touched for the
// given duration, together with their subtasks. Returns the number of
// tasks deleted.
func (db *DB) PurgeOldTasks(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	var deleted int64
	err := db.Transaction(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			DELETE FROM subtasks WHERE task_id IN (
				SELECT id FROM tasks
				WHERE status IN ('completed', 'cancelled') AND updated_at < ?
			)
		`, cutoff); err != nil {
			return fmt.Errorf("purge subtasks: %w", err)
		}

		result, err := tx.Exec(`
			DELETE FROM tasks
			WHERE status IN ('completed', 'cancelled') AND updated_at < ?
		`, cutoff)
		if err != nil {
			return fmt.Errorf("purge tasks: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var description sql.NullString
	var dueDate, breakdownCompletedAt sql.NullString
	var breakdownRequested int
	var createdAt, updatedAt string

	err := row.Scan(&t.ID, &t.Title, &description, &t.Status, &t.Priority,
		&dueDate, &breakdownRequested, &breakdownCompletedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		t.Description = description.String
	}
	t.DueDate = parseNullableTime(dueDate)
	t.BreakdownRequested = breakdownRequested != 0
	t.BreakdownCompletedAt = parseNullableTime(breakdownCompletedAt)
	t.CreatedAt, _ = parseTime(createdAt)
	t.UpdatedAt, _ = parseTime(updatedAt)
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
