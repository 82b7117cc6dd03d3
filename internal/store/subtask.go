package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taskpilot/taskpilot/pkg/models"
)

// ErrNotFound is returned when a row targeted by id does not exist.
var ErrNotFound = errors.New("not found")

const subtaskColumns = `id, task_id, title, description, status, sort_order,
	estimated_hours, generated_by_ai, created_at`

// CreateSubtaskTx inserts a subtask within an existing transaction.
// The materializer uses this to write a whole batch atomically.
func CreateSubtaskTx(ctx context.Context, tx *sql.Tx, s *models.Subtask) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO subtasks (id, task_id, title, description, status, sort_order,
			estimated_hours, generated_by_ai, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.TaskID, s.Title, s.Description, string(s.Status), s.Order,
		s.EstimatedHours, boolToInt(s.GeneratedByAI), formatTime(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("create subtask: %w", err)
	}
	return nil
}

// MaxSubtaskOrderTx returns the highest order value among the task's
// subtasks, or 0 if it has none. Runs inside the caller's transaction so
// the value cannot move between the read and the batch insert.
func MaxSubtaskOrderTx(ctx context.Context, tx *sql.Tx, taskID string) (int, error) {
	var max int
	row := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(sort_order), 0) FROM subtasks WHERE task_id = ?", taskID)
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("max subtask order: %w", err)
	}
	return max, nil
}

// ListSubtasks lists a task's subtasks in order.
func (db *DB) ListSubtasks(taskID string) ([]models.Subtask, error) {
	rows, err := db.Query(`
		SELECT `+subtaskColumns+` FROM subtasks WHERE task_id = ? ORDER BY sort_order
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list subtasks: %w", err)
	}
	defer rows.Close()

	var subtasks []models.Subtask
	for rows.Next() {
		var s models.Subtask
		var description sql.NullString
		var estimatedHours sql.NullInt64
		var generatedByAI int
		var createdAt string

		if err := rows.Scan(&s.ID, &s.TaskID, &s.Title, &description, &s.Status,
			&s.Order, &estimatedHours, &generatedByAI, &createdAt); err != nil {
			return nil, fmt.Errorf("scan subtask: %w", err)
		}

		if description.Valid {
			s.Description = description.String
		}
		if estimatedHours.Valid {
			h := int(estimatedHours.Int64)
			s.EstimatedHours = &h
		}
		s.GeneratedByAI = generatedByAI != 0
		s.CreatedAt, _ = parseTime(createdAt)
		subtasks = append(subtasks, s)
	}
	return subtasks, rows.Err()
}

// UpdateSubtaskStatus moves a subtask to a new status.
func (db *DB) UpdateSubtaskStatus(id string, status models.SubtaskStatus) error {
	result, err := db.Exec("UPDATE subtasks SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("update subtask status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update subtask status: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("subtask %s: %w", id, ErrNotFound)
	}
	return nil
}

// CompletionPercentage returns the share of the task's subtasks that are
// completed, as a value in [0, 100]. A task with no subtasks is 0%.
func (db *DB) CompletionPercentage(taskID string) (float64, error) {
	var total, completed int
	row := db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
		FROM subtasks WHERE task_id = ?
	`, taskID)
	if err := row.Scan(&total, &completed); err != nil {
		return 0, fmt.Errorf("completion percentage: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(completed) / float64(total) * 100, nil
}
