package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/taskpilot/taskpilot/pkg/models"
)

// ErrStaleTransition is returned when a breakdown transition finds the
// record in a different status than expected. Two workers racing on the
// same record surface here instead of double-finalizing it.
var ErrStaleTransition = fmt.Errorf("breakdown record not in expected status")

const breakdownColumns = `id, task_id, status, attempt_count, prompt, response,
	error_message, started_at, completed_at`

// CreateBreakdown inserts a new pending record for the task.
func (db *DB) CreateBreakdown(b *models.Breakdown) error {
	_, err := db.Exec(`
		INSERT INTO breakdowns (id, task_id, status, attempt_count, prompt, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, b.ID, b.TaskID, string(models.BreakdownPending), 0, b.Prompt, formatTime(b.StartedAt))
	if err != nil {
		return fmt.Errorf("create breakdown: %w", err)
	}
	b.Status = models.BreakdownPending
	b.AttemptCount = 0
	return nil
}

// GetBreakdown retrieves a record by ID. Returns nil if not found.
func (db *DB) GetBreakdown(id string) (*models.Breakdown, error) {
	row := db.QueryRow(`SELECT `+breakdownColumns+` FROM breakdowns WHERE id = ?`, id)
	b, err := scanBreakdown(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get breakdown: %w", err)
	}
	return b, nil
}

// LatestBreakdown returns the most recent record for a task, or nil.
func (db *DB) LatestBreakdown(taskID string) (*models.Breakdown, error) {
	row := db.QueryRow(`
		SELECT `+breakdownColumns+` FROM breakdowns
		WHERE task_id = ? ORDER BY started_at DESC, id DESC LIMIT 1
	`, taskID)
	b, err := scanBreakdown(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest breakdown: %w", err)
	}
	return b, nil
}

// HasActiveBreakdown reports whether the task has a record still in
// pending or processing. The duplicate-request guard checks this before
// creating a new record.
func (db *DB) HasActiveBreakdown(taskID string) (bool, error) {
	var count int
	row := db.QueryRow(`
		SELECT COUNT(*) FROM breakdowns
		WHERE task_id = ? AND status IN ('pending', 'processing')
	`, taskID)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check active breakdown: %w", err)
	}
	return count > 0, nil
}

// AdvanceBreakdown moves a pending record to processing.
// Compare-and-set on the prior status: fails with ErrStaleTransition if
// another worker already advanced or finalized the record.
func (db *DB) AdvanceBreakdown(id string) error {
	result, err := db.Exec(`
		UPDATE breakdowns SET status = ? WHERE id = ? AND status = ?
	`, string(models.BreakdownProcessing), id, string(models.BreakdownPending))
	if err != nil {
		return fmt.Errorf("advance breakdown: %w", err)
	}
	return requireTransition(result, id, "advance")
}

// RecordAttemptError increments the attempt counter and stores the error
// on a record that stays in processing for another attempt.
func (db *DB) RecordAttemptError(id string, attemptErr string) error {
	result, err := db.Exec(`
		UPDATE breakdowns SET attempt_count = attempt_count + 1, error_message = ?
		WHERE id = ? AND status = ?
	`, attemptErr, id, string(models.BreakdownProcessing))
	if err != nil {
		return fmt.Errorf("record attempt error: %w", err)
	}
	return requireTransition(result, id, "record attempt error")
}

// CompleteBreakdown finalizes a processing record as completed, storing
// the raw provider payload. The attempt counter is bumped for the
// successful attempt.
func (db *DB) CompleteBreakdown(id, response string) error {
	result, err := db.Exec(`
		UPDATE breakdowns
		SET status = ?, attempt_count = attempt_count + 1, response = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, string(models.BreakdownCompleted), response, formatTime(time.Now()),
		id, string(models.BreakdownProcessing))
	if err != nil {
		return fmt.Errorf("complete breakdown: %w", err)
	}
	return requireTransition(result, id, "complete")
}

// FailBreakdown finalizes a processing record as failed. countLastAttempt
// controls whether the failing attempt is added to the counter (it is not
// when the failure was recorded earlier via RecordAttemptError).
func (db *DB) FailBreakdown(id, errorMessage string, countLastAttempt bool) error {
	bump := 0
	if countLastAttempt {
		bump = 1
	}
	result, err := db.Exec(`
		UPDATE breakdowns
		SET status = ?, attempt_count = attempt_count + ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`, string(models.BreakdownFailed), bump, errorMessage, formatTime(time.Now()),
		id, string(models.BreakdownProcessing))
	if err != nil {
		return fmt.Errorf("fail breakdown: %w", err)
	}
	return requireTransition(result, id, "fail")
}

// StuckBreakdowns returns non-terminal records older than the given
// duration. A crash mid-attempt leaves a processing record; a crash (or
// exit) before any worker picked the request up leaves a pending one.
// The reconciler fails both so the duplicate guard does not block forever.
func (db *DB) StuckBreakdowns(olderThan time.Duration) ([]models.Breakdown, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))
	rows, err := db.Query(`
		SELECT `+breakdownColumns+` FROM breakdowns
		WHERE status IN ('pending', 'processing') AND started_at < ?
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("stuck breakdowns: %w", err)
	}
	defer rows.Close()

	var records []models.Breakdown
	for rows.Next() {
		b, err := scanBreakdown(rows)
		if err != nil {
			return nil, fmt.Errorf("scan breakdown: %w", err)
		}
		records = append(records, *b)
	}
	return records, rows.Err()
}

// requireTransition turns a zero-row UPDATE into ErrStaleTransition.
func requireTransition(result sql.Result, id, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s breakdown: %w", op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s breakdown %s: %w", op, id, ErrStaleTransition)
	}
	return nil
}

func scanBreakdown(row rowScanner) (*models.Breakdown, error) {
	var b models.Breakdown
	var prompt, response, errorMessage, completedAt sql.NullString
	var startedAt string

	err := row.Scan(&b.ID, &b.TaskID, &b.Status, &b.AttemptCount,
		&prompt, &response, &errorMessage, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if prompt.Valid {
		b.Prompt = prompt.String
	}
	if response.Valid {
		b.Response = response.String
	}
	if errorMessage.Valid {
		b.ErrorMessage = errorMessage.String
	}
	b.StartedAt, _ = parseTime(startedAt)
	b.CompletedAt = parseNullableTime(completedAt)
	return &b, nil
}
