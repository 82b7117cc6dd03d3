package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Notification is a row written by event consumers for later delivery to
// the user (the UI polls these; delivery itself is out of scope here).
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	TaskID    string    `json:"task_id"`
	Payload   string    `json:"payload,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateNotification inserts a notification row.
func (db *DB) CreateNotification(kind, taskID, payload string) error {
	_, err := db.Exec(`
		INSERT INTO notifications (id, kind, task_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, uuid.New().String(), kind, taskID, payload, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListNotifications lists notifications for a task, newest first.
func (db *DB) ListNotifications(taskID string) ([]Notification, error) {
	rows, err := db.Query(`
		SELECT id, kind, task_id, payload, created_at
		FROM notifications WHERE task_id = ? ORDER BY created_at DESC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		var createdAt string
		if err := rows.Scan(&n.ID, &n.Kind, &n.TaskID, &n.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.CreatedAt, _ = parseTime(createdAt)
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
