package models

import "time"

// SubtaskStatus represents the current state of a subtask.
type SubtaskStatus string

const (
	// SubtaskStatusPending indicates the subtask has not started.
	SubtaskStatusPending SubtaskStatus = "pending"
	// SubtaskStatusInProgress indicates the subtask is being worked on.
	SubtaskStatusInProgress SubtaskStatus = "in_progress"
	// SubtaskStatusCompleted indicates the subtask is done.
	SubtaskStatusCompleted SubtaskStatus = "completed"
)

// Valid returns true if the status is a known value.
func (s SubtaskStatus) Valid() bool {
	switch s {
	case SubtaskStatusPending, SubtaskStatusInProgress, SubtaskStatusCompleted:
		return true
	default:
		return false
	}
}

// Subtask represents one child item of a task. Subtasks are ordered
// within their parent; order values are unique per task.
type Subtask struct {
	// ID is the unique identifier for this subtask.
	ID string `json:"id"`
	// TaskID is the parent task.
	TaskID string `json:"task_id"`
	// Title is the short description of the subtask.
	Title string `json:"title"`
	// Description provides detail, if any.
	Description string `json:"description,omitempty"`
	// Status is the current state of the subtask.
	Status SubtaskStatus `json:"status"`
	// Order is the position within the parent task, starting at 1.
	Order int `json:"order"`
	// EstimatedHours is the provider's effort estimate, if given.
	EstimatedHours *int `json:"estimated_hours,omitempty"`
	// GeneratedByAI is true when the subtask came out of a breakdown.
	GeneratedByAI bool `json:"generated_by_ai"`
	// CreatedAt is when the subtask was created.
	CreatedAt time.Time `json:"created_at"`
}
