package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusCancelled indicates the task was abandoned.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// TaskPriority represents the urgency of a task.
type TaskPriority string

const (
	// PriorityLow marks a task that can wait.
	PriorityLow TaskPriority = "low"
	// PriorityMedium is the default priority.
	PriorityMedium TaskPriority = "medium"
	// PriorityHigh marks a task that should be worked on soon.
	PriorityHigh TaskPriority = "high"
)

// Valid returns true if the priority is a known value.
func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// Task represents a unit of work owned by a user of the system.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// Priority is the urgency of the task.
	Priority TaskPriority `json:"priority"`
	// DueDate is when the task should be finished, if set.
	DueDate *time.Time `json:"due_date,omitempty"`
	// BreakdownRequested is true once an AI breakdown has been asked for.
	BreakdownRequested bool `json:"breakdown_requested"`
	// BreakdownCompletedAt is when the last successful breakdown finished.
	BreakdownCompletedAt *time.Time `json:"breakdown_completed_at,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// TaskStats holds aggregate counts over a set of tasks.
type TaskStats struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	InProgress    int `json:"in_progress"`
	Completed     int `json:"completed"`
	Cancelled     int `json:"cancelled"`
	WithBreakdown int `json:"with_ai_breakdown"`
}
