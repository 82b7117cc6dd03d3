package models

import (
	"fmt"
	"strings"
	"time"
)

// BreakdownStatus represents the lifecycle state of a breakdown record.
// Transitions are monotonic: pending -> processing -> completed|failed.
type BreakdownStatus string

const (
	// BreakdownPending indicates the request is queued but not picked up.
	BreakdownPending BreakdownStatus = "pending"
	// BreakdownProcessing indicates a worker is attempting the breakdown.
	BreakdownProcessing BreakdownStatus = "processing"
	// BreakdownCompleted indicates subtasks were generated and persisted.
	BreakdownCompleted BreakdownStatus = "completed"
	// BreakdownFailed indicates the request exhausted its attempts or hit
	// a terminal error.
	BreakdownFailed BreakdownStatus = "failed"
)

// Terminal returns true if the status can no longer change.
func (s BreakdownStatus) Terminal() bool {
	return s == BreakdownCompleted || s == BreakdownFailed
}

// Complexity hints how finely the provider should split a task.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Valid returns true if the complexity is a known value.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return true
	default:
		return false
	}
}

// BreakdownOptions tune a single breakdown request.
type BreakdownOptions struct {
	// Complexity is the requested granularity. Defaults to moderate.
	Complexity Complexity `json:"complexity_level,omitempty"`
	// FocusAreas lists aspects the provider should emphasize, in order.
	FocusAreas []string `json:"focus_areas,omitempty"`
}

// Validate checks the options against their allowed values.
func (o BreakdownOptions) Validate() error {
	if o.Complexity != "" && !o.Complexity.Valid() {
		return fmt.Errorf("invalid complexity_level %q (want simple, moderate or complex)", o.Complexity)
	}
	for i, area := range o.FocusAreas {
		if strings.TrimSpace(area) == "" {
			return fmt.Errorf("focus_areas[%d] is empty", i)
		}
	}
	return nil
}

// BreakdownRequest is the immutable input to one logical breakdown.
type BreakdownRequest struct {
	// TaskID is the parent task to decompose.
	TaskID string `json:"task_id"`
	// Title is the task title, echoed to the provider.
	Title string `json:"title"`
	// Description is the task description, echoed to the provider.
	Description string `json:"description"`
	// Options tune the request.
	Options BreakdownOptions `json:"options"`
}

// Breakdown is the lifecycle record for one logical breakdown request.
// Only the executor mutates it; retries advance AttemptCount and
// ErrorMessage on the same record rather than creating new ones.
type Breakdown struct {
	// ID is the unique identifier for this record.
	ID string `json:"id"`
	// TaskID is the parent task.
	TaskID string `json:"task_id"`
	// Status is the current lifecycle state.
	Status BreakdownStatus `json:"status"`
	// AttemptCount is the number of attempts made so far.
	AttemptCount int `json:"attempt_count"`
	// Prompt is the serialized request, set at creation.
	Prompt string `json:"prompt,omitempty"`
	// Response is the raw provider payload, set only on success.
	Response string `json:"response,omitempty"`
	// ErrorMessage holds the last attempt error or the final failure.
	ErrorMessage string `json:"error_message,omitempty"`
	// StartedAt is when the record was created.
	StartedAt time.Time `json:"started_at"`
	// CompletedAt is when the record reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SubtaskDraft is one proposed subtask as returned by the provider,
// before materialization.
type SubtaskDraft struct {
	// Title is required and must be non-empty.
	Title string `json:"title"`
	// Description is optional detail.
	Description string `json:"description,omitempty"`
	// EstimatedHours is an optional positive effort estimate.
	EstimatedHours *int `json:"estimated_hours,omitempty"`
}
