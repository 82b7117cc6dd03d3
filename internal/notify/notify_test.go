package notify

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskpilot/taskpilot/internal/event"
	"github.com/taskpilot/taskpilot/internal/store"
	"github.com/taskpilot/taskpilot/pkg/models"
)

func setupTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func insertTask(t *testing.T, db *store.DB) *models.Task {
	t.Helper()
	now := time.Now()
	task := &models.Task{
		ID:        uuid.New().String(),
		Title:     "Task",
		Status:    models.TaskStatusPending,
		Priority:  models.PriorityMedium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return task
}

func TestDBNotifier_CompletedEvent(t *testing.T) {
	db := setupTestDB(t)
	task := insertTask(t, db)

	n := NewDBNotifier(db)
	err := n.Handle(event.Event{
		Kind:            event.KindBreakdownCompleted,
		TaskID:          task.ID,
		SubtasksCreated: 5,
		Timestamp:       time.Now(),
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	notifications, err := db.ListNotifications(task.ID)
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifications))
	}
	if notifications[0].Kind != string(event.KindBreakdownCompleted) {
		t.Errorf("Kind = %q", notifications[0].Kind)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(notifications[0].Payload), &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload["subtasks_created"] != float64(5) {
		t.Errorf("subtasks_created = %v, want 5", payload["subtasks_created"])
	}
}

func TestDBNotifier_FailedEvent(t *testing.T) {
	db := setupTestDB(t)
	task := insertTask(t, db)

	n := NewDBNotifier(db)
	err := n.Handle(event.Event{
		Kind:      event.KindBreakdownFailed,
		TaskID:    task.ID,
		Error:     "failed after 3 attempts: connection refused",
		Timestamp: time.Now(),
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	notifications, _ := db.ListNotifications(task.ID)
	if len(notifications) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notifications))
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(notifications[0].Payload), &payload); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if payload["error"] != "failed after 3 attempts: connection refused" {
		t.Errorf("error payload = %v", payload["error"])
	}
}

func TestLogNotifier_NeverFails(t *testing.T) {
	n := LogNotifier{}
	if err := n.Handle(event.Event{Kind: event.KindBreakdownCompleted, TaskID: "t"}); err != nil {
		t.Errorf("Handle returned %v", err)
	}
	if err := n.Handle(event.Event{Kind: event.KindBreakdownFailed, TaskID: "t", Error: "x"}); err != nil {
		t.Errorf("Handle returned %v", err)
	}
}
