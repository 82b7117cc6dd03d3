// Package notify contains the event-bus consumers that turn terminal
// breakdown events into user-facing notifications. Consumers are
// best-effort: their failures never reach the pipeline.
package notify

import (
	"encoding/json"
	"log"

	"github.com/taskpilot/taskpilot/internal/event"
	"github.com/taskpilot/taskpilot/internal/store"
)

// LogNotifier writes terminal events to the process log.
type LogNotifier struct{}

// Name implements event.Consumer.
func (LogNotifier) Name() string { return "log" }

// Handle implements event.Consumer.
func (LogNotifier) Handle(e event.Event) error {
	switch e.Kind {
	case event.KindBreakdownCompleted:
		log.Printf("[notify] task %s: breakdown completed, %d subtasks created",
			e.TaskID, e.SubtasksCreated)
	case event.KindBreakdownFailed:
		log.Printf("[notify] task %s: breakdown failed: %s", e.TaskID, e.Error)
	}
	return nil
}

// DBNotifier records terminal events as notification rows for the UI to
// surface later.
type DBNotifier struct {
	db *store.DB
}

// NewDBNotifier creates a DBNotifier.
func NewDBNotifier(db *store.DB) *DBNotifier {
	return &DBNotifier{db: db}
}

// Name implements event.Consumer.
func (n *DBNotifier) Name() string { return "database" }

// Handle implements event.Consumer.
func (n *DBNotifier) Handle(e event.Event) error {
	payload, err := json.Marshal(payloadFor(e))
	if err != nil {
		return err
	}
	return n.db.CreateNotification(string(e.Kind), e.TaskID, string(payload))
}

// payloadFor shapes the notification body per event kind.
func payloadFor(e event.Event) map[string]any {
	switch e.Kind {
	case event.KindBreakdownCompleted:
		return map[string]any{
			"task_id":          e.TaskID,
			"subtasks_created": e.SubtasksCreated,
		}
	default:
		return map[string]any{
			"task_id": e.TaskID,
			"error":   e.Error,
		}
	}
}
