package breakdown

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskpilot/taskpilot/internal/event"
	"github.com/taskpilot/taskpilot/pkg/models"
)

func TestReconciler_SweepFailsOrphans(t *testing.T) {
	db := setupTestDB(t)
	bus := event.NewBus(8, 1)
	consumer := &countingConsumer{}
	bus.Subscribe(consumer)
	defer bus.Close()

	// Orphan: processing since two hours ago, worker long gone.
	task := insertTask(t, db, "Orphaned")
	orphan := &models.Breakdown{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		StartedAt: time.Now().Add(-2 * time.Hour),
	}
	if err := db.CreateBreakdown(orphan); err != nil {
		t.Fatalf("CreateBreakdown failed: %v", err)
	}
	if err := db.AdvanceBreakdown(orphan.ID); err != nil {
		t.Fatalf("AdvanceBreakdown failed: %v", err)
	}

	// A live processing record stays untouched.
	liveTask := insertTask(t, db, "Live")
	live := insertPendingRecord(t, db, liveTask.ID)
	if err := db.AdvanceBreakdown(live.ID); err != nil {
		t.Fatalf("AdvanceBreakdown failed: %v", err)
	}

	r := NewReconciler(db, bus, time.Hour, time.Minute)
	swept, err := r.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	got, _ := db.GetBreakdown(orphan.ID)
	if got.Status != models.BreakdownFailed {
		t.Errorf("orphan status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "reconciled") {
		t.Errorf("ErrorMessage = %q, want reconciled marker", got.ErrorMessage)
	}
	// The reconciler never invents attempts.
	if got.AttemptCount != 0 {
		t.Errorf("AttemptCount = %d, want 0", got.AttemptCount)
	}

	stillLive, _ := db.GetBreakdown(live.ID)
	if stillLive.Status != models.BreakdownProcessing {
		t.Errorf("live record status = %q, want processing", stillLive.Status)
	}

	// The failure is announced so consumers can notify.
	waitForEvents(t, consumer, 1)
	failures := consumer.byKind(event.KindBreakdownFailed)
	if len(failures) != 1 || failures[0].TaskID != task.ID {
		t.Errorf("unexpected failure events: %+v", failures)
	}

	// The guard lifts: the task can be resubmitted.
	active, err := db.HasActiveBreakdown(task.ID)
	if err != nil {
		t.Fatalf("HasActiveBreakdown failed: %v", err)
	}
	if active {
		t.Error("task still blocked after reconciliation")
	}
}

func TestReconciler_SweepFailsStalePending(t *testing.T) {
	db := setupTestDB(t)
	bus := event.NewBus(8, 1)
	consumer := &countingConsumer{}
	bus.Subscribe(consumer)
	defer bus.Close()

	// Enqueued a day ago and never picked up: a crash between submit and
	// worker pickup, or a one-shot submit that exited before the worker ran.
	task := insertTask(t, db, "Abandoned")
	stale := &models.Breakdown{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		StartedAt: time.Now().Add(-24 * time.Hour),
	}
	if err := db.CreateBreakdown(stale); err != nil {
		t.Fatalf("CreateBreakdown failed: %v", err)
	}

	r := NewReconciler(db, bus, time.Hour, time.Minute)
	swept, err := r.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	got, _ := db.GetBreakdown(stale.ID)
	if got.Status != models.BreakdownFailed {
		t.Errorf("stale pending status = %q, want failed", got.Status)
	}
	if !strings.Contains(got.ErrorMessage, "never picked up") {
		t.Errorf("ErrorMessage = %q, want never-picked-up marker", got.ErrorMessage)
	}

	// The guard lifts: the task can be resubmitted.
	active, err := db.HasActiveBreakdown(task.ID)
	if err != nil {
		t.Fatalf("HasActiveBreakdown failed: %v", err)
	}
	if active {
		t.Error("task still blocked after reconciliation")
	}

	waitForEvents(t, consumer, 1)
	failures := consumer.byKind(event.KindBreakdownFailed)
	if len(failures) != 1 || failures[0].TaskID != task.ID {
		t.Errorf("unexpected failure events: %+v", failures)
	}
}

func TestReconciler_SweepEmpty(t *testing.T) {
	db := setupTestDB(t)
	bus := event.NewBus(8, 1)
	defer bus.Close()

	r := NewReconciler(db, bus, time.Hour, time.Minute)
	swept, err := r.Sweep()
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if swept != 0 {
		t.Errorf("swept = %d, want 0", swept)
	}
}

func TestReconciler_DefaultMaxAge(t *testing.T) {
	db := setupTestDB(t)
	bus := event.NewBus(8, 1)
	defer bus.Close()

	r := NewReconciler(db, bus, 0, 0)
	want := DefaultAttemptTimeout*DefaultMaxAttempts + DefaultBackoff*(DefaultMaxAttempts-1)
	if r.maxAge != want {
		t.Errorf("maxAge = %v, want %v", r.maxAge, want)
	}
	if r.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", r.interval)
	}
}
