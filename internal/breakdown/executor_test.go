package breakdown

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/taskpilot/taskpilot/internal/event"
	"github.com/taskpilot/taskpilot/internal/provider"
	"github.com/taskpilot/taskpilot/internal/store"
	"github.com/taskpilot/taskpilot/pkg/models"
)

// setupTestDB creates a migrated temporary database.
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

// insertTask creates a parent task.
func insertTask(t *testing.T, db *store.DB, title string) *models.Task {
	t.Helper()
	now := time.Now()
	task := &models.Task{
		ID:          uuid.New().String(),
		Title:       title,
		Description: "with OAuth and password flows",
		Status:      models.TaskStatusPending,
		Priority:    models.PriorityMedium,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.CreateTask(task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return task
}

// insertPendingRecord creates a pending breakdown record for the task.
func insertPendingRecord(t *testing.T, db *store.DB, taskID string) *models.Breakdown {
	t.Helper()
	rec := &models.Breakdown{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		StartedAt: time.Now(),
	}
	if err := db.CreateBreakdown(rec); err != nil {
		t.Fatalf("failed to create breakdown record: %v", err)
	}
	return rec
}

// stubGenerator replays a scripted sequence of results; the last entry
// repeats once the script is exhausted.
type stubGenerator struct {
	mu     sync.Mutex
	calls  int
	script []stubResult
}

type stubResult struct {
	drafts []models.SubtaskDraft
	raw    string
	err    error
}

func (g *stubGenerator) Generate(ctx context.Context, title, description string, opts models.BreakdownOptions) ([]models.SubtaskDraft, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	if i >= len(g.script) {
		i = len(g.script) - 1
	}
	g.calls++
	r := g.script[i]
	return r.drafts, r.raw, r.err
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// countingConsumer tallies events per kind.
type countingConsumer struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *countingConsumer) Name() string { return "counting" }

func (c *countingConsumer) Handle(e event.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return nil
}

func (c *countingConsumer) byKind(k event.Kind) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Event
	for _, e := range c.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

// waitForEvents blocks until the consumer has seen n events total.
func waitForEvents(t *testing.T, c *countingConsumer, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		got := len(c.events)
		c.mu.Unlock()
		if got >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("events not observed in time")
}

func fastConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxAttempts:    3,
		Backoff:        time.Millisecond,
		AttemptTimeout: 5 * time.Second,
	}
}

func drafts(titles ...string) []models.SubtaskDraft {
	var out []models.SubtaskDraft
	for _, title := range titles {
		out = append(out, models.SubtaskDraft{Title: title})
	}
	return out
}

func transientErr(msg string) error {
	// Untagged errors are treated as retryable transport faults.
	return errors.New(msg)
}

func terminalErr() error {
	// A response failing validation is terminal.
	_, err := provider.ParseResponse(`[{"description": "no title"}]`)
	return err
}

func TestExecutor_SucceedsFirstAttempt(t *testing.T) {
	db := setupTestDB(t)
	task := insertTask(t, db, "Build login page")
	rec := insertPendingRecord(t, db, task.ID)

	gen := &stubGenerator{script: []stubResult{
		{drafts: drafts("Design form", "Wire auth", "Add tests"), raw: `[...]`},
	}}
	bus := event.NewBus(8, 1)
	consumer := &countingConsumer{}
	bus.Subscribe(consumer)
	defer bus.Close()

	exec := NewExecutor(db, gen, bus, fastConfig())
	if err := exec.Run(context.Background(), rec, models.BreakdownRequest{
		TaskID: task.ID, Title: task.Title, Description: task.Description,
	}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, _ := db.GetBreakdown(rec.ID)
	if got.Status != models.BreakdownCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", got.AttemptCount)
	}
	if got.Response == "" {
		t.Error("raw response not persisted")
	}

	subtasks, _ := db.ListSubtasks(task.ID)
	if len(subtasks) != 3 {
		t.Fatalf("got %d subtasks, want 3", len(subtasks))
	}
	for i, s := range subtasks {
		if s.Order != i+1 {
			t.Errorf("subtasks[%d].Order = %d, want %d", i, s.Order, i+1)
		}
		if !s.GeneratedByAI {
			t.Errorf("subtasks[%d] not flagged as AI generated", i)
		}
	}

	parent, _ := db.GetTask(task.ID)
	if parent.BreakdownCompletedAt == nil {
		t.Error("task breakdown_completed_at not set")
	}

	waitForEvents(t, consumer, 1)
	completed := consumer.byKind(event.KindBreakdownCompleted)
	if len(completed) != 1 {
		t.Fatalf("got %d completed events, want 1", len(completed))
	}
	if completed[0].SubtasksCreated != 3 {
		t.Errorf("event SubtasksCreated = %d, want 3", completed[0].SubtasksCreated)
	}
}

func TestExecutor_RetriesThenSucceeds(t *testing.T) {
	db := setupTestDB(t)
	task := insertTask(t, db, "Flaky provider")
	rec := insertPendingRecord(t, db, task.ID)

	gen := &stubGenerator{script: []stubResult{
		{err: transientErr("connection refused")},
		{err: transientErr("gateway timeout")},
		{drafts: drafts("a", "b"), raw: `[...]`},
	}}
	bus := event.NewBus(8, 1)
	defer bus.Close()

	exec := NewExecutor(db, gen, bus, fastConfig())
	if err := exec.Run(context.Background(), rec, models.BreakdownRequest{TaskID: task.ID, Title: task.Title}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, _ := db.GetBreakdown(rec.ID)
	if got.Status != models.BreakdownCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	// Two failures plus the success.
	if got.AttemptCount != 3 {
		t.Errorf("AttemptCount = %d, want 3", got.AttemptCount)
	}
	if gen.callCount() != 3 {
		t.Errorf("generator called %d times, want 3", gen.callCount())
	}
}

func TestExecutor_ExhaustsAttempts(t *testing.T) {
	db := setupTestDB(t)
	task := insertTask(t, db, "Provider down")
	rec := insertPendingRecord(t, db, task.ID)

	gen := &stubGenerator{script: []stubResult{{err: transientErr("connection refused")}}}
	bus := event.NewBus(8, 1)
	consumer := &countingConsumer{}
	bus.Subscribe(consumer)
	defer bus.Close()

	exec := NewExecutor(db, gen, bus, fastConfig())
	if err := exec.Run(context.Background(), rec, models.BreakdownRequest{TaskID: task.ID, Title: task.Title}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, _ := db.GetBreakdown(rec.ID)
	if got.Status != models.BreakdownFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.AttemptCount != 3 {
		t.Errorf("AttemptCount = %d, want 3", got.AttemptCount)
	}
	if !strings.Contains(got.ErrorMessage, "3 attempts") {
		t.Errorf("ErrorMessage = %q, want mention of 3 attempts", got.ErrorMessage)
	}
	if gen.callCount() != 3 {
		t.Errorf("generator called %d times, want 3", gen.callCount())
	}

	subtasks, _ := db.ListSubtasks(task.ID)
	if len(subtasks) != 0 {
		t.Errorf("failed breakdown materialized %d subtasks", len(subtasks))
	}

	waitForEvents(t, consumer, 1)
	if len(consumer.byKind(event.KindBreakdownFailed)) != 1 {
		t.Error("expected exactly one failure event")
	}
}

func TestExecutor_TerminalErrorStopsRetrying(t *testing.T) {
	db := setupTestDB(t)
	task := insertTask(t, db, "Bad response")
	rec := insertPendingRecord(t, db, task.ID)

	gen := &stubGenerator{script: []stubResult{{err: terminalErr()}}}
	bus := event.NewBus(8, 1)
	defer bus.Close()

	exec := NewExecutor(db, gen, bus, fastConfig())
	if err := exec.Run(context.Background(), rec, models.BreakdownRequest{TaskID: task.ID, Title: task.Title}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, _ := db.GetBreakdown(rec.ID)
	if got.Status != models.BreakdownFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1 (no retries on terminal errors)", got.AttemptCount)
	}
	if gen.callCount() != 1 {
		t.Errorf("generator called %d times, want 1", gen.callCount())
	}
}

func TestExecutor_PersistenceFailureIsTerminal(t *testing.T) {
	db := setupTestDB(t)
	task := insertTask(t, db, "Storage trouble")
	rec := insertPendingRecord(t, db, task.ID)

	gen := &stubGenerator{script: []stubResult{{drafts: drafts("a"), raw: "[]"}}}
	bus := event.NewBus(8, 1)
	defer bus.Close()

	// Materialization targets a task that does not exist, so the batch
	// insert fails after a successful generation.
	exec := NewExecutor(db, gen, bus, fastConfig())
	if err := exec.Run(context.Background(), rec, models.BreakdownRequest{TaskID: "no-such-task", Title: "x"}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	got, _ := db.GetBreakdown(rec.ID)
	if got.Status != models.BreakdownFailed {
		t.Errorf("Status = %q, want failed", got.Status)
	}
	if got.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1 (generation is not retried)", got.AttemptCount)
	}
	if !strings.Contains(got.ErrorMessage, "PERSISTENCE") {
		t.Errorf("ErrorMessage = %q, want PERSISTENCE tag", got.ErrorMessage)
	}
	if gen.callCount() != 1 {
		t.Errorf("generator called %d times, want 1", gen.callCount())
	}
}

func TestExecutor_SkipsClaimedRecord(t *testing.T) {
	db := setupTestDB(t)
	task := insertTask(t, db, "Claimed")
	rec := insertPendingRecord(t, db, task.ID)

	// Another worker already advanced the record.
	if err := db.AdvanceBreakdown(rec.ID); err != nil {
		t.Fatalf("AdvanceBreakdown failed: %v", err)
	}

	gen := &stubGenerator{script: []stubResult{{drafts: drafts("x"), raw: "[]"}}}
	bus := event.NewBus(8, 1)
	defer bus.Close()

	exec := NewExecutor(db, gen, bus, fastConfig())
	if err := exec.Run(context.Background(), rec, models.BreakdownRequest{TaskID: task.ID, Title: task.Title}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if gen.callCount() != 0 {
		t.Errorf("generator called %d times on a claimed record, want 0", gen.callCount())
	}
	got, _ := db.GetBreakdown(rec.ID)
	if got.Status != models.BreakdownProcessing {
		t.Errorf("Status = %q, want processing left untouched", got.Status)
	}
}
