// Package breakdown implements the asynchronous breakdown pipeline: a
// worker pool picks up queued requests, a retrying executor drives each
// one through the provider and materialization, and a reconciler sweeps
// records orphaned by crashes.
package breakdown

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/taskpilot/taskpilot/internal/event"
	"github.com/taskpilot/taskpilot/internal/provider"
	"github.com/taskpilot/taskpilot/internal/store"
	"github.com/taskpilot/taskpilot/pkg/models"
)

const (
	// DefaultMaxAttempts is the retry budget per logical request.
	DefaultMaxAttempts = 3
	// DefaultBackoff is the fixed gap between attempts.
	DefaultBackoff = 10 * time.Second
	// DefaultAttemptTimeout is the wall-clock ceiling per attempt,
	// covering the provider call and materialization.
	DefaultAttemptTimeout = 120 * time.Second
)

// ExecutorConfig tunes the retry state machine. Zero values take the
// package defaults.
type ExecutorConfig struct {
	MaxAttempts    int
	Backoff        time.Duration
	AttemptTimeout time.Duration
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Backoff <= 0 {
		c.Backoff = DefaultBackoff
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	return c
}

// Executor runs one logical breakdown request through up to MaxAttempts
// attempts, updating the record's state between transitions and
// publishing exactly one terminal event.
type Executor struct {
	db  *store.DB
	gen provider.Generator
	mat *Materializer
	bus *event.Bus
	cfg ExecutorConfig
}

// NewExecutor creates an Executor.
func NewExecutor(db *store.DB, gen provider.Generator, bus *event.Bus, cfg ExecutorConfig) *Executor {
	return &Executor{
		db:  db,
		gen: gen,
		mat: NewMaterializer(db),
		bus: bus,
		cfg: cfg.withDefaults(),
	}
}

// Run executes the attempt loop for one breakdown record. The record must
// be pending; Run advances it to processing and finalizes it exactly once.
// Errors returned here are operational (storage faults while recording
// state) — attempt failures themselves are absorbed into the record.
func (e *Executor) Run(ctx context.Context, rec *models.Breakdown, req models.BreakdownRequest) error {
	if err := e.db.AdvanceBreakdown(rec.ID); err != nil {
		if errors.Is(err, store.ErrStaleTransition) {
			// Another worker has this record; nothing to do.
			log.Printf("[breakdown] record %s already claimed, skipping", rec.ID)
			return nil
		}
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		count, raw, err := e.attempt(ctx, req)
		if err == nil {
			return e.finalizeCompleted(rec, req, attempt, raw, count)
		}

		lastErr = err
		log.Printf("[breakdown] task %s attempt %d/%d failed: %v",
			req.TaskID, attempt, e.cfg.MaxAttempts, err)

		if !provider.Retryable(err) {
			return e.finalizeFailed(rec, req, attempt, err, true)
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}

		if err := e.db.RecordAttemptError(rec.ID, err.Error()); err != nil {
			return err
		}
		if err := e.wait(ctx); err != nil {
			// Shutdown mid-request: finalize rather than leave the record
			// processing for the reconciler to find. The failing attempt
			// was already counted by RecordAttemptError.
			return e.finalizeFailed(rec, req, attempt, fmt.Errorf("aborted: %w", err), false)
		}
	}

	return e.finalizeFailed(rec, req, e.cfg.MaxAttempts, lastErr, true)
}

// attempt performs one provider call and materializes the result, both
// under the same per-attempt deadline.
func (e *Executor) attempt(ctx context.Context, req models.BreakdownRequest) (int, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
	defer cancel()

	drafts, raw, err := e.gen.Generate(attemptCtx, req.Title, req.Description, req.Options)
	if err != nil {
		return 0, "", err
	}
	// The generation succeeded; retrying it because storage failed risks
	// duplicate generation calls, so a write failure here is terminal.
	count, err := e.mat.Materialize(attemptCtx, req.TaskID, drafts)
	if err != nil {
		return 0, "", provider.PersistenceError(err)
	}
	return count, raw, nil
}

// wait sleeps for the fixed backoff, bailing early on cancellation.
func (e *Executor) wait(ctx context.Context) error {
	timer := time.NewTimer(e.cfg.Backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) finalizeCompleted(rec *models.Breakdown, req models.BreakdownRequest, attempt int, raw string, count int) error {
	if err := e.db.CompleteBreakdown(rec.ID, raw); err != nil {
		if errors.Is(err, store.ErrStaleTransition) {
			log.Printf("[breakdown] record %s finalized elsewhere, suppressing duplicate completion", rec.ID)
			return nil
		}
		return err
	}
	if err := e.db.MarkBreakdownCompleted(req.TaskID, time.Now()); err != nil {
		log.Printf("[breakdown] mark task %s completed: %v", req.TaskID, err)
	}

	log.Printf("[breakdown] task %s completed: %d subtasks in %d attempt(s)",
		req.TaskID, count, attempt)
	e.bus.Publish(event.Event{
		Kind:            event.KindBreakdownCompleted,
		TaskID:          req.TaskID,
		SubtasksCreated: count,
	})
	return nil
}

func (e *Executor) finalizeFailed(rec *models.Breakdown, req models.BreakdownRequest, attempts int, cause error, countLastAttempt bool) error {
	msg := fmt.Sprintf("failed after %d attempts: %v", attempts, cause)
	if err := e.db.FailBreakdown(rec.ID, msg, countLastAttempt); err != nil {
		if errors.Is(err, store.ErrStaleTransition) {
			log.Printf("[breakdown] record %s finalized elsewhere, suppressing duplicate failure", rec.ID)
			return nil
		}
		return err
	}

	log.Printf("[breakdown] task %s failed: %s", req.TaskID, msg)
	e.bus.Publish(event.Event{
		Kind:   event.KindBreakdownFailed,
		TaskID: req.TaskID,
		Error:  msg,
	})
	return nil
}
