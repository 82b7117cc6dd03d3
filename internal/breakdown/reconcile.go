package breakdown

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/taskpilot/taskpilot/internal/event"
	"github.com/taskpilot/taskpilot/internal/store"
	"github.com/taskpilot/taskpilot/pkg/models"
)

// Reconciler fails breakdown records stranded in pending or processing
// by a crash or shutdown. Without it a dead record would block the
// duplicate-request guard for its task forever.
type Reconciler struct {
	db       *store.DB
	bus      *event.Bus
	maxAge   time.Duration
	interval time.Duration
}

// NewReconciler creates a Reconciler. maxAge should exceed the worst-case
// legitimate run (attempt timeout times max attempts plus backoff);
// records processing longer than that are considered orphaned.
func NewReconciler(db *store.DB, bus *event.Bus, maxAge, interval time.Duration) *Reconciler {
	if maxAge <= 0 {
		maxAge = DefaultAttemptTimeout*DefaultMaxAttempts + DefaultBackoff*(DefaultMaxAttempts-1)
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{db: db, bus: bus, maxAge: maxAge, interval: interval}
}

// Run sweeps periodically until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(); err != nil {
				log.Printf("[reconcile] sweep failed: %v", err)
			}
		}
	}
}

// Sweep fails every orphaned record once and returns how many it touched.
func (r *Reconciler) Sweep() (int, error) {
	stuck, err := r.db.StuckBreakdowns(r.maxAge)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, rec := range stuck {
		msg := fmt.Sprintf("reconciled: processing exceeded %s, worker presumed dead", r.maxAge)
		if rec.Status == models.BreakdownPending {
			// Never picked up: advance first so the failure transition
			// finds the record in processing.
			msg = fmt.Sprintf("reconciled: pending exceeded %s, request never picked up", r.maxAge)
			if err := r.db.AdvanceBreakdown(rec.ID); err != nil {
				// A worker claimed it between the query and here.
				log.Printf("[reconcile] advance record %s: %v", rec.ID, err)
				continue
			}
		}
		if err := r.db.FailBreakdown(rec.ID, msg, false); err != nil {
			// A worker may have finalized it between the query and here.
			log.Printf("[reconcile] fail record %s: %v", rec.ID, err)
			continue
		}
		swept++
		log.Printf("[reconcile] failed orphaned breakdown %s (task %s)", rec.ID, rec.TaskID)
		r.bus.Publish(event.Event{
			Kind:   event.KindBreakdownFailed,
			TaskID: rec.TaskID,
			Error:  msg,
		})
	}
	return swept, nil
}
