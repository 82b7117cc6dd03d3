package breakdown

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskpilot/taskpilot/internal/event"
	"github.com/taskpilot/taskpilot/internal/provider"
	"github.com/taskpilot/taskpilot/internal/store"
	"github.com/taskpilot/taskpilot/pkg/models"
)

// ErrDuplicateRequest is returned when a task already has a breakdown in
// flight. The new request is rejected rather than queued behind it.
var ErrDuplicateRequest = errors.New("task already has a breakdown in progress")

// ErrTaskNotFound is returned when the requested parent task does not exist.
var ErrTaskNotFound = errors.New("task not found")

// ErrQueueFull is returned when the pool cannot accept more requests.
var ErrQueueFull = errors.New("breakdown queue is full")

// PoolConfig configures the worker pool.
type PoolConfig struct {
	// DB is the shared database.
	DB *store.DB
	// Generator produces subtask drafts.
	Generator provider.Generator
	// Bus receives terminal events.
	Bus *event.Bus
	// Workers is the number of concurrent workers. Defaults to 4.
	Workers int
	// QueueSize bounds the pending request queue. Defaults to 64.
	QueueSize int
	// Executor tunes the retry state machine.
	Executor ExecutorConfig
}

// job pairs a created record with its immutable request.
type job struct {
	record *models.Breakdown
	req    models.BreakdownRequest
}

// Pool consumes breakdown requests on a fixed set of workers. Different
// tasks' breakdowns run fully in parallel; attempts within one request
// are strictly sequential inside a single worker.
type Pool struct {
	db       *store.DB
	executor *Executor

	queue chan job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// submitMu serializes the duplicate check against record creation so
	// two concurrent submits for the same task cannot both pass the guard.
	submitMu sync.Mutex
}

// NewPool creates and starts a Pool.
func NewPool(cfg PoolConfig) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		db:       cfg.DB,
		executor: NewExecutor(cfg.DB, cfg.Generator, cfg.Bus, cfg.Executor),
		queue:    make(chan job, queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

// Submit validates and enqueues one breakdown request. It returns the
// created pending record immediately; the caller never blocks on the
// provider. A task with an in-flight record is rejected with
// ErrDuplicateRequest and no new record is created.
func (p *Pool) Submit(req models.BreakdownRequest) (*models.Breakdown, error) {
	if err := req.Options.Validate(); err != nil {
		return nil, err
	}

	task, err := p.db.GetTask(req.TaskID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, req.TaskID)
	}
	if req.Title == "" {
		req.Title = task.Title
	}
	if req.Description == "" {
		req.Description = task.Description
	}

	p.submitMu.Lock()
	defer p.submitMu.Unlock()

	active, err := p.db.HasActiveBreakdown(req.TaskID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, fmt.Errorf("%w: task %s", ErrDuplicateRequest, req.TaskID)
	}

	prompt, _ := json.Marshal(req)
	rec := &models.Breakdown{
		ID:        uuid.New().String(),
		TaskID:    req.TaskID,
		Prompt:    string(prompt),
		StartedAt: time.Now(),
	}
	if err := p.db.CreateBreakdown(rec); err != nil {
		return nil, err
	}
	if err := p.db.MarkBreakdownRequested(req.TaskID); err != nil {
		log.Printf("[pool] mark breakdown requested for %s: %v", req.TaskID, err)
	}

	select {
	case p.queue <- job{record: rec, req: req}:
	default:
		// Roll the record forward to failed so the guard doesn't wedge.
		if err := p.db.AdvanceBreakdown(rec.ID); err == nil {
			_ = p.db.FailBreakdown(rec.ID, "queue full, request not scheduled", false)
		}
		return nil, ErrQueueFull
	}

	log.Printf("[pool] queued breakdown %s for task %s", rec.ID, req.TaskID)
	return rec, nil
}

// worker consumes jobs until the pool stops.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case j := <-p.queue:
			if err := p.executor.Run(p.ctx, j.record, j.req); err != nil {
				log.Printf("[pool] worker %d: breakdown %s: %v", id, j.record.ID, err)
			}
		}
	}
}

// Pending returns the number of queued, unstarted requests.
func (p *Pool) Pending() int {
	return len(p.queue)
}

// Stop halts the workers and waits for in-flight attempts to wind down.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}
