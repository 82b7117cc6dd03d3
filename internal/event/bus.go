// Package event provides the terminal-event hand-off between the
// breakdown pipeline and its notification consumers. Delivery is
// asynchronous and best-effort: a consumer failure is logged and never
// rolls back or retries the finalization that produced the event.
package event

import (
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies the terminal outcome an event reports.
type Kind string

const (
	// KindBreakdownCompleted fires once when a breakdown finalizes completed.
	KindBreakdownCompleted Kind = "breakdown.completed"
	// KindBreakdownFailed fires once when a breakdown finalizes failed.
	KindBreakdownFailed Kind = "breakdown.failed"
)

// Event is one terminal breakdown outcome.
type Event struct {
	// Kind is the outcome.
	Kind Kind
	// TaskID is the parent task the breakdown belonged to.
	TaskID string
	// SubtasksCreated is the number of subtasks materialized (success only).
	SubtasksCreated int
	// Error is the final failure message (failure only).
	Error string
	// Timestamp is when the event was published.
	Timestamp time.Time
}

// Consumer handles events. Returned errors are logged, not propagated.
type Consumer interface {
	// Name identifies the consumer in logs.
	Name() string
	// Handle processes one event.
	Handle(Event) error
}

// delivery pairs an event with one consumer for async dispatch.
type delivery struct {
	event    Event
	consumer Consumer
}

// Bus fans events out to registered consumers on background workers.
type Bus struct {
	mu        sync.RWMutex
	consumers []Consumer

	queue   chan delivery
	done    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
	dropped atomic.Uint64
}

// NewBus creates a Bus with the given queue capacity and worker count.
func NewBus(queueSize, workers int) *Bus {
	if queueSize <= 0 {
		queueSize = 64
	}
	if workers <= 0 {
		workers = 2
	}

	b := &Bus{
		queue: make(chan delivery, queueSize),
		done:  make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

// Subscribe registers a consumer for all subsequent events.
func (b *Bus) Subscribe(c Consumer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumers = append(b.consumers, c)
}

// Publish queues the event for every registered consumer. It never
// blocks the caller: if the queue is full the delivery is dropped and
// counted, which keeps notification pressure away from the pipeline.
func (b *Bus) Publish(e Event) {
	if b.closed.Load() {
		log.Printf("[event] publish on closed bus dropped: kind=%s task=%s", e.Kind, e.TaskID)
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	consumers := make([]Consumer, len(b.consumers))
	copy(consumers, b.consumers)
	b.mu.RUnlock()

	for _, c := range consumers {
		select {
		case b.queue <- delivery{event: e, consumer: c}:
		case <-b.done:
			return
		default:
			count := b.dropped.Add(1)
			log.Printf("[event] queue full, dropped delivery (total dropped: %d): kind=%s consumer=%s",
				count, e.Kind, c.Name())
		}
	}
}

// DroppedCount returns the total deliveries dropped due to a full queue.
func (b *Bus) DroppedCount() uint64 {
	return b.dropped.Load()
}

// Close stops accepting events and waits for in-flight deliveries.
// Safe to call multiple times.
func (b *Bus) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	close(b.done)
	b.wg.Wait()
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.done:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case d := <-b.queue:
					b.deliver(d)
				default:
					return
				}
			}
		case d := <-b.queue:
			b.deliver(d)
		}
	}
}

// deliver invokes one consumer, containing both errors and panics.
func (b *Bus) deliver(d delivery) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[event] consumer %s panicked on %s: %v\n%s",
				d.consumer.Name(), d.event.Kind, r, debug.Stack())
		}
	}()

	if err := d.consumer.Handle(d.event); err != nil {
		log.Printf("[event] consumer %s failed on %s for task %s: %v",
			d.consumer.Name(), d.event.Kind, d.event.TaskID, err)
	}
}
