package event

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingConsumer collects events it receives.
type recordingConsumer struct {
	name string

	mu     sync.Mutex
	events []Event
	err    error
	panics bool
}

func (c *recordingConsumer) Name() string { return c.name }

func (c *recordingConsumer) Handle(e Event) error {
	if c.panics {
		panic("consumer exploded")
	}
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return c.err
}

func (c *recordingConsumer) received() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBus_DeliversToAllConsumers(t *testing.T) {
	bus := NewBus(8, 2)
	defer bus.Close()

	a := &recordingConsumer{name: "a"}
	b := &recordingConsumer{name: "b"}
	bus.Subscribe(a)
	bus.Subscribe(b)

	bus.Publish(Event{Kind: KindBreakdownCompleted, TaskID: "t1", SubtasksCreated: 4})

	waitFor(t, func() bool {
		return len(a.received()) == 1 && len(b.received()) == 1
	})

	got := a.received()[0]
	if got.Kind != KindBreakdownCompleted || got.TaskID != "t1" || got.SubtasksCreated != 4 {
		t.Errorf("unexpected event: %+v", got)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp not stamped on publish")
	}
}

func TestBus_ConsumerErrorDoesNotStopOthers(t *testing.T) {
	bus := NewBus(8, 1)
	defer bus.Close()

	failing := &recordingConsumer{name: "failing", err: errors.New("boom")}
	ok := &recordingConsumer{name: "ok"}
	bus.Subscribe(failing)
	bus.Subscribe(ok)

	bus.Publish(Event{Kind: KindBreakdownFailed, TaskID: "t1", Error: "gave up"})
	bus.Publish(Event{Kind: KindBreakdownFailed, TaskID: "t2", Error: "gave up"})

	waitFor(t, func() bool { return len(ok.received()) == 2 })
}

func TestBus_ConsumerPanicIsContained(t *testing.T) {
	bus := NewBus(8, 1)
	defer bus.Close()

	panicking := &recordingConsumer{name: "panicking", panics: true}
	ok := &recordingConsumer{name: "ok"}
	bus.Subscribe(panicking)
	bus.Subscribe(ok)

	bus.Publish(Event{Kind: KindBreakdownCompleted, TaskID: "t1"})

	waitFor(t, func() bool { return len(ok.received()) == 1 })
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	// One worker, a blocking consumer and a tiny queue: extra publishes
	// must drop instead of blocking the caller.
	bus := NewBus(1, 1)
	defer bus.Close()

	release := make(chan struct{})
	bus.Subscribe(consumerFunc(func(Event) error {
		<-release
		return nil
	}))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Kind: KindBreakdownCompleted, TaskID: "t"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}
	close(release)

	if bus.DroppedCount() == 0 {
		t.Error("expected dropped deliveries with a full queue")
	}
}

func TestBus_PublishAfterCloseIsIgnored(t *testing.T) {
	bus := NewBus(8, 1)
	c := &recordingConsumer{name: "c"}
	bus.Subscribe(c)

	bus.Close()
	bus.Publish(Event{Kind: KindBreakdownCompleted, TaskID: "t1"})

	if len(c.received()) != 0 {
		t.Error("event delivered after close")
	}

	// Second close is a no-op.
	bus.Close()
}

// consumerFunc adapts a function to the Consumer interface.
type consumerFunc func(Event) error

func (f consumerFunc) Name() string         { return "func" }
func (f consumerFunc) Handle(e Event) error { return f(e) }
