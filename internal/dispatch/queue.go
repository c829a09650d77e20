// Package dispatch delivers engine notifications to observers off the
// engine's lock. Producers enqueue without blocking; one worker drains the
// queue in order and hands each notification to a Sink.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/window"
)

// Kind is the kind of a notification.
type Kind int

const (
	KindEvent Kind = iota
	KindClearAccessibilityFocus
)

func (k Kind) String() string {
	if k == KindClearAccessibilityFocus {
		return "clear_accessibility_focus"
	}
	return "event"
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "event":
		*k = KindEvent
	case "clear_accessibility_focus":
		*k = KindClearAccessibilityFocus
	default:
		return fmt.Errorf("unknown notification kind %q", b)
	}
	return nil
}

// Notification is one unit of work for the delivery worker.
type Notification struct {
	Kind   Kind         `json:"kind"`
	Event  *event.Event `json:"event,omitempty"`
	Window window.ID    `json:"window_id,omitempty"`
}

// Sink receives gated notifications.
type Sink interface {
	DeliverEvent(ctx context.Context, ev event.Event) error
	ClearAccessibilityFocus(ctx context.Context, id window.ID) error
}

// QueueConfig holds configuration for the queue.
type QueueConfig struct {
	Logger *slog.Logger
}

// Stats counts notifications handled by the worker.
type Stats struct {
	Pending   int    `json:"pending"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
}

// Queue is an unbounded FIFO of notifications drained by a single worker.
type Queue struct {
	mu      sync.Mutex
	pending []Notification
	wake    chan struct{}

	sink   Sink
	logger *slog.Logger

	delivered atomic.Uint64
	failed    atomic.Uint64
}

// NewQueue creates a queue delivering to sink.
func NewQueue(sink Sink, cfg QueueConfig) *Queue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		wake:   make(chan struct{}, 1),
		sink:   sink,
		logger: logger,
	}
}

// Event enqueues an event for delivery.
func (q *Queue) Event(ev event.Event) {
	ev = ev.Clone()
	q.push(Notification{Kind: KindEvent, Event: &ev, Window: ev.WindowID})
}

// ClearAccessibilityFocus enqueues an instruction to clear accessibility
// focus in window id.
func (q *Queue) ClearAccessibilityFocus(id window.ID) {
	q.push(Notification{Kind: KindClearAccessibilityFocus, Window: id})
}

func (q *Queue) push(n Notification) {
	q.mu.Lock()
	q.pending = append(q.pending, n)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) pop() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Notification{}, false
	}
	n := q.pending[0]
	q.pending[0] = Notification{}
	q.pending = q.pending[1:]
	return n, true
}

// Len returns the number of notifications waiting for the worker.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Stats returns delivery counters.
func (q *Queue) Stats() Stats {
	return Stats{
		Pending:   q.Len(),
		Delivered: q.delivered.Load(),
		Failed:    q.failed.Load(),
	}
}

// Run drains the queue until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	q.logger.Info("dispatch worker started")
	for {
		q.Drain(ctx)
		select {
		case <-ctx.Done():
			q.logger.Info("dispatch worker stopped", "pending", q.Len())
			return
		case <-q.wake:
		}
	}
}

// Drain delivers every queued notification on the calling goroutine.
func (q *Queue) Drain(ctx context.Context) {
	for {
		n, ok := q.pop()
		if !ok {
			return
		}
		q.deliver(ctx, n)
	}
}

func (q *Queue) deliver(ctx context.Context, n Notification) {
	// A misbehaving sink must not take the worker down.
	defer func() {
		if err := recover(); err != nil {
			q.failed.Add(1)
			q.logger.Error("dispatch panic recovered", "kind", n.Kind, "error", err)
		}
	}()

	var err error
	switch n.Kind {
	case KindEvent:
		err = q.sink.DeliverEvent(ctx, *n.Event)
	case KindClearAccessibilityFocus:
		err = q.sink.ClearAccessibilityFocus(ctx, n.Window)
	}
	if err != nil {
		q.failed.Add(1)
		q.logger.Warn("dispatch: delivery failed",
			"kind", n.Kind,
			"window_id", n.Window,
			"error", err)
		return
	}
	q.delivered.Add(1)
}
