package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/window"
)

// LogSink writes every notification to a logger at debug level.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) DeliverEvent(_ context.Context, ev event.Event) error {
	s.Logger.Debug("event",
		"type", ev.Type,
		"window_id", ev.WindowID,
		"node", ev.SourceNodeID,
		"package", ev.PackageName,
		"session", ev.Session)
	return nil
}

func (s LogSink) ClearAccessibilityFocus(_ context.Context, id window.ID) error {
	s.Logger.Debug("clear accessibility focus", "window_id", id)
	return nil
}

// MultiSink fans notifications out to a changing set of sinks. Every sink
// sees every notification even when an earlier one fails.
type MultiSink struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewMultiSink creates a sink delivering to sinks in order.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Add appends a sink.
func (m *MultiSink) Add(s Sink) {
	m.mu.Lock()
	m.sinks = append(m.sinks, s)
	m.mu.Unlock()
}

func (m *MultiSink) snapshot() []Sink {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Sink, len(m.sinks))
	copy(out, m.sinks)
	return out
}

func (m *MultiSink) DeliverEvent(ctx context.Context, ev event.Event) error {
	var errs []error
	for _, s := range m.snapshot() {
		if err := s.DeliverEvent(ctx, ev.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) ClearAccessibilityFocus(ctx context.Context, id window.ID) error {
	var errs []error
	for _, s := range m.snapshot() {
		if err := s.ClearAccessibilityFocus(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
