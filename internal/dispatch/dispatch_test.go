package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/window"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSink struct {
	mu      sync.Mutex
	events  []event.Event
	cleared []window.ID
	err     error
	panicOn event.Type
}

func (r *recordingSink) DeliverEvent(_ context.Context, ev event.Event) error {
	if r.panicOn != event.TypeUnknown && ev.Type == r.panicOn {
		panic("boom")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) ClearAccessibilityFocus(_ context.Context, id window.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared = append(r.cleared, id)
	return r.err
}

func (r *recordingSink) eventTypes() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Type, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func TestQueueDeliversInOrder(t *testing.T) {
	sink := &recordingSink{}
	q := NewQueue(sink, QueueConfig{Logger: discardLogger()})

	q.Event(event.New(event.ViewClicked, 1))
	q.ClearAccessibilityFocus(4)
	q.Event(event.New(event.WindowsChanged, window.InvalidID))
	require.Equal(t, 3, q.Len())

	q.Drain(context.Background())

	assert.Equal(t, []event.Type{event.ViewClicked, event.WindowsChanged}, sink.eventTypes())
	assert.Equal(t, []window.ID{4}, sink.cleared)
	assert.Equal(t, Stats{Delivered: 3}, q.Stats())
}

func TestQueueEventIsCopied(t *testing.T) {
	sink := &recordingSink{}
	q := NewQueue(sink, QueueConfig{Logger: discardLogger()})

	ev := event.New(event.ViewTextChanged, 1)
	ev.Text = []string{"before"}
	q.Event(ev)
	ev.Text[0] = "after"

	q.Drain(context.Background())
	require.Len(t, sink.events, 1)
	assert.Equal(t, "before", sink.events[0].Text[0])
}

func TestQueueRecoversFromFailingSink(t *testing.T) {
	sink := &recordingSink{panicOn: event.Announcement}
	q := NewQueue(sink, QueueConfig{Logger: discardLogger()})

	q.Event(event.New(event.Announcement, 1))
	q.Event(event.New(event.ViewFocused, 1))
	q.Drain(context.Background())

	assert.Equal(t, []event.Type{event.ViewFocused}, sink.eventTypes())
	stats := q.Stats()
	assert.Equal(t, uint64(1), stats.Failed)
	assert.Equal(t, uint64(1), stats.Delivered)

	sink.err = errors.New("unreachable")
	q.ClearAccessibilityFocus(2)
	q.Drain(context.Background())
	assert.Equal(t, uint64(2), q.Stats().Failed)
}

func TestQueueRunWorker(t *testing.T) {
	sink := &recordingSink{}
	q := NewQueue(sink, QueueConfig{Logger: discardLogger()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(done)
	}()

	q.Event(event.New(event.ViewScrolled, 3))
	require.Eventually(t, func() bool {
		return len(sink.eventTypes()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	ok := &recordingSink{}
	bad := &recordingSink{err: errors.New("down")}
	m := NewMultiSink(bad)
	m.Add(ok)

	err := m.DeliverEvent(context.Background(), event.New(event.ViewClicked, 1))
	require.Error(t, err)
	assert.Len(t, ok.events, 1, "later sinks still receive the event")
}

type fakeEmitter struct {
	path   dbus.ObjectPath
	name   string
	values []interface{}
}

func (f *fakeEmitter) Emit(path dbus.ObjectPath, name string, values ...interface{}) error {
	f.path, f.name, f.values = path, name, values
	return nil
}

func TestDBusSinkSignals(t *testing.T) {
	conn := &fakeEmitter{}
	s := newDBusSink(conn, "", "")

	ev := event.New(event.ViewFocused, 7)
	ev.SourceNodeID = 12
	ev.PackageName = "org.example.mail"
	require.NoError(t, s.DeliverEvent(context.Background(), ev))

	assert.Equal(t, dbus.ObjectPath(DefaultDBusPath), conn.path)
	assert.Equal(t, DefaultDBusInterface+".Event", conn.name)
	assert.Equal(t, []interface{}{"view_focused", int32(7), int64(12), "org.example.mail", int32(0)}, conn.values)

	require.NoError(t, s.ClearAccessibilityFocus(context.Background(), 7))
	assert.Equal(t, DefaultDBusInterface+".ClearAccessibilityFocus", conn.name)
	assert.NoError(t, s.Close())
}
