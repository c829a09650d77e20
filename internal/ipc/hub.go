package ipc

import (
	"context"
	"log/slog"
	"sync"

	"github.com/1broseidon/a11yd/internal/dispatch"
	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/security"
	"github.com/1broseidon/a11yd/internal/window"
)

// DefaultSubscriberBuffer is the per-subscriber backlog before notifications
// are dropped.
const DefaultSubscriberBuffer = 256

// Hub fans notifications out to SUBSCRIBE connections, filtered by each
// subscriber's capabilities. It is a dispatch.Sink and so runs on the
// delivery worker; a slow subscriber loses notifications instead of
// stalling the others.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]*subscriber
	next   int
	buffer int
	logger *slog.Logger
}

type subscriber struct {
	caps    func() security.Capabilities
	ch      chan dispatch.Notification
	dropped uint64
}

var _ dispatch.Sink = (*Hub)(nil)

// NewHub creates a hub. A non-positive buffer uses DefaultSubscriberBuffer.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[int]*subscriber),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber whose capabilities are read through caps
// on every delivery. The returned cancel func must be called once the
// subscriber goes away; it closes the channel.
func (h *Hub) Subscribe(caps func() security.Capabilities) (<-chan dispatch.Notification, func()) {
	sub := &subscriber{caps: caps, ch: make(chan dispatch.Notification, h.buffer)}

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(sub.ch)
			h.mu.Unlock()
		})
	}
	return sub.ch, cancel
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// DeliverEvent hands ev to every subscriber allowed to see it.
func (h *Hub) DeliverEvent(_ context.Context, ev event.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		filtered, ok := filterEvent(sub.caps(), ev)
		if !ok {
			continue
		}
		h.offer(id, sub, dispatch.Notification{Kind: dispatch.KindEvent, Event: &filtered, Window: filtered.WindowID})
	}
	return nil
}

// ClearAccessibilityFocus hands the instruction to subscribers that may look
// into windows.
func (h *Hub) ClearAccessibilityFocus(_ context.Context, id window.ID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for subID, sub := range h.subs {
		if !security.CanRetrieveWindowContent(sub.caps()) {
			continue
		}
		h.offer(subID, sub, dispatch.Notification{Kind: dispatch.KindClearAccessibilityFocus, Window: id})
	}
	return nil
}

func (h *Hub) offer(id int, sub *subscriber, n dispatch.Notification) {
	select {
	case sub.ch <- n:
	default:
		sub.dropped++
		if sub.dropped == 1 || sub.dropped%100 == 0 {
			h.logger.Warn("subscriber backlog full, dropping notifications",
				"subscriber", id,
				"dropped", sub.dropped)
		}
	}
}

// filterEvent applies subscriber capabilities to ev. Windows-changed only
// reaches subscribers that introspect windows, and the source node is
// withheld from subscribers that may not retrieve window content.
func filterEvent(caps security.Capabilities, ev event.Event) (event.Event, bool) {
	if ev.Type == event.WindowsChanged && !security.CanRetrieveWindows(caps) {
		return event.Event{}, false
	}
	ev = ev.Clone()
	if !security.CanRetrieveWindowContent(caps) {
		ev.SourceNodeID = window.UndefinedNode
	}
	return ev, true
}
