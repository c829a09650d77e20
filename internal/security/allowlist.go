package security

import (
	"sort"

	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/window"
)

// TypeSet is an immutable set of event types.
type TypeSet struct {
	members map[event.Type]struct{}
}

// NewTypeSet builds a set from types.
func NewTypeSet(types ...event.Type) TypeSet {
	m := make(map[event.Type]struct{}, len(types))
	for _, t := range types {
		m[t] = struct{}{}
	}
	return TypeSet{members: m}
}

// Contains reports whether t is a member.
func (s TypeSet) Contains(t event.Type) bool {
	_, ok := s.members[t]
	return ok
}

// Types returns the members in ascending order.
func (s TypeSet) Types() []event.Type {
	out := make([]event.Type, 0, len(s.members))
	for t := range s.members {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// DispatchAllowList holds the event types that are delivered regardless of
// the window they originate from: global window state changes and events
// generated by the user touching the screen.
var DispatchAllowList = NewTypeSet(
	event.WindowStateChanged,
	event.NotificationStateChanged,
	event.Announcement,
	event.TouchExplorationGestureStart,
	event.TouchExplorationGestureEnd,
	event.GestureDetectionStart,
	event.GestureDetectionEnd,
	event.TouchInteractionStart,
	event.TouchInteractionEnd,
	event.ViewHoverEnter,
	event.ViewHoverExit,
	event.AssistReadingContext,
	event.WindowsChanged,
)

// SourceAllowList holds the event types whose source node may be handed to
// observers. All other events lose their source before delivery.
var SourceAllowList = NewTypeSet(
	event.ViewClicked,
	event.ViewFocused,
	event.ViewHoverEnter,
	event.ViewHoverExit,
	event.ViewLongClicked,
	event.ViewTextChanged,
	event.WindowStateChanged,
	event.ViewSelected,
	event.WindowContentChanged,
	event.ViewTextSelectionChanged,
	event.ViewScrolled,
	event.ViewAccessibilityFocused,
	event.ViewAccessibilityFocusCleared,
	event.ViewTextTraversedAtMovementGranularity,
)

// View is the part of the engine state the gate needs. The engine fills it
// in while holding its lock.
type View struct {
	ActiveWindow window.ID
	HasWindow    func(window.ID) bool
}

func (v View) has(id window.ID) bool {
	return v.HasWindow != nil && v.HasWindow(id)
}

// CanObserveFullSource reports whether events of type t keep their source
// node.
func CanObserveFullSource(t event.Type) bool {
	return SourceAllowList.Contains(t)
}

// RedactSource returns ev without its source node unless its type is on the
// source allow-list.
func RedactSource(ev event.Event) event.Event {
	if CanObserveFullSource(ev.Type) {
		return ev
	}
	ev.SourceNodeID = window.UndefinedNode
	return ev
}
