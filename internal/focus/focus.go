// Package focus resolves the active, input-focused and accessibility-focused
// windows from window snapshots and accessibility events.
//
// Resolution is split in two phases. Resolve computes the focus ids for a new
// generation; Stamp then writes the resolver-owned flags onto the
// descriptors. Producers only report input focus, so the active and
// accessibility-focused flags they send are never trusted.
//
// State is not safe for concurrent use. The engine mutates it under its lock.
package focus

import (
	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/window"
)

// State is the focus state of the live session.
type State struct {
	ActiveWindow               window.ID     `json:"active_window"`
	FocusedWindow              window.ID     `json:"focused_window"`
	AccessibilityFocusedWindow window.ID     `json:"accessibility_focused_window"`
	AccessibilityFocusNode     window.NodeID `json:"accessibility_focus_node"`
	TouchInteraction           bool          `json:"touch_interaction"`
}

// NewState returns the initial state: nothing focused, no touch in progress.
func NewState() State {
	return State{
		ActiveWindow:               window.InvalidID,
		FocusedWindow:              window.InvalidID,
		AccessibilityFocusedWindow: window.InvalidID,
		AccessibilityFocusNode:     window.UndefinedNode,
	}
}

// Reset returns s to its initial values.
func (s *State) Reset() {
	*s = NewState()
}

// Resolve updates the focus ids for a freshly populated generation. It
// reports whether any id changed.
func (s *State) Resolve(descs []window.Descriptor) bool {
	before := *s

	for _, d := range descs {
		if d.Focused {
			s.FocusedWindow = d.ID
			break
		}
	}

	if !s.TouchInteraction {
		s.ActiveWindow = s.FocusedWindow
	} else if !containsID(descs, s.ActiveWindow) {
		// The touched window went away; fall back to input focus.
		s.ActiveWindow = s.FocusedWindow
	}

	s.Prune(func(id window.ID) bool { return containsID(descs, id) })
	return *s != before
}

// Stamp sets the Active and AccessibilityFocused flags on exactly the
// descriptors whose ids match s.
func Stamp(descs []window.Descriptor, s State) {
	for i := range descs {
		descs[i].Active = descs[i].ID == s.ActiveWindow
		descs[i].AccessibilityFocused = descs[i].ID == s.AccessibilityFocusedWindow
	}
}

// Prune drops accessibility focus held by a window that is no longer present.
func (s *State) Prune(present func(window.ID) bool) bool {
	if s.AccessibilityFocusedWindow == window.InvalidID || present(s.AccessibilityFocusedWindow) {
		return false
	}
	s.AccessibilityFocusedWindow = window.InvalidID
	s.AccessibilityFocusNode = window.UndefinedNode
	return true
}

// OnHoverEnter retargets the active window while a touch interaction is in
// progress. Retargeting to the window that is already active is a no-op.
func (s *State) OnHoverEnter(id window.ID) bool {
	if !s.TouchInteraction || s.ActiveWindow == id {
		return false
	}
	s.ActiveWindow = id
	return true
}

// OnAccessibilityFocused moves accessibility focus to node in window id. When
// focus leaves another window, that window is returned so its focus can be
// cleared; otherwise the returned id is window.InvalidID. The boolean reports
// whether the accessibility-focused window changed. The tracked node always
// follows the event, within the same window too.
func (s *State) OnAccessibilityFocused(id window.ID, node window.NodeID) (window.ID, bool) {
	s.AccessibilityFocusNode = node
	if s.AccessibilityFocusedWindow == id {
		return window.InvalidID, false
	}
	previous := s.AccessibilityFocusedWindow
	s.AccessibilityFocusedWindow = id
	return previous, true
}

// OnAccessibilityFocusCleared handles focus leaving node in window id. The
// node is forgotten only if it is the tracked one. The window-level focus is
// dropped as well unless the clear came from an accessibility focus action,
// which means focus merely moved within the window. An explicit clear action
// drops it.
func (s *State) OnAccessibilityFocusCleared(id window.ID, node window.NodeID, action event.Action) bool {
	if s.AccessibilityFocusNode != node {
		return false
	}
	s.AccessibilityFocusNode = window.UndefinedNode
	if action.MovesAccessibilityFocus() || s.AccessibilityFocusedWindow != id {
		return false
	}
	s.AccessibilityFocusedWindow = window.InvalidID
	return true
}

// OnTouchInteractionStart marks a touch interaction as in progress. It
// reports whether the state changed; a second start is a no-op.
func (s *State) OnTouchInteractionStart() bool {
	if s.TouchInteraction {
		return false
	}
	s.TouchInteraction = true
	return true
}

// OnTouchInteractionEnd snaps the active window back to input focus. When
// focusOnlyInActive is set and the previous active window held accessibility
// focus, that window is returned so its focus can be cleared. The boolean
// reports whether the active window changed.
func (s *State) OnTouchInteractionEnd(focusOnlyInActive bool) (window.ID, bool) {
	s.TouchInteraction = false

	previous := s.ActiveWindow
	s.ActiveWindow = s.FocusedWindow
	if previous == s.ActiveWindow {
		return window.InvalidID, false
	}
	if focusOnlyInActive && previous != window.InvalidID && s.AccessibilityFocusedWindow == previous {
		return previous, true
	}
	return window.InvalidID, true
}

// OnWindowStateChanged applies a window-state change while no window list is
// tracked. focused is the window the window manager reports as focused; it is
// authoritative. The window becomes active when it is the focused one.
func (s *State) OnWindowStateChanged(id, focused window.ID) bool {
	before := *s
	s.FocusedWindow = focused
	if id != window.InvalidID && id == focused {
		s.ActiveWindow = id
	}
	return *s != before
}

func containsID(descs []window.Descriptor, id window.ID) bool {
	if id == window.InvalidID {
		return false
	}
	for _, d := range descs {
		if d.ID == id {
			return true
		}
	}
	return false
}
