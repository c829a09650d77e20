// Package event defines the accessibility events exchanged between window
// producers, the coordination engine and observers.
package event

import (
	"fmt"
	"strings"
	"time"

	"github.com/1broseidon/a11yd/internal/window"
)

// Type identifies the kind of accessibility event.
type Type int

const (
	TypeUnknown Type = iota
	ViewClicked
	ViewLongClicked
	ViewSelected
	ViewFocused
	ViewTextChanged
	WindowStateChanged
	NotificationStateChanged
	ViewHoverEnter
	ViewHoverExit
	TouchExplorationGestureStart
	TouchExplorationGestureEnd
	WindowContentChanged
	ViewScrolled
	ViewTextSelectionChanged
	Announcement
	ViewAccessibilityFocused
	ViewAccessibilityFocusCleared
	ViewTextTraversedAtMovementGranularity
	GestureDetectionStart
	GestureDetectionEnd
	TouchInteractionStart
	TouchInteractionEnd
	WindowsChanged
	ViewContextClicked
	AssistReadingContext
)

var typeNames = map[Type]string{
	ViewClicked:                            "view_clicked",
	ViewLongClicked:                        "view_long_clicked",
	ViewSelected:                           "view_selected",
	ViewFocused:                            "view_focused",
	ViewTextChanged:                        "view_text_changed",
	WindowStateChanged:                     "window_state_changed",
	NotificationStateChanged:               "notification_state_changed",
	ViewHoverEnter:                         "view_hover_enter",
	ViewHoverExit:                          "view_hover_exit",
	TouchExplorationGestureStart:           "touch_exploration_gesture_start",
	TouchExplorationGestureEnd:             "touch_exploration_gesture_end",
	WindowContentChanged:                   "window_content_changed",
	ViewScrolled:                           "view_scrolled",
	ViewTextSelectionChanged:               "view_text_selection_changed",
	Announcement:                           "announcement",
	ViewAccessibilityFocused:               "view_accessibility_focused",
	ViewAccessibilityFocusCleared:          "view_accessibility_focus_cleared",
	ViewTextTraversedAtMovementGranularity: "view_text_traversed_at_movement_granularity",
	GestureDetectionStart:                  "gesture_detection_start",
	GestureDetectionEnd:                    "gesture_detection_end",
	TouchInteractionStart:                  "touch_interaction_start",
	TouchInteractionEnd:                    "touch_interaction_end",
	WindowsChanged:                         "windows_changed",
	ViewContextClicked:                     "view_context_clicked",
	AssistReadingContext:                   "assist_reading_context",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseType converts an event type name to a Type.
func ParseType(s string) (Type, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	for t, name := range typeNames {
		if name == key {
			return t, nil
		}
	}
	return TypeUnknown, fmt.Errorf("unknown event type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Types returns every known event type in declaration order.
func Types() []Type {
	out := make([]Type, 0, len(typeNames))
	for t := ViewClicked; t <= AssistReadingContext; t++ {
		out = append(out, t)
	}
	return out
}

// Action is the node action that caused an event, if any.
type Action int

const (
	ActionNone Action = iota
	ActionAccessibilityFocus
	ActionClearAccessibilityFocus
	ActionClick
	ActionFocus
)

var actionNames = map[Action]string{
	ActionNone:                    "none",
	ActionAccessibilityFocus:      "accessibility_focus",
	ActionClearAccessibilityFocus: "clear_accessibility_focus",
	ActionClick:                   "click",
	ActionFocus:                   "focus",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "none"
}

// ParseAction converts an action name to an Action. The empty string is
// ActionNone.
func ParseAction(s string) (Action, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if key == "" {
		return ActionNone, nil
	}
	for a, name := range actionNames {
		if name == key {
			return a, nil
		}
	}
	return ActionNone, fmt.Errorf("unknown action %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(b []byte) error {
	parsed, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MovesAccessibilityFocus reports whether a hands accessibility focus to
// another node. An explicit clear does not.
func (a Action) MovesAccessibilityFocus() bool {
	return a == ActionAccessibilityFocus
}

// Event is a single accessibility event.
type Event struct {
	Type         Type          `json:"type"`
	WindowID     window.ID     `json:"window_id"`
	SourceNodeID window.NodeID `json:"source_node_id"`
	Action       Action        `json:"action,omitempty"`
	PackageName  string        `json:"package_name,omitempty"`
	ClassName    string        `json:"class_name,omitempty"`
	Text         []string      `json:"text,omitempty"`
	Session      int           `json:"session"`
	Time         time.Time     `json:"time"`
}

// HasSource reports whether the event still carries its source node.
func (e Event) HasSource() bool {
	return e.SourceNodeID != window.UndefinedNode
}

// Clone returns a deep copy of the event.
func (e Event) Clone() Event {
	if e.Text != nil {
		text := make([]string, len(e.Text))
		copy(text, e.Text)
		e.Text = text
	}
	return e
}

// New returns an event of type t originating from window id with no source
// node.
func New(t Type, id window.ID) Event {
	return Event{
		Type:         t,
		WindowID:     id,
		SourceNodeID: window.UndefinedNode,
		Time:         time.Now(),
	}
}
