// Package window holds the published window snapshot: the Z-ordered list of
// on-screen window descriptors, the token tables that map producer handles to
// engine-assigned identifiers, and the region math over them.
package window

import (
	"fmt"
	"strings"

	"github.com/1broseidon/a11yd/internal/geometry"
)

// ID identifies a window within the engine. IDs are assigned by a Registry.
type ID int

// InvalidID marks the absence of a window.
const InvalidID ID = -1

// PictureInPictureReplacerID is the synthetic window id used by the
// picture-in-picture action replacer. Events reported against it are moved to
// the current picture-in-picture window.
const PictureInPictureReplacerID ID = -3

// Token is an opaque producer-side window handle (an X11 XID, or a handle
// chosen by a client that registered the window over IPC).
type Token uint64

// NodeID is an opaque accessibility node key.
type NodeID int64

// UndefinedNode marks the absence of a node.
const UndefinedNode NodeID = -1

// Type is the semantic window type reported to observers.
type Type int

const (
	TypeUnknown Type = iota
	TypeApplication
	TypeInputMethod
	TypeSystem
	TypeAccessibilityOverlay
	TypeSplitScreenDivider
)

// String returns the string representation of the type.
func (t Type) String() string {
	switch t {
	case TypeApplication:
		return "application"
	case TypeInputMethod:
		return "input-method"
	case TypeSystem:
		return "system"
	case TypeAccessibilityOverlay:
		return "accessibility-overlay"
	case TypeSplitScreenDivider:
		return "split-screen-divider"
	default:
		return "unknown"
	}
}

// ParseType converts a type name to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "application", "app":
		return TypeApplication, nil
	case "input-method", "ime":
		return TypeInputMethod, nil
	case "system":
		return TypeSystem, nil
	case "accessibility-overlay", "overlay":
		return TypeAccessibilityOverlay, nil
	case "split-screen-divider", "divider":
		return TypeSplitScreenDivider, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown window type %q", s)
	}
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

// Info is a window as reported by the window manager, before the engine has
// assigned identifiers or resolved focus flags.
type Info struct {
	Token            Token         `json:"token"`
	ParentToken      Token         `json:"parent_token,omitempty"`
	ChildTokens      []Token       `json:"child_tokens,omitempty"`
	Type             Type          `json:"type"`
	Layer            int           `json:"layer"`
	Bounds           geometry.Rect `json:"bounds"`
	Title            string        `json:"title,omitempty"`
	AnchorNode       NodeID        `json:"anchor_node,omitempty"`
	Focused          bool          `json:"focused,omitempty"`
	PictureInPicture bool          `json:"picture_in_picture,omitempty"`
}

// Descriptor is a window as published to observers.
type Descriptor struct {
	ID                   ID            `json:"id"`
	Type                 Type          `json:"type"`
	Layer                int           `json:"layer"`
	Bounds               geometry.Rect `json:"bounds"`
	Title                string        `json:"title,omitempty"`
	AnchorNode           NodeID        `json:"anchor_node"`
	ParentID             ID            `json:"parent_id"`
	Children             []ID          `json:"children,omitempty"`
	Focused              bool          `json:"focused,omitempty"`
	Active               bool          `json:"active,omitempty"`
	AccessibilityFocused bool          `json:"accessibility_focused,omitempty"`
	PictureInPicture     bool          `json:"picture_in_picture,omitempty"`
}

// Clone returns a deep copy of the descriptor.
func (d Descriptor) Clone() Descriptor {
	if d.Children != nil {
		children := make([]ID, len(d.Children))
		copy(children, d.Children)
		d.Children = children
	}
	return d
}
