// Package platform connects the engine to the window system.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/window"
)

// WindowManager reports the on-screen windows to the engine.
//
// Implementations must never invoke the callback from inside
// SetWindowsCallback; reports are delivered asynchronously and one at a time.
type WindowManager interface {
	// SetWindowsCallback installs cb, or uninstalls the current callback
	// when cb is nil. Installing triggers a fresh report.
	SetWindowsCallback(cb func([]window.Info)) error
	// FocusedWindowToken returns the window holding input focus.
	FocusedWindowToken() (window.Token, bool)
	// WindowBounds returns the current bounds of a window.
	WindowBounds(token window.Token) (geometry.Rect, bool)
	// ComputeWindows requests a fresh report without waiting for a layout
	// change.
	ComputeWindows()
}

// Gesture is a single-pointer stroke through Points over Duration.
type Gesture struct {
	Points   []geometry.Point `json:"points"`
	Duration time.Duration    `json:"duration"`
}

// ErrEmptyGesture is returned for gestures without points.
var ErrEmptyGesture = errors.New("gesture has no points")

// Injector synthesizes pointer input.
type Injector interface {
	InjectGesture(ctx context.Context, g Gesture) error
}
