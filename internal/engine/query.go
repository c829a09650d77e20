package engine

import (
	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/security"
	"github.com/1broseidon/a11yd/internal/window"
)

// ActiveWindowID returns the active window. When none is known and no touch
// interaction is in progress, the window manager's focused window is adopted.
func (e *Engine) ActiveWindowID() window.ID {
	e.mu.Lock()
	if e.state.ActiveWindow != window.InvalidID || e.state.TouchInteraction || e.wm == nil {
		id := e.state.ActiveWindow
		e.mu.Unlock()
		return id
	}
	e.mu.Unlock()

	token, ok := e.wm.FocusedWindowToken()

	e.mu.Lock()
	defer e.mu.Unlock()
	if ok && e.state.ActiveWindow == window.InvalidID && !e.state.TouchInteraction {
		e.state.ActiveWindow = e.lookupLocked(token)
	}
	return e.state.ActiveWindow
}

// IsRetrievalAllowedForWindow reports whether caller may look into window id.
func (e *Engine) IsRetrievalAllowedForWindow(caller security.Identity, id window.ID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gate.IsRetrievalAllowingWindow(caller, id, e.viewLocked())
}

// FindWindow returns a copy of the descriptor for id.
func (e *Engine) FindWindow(id window.ID) (window.Descriptor, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Find(id)
}

// Windows returns a copy of the snapshot, or nil while untracked or before
// the first report.
func (e *Engine) Windows() []window.Descriptor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Windows()
}

// InteractiveRegion returns the part of window id not covered by windows
// above it, and whether that differs from its bounds.
func (e *Engine) InteractiveRegion(id window.ID) (geometry.Region, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.InteractiveRegion(id)
}

// WindowBounds asks the window manager for the current bounds of window id.
func (e *Engine) WindowBounds(id window.ID) (geometry.Rect, bool) {
	e.mu.Lock()
	token, ok := e.registry.TokenFor(id, e.session)
	e.mu.Unlock()
	if !ok || e.wm == nil {
		return geometry.Rect{}, false
	}
	return e.wm.WindowBounds(token)
}
