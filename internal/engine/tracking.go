package engine

import (
	"fmt"

	"github.com/1broseidon/a11yd/internal/focus"
	"github.com/1broseidon/a11yd/internal/window"
)

// OnWindowListChanged installs a new snapshot from a window-manager report,
// topmost window first. Reports arriving while the engine is untracked are
// ignored and leave the snapshot absent.
func (e *Engine) OnWindowListChanged(infos []window.Info) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.tracking {
		e.logger.Debug("ignoring window report while untracked", "count", len(infos))
		return
	}

	if e.adoptUnknown {
		for _, info := range infos {
			if e.lookupLocked(info.Token) == window.InvalidID {
				id := e.registry.Add(info.Token, e.session, true, window.Owner{UID: window.NoOwner})
				e.logger.Debug("adopted window", "window_id", id, "token", info.Token)
			}
		}
	}

	descs := window.Populate(infos, e.lookupLocked)
	e.state.Resolve(descs)
	focus.Stamp(descs, e.state)
	e.store.Replace(descs)

	e.logger.Debug("window list changed",
		"count", len(descs),
		"active_window", e.state.ActiveWindow,
		"focused_window", e.state.FocusedWindow)

	e.cond.Broadcast()
	e.notifyWindowsChangedLocked()
}

// RefreshTracking re-evaluates whether the window list must be tracked and
// installs or removes the window-manager callback accordingly. Going
// untracked drops the snapshot but keeps the active window id.
func (e *Engine) RefreshTracking() error {
	e.trackMu.Lock()
	defer e.trackMu.Unlock()

	needs := false
	focusOnly := true
	if e.observers != nil {
		needs = e.observers.NeedsWindows()
		focusOnly = e.observers.FocusOnlyInActiveWindow()
	}

	e.mu.Lock()
	e.focusOnlyInActive = focusOnly
	if needs == e.tracking {
		e.mu.Unlock()
		return nil
	}
	e.tracking = needs
	if !needs {
		e.clearWindowsLocked()
	}
	e.cond.Broadcast()
	e.mu.Unlock()

	if e.wm == nil {
		return nil
	}

	if !needs {
		e.logger.Info("window tracking stopped")
		if err := e.wm.SetWindowsCallback(nil); err != nil {
			return fmt.Errorf("failed to uninstall windows callback: %w", err)
		}
		return nil
	}

	e.logger.Info("window tracking started")
	if err := e.wm.SetWindowsCallback(e.OnWindowListChanged); err != nil {
		e.mu.Lock()
		e.tracking = false
		e.cond.Broadcast()
		e.mu.Unlock()
		return fmt.Errorf("failed to install windows callback: %w", err)
	}
	return nil
}

// SetAccessibilityFocusOnlyInActiveWindow overrides the policy derived from
// the observers until the next RefreshTracking.
func (e *Engine) SetAccessibilityFocusOnlyInActiveWindow(enabled bool) {
	e.mu.Lock()
	e.focusOnlyInActive = enabled
	e.mu.Unlock()
}

func (e *Engine) clearWindowsLocked() {
	active := e.state.ActiveWindow
	e.store.Clear()
	e.state.FocusedWindow = window.InvalidID
	e.state.ActiveWindow = active
}

// SwitchSession makes session live. The snapshot is discarded and focus and
// touch state return to their initial values; a tracked engine asks the
// window manager for a fresh report.
func (e *Engine) SwitchSession(session int) {
	e.mu.Lock()
	previous := e.session
	e.session = session
	e.state.Reset()
	e.store.Clear()
	tracking := e.tracking
	e.cond.Broadcast()
	e.mu.Unlock()

	e.logger.Info("session switched", "from", previous, "to", session)
	if tracking && e.wm != nil {
		e.wm.ComputeWindows()
	}
}
