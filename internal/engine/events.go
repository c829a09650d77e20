package engine

import (
	"time"

	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/security"
	"github.com/1broseidon/a11yd/internal/window"
)

// OnEvent updates focus state for an event that already passed the gate.
func (e *Engine) OnEvent(ev event.Event) {
	focused := e.prefetchFocused(ev)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyEventLocked(ev, focused)
}

// prefetchFocused asks the window manager for the focused window before the
// lock is taken. Only window-state changes need it, and only while
// untracked, but the tracking state can flip before the lock is acquired.
func (e *Engine) prefetchFocused(ev event.Event) focusedHint {
	if ev.Type != event.WindowStateChanged || e.wm == nil {
		return focusedHint{}
	}
	token, ok := e.wm.FocusedWindowToken()
	return focusedHint{token: token, ok: ok}
}

type focusedHint struct {
	token window.Token
	ok    bool
}

func (e *Engine) applyEventLocked(ev event.Event, hint focusedHint) {
	changed := false
	switch ev.Type {
	case event.WindowStateChanged:
		// While the window list is tracked, focus follows the reports.
		if e.tracking {
			return
		}
		focused := window.InvalidID
		if hint.ok {
			focused = e.lookupLocked(hint.token)
		}
		e.state.OnWindowStateChanged(ev.WindowID, focused)

	case event.ViewHoverEnter:
		changed = e.state.OnHoverEnter(ev.WindowID)

	case event.ViewAccessibilityFocused:
		var previous window.ID
		previous, changed = e.state.OnAccessibilityFocused(ev.WindowID, ev.SourceNodeID)
		e.clearFocusLocked(previous)

	case event.ViewAccessibilityFocusCleared:
		changed = e.state.OnAccessibilityFocusCleared(ev.WindowID, ev.SourceNodeID, ev.Action)
	}

	if e.tracking && e.store.Present() && e.state.Prune(e.store.Contains) {
		changed = true
	}
	if changed {
		e.restampLocked()
	}
}

// OnTouchInteractionStart marks the start of a touch interaction. Repeated
// starts are no-ops.
func (e *Engine) OnTouchInteractionStart() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.OnTouchInteractionStart() {
		e.logger.Debug("touch interaction started", "active_window", e.state.ActiveWindow)
	}
}

// OnTouchInteractionEnd ends a touch interaction and snaps the active window
// back to input focus.
func (e *Engine) OnTouchInteractionEnd() {
	e.mu.Lock()
	defer e.mu.Unlock()

	toClear, changed := e.state.OnTouchInteractionEnd(e.focusOnlyInActive)
	e.logger.Debug("touch interaction ended", "active_window", e.state.ActiveWindow)
	if changed {
		e.restampLocked()
	}
	e.clearFocusLocked(toClear)
}

// SendResult describes what happened to an event handed to SendEvent.
type SendResult struct {
	Dispatched bool        `json:"dispatched"`
	Session    int         `json:"session"`
	Event      event.Event `json:"event"`
	Package    string      `json:"package_resolution"`
}

// SendEvent runs an event from caller through the full pipeline: the
// picture-in-picture replacer id is mapped onto the real window, the session
// and reported package are resolved, the dispatch gate is applied, focus is
// updated and the event is queued with its source redacted as required.
//
// Only permission failures are returned as errors. Events for a background
// session are accepted and dropped.
func (e *Engine) SendEvent(caller security.Identity, ev event.Event, requestedSession int) (SendResult, error) {
	ev = ev.Clone()
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	hint := e.prefetchFocused(ev)

	e.mu.Lock()
	if ev.WindowID == window.PictureInPictureReplacerID {
		if pip, ok := e.store.PictureInPicture(); ok {
			ev.WindowID = pip.ID
		}
	}

	resolved, err := e.gate.ResolveCallingSession(caller, requestedSession, e.session)
	if err != nil {
		e.mu.Unlock()
		e.logger.Warn("rejected event", "caller_uid", caller.UID, "session", requestedSession, "error", err)
		return SendResult{}, err
	}
	ev.Session = resolved

	pkg, resolution := e.reportedPackageLocked(caller, ev.WindowID, ev.PackageName, resolved)
	if resolution == security.PackageSubstituted {
		e.logger.Info("substituted reported package",
			"caller_uid", caller.UID,
			"reported", ev.PackageName,
			"package", pkg)
	}
	ev.PackageName = pkg

	result := SendResult{Session: resolved, Package: resolution.String()}
	if resolved != e.session {
		e.mu.Unlock()
		result.Event = ev
		return result, nil
	}

	dispatched := e.gate.CanDispatchEvent(caller, ev, e.viewLocked())
	tracking := e.tracking
	if dispatched {
		e.applyEventLocked(ev, hint)
		ev = security.RedactSource(ev)
	}
	e.mu.Unlock()

	result.Dispatched = dispatched
	result.Event = ev
	if !dispatched {
		e.logger.Debug("event not dispatched", "type", ev.Type, "window_id", ev.WindowID)
		return result, nil
	}

	// Observers reacting to a state change expect the window list to be
	// current.
	if ev.Type == event.WindowStateChanged && tracking && e.wm != nil {
		e.wm.ComputeWindows()
	}
	if e.notifier != nil {
		e.notifier.Event(ev)
	}
	return result, nil
}
