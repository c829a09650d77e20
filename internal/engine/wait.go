package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/1broseidon/a11yd/internal/platform"
	"github.com/1broseidon/a11yd/internal/security"
)

// waitLocked blocks on the condition variable until done returns true or
// timeout elapses. It must be called with e.mu held and returns with it held.
// Wakeups, spurious or not, only cause the predicate to be re-checked.
func (e *Engine) waitLocked(timeout time.Duration, done func() bool) bool {
	if done() {
		return true
	}
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		e.mu.Lock()
		e.cond.Broadcast()
		e.mu.Unlock()
	})
	defer timer.Stop()

	for !done() {
		if !time.Now().Before(deadline) {
			return false
		}
		e.cond.Wait()
	}
	return true
}

// WaitForWindowsAvailable blocks until a snapshot is present or timeout
// elapses; a non-positive timeout uses the configured default. Tracking is
// re-evaluated first, since it may not have started yet. It returns false
// right away when no observer needs windows.
func (e *Engine) WaitForWindowsAvailable(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = e.windowsTimeout
	}

	e.mu.Lock()
	present, tracking := e.store.Present(), e.tracking
	e.mu.Unlock()
	if present {
		return true
	}
	if !tracking {
		if err := e.RefreshTracking(); err != nil {
			e.logger.Warn("failed to refresh window tracking", "error", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.tracking {
		return e.store.Present()
	}
	ok := e.waitLocked(timeout, func() bool {
		return e.store.Present() || !e.tracking
	})
	if !ok {
		e.logger.Warn("timed out waiting for windows", "timeout", timeout)
	}
	return e.store.Present()
}

// SetInjector installs or removes the gesture injector and wakes waiters.
func (e *Engine) SetInjector(inj platform.Injector) {
	e.mu.Lock()
	e.injector = inj
	e.cond.Broadcast()
	e.mu.Unlock()
}

// WaitForInjectorAvailable returns the installed injector, waiting up to
// timeout for one to appear; a non-positive timeout uses the configured
// default. It returns nil on expiry.
func (e *Engine) WaitForInjectorAvailable(timeout time.Duration) platform.Injector {
	if timeout <= 0 {
		timeout = e.injectorTimeout
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.waitLocked(timeout, func() bool { return e.injector != nil }) {
		e.logger.Error("gesture injector installation timed out", "timeout", timeout)
		return nil
	}
	return e.injector
}

// ErrInjectorUnavailable is returned by PerformGesture when no injector was
// installed in time.
var ErrInjectorUnavailable = errors.New("gesture injector unavailable")

// PerformGesture injects g on behalf of an observer holding caps.
func (e *Engine) PerformGesture(ctx context.Context, caps security.Capabilities, g platform.Gesture) error {
	if !security.CanPerformGestures(caps) {
		return fmt.Errorf("perform gesture: %w", security.ErrPermissionDenied)
	}
	inj := e.WaitForInjectorAvailable(0)
	if inj == nil {
		return ErrInjectorUnavailable
	}
	if err := inj.InjectGesture(ctx, g); err != nil {
		return fmt.Errorf("perform gesture: %w", err)
	}
	return nil
}
