package engine

import (
	"fmt"

	"github.com/1broseidon/a11yd/internal/security"
	"github.com/1broseidon/a11yd/internal/window"
)

// Registration is the result of AddWindow.
type Registration struct {
	WindowID window.ID
	// Package is the reported package after validation.
	Package string
	// Packages lists what events from the window may report; nil means any.
	Packages []string
}

// AddWindow registers a producer token for caller and returns its window
// id. Tokens from callers acting across sessions go to the global table,
// all others to the resolved session. pkg is validated like an event's
// reported package and determines the packages the window may report.
func (e *Engine) AddWindow(caller security.Identity, token window.Token, pkg string, requestedSession int) (Registration, error) {
	e.mu.Lock()
	resolved, err := e.gate.ResolveCallingSession(caller, requestedSession, e.session)
	if err != nil {
		e.mu.Unlock()
		return Registration{WindowID: window.InvalidID}, err
	}
	pkg, _ = e.gate.ResolveReportedPackage(pkg, caller, resolved)
	packages := e.gate.ValidReportedPackages(caller, pkg, security.UIDFor(resolved, caller.AppID()))
	global := e.gate.IsCrossSessionCaller(caller, requestedSession, e.pid)
	id := e.registry.Add(token, resolved, global, window.Owner{UID: caller.UID, Packages: packages})
	tracking := e.tracking
	e.mu.Unlock()

	e.logger.Info("window added",
		"window_id", id,
		"token", token,
		"session", resolved,
		"global", global,
		"package", pkg)

	// A report may already have skipped this token.
	if tracking && e.wm != nil {
		e.wm.ComputeWindows()
	}
	return Registration{WindowID: id, Package: pkg, Packages: packages}, nil
}

// RemoveWindow unregisters token on behalf of caller. Only the caller that
// registered the token, or a trusted caller, may remove it. The boolean
// reports whether the token was known.
func (e *Engine) RemoveWindow(caller security.Identity, token window.Token, requestedSession int) (window.ID, bool, error) {
	e.mu.Lock()
	if _, err := e.gate.ResolveCallingSession(caller, requestedSession, e.session); err != nil {
		e.mu.Unlock()
		return window.InvalidID, false, err
	}
	_, _, owner, ok := e.registry.Find(token)
	if !ok {
		e.mu.Unlock()
		return window.InvalidID, false, nil
	}
	if owner.UID != caller.UID && !e.gate.IsTrusted(caller) {
		e.mu.Unlock()
		e.logger.Warn("rejected window removal", "caller_uid", caller.UID, "owner_uid", owner.UID, "token", token)
		return window.InvalidID, false, fmt.Errorf("remove token %d: %w", token, security.ErrPermissionDenied)
	}
	id, session, _ := e.registry.Remove(token)
	tracking := e.tracking
	e.mu.Unlock()

	e.logger.Info("window removed", "window_id", id, "token", token, "session", session)
	if tracking && e.wm != nil {
		e.wm.ComputeWindows()
	}
	return id, true, nil
}

// reportedPackageLocked settles the package an event reports. A package the
// caller listed when it registered the source window is kept as is; any
// other claim goes through the package directory.
func (e *Engine) reportedPackageLocked(caller security.Identity, id window.ID, pkg string, session int) (string, security.PackageResolution) {
	if owner, ok := e.registry.OwnerFor(id, e.session); ok && owner.UID == caller.UID && owner.MayReport(pkg) {
		return pkg, security.PackageRegistered
	}
	return e.gate.ResolveReportedPackage(pkg, caller, session)
}
