package security

import (
	"errors"
	"fmt"
	"slices"

	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/window"
)

// Session sentinels accepted wherever a caller names a session.
const (
	SessionCurrent       = -2
	SessionCurrentOrSelf = -3
)

// PerSessionRange is the number of UIDs reserved for each session. A UID is
// session*PerSessionRange + app id.
const PerSessionRange = 100000

// Default identities with elevated trust.
const (
	RootUID          = 0
	DefaultSystemUID = 1000
	DefaultShellUID  = 2000
)

var (
	// ErrPermissionDenied is returned when a caller lacks a capability or the
	// right to act on another session.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidSession is returned when a privileged cross-session caller
	// names a concrete session instead of a sentinel.
	ErrInvalidSession = errors.New("invalid session")
)

// Identity is the process on the other end of a call.
type Identity struct {
	UID int `json:"uid"`
	PID int `json:"pid"`
}

// Session returns the session the UID belongs to.
func (id Identity) Session() int {
	return id.UID / PerSessionRange
}

// AppID returns the UID with the session stripped.
func (id Identity) AppID() int {
	return id.UID % PerSessionRange
}

// UIDFor composes a UID from a session and an app id.
func UIDFor(session, appID int) int {
	return session*PerSessionRange + appID%PerSessionRange
}

// PackageDirectory answers questions about installed packages.
type PackageDirectory interface {
	// PackageUID returns the UID owning pkg in session.
	PackageUID(pkg string, session int) (int, bool)
	// PackagesForUID returns the packages owned by uid, in install order.
	PackagesForUID(uid int) []string
	// HostedWidgetPackages returns the packages whose widgets uid hosts.
	HostedWidgetPackages(uid int) []string
}

// SessionDirectory answers questions about sessions and their callers.
type SessionDirectory interface {
	// ProfileParent returns the parent of a profile session.
	ProfileParent(session int) (int, bool)
	// HasCrossSessionPermission reports whether the caller may act on
	// behalf of other sessions.
	HasCrossSessionPermission(caller Identity) bool
}

// Gate evaluates the security policy for one daemon. It keeps no mutable
// state.
type Gate struct {
	SystemUID int
	ShellUID  int
	Packages  PackageDirectory
	Sessions  SessionDirectory
}

// NewGate creates a gate with the default trusted identities.
func NewGate(packages PackageDirectory, sessions SessionDirectory) *Gate {
	return &Gate{
		SystemUID: DefaultSystemUID,
		ShellUID:  DefaultShellUID,
		Packages:  packages,
		Sessions:  sessions,
	}
}

// IsSystem reports whether caller is the system identity.
func (g *Gate) IsSystem(caller Identity) bool {
	return caller.UID == g.SystemUID
}

// IsTrusted reports whether caller acts with full authority: root or the
// system identity.
func (g *Gate) IsTrusted(caller Identity) bool {
	return caller.UID == RootUID || g.IsSystem(caller)
}

func (g *Gate) isPrivileged(caller Identity) bool {
	return caller.UID == RootUID || caller.UID == g.SystemUID || caller.UID == g.ShellUID
}

// IsRetrievalAllowingWindow reports whether caller may look at window id:
// the system sees every window, everyone else only the active window and the
// windows in the published snapshot.
func (g *Gate) IsRetrievalAllowingWindow(caller Identity, id window.ID, view View) bool {
	if g.IsSystem(caller) {
		return true
	}
	if id == view.ActiveWindow {
		return true
	}
	return view.has(id)
}

// CanDispatchEvent reports whether ev may be delivered to observers. Types on
// the dispatch allow-list always pass; anything else must originate from a
// window the caller may retrieve.
func (g *Gate) CanDispatchEvent(caller Identity, ev event.Event, view View) bool {
	if DispatchAllowList.Contains(ev.Type) {
		return true
	}
	return g.IsRetrievalAllowingWindow(caller, ev.WindowID, view)
}

// PackageResolution describes how ResolveReportedPackage settled on a name.
type PackageResolution int

const (
	PackageEmpty PackageResolution = iota
	PackageTrusted
	PackageOwned
	PackageHostedWidget
	PackageSubstituted
	PackageUnknown
	PackageRegistered
)

func (r PackageResolution) String() string {
	switch r {
	case PackageTrusted:
		return "trusted"
	case PackageOwned:
		return "owned"
	case PackageHostedWidget:
		return "hosted_widget"
	case PackageSubstituted:
		return "substituted"
	case PackageUnknown:
		return "unknown"
	case PackageRegistered:
		return "registered"
	default:
		return "empty"
	}
}

// ResolveReportedPackage validates the package a caller claims to report for.
// The system may claim any package, an app may claim its own packages and
// those of widgets it hosts. Any other claim is replaced with the first
// package owned by the caller's UID in session; it is not rejected. An empty
// result means the UID owns no packages.
func (g *Gate) ResolveReportedPackage(pkg string, caller Identity, session int) (string, PackageResolution) {
	if pkg == "" {
		return "", PackageEmpty
	}
	if caller.AppID() == g.SystemUID {
		return pkg, PackageTrusted
	}
	if g.Packages == nil {
		return "", PackageUnknown
	}

	uid := UIDFor(session, caller.AppID())
	if owner, ok := g.Packages.PackageUID(pkg, session); ok && owner == uid {
		return pkg, PackageOwned
	}
	if slices.Contains(g.Packages.HostedWidgetPackages(uid), pkg) {
		return pkg, PackageHostedWidget
	}
	owned := g.Packages.PackagesForUID(uid)
	if len(owned) == 0 {
		return "", PackageUnknown
	}
	return owned[0], PackageSubstituted
}

// ValidReportedPackages returns the packages an event source running as
// targetUID may report. A nil result means any package is acceptable.
func (g *Gate) ValidReportedPackages(caller Identity, targetPackage string, targetUID int) []string {
	if caller.AppID() == g.SystemUID {
		return nil
	}
	valid := []string{targetPackage}
	if g.Packages != nil {
		valid = append(valid, g.Packages.HostedWidgetPackages(targetUID)...)
	}
	return valid
}

func (g *Gate) profileParent(session, current int) int {
	if session == current || g.Sessions == nil {
		return session
	}
	if parent, ok := g.Sessions.ProfileParent(session); ok {
		return parent
	}
	return session
}

func isCurrentSentinel(session int) bool {
	return session == SessionCurrent || session == SessionCurrentOrSelf
}

// ResolveCallingSession maps the session a caller asked for onto the session
// whose state it will use. Sentinels map to the live session and profile
// sessions map to their parent. Acting on another session requires the
// cross-session permission and even then only the sentinels are accepted.
func (g *Gate) ResolveCallingSession(caller Identity, requested, current int) (int, error) {
	if g.isPrivileged(caller) {
		if isCurrentSentinel(requested) {
			return current, nil
		}
		return g.profileParent(requested, current), nil
	}

	callerSession := caller.Session()
	if callerSession == requested {
		return g.profileParent(requested, current), nil
	}
	if g.profileParent(callerSession, current) == current && isCurrentSentinel(requested) {
		return current, nil
	}
	if g.Sessions == nil || !g.Sessions.HasCrossSessionPermission(caller) {
		return 0, fmt.Errorf("call from session %d as session %d: %w", callerSession, requested, ErrPermissionDenied)
	}
	if isCurrentSentinel(requested) {
		return current, nil
	}
	return 0, fmt.Errorf("session %d: only the current session sentinels may be named: %w", requested, ErrInvalidSession)
}

// IsCrossSessionCaller reports whether windows registered by caller belong in
// the global token table: the daemon itself, the shell, and callers that
// address the current session through a sentinel.
func (g *Gate) IsCrossSessionCaller(caller Identity, requested, ownPID int) bool {
	return caller.PID == ownPID ||
		caller.UID == g.ShellUID ||
		isCurrentSentinel(requested)
}
