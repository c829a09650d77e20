// Package engine is the coordination point between window producers, event
// senders and observers. It owns the window snapshot and the focus state and
// serializes every change to them behind one lock.
package engine

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/focus"
	"github.com/1broseidon/a11yd/internal/platform"
	"github.com/1broseidon/a11yd/internal/security"
	"github.com/1broseidon/a11yd/internal/window"
)

// Default bounded-wait budgets.
const (
	DefaultWindowsTimeout  = 5 * time.Second
	DefaultInjectorTimeout = 1 * time.Second
)

// Observers tells the engine what the registered observers need.
type Observers interface {
	// NeedsWindows reports whether any observer introspects windows.
	NeedsWindows() bool
	// FocusOnlyInActiveWindow reports whether accessibility focus is
	// confined to the active window.
	FocusOnlyInActiveWindow() bool
}

// Notifier queues notifications for asynchronous delivery. It must not
// block.
type Notifier interface {
	Event(ev event.Event)
	ClearAccessibilityFocus(id window.ID)
}

// Config holds the collaborators and settings of an engine.
type Config struct {
	WindowManager platform.WindowManager
	Observers     Observers
	Gate          *security.Gate
	Notifier      Notifier
	Logger        *slog.Logger

	// Session is the initially live session.
	Session int
	// WindowsTimeout bounds WaitForWindowsAvailable.
	WindowsTimeout time.Duration
	// InjectorTimeout bounds WaitForInjectorAvailable.
	InjectorTimeout time.Duration
	// AdoptUnknownWindows registers reported tokens nobody added, in the
	// global table. Useful when the window manager is the only producer.
	AdoptUnknownWindows bool
	// PID is the daemon's own process id; defaults to os.Getpid().
	PID int
}

// Engine coordinates window and focus state.
type Engine struct {
	wm        platform.WindowManager
	observers Observers
	gate      *security.Gate
	notifier  Notifier
	logger    *slog.Logger

	windowsTimeout  time.Duration
	injectorTimeout time.Duration
	adoptUnknown    bool
	pid             int

	// trackMu serializes tracking transitions so callback installs and
	// uninstalls reach the window manager in order.
	trackMu sync.Mutex

	mu                sync.Mutex
	cond              *sync.Cond
	registry          *window.Registry
	store             *window.Store
	state             focus.State
	session           int
	tracking          bool
	focusOnlyInActive bool
	injector          platform.Injector
}

// New creates an engine. The engine starts untracked; call RefreshTracking
// once observers are known.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	windowsTimeout := cfg.WindowsTimeout
	if windowsTimeout <= 0 {
		windowsTimeout = DefaultWindowsTimeout
	}
	injectorTimeout := cfg.InjectorTimeout
	if injectorTimeout <= 0 {
		injectorTimeout = DefaultInjectorTimeout
	}
	pid := cfg.PID
	if pid == 0 {
		pid = os.Getpid()
	}
	gate := cfg.Gate
	if gate == nil {
		gate = security.NewGate(nil, nil)
	}

	e := &Engine{
		wm:                cfg.WindowManager,
		observers:         cfg.Observers,
		gate:              gate,
		notifier:          cfg.Notifier,
		logger:            logger,
		windowsTimeout:    windowsTimeout,
		injectorTimeout:   injectorTimeout,
		adoptUnknown:      cfg.AdoptUnknownWindows,
		pid:               pid,
		registry:          window.NewRegistry(),
		store:             window.NewStore(),
		state:             focus.NewState(),
		session:           cfg.Session,
		focusOnlyInActive: true,
	}
	e.cond = sync.NewCond(&e.mu)
	return e
}

// Gate returns the security gate the engine consults.
func (e *Engine) Gate() *security.Gate {
	return e.gate
}

// Status is a consistent view of the engine's state.
type Status struct {
	Session                 int         `json:"session"`
	Tracking                bool        `json:"tracking"`
	SnapshotPresent         bool        `json:"snapshot_present"`
	WindowCount             int         `json:"window_count"`
	Focus                   focus.State `json:"focus"`
	FocusOnlyInActiveWindow bool        `json:"focus_only_in_active_window"`
	InjectorInstalled       bool        `json:"injector_installed"`
	GlobalTokens            int         `json:"global_tokens"`
	SessionTokens           int         `json:"session_tokens"`
}

// Status returns the current state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	global, scoped := e.registry.Count(e.session)
	return Status{
		Session:                 e.session,
		Tracking:                e.tracking,
		SnapshotPresent:         e.store.Present(),
		WindowCount:             e.store.Len(),
		Focus:                   e.state,
		FocusOnlyInActiveWindow: e.focusOnlyInActive,
		InjectorInstalled:       e.injector != nil,
		GlobalTokens:            global,
		SessionTokens:           scoped,
	}
}

// FocusState returns the current focus state.
func (e *Engine) FocusState() focus.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Session returns the live session.
func (e *Engine) Session() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

func (e *Engine) viewLocked() security.View {
	return security.View{
		ActiveWindow: e.state.ActiveWindow,
		HasWindow:    e.store.Contains,
	}
}

func (e *Engine) lookupLocked(token window.Token) window.ID {
	return e.registry.Lookup(token, e.session)
}

// restampLocked publishes a new generation carrying the current focus flags
// and announces it. Published descriptors are never modified in place.
func (e *Engine) restampLocked() {
	if e.store.Present() {
		descs := e.store.Windows()
		focus.Stamp(descs, e.state)
		e.store.Replace(descs)
	}
	e.notifyWindowsChangedLocked()
}

// notifyWindowsChangedLocked queues a windows-changed event while the window
// list is tracked.
func (e *Engine) notifyWindowsChangedLocked() {
	if !e.tracking || e.notifier == nil {
		return
	}
	ev := event.New(event.WindowsChanged, window.InvalidID)
	ev.Session = e.session
	e.notifier.Event(ev)
}

func (e *Engine) clearFocusLocked(id window.ID) {
	if id == window.InvalidID || e.notifier == nil {
		return
	}
	e.logger.Debug("clearing accessibility focus", "window_id", id)
	e.notifier.ClearAccessibilityFocus(id)
}
