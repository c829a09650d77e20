//go:build linux

package platform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BurntSushi/xgb/xproto"

	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/window"
	"github.com/1broseidon/a11yd/internal/x11"
)

// Root properties whose change means the window list must be recomputed.
var watchedRootAtoms = map[string]bool{
	"_NET_CLIENT_LIST":          true,
	"_NET_CLIENT_LIST_STACKING": true,
	"_NET_ACTIVE_WINDOW":        true,
	"_NET_CURRENT_DESKTOP":      true,
}

// X11Config holds configuration for the X11 backend.
type X11Config struct {
	Classifier Classifier
	// CurrentDesktopOnly hides windows on other virtual desktops.
	CurrentDesktopOnly bool
	Logger             *slog.Logger
}

// X11Backend reports EWMH-managed windows from an X11 connection.
type X11Backend struct {
	conn        *x11.Connection
	classifier  Classifier
	desktopOnly bool
	feed        *feed
	logger      *slog.Logger
}

var _ WindowManager = (*X11Backend)(nil)

// NewX11Backend wraps an existing X11 connection.
func NewX11Backend(conn *x11.Connection, cfg X11Config) *X11Backend {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &X11Backend{
		conn:        conn,
		classifier:  cfg.Classifier,
		desktopOnly: cfg.CurrentDesktopOnly,
		logger:      logger,
	}
	b.feed = newFeed(b.listWindows, logger)
	return b
}

// NewX11BackendFromDisplay opens a fresh X11 connection.
func NewX11BackendFromDisplay(cfg X11Config) (*X11Backend, error) {
	conn, err := x11.NewConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X11: %w", err)
	}
	return NewX11Backend(conn, cfg), nil
}

// Connection returns the underlying X11 connection.
func (b *X11Backend) Connection() *x11.Connection {
	return b.conn
}

// Run watches the root window and runs the X event loop until ctx is
// cancelled.
func (b *X11Backend) Run(ctx context.Context) error {
	err := b.conn.WatchRoot(func(atom string) {
		if watchedRootAtoms[atom] && b.feed.installed() {
			b.feed.request()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch root window: %w", err)
	}

	go b.feed.run(ctx)
	go func() {
		<-ctx.Done()
		b.conn.Quit()
	}()

	b.logger.Info("x11 backend started", "root", b.conn.Root)
	b.conn.EventLoop()
	b.logger.Info("x11 backend stopped")
	return nil
}

// Disconnect closes the X11 connection.
func (b *X11Backend) Disconnect() {
	if b != nil && b.conn != nil {
		b.conn.Close()
	}
}

func (b *X11Backend) SetWindowsCallback(cb func([]window.Info)) error {
	b.feed.setCallback(cb)
	return nil
}

func (b *X11Backend) FocusedWindowToken() (window.Token, bool) {
	active, err := b.conn.GetActiveWindow()
	if err != nil || active == 0 {
		return 0, false
	}
	return window.Token(active), true
}

func (b *X11Backend) WindowBounds(token window.Token) (geometry.Rect, bool) {
	return b.conn.WindowRect(xproto.Window(token))
}

func (b *X11Backend) ComputeWindows() {
	b.feed.request()
}

func (b *X11Backend) listWindows() ([]window.Info, error) {
	clients, err := b.conn.StackingClients()
	if err != nil {
		return nil, fmt.Errorf("failed to read client list: %w", err)
	}

	var active window.Token
	if w, err := b.conn.GetActiveWindow(); err == nil {
		active = window.Token(w)
	}

	var onDesktop func(x11.Client) bool
	if b.desktopOnly {
		filter := b.conn.DesktopFilter()
		onDesktop = func(c x11.Client) bool { return filter(c.Window) }
	}
	screens, err := b.conn.Screens()
	if err != nil {
		b.logger.Debug("screen layout unavailable", "error", err)
	}
	visible := allOf(onDesktop, OnScreen(screens))
	infos := b.classifier.Infos(clients, active, visible)
	b.logger.Debug("computed windows", "count", len(infos))
	return infos, nil
}

// X11Injector synthesizes gestures through the XTEST extension.
type X11Injector struct {
	conn *x11.Connection
}

var _ Injector = (*X11Injector)(nil)

// NewX11Injector enables XTEST on conn.
func NewX11Injector(conn *x11.Connection) (*X11Injector, error) {
	if err := conn.InitXTest(); err != nil {
		return nil, err
	}
	return &X11Injector{conn: conn}, nil
}

// InjectGesture presses the primary button at the first point, drags through
// the rest and releases at the last one.
func (i *X11Injector) InjectGesture(ctx context.Context, g Gesture) error {
	if len(g.Points) == 0 {
		return ErrEmptyGesture
	}

	step := time.Duration(0)
	if len(g.Points) > 1 {
		step = g.Duration / time.Duration(len(g.Points)-1)
	}

	first := g.Points[0]
	if err := i.conn.FakeMotion(first.X, first.Y); err != nil {
		return fmt.Errorf("inject motion: %w", err)
	}
	if err := i.conn.FakeButton(1, true); err != nil {
		return fmt.Errorf("inject press: %w", err)
	}
	// Always release, even when the stroke is cut short.
	defer i.conn.FakeButton(1, false)

	for _, p := range g.Points[1:] {
		if step > 0 {
			timer := time.NewTimer(step)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := i.conn.FakeMotion(p.X, p.Y); err != nil {
			return fmt.Errorf("inject motion: %w", err)
		}
	}
	return nil
}
