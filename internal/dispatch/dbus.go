package dispatch

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/window"
)

const (
	DefaultDBusPath      = "/org/a11yd/Engine"
	DefaultDBusInterface = "org.a11yd.Engine"
)

// emitter is the part of *dbus.Conn the sink uses.
type emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// DBusSink broadcasts notifications as session bus signals:
//
//	<iface>.Event(type s, window i, node x, package s, session i)
//	<iface>.ClearAccessibilityFocus(window i)
type DBusSink struct {
	conn  emitter
	close func() error
	path  dbus.ObjectPath
	iface string
}

// NewDBusSink connects to the session bus. Empty path or iface fall back to
// the defaults.
func NewDBusSink(path, iface string) (*DBusSink, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	s := newDBusSink(conn, path, iface)
	s.close = conn.Close
	return s, nil
}

func newDBusSink(conn emitter, path, iface string) *DBusSink {
	if path == "" {
		path = DefaultDBusPath
	}
	if iface == "" {
		iface = DefaultDBusInterface
	}
	return &DBusSink{conn: conn, path: dbus.ObjectPath(path), iface: iface}
}

func (s *DBusSink) DeliverEvent(_ context.Context, ev event.Event) error {
	err := s.conn.Emit(s.path, s.iface+".Event",
		ev.Type.String(),
		int32(ev.WindowID),
		int64(ev.SourceNodeID),
		ev.PackageName,
		int32(ev.Session),
	)
	if err != nil {
		return fmt.Errorf("dbus emit event: %w", err)
	}
	return nil
}

func (s *DBusSink) ClearAccessibilityFocus(_ context.Context, id window.ID) error {
	if err := s.conn.Emit(s.path, s.iface+".ClearAccessibilityFocus", int32(id)); err != nil {
		return fmt.Errorf("dbus emit clear focus: %w", err)
	}
	return nil
}

// Close releases the bus connection.
func (s *DBusSink) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}
