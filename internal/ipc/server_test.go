//go:build linux

package ipc

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/a11yd/internal/dispatch"
	"github.com/1broseidon/a11yd/internal/engine"
	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/observer"
	"github.com/1broseidon/a11yd/internal/platform"
	"github.com/1broseidon/a11yd/internal/security"
	"github.com/1broseidon/a11yd/internal/window"
)

type testDaemon struct {
	server *Server
	client *Client
	engine *engine.Engine
	hub    *Hub
}

func startDaemon(t *testing.T) *testDaemon {
	t.Helper()
	return startDaemonWithMode(t, 0)
}

func startDaemonWithMode(t *testing.T, mode os.FileMode) *testDaemon {
	t.Helper()
	logger := discardLogger()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	registry := observer.NewRegistry()
	push := platform.NewPushBackend(logger)
	go push.Run(ctx)

	hub := NewHub(64, logger)
	queue := dispatch.NewQueue(hub, dispatch.QueueConfig{Logger: logger})
	go queue.Run(ctx)

	// The test process is the system identity.
	gate := security.NewGate(nil, nil)
	gate.SystemUID = os.Getuid()

	eng := engine.New(engine.Config{
		WindowManager:       push,
		Observers:           registry,
		Gate:                gate,
		Notifier:            queue,
		Logger:              logger,
		WindowsTimeout:      2 * time.Second,
		AdoptUnknownWindows: true,
	})
	registry.OnChange(func() { _ = eng.RefreshTracking() })

	srv, err := NewServer(ServerConfig{
		SocketPath: filepath.Join(t.TempDir(), "a11yd.sock"),
		SocketMode: mode,
		Engine:     eng,
		Observers:  registry,
		Push:       push,
		Hub:        hub,
		Queue:      queue,
		Backend:    "push",
		Logger:     logger,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Stop)

	return &testDaemon{
		server: srv,
		client: NewClientWithPath(srv.SocketPath()),
		engine: eng,
		hub:    hub,
	}
}

var windowReaderCaps = []string{"retrieve_window_content", "retrieve_interactive_windows"}

func twoWindows() []window.Info {
	return []window.Info{
		{Token: 11, Type: window.TypeApplication, Bounds: geometry.Rect{Width: 40, Height: 40}, Title: "dialog"},
		{Token: 22, Type: window.TypeApplication, Bounds: geometry.Rect{Width: 100, Height: 100}, Title: "editor", Focused: true},
	}
}

func TestServerStatus(t *testing.T) {
	d := startDaemon(t)

	status, err := d.client.GetStatus()
	require.NoError(t, err)
	assert.True(t, status.DaemonRunning)
	assert.Equal(t, "push", status.Backend)
	assert.Equal(t, os.Getuid(), status.Caller.UID)
	assert.False(t, status.Engine.Tracking)
	assert.True(t, status.Permissions.Trusted)
	assert.True(t, status.Permissions.CaptureFingerprintGestures)
	assert.NoError(t, d.client.Ping())
}

func TestServerStatusPermissionsFollowObservers(t *testing.T) {
	d := startDaemon(t)
	stranger := security.Identity{UID: os.Getuid() + 4242, PID: 1}

	resp := d.server.handleCommand(context.Background(), stranger, &Request{Command: CommandGetStatus})
	require.Equal(t, StatusOK, resp.Status)
	var status StatusData
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.Equal(t, Permissions{}, status.Permissions)

	require.NoError(t, d.server.observers.Register(observer.Observer{
		ID:           "zoom",
		UID:          stranger.UID,
		Capabilities: security.CapControlMagnification | security.CapCaptureFingerprintGestures,
	}))
	resp = d.server.handleCommand(context.Background(), stranger, &Request{Command: CommandGetStatus})
	require.Equal(t, StatusOK, resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, &status))
	assert.Equal(t, Permissions{ControlMagnification: true, CaptureFingerprintGestures: true}, status.Permissions)
}

func TestServerSocketMode(t *testing.T) {
	for _, mode := range []os.FileMode{0, 0660} {
		d := startDaemonWithMode(t, mode)
		info, err := os.Stat(d.server.SocketPath())
		require.NoError(t, err)
		want := mode
		if want == 0 {
			want = 0600
		}
		assert.Equal(t, want, info.Mode().Perm())
	}
}

func TestServerPushAndQueryWindows(t *testing.T) {
	d := startDaemon(t)
	c := d.client

	_, err := c.RegisterObserver("reader", windowReaderCaps)
	require.NoError(t, err)
	require.True(t, d.engine.Status().Tracking)

	require.NoError(t, c.PushWindows(twoWindows()))

	list, err := c.ListWindows()
	require.NoError(t, err)
	require.True(t, list.Present)
	require.Len(t, list.Windows, 2)
	assert.Equal(t, "dialog", list.Windows[0].Title)

	editor := list.Windows[1]
	active, err := c.ActiveWindow()
	require.NoError(t, err)
	assert.Equal(t, editor.ID, active)

	found, ok, err := c.FindWindow(editor.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, found.Focused)
	assert.True(t, found.Active)

	region, err := c.InteractiveRegion(editor.ID)
	require.NoError(t, err)
	assert.True(t, region.Found)
	assert.True(t, region.Changed)
	assert.Equal(t, 100*100-40*40, region.Area)
	assert.Equal(t, geometry.Rect{Width: 100, Height: 100}, region.Bounds)

	bounds, ok, err := c.WindowBounds(editor.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, geometry.Rect{Width: 100, Height: 100}, bounds)

	// Unknown windows are absent, not errors.
	_, ok, err = c.FindWindow(999)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.WindowBounds(999)
	require.NoError(t, err)
	assert.False(t, ok)
	region, err = c.InteractiveRegion(999)
	require.NoError(t, err)
	assert.False(t, region.Found)
	assert.Empty(t, region.Rects)
}

func TestServerUnknownWindowForObserverIsAbsent(t *testing.T) {
	d := startDaemon(t)
	stranger := security.Identity{UID: os.Getuid() + 4242, PID: 1}

	resp := d.server.handleCommand(context.Background(), stranger, &Request{
		Command: CommandRegisterObserver,
		Payload: []byte(`{"id":"reader","capabilities":["retrieve_window_content","retrieve_interactive_windows"]}`),
	})
	require.Equal(t, StatusOK, resp.Status, resp.Error)
	require.NoError(t, d.client.PushWindows(twoWindows()))
	require.Eventually(t, func() bool { return d.engine.Windows() != nil }, 2*time.Second, 5*time.Millisecond)

	for _, cmd := range []CommandType{CommandFindWindow, CommandGetInteractiveRegion, CommandGetWindowBounds} {
		resp = d.server.handleCommand(context.Background(), stranger, &Request{
			Command: cmd,
			Payload: []byte(`{"window_id":999}`),
		})
		require.Equal(t, StatusOK, resp.Status, "%s: %s", cmd, resp.Error)
		var found struct {
			Found bool `json:"found"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &found))
		assert.False(t, found.Found, cmd)
	}
}

func TestServerSendEvent(t *testing.T) {
	d := startDaemon(t)

	ev := event.New(event.Announcement, window.InvalidID)
	ev.SourceNodeID = 4
	ev.Text = []string{"hello"}
	res, err := d.client.SendEvent(ev, nil)
	require.NoError(t, err)
	assert.True(t, res.Dispatched)
	assert.Equal(t, window.UndefinedNode, res.Event.SourceNodeID)

	background := 7
	res, err = d.client.SendEvent(event.New(event.ViewClicked, 1), &background)
	require.NoError(t, err)
	assert.False(t, res.Dispatched)
}

func TestServerTokensAndObservers(t *testing.T) {
	d := startDaemon(t)
	c := d.client

	added, err := c.AddWindow(500, "org.example.mail", nil)
	require.NoError(t, err)
	assert.NotEqual(t, window.InvalidID, added.WindowID)
	assert.Equal(t, "org.example.mail", added.Package)
	assert.Nil(t, added.Packages, "the system may report any package")

	removed, ok, err := c.RemoveWindow(500, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, added.WindowID, removed)

	o, err := c.RegisterObserver("magnifier", []string{"control_magnification"})
	require.NoError(t, err)
	assert.Equal(t, os.Getuid(), o.UID)

	observers, err := c.ListObservers()
	require.NoError(t, err)
	require.Len(t, observers, 1)
	assert.True(t, security.CanControlMagnification(observers[0].Capabilities))

	require.NoError(t, c.UnregisterObserver("magnifier"))
	assert.Error(t, c.UnregisterObserver("magnifier"))

	_, err = c.RegisterObserver("broken", []string{"fly"})
	assert.Error(t, err)
}

func TestServerTouchAndSession(t *testing.T) {
	d := startDaemon(t)
	c := d.client

	require.NoError(t, c.TouchInteraction(true))
	assert.True(t, d.engine.FocusState().TouchInteraction)
	require.NoError(t, c.TouchInteraction(false))
	assert.False(t, d.engine.FocusState().TouchInteraction)

	require.NoError(t, c.SwitchSession(2))
	assert.Equal(t, 2, d.engine.Session())
	assert.Error(t, c.SwitchSession(-1))
}

func TestServerGestureWithoutInjector(t *testing.T) {
	d := startDaemon(t)
	err := d.client.PerformGesture([]geometry.Point{{X: 1, Y: 1}}, 10*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), engine.ErrInjectorUnavailable.Error())
}

func TestServerSubscribe(t *testing.T) {
	d := startDaemon(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []dispatch.Notification
	done := make(chan error, 1)
	go func() {
		done <- d.client.Subscribe(ctx, func(n dispatch.Notification) {
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		})
	}()
	require.Eventually(t, func() bool { return d.hub.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err := d.client.RegisterObserver("reader", windowReaderCaps)
	require.NoError(t, err)
	require.NoError(t, d.client.PushWindows(twoWindows()))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, n := range got {
			if n.Kind == dispatch.KindEvent && n.Event.Type == event.WindowsChanged {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end after cancel")
	}
	assert.Eventually(t, func() bool { return d.hub.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestServerRejectsUntrustedCaller(t *testing.T) {
	d := startDaemon(t)
	stranger := security.Identity{UID: os.Getuid() + 4242, PID: 1}
	if stranger.UID == security.RootUID {
		stranger.UID++
	}
	_, err := d.engine.AddWindow(security.Identity{UID: os.Getuid(), PID: 1}, 77, "", security.SessionCurrent)
	require.NoError(t, err)

	cases := []struct {
		name string
		req  Request
	}{
		{"list windows", Request{Command: CommandListWindows}},
		{"push windows", Request{Command: CommandPushWindows, Payload: []byte(`{"windows":[]}`)}},
		{"switch session", Request{Command: CommandSwitchSession, Payload: []byte(`{"session":1}`)}},
		{"reload", Request{Command: CommandReload}},
		{"find window", Request{Command: CommandFindWindow, Payload: []byte(`{"window_id":1}`)}},
		{"gesture", Request{Command: CommandPerformGesture, Payload: []byte(`{"points":[{"x":1,"y":1}]}`)}},
		{"touch", Request{Command: CommandTouchInteraction, Payload: []byte(`{"phase":"start"}`)}},
		{"remove foreign window", Request{Command: CommandRemoveWindow, Payload: []byte(`{"token":77}`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := d.server.handleCommand(context.Background(), stranger, &tc.req)
			assert.Equal(t, StatusError, resp.Status)
			assert.Contains(t, resp.Error, "permission denied")
		})
	}

	assert.False(t, d.engine.FocusState().TouchInteraction)
	assert.Equal(t, 1, d.engine.Status().GlobalTokens)

	resp := d.server.handleCommand(context.Background(), stranger, &Request{Command: "NOPE"})
	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, resp.Error, "Unknown command")
}
