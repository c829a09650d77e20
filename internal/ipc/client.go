package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/1broseidon/a11yd/internal/dispatch"
	"github.com/1broseidon/a11yd/internal/engine"
	"github.com/1broseidon/a11yd/internal/event"
	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/observer"
	"github.com/1broseidon/a11yd/internal/runtimepath"
	"github.com/1broseidon/a11yd/internal/window"
)

// DefaultClientTimeout bounds a single request. Requests that wait for
// windows may take up to the daemon's windows timeout.
const DefaultClientTimeout = 10 * time.Second

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}
	return NewClientWithPath(socketPath)
}

// NewClientWithPath creates a client for the socket at path.
func NewClientWithPath(path string) *Client {
	return &Client{
		socketPath: path,
		timeout:    DefaultClientTimeout,
	}
}

func (c *Client) dial() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	return conn, nil
}

func newRequest(cmd CommandType, payload any) (*Request, error) {
	req := &Request{Command: cmd}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", cmd, err)
		}
		req.Payload = data
	}
	return req, nil
}

// sendRequest sends a request and waits for a response
func (c *Client) sendRequest(req *Request) (*Response, error) {
	conn, err := c.dial()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	if err := writeLine(conn, req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	return readResponse(reader)
}

func readResponse(reader *bufio.Reader) (*Response, error) {
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if resp.Status == StatusError {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return &resp, nil
}

// call sends cmd with payload and decodes the response data into out when
// out is non-nil.
func (c *Client) call(cmd CommandType, payload, out any) error {
	req, err := newRequest(cmd, payload)
	if err != nil {
		return err
	}
	resp, err := c.sendRequest(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to parse %s data: %w", cmd, err)
	}
	return nil
}

// Reload sends a RELOAD command to the daemon
func (c *Client) Reload() error {
	return c.call(CommandReload, nil, nil)
}

// GetStatus retrieves daemon status
func (c *Client) GetStatus() (*StatusData, error) {
	var status StatusData
	if err := c.call(CommandGetStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListWindows retrieves the window snapshot, topmost first.
func (c *Client) ListWindows() (*WindowsData, error) {
	var data WindowsData
	if err := c.call(CommandListWindows, nil, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// ActiveWindow returns the active window id.
func (c *Client) ActiveWindow() (window.ID, error) {
	var data ActiveWindowData
	if err := c.call(CommandGetActiveWindow, nil, &data); err != nil {
		return window.InvalidID, err
	}
	return data.WindowID, nil
}

// FindWindow returns the descriptor of window id. The boolean is false when
// the window is unknown or hidden from the caller.
func (c *Client) FindWindow(id window.ID) (window.Descriptor, bool, error) {
	var data WindowData
	if err := c.call(CommandFindWindow, WindowPayload{WindowID: id}, &data); err != nil {
		return window.Descriptor{}, false, err
	}
	if !data.Found || data.Window == nil {
		return window.Descriptor{}, false, nil
	}
	return *data.Window, true, nil
}

// InteractiveRegion returns the uncovered part of window id. Found is false
// when the window is unknown or hidden from the caller.
func (c *Client) InteractiveRegion(id window.ID) (*RegionData, error) {
	var data RegionData
	if err := c.call(CommandGetInteractiveRegion, WindowPayload{WindowID: id}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// WindowBounds returns the current bounds of window id. The boolean is false
// when the window is unknown or hidden from the caller.
func (c *Client) WindowBounds(id window.ID) (geometry.Rect, bool, error) {
	var data BoundsData
	if err := c.call(CommandGetWindowBounds, WindowPayload{WindowID: id}, &data); err != nil {
		return geometry.Rect{}, false, err
	}
	return data.Bounds, data.Found, nil
}

// SendEvent submits ev. A nil session means the current one.
func (c *Client) SendEvent(ev event.Event, session *int) (*engine.SendResult, error) {
	var res engine.SendResult
	if err := c.call(CommandSendEvent, SendEventPayload{Event: ev, Session: session}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TouchInteraction starts or ends a touch interaction.
func (c *Client) TouchInteraction(start bool) error {
	phase := "end"
	if start {
		phase = "start"
	}
	return c.call(CommandTouchInteraction, TouchPayload{Phase: phase}, nil)
}

// PushWindows replaces the window list of a push-backend daemon.
func (c *Client) PushWindows(infos []window.Info) error {
	return c.call(CommandPushWindows, PushWindowsPayload{Windows: infos}, nil)
}

// AddWindow registers a producer token reporting for pkg.
func (c *Client) AddWindow(token window.Token, pkg string, session *int) (*AddWindowData, error) {
	var data AddWindowData
	if err := c.call(CommandAddWindow, AddWindowPayload{Token: token, Package: pkg, Session: session}, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// RemoveWindow unregisters a producer token.
func (c *Client) RemoveWindow(token window.Token, session *int) (window.ID, bool, error) {
	var data AddWindowData
	if err := c.call(CommandRemoveWindow, RemoveWindowPayload{Token: token, Session: session}, &data); err != nil {
		return window.InvalidID, false, err
	}
	return data.WindowID, data.Removed, nil
}

// RegisterObserver declares an observer running as the caller.
func (c *Client) RegisterObserver(id string, capabilities []string) (*observer.Observer, error) {
	var o observer.Observer
	payload := RegisterObserverPayload{ID: id, Capabilities: capabilities}
	if err := c.call(CommandRegisterObserver, payload, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// UnregisterObserver removes an observer.
func (c *Client) UnregisterObserver(id string) error {
	return c.call(CommandUnregisterObserver, UnregisterObserverPayload{ID: id}, nil)
}

// ListObservers returns the registered observers.
func (c *Client) ListObservers() ([]observer.Observer, error) {
	var data ObserversData
	if err := c.call(CommandListObservers, nil, &data); err != nil {
		return nil, err
	}
	return data.Observers, nil
}

// SwitchSession makes session live.
func (c *Client) SwitchSession(session int) error {
	return c.call(CommandSwitchSession, SwitchSessionPayload{Session: session}, nil)
}

// PerformGesture injects a gesture through the daemon.
func (c *Client) PerformGesture(points []geometry.Point, duration time.Duration) error {
	payload := GesturePayload{Points: points, DurationMs: int(duration / time.Millisecond)}
	return c.call(CommandPerformGesture, payload, nil)
}

// Subscribe streams notifications to fn until ctx is cancelled or the
// daemon closes the stream.
func (c *Client) Subscribe(ctx context.Context, fn func(dispatch.Notification)) error {
	conn, err := c.dial()
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	req, _ := newRequest(CommandSubscribe, nil)
	conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if err := writeLine(conn, req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(c.timeout))
	if _, err := readResponse(reader); err != nil {
		return err
	}
	conn.SetReadDeadline(time.Time{})

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("subscription ended: %w", err)
		}
		var n dispatch.Notification
		if err := json.Unmarshal(line, &n); err != nil {
			return fmt.Errorf("failed to parse notification: %w", err)
		}
		fn(n)
	}
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	_, err := c.GetStatus()
	return err
}
