package x11

import (
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"

	"github.com/1broseidon/a11yd/internal/geometry"
)

// Client is a managed top-level window as read from the X server.
type Client struct {
	Window       xproto.Window
	TransientFor xproto.Window
	Types        []string
	States       []string
	Class        string
	Title        string
	Bounds       geometry.Rect
}

// HasType reports whether the client carries the _NET_WM_WINDOW_TYPE atom name.
func (c Client) HasType(name string) bool {
	for _, t := range c.Types {
		if t == name {
			return true
		}
	}
	return false
}

// HasState reports whether the client carries the _NET_WM_STATE atom name.
func (c Client) HasState(name string) bool {
	for _, s := range c.States {
		if s == name {
			return true
		}
	}
	return false
}

// StackingClients returns the managed windows ordered topmost first. Windows
// that vanish while being read are skipped.
func (c *Connection) StackingClients() ([]Client, error) {
	stacking, err := ewmh.ClientListStackingGet(c.XUtil)
	if err != nil {
		// Not every window manager maintains the stacking list.
		stacking, err = ewmh.ClientListGet(c.XUtil)
		if err != nil {
			return nil, err
		}
	}

	clients := make([]Client, 0, len(stacking))
	// _NET_CLIENT_LIST_STACKING is bottom-to-top.
	for i := len(stacking) - 1; i >= 0; i-- {
		client, ok := c.readClient(stacking[i])
		if !ok {
			continue
		}
		clients = append(clients, client)
	}
	return clients, nil
}

func (c *Connection) readClient(windowID xproto.Window) (Client, bool) {
	bounds, ok := c.WindowRect(windowID)
	if !ok {
		return Client{}, false
	}

	client := Client{
		Window: windowID,
		Bounds: bounds,
		Title:  c.WindowTitle(windowID),
	}
	if types, err := ewmh.WmWindowTypeGet(c.XUtil, windowID); err == nil {
		client.Types = types
	}
	if states, err := ewmh.WmStateGet(c.XUtil, windowID); err == nil {
		client.States = states
	}
	if wmClass, err := icccm.WmClassGet(c.XUtil, windowID); err == nil {
		client.Class = strings.TrimSpace(wmClass.Class)
	}
	if parent, err := icccm.WmTransientForGet(c.XUtil, windowID); err == nil && parent != c.Root {
		client.TransientFor = parent
	}
	return client, true
}

// WindowRect returns the window geometry in root coordinates.
func (c *Connection) WindowRect(windowID xproto.Window) (geometry.Rect, bool) {
	geom, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(windowID)).Reply()
	if err != nil {
		return geometry.Rect{}, false
	}

	translate, err := xproto.TranslateCoordinates(
		c.XUtil.Conn(),
		windowID,
		c.Root,
		0, 0,
	).Reply()
	if err != nil {
		return geometry.Rect{}, false
	}

	return geometry.Rect{
		X:      int(translate.DstX),
		Y:      int(translate.DstY),
		Width:  int(geom.Width),
		Height: int(geom.Height),
	}, true
}

// WindowTitle prefers _NET_WM_NAME and falls back to WM_NAME.
func (c *Connection) WindowTitle(windowID xproto.Window) string {
	title, err := ewmh.WmNameGet(c.XUtil, windowID)
	if err == nil {
		title = strings.TrimSpace(title)
		if title != "" {
			return title
		}
	}

	title, err = icccm.WmNameGet(c.XUtil, windowID)
	if err == nil {
		return strings.TrimSpace(title)
	}
	return ""
}

// GetActiveWindow returns _NET_ACTIVE_WINDOW.
func (c *Connection) GetActiveWindow() (xproto.Window, error) {
	return ewmh.ActiveWindowGet(c.XUtil)
}
