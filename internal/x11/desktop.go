package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
)

// allDesktops is the _NET_WM_DESKTOP value of sticky windows.
const allDesktops = 0xFFFFFFFF

// GetCurrentDesktop returns the current virtual desktop number (0-indexed).
func (c *Connection) GetCurrentDesktop() (int, error) {
	desktop, err := ewmh.CurrentDesktopGet(c.XUtil)
	if err != nil {
		return 0, fmt.Errorf("failed to get current desktop: %w", err)
	}
	return int(desktop), nil
}

// GetWindowDesktop returns the desktop number a window is on, or -1 for
// sticky windows.
func (c *Connection) GetWindowDesktop(windowID xproto.Window) (int, error) {
	desktop, err := ewmh.WmDesktopGet(c.XUtil, windowID)
	if err != nil {
		return 0, fmt.Errorf("failed to get window desktop: %w", err)
	}
	if desktop == allDesktops {
		return -1, nil
	}
	return int(desktop), nil
}

// DesktopFilter returns a predicate reporting whether a window is visible on
// the current desktop. Without EWMH desktop support every window passes.
func (c *Connection) DesktopFilter() func(xproto.Window) bool {
	current, err := c.GetCurrentDesktop()
	if err != nil {
		return func(xproto.Window) bool { return true }
	}
	return func(windowID xproto.Window) bool {
		desktop, err := c.GetWindowDesktop(windowID)
		if err != nil {
			return true
		}
		return desktop == -1 || desktop == current
	}
}
