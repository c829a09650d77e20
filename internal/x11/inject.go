package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgb/xtest"
)

// Core event codes accepted by XTEST FakeInput.
const (
	fakeButtonPress   = xproto.ButtonPress
	fakeButtonRelease = xproto.ButtonRelease
	fakeMotionNotify  = xproto.MotionNotify
)

// InitXTest enables the XTEST extension on the connection.
func (c *Connection) InitXTest() error {
	if err := xtest.Init(c.XUtil.Conn()); err != nil {
		return fmt.Errorf("xtest unavailable: %w", err)
	}
	return nil
}

// FakeMotion moves the core pointer to (x, y).
func (c *Connection) FakeMotion(x, y int) error {
	return xtest.FakeInputChecked(c.XUtil.Conn(), fakeMotionNotify, 0, 0, c.Root, int16(x), int16(y), 0).Check()
}

// FakeButton presses or releases pointer button.
func (c *Connection) FakeButton(button byte, press bool) error {
	kind := byte(fakeButtonRelease)
	if press {
		kind = fakeButtonPress
	}
	return xtest.FakeInputChecked(c.XUtil.Conn(), kind, button, 0, c.Root, 0, 0, 0).Check()
}
