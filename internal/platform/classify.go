package platform

import (
	"strings"

	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/window"
	"github.com/1broseidon/a11yd/internal/x11"
)

// Classifier maps X11 clients onto window types and layers.
type Classifier struct {
	// OverlayClasses are WM_CLASS values of assistive overlays such as
	// screen readers and magnifiers.
	OverlayClasses []string
	// InputMethodClasses are WM_CLASS values of input method and on-screen
	// keyboard windows.
	InputMethodClasses []string
}

// DefaultClassifier recognises common Linux assistive and input method
// windows.
func DefaultClassifier() Classifier {
	return Classifier{
		OverlayClasses:     []string{"Orca", "Magnus", "Kmag"},
		InputMethodClasses: []string{"Onboard", "Florence", "ibus-ui-gtk3", "Fcitx"},
	}
}

var systemTypes = []string{
	"_NET_WM_WINDOW_TYPE_DESKTOP",
	"_NET_WM_WINDOW_TYPE_DOCK",
	"_NET_WM_WINDOW_TYPE_NOTIFICATION",
	"_NET_WM_WINDOW_TYPE_SPLASH",
	"_NET_WM_WINDOW_TYPE_TOOLTIP",
}

func matchClass(classes []string, class string) bool {
	for _, c := range classes {
		if strings.EqualFold(c, class) {
			return true
		}
	}
	return false
}

// Type returns the window type of c.
func (cl Classifier) Type(c x11.Client) window.Type {
	switch {
	case matchClass(cl.OverlayClasses, c.Class):
		return window.TypeAccessibilityOverlay
	case matchClass(cl.InputMethodClasses, c.Class):
		return window.TypeInputMethod
	}
	for _, t := range systemTypes {
		if c.HasType(t) {
			return window.TypeSystem
		}
	}
	return window.TypeApplication
}

// Layer orders windows by how the window manager stacks them.
func (cl Classifier) Layer(c x11.Client) int {
	switch {
	case cl.Type(c) == window.TypeAccessibilityOverlay:
		return 6
	case c.HasType("_NET_WM_WINDOW_TYPE_NOTIFICATION"):
		return 5
	case c.HasType("_NET_WM_WINDOW_TYPE_DOCK"):
		return 4
	case c.HasState("_NET_WM_STATE_ABOVE"):
		return 3
	case c.HasType("_NET_WM_WINDOW_TYPE_DESKTOP"):
		return 0
	case c.HasState("_NET_WM_STATE_BELOW"):
		return 1
	default:
		return 2
	}
}

// PictureInPicture reports whether c is a browser or player
// picture-in-picture window.
func (cl Classifier) PictureInPicture(c x11.Client) bool {
	return strings.EqualFold(c.Title, "Picture-in-Picture") ||
		strings.EqualFold(c.Title, "Picture in picture")
}

// Hidden reports whether c is minimized or otherwise not shown.
func (cl Classifier) Hidden(c x11.Client) bool {
	return c.HasState("_NET_WM_STATE_HIDDEN")
}

// Infos converts stacked clients (topmost first) into window reports. Parent
// links come from WM_TRANSIENT_FOR; children are derived from them.
func (cl Classifier) Infos(clients []x11.Client, active window.Token, visible func(x11.Client) bool) []window.Info {
	infos := make([]window.Info, 0, len(clients))
	index := make(map[window.Token]int, len(clients))
	for _, c := range clients {
		if cl.Hidden(c) || (visible != nil && !visible(c)) {
			continue
		}
		token := window.Token(c.Window)
		index[token] = len(infos)
		infos = append(infos, window.Info{
			Token:            token,
			ParentToken:      window.Token(c.TransientFor),
			Type:             cl.Type(c),
			Layer:            cl.Layer(c),
			Bounds:           c.Bounds,
			Title:            c.Title,
			AnchorNode:       window.UndefinedNode,
			Focused:          token == active,
			PictureInPicture: cl.PictureInPicture(c),
		})
	}
	for _, info := range infos {
		if info.ParentToken == 0 {
			continue
		}
		if i, ok := index[info.ParentToken]; ok {
			infos[i].ChildTokens = append(infos[i].ChildTokens, info.Token)
		}
	}
	return infos
}

// OnScreen keeps clients that overlap at least one of screens. With no
// screens every client is kept.
func OnScreen(screens []geometry.Rect) func(x11.Client) bool {
	if len(screens) == 0 {
		return nil
	}
	return func(c x11.Client) bool {
		for _, s := range screens {
			if !c.Bounds.Intersect(s).Empty() {
				return true
			}
		}
		return false
	}
}

// allOf combines client filters; nil filters are skipped.
func allOf(filters ...func(x11.Client) bool) func(x11.Client) bool {
	var active []func(x11.Client) bool
	for _, f := range filters {
		if f != nil {
			active = append(active, f)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return func(c x11.Client) bool {
		for _, f := range active {
			if !f(c) {
				return false
			}
		}
		return true
	}
}
