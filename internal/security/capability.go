// Package security decides what an observer may see and on whose behalf a
// caller may act.
//
// Everything here is a predicate over its inputs. The engine supplies the
// current focus and snapshot view under its lock; nothing in this package
// holds state of its own.
package security

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Capabilities is the set of capabilities an observer declared.
type Capabilities uint32

const (
	CapRetrieveWindowContent Capabilities = 1 << iota
	CapRetrieveInteractiveWindows
	CapControlMagnification
	CapPerformGestures
	CapCaptureFingerprintGestures
)

var capabilityNames = []struct {
	cap  Capabilities
	name string
}{
	{CapRetrieveWindowContent, "retrieve_window_content"},
	{CapRetrieveInteractiveWindows, "retrieve_interactive_windows"},
	{CapControlMagnification, "control_magnification"},
	{CapPerformGestures, "perform_gestures"},
	{CapCaptureFingerprintGestures, "capture_fingerprint_gestures"},
}

// ParseCapabilities converts capability names to a set.
func ParseCapabilities(names []string) (Capabilities, error) {
	var caps Capabilities
	for _, raw := range names {
		name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
		found := false
		for _, c := range capabilityNames {
			if c.name == name {
				caps |= c.cap
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown capability %q", raw)
		}
	}
	return caps, nil
}

// Has reports whether every capability in want is set.
func (c Capabilities) Has(want Capabilities) bool {
	return c&want == want
}

// Names returns the names of the set capabilities.
func (c Capabilities) Names() []string {
	names := []string{}
	for _, n := range capabilityNames {
		if c.Has(n.cap) {
			names = append(names, n.name)
		}
	}
	return names
}

func (c Capabilities) String() string {
	return strings.Join(c.Names(), ",")
}

// MarshalJSON encodes the set as a list of names.
func (c Capabilities) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Names())
}

// UnmarshalJSON decodes a list of names.
func (c *Capabilities) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	parsed, err := ParseCapabilities(names)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func CanRetrieveWindowContent(c Capabilities) bool {
	return c.Has(CapRetrieveWindowContent)
}

// CanRetrieveWindows requires window content access and declared interest
// in interactive windows.
func CanRetrieveWindows(c Capabilities) bool {
	return CanRetrieveWindowContent(c) && c.Has(CapRetrieveInteractiveWindows)
}

func CanControlMagnification(c Capabilities) bool {
	return c.Has(CapControlMagnification)
}

func CanPerformGestures(c Capabilities) bool {
	return c.Has(CapPerformGestures)
}

func CanCaptureFingerprintGestures(c Capabilities) bool {
	return c.Has(CapCaptureFingerprintGestures)
}
