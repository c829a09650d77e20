package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"sort"
	"strings"
	"time"

	"github.com/1broseidon/a11yd/internal/observer"
	"github.com/1broseidon/a11yd/internal/security"
)

// Backend names the window-manager collaborator.
const (
	BackendX11  = "x11"
	BackendPush = "push"
)

// DBusConfig configures the D-Bus notification sink.
type DBusConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Interface string `yaml:"interface"`
}

// X11Config tunes how X11 clients are classified.
type X11Config struct {
	Display string `yaml:"display,omitempty"`
	// OverlayClasses are WM_CLASS names treated as accessibility overlays.
	OverlayClasses []string `yaml:"overlay_classes"`
	// InputMethodClasses are WM_CLASS names treated as input methods.
	InputMethodClasses []string `yaml:"input_method_classes"`
	// CurrentDesktopOnly hides windows on other virtual desktops.
	CurrentDesktopOnly bool `yaml:"current_desktop_only"`
}

// PackageConfig is an installed package. UID is the app id or a full UID;
// only the app id part is used.
type PackageConfig struct {
	Name        string   `yaml:"name"`
	UID         int      `yaml:"uid"`
	WidgetHosts []string `yaml:"widget_hosts,omitempty"`
}

// ObserverConfig is a statically configured observer.
type ObserverConfig struct {
	ID           string   `yaml:"id"`
	UID          int      `yaml:"uid"`
	Capabilities []string `yaml:"capabilities"`
}

// Config is the effective daemon configuration.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// SocketPath overrides the runtime socket location.
	SocketPath string `yaml:"socket_path,omitempty"`
	// SocketMode is the octal permission mode of the socket. Widen it to
	// let other UIDs in the socket's group connect.
	SocketMode          string `yaml:"socket_mode"`
	Backend             string `yaml:"backend"`
	AdoptUnknownWindows bool   `yaml:"adopt_unknown_windows"`
	WindowsTimeoutMs    int    `yaml:"windows_timeout_ms"`
	InjectorTimeoutMs   int    `yaml:"injector_timeout_ms"`
	// RefreshIntervalMs re-evaluates tracking periodically; 0 disables.
	RefreshIntervalMs int  `yaml:"refresh_interval_ms"`
	Session           int  `yaml:"session"`
	SystemUID         int  `yaml:"system_uid"`
	ShellUID          int  `yaml:"shell_uid"`
	GestureInjection  bool `yaml:"gesture_injection"`
	WatchConfig       bool `yaml:"watch_config"`

	DBus DBusConfig `yaml:"dbus"`
	X11  X11Config  `yaml:"x11"`

	Packages         []PackageConfig  `yaml:"packages"`
	CrossSessionUIDs []int            `yaml:"cross_session_uids"`
	Profiles         map[int]int      `yaml:"profiles"`
	Observers        []ObserverConfig `yaml:"observers"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		SocketMode:        "0600",
		Backend:           BackendX11,
		WindowsTimeoutMs:  5000,
		InjectorTimeoutMs: 1000,
		RefreshIntervalMs: 2000,
		SystemUID:         security.DefaultSystemUID,
		ShellUID:          security.DefaultShellUID,
		GestureInjection:  true,
		WatchConfig:       true,
		DBus: DBusConfig{
			Enabled:   false,
			Path:      "/org/a11yd/Engine",
			Interface: "org.a11yd.Engine",
		},
		X11: X11Config{
			OverlayClasses:     []string{"Orca", "Magnus", "Kmag"},
			InputMethodClasses: []string{"Onboard", "Florence", "ibus-ui-gtk3", "Fcitx"},
		},
		Packages:         []PackageConfig{},
		CrossSessionUIDs: []int{},
		Profiles:         map[int]int{},
		Observers:        []ObserverConfig{},
	}
}

// SocketPerm parses SocketMode.
func (c *Config) SocketPerm() (os.FileMode, error) {
	mode, err := strconv.ParseUint(c.SocketMode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("socket_mode %q is not an octal mode", c.SocketMode)
	}
	if mode&^0o777 != 0 {
		return 0, fmt.Errorf("socket_mode %q has bits outside 0777", c.SocketMode)
	}
	if mode&0o600 != 0o600 {
		return 0, fmt.Errorf("socket_mode %q must keep owner read and write", c.SocketMode)
	}
	return os.FileMode(mode), nil
}

// WindowsTimeout returns the bounded wait for a window snapshot.
func (c *Config) WindowsTimeout() time.Duration {
	return time.Duration(c.WindowsTimeoutMs) * time.Millisecond
}

// InjectorTimeout returns the bounded wait for the gesture injector.
func (c *Config) InjectorTimeout() time.Duration {
	return time.Duration(c.InjectorTimeoutMs) * time.Millisecond
}

// RefreshInterval returns the tracking refresh period, zero when disabled.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

// StaticObservers converts the configured observers. Capability names have
// been checked by Validate.
func (c *Config) StaticObservers() ([]observer.Observer, error) {
	out := make([]observer.Observer, 0, len(c.Observers))
	for _, o := range c.Observers {
		caps, err := security.ParseCapabilities(o.Capabilities)
		if err != nil {
			return nil, fmt.Errorf("observer %q: %w", o.ID, err)
		}
		out = append(out, observer.Observer{ID: o.ID, UID: o.UID, Capabilities: caps, Static: true})
	}
	return out, nil
}

// DirectoryPackages converts the configured packages.
func (c *Config) DirectoryPackages() []observer.Package {
	out := make([]observer.Package, 0, len(c.Packages))
	for _, p := range c.Packages {
		out = append(out, observer.Package{Name: p.Name, UID: p.UID, Widgets: slices.Clone(p.WidgetHosts)})
	}
	return out
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warn, error")}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return &ValidationError{Path: "log_format", Err: fmt.Errorf("log_format must be one of: text, json")}
	}
	if _, err := c.SocketPerm(); err != nil {
		return &ValidationError{Path: "socket_mode", Err: err}
	}
	switch c.Backend {
	case BackendX11, BackendPush:
	default:
		return &ValidationError{Path: "backend", Err: fmt.Errorf("backend must be one of: x11, push")}
	}
	if c.WindowsTimeoutMs <= 0 {
		return &ValidationError{Path: "windows_timeout_ms", Err: fmt.Errorf("windows_timeout_ms must be > 0")}
	}
	if c.InjectorTimeoutMs <= 0 {
		return &ValidationError{Path: "injector_timeout_ms", Err: fmt.Errorf("injector_timeout_ms must be > 0")}
	}
	if c.RefreshIntervalMs < 0 {
		return &ValidationError{Path: "refresh_interval_ms", Err: fmt.Errorf("refresh_interval_ms must be >= 0")}
	}
	if c.Session < 0 {
		return &ValidationError{Path: "session", Err: fmt.Errorf("session must be >= 0")}
	}
	if c.SystemUID < 0 || c.ShellUID < 0 {
		return &ValidationError{Path: "system_uid", Err: fmt.Errorf("system_uid and shell_uid must be >= 0")}
	}
	if c.DBus.Enabled {
		if !strings.HasPrefix(c.DBus.Path, "/") {
			return &ValidationError{Path: "dbus.path", Err: fmt.Errorf("dbus.path must be an absolute object path")}
		}
		if c.DBus.Interface == "" || !strings.Contains(c.DBus.Interface, ".") {
			return &ValidationError{Path: "dbus.interface", Err: fmt.Errorf("dbus.interface must be a dotted name")}
		}
	}

	seenPkg := make(map[string]bool, len(c.Packages))
	for i, p := range c.Packages {
		path := fmt.Sprintf("packages.%d", i)
		if strings.TrimSpace(p.Name) == "" {
			return &ValidationError{Path: path + ".name", Err: fmt.Errorf("package name must not be empty")}
		}
		if seenPkg[p.Name] {
			return &ValidationError{Path: path + ".name", Err: fmt.Errorf("duplicate package %q", p.Name)}
		}
		seenPkg[p.Name] = true
		if p.UID < 0 {
			return &ValidationError{Path: path + ".uid", Err: fmt.Errorf("uid must be >= 0")}
		}
	}

	for profile, parent := range c.Profiles {
		if profile < 0 || parent < 0 {
			return &ValidationError{Path: "profiles", Err: fmt.Errorf("profile %d -> %d: sessions must be >= 0", profile, parent)}
		}
		if profile == parent {
			return &ValidationError{Path: "profiles", Err: fmt.Errorf("session %d cannot be its own profile parent", profile)}
		}
	}

	seenObs := make(map[string]bool, len(c.Observers))
	for i, o := range c.Observers {
		path := fmt.Sprintf("observers.%d", i)
		if strings.TrimSpace(o.ID) == "" {
			return &ValidationError{Path: path + ".id", Err: fmt.Errorf("observer id must not be empty")}
		}
		if seenObs[o.ID] {
			return &ValidationError{Path: path + ".id", Err: fmt.Errorf("duplicate observer %q", o.ID)}
		}
		seenObs[o.ID] = true
		if _, err := security.ParseCapabilities(o.Capabilities); err != nil {
			return &ValidationError{Path: path + ".capabilities", Err: err}
		}
	}
	return nil
}

// validationWarnings reports settings that are legal but likely mistakes.
func (c *Config) validationWarnings() []string {
	var warnings []string
	if c.SystemUID == c.ShellUID {
		warnings = append(warnings, fmt.Sprintf("system_uid and shell_uid are both %d", c.SystemUID))
	}
	if c.Backend == BackendPush && c.X11.CurrentDesktopOnly {
		warnings = append(warnings, "x11.current_desktop_only has no effect with the push backend")
	}
	if len(c.Observers) == 0 {
		warnings = append(warnings, "no static observers configured; windows are tracked only once one registers")
	}
	sort.Strings(warnings)
	return warnings
}
