package config

import (
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

type RawDBus struct {
	Enabled   *bool   `yaml:"enabled"`
	Path      *string `yaml:"path"`
	Interface *string `yaml:"interface"`
}

type RawX11 struct {
	Display            *string   `yaml:"display"`
	OverlayClasses     *[]string `yaml:"overlay_classes"`
	InputMethodClasses *[]string `yaml:"input_method_classes"`
	CurrentDesktopOnly *bool     `yaml:"current_desktop_only"`
}

// RawConfig is one configuration file as written: every field is optional
// so files can be layered through include.
type RawConfig struct {
	Include IncludeList `yaml:"include"`

	LogLevel            *string `yaml:"log_level"`
	LogFormat           *string `yaml:"log_format"`
	SocketPath          *string `yaml:"socket_path"`
	SocketMode          *string `yaml:"socket_mode"`
	Backend             *string `yaml:"backend"`
	AdoptUnknownWindows *bool   `yaml:"adopt_unknown_windows"`
	WindowsTimeoutMs    *int    `yaml:"windows_timeout_ms"`
	InjectorTimeoutMs   *int    `yaml:"injector_timeout_ms"`
	RefreshIntervalMs   *int    `yaml:"refresh_interval_ms"`
	Session             *int    `yaml:"session"`
	SystemUID           *int    `yaml:"system_uid"`
	ShellUID            *int    `yaml:"shell_uid"`
	GestureInjection    *bool   `yaml:"gesture_injection"`
	WatchConfig         *bool   `yaml:"watch_config"`

	DBus *RawDBus `yaml:"dbus"`
	X11  *RawX11  `yaml:"x11"`

	Packages         *[]PackageConfig  `yaml:"packages"`
	CrossSessionUIDs *[]int            `yaml:"cross_session_uids"`
	Profiles         map[int]int       `yaml:"profiles"`
	Observers        *[]ObserverConfig `yaml:"observers"`
}

// merge overlays o onto c. Scalars and lists in o replace those in c;
// profiles are merged key by key.
func (c RawConfig) merge(o RawConfig) RawConfig {
	out := c
	out.Include = nil

	setPtr(&out.LogLevel, o.LogLevel)
	setPtr(&out.LogFormat, o.LogFormat)
	setPtr(&out.SocketPath, o.SocketPath)
	setPtr(&out.SocketMode, o.SocketMode)
	setPtr(&out.Backend, o.Backend)
	setPtr(&out.AdoptUnknownWindows, o.AdoptUnknownWindows)
	setPtr(&out.WindowsTimeoutMs, o.WindowsTimeoutMs)
	setPtr(&out.InjectorTimeoutMs, o.InjectorTimeoutMs)
	setPtr(&out.RefreshIntervalMs, o.RefreshIntervalMs)
	setPtr(&out.Session, o.Session)
	setPtr(&out.SystemUID, o.SystemUID)
	setPtr(&out.ShellUID, o.ShellUID)
	setPtr(&out.GestureInjection, o.GestureInjection)
	setPtr(&out.WatchConfig, o.WatchConfig)
	setPtr(&out.Packages, o.Packages)
	setPtr(&out.CrossSessionUIDs, o.CrossSessionUIDs)
	setPtr(&out.Observers, o.Observers)

	if o.DBus != nil {
		merged := RawDBus{}
		if c.DBus != nil {
			merged = *c.DBus
		}
		setPtr(&merged.Enabled, o.DBus.Enabled)
		setPtr(&merged.Path, o.DBus.Path)
		setPtr(&merged.Interface, o.DBus.Interface)
		out.DBus = &merged
	}
	if o.X11 != nil {
		merged := RawX11{}
		if c.X11 != nil {
			merged = *c.X11
		}
		setPtr(&merged.Display, o.X11.Display)
		setPtr(&merged.OverlayClasses, o.X11.OverlayClasses)
		setPtr(&merged.InputMethodClasses, o.X11.InputMethodClasses)
		setPtr(&merged.CurrentDesktopOnly, o.X11.CurrentDesktopOnly)
		out.X11 = &merged
	}
	if o.Profiles != nil {
		profiles := make(map[int]int, len(c.Profiles)+len(o.Profiles))
		maps.Copy(profiles, c.Profiles)
		maps.Copy(profiles, o.Profiles)
		out.Profiles = profiles
	}
	return out
}

func setPtr[T any](dst **T, src *T) {
	if src != nil {
		*dst = src
	}
}
