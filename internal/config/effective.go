package config

import (
	"fmt"
	"maps"
	"slices"
)

// ValidationError ties a configuration error to the key that caused it and,
// when known, the file position that set it.
type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// BuildEffectiveConfig applies raw on top of DefaultConfig.
func BuildEffectiveConfig(raw RawConfig) *Config {
	cfg := DefaultConfig()

	apply(&cfg.LogLevel, raw.LogLevel)
	apply(&cfg.LogFormat, raw.LogFormat)
	apply(&cfg.SocketPath, raw.SocketPath)
	apply(&cfg.SocketMode, raw.SocketMode)
	apply(&cfg.Backend, raw.Backend)
	apply(&cfg.AdoptUnknownWindows, raw.AdoptUnknownWindows)
	apply(&cfg.WindowsTimeoutMs, raw.WindowsTimeoutMs)
	apply(&cfg.InjectorTimeoutMs, raw.InjectorTimeoutMs)
	apply(&cfg.RefreshIntervalMs, raw.RefreshIntervalMs)
	apply(&cfg.Session, raw.Session)
	apply(&cfg.SystemUID, raw.SystemUID)
	apply(&cfg.ShellUID, raw.ShellUID)
	apply(&cfg.GestureInjection, raw.GestureInjection)
	apply(&cfg.WatchConfig, raw.WatchConfig)

	if raw.DBus != nil {
		apply(&cfg.DBus.Enabled, raw.DBus.Enabled)
		apply(&cfg.DBus.Path, raw.DBus.Path)
		apply(&cfg.DBus.Interface, raw.DBus.Interface)
	}
	if raw.X11 != nil {
		apply(&cfg.X11.Display, raw.X11.Display)
		if raw.X11.OverlayClasses != nil {
			cfg.X11.OverlayClasses = slices.Clone(*raw.X11.OverlayClasses)
		}
		if raw.X11.InputMethodClasses != nil {
			cfg.X11.InputMethodClasses = slices.Clone(*raw.X11.InputMethodClasses)
		}
		apply(&cfg.X11.CurrentDesktopOnly, raw.X11.CurrentDesktopOnly)
	}

	if raw.Packages != nil {
		cfg.Packages = slices.Clone(*raw.Packages)
	}
	if raw.CrossSessionUIDs != nil {
		cfg.CrossSessionUIDs = slices.Clone(*raw.CrossSessionUIDs)
	}
	if raw.Profiles != nil {
		maps.Copy(cfg.Profiles, raw.Profiles)
	}
	if raw.Observers != nil {
		cfg.Observers = slices.Clone(*raw.Observers)
	}
	return cfg
}

func apply[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
