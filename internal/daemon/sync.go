package daemon

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/1broseidon/a11yd/internal/config"
	"github.com/1broseidon/a11yd/internal/observer"
)

// StateSynchronizer applies a reloaded configuration to the running daemon.
// Settings that are bound at startup are reported and left alone.
type StateSynchronizer struct {
	directory *observer.Directory
	observers *observer.Registry
	setLevel  func(string)
	logger    *slog.Logger

	mu      sync.Mutex
	current *config.Config
}

// NewStateSynchronizer creates a synchronizer starting from cfg. setLevel
// changes the log level; it may be nil.
func NewStateSynchronizer(cfg *config.Config, directory *observer.Directory, observers *observer.Registry, setLevel func(string), logger *slog.Logger) *StateSynchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateSynchronizer{
		directory: directory,
		observers: observers,
		setLevel:  setLevel,
		logger:    logger,
		current:   cfg,
	}
}

// Current returns the configuration last applied.
func (s *StateSynchronizer) Current() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Apply installs cfg. The package directory, session profiles, static
// observers and log level change in place; restart-bound settings that
// differ are returned by name.
func (s *StateSynchronizer) Apply(cfg *config.Config) ([]string, error) {
	static, err := cfg.StaticObservers()
	if err != nil {
		return nil, fmt.Errorf("apply config: %w", err)
	}

	s.mu.Lock()
	previous := s.current
	s.current = cfg
	s.mu.Unlock()

	if s.setLevel != nil {
		s.setLevel(cfg.LogLevel)
	}
	s.directory.Update(cfg.DirectoryPackages(), cfg.Profiles, cfg.CrossSessionUIDs)
	// ReplaceStatic fires the registry hooks, so tracking is re-evaluated
	// against the new observer set.
	s.observers.ReplaceStatic(static)

	pending := restartRequired(previous, cfg)
	for _, key := range pending {
		s.logger.Warn("config change requires restart", "key", key)
	}
	s.logger.Info("config applied",
		"packages", len(cfg.Packages),
		"observers", len(static),
		"profiles", len(cfg.Profiles))
	return pending, nil
}

// restartRequired lists the keys bound at startup whose values changed.
func restartRequired(prev, next *config.Config) []string {
	if prev == nil {
		return nil
	}
	var keys []string
	check := func(key string, changed bool) {
		if changed {
			keys = append(keys, key)
		}
	}
	check("backend", prev.Backend != next.Backend)
	check("socket_path", prev.SocketPath != next.SocketPath)
	check("socket_mode", prev.SocketMode != next.SocketMode)
	check("log_format", prev.LogFormat != next.LogFormat)
	check("system_uid", prev.SystemUID != next.SystemUID)
	check("shell_uid", prev.ShellUID != next.ShellUID)
	check("adopt_unknown_windows", prev.AdoptUnknownWindows != next.AdoptUnknownWindows)
	check("windows_timeout_ms", prev.WindowsTimeoutMs != next.WindowsTimeoutMs)
	check("injector_timeout_ms", prev.InjectorTimeoutMs != next.InjectorTimeoutMs)
	check("refresh_interval_ms", prev.RefreshIntervalMs != next.RefreshIntervalMs)
	check("session", prev.Session != next.Session)
	check("gesture_injection", prev.GestureInjection != next.GestureInjection)
	check("watch_config", prev.WatchConfig != next.WatchConfig)
	check("dbus", prev.DBus != next.DBus)
	check("x11", !sameX11(prev.X11, next.X11))
	sort.Strings(keys)
	return keys
}

func sameX11(a, b config.X11Config) bool {
	return a.Display == b.Display &&
		a.CurrentDesktopOnly == b.CurrentDesktopOnly &&
		slices.Equal(a.OverlayClasses, b.OverlayClasses) &&
		slices.Equal(a.InputMethodClasses, b.InputMethodClasses)
}
