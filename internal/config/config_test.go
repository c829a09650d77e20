package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/1broseidon/a11yd/internal/security"
)

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.WindowsTimeout() != 5*time.Second {
		t.Fatalf("windows timeout = %v, want 5s", cfg.WindowsTimeout())
	}
	if cfg.InjectorTimeout() != time.Second {
		t.Fatalf("injector timeout = %v, want 1s", cfg.InjectorTimeout())
	}
	if cfg.SystemUID != security.DefaultSystemUID || cfg.ShellUID != security.DefaultShellUID {
		t.Fatalf("unexpected trusted uids %d/%d", cfg.SystemUID, cfg.ShellUID)
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.Backend != BackendX11 {
		t.Fatalf("backend = %q, want %q", res.Config.Backend, BackendX11)
	}
	if len(res.Files) != 0 {
		t.Fatalf("expected no files, got %v", res.Files)
	}
}

func TestLoadFromPath_EmptyFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "# empty\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.LogLevel != "info" {
		t.Fatalf("log_level = %q, want info", res.Config.LogLevel)
	}
}

func TestLoadFromPath_FullDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, strings.Join([]string{
		"log_level: debug",
		"log_format: json",
		"backend: push",
		"socket_mode: \"0660\"",
		"adopt_unknown_windows: true",
		"windows_timeout_ms: 250",
		"system_uid: 1001",
		"dbus:",
		"  enabled: true",
		"x11:",
		"  overlay_classes: [Orca]",
		"packages:",
		"  - name: org.example.reader",
		"    uid: 10042",
		"    widget_hosts: [org.example.clock]",
		"cross_session_uids: [1001]",
		"profiles:",
		"  10: 0",
		"observers:",
		"  - id: screen-reader",
		"    uid: 10042",
		"    capabilities: [retrieve_window_content, retrieve_interactive_windows]",
		"",
	}, "\n"))

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := res.Config
	if cfg.LogFormat != "json" || cfg.Backend != BackendPush || !cfg.AdoptUnknownWindows {
		t.Fatalf("unexpected scalars: %+v", cfg)
	}
	if perm, err := cfg.SocketPerm(); err != nil || perm != 0o660 {
		t.Fatalf("socket perm = %v, %v; want 0660", perm, err)
	}
	if cfg.WindowsTimeout() != 250*time.Millisecond {
		t.Fatalf("windows timeout = %v", cfg.WindowsTimeout())
	}
	if !cfg.DBus.Enabled || cfg.DBus.Path != "/org/a11yd/Engine" {
		t.Fatalf("dbus section not merged with defaults: %+v", cfg.DBus)
	}
	if len(cfg.X11.OverlayClasses) != 1 || len(cfg.X11.InputMethodClasses) == 0 {
		t.Fatalf("x11 section not merged with defaults: %+v", cfg.X11)
	}
	if cfg.Profiles[10] != 0 || len(cfg.Profiles) != 1 {
		t.Fatalf("profiles = %v", cfg.Profiles)
	}

	observers, err := cfg.StaticObservers()
	if err != nil {
		t.Fatalf("observers: %v", err)
	}
	if len(observers) != 1 || !security.CanRetrieveWindows(observers[0].Capabilities) || !observers[0].Static {
		t.Fatalf("unexpected observers %+v", observers)
	}

	pkgs := cfg.DirectoryPackages()
	if len(pkgs) != 1 || pkgs[0].Widgets[0] != "org.example.clock" {
		t.Fatalf("unexpected packages %+v", pkgs)
	}
}

func TestLoadFromPath_StrictUnknownKeyErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "unknown_key: 1\n")

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "unknown_key") && !strings.Contains(err.Error(), "field") {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestLoadFromPath_ValidationErrorHasSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "log_level: info\nobservers:\n  - id: bad\n    uid: 1\n    capabilities: [teleport]\n")

	_, err := LoadFromPath(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Path != "observers.0.capabilities" {
		t.Fatalf("path = %q", verr.Path)
	}
	if verr.Source.Kind != SourceFile || verr.Source.Line != 5 {
		t.Fatalf("expected source at line 5, got %+v", verr.Source)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"backend", func(c *Config) { c.Backend = "wayland" }, "backend"},
		{"socket mode digits", func(c *Config) { c.SocketMode = "0999" }, "socket_mode"},
		{"socket mode owner", func(c *Config) { c.SocketMode = "0400" }, "socket_mode"},
		{"socket mode setuid", func(c *Config) { c.SocketMode = "4600" }, "socket_mode"},
		{"windows timeout", func(c *Config) { c.WindowsTimeoutMs = 0 }, "windows_timeout_ms"},
		{"injector timeout", func(c *Config) { c.InjectorTimeoutMs = -1 }, "injector_timeout_ms"},
		{"session", func(c *Config) { c.Session = -2 }, "session"},
		{"dbus path", func(c *Config) { c.DBus.Enabled = true; c.DBus.Path = "relative" }, "dbus.path"},
		{"empty package", func(c *Config) { c.Packages = []PackageConfig{{UID: 1}} }, "packages.0.name"},
		{"duplicate package", func(c *Config) {
			c.Packages = []PackageConfig{{Name: "a", UID: 1}, {Name: "a", UID: 2}}
		}, "packages.1.name"},
		{"self profile", func(c *Config) { c.Profiles = map[int]int{3: 3} }, "profiles"},
		{"duplicate observer", func(c *Config) {
			c.Observers = []ObserverConfig{{ID: "x"}, {ID: "x"}}
		}, "observers.1.id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Path != tt.path {
				t.Fatalf("path = %q, want %q", verr.Path, tt.path)
			}
		})
	}
}

func TestLoadFromPath_IncludeDirectoryOrderAndMainOverrides(t *testing.T) {
	dir := t.TempDir()
	configD := filepath.Join(dir, "config.d")
	if err := os.MkdirAll(configD, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, filepath.Join(configD, "10-base.yaml"), "windows_timeout_ms: 100\nsession: 1\nprofiles:\n  11: 1\n")
	writeFile(t, filepath.Join(configD, "20-override.yaml"), "windows_timeout_ms: 200\nprofiles:\n  12: 1\n")

	path := filepath.Join(dir, "config.yaml")
	writeFile(t, path, "include:\n  - config.d\nwindows_timeout_ms: 300\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.WindowsTimeoutMs != 300 {
		t.Fatalf("windows_timeout_ms = %d, want 300", res.Config.WindowsTimeoutMs)
	}
	if res.Config.Session != 1 {
		t.Fatalf("session = %d, want 1 from include", res.Config.Session)
	}
	if len(res.Config.Profiles) != 2 {
		t.Fatalf("profiles should merge across files, got %v", res.Config.Profiles)
	}
	if len(res.Files) != 3 {
		t.Fatalf("files = %v", res.Files)
	}
}

func TestLoadFromPath_IncludeMissingPathHasContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "include:\n  - missing.yaml\n")

	_, err := LoadFromPath(path)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "include") || !strings.Contains(err.Error(), "missing.yaml") {
		t.Fatalf("expected include error, got %v", err)
	}
}

func TestLoadFromPath_IncludeCycleDetection(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.yaml")
	writeFile(t, a, "include: b.yaml\n")
	writeFile(t, filepath.Join(dir, "b.yaml"), "include: a.yaml\n")

	_, err := LoadFromPath(a)
	if err == nil || !strings.Contains(err.Error(), "include cycle") {
		t.Fatalf("expected cycle error, got %v", err)
	}
}

func TestExplain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "dbus:\n  interface: org.example.Bus\nobservers:\n  - id: reader\n    uid: 5\n    capabilities: [perform_gestures]\n")

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	val, src, err := Explain(res, "dbus.interface")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if val != "org.example.Bus" || src.Kind != SourceFile || src.Line != 2 {
		t.Fatalf("got %#v from %+v", val, src)
	}

	val, src, err = Explain(res, "windows_timeout_ms")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if val != 5000 || src.Kind != SourceDefault {
		t.Fatalf("got %#v from %+v", val, src)
	}

	val, _, err = Explain(res, "observers.0.id")
	if err != nil || val != "reader" {
		t.Fatalf("got %#v, %v", val, err)
	}

	if _, _, err := Explain(res, "nope"); err == nil {
		t.Fatal("expected error for unknown path")
	}
	if _, _, err := Explain(res, "observers.4.id"); err == nil {
		t.Fatal("expected error for out of range index")
	}
}

func TestDefaultConfigPath_Env(t *testing.T) {
	t.Setenv(PathEnv, "/etc/a11yd.yaml")
	got, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("DefaultConfigPath: %v", err)
	}
	if got != "/etc/a11yd.yaml" {
		t.Fatalf("got %q", got)
	}
}

func TestWatcher_FiresOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "log_level: info\n")

	var calls atomic.Int32
	w, err := NewWatcher(path, func() { calls.Add(1) }, nil)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	writeFile(t, filepath.Join(filepath.Dir(path), "other.yaml"), "x: 1\n")
	writeFile(t, path, "log_level: debug\n")

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watcher did not fire")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
