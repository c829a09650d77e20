//go:build linux

package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/1broseidon/a11yd/internal/config"
	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/ipc"
	"github.com/1broseidon/a11yd/internal/logging"
	"github.com/1broseidon/a11yd/internal/window"
)

func waitForDaemon(t *testing.T, client *ipc.Client) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		err := client.Ping()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("daemon did not come up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDaemonRunPushBackendAndReload(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Backend = config.BackendPush
	cfg.SocketPath = filepath.Join(dir, "a11yd.sock")
	cfg.SystemUID = os.Getuid()
	cfg.WatchConfig = false
	cfg.RefreshIntervalMs = 50
	cfg.AdoptUnknownWindows = true

	logger := logging.New(io.Discard, "info", "text")
	d, err := New(cfg, Options{ConfigPath: cfgPath, Logger: logger})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	client := ipc.NewClientWithPath(d.SocketPath())
	waitForDaemon(t, client)

	status, err := client.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Backend != config.BackendPush || status.Engine.Tracking {
		t.Fatalf("unexpected initial status %+v", status)
	}

	// The reloaded file adds an observer that needs windows, which turns
	// tracking on and raises the log level.
	reloaded := "log_level: debug\n" +
		"observers:\n" +
		"  - id: reader\n" +
		"    uid: 10100\n" +
		"    capabilities: [retrieve_interactive_windows, retrieve_window_content]\n"
	if err := os.WriteFile(cfgPath, []byte(reloaded), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := client.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := logger.Level().String(); got != "DEBUG" {
		t.Fatalf("log level after reload = %s", got)
	}

	status, err = client.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.Engine.Tracking || status.Observers != 1 {
		t.Fatalf("tracking not enabled by reload: %+v", status)
	}

	err = client.PushWindows([]window.Info{
		{Token: 7, Type: window.TypeApplication, Bounds: geometry.Rect{X: 0, Y: 0, Width: 100, Height: 80}, Focused: true},
	})
	if err != nil {
		t.Fatalf("PushWindows: %v", err)
	}
	windows, err := client.ListWindows()
	if err != nil {
		t.Fatalf("ListWindows: %v", err)
	}
	if !windows.Present || len(windows.Windows) != 1 {
		t.Fatalf("unexpected windows %+v", windows)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(cfg.SocketPath); !os.IsNotExist(err) {
		t.Fatalf("socket not removed: %v", err)
	}
}

func TestNewRequiresLogger(t *testing.T) {
	if _, err := New(config.DefaultConfig(), Options{}); err == nil {
		t.Fatal("expected error without logger")
	}
}
