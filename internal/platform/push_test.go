package platform

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/window"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func receive(t *testing.T, ch <-chan []window.Info) []window.Info {
	t.Helper()
	select {
	case infos := <-ch:
		return infos
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for window report")
		return nil
	}
}

func TestPushBackendReportsAfterFirstPush(t *testing.T) {
	p := NewPushBackend(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	reports := make(chan []window.Info, 4)
	if err := p.SetWindowsCallback(func(infos []window.Info) { reports <- infos }); err != nil {
		t.Fatalf("SetWindowsCallback: %v", err)
	}
	if !p.Tracking() {
		t.Fatal("Tracking() should be true once a callback is installed")
	}

	select {
	case <-reports:
		t.Fatal("no report expected before the first push")
	case <-time.After(50 * time.Millisecond):
	}

	p.Push([]window.Info{{Token: 7, Focused: true, Bounds: geometry.Rect{Width: 5, Height: 5}}})
	infos := receive(t, reports)
	if len(infos) != 1 || infos[0].Token != 7 {
		t.Fatalf("report = %+v, want token 7", infos)
	}

	tok, ok := p.FocusedWindowToken()
	if !ok || tok != 7 {
		t.Fatalf("FocusedWindowToken() = (%d, %v), want (7, true)", tok, ok)
	}
	if b, ok := p.WindowBounds(7); !ok || b.Width != 5 {
		t.Fatalf("WindowBounds() = (%v, %v)", b, ok)
	}
	if _, ok := p.WindowBounds(8); ok {
		t.Fatal("WindowBounds() for unknown token should miss")
	}

	p.ComputeWindows()
	if again := receive(t, reports); len(again) != 1 {
		t.Fatalf("recomputed report = %+v", again)
	}
}

func TestPushBackendUninstall(t *testing.T) {
	p := NewPushBackend(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	reports := make(chan []window.Info, 4)
	p.SetWindowsCallback(func(infos []window.Info) { reports <- infos })
	p.SetWindowsCallback(nil)
	p.Push([]window.Info{{Token: 1}})

	select {
	case <-reports:
		t.Fatal("no report expected without a callback")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPushBackendCopiesInput(t *testing.T) {
	p := NewPushBackend(testLogger())
	infos := []window.Info{{Token: 1, ChildTokens: []window.Token{2}}}
	p.Push(infos)
	infos[0].ChildTokens[0] = 99

	got, err := p.list()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got[0].ChildTokens[0] != 2 {
		t.Fatal("Push() kept a reference to the caller's slice")
	}
}
