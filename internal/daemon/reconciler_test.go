package daemon

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/1broseidon/a11yd/internal/engine"
)

type fakeTracker struct {
	status     engine.Status
	refreshErr error
	refreshes  int
	panicOnce  bool
}

func (f *fakeTracker) RefreshTracking() error {
	f.refreshes++
	if f.panicOnce {
		f.panicOnce = false
		panic("boom")
	}
	return f.refreshErr
}

func (f *fakeTracker) Status() engine.Status {
	return f.status
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestReconcileRequestsReportWhenSnapshotMissing(t *testing.T) {
	tests := []struct {
		name       string
		status     engine.Status
		refreshErr error
		wantResync int
	}{
		{name: "untracked", status: engine.Status{Tracking: false}, wantResync: 0},
		{name: "tracked with snapshot", status: engine.Status{Tracking: true, SnapshotPresent: true}, wantResync: 0},
		{name: "tracked without snapshot", status: engine.Status{Tracking: true}, wantResync: 1},
		{name: "refresh failed", status: engine.Status{Tracking: true}, refreshErr: errors.New("no wm"), wantResync: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := &fakeTracker{status: tt.status, refreshErr: tt.refreshErr}
			resyncs := 0
			r := NewReconciler(ReconcilerConfig{Logger: quietLogger()}, tracker, func() { resyncs++ })
			r.ReconcileNow()
			if tracker.refreshes != 1 {
				t.Fatalf("refreshes = %d, want 1", tracker.refreshes)
			}
			if resyncs != tt.wantResync {
				t.Fatalf("resyncs = %d, want %d", resyncs, tt.wantResync)
			}
		})
	}
}

func TestReconcileRecoversFromPanic(t *testing.T) {
	tracker := &fakeTracker{panicOnce: true, status: engine.Status{Tracking: true}}
	r := NewReconciler(ReconcilerConfig{Logger: quietLogger()}, tracker, nil)
	r.ReconcileNow()
	r.ReconcileNow()
	if tracker.refreshes != 2 {
		t.Fatalf("refreshes = %d, want 2", tracker.refreshes)
	}
}

func TestNewReconcilerDefaultInterval(t *testing.T) {
	r := NewReconciler(ReconcilerConfig{}, &fakeTracker{}, nil)
	if r.interval <= 0 {
		t.Fatalf("interval = %v", r.interval)
	}
}
