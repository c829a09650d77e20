package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/1broseidon/a11yd/internal/engine"
)

// Tracker is the part of the engine the reconciler drives.
type Tracker interface {
	RefreshTracking() error
	Status() engine.Status
}

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Reconciler periodically re-evaluates window tracking and asks the window
// manager for a report when a tracked engine still has no snapshot.
type Reconciler struct {
	interval time.Duration
	tracker  Tracker
	resync   func()
	logger   *slog.Logger
}

// NewReconciler creates a new reconciler. resync requests a fresh window
// report; it may be nil.
func NewReconciler(cfg ReconcilerConfig, tracker Tracker, resync func()) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		interval: interval,
		tracker:  tracker,
		resync:   resync,
		logger:   logger,
	}
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.reconcile()
		}
	}
}

// reconcile performs a single reconciliation pass.
func (r *Reconciler) reconcile() {
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", "error", err)
		}
	}()

	if err := r.tracker.RefreshTracking(); err != nil {
		r.logger.Error("reconciler: failed to refresh tracking", "error", err)
		return
	}

	st := r.tracker.Status()
	if !st.Tracking || st.SnapshotPresent {
		return
	}
	r.logger.Debug("reconciler: tracked without a snapshot, requesting report",
		"session", st.Session)
	if r.resync != nil {
		r.resync()
	}
}

// ReconcileNow triggers an immediate reconciliation pass.
func (r *Reconciler) ReconcileNow() {
	r.reconcile()
}
