// Package daemon assembles the engine, its collaborators and the IPC server
// into one long-running process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/1broseidon/a11yd/internal/config"
	"github.com/1broseidon/a11yd/internal/dispatch"
	"github.com/1broseidon/a11yd/internal/engine"
	"github.com/1broseidon/a11yd/internal/ipc"
	"github.com/1broseidon/a11yd/internal/logging"
	"github.com/1broseidon/a11yd/internal/observer"
	"github.com/1broseidon/a11yd/internal/platform"
	"github.com/1broseidon/a11yd/internal/security"
)

// drainTimeout bounds delivery of queued notifications at shutdown.
const drainTimeout = 2 * time.Second

// Options configures a daemon.
type Options struct {
	// ConfigPath is the file reloads read from; empty means the default
	// location.
	ConfigPath string
	// Logger is required.
	Logger *logging.Logger
}

// backend is an opened window-manager collaborator.
type backend struct {
	wm       platform.WindowManager
	push     *platform.PushBackend
	run      func(ctx context.Context) error
	close    func()
	injector platform.Injector
}

// Daemon is a configured, not yet running, a11yd process.
type Daemon struct {
	configPath string
	logger     *logging.Logger

	directory  *observer.Directory
	gate       *security.Gate
	observers  *observer.Registry
	hub        *ipc.Hub
	dbus       *dispatch.DBusSink
	queue      *dispatch.Queue
	engine     *engine.Engine
	backend    *backend
	server     *ipc.Server
	sync       *StateSynchronizer
	reconciler *Reconciler
}

// New wires a daemon from cfg. Nothing runs until Run.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if opts.Logger == nil {
		return nil, errors.New("daemon requires a logger")
	}
	logger := opts.Logger.Logger

	d := &Daemon{
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
	}

	d.directory = observer.NewDirectory(cfg.DirectoryPackages(), cfg.Profiles, cfg.CrossSessionUIDs)
	d.gate = security.NewGate(d.directory, d.directory)
	d.gate.SystemUID = cfg.SystemUID
	d.gate.ShellUID = cfg.ShellUID
	d.observers = observer.NewRegistry()

	d.hub = ipc.NewHub(ipc.DefaultSubscriberBuffer, logger)
	sinks := dispatch.NewMultiSink(dispatch.LogSink{Logger: logger}, d.hub)
	if cfg.DBus.Enabled {
		sink, err := dispatch.NewDBusSink(cfg.DBus.Path, cfg.DBus.Interface)
		if err != nil {
			logger.Warn("dbus sink unavailable", "error", err)
		} else {
			d.dbus = sink
			sinks.Add(sink)
		}
	}
	d.queue = dispatch.NewQueue(sinks, dispatch.QueueConfig{Logger: logger})

	be, err := openBackend(cfg, logger)
	if err != nil {
		d.closeSinks()
		return nil, err
	}
	d.backend = be

	d.engine = engine.New(engine.Config{
		WindowManager:       be.wm,
		Observers:           d.observers,
		Gate:                d.gate,
		Notifier:            d.queue,
		Logger:              logger,
		Session:             cfg.Session,
		WindowsTimeout:      cfg.WindowsTimeout(),
		InjectorTimeout:     cfg.InjectorTimeout(),
		AdoptUnknownWindows: cfg.AdoptUnknownWindows,
	})
	d.observers.OnChange(func() {
		if err := d.engine.RefreshTracking(); err != nil {
			logger.Error("failed to refresh tracking", "error", err)
		}
	})

	d.sync = NewStateSynchronizer(cfg, d.directory, d.observers, opts.Logger.SetLevel, logger)
	if _, err := d.sync.Apply(cfg); err != nil {
		d.Close()
		return nil, err
	}

	socketMode, err := cfg.SocketPerm()
	if err != nil {
		d.Close()
		return nil, err
	}
	d.server, err = ipc.NewServer(ipc.ServerConfig{
		SocketPath: cfg.SocketPath,
		SocketMode: socketMode,
		Engine:     d.engine,
		Observers:  d.observers,
		Push:       be.push,
		Hub:        d.hub,
		Queue:      d.queue,
		Backend:    cfg.Backend,
		Reload:     d.Reload,
		Logger:     logger,
	})
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to create IPC server: %w", err)
	}

	if cfg.RefreshInterval() > 0 {
		d.reconciler = NewReconciler(ReconcilerConfig{
			Interval: cfg.RefreshInterval(),
			Logger:   logger,
		}, d.engine, be.wm.ComputeWindows)
	}
	return d, nil
}

func openBackend(cfg *config.Config, logger *slog.Logger) (*backend, error) {
	switch cfg.Backend {
	case config.BackendPush:
		p := platform.NewPushBackend(logger)
		return &backend{
			wm:   p,
			push: p,
			run: func(ctx context.Context) error {
				p.Run(ctx)
				return nil
			},
			close: func() {},
		}, nil
	case config.BackendX11:
		return openX11(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// Engine returns the daemon's engine.
func (d *Daemon) Engine() *engine.Engine {
	return d.engine
}

// SocketPath returns the IPC socket path.
func (d *Daemon) SocketPath() string {
	return d.server.SocketPath()
}

// Reload re-reads the configuration file and applies it.
func (d *Daemon) Reload() error {
	var (
		res *config.LoadResult
		err error
	)
	if d.configPath == "" {
		res, err = config.LoadWithSources()
	} else {
		res, err = config.LoadFromPath(d.configPath)
	}
	if err != nil {
		d.logger.Error("config reload failed", "error", err)
		return fmt.Errorf("reload config: %w", err)
	}
	for _, w := range res.Warnings {
		d.logger.Warn("config warning", "warning", w)
	}
	if _, err := d.sync.Apply(res.Config); err != nil {
		return err
	}
	d.logger.Info("config reloaded", "files", len(res.Files))
	return nil
}

// Run starts every component and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	logger := d.logger.Logger

	if err := d.server.Start(); err != nil {
		return fmt.Errorf("failed to start IPC server: %w", err)
	}
	defer d.server.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go d.queue.Run(ctx)

	backendErr := make(chan error, 1)
	go func() {
		backendErr <- d.backend.run(ctx)
	}()

	if d.backend.injector != nil {
		d.engine.SetInjector(d.backend.injector)
	}
	if err := d.engine.RefreshTracking(); err != nil {
		logger.Error("failed to start tracking", "error", err)
	}

	cfg := d.sync.Current()
	if cfg.WatchConfig {
		d.startWatcher(ctx)
	}
	if d.reconciler != nil {
		go d.reconciler.Run(ctx)
	}

	logger.Info("a11yd daemon started",
		"socket", d.server.SocketPath(),
		"backend", cfg.Backend,
		"session", d.engine.Session())

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-backendErr:
		if err != nil {
			runErr = fmt.Errorf("window backend stopped: %w", err)
		}
	}
	cancel()

	logger.Info("shutting down a11yd daemon")
	drainCtx, drainCancel := context.WithTimeout(context.Background(), drainTimeout)
	d.queue.Drain(drainCtx)
	drainCancel()
	d.Close()
	return runErr
}

func (d *Daemon) startWatcher(ctx context.Context) {
	path := d.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			d.logger.Warn("config watcher disabled", "error", err)
			return
		}
	}
	w, err := config.NewWatcher(path, func() {
		if err := d.Reload(); err != nil {
			d.logger.Warn("config watcher reload failed", "error", err)
		}
	}, d.logger.Logger)
	if err != nil {
		d.logger.Warn("config watcher disabled", "path", path, "error", err)
		return
	}
	go w.Run(ctx)
}

// Close releases the window backend and the bus connection.
func (d *Daemon) Close() {
	if d.backend != nil {
		d.backend.close()
	}
	d.closeSinks()
}

func (d *Daemon) closeSinks() {
	if d.dbus != nil {
		if err := d.dbus.Close(); err != nil {
			d.logger.Warn("failed to close dbus connection", "error", err)
		}
		d.dbus = nil
	}
}
