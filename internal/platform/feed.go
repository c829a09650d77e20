package platform

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/1broseidon/a11yd/internal/window"
)

// errNoReport tells the feed there is nothing to report yet.
var errNoReport = errors.New("no window report available")

// feed delivers window reports to the installed callback from its own
// goroutine. Requests arriving while a report is pending are coalesced.
type feed struct {
	mu     sync.Mutex
	cb     func([]window.Info)
	kick   chan struct{}
	list   func() ([]window.Info, error)
	logger *slog.Logger
}

func newFeed(list func() ([]window.Info, error), logger *slog.Logger) *feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &feed{
		kick:   make(chan struct{}, 1),
		list:   list,
		logger: logger,
	}
}

func (f *feed) setCallback(cb func([]window.Info)) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
	if cb != nil {
		f.request()
	}
}

func (f *feed) installed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb != nil
}

func (f *feed) request() {
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

func (f *feed) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.kick:
			f.deliver()
		}
	}
}

func (f *feed) deliver() {
	defer func() {
		if err := recover(); err != nil {
			f.logger.Error("window report panic recovered", "error", err)
		}
	}()

	f.mu.Lock()
	cb := f.cb
	f.mu.Unlock()
	if cb == nil {
		return
	}

	infos, err := f.list()
	if err != nil {
		if !errors.Is(err, errNoReport) {
			f.logger.Warn("failed to list windows", "error", err)
		}
		return
	}
	cb(infos)
}
