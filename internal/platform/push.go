package platform

import (
	"context"
	"log/slog"
	"sync"

	"github.com/1broseidon/a11yd/internal/geometry"
	"github.com/1broseidon/a11yd/internal/window"
)

// PushBackend is a window manager fed by an external producer, typically a
// compositor plugin speaking the IPC protocol. Nothing is reported until the
// first Push.
type PushBackend struct {
	mu     sync.Mutex
	infos  []window.Info
	pushed bool
	feed   *feed
}

var _ WindowManager = (*PushBackend)(nil)

// NewPushBackend creates an empty push backend.
func NewPushBackend(logger *slog.Logger) *PushBackend {
	p := &PushBackend{}
	p.feed = newFeed(p.list, logger)
	return p
}

// Run delivers reports until ctx is cancelled.
func (p *PushBackend) Run(ctx context.Context) {
	p.feed.run(ctx)
}

// Push replaces the window list, topmost first, and schedules a report.
func (p *PushBackend) Push(infos []window.Info) {
	p.mu.Lock()
	p.infos = cloneInfos(infos)
	p.pushed = true
	p.mu.Unlock()
	p.feed.request()
}

// Tracking reports whether a callback is installed.
func (p *PushBackend) Tracking() bool {
	return p.feed.installed()
}

func (p *PushBackend) list() ([]window.Info, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pushed {
		return nil, errNoReport
	}
	return cloneInfos(p.infos), nil
}

func (p *PushBackend) SetWindowsCallback(cb func([]window.Info)) error {
	p.feed.setCallback(cb)
	return nil
}

func (p *PushBackend) FocusedWindowToken() (window.Token, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, info := range p.infos {
		if info.Focused {
			return info.Token, true
		}
	}
	return 0, false
}

func (p *PushBackend) WindowBounds(token window.Token) (geometry.Rect, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, info := range p.infos {
		if info.Token == token {
			return info.Bounds, true
		}
	}
	return geometry.Rect{}, false
}

func (p *PushBackend) ComputeWindows() {
	p.feed.request()
}

func cloneInfos(infos []window.Info) []window.Info {
	out := make([]window.Info, len(infos))
	for i, info := range infos {
		if info.ChildTokens != nil {
			info.ChildTokens = append([]window.Token(nil), info.ChildTokens...)
		}
		out[i] = info
	}
	return out
}
