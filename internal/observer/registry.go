// Package observer tracks the assistive clients attached to the daemon and
// the package and session facts the security gate consults.
package observer

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/1broseidon/a11yd/internal/security"
)

// ErrUnknownObserver is returned when an observer id is not registered.
var ErrUnknownObserver = errors.New("unknown observer")

// Observer is an assistive client and its declared capabilities.
type Observer struct {
	ID           string                `json:"id" yaml:"id"`
	UID          int                   `json:"uid" yaml:"uid"`
	Capabilities security.Capabilities `json:"capabilities" yaml:"-"`
	// Static observers come from configuration and survive reloads only if
	// still configured.
	Static bool `json:"static,omitempty" yaml:"-"`
}

// Registry is the set of registered observers. It is safe for concurrent
// use.
type Registry struct {
	mu        sync.RWMutex
	observers map[string]Observer
	onChange  []func()
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{observers: make(map[string]Observer)}
}

// OnChange registers fn to run after every change to the set. fn runs
// without the registry lock held.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	r.onChange = append(r.onChange, fn)
	r.mu.Unlock()
}

func (r *Registry) changed() {
	r.mu.RLock()
	hooks := append([]func(){}, r.onChange...)
	r.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// Register adds or replaces an observer.
func (r *Registry) Register(o Observer) error {
	if o.ID == "" {
		return fmt.Errorf("observer id is required")
	}
	r.mu.Lock()
	r.observers[o.ID] = o
	r.mu.Unlock()
	r.changed()
	return nil
}

// Unregister removes an observer.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	_, ok := r.observers[id]
	delete(r.observers, id)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%q: %w", id, ErrUnknownObserver)
	}
	r.changed()
	return nil
}

// ReplaceStatic swaps the configured observers for static, keeping the
// dynamically registered ones.
func (r *Registry) ReplaceStatic(static []Observer) {
	r.mu.Lock()
	for id, o := range r.observers {
		if o.Static {
			delete(r.observers, id)
		}
	}
	for _, o := range static {
		o.Static = true
		r.observers[o.ID] = o
	}
	r.mu.Unlock()
	r.changed()
}

// Get returns the observer with the given id.
func (r *Registry) Get(id string) (Observer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.observers[id]
	return o, ok
}

// List returns every observer ordered by id.
func (r *Registry) List() []Observer {
	r.mu.RLock()
	out := make([]Observer, 0, len(r.observers))
	for _, o := range r.observers {
		out = append(out, o)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CapabilitiesForUID returns the union of the capabilities of observers
// running as uid.
func (r *Registry) CapabilitiesForUID(uid int) (security.Capabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var caps security.Capabilities
	found := false
	for _, o := range r.observers {
		if o.UID == uid {
			caps |= o.Capabilities
			found = true
		}
	}
	return caps, found
}

// NeedsWindows reports whether any observer may retrieve interactive
// windows, which is what makes the engine track the window list.
func (r *Registry) NeedsWindows() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.observers {
		if security.CanRetrieveWindows(o.Capabilities) {
			return true
		}
	}
	return false
}

// FocusOnlyInActiveWindow reports whether accessibility focus is confined to
// the active window, which holds while no observer inspects interactive
// windows.
func (r *Registry) FocusOnlyInActiveWindow() bool {
	return !r.NeedsWindows()
}
