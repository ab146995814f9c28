package channel

import (
	"sort"
	"sync"

	"github.com/drblury/puppets/internal/runtime/dispatch"
)

// ResetObserver is told about every channel reset.
type ResetObserver interface {
	ObserveReset(channel string)
}

// ResetObserverFunc adapts a function to ResetObserver.
type ResetObserverFunc func(channel string)

func (f ResetObserverFunc) ObserveReset(channel string) {
	f(channel)
}

// Option customises a Registry.
type Option func(*Registry)

// WithDispatchObserver reports every dispatch on every channel to o.
func WithDispatchObserver(o dispatch.Observer) Option {
	return func(r *Registry) {
		r.dispatchObserver = o
	}
}

// WithResetObserver reports channel resets to o.
func WithResetObserver(o ResetObserver) Option {
	return func(r *Registry) {
		r.resetObserver = o
	}
}

// Registry maps channel names to channels.
type Registry struct {
	mu               sync.RWMutex
	channels         map[string]*Channel
	dispatchObserver dispatch.Observer
	resetObserver    ResetObserver
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{channels: make(map[string]*Channel)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultRegistry backs the package level helpers.
var DefaultRegistry = NewRegistry()

func normalize(name string) string {
	if name == "" {
		return RootChannel
	}
	return name
}

// Channel returns the channel registered under name, creating it on first
// use. Equal names always yield the same instance.
func (r *Registry) Channel(name string) *Channel {
	name = normalize(name)

	r.mu.RLock()
	ch, ok := r.channels[name]
	r.mu.RUnlock()
	if ok {
		return ch
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[name]; ok {
		return ch
	}
	ch = &Channel{
		name:  name,
		Triad: dispatch.NewTriad(name, r.dispatchObserver),
	}
	if r.resetObserver != nil {
		observer := r.resetObserver
		ch.onReset = func(c *Channel) { observer.ObserveReset(c.name) }
	}
	r.channels[name] = ch
	return ch
}

// Lookup returns the channel registered under name without creating it.
func (r *Registry) Lookup(name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[normalize(name)]
	return ch, ok
}

// Has reports whether name has been created.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Reset clears the named channel. Unknown names are ignored and not created.
func (r *Registry) Reset(name string) {
	if ch, ok := r.Lookup(name); ok {
		ch.Reset()
	}
}

// Remove resets the named channel and forgets it. A later Channel call for the
// same name creates a fresh instance. It reports whether the name existed.
func (r *Registry) Remove(name string) bool {
	name = normalize(name)
	r.mu.Lock()
	ch, ok := r.channels[name]
	delete(r.channels, name)
	r.mu.Unlock()
	if ok {
		ch.Reset()
	}
	return ok
}

// Names returns the registered channel names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named channel from DefaultRegistry.
func Get(name string) *Channel {
	return DefaultRegistry.Channel(name)
}

// Reset clears the named channel of DefaultRegistry.
func Reset(name string) {
	DefaultRegistry.Reset(name)
}
