package kernel

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Component is anything the kernel boots and shuts down as a unit: the
// semantic "Cortex" index, the context "Sniffer", and loaded skills are
// all registered through this single generic contract — their internal
// algorithms are external collaborators per spec.md §1; the kernel only
// needs their lifecycle and persistence hooks.
type Component interface {
	// Name identifies the component in the registry and in logs.
	Name() string
	// Init prepares the component; called during boot.
	Init(ctx context.Context) error
	// Shutdown releases resources; called during the shutdown sequence.
	Shutdown(ctx context.Context) error
}

// FileEventAware is implemented by components that want to observe
// debounced file-change batches (the Cortex indexer and the Sniffer).
type FileEventAware interface {
	OnFileEvent(ctx context.Context, paths []string) error
}

// Persister is implemented by components with state worth persisting
// across restarts.
type Persister interface {
	Persist(ctx context.Context) (map[string]any, error)
}

// Registry owns every booted Component, keyed by name.
type Registry struct {
	mu         sync.RWMutex
	components map[string]Component
	order      []string
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[string]Component)}
}

// Register adds a component under its own Name(). Registering the same
// name twice replaces the earlier entry.
func (r *Registry) Register(c Component) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.components[c.Name()]; !exists {
		r.order = append(r.order, c.Name())
	}
	r.components[c.Name()] = c
}

// Unregister removes a component by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.components, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get looks up a component by name.
func (r *Registry) Get(name string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[name]
	return c, ok
}

// All returns every registered component in registration order.
func (r *Registry) All() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Component, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.components[name])
	}
	return out
}

// Names lists registered component names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.components))
	for n := range r.components {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clear unregisters every component, without calling Shutdown on them
// (callers are expected to have already done so).
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components = make(map[string]Component)
	r.order = nil
}

// DispatchFileEvent notifies every FileEventAware component, collecting
// (not short-circuiting on) errors so one failing component's hook
// doesn't block another's.
func (r *Registry) DispatchFileEvent(ctx context.Context, paths []string) []error {
	var errs []error
	for _, c := range r.All() {
		aware, ok := c.(FileEventAware)
		if !ok {
			continue
		}
		if err := aware.OnFileEvent(ctx, paths); err != nil {
			errs = append(errs, fmt.Errorf("component %s: %w", c.Name(), err))
		}
	}
	return errs
}

// PersistAll asks every Persister to serialize its state, keyed by
// component name.
func (r *Registry) PersistAll(ctx context.Context) (map[string]map[string]any, []error) {
	out := make(map[string]map[string]any)
	var errs []error
	for _, c := range r.All() {
		p, ok := c.(Persister)
		if !ok {
			continue
		}
		state, err := p.Persist(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("component %s: %w", c.Name(), err))
			continue
		}
		out[c.Name()] = state
	}
	return out, errs
}
