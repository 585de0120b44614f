// Registry manages adapter registration and lookup.
package providers

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a thread-safe map of provider name to Adapter.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter, replacing any previous one with the same
// name.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns an adapter by name, or nil when unknown.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// Resolve returns the named adapter or an error listing what exists.
func (r *Registry) Resolve(name string) (Adapter, error) {
	if a := r.Get(name); a != nil {
		return a, nil
	}
	return nil, fmt.Errorf("unknown provider %q (registered: %v)", name, r.Names())
}

// Names returns registered adapter names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
