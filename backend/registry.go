package backend

import (
	"fmt"
	"sync"
)

// Registry holds the constructed storage adapters for one composition
// root. The sync engine and the hybrid façade obtain their adapter
// references from here; there is no ambient global registry.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]StorageAdapter
}

// Adapter roles used by the composition root.
const (
	RoleLocal  = "local"
	RoleRemote = "remote"
)

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]StorageAdapter)}
}

// Register stores an adapter under a role name. Registering the same name
// twice is a programming error and is rejected.
func (r *Registry) Register(name string, adapter StorageAdapter) error {
	if adapter == nil {
		return fmt.Errorf("cannot register nil adapter for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.adapters[name] = adapter
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (StorageAdapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for %q", name)
	}
	return adapter, nil
}

// Names returns the registered role names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// CloseAll closes every registered adapter, returning the first error.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for name, adapter := range r.adapters {
		if err := adapter.Close(); err != nil && first == nil {
			first = fmt.Errorf("closing adapter %q: %w", name, err)
		}
	}
	return first
}
