package adapter

import (
	"fmt"
	"sync"
)

// Resolver is the name-keyed adapter registry the coordinator consults
// when opening a session against a chosen backend.
type Resolver struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the adapter under its own Name().
func (r *Resolver) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Unregister removes an adapter by name.
func (r *Resolver) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, name)
}

// Get retrieves an adapter by name.
func (r *Resolver) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("adapter not found: %s", name)
	}
	return a, nil
}

// Names returns every registered adapter name.
func (r *Resolver) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
