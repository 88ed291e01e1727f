package runtime

import (
	"sync"

	"github.com/sessionbroker/broker/pkg/types"
)

// Registry is the bridge's id-to-runtime mapping (spec §3 "Ownership":
// "a session is exclusively owned by its runtime; the bridge holds a
// mapping from id to runtime").
type Registry struct {
	mu   sync.RWMutex
	byID map[string]*Runtime
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Runtime)}
}

// Put registers rt, overwriting any previous runtime under the same id.
func (r *Registry) Put(rt *Runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[rt.ID()] = rt
}

// Get returns the runtime for id, if any.
func (r *Registry) Get(id string) (*Runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.byID[id]
	return rt, ok
}

// Remove drops id from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// List returns every registered session's immutable id, in no particular
// order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byID))
	for id := range r.byID {
		out = append(out, id)
	}
	return out
}

// Snapshots returns a snapshot of every registered session's record, in
// no particular order.
func (r *Registry) Snapshots() []types.Session {
	r.mu.RLock()
	ids := make([]*Runtime, 0, len(r.byID))
	for _, rt := range r.byID {
		ids = append(ids, rt)
	}
	r.mu.RUnlock()

	out := make([]types.Session, 0, len(ids))
	for _, rt := range ids {
		out = append(out, rt.Snapshot())
	}
	return out
}

// Len reports how many sessions are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
