package derive

import (
	"sort"
	"sync"
)

// StoreInfo is a point-in-time view of a derived store.
type StoreInfo struct {
	ID           uint64   `json:"id"`
	Name         string   `json:"name"`
	State        string   `json:"state"`
	Watchers     int      `json:"watchers"`
	Derives      uint64   `json:"derives"`
	Pending      bool     `json:"pending"`
	Debounce     string   `json:"debounce,omitempty"`
	Stable       bool     `json:"stable,omitempty"`
	Dependencies []string `json:"dependencies"`
}

type inspectable interface {
	storeID() uint64
	Info() StoreInfo
}

// Registry tracks live derived stores for introspection. Stores stay
// registered until they are destroyed.
//
// Snapshot reads store state and must run on the engine goroutine.
type Registry struct {
	mu     sync.RWMutex
	stores map[uint64]inspectable
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{stores: make(map[uint64]inspectable)}
}

func (r *Registry) add(s inspectable) {
	r.mu.Lock()
	r.stores[s.storeID()] = s
	r.mu.Unlock()
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	delete(r.stores, id)
	r.mu.Unlock()
}

// Len returns the number of registered stores.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}

// Lookup returns the info for one store.
func (r *Registry) Lookup(id uint64) (StoreInfo, bool) {
	r.mu.RLock()
	s, ok := r.stores[id]
	r.mu.RUnlock()
	if !ok {
		return StoreInfo{}, false
	}
	return s.Info(), true
}

// Snapshot returns every registered store ordered by ID.
func (r *Registry) Snapshot() []StoreInfo {
	r.mu.RLock()
	list := make([]inspectable, 0, len(r.stores))
	for _, s := range r.stores {
		list = append(list, s)
	}
	r.mu.RUnlock()

	out := make([]StoreInfo, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
