package coordinator

import (
	"sync"

	"github.com/hazyhaar/twitchpreview/enrich/dom"
	"github.com/hazyhaar/twitchpreview/enrich/internal/render"
)

// Unit is one enriched unit.
type Unit struct {
	Key     string
	Channel string
	Root    dom.Element
	Link    dom.Element
	Preview *render.Preview
}

// Registry holds the enriched units of one activation, keyed by unit key.
// Insertion order is kept so teardown runs in document order.
type Registry struct {
	mu    sync.Mutex
	units map[string]*Unit
	order []string
}

func NewRegistry() *Registry {
	return &Registry{units: make(map[string]*Unit)}
}

// Add registers u. It reports false if the key is already taken.
func (r *Registry) Add(u *Unit) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.units[u.Key]; ok {
		return false
	}
	r.units[u.Key] = u
	r.order = append(r.order, u.Key)
	return true
}

func (r *Registry) Get(key string) (*Unit, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[key]
	return u, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.units)
}

// Drain empties the registry and returns its units in insertion order.
func (r *Registry) Drain() []*Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Unit, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.units[k])
	}
	r.units = make(map[string]*Unit)
	r.order = nil
	return out
}
