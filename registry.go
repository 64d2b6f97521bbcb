package standby

import (
	"sort"
	"sync"
)

// Registry is a set of endpoints. The active node keeps its standbys in one;
// a standby keeps the peers it must notify on promotion in another.
type Registry struct {
	mu      sync.Mutex
	members map[Endpoint]struct{}
}

func newRegistry(initial ...Endpoint) *Registry {
	r := &Registry{members: make(map[Endpoint]struct{}, len(initial))}
	for _, e := range initial {
		r.Register(e)
	}
	return r
}

// Register adds e. It returns false if e was already a member.
func (r *Registry) Register(e Endpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[e]; ok {
		return false
	}
	r.members[e] = struct{}{}
	return true
}

// ForEach calls fn for every member. It does not stop on errors; every
// failure is returned, keyed by the endpoint it happened on.
// fn is called on a snapshot of the set, so it may mutate the registry.
func (r *Registry) ForEach(fn func(Endpoint) error) map[Endpoint]error {
	var failed map[Endpoint]error
	for _, e := range r.Members() {
		if err := fn(e); err != nil {
			if failed == nil {
				failed = make(map[Endpoint]error)
			}
			failed[e] = err
		}
	}
	return failed
}

// Clear removes every member.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members = make(map[Endpoint]struct{})
}

// Len returns the number of members.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Members returns the members sorted by address.
func (r *Registry) Members() []Endpoint {
	r.mu.Lock()
	res := make([]Endpoint, 0, len(r.members))
	for e := range r.members {
		res = append(res, e)
	}
	r.mu.Unlock()
	sort.Slice(res, func(i, j int) bool {
		return res[i].ap.Compare(res[j].ap) < 0
	})
	return res
}
