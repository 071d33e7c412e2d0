// Package registry tracks which scoped keys are believed present in the
// backend. The backend itself cannot enumerate keys, so this out-of-band
// index is what makes listing, pattern matching and snapshots possible.
//
// The registry is a superset hint: a listed key may already have expired or
// been removed in the backend. Liveness is authoritative only at the
// backend; callers reconcile lazily (on read misses) or in bulk (before a
// snapshot).
package registry

import (
	"sort"
	"sync"
)

// Registry holds one set of scoped keys per namespace, with "" for the
// unscoped set. The mutex guards only the in-memory sets; backend I/O never
// happens under it.
type Registry struct {
	mu   sync.RWMutex
	sets map[string]map[string]struct{}
}

func New() *Registry {
	return &Registry{sets: make(map[string]map[string]struct{})}
}

// Add records a scoped key under the namespace.
func (r *Registry) Add(ns, key string) {
	r.mu.Lock()
	set, ok := r.sets[ns]
	if !ok {
		set = make(map[string]struct{})
		r.sets[ns] = set
	}
	set[key] = struct{}{}
	r.mu.Unlock()
}

// Remove drops a scoped key; reports whether it was present.
func (r *Registry) Remove(ns, key string) bool {
	r.mu.Lock()
	set, ok := r.sets[ns]
	if ok {
		_, ok = set[key]
		delete(set, key)
	}
	r.mu.Unlock()
	return ok
}

// RemoveAll drops several scoped keys from one namespace at once and
// reports how many were present.
func (r *Registry) RemoveAll(ns string, keys []string) int {
	n := 0
	r.mu.Lock()
	if set, ok := r.sets[ns]; ok {
		for _, k := range keys {
			if _, present := set[k]; present {
				delete(set, k)
				n++
			}
		}
	}
	r.mu.Unlock()
	return n
}

func (r *Registry) Contains(ns, key string) bool {
	r.mu.RLock()
	set, ok := r.sets[ns]
	if ok {
		_, ok = set[key]
	}
	r.mu.RUnlock()
	return ok
}

// Len reports the number of keys registered under the namespace.
func (r *Registry) Len(ns string) int {
	r.mu.RLock()
	n := len(r.sets[ns])
	r.mu.RUnlock()
	return n
}

// SnapshotCopy returns a consistent point-in-time copy of one namespace's
// keys, sorted. Iterating the copy never races with concurrent mutation.
func (r *Registry) SnapshotCopy(ns string) []string {
	r.mu.RLock()
	set := r.sets[ns]
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// SnapshotAll returns a consistent copy of every namespace's keys merged
// into one sorted slice. Keys are already scoped, so namespaces cannot
// collide.
func (r *Registry) SnapshotAll() []string {
	r.mu.RLock()
	total := 0
	for _, set := range r.sets {
		total += len(set)
	}
	out := make([]string, 0, total)
	for _, set := range r.sets {
		for k := range set {
			out = append(out, k)
		}
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Namespaces lists the namespaces that currently have at least one key (or
// had one and were seeded), sorted. The unscoped namespace appears as "".
func (r *Registry) Namespaces() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.sets))
	for ns := range r.sets {
		out = append(out, ns)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Replace swaps one namespace's set for the given keys. Used when seeding
// from the backend-persisted registry at startup.
func (r *Registry) Replace(ns string, keys []string) {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	r.mu.Lock()
	r.sets[ns] = set
	r.mu.Unlock()
}

// ClearAll empties every namespace's set.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	r.sets = make(map[string]map[string]struct{})
	r.mu.Unlock()
}
