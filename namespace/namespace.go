// Package namespace resolves which logical subsystem a cache call belongs to
// and prefixes keys accordingly, so several subsystems can share one backend
// without collisions.
//
// Callers name their subsystem explicitly by attaching a token to the
// context:
//
//	ctx = namespace.With(ctx, "orders")
//	cache.Set(ctx, "result", v, time.Hour) // stored as "orders:result"
//
// Tokens are validated against a static list supplied at construction.
// Calls without a token, or with an unknown one, operate on the unscoped
// (global) keyspace and registry.
package namespace

import (
	"context"
	"sort"
)

type ctxKey struct{}

// With returns a context carrying the namespace token for subsequent cache
// calls.
func With(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKey{}, name)
}

// From extracts the namespace token from ctx, if any.
func From(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(ctxKey{}).(string)
	return name, ok && name != ""
}

// Resolver validates namespace tokens against a static, configured list of
// subsystem names.
type Resolver struct {
	allowed map[string]struct{}
	names   []string // deduplicated, sorted
}

// NewResolver builds a resolver for the given subsystem names. Duplicates
// and empty names are dropped.
func NewResolver(names []string) *Resolver {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		allowed[n] = struct{}{}
	}
	sorted := make([]string, 0, len(allowed))
	for n := range allowed {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)
	return &Resolver{allowed: allowed, names: sorted}
}

// Resolve returns the namespace for a call. A missing token or one outside
// the configured list resolves to ("", false), the unscoped keyspace.
func (r *Resolver) Resolve(ctx context.Context) (string, bool) {
	name, ok := From(ctx)
	if !ok {
		return "", false
	}
	if _, ok := r.allowed[name]; !ok {
		return "", false
	}
	return name, true
}

// Valid reports whether name is one of the configured subsystem names.
func (r *Resolver) Valid(name string) bool {
	_, ok := r.allowed[name]
	return ok
}

// Names returns the configured subsystem names, sorted.
func (r *Resolver) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// ScopedKey prefixes key with the namespace. Scoping is pure prefixing:
// "ns:key". The unscoped namespace ("") leaves the key untouched.
func ScopedKey(ns, key string) string {
	if ns == "" {
		return key
	}
	return ns + ":" + key
}
