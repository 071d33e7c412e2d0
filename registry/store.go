package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	be "github.com/unkn0wn-root/regcache/backend"
	"github.com/unkn0wn-root/regcache/namespace"
)

// entrySuffix is the well-known key each namespace's registry is persisted
// under in the backend, so a restarted process can reconstruct its view.
const entrySuffix = "cache_key_registry"

// Global is the map key used for the unscoped registry in aggregated views.
const Global = "global"

// EntryKey returns the backend key persisting one namespace's registry.
// The unscoped registry lives under the bare suffix.
func EntryKey(ns string) string {
	return namespace.ScopedKey(ns, entrySuffix)
}

// Store mirrors per-namespace registries into the backend. Entries are
// stored as JSON string arrays without expiry; the backend-persisted copy is
// the recovery path after a process crash (the disk snapshot is not).
//
// No cross-process lock exists: concurrent processes sharing one backend
// converge last-write-wins. That is an accepted eventual-consistency
// weakness, not a linearizability guarantee.
type Store struct {
	b be.Backend
}

func NewStore(b be.Backend) *Store {
	return &Store{b: b}
}

// Save persists one namespace's key list. Best-effort by design: callers
// log failures and move on, because the in-memory registry already holds
// the authoritative per-process view.
func (s *Store) Save(ctx context.Context, ns string, keys []string) error {
	if keys == nil {
		keys = []string{}
	}
	payload, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("registry encode (%s): %w", EntryKey(ns), err)
	}
	if err := s.b.Put(ctx, EntryKey(ns), payload, 0); err != nil {
		return fmt.Errorf("registry put (%s): %w", EntryKey(ns), err)
	}
	return nil
}

// Load reads one namespace's persisted key list. A missing entry is not an
// error; it reports found=false.
func (s *Store) Load(ctx context.Context, ns string) ([]string, bool, error) {
	raw, ok, err := s.b.Fetch(ctx, EntryKey(ns))
	if err != nil {
		return nil, false, fmt.Errorf("registry fetch (%s): %w", EntryKey(ns), err)
	}
	if !ok {
		return nil, false, nil
	}
	var keys []string
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, false, fmt.Errorf("registry decode (%s): %w", EntryKey(ns), err)
	}
	return keys, true, nil
}

// All aggregates every configured namespace's persisted registry, plus the
// unscoped registry under the Global map key when present. Namespaces
// without a persisted entry are omitted. Per-namespace errors are joined
// and returned alongside whatever loaded cleanly.
func (s *Store) All(ctx context.Context, namespaces []string) (map[string][]string, error) {
	out := make(map[string][]string, len(namespaces)+1)
	var errs []error

	for _, ns := range namespaces {
		keys, ok, err := s.Load(ctx, ns)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			out[ns] = keys
		}
	}

	keys, ok, err := s.Load(ctx, "")
	if err != nil {
		errs = append(errs, err)
	} else if ok {
		out[Global] = keys
	}

	return out, errors.Join(errs...)
}
