// Package backend defines the byte-store contract regcache layers on top of.
//
// Implementations wrap an external key-value cache that enforces per-entry
// expiry natively but offers no way to enumerate its keys. They MUST be safe
// for concurrent use and byte-for-byte transparent: Fetch must return exactly
// the same []byte previously passed to Put for a key (no prepended/appended
// metadata, no re-encoding, no mutation).
//
// Important: the per-namespace registry entries "<ns>:cache_key_registry"
// (and the unscoped "cache_key_registry") are owned by regcache. External
// code MUST NOT write values under these keys.
package backend

import (
	"context"
	"time"
)

// Backend is a minimal byte store with native TTLs. The backend is the sole
// source of truth for whether a value is still alive; regcache only keeps an
// advisory key registry next to it.
type Backend interface {
	// Put stores value under key with the given TTL. ttl <= 0 means
	// "no expiry" for stores that support it.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Fetch returns (value, true, nil) on hit; (nil, false, nil) on a miss,
	// including keys that expired natively. If an IO/remote error happens,
	// return (nil, false, err).
	Fetch(ctx context.Context, key string) ([]byte, bool, error)

	// Remove deletes a key (best-effort). Removing an absent key is not an
	// error.
	Remove(ctx context.Context, key string) error

	// Wipe drops every entry in the store, across ALL namespaces sharing it.
	Wipe(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error

	// ID names the backend implementation (e.g. "redis"). Recorded in
	// snapshots and stats for diagnostics.
	ID() string
}
