// Package regcache augments an external key-value backend — one that
// enforces per-entry expiry natively but cannot enumerate, pattern-match,
// or durably snapshot its contents — with a key registry and persistence
// layer.
//
// Components:
//   - Backend: byte store with TTL (e.g. Redis, Ristretto, BigCache).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - Registry: advisory in-memory set of scoped keys per namespace,
//     mirrored into the backend under "<ns>:cache_key_registry" so a
//     restarted process can reconstruct it.
//   - Pattern engine: regex search over the registry for bulk
//     list/fetch/delete/refresh/stat operations.
//   - Snapshot writer: periodic, crash-safe JSON dump of registry metadata
//     (key names only, never values).
//
// Keys:
//
//	<ns>:<key>  - namespace-scoped entries (namespace.With on the context)
//	<key>       - unscoped entries (no namespace token on the context)
//
// The registry is a superset hint. The backend stays the sole source of
// truth for liveness: a registered key may have expired, and reads prune
// such keys lazily.
package regcache
