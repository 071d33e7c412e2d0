package regcache

import (
	"context"
	"time"

	be "github.com/unkn0wn-root/regcache/backend"
	c "github.com/unkn0wn-root/regcache/codec"
)

// Cache is the public facade over the backend, registry, pattern engine and
// snapshot machinery. V is the caller's value type; serialization is handled
// by a pluggable Codec[V].
//
// Namespacing: every operation resolves its namespace from ctx (see the
// namespace package). Calls without a resolvable namespace use the unscoped
// keyspace and registry.
//
// Failure policy: Get, Delete and Refresh convert backend and codec failures
// into a miss/false after logging — callers cannot distinguish "absent" from
// "transient failure" on those paths. Operations whose only signal is
// success return an error.
type Cache[V any] interface {
	// Set writes value under key with the given TTL (ttl <= 0 uses the
	// configured default), registers the scoped key synchronously, then
	// mirrors the registry into the backend best-effort.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Get fetches a value. A backend miss prunes the key from the registry
	// (lazy reconciliation); a decode failure is treated as a miss.
	Get(ctx context.Context, key string) (V, bool)

	// Delete removes key from backend and registry. Idempotent: deleting an
	// absent key reports false, not an error.
	Delete(ctx context.Context, key string) bool

	// Refresh re-writes the current value with a new TTL (read-modify-write).
	// Reports false if the key is absent.
	Refresh(ctx context.Context, key string, ttl time.Duration) bool

	// Clear wipes the ENTIRE shared backend — every namespace, not just the
	// caller's. Use ClearNamespace for the scoped variant.
	Clear(ctx context.Context) error

	// ClearNamespace deletes every key recorded in one namespace's persisted
	// registry, returning the number of keys confirmed deleted.
	ClearNamespace(ctx context.Context, ns string) (int, error)

	// Introspection over the calling namespace's registry view.
	Size(ctx context.Context) int
	Keys(ctx context.Context) []string
	Stats(ctx context.Context) Stats

	// Pattern operations: the pattern is a regex interpreted as a search
	// (matches anywhere in the key). A pattern that does not compile yields
	// a *PatternError.
	KeysMatching(ctx context.Context, pattern string) ([]string, error)
	ValuesMatching(ctx context.Context, pattern string) (map[string]V, error)
	DeleteMatching(ctx context.Context, pattern string) (int, error)
	RefreshMatching(ctx context.Context, pattern string, ttl time.Duration) (int, error)
	StatsMatching(ctx context.Context, pattern string) (PatternStats[V], error)

	// Cross-namespace inspection over the backend-persisted registries.
	AllRegistries(ctx context.Context) (map[string][]string, error)
	NamespaceStats(ctx context.Context, ns string) (NamespaceStats, error)
	AllNamespaceStats(ctx context.Context) (map[string]NamespaceStats, error)
	NamespaceKeysMatching(ctx context.Context, ns, pattern string) ([]string, error)

	// WriteSnapshot reconciles the registry against the backend in bulk
	// (the only place that happens), then atomically persists the snapshot
	// document to disk. The scheduler calls this on a timer; it can also be
	// triggered manually.
	WriteSnapshot(ctx context.Context) error

	// Scheduler control. StartAutoDump reports whether a new periodic task
	// was started (interval <= 0 leaves it stopped). StopAutoDump reports
	// whether the task was fully joined within the configured timeout; an
	// overrunning dump is allowed to finish asynchronously.
	StartAutoDump(interval time.Duration) bool
	StopAutoDump() bool
	SetAutoDumpInterval(interval time.Duration)

	// Close stops the scheduler, flushes a final snapshot best-effort, and
	// releases the backend.
	Close(ctx context.Context) error
}

// Stats is the read-only configuration and registry summary for the calling
// namespace's view.
type Stats struct {
	Size             int
	MaxSize          int // advisory soft cap, surfaced only here
	Keys             []string
	BackendID        string
	DumpFilePath     string
	AutoDumpInterval time.Duration
	AutoDumpEnabled  bool
}

// PatternStats summarizes one pattern's matches. Active keys still resolve
// in the backend; Expired = TotalMatching - Active.
type PatternStats[V any] struct {
	Pattern       string
	TotalMatching int
	Active        int
	Expired       int
	MatchingKeys  []string
	ActiveValues  map[string]V
}

// NamespaceStats reports one namespace's persisted registry probed against
// the backend.
type NamespaceStats struct {
	Namespace   string
	TotalKeys   int
	ActiveKeys  []string
	ExpiredKeys []string
}

// Options tune the cache. Only Backend and Codec are required; others have
// sensible defaults.
type Options[V any] struct {
	// Required
	Backend be.Backend
	Codec   c.Codec[V]

	// Namespaces is the static list of subsystem names sharing this backend.
	// Tokens outside the list resolve to the unscoped registry.
	Namespaces []string

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	// DumpFilePath is the canonical snapshot location;
	// "" => <os.TempDir()>/cache_dump.json.
	DumpFilePath string

	// MaxSize is an advisory soft cap surfaced in Stats; it is never
	// enforced as eviction (the backend owns eviction). 0 => 1000.
	MaxSize int

	// AutoDumpInterval enables the background cleanup+snapshot task.
	// 0 disables it.
	AutoDumpInterval time.Duration

	// KeepSnapshotBackup retains the previous snapshot generation as
	// "<path>.bak" on each commit.
	KeepSnapshotBackup bool

	DefaultTTL      time.Duration // applied when Set/Refresh get ttl <= 0; 0 => 1h
	StopJoinTimeout time.Duration // bounded wait when stopping the scheduler; 0 => 5s
}

// New builds the facade, seeds every configured namespace's registry from
// the backend-persisted copy, reports snapshot diagnostics, and starts the
// auto-dump scheduler when an interval is configured.
func New[V any](ctx context.Context, opts Options[V]) (Cache[V], error) {
	return newCache[V](ctx, opts)
}
