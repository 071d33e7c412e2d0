package regcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/unkn0wn-root/regcache/backend/memory"
	c "github.com/unkn0wn-root/regcache/codec"
	"github.com/unkn0wn-root/regcache/namespace"
	"github.com/unkn0wn-root/regcache/registry"
)

type report struct {
	ID    string `json:"id"`
	Total int    `json:"total"`
}

func newTestCache(t *testing.T, mp *memory.Memory, optsOpt func(*Options[report])) Cache[report] {
	t.Helper()
	opts := Options[report]{
		Backend:      mp,
		Codec:        c.JSON[report]{},
		Namespaces:   []string{"orders", "attribution"},
		DumpFilePath: filepath.Join(t.TempDir(), "cache_dump.json"),
	}
	if optsOpt != nil {
		optsOpt(&opts)
	}
	cc, err := New[report](context.Background(), opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cc
}

func contains(keys []string, k string) bool {
	for _, key := range keys {
		if key == k {
			return true
		}
	}
	return false
}

// TestSetGetRoundTrip verifies the basic write/read path plus registry
// bookkeeping.
func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	v := report{ID: "r1", Total: 42}
	if err := cc.Set(ctx, "daily", v, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok := cc.Get(ctx, "daily")
	if !ok || got != v {
		t.Fatalf("Get after set: ok=%v got=%v", ok, got)
	}
	if !contains(cc.Keys(ctx), "daily") {
		t.Fatalf("registry missing key after Set: %v", cc.Keys(ctx))
	}
	if cc.Size(ctx) != 1 {
		t.Fatalf("Size expected 1, got %d", cc.Size(ctx))
	}
}

// TestExpiryPruning: once the backend expires a key, Get misses and the key
// disappears from the registry view.
func TestExpiryPruning(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	if err := cc.Set(ctx, "ephemeral", report{ID: "x"}, 20*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if _, ok := cc.Get(ctx, "ephemeral"); ok {
		t.Fatalf("Get should miss after backend expiry")
	}
	if contains(cc.Keys(ctx), "ephemeral") {
		t.Fatalf("expired key was not pruned from registry")
	}
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	if err := cc.Set(ctx, "gone", report{ID: "g"}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !cc.Delete(ctx, "gone") {
		t.Fatalf("Delete of present key should report true")
	}
	if cc.Delete(ctx, "gone") {
		t.Fatalf("Delete of absent key should report false, not error")
	}
	if cc.Delete(ctx, "never-existed") {
		t.Fatalf("Delete of never-set key should report false")
	}
}

// TestRefresh verifies the read-modify-write: a refresh extends the TTL and
// keeps the value byte-identical.
func TestRefresh(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	v := report{ID: "keep", Total: 7}
	if err := cc.Set(ctx, "session", v, 40*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !cc.Refresh(ctx, "session", time.Hour) {
		t.Fatalf("Refresh of live key should report true")
	}
	time.Sleep(60 * time.Millisecond) // original TTL would have elapsed
	got, ok := cc.Get(ctx, "session")
	if !ok || got != v {
		t.Fatalf("value should survive refresh: ok=%v got=%v", ok, got)
	}
	if cc.Refresh(ctx, "absent", time.Hour) {
		t.Fatalf("Refresh of absent key should report false")
	}
}

// TestNamespaceIsolation covers the two-subsystem scenario: same user key,
// different namespaces, distinct values, distinct registry entries.
func TestNamespaceIsolation(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	ordersCtx := namespace.With(ctx, "orders")
	attribCtx := namespace.With(ctx, "attribution")

	ov := report{ID: "orders-result"}
	av := report{ID: "attribution-result"}
	if err := cc.Set(ordersCtx, "result", ov, time.Hour); err != nil {
		t.Fatalf("Set orders: %v", err)
	}
	if err := cc.Set(attribCtx, "result", av, time.Hour); err != nil {
		t.Fatalf("Set attribution: %v", err)
	}

	if got, ok := cc.Get(ordersCtx, "result"); !ok || got != ov {
		t.Fatalf("orders Get: ok=%v got=%v", ok, got)
	}
	if got, ok := cc.Get(attribCtx, "result"); !ok || got != av {
		t.Fatalf("attribution Get: ok=%v got=%v", ok, got)
	}

	regs, err := cc.AllRegistries(ctx)
	if err != nil {
		t.Fatalf("AllRegistries: %v", err)
	}
	if !contains(regs["orders"], "orders:result") {
		t.Fatalf("orders registry missing scoped key: %v", regs)
	}
	if !contains(regs["attribution"], "attribution:result") {
		t.Fatalf("attribution registry missing scoped key: %v", regs)
	}
}

// TestUnknownNamespaceFallsBackUnscoped: tokens outside the configured list
// resolve to the unscoped registry.
func TestUnknownNamespaceFallsBackUnscoped(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	rogueCtx := namespace.With(ctx, "not-configured")
	if err := cc.Set(rogueCtx, "k", report{ID: "k"}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// visible from a plain (unscoped) context, stored without a prefix
	if !contains(cc.Keys(ctx), "k") {
		t.Fatalf("unknown namespace should land in the unscoped registry: %v", cc.Keys(ctx))
	}
}

// TestRegistryReconstruction: a fresh facade over the same backend rebuilds
// its key view from the backend-persisted registry entry.
func TestRegistryReconstruction(t *testing.T) {
	ctx := context.Background()
	mp := memory.New()

	cc1 := newTestCache(t, mp, nil)
	if err := cc1.Set(ctx, "survivor", report{ID: "s"}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	ordersCtx := namespace.With(ctx, "orders")
	if err := cc1.Set(ordersCtx, "scoped-survivor", report{ID: "o"}, time.Hour); err != nil {
		t.Fatalf("Set orders: %v", err)
	}

	// simulate a process restart: new facade, same backend
	cc2 := newTestCache(t, mp, nil)
	defer cc2.Close(ctx)

	if !contains(cc2.Keys(ctx), "survivor") {
		t.Fatalf("unscoped registry not reconstructed: %v", cc2.Keys(ctx))
	}
	if !contains(cc2.Keys(ordersCtx), "orders:scoped-survivor") {
		t.Fatalf("orders registry not reconstructed: %v", cc2.Keys(ordersCtx))
	}
	if got, ok := cc2.Get(ctx, "survivor"); !ok || got.ID != "s" {
		t.Fatalf("value lost across restart: ok=%v got=%v", ok, got)
	}
}

// TestClearWipesSharedBackend: Clear is global by design and takes every
// namespace's entries with it.
func TestClearWipesSharedBackend(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	ordersCtx := namespace.With(ctx, "orders")
	if err := cc.Set(ctx, "plain", report{}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cc.Set(ordersCtx, "scoped", report{}, time.Hour); err != nil {
		t.Fatalf("Set orders: %v", err)
	}

	if err := cc.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := cc.Get(ctx, "plain"); ok {
		t.Fatalf("unscoped entry survived Clear")
	}
	if _, ok := cc.Get(ordersCtx, "scoped"); ok {
		t.Fatalf("scoped entry survived Clear")
	}
	if cc.Size(ctx) != 0 || cc.Size(ordersCtx) != 0 {
		t.Fatalf("registries not emptied by Clear")
	}
}

func TestClearNamespace(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	ordersCtx := namespace.With(ctx, "orders")
	attribCtx := namespace.With(ctx, "attribution")
	for _, k := range []string{"a", "b"} {
		if err := cc.Set(ordersCtx, k, report{ID: k}, time.Hour); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	if err := cc.Set(attribCtx, "c", report{ID: "c"}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	n, err := cc.ClearNamespace(ctx, "orders")
	if err != nil {
		t.Fatalf("ClearNamespace: %v", err)
	}
	if n != 2 {
		t.Fatalf("ClearNamespace expected 2 deletions, got %d", n)
	}
	if _, ok := cc.Get(ordersCtx, "a"); ok {
		t.Fatalf("orders entry survived ClearNamespace")
	}
	// other namespaces untouched
	if _, ok := cc.Get(attribCtx, "c"); !ok {
		t.Fatalf("attribution entry should survive orders clear")
	}

	if _, err := cc.ClearNamespace(ctx, "bogus"); err == nil {
		t.Fatalf("ClearNamespace of unknown namespace should error")
	}
}

func TestStatsReportsConfiguration(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), func(o *Options[report]) {
		o.MaxSize = 123
	})
	defer cc.Close(ctx)

	if err := cc.Set(ctx, "one", report{}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	st := cc.Stats(ctx)
	if st.Size != 1 || st.MaxSize != 123 {
		t.Fatalf("Stats size/max: %+v", st)
	}
	if st.BackendID != "memory" {
		t.Fatalf("Stats backend id: %q", st.BackendID)
	}
	if st.DumpFilePath == "" {
		t.Fatalf("Stats should carry the dump path")
	}
	if st.AutoDumpEnabled {
		t.Fatalf("auto-dump should be disabled by default (interval 0)")
	}
}

func TestNamespaceStats(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	ordersCtx := namespace.With(ctx, "orders")
	if err := cc.Set(ordersCtx, "live", report{}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cc.Set(ordersCtx, "dying", report{}, 20*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	st, err := cc.NamespaceStats(ctx, "orders")
	if err != nil {
		t.Fatalf("NamespaceStats: %v", err)
	}
	if st.TotalKeys != 2 {
		t.Fatalf("TotalKeys expected 2, got %d", st.TotalKeys)
	}
	if len(st.ActiveKeys) != 1 || st.ActiveKeys[0] != "orders:live" {
		t.Fatalf("ActiveKeys: %v", st.ActiveKeys)
	}
	if len(st.ExpiredKeys) != 1 || st.ExpiredKeys[0] != "orders:dying" {
		t.Fatalf("ExpiredKeys: %v", st.ExpiredKeys)
	}

	if _, err := cc.NamespaceStats(ctx, "bogus"); err == nil {
		t.Fatalf("NamespaceStats of unknown namespace should error")
	}
}

// Registry entry keys stay out of every caller-visible view.
func TestRegistryEntryInvisible(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	if err := cc.Set(ctx, "visible", report{}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if contains(cc.Keys(ctx), registry.EntryKey("")) {
		t.Fatalf("registry entry key leaked into Keys()")
	}
	keys, err := cc.KeysMatching(ctx, "registry")
	if err != nil {
		t.Fatalf("KeysMatching: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("registry entry key leaked into pattern results: %v", keys)
	}
}
