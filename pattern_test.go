package regcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/unkn0wn-root/regcache/backend/memory"
	"github.com/unkn0wn-root/regcache/namespace"
)

// TestPatternLifecycle walks the list/inspect/bulk-delete flow over a mixed
// keyspace with one key expiring mid-way.
func TestPatternLifecycle(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	if err := cc.Set(ctx, "user:1", report{ID: "u1"}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cc.Set(ctx, "user:2", report{ID: "u2"}, 20*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cc.Set(ctx, "session:abc", report{ID: "s"}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	keys, err := cc.KeysMatching(ctx, "^user:")
	if err != nil {
		t.Fatalf("KeysMatching: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 user keys, got %v", keys)
	}

	time.Sleep(50 * time.Millisecond) // user:2 expires in the backend

	// registry still lists user:2 (superset hint); the stats probe exposes it
	st, err := cc.StatsMatching(ctx, "^user:")
	if err != nil {
		t.Fatalf("StatsMatching: %v", err)
	}
	if st.TotalMatching != 2 || st.Active != 1 || st.Expired != 1 {
		t.Fatalf("StatsMatching: %+v", st)
	}
	if _, ok := st.ActiveValues["user:1"]; !ok {
		t.Fatalf("user:1 missing from active values: %v", st.ActiveValues)
	}

	// the probe above pruned user:2, so only user:1 is left to delete
	n, err := cc.DeleteMatching(ctx, "^user:")
	if err != nil {
		t.Fatalf("DeleteMatching: %v", err)
	}
	if n != 1 {
		t.Fatalf("DeleteMatching expected 1 confirmed deletion, got %d", n)
	}
	if _, ok := cc.Get(ctx, "user:1"); ok {
		t.Fatalf("user:1 survived DeleteMatching")
	}
	if _, ok := cc.Get(ctx, "session:abc"); !ok {
		t.Fatalf("session:abc should be untouched by the user pattern")
	}
}

// Patterns are regex searches, not full-string matches.
func TestPatternUnanchoredSearch(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	if err := cc.Set(ctx, "user:1", report{}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	keys, err := cc.KeysMatching(ctx, "er:1")
	if err != nil {
		t.Fatalf("KeysMatching: %v", err)
	}
	if len(keys) != 1 || keys[0] != "user:1" {
		t.Fatalf("substring pattern should match anywhere in the key: %v", keys)
	}
}

// Every pattern operation rejects an uncompilable pattern with *PatternError
// before touching backend or registry.
func TestInvalidPattern(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	const bad = "("
	checks := []struct {
		name string
		call func() error
	}{
		{"KeysMatching", func() error { _, err := cc.KeysMatching(ctx, bad); return err }},
		{"ValuesMatching", func() error { _, err := cc.ValuesMatching(ctx, bad); return err }},
		{"DeleteMatching", func() error { _, err := cc.DeleteMatching(ctx, bad); return err }},
		{"RefreshMatching", func() error { _, err := cc.RefreshMatching(ctx, bad, time.Hour); return err }},
		{"StatsMatching", func() error { _, err := cc.StatsMatching(ctx, bad); return err }},
		{"NamespaceKeysMatching", func() error { _, err := cc.NamespaceKeysMatching(ctx, "orders", bad); return err }},
	}
	for _, tc := range checks {
		err := tc.call()
		if err == nil {
			t.Fatalf("%s accepted an invalid pattern", tc.name)
		}
		var pe *PatternError
		if !errors.As(err, &pe) {
			t.Fatalf("%s: expected *PatternError, got %T (%v)", tc.name, err, err)
		}
		if pe.Pattern != bad {
			t.Fatalf("%s: PatternError.Pattern = %q", tc.name, pe.Pattern)
		}
	}
}

func TestValuesMatchingExcludesExpired(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	if err := cc.Set(ctx, "live", report{ID: "live"}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cc.Set(ctx, "dead", report{ID: "dead"}, 20*time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	values, err := cc.ValuesMatching(ctx, ".")
	if err != nil {
		t.Fatalf("ValuesMatching: %v", err)
	}
	if len(values) != 1 {
		t.Fatalf("expected only live values, got %v", values)
	}
	if values["live"].ID != "live" {
		t.Fatalf("wrong live value: %v", values)
	}
	// the dead key was pruned as a side effect
	if contains(cc.Keys(ctx), "dead") {
		t.Fatalf("expired key not pruned during value resolution")
	}
}

// RefreshMatching extends TTLs without altering stored values.
func TestRefreshMatchingPreservesValues(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	want := map[string]report{
		"job:1": {ID: "one", Total: 1},
		"job:2": {ID: "two", Total: 2},
	}
	for k, v := range want {
		if err := cc.Set(ctx, k, v, 40*time.Millisecond); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	n, err := cc.RefreshMatching(ctx, "^job:", time.Hour)
	if err != nil {
		t.Fatalf("RefreshMatching: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 refreshed, got %d", n)
	}
	time.Sleep(60 * time.Millisecond) // the original TTLs would have elapsed
	for k, v := range want {
		got, ok := cc.Get(ctx, k)
		if !ok || got != v {
			t.Fatalf("%s after refresh: ok=%v got=%v want=%v", k, ok, got, v)
		}
	}
}

// Pattern operations see only the caller's namespace.
func TestPatternScopedToNamespace(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	ordersCtx := namespace.With(ctx, "orders")
	attribCtx := namespace.With(ctx, "attribution")
	if err := cc.Set(ordersCtx, "user:1", report{ID: "o"}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cc.Set(attribCtx, "user:1", report{ID: "a"}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	keys, err := cc.KeysMatching(ordersCtx, "user")
	if err != nil {
		t.Fatalf("KeysMatching: %v", err)
	}
	if len(keys) != 1 || keys[0] != "orders:user:1" {
		t.Fatalf("orders view leaked other namespaces: %v", keys)
	}

	n, err := cc.DeleteMatching(ordersCtx, "user")
	if err != nil {
		t.Fatalf("DeleteMatching: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deletion in orders, got %d", n)
	}
	if _, ok := cc.Get(attribCtx, "user:1"); !ok {
		t.Fatalf("attribution entry deleted by orders-scoped pattern op")
	}
}

func TestNamespaceKeysMatching(t *testing.T) {
	ctx := context.Background()
	cc := newTestCache(t, memory.New(), nil)
	defer cc.Close(ctx)

	ordersCtx := namespace.With(ctx, "orders")
	if err := cc.Set(ordersCtx, "invoice:7", report{}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cc.Set(ordersCtx, "user:7", report{}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// inspect orders from an unscoped caller
	keys, err := cc.NamespaceKeysMatching(ctx, "orders", "invoice")
	if err != nil {
		t.Fatalf("NamespaceKeysMatching: %v", err)
	}
	if len(keys) != 1 || keys[0] != "orders:invoice:7" {
		t.Fatalf("NamespaceKeysMatching: %v", keys)
	}

	if _, err := cc.NamespaceKeysMatching(ctx, "bogus", "invoice"); err == nil {
		t.Fatalf("unknown namespace should error")
	}
	var ue *UnknownNamespaceError
	_, err = cc.NamespaceKeysMatching(ctx, "bogus", "invoice")
	if !errors.As(err, &ue) {
		t.Fatalf("expected *UnknownNamespaceError, got %T", err)
	}
}
