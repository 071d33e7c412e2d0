package regcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	be "github.com/unkn0wn-root/regcache/backend"
	c "github.com/unkn0wn-root/regcache/codec"
	"github.com/unkn0wn-root/regcache/namespace"
	"github.com/unkn0wn-root/regcache/registry"
	"github.com/unkn0wn-root/regcache/snapshot"
)

const (
	defaultTTL      = time.Hour
	defaultMaxSize  = 1000
	defaultJoinWait = 5 * time.Second
)

type cache[V any] struct {
	backend  be.Backend
	codec    c.Codec[V]
	resolver *namespace.Resolver
	reg      *registry.Registry
	store    *registry.Store
	writer   *snapshot.Writer
	dumper   *autoDumper
	log      Logger
	hooks    Hooks

	defaultTTL time.Duration
	maxSize    int
}

func newCache[V any](ctx context.Context, opts Options[V]) (*cache[V], error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("regcache: backend is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("regcache: codec is required")
	}

	cc := &cache[V]{
		backend:  opts.Backend,
		codec:    opts.Codec,
		resolver: namespace.NewResolver(opts.Namespaces),
		reg:      registry.New(),
		store:    registry.NewStore(opts.Backend),
	}

	// defaults
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cc.defaultTTL = coalesce[time.Duration](opts.DefaultTTL, defaultTTL)
	cc.maxSize = coalesce[int](opts.MaxSize, defaultMaxSize)

	dumpPath := coalesce[string](opts.DumpFilePath, filepath.Join(os.TempDir(), "cache_dump.json"))
	cc.writer = snapshot.NewWriter(dumpPath, opts.KeepSnapshotBackup)

	cc.dumper = &autoDumper{
		joinWait: coalesce[time.Duration](opts.StopJoinTimeout, defaultJoinWait),
		log:      cc.log,
	}
	cc.dumper.run = func(ctx context.Context) {
		if err := cc.WriteSnapshot(ctx); err != nil {
			cc.log.Error("auto-dump failed", Fields{"path": cc.writer.Path(), "err": err})
			return
		}
		cc.log.Debug("auto-dump completed", Fields{"path": cc.writer.Path()})
	}

	cc.seedRegistries(ctx)

	if doc, ok, err := cc.writer.Load(); err != nil {
		cc.log.Warn("snapshot unreadable at startup", Fields{"path": dumpPath, "err": err})
	} else if ok {
		cc.log.Info("previous snapshot found", Fields{
			"path": dumpPath, "keys": doc.TotalKeys, "written": doc.Timestamp,
		})
	} else {
		cc.log.Info("no snapshot found, starting fresh", Fields{"path": dumpPath})
	}

	if opts.AutoDumpInterval > 0 {
		cc.dumper.Start(opts.AutoDumpInterval)
		cc.log.Info("auto-dump started", Fields{"interval": opts.AutoDumpInterval})
	} else {
		cc.log.Info("auto-dump disabled", Fields{})
	}

	return cc, nil
}

// seedRegistries reconstructs every namespace's in-memory registry from its
// backend-persisted copy. Missing entries mean a fresh namespace.
func (cc *cache[V]) seedRegistries(ctx context.Context) {
	spaces := append(cc.resolver.Names(), "")
	for _, ns := range spaces {
		keys, ok, err := cc.store.Load(ctx, ns)
		if err != nil {
			cc.log.Warn("registry load failed", Fields{"namespace": nsLabel(ns), "err": err})
			continue
		}
		if ok {
			cc.reg.Replace(ns, keys)
			cc.log.Info("registry seeded from backend", Fields{
				"namespace": nsLabel(ns), "keys": len(keys),
			})
		}
	}
}

func (cc *cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cc.defaultTTL
	}
	ns, _ := cc.resolver.Resolve(ctx)
	sk := namespace.ScopedKey(ns, key)

	payload, err := cc.codec.Encode(value)
	if err != nil {
		cc.log.Error("set: encode failed", Fields{"key": sk, "err": err})
		return fmt.Errorf("regcache: encode %q: %w", sk, err)
	}
	if err := cc.backend.Put(ctx, sk, payload, ttl); err != nil {
		cc.hooks.BackendError("put", sk, err)
		cc.log.Error("set: backend put failed", Fields{"key": sk, "err": err})
		return fmt.Errorf("regcache: put %q: %w", sk, err)
	}

	// The key is registered before Set returns; mirroring into the backend
	// is best-effort and may lag.
	cc.reg.Add(ns, sk)
	cc.saveRegistry(ctx, ns)
	return nil
}

func (cc *cache[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	ns, _ := cc.resolver.Resolve(ctx)
	sk := namespace.ScopedKey(ns, key)

	raw, ok, err := cc.backend.Fetch(ctx, sk)
	if err != nil {
		// reported as a miss by policy; the registry keeps the key, a later
		// healthy read or the bulk cleanup will reconcile it
		cc.hooks.BackendError("fetch", sk, err)
		cc.log.Error("get: backend fetch failed", Fields{"key": sk, "err": err})
		return zero, false
	}
	if !ok {
		cc.prune(ctx, ns, sk, "get")
		return zero, false
	}
	v, err := cc.codec.Decode(raw)
	if err != nil {
		cc.log.Error("get: decode failed", Fields{"key": sk, "err": err})
		return zero, false
	}
	return v, true
}

func (cc *cache[V]) Delete(ctx context.Context, key string) bool {
	ns, _ := cc.resolver.Resolve(ctx)
	return cc.deleteScoped(ctx, ns, namespace.ScopedKey(ns, key))
}

// deleteScoped removes one already-scoped key and reports whether a live
// entry was actually deleted. The probe keeps bulk-delete counts honest.
func (cc *cache[V]) deleteScoped(ctx context.Context, ns, sk string) bool {
	_, ok, err := cc.backend.Fetch(ctx, sk)
	if err != nil {
		cc.hooks.BackendError("fetch", sk, err)
		cc.log.Error("delete: backend fetch failed", Fields{"key": sk, "err": err})
		return false
	}
	if !ok {
		cc.prune(ctx, ns, sk, "delete")
		return false
	}
	if err := cc.backend.Remove(ctx, sk); err != nil {
		cc.hooks.BackendError("remove", sk, err)
		cc.log.Error("delete: backend remove failed", Fields{"key": sk, "err": err})
		return false
	}
	if cc.reg.Remove(ns, sk) {
		cc.saveRegistry(ctx, ns)
	}
	return true
}

func (cc *cache[V]) Refresh(ctx context.Context, key string, ttl time.Duration) bool {
	ns, _ := cc.resolver.Resolve(ctx)
	return cc.refreshScoped(ctx, ns, namespace.ScopedKey(ns, key), ttl)
}

// refreshScoped is a read-modify-write: the raw bytes are rewritten with a
// new TTL, so the value survives unchanged.
func (cc *cache[V]) refreshScoped(ctx context.Context, ns, sk string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = cc.defaultTTL
	}
	raw, ok, err := cc.backend.Fetch(ctx, sk)
	if err != nil {
		cc.hooks.BackendError("fetch", sk, err)
		cc.log.Error("refresh: backend fetch failed", Fields{"key": sk, "err": err})
		return false
	}
	if !ok {
		cc.prune(ctx, ns, sk, "refresh")
		return false
	}
	if err := cc.backend.Put(ctx, sk, raw, ttl); err != nil {
		cc.hooks.BackendError("put", sk, err)
		cc.log.Error("refresh: backend put failed", Fields{"key": sk, "err": err})
		return false
	}
	cc.reg.Add(ns, sk) // re-register in case an earlier miss pruned it
	return true
}

// Clear wipes the whole shared backend. Deliberately NOT namespace-scoped:
// the backend contract only offers a global wipe, and that asymmetry is
// surfaced loudly rather than hidden.
func (cc *cache[V]) Clear(ctx context.Context) error {
	cc.log.Warn("clear: wiping entire shared backend", Fields{"backend": cc.backend.ID()})
	if err := cc.backend.Wipe(ctx); err != nil {
		cc.hooks.BackendError("wipe", "", err)
		cc.log.Error("clear: backend wipe failed", Fields{"err": err})
		return fmt.Errorf("regcache: wipe: %w", err)
	}
	cc.reg.ClearAll()
	for _, ns := range append(cc.resolver.Names(), "") {
		cc.saveRegistry(ctx, ns)
	}
	return nil
}

func (cc *cache[V]) ClearNamespace(ctx context.Context, ns string) (int, error) {
	if !cc.resolver.Valid(ns) {
		return 0, &UnknownNamespaceError{Namespace: ns, Available: cc.resolver.Names()}
	}
	keys, _, err := cc.store.Load(ctx, ns)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, sk := range keys {
		if cc.deleteScoped(ctx, ns, sk) {
			deleted++
		}
	}
	cc.reg.Replace(ns, nil)
	cc.saveRegistry(ctx, ns)
	return deleted, nil
}

func (cc *cache[V]) Size(ctx context.Context) int {
	ns, _ := cc.resolver.Resolve(ctx)
	return cc.reg.Len(ns)
}

func (cc *cache[V]) Keys(ctx context.Context) []string {
	ns, _ := cc.resolver.Resolve(ctx)
	return cc.reg.SnapshotCopy(ns)
}

func (cc *cache[V]) Stats(ctx context.Context) Stats {
	ns, _ := cc.resolver.Resolve(ctx)
	keys := cc.reg.SnapshotCopy(ns)
	return Stats{
		Size:             len(keys),
		MaxSize:          cc.maxSize,
		Keys:             keys,
		BackendID:        cc.backend.ID(),
		DumpFilePath:     cc.writer.Path(),
		AutoDumpInterval: cc.dumper.Interval(),
		AutoDumpEnabled:  cc.dumper.Running(),
	}
}

func (cc *cache[V]) AllRegistries(ctx context.Context) (map[string][]string, error) {
	return cc.store.All(ctx, cc.resolver.Names())
}

func (cc *cache[V]) NamespaceStats(ctx context.Context, ns string) (NamespaceStats, error) {
	if !cc.resolver.Valid(ns) {
		return NamespaceStats{}, &UnknownNamespaceError{Namespace: ns, Available: cc.resolver.Names()}
	}
	keys, _, err := cc.store.Load(ctx, ns)
	if err != nil {
		return NamespaceStats{}, err
	}
	st := NamespaceStats{
		Namespace:   ns,
		TotalKeys:   len(keys),
		ActiveKeys:  []string{},
		ExpiredKeys: []string{},
	}
	for _, sk := range keys {
		if _, ok, err := cc.backend.Fetch(ctx, sk); err == nil && ok {
			st.ActiveKeys = append(st.ActiveKeys, sk)
		} else {
			st.ExpiredKeys = append(st.ExpiredKeys, sk)
		}
	}
	return st, nil
}

func (cc *cache[V]) AllNamespaceStats(ctx context.Context) (map[string]NamespaceStats, error) {
	out := make(map[string]NamespaceStats, len(cc.resolver.Names()))
	for _, ns := range cc.resolver.Names() {
		st, err := cc.NamespaceStats(ctx, ns)
		if err != nil {
			return out, err
		}
		out[ns] = st
	}
	return out, nil
}

func (cc *cache[V]) WriteSnapshot(ctx context.Context) error {
	// Bulk reconciliation happens only here: probing every registered key is
	// an O(registry size) backend round-trip, too expensive per-request.
	cc.cleanupExpired(ctx)

	keys := cc.reg.SnapshotAll()
	intervalSec := int(cc.dumper.Interval() / time.Second)
	doc := &snapshot.Document{
		Timestamp:        time.Now(),
		BackendID:        cc.backend.ID(),
		Keys:             keys,
		TotalKeys:        len(keys),
		AutoDumpInterval: intervalSec,
		Config: snapshot.Config{
			DumpFilePath:            cc.writer.Path(),
			MaxSize:                 cc.maxSize,
			AutoDumpIntervalSeconds: intervalSec,
		},
	}
	if err := cc.writer.Write(doc); err != nil {
		cc.hooks.DumpFailed(cc.writer.Path(), err)
		cc.log.Error("snapshot write failed", Fields{"path": cc.writer.Path(), "err": err})
		return err
	}
	cc.hooks.DumpSucceeded(cc.writer.Path(), len(keys))
	return nil
}

// cleanupExpired probes every registered key against the backend and drops
// the dead ones. Works on point-in-time copies, so concurrent Set/Delete
// calls are never blocked behind the probe loop.
func (cc *cache[V]) cleanupExpired(ctx context.Context) {
	for _, ns := range cc.reg.Namespaces() {
		var dead []string
		for _, sk := range cc.reg.SnapshotCopy(ns) {
			_, ok, err := cc.backend.Fetch(ctx, sk)
			if err != nil {
				// transient failure is not expiry; keep the key
				cc.hooks.BackendError("fetch", sk, err)
				continue
			}
			if !ok {
				dead = append(dead, sk)
			}
		}
		if len(dead) == 0 {
			continue
		}
		removed := cc.reg.RemoveAll(ns, dead)
		for _, sk := range dead {
			cc.hooks.LazyPrune(sk, "cleanup")
		}
		cc.saveRegistry(ctx, ns)
		cc.log.Info("cleaned up expired keys", Fields{
			"namespace": nsLabel(ns), "removed": removed,
		})
	}
}

func (cc *cache[V]) StartAutoDump(interval time.Duration) bool {
	return cc.dumper.Start(interval)
}

func (cc *cache[V]) StopAutoDump() bool {
	return cc.dumper.Stop()
}

func (cc *cache[V]) SetAutoDumpInterval(interval time.Duration) {
	cc.dumper.Reconfigure(interval)
}

func (cc *cache[V]) Close(ctx context.Context) error {
	cc.dumper.Stop()
	if err := cc.WriteSnapshot(ctx); err != nil {
		cc.log.Warn("final snapshot failed", Fields{"err": err})
	}
	return cc.backend.Close(ctx)
}

// prune removes a key the backend no longer has from the registry and
// mirrors the change. Called on clean misses only, never on backend errors.
func (cc *cache[V]) prune(ctx context.Context, ns, sk, origin string) {
	if cc.reg.Remove(ns, sk) {
		cc.hooks.LazyPrune(sk, origin)
		cc.saveRegistry(ctx, ns)
	}
}

func (cc *cache[V]) saveRegistry(ctx context.Context, ns string) {
	if err := cc.store.Save(ctx, ns, cc.reg.SnapshotCopy(ns)); err != nil {
		cc.hooks.RegistrySaveError(ns, err)
		cc.log.Warn("registry save failed", Fields{"namespace": nsLabel(ns), "err": err})
	}
}

func nsLabel(ns string) string {
	if ns == "" {
		return registry.Global
	}
	return ns
}
