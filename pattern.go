package regcache

import (
	"context"
	"regexp"
	"time"
)

// compilePattern wraps regexp compilation so every pattern operation fails
// the same way: a structured *PatternError, never a panic.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Err: err}
	}
	return re, nil
}

// matchKeys filters registry keys by unanchored regex search: a key matches
// when the pattern is found anywhere in it, not only as a full-string match.
func matchKeys(re *regexp.Regexp, keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if re.MatchString(k) {
			out = append(out, k)
		}
	}
	return out
}

func (cc *cache[V]) KeysMatching(ctx context.Context, pattern string) ([]string, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	ns, _ := cc.resolver.Resolve(ctx)
	return matchKeys(re, cc.reg.SnapshotCopy(ns)), nil
}

func (cc *cache[V]) ValuesMatching(ctx context.Context, pattern string) (map[string]V, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	ns, _ := cc.resolver.Resolve(ctx)
	return cc.liveValues(ctx, ns, matchKeys(re, cc.reg.SnapshotCopy(ns))), nil
}

// liveValues resolves matched keys against the backend at call time. Keys
// that matched but expired are silently excluded (and pruned), not errors.
func (cc *cache[V]) liveValues(ctx context.Context, ns string, keys []string) map[string]V {
	out := make(map[string]V, len(keys))
	for _, sk := range keys {
		raw, ok, err := cc.backend.Fetch(ctx, sk)
		if err != nil {
			cc.hooks.BackendError("fetch", sk, err)
			cc.log.Error("pattern fetch failed", Fields{"key": sk, "err": err})
			continue
		}
		if !ok {
			cc.prune(ctx, ns, sk, "get")
			continue
		}
		v, err := cc.codec.Decode(raw)
		if err != nil {
			cc.log.Error("pattern decode failed", Fields{"key": sk, "err": err})
			continue
		}
		out[sk] = v
	}
	return out
}

// DeleteMatching deletes each matching key individually — the batch is not
// atomic. The count reflects keys actually confirmed deleted.
func (cc *cache[V]) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return 0, err
	}
	ns, _ := cc.resolver.Resolve(ctx)
	deleted := 0
	for _, sk := range matchKeys(re, cc.reg.SnapshotCopy(ns)) {
		if cc.deleteScoped(ctx, ns, sk) {
			deleted++
		}
	}
	return deleted, nil
}

func (cc *cache[V]) RefreshMatching(ctx context.Context, pattern string, ttl time.Duration) (int, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return 0, err
	}
	ns, _ := cc.resolver.Resolve(ctx)
	refreshed := 0
	for _, sk := range matchKeys(re, cc.reg.SnapshotCopy(ns)) {
		if cc.refreshScoped(ctx, ns, sk, ttl) {
			refreshed++
		}
	}
	return refreshed, nil
}

func (cc *cache[V]) StatsMatching(ctx context.Context, pattern string) (PatternStats[V], error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return PatternStats[V]{}, err
	}
	ns, _ := cc.resolver.Resolve(ctx)
	matching := matchKeys(re, cc.reg.SnapshotCopy(ns))
	values := cc.liveValues(ctx, ns, matching)
	return PatternStats[V]{
		Pattern:       pattern,
		TotalMatching: len(matching),
		Active:        len(values),
		Expired:       len(matching) - len(values),
		MatchingKeys:  matching,
		ActiveValues:  values,
	}, nil
}

// NamespaceKeysMatching searches one namespace's backend-persisted registry,
// regardless of the caller's own namespace.
func (cc *cache[V]) NamespaceKeysMatching(ctx context.Context, ns, pattern string) ([]string, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	if !cc.resolver.Valid(ns) {
		return nil, &UnknownNamespaceError{Namespace: ns, Available: cc.resolver.Names()}
	}
	keys, _, err := cc.store.Load(ctx, ns)
	if err != nil {
		return nil, err
	}
	return matchKeys(re, keys), nil
}
