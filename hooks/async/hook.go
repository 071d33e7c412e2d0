// Package asynchook decouples hook callbacks from the cache's hot paths.
// Events are queued onto a bounded channel and delivered by worker
// goroutines; when the queue is full, events are dropped rather than
// blocking a cache operation.
//
// usage:
//
//	raw := myHooks{}              // your regcache.Hooks implementation
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := regcache.New[Report](ctx, regcache.Options[Report]{
//	    Backend: backend,
//	    Codec:   codec.JSON[Report]{},
//	    Hooks:   hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/regcache"
)

type Hooks struct {
	inner regcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ regcache.Hooks = (*Hooks)(nil)

func New(inner regcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) LazyPrune(k, origin string) { h.try(func() { h.inner.LazyPrune(k, origin) }) }
func (h *Hooks) RegistrySaveError(ns string, err error) {
	h.try(func() { h.inner.RegistrySaveError(ns, err) })
}
func (h *Hooks) BackendError(op, k string, err error) {
	h.try(func() { h.inner.BackendError(op, k, err) })
}
func (h *Hooks) DumpSucceeded(path string, keys int) {
	h.try(func() { h.inner.DumpSucceeded(path, keys) })
}
func (h *Hooks) DumpFailed(path string, err error) {
	h.try(func() { h.inner.DumpFailed(path, err) })
}
