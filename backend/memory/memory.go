// Package memory provides an in-process Backend with per-entry expiry.
// Useful for tests and single-process deployments; values do not survive a
// restart.
package memory

import (
	"context"
	"sync"
	"time"

	be "github.com/unkn0wn-root/regcache/backend"
)

type entry struct {
	value []byte
	exp   time.Time // zero => no expiry
}

// Memory is a mutex-guarded map store. Expiry is enforced lazily on Fetch.
type Memory struct {
	mu sync.RWMutex
	m  map[string]entry
}

var _ be.Backend = (*Memory)(nil)

func New() *Memory {
	return &Memory{m: make(map[string]entry)}
}

func (s *Memory) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	// copy so later caller mutation cannot corrupt the stored value
	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	s.m[key] = entry{value: v, exp: exp}
	s.mu.Unlock()
	return nil
}

func (s *Memory) Fetch(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		s.mu.Lock()
		// re-check under the write lock; a concurrent Put may have renewed it
		if cur, ok := s.m[key]; ok && !cur.exp.IsZero() && time.Now().After(cur.exp) {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return nil, false, nil
	}
	v := make([]byte, len(e.value))
	copy(v, e.value)
	return v, true, nil
}

func (s *Memory) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
	return nil
}

func (s *Memory) Wipe(_ context.Context) error {
	s.mu.Lock()
	s.m = make(map[string]entry)
	s.mu.Unlock()
	return nil
}

func (s *Memory) Close(_ context.Context) error { return nil }

func (s *Memory) ID() string { return "memory" }

// Len reports the number of stored entries, expired or not. Intended for
// tests.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
