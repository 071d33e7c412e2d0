package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	be "github.com/unkn0wn-root/regcache/backend"
)

// ErrRejected is returned when ristretto declines a write under pressure.
// The entry is not stored; callers treat this like any other Put failure.
var ErrRejected = errors.New("ristretto backend: set rejected under pressure")

type Backend struct {
	c *rc.Cache
}

var _ be.Backend = (*Backend)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Backend, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto backend: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Backend{c: c}, nil
}

// Put stores value with cost = len(value). Ristretto applies writes
// asynchronously, so Put waits for the buffers to drain before returning;
// without that, a registered key could be invisible to an immediate Fetch.
func (s *Backend) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	cost := int64(len(value))
	if cost == 0 {
		cost = 1
	}
	var ok bool
	if ttl > 0 {
		ok = s.c.SetWithTTL(key, value, cost, ttl)
	} else {
		ok = s.c.Set(key, value, cost)
	}
	if !ok {
		return ErrRejected
	}
	s.c.Wait()
	return nil
}

func (s *Backend) Fetch(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		// drop unexpected entry shape
		s.c.Del(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (s *Backend) Remove(_ context.Context, key string) error {
	s.c.Del(key)
	return nil
}

func (s *Backend) Wipe(_ context.Context) error {
	s.c.Clear()
	return nil
}

func (s *Backend) Close(_ context.Context) error {
	s.c.Wait()
	s.c.Close()
	return nil
}

func (s *Backend) ID() string { return "ristretto" }

// Metrics exposes ristretto metrics if enabled (not part of backend.Backend).
func (s *Backend) Metrics() *rc.Metrics { return s.c.Metrics }
