package bigcache

import (
	"context"
	"time"

	bc "github.com/allegro/bigcache/v3"

	be "github.com/unkn0wn-root/regcache/backend"
)

// Backend adapts allegro/bigcache. BigCache has no per-entry TTL; every
// entry lives for the configured LifeWindow. Refresh operations rewrite the
// value, which restarts its window, but an explicit per-key TTL passed to
// Put is ignored.
type Backend struct {
	c *bc.BigCache
}

var _ be.Backend = (*Backend)(nil)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Backend, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Backend{c: c}, nil
}

func (s *Backend) Put(_ context.Context, key string, value []byte, _ time.Duration) error {
	return s.c.Set(key, value)
}

func (s *Backend) Fetch(_ context.Context, key string) ([]byte, bool, error) {
	b, err := s.c.Get(key)
	if err == bc.ErrEntryNotFound {
		return nil, false, nil
	}
	return b, err == nil, err
}

func (s *Backend) Remove(_ context.Context, key string) error {
	if err := s.c.Delete(key); err != nil && err != bc.ErrEntryNotFound {
		return err
	}
	return nil
}

func (s *Backend) Wipe(_ context.Context) error {
	return s.c.Reset()
}

func (s *Backend) Close(_ context.Context) error {
	return s.c.Close()
}

func (s *Backend) ID() string { return "bigcache" }
