package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	be "github.com/unkn0wn-root/regcache/backend"
)

var ErrNilClient = errors.New("redis backend: nil client")

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
}

var _ be.Backend = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this backend exclusively owns the client
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient}, nil
}

func (s *Redis) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 0 // non-positive TTLs mean "no expiry" per backend contract
	}
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *Redis) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (s *Redis) Remove(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Wipe flushes the selected logical database. Every namespace sharing this
// database loses its entries, registry entries included.
func (s *Redis) Wipe(ctx context.Context) error {
	return s.rdb.FlushDB(ctx).Err()
}

// Close releases the underlying redis client only when this backend owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (s *Redis) Close(context.Context) error {
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}

func (s *Redis) ID() string { return "redis" }
