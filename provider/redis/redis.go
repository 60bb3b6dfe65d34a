// Package redis stores frames as plain redis strings. It is the byte store
// for deployments that want backend/local framing on a shared redis rather
// than the hash layout of backend/redis.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tiered/provider"
)

// ErrNilClient is returned by New without a client.
var ErrNilClient = errors.New("provider/redis: nil client")

// deleteBatch bounds the keys sent in one DEL.
const deleteBatch = 512

type Config struct {
	Client goredis.UniversalClient
	// CloseClient hands ownership of Client to the provider.
	CloseClient bool
}

type Store struct {
	rdb  goredis.UniversalClient
	owns bool
}

var _ provider.Provider = (*Store)(nil)

func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Store{rdb: cfg.Client, owns: cfg.CloseClient}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	frame, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return frame, true, nil
}

func (s *Store) Put(ctx context.Context, key string, frame []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.rdb.Set(ctx, key, frame, ttl).Err()
}

// Delete issues one DEL per batch of keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	for len(keys) > 0 {
		n := min(len(keys), deleteBatch)
		if err := s.rdb.Del(ctx, keys[:n]...).Err(); err != nil {
			return err
		}
		keys = keys[n:]
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	if !s.owns {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}
