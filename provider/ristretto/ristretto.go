// Package ristretto keeps frames in an in-process ristretto cache. The cost
// of an entry is its frame length, so MaxCost is a byte budget.
package ristretto

import (
	"context"
	"errors"
	"fmt"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/unkn0wn-root/tiered/provider"
)

type Config struct {
	// MaxBytes is the total frame budget.
	MaxBytes int64
	// Counters sizes the admission sketch; 0 => one per 100 bytes of budget.
	Counters    int64
	BufferItems int64
	Metrics     bool
}

type Store struct {
	c *rc.Cache
}

var (
	_ provider.Provider = (*Store)(nil)
	_ provider.Bounded  = (*Store)(nil)
)

func New(cfg Config) (*Store, error) {
	if cfg.MaxBytes <= 0 {
		return nil, errors.New("provider/ristretto: MaxBytes must be positive")
	}
	counters := cfg.Counters
	if counters <= 0 {
		counters = max(cfg.MaxBytes/100, 1000)
	}
	buffer := cfg.BufferItems
	if buffer <= 0 {
		buffer = 64
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: counters,
		MaxCost:     cfg.MaxBytes,
		BufferItems: buffer,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("provider/ristretto: %w", err)
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	frame, ok := v.([]byte)
	if !ok {
		s.c.Del(key)
		return nil, false, nil
	}
	return frame, true, nil
}

// Put waits for ristretto's write buffer so the frame is readable on return.
func (s *Store) Put(_ context.Context, key string, frame []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if !s.c.SetWithTTL(key, frame, int64(len(frame)), ttl) {
		return provider.ErrRejected
	}
	s.c.Wait()
	if _, ok := s.c.Get(key); !ok {
		// admitted to the buffer but evicted by the policy
		return provider.ErrRejected
	}
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		s.c.Del(k)
	}
	return nil
}

func (s *Store) Close(context.Context) error {
	s.c.Close()
	return nil
}

// Metrics returns ristretto's counters, nil unless Config.Metrics.
func (s *Store) Metrics() *rc.Metrics { return s.c.Metrics }

// Bounded reports true: entries are evicted under cost pressure.
func (*Store) Bounded() bool { return true }
