// Package bigcache keeps frames in an allegro/bigcache shard set. bigcache
// has no per-entry expiry: every frame lives for Config.LifeWindow.
package bigcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/unkn0wn-root/tiered/provider"
)

type Config struct {
	// LifeWindow is how long a frame stays readable; required.
	LifeWindow  time.Duration
	CleanWindow time.Duration
	// MaxMB caps the shard memory; 0 => unbounded.
	MaxMB int
	// MaxFrameBytes sizes the initial shard buffers for frames of this length.
	MaxFrameBytes int
}

type Store struct {
	c *bc.BigCache
}

var (
	_ provider.Provider = (*Store)(nil)
	_ provider.Bounded  = (*Store)(nil)
)

func New(cfg Config) (*Store, error) {
	if cfg.LifeWindow <= 0 {
		return nil, errors.New("provider/bigcache: LifeWindow must be positive")
	}
	conf := bc.DefaultConfig(cfg.LifeWindow)
	conf.Verbose = false
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	} else {
		conf.CleanWindow = cfg.LifeWindow / 2
	}
	if cfg.MaxMB > 0 {
		conf.HardMaxCacheSize = cfg.MaxMB
	}
	if cfg.MaxFrameBytes > 0 {
		conf.MaxEntrySize = cfg.MaxFrameBytes
	}
	c, err := bc.New(context.Background(), conf)
	if err != nil {
		return nil, fmt.Errorf("provider/bigcache: %w", err)
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	frame, err := s.c.Get(key)
	switch {
	case errors.Is(err, bc.ErrEntryNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return frame, true, nil
}

// Put ignores ttl.
func (s *Store) Put(_ context.Context, key string, frame []byte, _ time.Duration) error {
	if err := s.c.Set(key, frame); err != nil {
		// entries larger than a shard are refused rather than stored
		return fmt.Errorf("%w: %v", provider.ErrRejected, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	var errs []error
	for _, k := range keys {
		if err := s.c.Delete(k); err != nil && !errors.Is(err, bc.ErrEntryNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) Close(context.Context) error { return s.c.Close() }

// Bounded reports true: entries are evicted after LifeWindow.
func (*Store) Bounded() bool { return true }
