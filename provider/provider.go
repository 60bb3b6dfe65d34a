// Package provider defines the byte stores backend/local keeps its frames in.
//
// A store sees only opaque frames: Get returns exactly the bytes given to
// Put, and a Put that returned nil is visible to the next Get on the same
// store. Frames carry their own kind and checksum (internal/wire), so a
// store never inspects or rewrites them.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrRejected is returned by Put when the store declined the frame, usually
// because its admission policy dropped it under memory pressure.
var ErrRejected = errors.New("provider: frame rejected")

// Provider is a keyed frame store. Implementations are safe for concurrent use.
type Provider interface {
	// Get returns (frame, true, nil) on hit and (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores frame under key. ttl <= 0 keeps it until evicted; stores
	// without per-entry expiry ignore ttl.
	Put(ctx context.Context, key string, frame []byte, ttl time.Duration) error

	// Delete removes keys. Absent keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	Close(ctx context.Context) error
}

// Bounded is implemented by stores that drop entries on their own, by size
// or age. backend/local keeps no index pointers on such a store.
type Bounded interface {
	Bounded() bool
}
