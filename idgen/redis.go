package idgen

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Redis shares per-model counters across processes and survives restarts.
type Redis struct {
	rdb redis.UniversalClient
	ns  string
}

var _ Generator = (*Redis)(nil)

// NewRedis creates a Redis-backed generator. Counters live under
// "<namespace>:ids:<model>".
func NewRedis(client redis.UniversalClient, namespace string) *Redis {
	return &Redis{rdb: client, ns: namespace}
}

func (r *Redis) key(model string) string { return r.ns + ":ids:" + model }

func (r *Redis) Next(ctx context.Context, model string) (string, error) {
	n, err := r.rdb.Incr(ctx, r.key(model)).Result()
	if err != nil {
		return "", fmt.Errorf("redis id incr: %w", err)
	}
	return strconv.FormatInt(n, 10), nil
}
