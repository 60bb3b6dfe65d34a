// Package redis is a fast tier on Redis hashes.
//
// Each row is one hash at <ns>:<model>:<id> with serial.Strings values.
// Index pointers are plain string keys claimed with SETNX.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tiered/backend"
	"github.com/unkn0wn-root/tiered/internal/keys"
	"github.com/unkn0wn-root/tiered/serial"
	"github.com/unkn0wn-root/tiered/value"
)

// rowMarker is written by Insert and Fill saves. It keeps a row visible when
// all its attributes are cleared and marks the row complete.
const rowMarker = "_"

const scanBatch = 512

type Backend struct {
	rdb         goredis.UniversalClient
	ns          string
	table       serial.Table
	closeClient bool
}

var _ backend.Backend = (*Backend)(nil)

type Config struct {
	Client goredis.UniversalClient
	// Namespace prefixes every key; Reset only touches keys under it.
	Namespace   string
	CloseClient bool // set true only if this backend exclusively owns the client
}

func New(cfg Config) (*Backend, error) {
	if cfg.Client == nil {
		return nil, backend.ErrNilClient
	}
	return &Backend{rdb: cfg.Client, ns: cfg.Namespace, table: serial.Strings(), closeClient: cfg.CloseClient}, nil
}

func (b *Backend) Name() string { return "redis" }

func (b *Backend) Fetch(ctx context.Context, req backend.FetchRequest) (value.Values, bool, error) {
	key := keys.Row(b.ns, req.Model, req.ID)
	var (
		exists *goredis.IntCmd
		fields *goredis.SliceCmd
	)
	_, err := b.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		exists = p.Exists(ctx, key)
		fields = p.HMGet(ctx, key, append([]string{rowMarker}, req.Attributes...)...)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if exists.Val() == 0 {
		return nil, false, nil
	}
	raw := fields.Val()
	out := make(value.Values, len(req.Attributes)+1)
	if raw[0] != nil {
		out[backend.Complete] = true
	}
	for i, name := range req.Attributes {
		if raw[i+1] == nil {
			continue
		}
		v, err := b.table.Unserialize(req.Types[name], raw[i+1])
		if err != nil {
			return nil, false, fmt.Errorf("redis: %s.%s: %w", req.Model, name, err)
		}
		out[name] = v
	}
	return out, true, nil
}

// Save applies the row update in one MULTI/EXEC block. A Fill save uses
// HSETNX so fields written in the meantime win.
func (b *Backend) Save(ctx context.Context, req backend.SaveRequest) error {
	key := keys.Row(b.ns, req.Model, req.ID)
	set := make(map[string]any, len(req.Data)+1)
	var del []string
	for name, v := range req.Data {
		if v == nil {
			del = append(del, name)
			continue
		}
		raw, err := b.table.Serialize(req.Types[name], v)
		if err != nil {
			return fmt.Errorf("redis: %s.%s: %w", req.Model, name, err)
		}
		set[name] = raw
	}

	_, err := b.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		if req.Fill {
			for name, raw := range set {
				p.HSetNX(ctx, key, name, raw)
			}
			p.HSet(ctx, key, rowMarker, "1")
			return nil
		}
		if req.Insert {
			set[rowMarker] = "1"
		}
		if len(set) > 0 {
			p.HSet(ctx, key, set)
		}
		if len(del) > 0 {
			p.HDel(ctx, key, del...)
		}
		for name, d := range req.Increments {
			if req.Types[name] == value.Float {
				p.HIncrByFloat(ctx, key, name, d)
			} else {
				p.HIncrBy(ctx, key, name, int64(d))
			}
		}
		return nil
	})
	return err
}

func (b *Backend) Destroy(ctx context.Context, req backend.DestroyRequest) error {
	return b.rdb.Del(ctx, keys.Row(b.ns, req.Model, req.ID)).Err()
}

func (b *Backend) indexKey(k backend.IndexKey) string {
	return keys.Index(b.ns, k.Model, k.Attribute, k.Value)
}

func (b *Backend) IndexGet(ctx context.Context, k backend.IndexKey) (string, bool, error) {
	id, err := b.rdb.Get(ctx, b.indexKey(k)).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (b *Backend) IndexSet(ctx context.Context, k backend.IndexKey, id string) (bool, error) {
	ok, err := b.rdb.SetNX(ctx, b.indexKey(k), id, 0).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (b *Backend) IndexDel(ctx context.Context, k backend.IndexKey) error {
	return b.rdb.Del(ctx, b.indexKey(k)).Err()
}

// Reset deletes every key under the namespace.
func (b *Backend) Reset(ctx context.Context) error {
	match := keys.Prefix(b.ns) + "*"
	var cursor uint64
	for {
		batch, next, err := b.rdb.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return err
		}
		if len(batch) > 0 {
			if err := b.rdb.Del(ctx, batch...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Close releases the underlying redis client only when this backend owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (b *Backend) Close(context.Context) error {
	if b.closeClient {
		if err := b.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
