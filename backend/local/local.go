// Package local is a fast tier on any provider.Provider byte store
// (ristretto, bigcache, or a plain redis string keyspace).
//
// Rows are serial.Strings maps encoded with a row codec and framed by
// internal/wire. Read-modify-write steps (increments, set-if-absent) are
// serialized by a process-wide mutex, so a Backend must be the only writer
// of its namespace.
//
// Over ristretto or bigcache, or with a TTL, entries may vanish on their
// own and the Backend reports Evicts; tiered then keeps index pointers in
// the durable tier.
package local

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/unkn0wn-root/tiered/backend"
	"github.com/unkn0wn-root/tiered/codec"
	"github.com/unkn0wn-root/tiered/internal/keys"
	"github.com/unkn0wn-root/tiered/internal/wire"
	"github.com/unkn0wn-root/tiered/provider"
	"github.com/unkn0wn-root/tiered/serial"
	"github.com/unkn0wn-root/tiered/value"
)

type Config struct {
	Provider provider.Provider
	// Codec encodes rows; nil => codec.Msgpack.
	Codec     codec.Codec
	Namespace string
	// TTL of rows and pointers; 0 => no expiry (if the provider supports it).
	TTL time.Duration
	// MaxRowBytes refuses to write larger encoded rows and drops larger
	// stored ones on read; 0 => unlimited.
	MaxRowBytes   int
	CloseProvider bool
}

type Backend struct {
	p     provider.Provider
	rows  codec.Codec
	ptrs  codec.Pointer
	ns    string
	ttl   time.Duration
	table serial.Table
	owns  bool

	mu   sync.Mutex
	keys map[string]struct{}
}

var (
	_ backend.Backend = (*Backend)(nil)
	_ backend.Evictor = (*Backend)(nil)
)

func New(cfg Config) (*Backend, error) {
	if cfg.Provider == nil {
		return nil, backend.ErrNilClient
	}
	var rows codec.Codec = codec.Msgpack{}
	if cfg.Codec != nil {
		rows = cfg.Codec
	}
	if cfg.MaxRowBytes > 0 {
		rows = codec.Limit{Inner: rows, Max: cfg.MaxRowBytes}
	}
	return &Backend{
		p:     cfg.Provider,
		rows:  rows,
		ns:    cfg.Namespace,
		ttl:   cfg.TTL,
		table: serial.Strings(),
		owns:  cfg.CloseProvider,
		keys:  make(map[string]struct{}),
	}, nil
}

// rowMarker is the row entry written by Insert and Fill saves.
const rowMarker = "_"

func (b *Backend) Name() string { return "local" }

// Evicts reports whether rows and pointers may vanish on their own: rows
// carry a TTL or the provider drops entries under pressure.
func (b *Backend) Evicts() bool {
	if b.ttl > 0 {
		return true
	}
	bp, ok := b.p.(provider.Bounded)
	return ok && bp.Bounded()
}

// load reads a row. Corrupt entries are dropped and reported as a miss.
func (b *Backend) load(ctx context.Context, key string) (codec.Row, bool, error) {
	raw, ok, err := b.p.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	payload, err := wire.Decode(wire.KindRow, raw)
	if err == nil {
		var row codec.Row
		if row, err = b.rows.Decode(payload); err == nil {
			if row == nil {
				row = codec.Row{}
			}
			return row, true, nil
		}
	}
	_ = b.p.Delete(ctx, key)
	return nil, false, nil
}

func (b *Backend) store(ctx context.Context, key string, kind wire.Kind, payload []byte) error {
	frame := wire.Encode(kind, payload)
	if err := b.p.Put(ctx, key, frame, b.ttl); err != nil {
		return fmt.Errorf("local: put %s: %w", key, err)
	}
	b.keys[key] = struct{}{}
	return nil
}

func (b *Backend) Fetch(ctx context.Context, req backend.FetchRequest) (value.Values, bool, error) {
	row, ok, err := b.load(ctx, keys.Row(b.ns, req.Model, req.ID))
	if err != nil || !ok {
		return nil, false, err
	}
	out := make(value.Values, len(req.Attributes)+1)
	if _, ok := row[rowMarker]; ok {
		out[backend.Complete] = true
	}
	for _, name := range req.Attributes {
		raw, ok := row[name]
		if !ok {
			continue
		}
		v, err := b.table.Unserialize(req.Types[name], raw)
		if err != nil {
			return nil, false, fmt.Errorf("local: %s.%s: %w", req.Model, name, err)
		}
		out[name] = v
	}
	return out, true, nil
}

func (b *Backend) Save(ctx context.Context, req backend.SaveRequest) error {
	key := keys.Row(b.ns, req.Model, req.ID)
	b.mu.Lock()
	defer b.mu.Unlock()

	row, _, err := b.load(ctx, key)
	if err != nil {
		return err
	}
	if row == nil {
		row = codec.Row{}
	}
	for name, v := range req.Data {
		if _, held := row[name]; req.Fill && (held || v == nil) {
			continue
		}
		if v == nil {
			delete(row, name)
			continue
		}
		raw, err := b.table.Serialize(req.Types[name], v)
		if err != nil {
			return fmt.Errorf("local: %s.%s: %w", req.Model, name, err)
		}
		row[name] = raw.(string)
	}
	if req.Insert || req.Fill {
		row[rowMarker] = "1"
	}
	for name, d := range req.Increments {
		next, err := add(row[name], d, req.Types[name])
		if err != nil {
			return fmt.Errorf("local: %s.%s: %w", req.Model, name, err)
		}
		row[name] = next
	}

	payload, err := b.rows.Encode(row)
	if err != nil {
		return err
	}
	return b.store(ctx, key, wire.KindRow, payload)
}

// add applies a delta to a stored counter; a missing counter counts as zero.
func add(cur string, d float64, t value.Type) (string, error) {
	if t == value.Float {
		f := 0.0
		if cur != "" {
			var err error
			if f, err = strconv.ParseFloat(cur, 64); err != nil {
				return "", err
			}
		}
		return strconv.FormatFloat(f+d, 'g', -1, 64), nil
	}
	var n int64
	if cur != "" {
		var err error
		if n, err = strconv.ParseInt(cur, 10, 64); err != nil {
			return "", err
		}
	}
	return strconv.FormatInt(n+int64(d), 10), nil
}

func (b *Backend) Destroy(ctx context.Context, req backend.DestroyRequest) error {
	key := keys.Row(b.ns, req.Model, req.ID)
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.keys, key)
	return b.p.Delete(ctx, key)
}

func (b *Backend) indexKey(k backend.IndexKey) string {
	return keys.Index(b.ns, k.Model, k.Attribute, k.Value)
}

func (b *Backend) IndexGet(ctx context.Context, k backend.IndexKey) (string, bool, error) {
	return b.pointer(ctx, b.indexKey(k))
}

func (b *Backend) pointer(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := b.p.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	payload, err := wire.Decode(wire.KindPointer, raw)
	if err == nil {
		var id string
		if id, err = b.ptrs.Decode(payload); err == nil {
			return id, true, nil
		}
	}
	_ = b.p.Delete(ctx, key)
	return "", false, nil
}

func (b *Backend) IndexSet(ctx context.Context, k backend.IndexKey, id string) (bool, error) {
	key := b.indexKey(k)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok, err := b.pointer(ctx, key); err != nil || ok {
		return ok, err
	}
	payload, err := b.ptrs.Encode(id)
	if err != nil {
		return false, err
	}
	return false, b.store(ctx, key, wire.KindPointer, payload)
}

func (b *Backend) IndexDel(ctx context.Context, k backend.IndexKey) error {
	key := b.indexKey(k)
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.keys, key)
	return b.p.Delete(ctx, key)
}

// Reset deletes every key this Backend wrote since it was created.
func (b *Backend) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	written := make([]string, 0, len(b.keys))
	for key := range b.keys {
		written = append(written, key)
	}
	if err := b.p.Delete(ctx, written...); err != nil {
		return fmt.Errorf("local: reset: %w", err)
	}
	clear(b.keys)
	return nil
}

func (b *Backend) Close(ctx context.Context) error {
	if b.owns {
		return b.p.Close(ctx)
	}
	return nil
}
