package local

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tiered/backend"
	"github.com/unkn0wn-root/tiered/codec"
	"github.com/unkn0wn-root/tiered/internal/wire"
	"github.com/unkn0wn-root/tiered/provider"
	"github.com/unkn0wn-root/tiered/provider/bigcache"
	rp "github.com/unkn0wn-root/tiered/provider/redis"
	"github.com/unkn0wn-root/tiered/provider/ristretto"
	"github.com/unkn0wn-root/tiered/value"
)

var types = map[string]value.Type{
	"name":  value.String,
	"hits":  value.Integer,
	"score": value.Float,
	"born":  value.Date,
}

func providers(t *testing.T) map[string]provider.Provider {
	t.Helper()
	rc, err := ristretto.New(ristretto.Config{MaxBytes: 1 << 20})
	if err != nil {
		t.Fatalf("ristretto: %v", err)
	}
	bc, err := bigcache.New(bigcache.Config{LifeWindow: time.Minute})
	if err != nil {
		t.Fatalf("bigcache: %v", err)
	}
	mr := miniredis.RunT(t)
	rd, err := rp.New(rp.Config{Client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), CloseClient: true})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	return map[string]provider.Provider{"ristretto": rc, "bigcache": bc, "redis": rd}
}

func eachProvider(t *testing.T, cfg Config, fn func(t *testing.T, b *Backend, p provider.Provider)) {
	for name, p := range providers(t) {
		t.Run(name, func(t *testing.T) {
			c := cfg
			c.Provider = p
			c.Namespace = "t"
			c.CloseProvider = true
			b, err := New(c)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer b.Close(context.Background())
			fn(t, b, p)
		})
	}
}

func TestRowsAcrossProviders(t *testing.T) {
	ctx := context.Background()
	born := time.Date(2001, 2, 3, 0, 0, 0, 0, time.UTC)
	eachProvider(t, Config{}, func(t *testing.T, b *Backend, _ provider.Provider) {
		err := b.Save(ctx, backend.SaveRequest{Model: "user", ID: "1", Types: types, Insert: true,
			Data: value.Values{"name": "ada", "hits": int64(1), "born": born}})
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		err = b.Save(ctx, backend.SaveRequest{Model: "user", ID: "1", Types: types,
			Data: value.Values{"name": nil}, Increments: map[string]float64{"hits": 4, "score": 0.5}})
		if err != nil {
			t.Fatalf("update: %v", err)
		}
		got, found, err := b.Fetch(ctx, backend.FetchRequest{Model: "user", ID: "1", Types: types,
			Attributes: []string{"name", "hits", "score", "born"}})
		if err != nil || !found {
			t.Fatalf("Fetch: found=%v err=%v", found, err)
		}
		if _, ok := got["name"]; ok {
			t.Fatalf("cleared attribute returned: %v", got)
		}
		if got["hits"] != int64(5) || got["score"] != 0.5 || !got["born"].(time.Time).Equal(born) {
			t.Fatalf("Fetch = %v", got)
		}
		if _, found, _ := b.Fetch(ctx, backend.FetchRequest{Model: "user", ID: "2", Types: types}); found {
			t.Fatalf("missing row found")
		}
	})
}

func TestConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	eachProvider(t, Config{}, func(t *testing.T, b *Backend, _ provider.Provider) {
		var wg sync.WaitGroup
		for i := 0; i < 32; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = b.Save(ctx, backend.SaveRequest{Model: "user", ID: "1", Types: types,
					Increments: map[string]float64{"hits": 1}})
			}()
		}
		wg.Wait()
		got, _, _ := b.Fetch(ctx, backend.FetchRequest{Model: "user", ID: "1", Types: types, Attributes: []string{"hits"}})
		if got["hits"] != int64(32) {
			t.Fatalf("hits = %v, want 32", got["hits"])
		}
	})
}

func TestIndexSetIfAbsent(t *testing.T) {
	ctx := context.Background()
	eachProvider(t, Config{}, func(t *testing.T, b *Backend, _ provider.Provider) {
		k := backend.IndexKey{Model: "user", Attribute: "email", Value: strings.Repeat("a", 100)}
		var mu sync.Mutex
		winners := 0
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				existed, err := b.IndexSet(ctx, k, "id")
				if err == nil && !existed {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if winners != 1 {
			t.Fatalf("%d reservations won, want 1", winners)
		}
		if id, ok, _ := b.IndexGet(ctx, k); !ok || id != "id" {
			t.Fatalf("IndexGet = %q, %v", id, ok)
		}
		_ = b.IndexDel(ctx, k)
		if _, ok, _ := b.IndexGet(ctx, k); ok {
			t.Fatalf("pointer survived IndexDel")
		}
	})
}

func TestCorruptRowIsDropped(t *testing.T) {
	ctx := context.Background()
	eachProvider(t, Config{}, func(t *testing.T, b *Backend, p provider.Provider) {
		_ = p.Put(ctx, "t:user:1", []byte("garbage"), 0)
		if _, found, err := b.Fetch(ctx, backend.FetchRequest{Model: "user", ID: "1", Types: types}); err != nil || found {
			t.Fatalf("corrupt row: found=%v err=%v", found, err)
		}
		if _, ok, _ := p.Get(ctx, "t:user:1"); ok {
			t.Fatalf("corrupt row kept")
		}
	})
}

func TestCodecsAndLimits(t *testing.T) {
	ctx := context.Background()
	for _, name := range []string{"json", "cbor", "proto"} {
		c, _ := codec.ForRows(name)
		eachProvider(t, Config{Codec: c}, func(t *testing.T, b *Backend, _ provider.Provider) {
			_ = b.Save(ctx, backend.SaveRequest{Model: "m", ID: "1", Types: types, Insert: true, Data: value.Values{"name": "x"}})
			got, _, err := b.Fetch(ctx, backend.FetchRequest{Model: "m", ID: "1", Types: types, Attributes: []string{"name"}})
			if err != nil || got["name"] != "x" {
				t.Fatalf("%s: Fetch = %v, %v", name, got, err)
			}
		})
	}

	eachProvider(t, Config{MaxRowBytes: 16}, func(t *testing.T, b *Backend, p provider.Provider) {
		err := b.Save(ctx, backend.SaveRequest{Model: "m", ID: "1", Types: types, Insert: true,
			Data: value.Values{"name": strings.Repeat("x", 64)}})
		var tooLarge *codec.TooLargeError
		if !errors.As(err, &tooLarge) {
			t.Fatalf("Save = %v, want TooLargeError", err)
		}
		if _, found, _ := b.Fetch(ctx, backend.FetchRequest{Model: "m", ID: "1", Types: types}); found {
			t.Fatalf("oversized row stored")
		}

		// rows written by a process with a larger limit are dropped on read
		big, _ := codec.Msgpack{}.Encode(codec.Row{"name": strings.Repeat("x", 64)})
		_ = p.Put(ctx, "t:m:2", wire.Encode(wire.KindRow, big), 0)
		if _, found, _ := b.Fetch(ctx, backend.FetchRequest{Model: "m", ID: "2", Types: types}); found {
			t.Fatalf("oversized row served")
		}
	})
}

func TestResetAndDestroy(t *testing.T) {
	ctx := context.Background()
	eachProvider(t, Config{}, func(t *testing.T, b *Backend, p provider.Provider) {
		_ = b.Save(ctx, backend.SaveRequest{Model: "m", ID: "1", Types: types, Insert: true, Data: value.Values{"name": "a"}})
		_ = b.Save(ctx, backend.SaveRequest{Model: "m", ID: "2", Types: types, Insert: true, Data: value.Values{"name": "b"}})
		_, _ = b.IndexSet(ctx, backend.IndexKey{Model: "m", Attribute: "name", Value: "a"}, "1")

		if err := b.Destroy(ctx, backend.DestroyRequest{Model: "m", ID: "1"}); err != nil {
			t.Fatalf("Destroy: %v", err)
		}
		if _, found, _ := b.Fetch(ctx, backend.FetchRequest{Model: "m", ID: "1", Types: types}); found {
			t.Fatalf("destroyed row found")
		}
		if err := b.Reset(ctx); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if _, found, _ := b.Fetch(ctx, backend.FetchRequest{Model: "m", ID: "2", Types: types}); found {
			t.Fatalf("row survived Reset")
		}
		if _, ok, _ := b.IndexGet(ctx, backend.IndexKey{Model: "m", Attribute: "name", Value: "a"}); ok {
			t.Fatalf("pointer survived Reset")
		}
	})
}

func TestFillKeepsNewerValues(t *testing.T) {
	ctx := context.Background()
	req := backend.FetchRequest{Model: "user", ID: "1", Types: types, Attributes: []string{"name", "hits"}}
	eachProvider(t, Config{}, func(t *testing.T, b *Backend, _ provider.Provider) {
		_ = b.Save(ctx, backend.SaveRequest{Model: "user", ID: "1", Types: types, Data: value.Values{"name": "new"}})
		got, found, _ := b.Fetch(ctx, req)
		if !found || got[backend.Complete] != nil {
			t.Fatalf("update-created row = %v found=%v", got, found)
		}
		err := b.Save(ctx, backend.SaveRequest{Model: "user", ID: "1", Types: types, Fill: true,
			Data: value.Values{"name": "old", "hits": int64(2)}})
		if err != nil {
			t.Fatalf("fill: %v", err)
		}
		got, _, _ = b.Fetch(ctx, req)
		if got["name"] != "new" || got["hits"] != int64(2) || got[backend.Complete] != true {
			t.Fatalf("filled row = %v", got)
		}
	})
}

func TestEvicts(t *testing.T) {
	for name, p := range providers(t) {
		b, _ := New(Config{Provider: p})
		if want := name != "redis"; b.Evicts() != want {
			t.Fatalf("%s: Evicts = %v, want %v", name, b.Evicts(), want)
		}
		withTTL, _ := New(Config{Provider: p, TTL: time.Minute})
		if !withTTL.Evicts() {
			t.Fatalf("%s: rows with a TTL must report Evicts", name)
		}
		_ = p.Close(context.Background())
	}
}
