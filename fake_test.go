package tiered

import (
	"context"
	"errors"
	"sync"

	"github.com/unkn0wn-root/tiered/backend"
	"github.com/unkn0wn-root/tiered/value"
)

var errBoom = errors.New("boom")

// memBackend is an in-memory tier that records every call.
type memBackend struct {
	name string

	mu       sync.Mutex
	rows     map[string]value.Values
	complete map[string]bool
	index    map[backend.IndexKey]string
	calls    map[string]int
	saves    []backend.SaveRequest

	failFetch bool
	failSave  bool
	evicts    bool
	// hold, when set, is called before a Fill save is applied.
	hold func(backend.SaveRequest)
}

var (
	_ backend.Backend = (*memBackend)(nil)
	_ backend.Evictor = (*memBackend)(nil)
)

func newMem(name string) *memBackend {
	return &memBackend{
		name:     name,
		rows:     make(map[string]value.Values),
		complete: make(map[string]bool),
		index:    make(map[backend.IndexKey]string),
		calls:    make(map[string]int),
	}
}

func rowKey(model, id string) string { return model + "/" + id }

func (b *memBackend) Name() string { return b.name }

func (b *memBackend) Evicts() bool { return b.evicts }

func (b *memBackend) count(op string) {
	b.mu.Lock()
	b.calls[op]++
	b.mu.Unlock()
}

func (b *memBackend) total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

// put stores a complete row.
func (b *memBackend) put(model, id string, v value.Values) {
	b.mu.Lock()
	b.rows[rowKey(model, id)] = v.Clone()
	b.complete[rowKey(model, id)] = true
	b.mu.Unlock()
}

// putPartial stores a row written by a plain update, so it is not complete.
func (b *memBackend) putPartial(model, id string, v value.Values) {
	b.mu.Lock()
	b.rows[rowKey(model, id)] = v.Clone()
	delete(b.complete, rowKey(model, id))
	b.mu.Unlock()
}

// evict drops a row the way a bounded cache would.
func (b *memBackend) evict(model, id string) {
	b.mu.Lock()
	delete(b.rows, rowKey(model, id))
	delete(b.complete, rowKey(model, id))
	b.mu.Unlock()
}

func (b *memBackend) isComplete(model, id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.complete[rowKey(model, id)]
}

func (b *memBackend) row(model, id string) (value.Values, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.rows[rowKey(model, id)]
	return r.Clone(), ok
}

func (b *memBackend) Fetch(_ context.Context, req backend.FetchRequest) (value.Values, bool, error) {
	b.count("fetch")
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failFetch {
		return nil, false, errBoom
	}
	k := rowKey(req.Model, req.ID)
	r, ok := b.rows[k]
	if !ok {
		return nil, false, nil
	}
	out := r.Pick(req.Attributes)
	if b.complete[k] {
		out[backend.Complete] = true
	}
	return out, true, nil
}

func (b *memBackend) Save(_ context.Context, req backend.SaveRequest) error {
	b.count("save")
	if req.Fill && b.hold != nil {
		b.hold(req)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failSave {
		return errBoom
	}
	b.saves = append(b.saves, req)
	k := rowKey(req.Model, req.ID)
	r, ok := b.rows[k]
	if !ok {
		r = value.Values{}
		b.rows[k] = r
	}
	if req.Insert || req.Fill {
		b.complete[k] = true
	}
	for n, v := range req.Data {
		if _, held := r[n]; req.Fill && (held || v == nil) {
			continue
		}
		if v == nil {
			delete(r, n)
			continue
		}
		r[n] = v
	}
	for n, d := range req.Increments {
		switch cur := r[n].(type) {
		case int64:
			r[n] = cur + int64(d)
		case float64:
			r[n] = cur + d
		default:
			if req.Types[n] == value.Integer {
				r[n] = int64(d)
			} else {
				r[n] = d
			}
		}
	}
	return nil
}

func (b *memBackend) Destroy(_ context.Context, req backend.DestroyRequest) error {
	b.count("destroy")
	b.mu.Lock()
	delete(b.rows, rowKey(req.Model, req.ID))
	delete(b.complete, rowKey(req.Model, req.ID))
	b.mu.Unlock()
	return nil
}

func (b *memBackend) IndexGet(_ context.Context, key backend.IndexKey) (string, bool, error) {
	b.count("index_get")
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.index[key]
	return id, ok, nil
}

func (b *memBackend) IndexSet(_ context.Context, key backend.IndexKey, id string) (bool, error) {
	b.count("index_set")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.index[key]; ok {
		return true, nil
	}
	b.index[key] = id
	return false, nil
}

func (b *memBackend) IndexDel(_ context.Context, key backend.IndexKey) error {
	b.count("index_del")
	b.mu.Lock()
	delete(b.index, key)
	b.mu.Unlock()
	return nil
}

func (b *memBackend) Reset(context.Context) error {
	b.mu.Lock()
	b.rows = make(map[string]value.Values)
	b.complete = make(map[string]bool)
	b.index = make(map[backend.IndexKey]string)
	b.mu.Unlock()
	return nil
}

func (b *memBackend) Close(context.Context) error { return nil }

// recHooks counts hook events.
type recHooks struct {
	mu        sync.Mutex
	fallbacks map[string]int
	repopErr  int
	conflicts int
	secondary int
	partial   int
}

func newRecHooks() *recHooks { return &recHooks{fallbacks: make(map[string]int)} }

func (h *recHooks) CacheFallback(_, reason string) {
	h.mu.Lock()
	h.fallbacks[reason]++
	h.mu.Unlock()
}

func (h *recHooks) RepopulateFailed(string, string, error) {
	h.mu.Lock()
	h.repopErr++
	h.mu.Unlock()
}

func (h *recHooks) IndexConflict(string, string) {
	h.mu.Lock()
	h.conflicts++
	h.mu.Unlock()
}

func (h *recHooks) SecondaryWriteFailed(string, error) {
	h.mu.Lock()
	h.secondary++
	h.mu.Unlock()
}

func (h *recHooks) PartialSave(string, string, error) {
	h.mu.Lock()
	h.partial++
	h.mu.Unlock()
}
