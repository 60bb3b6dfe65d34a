// Package asynchook moves hook delivery off the caller's goroutine.
//
// usage:
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{FallbackEvery: 100})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	db, _ := tiered.Open(ctx, tiered.Options{Registry: reg, Fast: fast, Durable: durable, Hooks: hooks})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/tiered"
)

type Hooks struct {
	inner   tiered.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var _ tiered.Hooks = (*Hooks)(nil)

func New(inner tiered.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close delivers queued events and stops the workers. Events reported after
// Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded because the queue was full.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	defer func() {
		// send on closed queue
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) CacheFallback(m, r string) { h.try(func() { h.inner.CacheFallback(m, r) }) }
func (h *Hooks) RepopulateFailed(m, id string, err error) {
	h.try(func() { h.inner.RepopulateFailed(m, id, err) })
}
func (h *Hooks) IndexConflict(m, a string) { h.try(func() { h.inner.IndexConflict(m, a) }) }
func (h *Hooks) SecondaryWriteFailed(m string, err error) {
	h.try(func() { h.inner.SecondaryWriteFailed(m, err) })
}
func (h *Hooks) PartialSave(m, id string, err error) {
	h.try(func() { h.inner.PartialSave(m, id, err) })
}
