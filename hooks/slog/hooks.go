// Package sloghook reports tiered events through log/slog.
package sloghook

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tiered"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	FallbackEvery uint64
	ConflictEvery uint64
	// Optional id redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	fallbackCtr atomic.Uint64
	conflictCtr atomic.Uint64
}

var _ tiered.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(id string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(id)
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) CacheFallback(model, reason string) {
	if h.l == nil || !sample(h.opts.FallbackEvery, &h.fallbackCtr) {
		return
	}
	h.l.Debug("tiered.cache_fallback",
		"model", model,
		"reason", reason)
}

func (h *Hooks) RepopulateFailed(model, id string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tiered.repopulate_failed",
		"model", model,
		"id", h.redact(id),
		"err", err)
}

func (h *Hooks) IndexConflict(model, attribute string) {
	if h.l == nil || !sample(h.opts.ConflictEvery, &h.conflictCtr) {
		return
	}
	h.l.Info("tiered.index_conflict",
		"model", model,
		"attribute", attribute)
}

func (h *Hooks) SecondaryWriteFailed(model string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("tiered.secondary_write_failed",
		"model", model,
		"err", err)
}

func (h *Hooks) PartialSave(model, id string, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("tiered.partial_save",
		"model", model,
		"id", h.redact(id),
		"err", err)
}
