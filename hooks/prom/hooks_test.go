package promhook

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	h, err := New(reg, "app")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.CacheFallback("user", "miss")
	h.CacheFallback("user", "miss")
	h.CacheFallback("user", "error")
	h.IndexConflict("user", "email")
	h.PartialSave("user", "1", errors.New("down"))

	if got := testutil.ToFloat64(h.fallbacks.WithLabelValues("user", "miss")); got != 2 {
		t.Fatalf("miss fallbacks = %v", got)
	}
	if got := testutil.ToFloat64(h.conflicts.WithLabelValues("user", "email")); got != 1 {
		t.Fatalf("conflicts = %v", got)
	}
	if got := testutil.CollectAndCount(h.fallbacks); got != 2 {
		t.Fatalf("fallback series = %d", got)
	}

	if _, err := New(reg, "app"); err == nil {
		t.Fatalf("duplicate registration accepted")
	}
}
