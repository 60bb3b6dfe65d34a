package sloghook

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestSamplingAndRedaction(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := New(l, Options{FallbackEvery: 3})

	for i := 0; i < 6; i++ {
		h.CacheFallback("user", "miss")
	}
	if n := strings.Count(buf.String(), "tiered.cache_fallback"); n != 2 {
		t.Fatalf("logged %d fallbacks, want 2", n)
	}

	buf.Reset()
	h.PartialSave("user", "secret-id", errors.New("down"))
	out := buf.String()
	if strings.Contains(out, "secret-id") || !strings.Contains(out, "tiered.partial_save") {
		t.Fatalf("partial save entry = %q", out)
	}
}

func TestNilLogger(t *testing.T) {
	h := New(nil, Options{})
	h.CacheFallback("user", "miss")
	h.PartialSave("user", "1", errors.New("x"))
}
