package slog

import (
	"bytes"
	stdslog "log/slog"
	"strings"
	"testing"

	"github.com/unkn0wn-root/tiered"
)

func TestLevelsAndOrder(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelInfo}))}

	l.Debug("hidden", nil)
	l.Warn("index release failed", tiered.Fields{"model": "user", "attribute": "email"})

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug entry written: %q", out)
	}
	if !strings.Contains(out, "attribute=email model=user") {
		t.Fatalf("fields not in key order: %q", out)
	}
}
