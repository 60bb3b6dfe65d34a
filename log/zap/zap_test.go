package zap

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/unkn0wn-root/tiered"
)

func TestFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Logger{L: zap.New(core)}

	l.Debug("fast tier fallback", tiered.Fields{"reason": "miss", "model": "user", "err": errors.New("x")})
	l.Info("no fields", nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["model"] != "user" || ctx["reason"] != "miss" || ctx["error"] != "x" {
		t.Fatalf("context = %v", ctx)
	}
	if entries[0].Level != zapcore.DebugLevel {
		t.Fatalf("level = %v", entries[0].Level)
	}
}
