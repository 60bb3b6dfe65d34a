package ristretto

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/unkn0wn-root/tiered/provider"
)

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{MaxBytes: 1 << 16})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close(ctx)

	if err := s.Put(ctx, "a", []byte("frame"), 0); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := s.Get(ctx, "a")
	if err != nil || !ok || !bytes.Equal(got, []byte("frame")) {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}
	if err := s.Delete(ctx, "a", "missing"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "a"); ok {
		t.Fatalf("deleted frame still readable")
	}
}

func TestOversizedFrameRejected(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{MaxBytes: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close(ctx)
	if err := s.Put(ctx, "big", make([]byte, 1024), 0); !errors.Is(err, provider.ErrRejected) {
		t.Fatalf("Put = %v, want ErrRejected", err)
	}
}

func TestNewRequiresBudget(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("New without MaxBytes succeeded")
	}
}
