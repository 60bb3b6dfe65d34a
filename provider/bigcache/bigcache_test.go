package bigcache

import (
	"context"
	"testing"
	"time"
)

func TestLifeWindowRequired(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("New without LifeWindow succeeded")
	}
}

func TestDeleteIgnoresMissingKeys(t *testing.T) {
	ctx := context.Background()
	s, err := New(Config{LifeWindow: time.Minute})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close(ctx)
	_ = s.Put(ctx, "a", []byte("x"), time.Second)
	if err := s.Delete(ctx, "a", "b", "c"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, err := s.Get(ctx, "a"); ok || err != nil {
		t.Fatalf("Get after Delete = %v, %v", ok, err)
	}
}
