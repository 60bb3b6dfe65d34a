package idgen

import (
	"context"
	"strconv"
	"sync"
)

// Local hands out per-model monotonic counters starting at 1.
// Ids restart when the process does; meant for tests and single-process use.
type Local struct {
	mu   sync.Mutex
	next map[string]uint64
}

var _ Generator = (*Local)(nil)

func NewLocal() *Local {
	return &Local{next: make(map[string]uint64)}
}

func (l *Local) Next(_ context.Context, model string) (string, error) {
	l.mu.Lock()
	l.next[model]++
	n := l.next[model]
	l.mu.Unlock()
	return strconv.FormatUint(n, 10), nil
}
