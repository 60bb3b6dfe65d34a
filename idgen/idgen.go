// Package idgen provides id generators for new instances.
// Use Local (default) for in-process ids, Redis for ids shared across
// processes, or UUID when ids must not be guessable.
package idgen

import "context"

// Generator returns a fresh id for a model. Ids are unique per model.
type Generator interface {
	Next(ctx context.Context, model string) (string, error)
}

// Func adapts a function to Generator.
type Func func(ctx context.Context, model string) (string, error)

func (f Func) Next(ctx context.Context, model string) (string, error) { return f(ctx, model) }
