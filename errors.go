package tiered

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotSaved         = errors.New("tiered: instance is not saved")
	ErrDestroyed        = errors.New("tiered: instance was destroyed")
	ErrNotACounter      = errors.New("tiered: attribute is not a counter")
	ErrRegistryOpen     = errors.New("tiered: model registry is still open")
	ErrRegistrySealed   = errors.New("tiered: model registry is sealed")
	ErrUnknownModel     = errors.New("tiered: unknown model")
	ErrUnknownAttribute = errors.New("tiered: unknown attribute")
	ErrIndexConflict    = errors.New("tiered: index value already taken")
	ErrNoBackend        = errors.New("tiered: no backend for tier")
	ErrNotFound         = errors.New("tiered: row not found")
)

// ConfigError reports an invalid model or attribute declaration.
type ConfigError struct {
	Model     string
	Attribute string
	Reason    string
}

func (e *ConfigError) Error() string {
	if e.Attribute == "" {
		return fmt.Sprintf("tiered: model %q: %s", e.Model, e.Reason)
	}
	return fmt.Sprintf("tiered: model %q attribute %q: %s", e.Model, e.Attribute, e.Reason)
}

// ValidationError maps attribute names to validation messages.
type ValidationError map[string]string

func (e ValidationError) Error() string {
	names := make([]string, 0, len(e))
	for n := range e {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + ": " + e[n]
	}
	return "tiered: validation failed: " + strings.Join(parts, "; ")
}

// IndexConflictError is returned when an indexed value is owned by another id.
type IndexConflictError struct {
	Model     string
	Attribute string
	Value     string
	Owner     string
}

func (e *IndexConflictError) Error() string {
	return fmt.Sprintf("tiered: %s.%s=%q already belongs to %q", e.Model, e.Attribute, e.Value, e.Owner)
}

func (e *IndexConflictError) Is(target error) bool { return target == ErrIndexConflict }

// BackendError wraps a transport or query failure from one tier.
type BackendError struct {
	Tier Tier
	Op   string
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("tiered: %s %s: %v", e.Tier, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// PartialSaveError reports a save that failed after index pointers were
// reserved. Index and data tiers may disagree until the save is repeated or
// the pointers are released.
type PartialSaveError struct {
	Model    string
	ID       string
	Reserved []string
	Err      error
}

func (e *PartialSaveError) Error() string {
	return fmt.Sprintf("tiered: partial save of %s %q (reserved %s): %v",
		e.Model, e.ID, strings.Join(e.Reserved, ","), e.Err)
}

func (e *PartialSaveError) Unwrap() error { return e.Err }
