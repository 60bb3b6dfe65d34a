// Package backend defines the contract every storage tier implements.
//
// Values crossing this boundary are canonical (see package value); each
// backend serializes them with its own serial.Table.
package backend

import (
	"context"
	"errors"

	"github.com/unkn0wn-root/tiered/value"
)

var (
	ErrNilClient   = errors.New("backend: nil client")
	ErrUnsupported = errors.New("backend: operation not supported")
	ErrClosed      = errors.New("backend: closed")
)

// Complete is set to true in fetched values when a fast tier row was
// written by an Insert or Fill save and so holds every attribute the tier
// keeps for it. Rows that plain updates created, for example after an
// eviction, never carry it. Attribute names starting with "_" are reserved.
const Complete = "_complete"

// Backend is one storage tier.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Name identifies the backend in logs and errors.
	Name() string

	// Fetch loads the named attributes of one row.
	// Returns (values, true, nil) when the row exists, even if none of the
	// requested attributes are set; (nil, false, nil) when it does not.
	// Backends that track completeness add Complete for complete rows.
	Fetch(ctx context.Context, req FetchRequest) (value.Values, bool, error)

	// Save writes Data and applies Increments as relative, atomic deltas.
	// A nil value in Data clears the attribute.
	Save(ctx context.Context, req SaveRequest) error

	// Destroy removes the row.
	Destroy(ctx context.Context, req DestroyRequest) error

	// IndexGet resolves an index pointer. ok=false when absent.
	IndexGet(ctx context.Context, key IndexKey) (id string, ok bool, err error)

	// IndexSet creates the pointer iff absent and reports whether one existed.
	// An existing pointer is never overwritten.
	IndexSet(ctx context.Context, key IndexKey, id string) (existed bool, err error)

	// IndexDel removes a pointer. Missing pointers are not an error.
	IndexDel(ctx context.Context, key IndexKey) error

	// Reset drops every row and pointer owned by the backend.
	Reset(ctx context.Context) error

	Close(ctx context.Context) error
}

// Schema describes one model as seen by a tier: the attributes it owns.
type Schema struct {
	Model string
	// Key is the primary key attribute name.
	Key        string
	KeyType    value.Type
	Attributes map[string]value.Type
	Counters   []string
}

// Evictor is implemented by backends that may drop rows and pointers on
// their own, such as size or time bounded caches. Index pointers are kept
// off a backend whose Evicts reports true.
type Evictor interface {
	Evicts() bool
}

// SchemaEnsurer is implemented by backends that need per-model setup
// (tables, columns) before use.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context, s Schema) error
}

type FetchRequest struct {
	Model      string
	ID         string
	Attributes []string
	Types      map[string]value.Type
}

type SaveRequest struct {
	Model      string
	ID         string
	Data       value.Values
	Increments map[string]float64
	Types      map[string]value.Type
	// Insert marks the initial write of a row.
	Insert bool
	// Fill writes only the attributes the row does not hold yet and marks
	// the row complete. Nil values are skipped. Backends that cannot fill
	// return ErrUnsupported.
	Fill bool
}

type DestroyRequest struct {
	Model string
	ID    string
}

// IndexKey addresses one index pointer: (model, attribute, value) -> id.
type IndexKey struct {
	Model     string
	Attribute string
	Value     string
}
