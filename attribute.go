package tiered

import (
	"context"
	"regexp"
	"strings"

	"github.com/unkn0wn-root/tiered/value"
)

// Tier is a set of storage tiers.
type Tier uint8

const (
	Fast Tier = 1 << iota
	Durable

	Both = Fast | Durable
)

func (t Tier) Has(x Tier) bool { return t&x == x && x != 0 }

func (t Tier) String() string {
	switch t {
	case Fast:
		return "fast"
	case Durable:
		return "durable"
	case Both:
		return "fast+durable"
	case 0:
		return "none"
	}
	return "tier(?)"
}

// tiers lists the single tiers in write order.
var tiers = [...]Tier{Fast, Durable}

// Mode selects how the transform pipeline treats guarded, hidden and
// virtual attributes.
type Mode uint8

const (
	// Raw is internal access: nothing is stripped.
	Raw Mode = iota
	// User is external access: guarded and virtual attributes are dropped on
	// input, hidden ones on output.
	User
)

// Attribute is the static declaration of one model attribute.
// Build it with Attr and options; the registry freezes it at Seal.
type Attribute struct {
	Name         string
	Type         value.Type
	Tiers        Tier
	PrimaryKey   bool
	Index        bool
	ReplaceIndex bool
	Counter      bool
	Required     bool
	Guarded      bool
	Hidden       bool
	Virtual      bool

	Default     any
	DefaultFunc func() any

	Enum      []string
	Min, Max  *float64
	Pattern   *regexp.Regexp
	MaxLength int

	Relation *Relation

	Input       func(tc *TransformContext, v any) any
	Output      func(tc *TransformContext, v any) any
	OutputAsync func(ctx context.Context, tc *TransformContext, v any) (any, error)
	Fetch       func(ctx context.Context, tc *TransformContext, v any) (any, error)
	Save        func(ctx context.Context, tc *TransformContext, v any) (any, error)
}

type AttrOption func(*Attribute)

// Attr declares an attribute.
func Attr(name string, t value.Type, opts ...AttrOption) Attribute {
	a := Attribute{Name: name, Type: t}
	for _, o := range opts {
		o(&a)
	}
	return a
}

// In places the attribute in the given tiers.
func In(t Tier) AttrOption { return func(a *Attribute) { a.Tiers |= t } }

// Cached is shorthand for In(Fast).
func Cached() AttrOption { return In(Fast) }

// Stored is shorthand for In(Durable).
func Stored() AttrOption { return In(Durable) }

func PrimaryKey() AttrOption { return func(a *Attribute) { a.PrimaryKey = true } }

// Indexed enforces that a value maps to at most one id.
func Indexed() AttrOption { return func(a *Attribute) { a.Index = true } }

// ReplaceIndex is Indexed plus retiring the previous pointer when the value changes.
func ReplaceIndex() AttrOption {
	return func(a *Attribute) { a.Index, a.ReplaceIndex = true, true }
}

// Counter makes writes relative deltas applied atomically by the fast tier.
func Counter() AttrOption { return func(a *Attribute) { a.Counter = true } }

func Required() AttrOption { return func(a *Attribute) { a.Required = true } }
func Guarded() AttrOption  { return func(a *Attribute) { a.Guarded = true } }
func Hidden() AttrOption   { return func(a *Attribute) { a.Hidden = true } }

// Virtual attributes have no storage slot; their values come from hooks.
func Virtual() AttrOption { return func(a *Attribute) { a.Virtual = true } }

func Default(v any) AttrOption { return func(a *Attribute) { a.Default = v } }

func DefaultFunc(f func() any) AttrOption { return func(a *Attribute) { a.DefaultFunc = f } }

func OneOf(vals ...string) AttrOption {
	return func(a *Attribute) { a.Enum = append(a.Enum, vals...) }
}

func Range(min, max float64) AttrOption {
	return func(a *Attribute) { a.Min, a.Max = &min, &max }
}

func Pattern(re *regexp.Regexp) AttrOption { return func(a *Attribute) { a.Pattern = re } }

func MaxLength(n int) AttrOption { return func(a *Attribute) { a.MaxLength = n } }

// Related declares a virtual relation holder pointing at model target.
func Related(kind RelationKind, target string) AttrOption {
	return func(a *Attribute) {
		a.Relation = &Relation{Kind: kind, Target: target}
		a.Virtual = true
	}
}

func OnInput(f func(tc *TransformContext, v any) any) AttrOption {
	return func(a *Attribute) { a.Input = f }
}

func OnOutput(f func(tc *TransformContext, v any) any) AttrOption {
	return func(a *Attribute) { a.Output = f }
}

func OnOutputAsync(f func(ctx context.Context, tc *TransformContext, v any) (any, error)) AttrOption {
	return func(a *Attribute) { a.OutputAsync = f }
}

func OnFetch(f func(ctx context.Context, tc *TransformContext, v any) (any, error)) AttrOption {
	return func(a *Attribute) { a.Fetch = f }
}

func OnSave(f func(ctx context.Context, tc *TransformContext, v any) (any, error)) AttrOption {
	return func(a *Attribute) { a.Save = f }
}

// fastOnly reports an attribute the durable tier never sees.
func (a *Attribute) fastOnly() bool { return a.Tiers == Fast }

func (a *Attribute) defaultValue() (any, bool) {
	switch {
	case a.DefaultFunc != nil:
		return a.DefaultFunc(), true
	case a.Default != nil:
		return a.Default, true
	case a.Relation != nil:
		v := a.Relation.Kind.DefaultValue()
		return v, v != nil
	case a.Counter:
		if a.Type == value.Float {
			return float64(0), true
		}
		return int64(0), true
	}
	return nil, false
}

// validate checks one declaration in isolation.
func (a *Attribute) validate(model string) error {
	fail := func(reason string) error {
		return &ConfigError{Model: model, Attribute: a.Name, Reason: reason}
	}
	switch {
	case strings.TrimSpace(a.Name) == "":
		return &ConfigError{Model: model, Reason: "attribute without a name"}
	case strings.HasPrefix(a.Name, "_"):
		return fail("names starting with _ are reserved")
	case !a.Type.Valid():
		return fail("type is required")
	case a.Virtual && a.Tiers != 0:
		return fail("virtual attribute cannot live in a tier")
	case !a.Virtual && a.Tiers == 0:
		return fail("no tier specified")
	case a.Index && !a.Type.Indexable():
		return fail("indexed attribute must be string or integer")
	case a.Index && !a.Tiers.Has(Fast):
		return fail("indexed attribute must be in the fast tier")
	case a.Counter && !a.Type.Numeric():
		return fail("counter must be numeric")
	case a.Counter && !a.Tiers.Has(Fast):
		return fail("counter must be in the fast tier")
	case a.Counter && a.Index:
		return fail("counter cannot be indexed")
	case a.Type == value.Enum && len(a.Enum) == 0:
		return fail("enum without values")
	case a.Relation != nil && !a.Relation.Kind.valid():
		return fail("unknown relation kind")
	}
	if a.PrimaryKey {
		switch {
		case a.Hidden:
			return fail("primary key cannot be hidden")
		case !a.Tiers.Has(Fast):
			return fail("primary key must be in the fast tier")
		case !a.Type.Indexable():
			return fail("primary key must be string or integer")
		case a.Virtual || a.Counter:
			return fail("primary key must be a plain attribute")
		}
	}
	return nil
}
