// Package serial holds per-type serializer tables. A backend picks the table
// that matches its storage capabilities: a hash store keeps everything as
// strings, SQL keeps native numbers, document stores keep native booleans.
//
// Every table must satisfy Unserialize(Serialize(v)) == v for canonical
// values (see package value).
package serial

import (
	"fmt"

	"github.com/unkn0wn-root/tiered/value"
)

// Codec converts one canonical value to its raw storage form and back.
type Codec struct {
	Serialize   func(v any) (any, error)
	Unserialize func(raw any) (any, error)
}

// Table is a per-type codec table.
type Table map[value.Type]Codec

func (t Table) Serialize(typ value.Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	c, ok := t[typ]
	if !ok {
		return nil, fmt.Errorf("serial: no serializer for %s", typ)
	}
	v, err := value.Coerce(typ, v)
	if err != nil {
		return nil, err
	}
	return c.Serialize(v)
}

func (t Table) Unserialize(typ value.Type, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	c, ok := t[typ]
	if !ok {
		return nil, fmt.Errorf("serial: no serializer for %s", typ)
	}
	return c.Unserialize(raw)
}

// SerializeAll serializes every entry of vals using types. Unknown names fail.
func (t Table) SerializeAll(types map[string]value.Type, vals value.Values) (value.Values, error) {
	out := make(value.Values, len(vals))
	for name, v := range vals {
		typ, ok := types[name]
		if !ok {
			return nil, fmt.Errorf("serial: no type for %q", name)
		}
		raw, err := t.Serialize(typ, v)
		if err != nil {
			return nil, fmt.Errorf("serial: %s: %w", name, err)
		}
		out[name] = raw
	}
	return out, nil
}

// UnserializeAll is the inverse of SerializeAll.
func (t Table) UnserializeAll(types map[string]value.Type, raw value.Values) (value.Values, error) {
	out := make(value.Values, len(raw))
	for name, r := range raw {
		typ, ok := types[name]
		if !ok {
			return nil, fmt.Errorf("serial: no type for %q", name)
		}
		v, err := t.Unserialize(typ, r)
		if err != nil {
			return nil, fmt.Errorf("serial: %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func coerceWith(typ value.Type) func(any) (any, error) {
	return func(raw any) (any, error) { return value.Coerce(typ, raw) }
}

func identity(v any) (any, error) { return v, nil }
