// Package value defines attribute types and the canonical Go representation
// of attribute values.
//
// Canonical forms:
//
//	String, Enum -> string
//	Integer      -> int64
//	Float        -> float64
//	Boolean      -> bool
//	Date         -> time.Time (UTC midnight)
//	Datetime     -> time.Time (UTC, millisecond precision)
//
// nil is a valid value of every type and means "unset".
package value

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

type Type uint8

const (
	Invalid Type = iota
	String
	Integer
	Boolean
	Float
	Date
	Datetime
	Enum
)

var typeNames = [...]string{
	Invalid:  "invalid",
	String:   "string",
	Integer:  "integer",
	Boolean:  "boolean",
	Float:    "float",
	Date:     "date",
	Datetime: "datetime",
	Enum:     "enum",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

// ParseType maps a declared type name to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string":
		return String, nil
	case "integer", "int":
		return Integer, nil
	case "boolean", "bool":
		return Boolean, nil
	case "float", "number":
		return Float, nil
	case "date":
		return Date, nil
	case "datetime", "timestamp":
		return Datetime, nil
	case "enum":
		return Enum, nil
	}
	return Invalid, fmt.Errorf("value: unknown type %q", s)
}

func (t Type) Valid() bool { return t > Invalid && t <= Enum }

// Numeric reports whether values of t support relative increments.
func (t Type) Numeric() bool { return t == Integer || t == Float }

// Indexable reports whether values of t can back a uniqueness index.
func (t Type) Indexable() bool { return t == String || t == Integer }

// Values maps attribute names to values.
type Values map[string]any

func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	out := make(Values, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

// Names returns the keys of v in ascending order.
func (v Values) Names() []string {
	out := make([]string, 0, len(v))
	for k := range v {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Pick returns the subset of v whose keys are in names. Missing names are skipped.
func (v Values) Pick(names []string) Values {
	out := make(Values, len(names))
	for _, n := range names {
		if x, ok := v[n]; ok {
			out[n] = x
		}
	}
	return out
}

// Equal reports whether two canonical values are the same value.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ta, ok := a.(interface{ Equal(any) bool }); ok {
		return ta.Equal(b)
	}
	if at, ok := asTime(a); ok {
		bt, ok := asTime(b)
		return ok && at.Equal(bt)
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type().Comparable() && rb.Type().Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
