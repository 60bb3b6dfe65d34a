package value

import (
	"testing"
	"time"
)

func TestCoerceCanonicalForms(t *testing.T) {
	ts := time.Date(2024, 3, 9, 17, 45, 12, 123456789, time.FixedZone("x", 3600))
	cases := []struct {
		typ  Type
		in   any
		want any
	}{
		{String, "abc", "abc"},
		{String, 12, "12"},
		{Enum, []byte("red"), "red"},
		{Integer, 7, int64(7)},
		{Integer, "42", int64(42)},
		{Integer, float64(3), int64(3)},
		{Float, 2, float64(2)},
		{Float, "1.5", 1.5},
		{Boolean, "1", true},
		{Boolean, "false", false},
		{Boolean, 0, false},
		{Date, "2024-03-09", time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)},
		{Datetime, ts, time.Date(2024, 3, 9, 16, 45, 12, 123000000, time.UTC)},
	}
	for _, tc := range cases {
		got, err := Coerce(tc.typ, tc.in)
		if err != nil {
			t.Fatalf("Coerce(%s, %v): %v", tc.typ, tc.in, err)
		}
		if !Equal(got, tc.want) {
			t.Fatalf("Coerce(%s, %v) = %v (%T), want %v", tc.typ, tc.in, got, got, tc.want)
		}
	}
}

func TestCoerceRejects(t *testing.T) {
	bad := []struct {
		typ Type
		in  any
	}{
		{Integer, "x"},
		{Integer, 1.5},
		{Boolean, 3},
		{Date, "yesterday"},
		{Float, true},
	}
	for _, tc := range bad {
		if _, err := Coerce(tc.typ, tc.in); err == nil {
			t.Fatalf("Coerce(%s, %v) expected error", tc.typ, tc.in)
		}
	}
}

func TestCoerceNilStaysNil(t *testing.T) {
	got, err := Coerce(Integer, nil)
	if err != nil || got != nil {
		t.Fatalf("nil coerce: got=%v err=%v", got, err)
	}
}

func TestPackDateRoundTrip(t *testing.T) {
	d := time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)
	n := PackDate(d)
	if n != 19991231 {
		t.Fatalf("PackDate = %d", n)
	}
	back, err := UnpackDate(n)
	if err != nil || !back.Equal(d) {
		t.Fatalf("UnpackDate = %v err=%v", back, err)
	}
	if _, err := UnpackDate(20230230); err == nil {
		t.Fatalf("expected error for Feb 30")
	}
}

func TestParseType(t *testing.T) {
	for name, want := range map[string]Type{"string": String, "INT": Integer, "datetime": Datetime, "enum": Enum} {
		got, err := ParseType(name)
		if err != nil || got != want {
			t.Fatalf("ParseType(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseType("blob"); err == nil {
		t.Fatalf("expected unknown type error")
	}
}

func TestEqualSlices(t *testing.T) {
	if !Equal([]string{"a"}, []string{"a"}) {
		t.Fatalf("equal slices reported different")
	}
	if Equal([]string{"a"}, nil) {
		t.Fatalf("slice equal to nil")
	}
}
