package serial

import (
	"testing"
	"time"

	"github.com/unkn0wn-root/tiered/value"
)

func samples() map[value.Type][]any {
	return map[value.Type][]any{
		value.String:   {"", "hello", "ünïcode"},
		value.Enum:     {"red"},
		value.Integer:  {int64(0), int64(-17), int64(1 << 40)},
		value.Float:    {0.0, -2.5, 3.141592653589793},
		value.Boolean:  {true, false},
		value.Date:     {time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)},
		value.Datetime: {time.Date(2024, 2, 29, 23, 59, 58, 999000000, time.UTC), time.UnixMilli(1).UTC()},
	}
}

func TestTablesRoundTrip(t *testing.T) {
	tables := map[string]Table{"strings": Strings(), "sql": SQL(), "native": Native()}
	for name, tbl := range tables {
		for typ, vals := range samples() {
			for _, v := range vals {
				raw, err := tbl.Serialize(typ, v)
				if err != nil {
					t.Fatalf("%s: Serialize(%s, %v): %v", name, typ, v, err)
				}
				back, err := tbl.Unserialize(typ, raw)
				if err != nil {
					t.Fatalf("%s: Unserialize(%s, %v): %v", name, typ, raw, err)
				}
				if !value.Equal(back, v) {
					t.Fatalf("%s: round trip %s: %v -> %v -> %v", name, typ, v, raw, back)
				}
			}
		}
	}
}

func TestStringsWireForms(t *testing.T) {
	tbl := Strings()
	if raw, _ := tbl.Serialize(value.Boolean, true); raw != "1" {
		t.Fatalf("bool serialized as %v", raw)
	}
	if raw, _ := tbl.Serialize(value.Date, time.Date(2021, 5, 4, 0, 0, 0, 0, time.UTC)); raw != "20210504" {
		t.Fatalf("date serialized as %v", raw)
	}
}

func TestSQLBooleanIsInteger(t *testing.T) {
	raw, err := SQL().Serialize(value.Boolean, false)
	if err != nil || raw != int64(0) {
		t.Fatalf("sql bool = %v (%T), err=%v", raw, raw, err)
	}
}

func TestSerializeAllUnknownName(t *testing.T) {
	_, err := Strings().SerializeAll(map[string]value.Type{"a": value.String}, value.Values{"b": "x"})
	if err == nil {
		t.Fatalf("expected error for unknown attribute")
	}
}
