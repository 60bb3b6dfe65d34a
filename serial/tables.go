package serial

import (
	"strconv"
	"time"

	"github.com/unkn0wn-root/tiered/value"
)

// Strings serializes every type to a string. Booleans become "0"/"1",
// dates a packed yyyymmdd integer, datetimes unix milliseconds.
func Strings() Table {
	str := func(v any) (any, error) { return v.(string), nil }
	return Table{
		value.String: {Serialize: str, Unserialize: coerceWith(value.String)},
		value.Enum:   {Serialize: str, Unserialize: coerceWith(value.Enum)},
		value.Integer: {
			Serialize:   func(v any) (any, error) { return strconv.FormatInt(v.(int64), 10), nil },
			Unserialize: coerceWith(value.Integer),
		},
		value.Float: {
			Serialize:   func(v any) (any, error) { return strconv.FormatFloat(v.(float64), 'g', -1, 64), nil },
			Unserialize: coerceWith(value.Float),
		},
		value.Boolean: {
			Serialize: func(v any) (any, error) {
				if v.(bool) {
					return "1", nil
				}
				return "0", nil
			},
			Unserialize: coerceWith(value.Boolean),
		},
		value.Date: {
			Serialize:   func(v any) (any, error) { return strconv.FormatInt(value.PackDate(v.(time.Time)), 10), nil },
			Unserialize: unpackDate,
		},
		value.Datetime: {
			Serialize:   func(v any) (any, error) { return strconv.FormatInt(v.(time.Time).UnixMilli(), 10), nil },
			Unserialize: coerceWith(value.Datetime),
		},
	}
}

// SQL keeps numbers native, stores booleans as 0/1, dates as ISO strings
// and datetimes as unix milliseconds.
func SQL() Table {
	return Table{
		value.String:  {Serialize: identity, Unserialize: coerceWith(value.String)},
		value.Enum:    {Serialize: identity, Unserialize: coerceWith(value.Enum)},
		value.Integer: {Serialize: identity, Unserialize: coerceWith(value.Integer)},
		value.Float:   {Serialize: identity, Unserialize: coerceWith(value.Float)},
		value.Boolean: {
			Serialize: func(v any) (any, error) {
				if v.(bool) {
					return int64(1), nil
				}
				return int64(0), nil
			},
			Unserialize: coerceWith(value.Boolean),
		},
		value.Date: {
			Serialize:   func(v any) (any, error) { return v.(time.Time).Format(value.DateLayout), nil },
			Unserialize: coerceWith(value.Date),
		},
		value.Datetime: {
			Serialize:   func(v any) (any, error) { return v.(time.Time).UnixMilli(), nil },
			Unserialize: coerceWith(value.Datetime),
		},
	}
}

// Native keeps booleans and numbers native and writes dates and datetimes as
// ISO-8601 strings. Suits document stores with a native boolean type.
func Native() Table {
	return Table{
		value.String:  {Serialize: identity, Unserialize: coerceWith(value.String)},
		value.Enum:    {Serialize: identity, Unserialize: coerceWith(value.Enum)},
		value.Integer: {Serialize: identity, Unserialize: coerceWith(value.Integer)},
		value.Float:   {Serialize: identity, Unserialize: coerceWith(value.Float)},
		value.Boolean: {Serialize: identity, Unserialize: coerceWith(value.Boolean)},
		value.Date: {
			Serialize:   func(v any) (any, error) { return v.(time.Time).Format(value.DateLayout), nil },
			Unserialize: coerceWith(value.Date),
		},
		value.Datetime: {
			Serialize:   func(v any) (any, error) { return v.(time.Time).Format("2006-01-02T15:04:05.000Z07:00"), nil },
			Unserialize: coerceWith(value.Datetime),
		},
	}
}

func unpackDate(raw any) (any, error) {
	n, err := value.Coerce(value.Integer, raw)
	if err != nil {
		return nil, err
	}
	return value.UnpackDate(n.(int64))
}
