package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ConvertError reports a value that cannot be represented as the requested type.
type ConvertError struct {
	Type  Type
	Value any
}

func (e *ConvertError) Error() string {
	return fmt.Sprintf("cannot convert %v (%T) to %s", e.Value, e.Value, e.Type)
}

// Coerce converts v to the canonical representation of t.
func Coerce(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case String, Enum:
		return toString(t, v)
	case Integer:
		return toInt(v)
	case Float:
		return toFloat(v)
	case Boolean:
		return toBool(v)
	case Date:
		tm, err := toTime(t, v)
		if err != nil {
			return nil, err
		}
		return Day(tm), nil
	case Datetime:
		tm, err := toTime(t, v)
		if err != nil {
			return nil, err
		}
		return Millis(tm), nil
	}
	return nil, &ConvertError{Type: t, Value: v}
}

// Key renders an indexable value as the string stored in index pointers.
func Key(t Type, v any) (string, error) {
	c, err := Coerce(t, v)
	if err != nil {
		return "", err
	}
	switch x := c.(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	}
	return "", &ConvertError{Type: t, Value: v}
}

func toString(t Type, v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case fmt.Stringer:
		return x.String(), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	return nil, &ConvertError{Type: t, Value: v}
}

func toInt(v any) (any, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > math.MaxInt64 {
			break
		}
		return int64(x), nil
	case float32:
		return toInt(float64(x))
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			break
		}
		return int64(x), nil
	case json.Number:
		n, err := x.Int64()
		if err == nil {
			return n, nil
		}
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err == nil {
			return n, nil
		}
	}
	return nil, &ConvertError{Type: Integer, Value: v}
}

func toFloat(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err == nil {
			return f, nil
		}
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err == nil {
			return f, nil
		}
	default:
		if n, err := toInt(v); err == nil {
			return float64(n.(int64)), nil
		}
	}
	return nil, &ConvertError{Type: Float, Value: v}
}

func toBool(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "t", "yes", "on":
			return true, nil
		case "0", "false", "f", "no", "off", "":
			return false, nil
		}
	default:
		if n, err := toInt(v); err == nil {
			switch n.(int64) {
			case 0:
				return false, nil
			case 1:
				return true, nil
			}
		}
	}
	return nil, &ConvertError{Type: Boolean, Value: v}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02 15:04:05",
	DateLayout,
}

func toTime(t Type, v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x, nil
	case *time.Time:
		if x != nil {
			return *x, nil
		}
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range timeLayouts {
			if tm, err := time.Parse(layout, s); err == nil {
				return tm, nil
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms), nil
		}
	default:
		if n, err := toInt(v); err == nil {
			return time.UnixMilli(n.(int64)), nil
		}
	}
	return time.Time{}, &ConvertError{Type: t, Value: v}
}

func asTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case *time.Time:
		if x != nil {
			return *x, true
		}
	}
	return time.Time{}, false
}
