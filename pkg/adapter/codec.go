package adapter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/redbco/redb-persist/pkg/shape"
)

// TimeLayout is the text encoding of times on engines without a native
// timestamp type.
const TimeLayout = time.RFC3339Nano

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

func encode(f Features, kind shape.Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch kind {
	case shape.Bool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: expected bool, got %T", ErrInvalidValue, v)
		}
		if f.BoolAsInt {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
		return b, nil
	case shape.Int8, shape.Int16, shape.Int32, shape.Int64, shape.Reference, shape.Array:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return n, nil
	case shape.Float32, shape.Float64:
		return toFloat64(v)
	case shape.String, shape.Enum:
		return toString(v)
	case shape.Time:
		t, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%w: expected time.Time, got %T", ErrInvalidValue, v)
		}
		if f.TimeAsText {
			return t.UTC().Format(TimeLayout), nil
		}
		return t.UTC(), nil
	case shape.Bytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
		return nil, fmt.Errorf("%w: expected []byte, got %T", ErrInvalidValue, v)
	}
	return nil, fmt.Errorf("%w: unsupported kind %s", ErrInvalidValue, kind)
}

// decode normalizes driver quirks: booleans as integers or text, integers
// and floats as text or byte slices, and times as text.
func decode(kind shape.Kind, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch kind {
	case shape.Bool:
		return toBool(v)
	case shape.Int8:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return int8(n), nil
	case shape.Int16:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return int16(n), nil
	case shape.Int32:
		n, err := toInt64(v)
		if err != nil {
			return nil, err
		}
		return int32(n), nil
	case shape.Int64, shape.Reference, shape.Array:
		return toInt64(v)
	case shape.Float32:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		return float32(f), nil
	case shape.Float64:
		return toFloat64(v)
	case shape.String, shape.Enum:
		return toString(v)
	case shape.Time:
		return toTime(v)
	case shape.Bytes:
		switch b := v.(type) {
		case []byte:
			return append([]byte(nil), b...), nil
		case string:
			return []byte(b), nil
		}
		return nil, fmt.Errorf("%w: cannot read %T as bytes", ErrInvalidValue, v)
	}
	return nil, fmt.Errorf("%w: unsupported kind %s", ErrInvalidValue, kind)
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	case float64:
		return b != 0, nil
	case []byte:
		return parseBool(string(b))
	case string:
		return parseBool(b)
	}
	n, err := toInt64(v)
	if err != nil {
		return false, err
	}
	return n != 0, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "y", "yes":
		return true, nil
	case "0", "f", "false", "n", "no":
		return false, nil
	}
	return false, fmt.Errorf("%w: cannot read %q as bool", ErrInvalidValue, s)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("%w: %d overflows int64", ErrInvalidValue, n)
		}
		return int64(n), nil
	case float32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return parseInt(string(n))
	case string:
		return parseInt(n)
	case fmt.Stringer:
		return parseInt(n.String())
	}
	return 0, fmt.Errorf("%w: cannot read %T as integer", ErrInvalidValue, v)
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot read %q as integer", ErrInvalidValue, s)
	}
	return int64(f), nil
}

func toFloat64(v any) (float64, error) {
	switch f := v.(type) {
	case float32:
		return float64(f), nil
	case float64:
		return f, nil
	case []byte:
		return parseFloat(string(f))
	case string:
		return parseFloat(f)
	case fmt.Stringer:
		return parseFloat(f.String())
	}
	n, err := toInt64(v)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot read %T as float", ErrInvalidValue, v)
	}
	return float64(n), nil
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot read %q as float", ErrInvalidValue, s)
	}
	return f, nil
}

func toString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	}
	return "", fmt.Errorf("%w: expected string, got %T", ErrInvalidValue, v)
}

func toTime(v any) (time.Time, error) {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return time.Time{}, fmt.Errorf("%w: cannot read %T as time", ErrInvalidValue, v)
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot read %q as time", ErrInvalidValue, s)
}

// ToFloat64 reads an aggregate result as a float. NULL reads as NaN.
func ToFloat64(v any) (float64, error) {
	if v == nil {
		return math.NaN(), nil
	}
	return toFloat64(v)
}
