package format

import (
	"fmt"
	"math"

	"github.com/xtxerr/batcha/internal/errors"
)

// Coerce converts a buffered value into the Go value persisted for s.
// A nil value is stored as NULL for every kind.
func (s Spec) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch s.kind {
	case KindString:
		str, ok := asString(v)
		if !ok {
			return nil, typeError(s, v)
		}
		return truncate(str, s.width), nil

	case KindFloat32:
		f, ok := asFloat(v)
		if !ok {
			return nil, typeError(s, v)
		}
		return float32(f), nil

	case KindFloat64:
		f, ok := asFloat(v)
		if !ok {
			return nil, typeError(s, v)
		}
		return f, nil

	case KindInt64:
		i, ok := asInt(v)
		if !ok {
			return nil, typeError(s, v)
		}
		return i, nil

	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, typeError(s, v)
		}
		return b, nil

	case KindObject:
		return EncodeObject(v)
	}

	return nil, fmt.Errorf("coerce with %s: %w", s, errors.ErrInvalidFormat)
}

// Decode converts a value scanned from the container back into the Go value
// a caller loaded (modulo coercion).
func (s Spec) Decode(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch s.kind {
	case KindObject:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("object column holds %T: %w", v, errors.ErrCodec)
		}
		return DecodeObject(b)
	case KindFloat32:
		// FLOAT columns may surface as float64 after a cast during migration.
		if f, ok := v.(float64); ok {
			return float32(f), nil
		}
	case KindString:
		if b, ok := v.([]byte); ok {
			return string(b), nil
		}
	}
	return v, nil
}

func typeError(s Spec, v any) error {
	return fmt.Errorf("%T into %s: %w", v, s, errors.ErrValueType)
}

func asString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	case fmt.Stringer:
		return t.String(), true
	}
	return "", false
}

// truncate cuts str to at most width characters, the unit DuckDB's left()
// counts in, so Go-side and SQL-side truncation agree.
func truncate(str string, width int) string {
	if len(str) <= width {
		return str
	}
	n := 0
	for i := range str {
		if n == width {
			return str[:i]
		}
		n++
	}
	return str
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		if uint64(t) > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case float32:
		return integral(float64(t))
	case float64:
		return integral(t)
	}
	return 0, false
}

func integral(f float64) (int64, bool) {
	// float64(math.MaxInt64) rounds up to 1<<63, which int64 cannot hold.
	if f != math.Trunc(f) || f >= 1<<63 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}
