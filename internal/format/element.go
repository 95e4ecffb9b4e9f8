package format

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/xtxerr/batcha/internal/errors"
)

// Array entries are encoded independently of each other, so entries of one
// array may differ in length. Numeric and bool specs encode a variable-length
// vector (a scalar is a vector of one), string specs encode the raw bytes, and
// object specs use the object codec.

// EncodeElement serializes one array entry.
func (s Spec) EncodeElement(v any) ([]byte, error) {
	switch s.kind {
	case KindObject:
		return EncodeObject(v)

	case KindString:
		str, ok := asString(v)
		if !ok {
			return nil, typeError(s, v)
		}
		return []byte(str), nil

	case KindFloat32:
		vals, err := vector(s, v, asFloat)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 0, 4*len(vals))
		for _, f := range vals {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(f)))
		}
		return buf, nil

	case KindFloat64:
		vals, err := vector(s, v, asFloat)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 0, 8*len(vals))
		for _, f := range vals {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
		}
		return buf, nil

	case KindInt64:
		vals, err := vector(s, v, asInt)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 0, 8*len(vals))
		for _, i := range vals {
			buf = binary.LittleEndian.AppendUint64(buf, uint64(i))
		}
		return buf, nil

	case KindBool:
		vals, err := vector(s, v, asBool)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, len(vals))
		for i, b := range vals {
			if b {
				buf[i] = 1
			}
		}
		return buf, nil
	}

	return nil, fmt.Errorf("encode element with %s: %w", s, errors.ErrInvalidFormat)
}

// DecodeElement parses one array entry. Numeric specs decode to []float32,
// []float64 or []int64, bool to []bool, string to string.
func (s Spec) DecodeElement(b []byte) (any, error) {
	switch s.kind {
	case KindObject:
		return DecodeObject(b)

	case KindString:
		return string(b), nil

	case KindFloat32:
		if len(b)%4 != 0 {
			return nil, fmt.Errorf("float32 entry of %d bytes: %w", len(b), errors.ErrCodec)
		}
		out := make([]float32, len(b)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
		}
		return out, nil

	case KindFloat64:
		if len(b)%8 != 0 {
			return nil, fmt.Errorf("float64 entry of %d bytes: %w", len(b), errors.ErrCodec)
		}
		out := make([]float64, len(b)/8)
		for i := range out {
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
		}
		return out, nil

	case KindInt64:
		if len(b)%8 != 0 {
			return nil, fmt.Errorf("int64 entry of %d bytes: %w", len(b), errors.ErrCodec)
		}
		out := make([]int64, len(b)/8)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(b[8*i:]))
		}
		return out, nil

	case KindBool:
		out := make([]bool, len(b))
		for i, c := range b {
			out[i] = c != 0
		}
		return out, nil
	}

	return nil, fmt.Errorf("decode element with %s: %w", s, errors.ErrInvalidFormat)
}

// vector flattens a scalar or a slice/array of scalars with conv.
func vector[T any](s Spec, v any, conv func(any) (T, bool)) ([]T, error) {
	if x, ok := conv(v); ok {
		return []T{x}, nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, typeError(s, v)
	}
	out := make([]T, rv.Len())
	for i := range out {
		x, ok := conv(rv.Index(i).Interface())
		if !ok {
			return nil, fmt.Errorf("element %d: %w", i, typeError(s, rv.Index(i).Interface()))
		}
		out[i] = x
	}
	return out, nil
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}
