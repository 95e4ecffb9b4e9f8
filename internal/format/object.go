package format

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtxerr/batcha/internal/errors"
)

// Object values are persisted as serialized google.protobuf.Value messages.
// Every value is wrapped in an envelope {"t": type, "v": payload} naming its
// Go type, e.g. "int64", "[]float32" or "map[string][]any", so it reads back
// with the type it was loaded with. Integers travel as decimal strings and
// byte slices as base64, so neither loses precision. Elements of []any and
// map[string]any carry their own envelope. Named types read back as their
// underlying type; structs, pointers inside containers, and non-string map
// keys are rejected.

const (
	typeField  = "t"
	valueField = "v"
	nilType    = "nil"
	anyType    = "any"
)

var marshalOpts = proto.MarshalOptions{Deterministic: true}

var scalarTypes = map[string]reflect.Type{
	"bool":    reflect.TypeFor[bool](),
	"string":  reflect.TypeFor[string](),
	"int":     reflect.TypeFor[int](),
	"int8":    reflect.TypeFor[int8](),
	"int16":   reflect.TypeFor[int16](),
	"int32":   reflect.TypeFor[int32](),
	"int64":   reflect.TypeFor[int64](),
	"uint":    reflect.TypeFor[uint](),
	"uint8":   reflect.TypeFor[uint8](),
	"uint16":  reflect.TypeFor[uint16](),
	"uint32":  reflect.TypeFor[uint32](),
	"uint64":  reflect.TypeFor[uint64](),
	"float32": reflect.TypeFor[float32](),
	"float64": reflect.TypeFor[float64](),
	anyType:   reflect.TypeFor[any](),
}

// EncodeObject serializes v.
func EncodeObject(v any) ([]byte, error) {
	env, err := envelope(reflect.ValueOf(v))
	if err != nil {
		return nil, fmt.Errorf("encode object %T: %w", v, err)
	}
	b, err := marshalOpts.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal object: %v: %w", err, errors.ErrCodec)
	}
	return b, nil
}

// DecodeObject parses a value produced by EncodeObject.
func DecodeObject(b []byte) (any, error) {
	var pv structpb.Value
	if err := proto.Unmarshal(b, &pv); err != nil {
		return nil, fmt.Errorf("unmarshal object: %v: %w", err, errors.ErrCodec)
	}
	v, err := unwrap(&pv)
	if err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return v, nil
}

// envelope wraps rv together with the name of its dynamic type.
func envelope(rv reflect.Value) (*structpb.Value, error) {
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			rv = reflect.Value{}
			break
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
			typeField: structpb.NewStringValue(nilType),
		}}), nil
	}

	name, err := typeName(rv.Type())
	if err != nil {
		return nil, err
	}
	payload, err := encodeValue(rv, rv.Type())
	if err != nil {
		return nil, err
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		typeField:  structpb.NewStringValue(name),
		valueField: payload,
	}}), nil
}

// typeName renders t in the grammar parseType reads.
func typeName(t reflect.Type) (string, error) {
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return t.Kind().String(), nil
	case reflect.Interface:
		return anyType, nil
	case reflect.Slice:
		elem, err := typeName(t.Elem())
		return "[]" + elem, err
	case reflect.Array:
		elem, err := typeName(t.Elem())
		return "[" + strconv.Itoa(t.Len()) + "]" + elem, err
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return "", fmt.Errorf("map key %s: %w", t.Key(), errors.ErrValueType)
		}
		elem, err := typeName(t.Elem())
		return "map[string]" + elem, err
	}
	return "", fmt.Errorf("%s: %w", t, errors.ErrValueType)
}

// parseType is the inverse of typeName.
func parseType(name string) (reflect.Type, error) {
	switch {
	case strings.HasPrefix(name, "[]"):
		elem, err := parseType(name[2:])
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil

	case strings.HasPrefix(name, "map[string]"):
		elem, err := parseType(name[len("map[string]"):])
		if err != nil {
			return nil, err
		}
		return reflect.MapOf(reflect.TypeFor[string](), elem), nil

	case strings.HasPrefix(name, "["):
		end := strings.IndexByte(name, ']')
		if end < 0 {
			break
		}
		n, err := strconv.Atoi(name[1:end])
		if err != nil || n < 0 {
			break
		}
		elem, err := parseType(name[end+1:])
		if err != nil {
			return nil, err
		}
		return reflect.ArrayOf(n, elem), nil

	default:
		if t, ok := scalarTypes[name]; ok {
			return t, nil
		}
	}
	return nil, fmt.Errorf("unknown object type %q: %w", name, errors.ErrCodec)
}

// encodeValue renders rv, whose static type is t, without an envelope.
func encodeValue(rv reflect.Value, t reflect.Type) (*structpb.Value, error) {
	switch t.Kind() {
	case reflect.Interface:
		return envelope(rv)
	case reflect.Bool:
		return structpb.NewBoolValue(rv.Bool()), nil
	case reflect.String:
		return structpb.NewStringValue(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return structpb.NewStringValue(strconv.FormatInt(rv.Int(), 10)), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return structpb.NewStringValue(strconv.FormatUint(rv.Uint(), 10)), nil
	case reflect.Float32, reflect.Float64:
		return structpb.NewNumberValue(rv.Float()), nil

	case reflect.Slice:
		if rv.IsNil() {
			return structpb.NewNullValue(), nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			return structpb.NewStringValue(base64.StdEncoding.EncodeToString(rv.Bytes())), nil
		}
		fallthrough
	case reflect.Array:
		list := &structpb.ListValue{Values: make([]*structpb.Value, rv.Len())}
		for i := range list.Values {
			e, err := encodeValue(rv.Index(i), t.Elem())
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			list.Values[i] = e
		}
		return structpb.NewListValue(list), nil

	case reflect.Map:
		if rv.IsNil() {
			return structpb.NewNullValue(), nil
		}
		fields := make(map[string]*structpb.Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			e, err := encodeValue(iter.Value(), t.Elem())
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", iter.Key().String(), err)
			}
			fields[iter.Key().String()] = e
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
	}
	return nil, fmt.Errorf("%s: %w", t, errors.ErrValueType)
}

// unwrap reads an envelope back into a Go value.
func unwrap(pv *structpb.Value) (any, error) {
	sv := pv.GetStructValue()
	if sv == nil {
		return nil, fmt.Errorf("object is not an envelope: %w", errors.ErrCodec)
	}
	name := sv.GetFields()[typeField].GetStringValue()
	if name == nilType {
		return nil, nil
	}
	t, err := parseType(name)
	if err != nil {
		return nil, err
	}
	payload, ok := sv.GetFields()[valueField]
	if !ok {
		return nil, fmt.Errorf("%s envelope without value: %w", name, errors.ErrCodec)
	}
	rv, err := decodeValue(payload, t)
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

// decodeValue reads a payload of static type t.
func decodeValue(pv *structpb.Value, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	mismatch := func() (reflect.Value, error) {
		return reflect.Value{}, fmt.Errorf("%T payload for %s: %w", pv.GetKind(), t, errors.ErrCodec)
	}

	switch t.Kind() {
	case reflect.Interface:
		v, err := unwrap(pv)
		if err != nil {
			return reflect.Value{}, err
		}
		if v != nil {
			out.Set(reflect.ValueOf(v))
		}
		return out, nil

	case reflect.Bool:
		k, ok := pv.GetKind().(*structpb.Value_BoolValue)
		if !ok {
			return mismatch()
		}
		out.SetBool(k.BoolValue)
		return out, nil

	case reflect.String:
		k, ok := pv.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return mismatch()
		}
		out.SetString(k.StringValue)
		return out, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		k, ok := pv.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return mismatch()
		}
		i, err := strconv.ParseInt(k.StringValue, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%s: %v: %w", t, err, errors.ErrCodec)
		}
		out.SetInt(i)
		return out, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		k, ok := pv.GetKind().(*structpb.Value_StringValue)
		if !ok {
			return mismatch()
		}
		u, err := strconv.ParseUint(k.StringValue, 10, t.Bits())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%s: %v: %w", t, err, errors.ErrCodec)
		}
		out.SetUint(u)
		return out, nil

	case reflect.Float32, reflect.Float64:
		k, ok := pv.GetKind().(*structpb.Value_NumberValue)
		if !ok {
			return mismatch()
		}
		out.SetFloat(k.NumberValue)
		return out, nil

	case reflect.Slice:
		switch k := pv.GetKind().(type) {
		case *structpb.Value_NullValue:
			return out, nil
		case *structpb.Value_StringValue:
			if t.Elem().Kind() != reflect.Uint8 {
				return mismatch()
			}
			b, err := base64.StdEncoding.DecodeString(k.StringValue)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("%s: %v: %w", t, err, errors.ErrCodec)
			}
			out.SetBytes(b)
			return out, nil
		case *structpb.Value_ListValue:
			vals := k.ListValue.GetValues()
			out = reflect.MakeSlice(t, len(vals), len(vals))
			return out, decodeList(out, vals, t)
		}
		return mismatch()

	case reflect.Array:
		k, ok := pv.GetKind().(*structpb.Value_ListValue)
		if !ok {
			return mismatch()
		}
		vals := k.ListValue.GetValues()
		if len(vals) != t.Len() {
			return reflect.Value{}, fmt.Errorf("%d elements for %s: %w", len(vals), t, errors.ErrCodec)
		}
		return out, decodeList(out, vals, t)

	case reflect.Map:
		switch k := pv.GetKind().(type) {
		case *structpb.Value_NullValue:
			return out, nil
		case *structpb.Value_StructValue:
			fields := k.StructValue.GetFields()
			out = reflect.MakeMapWithSize(t, len(fields))
			for key, fv := range fields {
				e, err := decodeValue(fv, t.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("key %q: %w", key, err)
				}
				out.SetMapIndex(reflect.ValueOf(key).Convert(t.Key()), e)
			}
			return out, nil
		}
		return mismatch()
	}
	return reflect.Value{}, fmt.Errorf("%s: %w", t, errors.ErrCodec)
}

func decodeList(out reflect.Value, vals []*structpb.Value, t reflect.Type) error {
	for i, ev := range vals {
		e, err := decodeValue(ev, t.Elem())
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(e)
	}
	return nil
}
