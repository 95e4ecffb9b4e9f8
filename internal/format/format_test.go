package format

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	berrors "github.com/xtxerr/batcha/internal/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Spec
	}{
		{"string(64)", String(64)},
		{"STRING(8)", String(8)},
		{"string", String(DefaultStringWidth)},
		{"float32", Float32()},
		{"float", Float32()},
		{"float64", Float64()},
		{"int64", Int64()},
		{"bool", Bool()},
		{" object ", Object()},
	}

	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %s, want %s", tt.in, got, tt.want)
		}
		again, err := Parse(got.String())
		if err != nil || again != got {
			t.Errorf("round trip of %s gave %s (%v)", got, again, err)
		}
	}

	for _, bad := range []string{"", "string(0)", "string(x)", "complex128"} {
		if _, err := Parse(bad); !errors.Is(err, berrors.ErrInvalidFormat) {
			t.Errorf("Parse(%q): expected ErrInvalidFormat, got %v", bad, err)
		}
	}
}

func TestSpecValidity(t *testing.T) {
	if (Spec{}).IsValid() {
		t.Error("zero spec should be invalid")
	}
	if String(0).IsValid() {
		t.Error("zero-width string should be invalid")
	}
	if !Float32().IsValid() || Float32().SQLType() != "FLOAT" {
		t.Error("float32 should be valid and map to FLOAT")
	}
	if Object().CastableTo(Float32()) {
		t.Error("object should not cast to float32")
	}
	if !Int64().CastableTo(Float64()) {
		t.Error("int64 should cast to float64")
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		in   any
		want any
	}{
		{"string", String(8), "abc", "abc"},
		{"string truncated", String(3), "abcdef", "abc"},
		{"string counts characters", String(2), "äbc", "äb"},
		{"string multibyte kept whole", String(3), "名前テスト", "名前テ"},
		{"bytes to string", String(8), []byte("xy"), "xy"},
		{"float64 to float32", Float32(), 1.5, float32(1.5)},
		{"int to float32", Float32(), 3, float32(3)},
		{"int to float64", Float64(), int32(7), float64(7)},
		{"integral float to int64", Int64(), 4.0, int64(4)},
		{"min int64 float", Int64(), float64(-(1 << 63)), int64(math.MinInt64)},
		{"bool", Bool(), true, true},
		{"nil", Float32(), nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.spec.Coerce(tt.in)
			if err != nil {
				t.Fatalf("Coerce: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}

	rejects := []struct {
		spec Spec
		in   any
	}{
		{Float32(), "1.0"},
		{Int64(), 1.5},
		{Int64(), uint64(1 << 63)},
		{Int64(), float64(1 << 63)},
		{Int64(), float64(math.MaxInt64)},
		{Bool(), 1},
		{String(4), 12},
	}
	for _, r := range rejects {
		if _, err := r.spec.Coerce(r.in); !errors.Is(err, berrors.ErrValueType) {
			t.Errorf("Coerce(%s, %#v): expected ErrValueType, got %v", r.spec, r.in, err)
		}
	}
}

func TestObjectRoundTrip(t *testing.T) {
	type celsius float64
	values := []any{
		[]float64{1, 2, 3},
		[]int{4, 5},
		[]float32{0.1},
		int64(1<<53 + 1),
		uint64(math.MaxUint64),
		"label",
		[]byte{0, 1, 0xff},
		[2]int8{-1, 1},
		map[string][]float32{"xyz": {0.5, 1.5}},
		[][]float64{{1}, {2, 3}},
		[]any{int32(7), "s", nil, []any{true}},
		map[string]any{"n": 1.0, "m": map[string]any{"k": int64(2)}},
		[]string(nil),
		[]any{},
		math.Inf(1),
		true,
		nil,
	}

	for i, v := range values {
		b, err := EncodeObject(v)
		if err != nil {
			t.Fatalf("EncodeObject(%#v): %v", v, err)
		}
		got, err := DecodeObject(b)
		if err != nil {
			t.Fatalf("DecodeObject: %v", err)
		}
		if diff := cmp.Diff(v, got); diff != "" {
			t.Errorf("value %d mismatch (-want +got):\n%s", i, diff)
		}
	}

	// Named types read back as their underlying type.
	b, err := EncodeObject([]celsius{21.5})
	if err != nil {
		t.Fatalf("EncodeObject: %v", err)
	}
	got, err := DecodeObject(b)
	if err != nil {
		t.Fatalf("DecodeObject: %v", err)
	}
	if diff := cmp.Diff([]float64{21.5}, got); diff != "" {
		t.Errorf("named type mismatch (-want +got):\n%s", diff)
	}

	if _, err := EncodeObject(map[int]string{1: "x"}); !errors.Is(err, berrors.ErrValueType) {
		t.Errorf("expected ErrValueType for int-keyed map, got %v", err)
	}
	if _, err := EncodeObject(struct{ A int }{1}); !errors.Is(err, berrors.ErrValueType) {
		t.Errorf("expected ErrValueType for struct, got %v", err)
	}
	if _, err := DecodeObject([]byte{0xff, 0xff}); !errors.Is(err, berrors.ErrCodec) {
		t.Errorf("expected ErrCodec for garbage, got %v", err)
	}
	if _, err := parseType("chan int"); !errors.Is(err, berrors.ErrCodec) {
		t.Errorf("expected ErrCodec for unknown type name, got %v", err)
	}
}

func TestSchema(t *testing.T) {
	ab, err := NewSchema(Column{"b", Float32()}, Column{"a", String(64)})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, ab.Names()); diff != "" {
		t.Errorf("names not sorted (-want +got):\n%s", diff)
	}

	ba, _ := NewSchema(Column{"a", String(64)}, Column{"b", Float32()})
	if !ab.Equal(ba) {
		t.Error("declaration order should not matter")
	}

	bc, _ := NewSchema(Column{"b", Float64()}, Column{"c", Float32()})
	added, removed, changed := ab.Diff(bc)
	if diff := cmp.Diff([]string{"c"}, added); diff != "" {
		t.Errorf("added (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a"}, removed); diff != "" {
		t.Errorf("removed (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b"}, changed); diff != "" {
		t.Errorf("changed (-want +got):\n%s", diff)
	}

	if _, err := NewSchema(Column{"a", Float32()}, Column{"a", Bool()}); !errors.Is(err, berrors.ErrSchemaConflict) {
		t.Errorf("expected ErrSchemaConflict for duplicate name, got %v", err)
	}
	if _, err := NewSchema(Column{RowColumn, Float32()}); !errors.Is(err, berrors.ErrInvalidName) {
		t.Errorf("expected ErrInvalidName for reserved name, got %v", err)
	}
	if s, ok := ab.Lookup("b"); !ok || s != Float32() {
		t.Errorf("Lookup(b) = %s, %v", s, ok)
	}
	if ab.Index("zz") != -1 {
		t.Error("Index of missing column should be -1")
	}

	af, _ := NewSchema(Column{"a", Float32()}, Column{"b", Float32()})
	if !ab.SameNames(af) || ab.Equal(af) {
		t.Error("same names with a different format: SameNames should hold, Equal should not")
	}
	if ab.SameNames(bc) {
		t.Error("SameNames holds for different names")
	}
	adopted := bc.Adopt(ab)
	want, _ := NewSchema(Column{"b", Float32()}, Column{"c", Float32()})
	if !adopted.Equal(want) {
		t.Errorf("Adopt = %s, want %s", adopted, want)
	}
}
