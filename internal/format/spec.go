// Package format defines the typed column descriptors used by the store.
//
// A Spec is a closed sum type: fixed-width string, 32/64-bit float, 64-bit
// integer, bool, or opaque object. The store only compares specs for schema
// equality, forwards them to node creation, and uses them to coerce buffered
// values into what the container persists.
package format

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xtxerr/batcha/internal/errors"
)

// Kind identifies the variant of a Spec.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindString
	KindFloat32
	KindFloat64
	KindInt64
	KindBool
	KindObject
)

// DefaultStringWidth is the width used for metadata columns.
const DefaultStringWidth = 64

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindInt64:
		return "int64"
	case KindBool:
		return "bool"
	case KindObject:
		return "object"
	default:
		return "invalid"
	}
}

// Spec is a typed column descriptor. The zero value is invalid.
type Spec struct {
	kind  Kind
	width int
}

// String returns a fixed-width string spec. Values longer than width bytes
// are truncated when written.
func String(width int) Spec { return Spec{kind: KindString, width: width} }

// Float32 returns a 32-bit float spec.
func Float32() Spec { return Spec{kind: KindFloat32} }

// Float64 returns a 64-bit float spec.
func Float64() Spec { return Spec{kind: KindFloat64} }

// Int64 returns a 64-bit integer spec.
func Int64() Spec { return Spec{kind: KindInt64} }

// Bool returns a boolean spec.
func Bool() Spec { return Spec{kind: KindBool} }

// Object returns an opaque object spec for heterogeneously shaped values.
func Object() Spec { return Spec{kind: KindObject} }

// Kind returns the variant.
func (s Spec) Kind() Kind { return s.kind }

// Width returns the string width, zero for other kinds.
func (s Spec) Width() int { return s.width }

// IsValid reports whether s is a usable spec.
func (s Spec) IsValid() bool {
	switch s.kind {
	case KindString:
		return s.width > 0
	case KindFloat32, KindFloat64, KindInt64, KindBool, KindObject:
		return s.width == 0
	default:
		return false
	}
}

// String returns the textual form accepted by Parse.
func (s Spec) String() string {
	if s.kind == KindString {
		return fmt.Sprintf("string(%d)", s.width)
	}
	return s.kind.String()
}

// SQLType returns the DuckDB column type backing the spec.
func (s Spec) SQLType() string {
	switch s.kind {
	case KindString:
		return "VARCHAR"
	case KindFloat32:
		return "FLOAT"
	case KindFloat64:
		return "DOUBLE"
	case KindInt64:
		return "BIGINT"
	case KindBool:
		return "BOOLEAN"
	case KindObject:
		return "BLOB"
	default:
		return ""
	}
}

// Parse parses the textual form of a spec, e.g. "string(64)" or "float32".
func Parse(text string) (Spec, error) {
	t := strings.ToLower(strings.TrimSpace(text))

	if strings.HasPrefix(t, "string(") && strings.HasSuffix(t, ")") {
		w, err := strconv.Atoi(t[len("string(") : len(t)-1])
		if err != nil || w <= 0 {
			return Spec{}, fmt.Errorf("%q: width must be a positive integer: %w", text, errors.ErrInvalidFormat)
		}
		return String(w), nil
	}

	switch t {
	case "string":
		return String(DefaultStringWidth), nil
	case "float32", "float":
		return Float32(), nil
	case "float64", "double":
		return Float64(), nil
	case "int64", "int":
		return Int64(), nil
	case "bool":
		return Bool(), nil
	case "object":
		return Object(), nil
	}
	return Spec{}, fmt.Errorf("%q: %w", text, errors.ErrInvalidFormat)
}

// CastableTo reports whether persisted values of s can be converted to t
// when a table is migrated. Object columns only convert to themselves.
func (s Spec) CastableTo(t Spec) bool {
	if s.kind == KindObject || t.kind == KindObject {
		return s.kind == t.kind
	}
	return s.IsValid() && t.IsValid()
}
