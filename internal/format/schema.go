package format

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xtxerr/batcha/internal/errors"
)

// RowColumn is the reserved storage column holding the row order of a leaf.
const RowColumn = "_row"

// Column is one (name, spec) pair of a table schema.
type Column struct {
	Name string
	Spec Spec
}

// Schema is the set of columns defining a table's row shape. It is kept
// sorted by name so two schemas with the same members compare equal
// regardless of declaration order.
type Schema []Column

// NewSchema builds a schema from columns, rejecting duplicates and invalid specs.
func NewSchema(cols ...Column) (Schema, error) {
	seen := make(map[string]struct{}, len(cols))
	s := make(Schema, 0, len(cols))
	for _, c := range cols {
		if c.Name == "" || c.Name == RowColumn {
			return nil, fmt.Errorf("column name %q: %w", c.Name, errors.ErrInvalidName)
		}
		if !c.Spec.IsValid() {
			return nil, fmt.Errorf("column %q: %w", c.Name, errors.ErrInvalidFormat)
		}
		if _, dup := seen[c.Name]; dup {
			return nil, fmt.Errorf("column %q: %w", c.Name, errors.ErrSchemaConflict)
		}
		seen[c.Name] = struct{}{}
		s = append(s, c)
	}
	sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
	return s, nil
}

// Names returns the column names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Lookup returns the spec of the named column.
func (s Schema) Lookup(name string) (Spec, bool) {
	i := sort.Search(len(s), func(i int) bool { return s[i].Name >= name })
	if i < len(s) && s[i].Name == name {
		return s[i].Spec, true
	}
	return Spec{}, false
}

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	i := sort.Search(len(s), func(i int) bool { return s[i].Name >= name })
	if i < len(s) && s[i].Name == name {
		return i
	}
	return -1
}

// Equal reports whether both schemas hold the same (name, spec) pairs.
func (s Schema) Equal(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// SameNames reports whether both schemas hold the same column names,
// whatever their specs.
func (s Schema) SameNames(o Schema) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i].Name != o[i].Name {
			return false
		}
	}
	return true
}

// Adopt returns s with the spec of every column also present in persisted
// replaced by the persisted spec. Columns only in s keep their own spec.
func (s Schema) Adopt(persisted Schema) Schema {
	out := make(Schema, len(s))
	for i, c := range s {
		if spec, ok := persisted.Lookup(c.Name); ok {
			c.Spec = spec
		}
		out[i] = c
	}
	return out
}

// Diff returns the names only present in o (added) and only present in s
// (removed), plus the names present in both with different specs.
func (s Schema) Diff(o Schema) (added, removed, changed []string) {
	for _, c := range o {
		old, ok := s.Lookup(c.Name)
		switch {
		case !ok:
			added = append(added, c.Name)
		case old != c.Spec:
			changed = append(changed, c.Name)
		}
	}
	for _, c := range s {
		if _, ok := o.Lookup(c.Name); !ok {
			removed = append(removed, c.Name)
		}
	}
	return added, removed, changed
}

// String renders the schema as "{a:string(64), b:float32}".
func (s Schema) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.Name + ":" + c.Spec.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
