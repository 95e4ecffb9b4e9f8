package datastore

import (
	"context"
	"fmt"

	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/format"
)

// Table owns the column buffers sharing one table path. Its schema is the
// set of (name, format) pairs of those columns.
type Table struct {
	s       *Session
	path    string
	name    string
	columns map[string]*Column
	order   []string // registration order, used for row emission
	leaf    *container.TableLeaf
}

func newTable(s *Session, path string) *Table {
	_, name := container.Split(path)
	return &Table{
		s:       s,
		path:    path,
		name:    name,
		columns: make(map[string]*Column),
	}
}

// Path returns the table path.
func (t *Table) Path() string { return t.path }

// Name returns the last segment of the table path.
func (t *Table) Name() string { return t.name }

// Columns returns the registered columns in registration order.
func (t *Table) Columns() []*Column {
	cols := make([]*Column, len(t.order))
	for i, name := range t.order {
		cols[i] = t.columns[name]
	}
	return cols
}

// Column returns the column called name, registering it with spec on first
// use. Asking again with a different spec fails with ErrSchemaConflict.
func (t *Table) Column(name string, spec format.Spec) (*Column, error) {
	if c, ok := t.columns[name]; ok {
		if c.spec != spec {
			return nil, fmt.Errorf("column %s of %s is %s, requested %s: %w",
				name, t.path, c.spec, spec, errors.ErrSchemaConflict)
		}
		return c, nil
	}

	if name == "" || name == format.RowColumn {
		return nil, fmt.Errorf("column name %q in %s: %w", name, t.path, errors.ErrInvalidName)
	}
	if !spec.IsValid() {
		return nil, fmt.Errorf("column %s of %s: %w", name, t.path, errors.ErrInvalidFormat)
	}

	c := newColumn(t.path, name, spec)
	t.columns[name] = c
	t.order = append(t.order, name)
	// The schema changed, so a cached leaf no longer describes it.
	t.leaf = nil
	return c, nil
}

// Schema returns the schema derived from the registered columns.
func (t *Table) Schema() (format.Schema, error) {
	cols := make([]format.Column, 0, len(t.order))
	for _, name := range t.order {
		cols = append(cols, format.Column{Name: name, Spec: t.columns[name].spec})
	}
	return format.NewSchema(cols...)
}

// Setup materializes the table leaf: it creates missing groups on the way,
// then reuses a leaf with the same column names, migrates a leaf whose
// names differ, or creates a new one. Columns the leaf already holds keep
// their persisted format. The result is cached until a column is added.
func (t *Table) Setup(ctx context.Context) (*container.TableLeaf, error) {
	if t.leaf != nil {
		return t.leaf, nil
	}

	schema, res, err := t.resolve(ctx)
	if err != nil {
		return nil, err
	}

	var leaf *container.TableLeaf
	err = t.s.file.Update(ctx, func(tx *container.Txn) error {
		var err error
		leaf, err = t.materialize(tx, res, schema)
		return err
	})
	if err != nil {
		return nil, err
	}
	t.leaf = leaf
	return leaf, nil
}

// resolve walks the table path in its own transaction, so groups created on
// the way stay even if the leaf step fails.
func (t *Table) resolve(ctx context.Context) (format.Schema, resolution, error) {
	schema, err := t.Schema()
	if err != nil {
		return nil, resolution{}, err
	}

	var res resolution
	err = t.s.file.Update(ctx, func(tx *container.Txn) error {
		var err error
		res, err = resolve(tx, t.path, expectation{kind: container.KindTable, schema: schema})
		return err
	})
	if err != nil {
		return nil, resolution{}, fmt.Errorf("resolve %s: %w", t.path, err)
	}
	return schema, res, nil
}

// materialize returns the leaf described by res inside tx, migrating or
// creating it as needed.
func (t *Table) materialize(tx *container.Txn, res resolution, schema format.Schema) (*container.TableLeaf, error) {
	switch {
	case res.existing != nil && res.match:
		leaf, _ := container.AsTable(res.existing)
		return leaf, nil

	case res.existing != nil:
		old, _ := container.AsTable(res.existing)
		leaf, err := migrate(tx, old, schema.Adopt(old.Schema()), res.parent)
		if err != nil {
			return nil, fmt.Errorf("migrate %s: %w", t.path, err)
		}
		return leaf, nil

	default:
		leaf, err := tx.CreateTable(res.parent, t.name, schema)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", t.path, err)
		}
		t.s.log.Info("created table", "path", t.path, "schema", schema.String())
		return leaf, nil
	}
}

// pendingRows returns the common pending count of all columns.
func (t *Table) pendingRows() (int, error) {
	n := -1
	for _, name := range t.order {
		c := t.columns[name].PendingCount()
		if n >= 0 && c != n {
			return 0, fmt.Errorf("%s: %s: %w", t.path, t.countsString(), errors.ErrInconsistentRowCount)
		}
		n = c
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

func (t *Table) countsString() string {
	s := ""
	for i, name := range t.order {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s=%d", name, t.columns[name].PendingCount())
	}
	return s
}

// Write appends every pending row to the table leaf and flushes the file.
//
// All columns must hold the same number of pending values, otherwise Write
// fails with ErrInconsistentRowCount before touching the file. Migrating or
// creating the leaf and appending the rows happen in one transaction: if any
// step fails the persisted leaf is left as it was and the rows stay
// buffered. They leave the buffers only once the append has committed.
func (t *Table) Write(ctx context.Context) error {
	n, err := t.pendingRows()
	if err != nil {
		return err
	}
	if n == 0 {
		t.s.log.Info("table has no rows to write, skipping", "path", t.path)
		return nil
	}

	leaf := t.leaf
	var (
		schema format.Schema
		res    resolution
	)
	if leaf == nil {
		if schema, res, err = t.resolve(ctx); err != nil {
			return err
		}
	}

	cols := make([][]any, len(t.order))
	for j, name := range t.order {
		cols[j] = t.columns[name].peek(n)
	}
	rows := make([][]any, n)
	for i := range rows {
		row := make([]any, len(t.order))
		for j := range t.order {
			row[j] = cols[j][i]
		}
		rows[i] = row
	}

	t.s.log.Debug("appending rows", "path", t.path, "rows", n)
	err = t.s.file.Update(ctx, func(tx *container.Txn) error {
		target := leaf
		if target == nil {
			var err error
			if target, err = t.materialize(tx, res, schema); err != nil {
				return err
			}
		}
		if _, err := tx.AppendRows(target, t.order, rows); err != nil {
			return fmt.Errorf("append %d rows to %s: %w", n, t.path, err)
		}
		leaf = target
		return nil
	})
	if err != nil {
		return err
	}

	t.leaf = leaf
	for _, name := range t.order {
		t.columns[name].discard(n)
	}
	if err := t.s.file.Flush(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", t.path, err)
	}

	t.s.log.Info("table written", "path", t.path, "rows", n)
	return nil
}
