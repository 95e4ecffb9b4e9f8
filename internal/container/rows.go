package container

import (
	"fmt"
	"strings"

	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/format"
)

// NumRows returns the number of rows (tables) or entries (arrays) in a leaf.
func (tx *Txn) NumRows(leaf Node) (int, error) {
	storage := leaf.base().storage
	if storage == "" {
		return 0, fmt.Errorf("%s has no rows: %w", leaf.Path(), errors.ErrKindMismatch)
	}
	var n int
	if err := tx.q.QueryRowContext(tx.ctx, "SELECT count(*) FROM "+quoteIdent(storage)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", leaf.Path(), err)
	}
	return n, nil
}

func (tx *Txn) nextRow(storage string) (int64, error) {
	var next int64
	err := tx.q.QueryRowContext(tx.ctx, fmt.Sprintf(
		"SELECT coalesce(max(%s) + 1, 0) FROM %s", quoteIdent(format.RowColumn), quoteIdent(storage),
	)).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next row of %s: %w", storage, err)
	}
	return next, nil
}

// AppendRows appends rows to t. Each row holds one value per entry of names,
// in the same order; schema columns missing from names are stored as NULL.
// Values are coerced to their column format before anything is written.
// It returns the number of rows appended.
func (tx *Txn) AppendRows(t *TableLeaf, names []string, rows [][]any) (int, error) {
	if err := tx.checkWritable(); err != nil {
		return 0, err
	}

	specs := make([]format.Spec, len(names))
	seen := make(map[string]struct{}, len(names))
	for i, name := range names {
		spec, ok := t.schema.Lookup(name)
		if !ok {
			return 0, fmt.Errorf("%s in %s: %w", name, t.path, errors.ErrColumnNotFound)
		}
		if _, dup := seen[name]; dup {
			return 0, fmt.Errorf("%s given twice for %s: %w", name, t.path, errors.ErrSchemaConflict)
		}
		seen[name] = struct{}{}
		specs[i] = spec
	}
	if len(rows) == 0 {
		return 0, nil
	}

	coerced := make([][]any, len(rows))
	for r, row := range rows {
		if len(row) != len(names) {
			return 0, fmt.Errorf("row %d of %s has %d values for %d columns: %w",
				r, t.path, len(row), len(names), errors.ErrInconsistentRowCount)
		}
		out := make([]any, len(row)+1)
		for i, v := range row {
			c, err := specs[i].Coerce(v)
			if err != nil {
				return 0, fmt.Errorf("row %d column %s of %s: %w", r, names[i], t.path, err)
			}
			out[i+1] = c
		}
		coerced[r] = out
	}

	next, err := tx.nextRow(t.storage)
	if err != nil {
		return 0, err
	}

	cols := []string{quoteIdent(format.RowColumn)}
	marks := []string{"?"}
	for _, name := range names {
		cols = append(cols, quoteIdent(name))
		marks = append(marks, "?")
	}
	stmt, err := tx.q.PrepareContext(tx.ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(t.storage), strings.Join(cols, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return 0, fmt.Errorf("prepare append to %s: %w", t.path, err)
	}
	defer stmt.Close()

	for r, args := range coerced {
		args[0] = next + int64(r)
		if _, err := stmt.ExecContext(tx.ctx, args...); err != nil {
			return 0, fmt.Errorf("append row %d to %s: %w", r, t.path, err)
		}
	}
	return len(coerced), nil
}

// ReadRows returns every row of t in append order. Values follow the order
// of t.Schema().Names() and are decoded back to Go values.
func (tx *Txn) ReadRows(t *TableLeaf) ([][]any, error) {
	if len(t.schema) == 0 {
		n, err := tx.NumRows(t)
		if err != nil {
			return nil, err
		}
		return make([][]any, n), nil
	}

	cols := make([]string, len(t.schema))
	for i, c := range t.schema {
		cols[i] = quoteIdent(c.Name)
	}
	rows, err := tx.q.QueryContext(tx.ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "), quoteIdent(t.storage), quoteIdent(format.RowColumn)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", t.path, err)
	}
	defer rows.Close()

	var out [][]any
	for rows.Next() {
		raw := make([]any, len(t.schema))
		ptrs := make([]any, len(raw))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row of %s: %w", t.path, err)
		}
		for i, c := range t.schema {
			v, err := c.Spec.Decode(raw[i])
			if err != nil {
				return nil, fmt.Errorf("column %s of %s: %w", c.Name, t.path, err)
			}
			raw[i] = v
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", t.path, err)
	}
	return out, nil
}

// ReadColumn returns the values of one column of t in append order.
func (tx *Txn) ReadColumn(t *TableLeaf, name string) ([]any, error) {
	spec, ok := t.schema.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", name, t.path, errors.ErrColumnNotFound)
	}

	rows, err := tx.q.QueryContext(tx.ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		quoteIdent(name), quoteIdent(t.storage), quoteIdent(format.RowColumn)))
	if err != nil {
		return nil, fmt.Errorf("read %s of %s: %w", name, t.path, err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan %s of %s: %w", name, t.path, err)
		}
		v, err := spec.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("column %s of %s: %w", name, t.path, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s of %s: %w", name, t.path, err)
	}
	return out, nil
}

// CopyRows appends every row of src to dst, preserving order. Columns present
// in both schemas are copied, cast when their formats differ; columns only
// in dst are NULL and columns only in src are dropped. A column whose values
// cannot be converted (object to scalar or back) is treated as only in dst.
// It returns the number of rows copied.
func (tx *Txn) CopyRows(src, dst *TableLeaf) (int, error) {
	if err := tx.checkWritable(); err != nil {
		return 0, err
	}

	next, err := tx.nextRow(dst.storage)
	if err != nil {
		return 0, err
	}

	row := quoteIdent(format.RowColumn)
	cols := []string{row}
	exprs := []string{fmt.Sprintf("%d + row_number() OVER (ORDER BY %s) - 1", next, row)}
	for _, c := range dst.schema {
		from, ok := src.schema.Lookup(c.Name)
		if !ok || !from.CastableTo(c.Spec) {
			continue
		}
		cols = append(cols, quoteIdent(c.Name))
		exprs = append(exprs, castExpr(quoteIdent(c.Name), from, c.Spec))
	}

	res, err := tx.q.ExecContext(tx.ctx, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ORDER BY %s",
		quoteIdent(dst.storage), strings.Join(cols, ", "), strings.Join(exprs, ", "),
		quoteIdent(src.storage), row))
	if err != nil {
		return 0, fmt.Errorf("copy rows of %s to %s: %w", src.path, dst.path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("copy rows of %s to %s: %w", src.path, dst.path, err)
	}
	return int(n), nil
}

// castExpr converts a column of format from to format to inside SQL.
// Values that do not convert become NULL. left() counts characters, the same
// unit string coercion truncates in.
func castExpr(col string, from, to format.Spec) string {
	if from == to {
		return col
	}
	if to.Kind() == format.KindString {
		return fmt.Sprintf("left(CAST(%s AS VARCHAR), %d)", col, to.Width())
	}
	return fmt.Sprintf("TRY_CAST(%s AS %s)", col, to.SQLType())
}
