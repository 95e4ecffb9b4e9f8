package container

import (
	"fmt"

	"github.com/xtxerr/batcha/internal/format"
)

// AppendEntries appends values to a as independent entries, in order. Each
// value is serialized with the array's element format and compressed with
// the file's codec. It returns the number of entries appended.
func (tx *Txn) AppendEntries(a *ArrayLeaf, values []any) (int, error) {
	if err := tx.checkWritable(); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, nil
	}

	c := tx.f.write
	payloads := make([][]byte, len(values))
	for i, v := range values {
		raw, err := a.elem.EncodeElement(v)
		if err != nil {
			return 0, fmt.Errorf("entry %d of %s: %w", i, a.path, err)
		}
		if payloads[i], err = c.Compress(raw); err != nil {
			return 0, fmt.Errorf("compress entry %d of %s: %w", i, a.path, err)
		}
	}

	next, err := tx.nextRow(a.storage)
	if err != nil {
		return 0, err
	}

	stmt, err := tx.q.PrepareContext(tx.ctx, fmt.Sprintf("INSERT INTO %s (%s, codec, payload) VALUES (?, ?, ?)",
		quoteIdent(a.storage), quoteIdent(format.RowColumn)))
	if err != nil {
		return 0, fmt.Errorf("prepare append to %s: %w", a.path, err)
	}
	defer stmt.Close()

	for i, p := range payloads {
		if _, err := stmt.ExecContext(tx.ctx, next+int64(i), string(c.Name()), p); err != nil {
			return 0, fmt.Errorf("append entry %d to %s: %w", i, a.path, err)
		}
	}
	return len(payloads), nil
}

// ReadEntries returns every entry of a in append order, decoded with the
// array's element format.
func (tx *Txn) ReadEntries(a *ArrayLeaf) ([]any, error) {
	rows, err := tx.q.QueryContext(tx.ctx, fmt.Sprintf("SELECT codec, payload FROM %s ORDER BY %s",
		quoteIdent(a.storage), quoteIdent(format.RowColumn)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a.path, err)
	}
	defer rows.Close()

	var out []any
	for i := 0; rows.Next(); i++ {
		var (
			name    string
			payload []byte
		)
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, fmt.Errorf("scan entry %d of %s: %w", i, a.path, err)
		}
		c, err := tx.f.codecs.get(Compression(name))
		if err != nil {
			return nil, fmt.Errorf("entry %d of %s: %w", i, a.path, err)
		}
		raw, err := c.Decompress(payload)
		if err != nil {
			return nil, fmt.Errorf("entry %d of %s: %w", i, a.path, err)
		}
		v, err := a.elem.DecodeElement(raw)
		if err != nil {
			return nil, fmt.Errorf("entry %d of %s: %w", i, a.path, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", a.path, err)
	}
	return out, nil
}
