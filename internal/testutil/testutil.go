// Package testutil provides container fixtures for tests.
//
// Helpers fail the test through t.Fatalf, so they must be called from the
// test goroutine.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/format"
)

// NewFile creates an empty container file in a temporary directory. The file
// is closed when the test ends.
func NewFile(t *testing.T) *container.File {
	t.Helper()
	f, err := container.Open(filepath.Join(t.TempDir(), "test.db"), container.ModeCreate, container.DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

// Schema builds a schema from alternating column names and format strings,
// e.g. Schema(t, "a", "string(8)", "b", "float32").
func Schema(t *testing.T, pairs ...string) format.Schema {
	t.Helper()
	if len(pairs)%2 != 0 {
		t.Fatalf("Schema: odd number of arguments")
	}
	cols := make([]format.Column, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		spec, err := format.Parse(pairs[i+1])
		if err != nil {
			t.Fatalf("Parse(%s): %v", pairs[i+1], err)
		}
		cols = append(cols, format.Column{Name: pairs[i], Spec: spec})
	}
	s, err := format.NewSchema(cols...)
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

// Table creates the table at path with schema, creating missing groups, and
// appends rows given in schema column order.
func Table(t *testing.T, f *container.File, path string, schema format.Schema, rows [][]any) *container.TableLeaf {
	t.Helper()
	var leaf *container.TableLeaf
	err := f.Update(context.Background(), func(tx *container.Txn) error {
		parent, err := groups(tx, path)
		if err != nil {
			return err
		}
		_, name := container.Split(path)
		if leaf, err = tx.CreateTable(parent, name, schema); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		_, err = tx.AppendRows(leaf, schema.Names(), rows)
		return err
	})
	if err != nil {
		t.Fatalf("create table %s: %v", path, err)
	}
	return leaf
}

// Array creates the array at path with element format elem, creating
// missing groups, and appends entries.
func Array(t *testing.T, f *container.File, path string, elem format.Spec, entries []any) *container.ArrayLeaf {
	t.Helper()
	var leaf *container.ArrayLeaf
	err := f.Update(context.Background(), func(tx *container.Txn) error {
		parent, err := groups(tx, path)
		if err != nil {
			return err
		}
		_, name := container.Split(path)
		if leaf, err = tx.CreateArray(parent, name, elem); err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		_, err = tx.AppendEntries(leaf, entries)
		return err
	})
	if err != nil {
		t.Fatalf("create array %s: %v", path, err)
	}
	return leaf
}

// groups returns the parent group of path, creating the groups leading to it.
func groups(tx *container.Txn, path string) (*container.Group, error) {
	parentPath, _ := container.Split(path)
	g := tx.Root()
	for _, seg := range container.Segments(parentPath) {
		p := container.Join(g.Path(), seg)
		n, err := tx.Lookup(p)
		switch {
		case err == nil:
			var ok bool
			if g, ok = container.AsGroup(n); !ok {
				return nil, fmt.Errorf("%s: %w", p, errors.ErrNotGroup)
			}
		case errors.IsNotFound(err):
			if g, err = tx.CreateGroup(g, seg); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}
	return g, nil
}
