package datastore

import (
	"context"
	"fmt"

	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/format"
)

// Array buffers entries for one array leaf. Each entry is stored on its
// own, so entries may have different shapes.
type Array struct {
	s      *Session
	path   string
	column *Column
	leaf   *container.ArrayLeaf
}

func newArray(s *Session, path string, elem format.Spec) *Array {
	_, name := container.Split(path)
	return &Array{s: s, path: path, column: newColumn(path, name, elem)}
}

// Path returns the array path.
func (a *Array) Path() string { return a.path }

// Elem returns the requested element format.
func (a *Array) Elem() format.Spec { return a.column.spec }

// Column returns the buffer backing the array.
func (a *Array) Column() *Column { return a.column }

// Load buffers one entry.
func (a *Array) Load(v any) { a.column.Load(v) }

// Extend buffers every value of vs as its own entry.
func (a *Array) Extend(vs []any) { a.column.Extend(vs) }

// PendingCount returns the number of buffered entries.
func (a *Array) PendingCount() int { return a.column.PendingCount() }

// Setup creates missing groups and the array leaf, or reuses an existing
// leaf. Array leaves are never migrated.
func (a *Array) Setup(ctx context.Context) (*container.ArrayLeaf, error) {
	if a.leaf != nil {
		return a.leaf, nil
	}

	var res resolution
	err := a.s.file.Update(ctx, func(tx *container.Txn) error {
		var err error
		res, err = resolve(tx, a.path, expectation{kind: container.KindArray, elem: a.column.spec})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", a.path, err)
	}

	if res.existing != nil {
		a.leaf, _ = container.AsArray(res.existing)
		return a.leaf, nil
	}

	err = a.s.file.Update(ctx, func(tx *container.Txn) error {
		leaf, err := tx.CreateArray(res.parent, a.column.name, a.column.spec)
		if err != nil {
			return err
		}
		a.leaf = leaf
		return nil
	})
	if err != nil {
		a.leaf = nil
		return nil, fmt.Errorf("create %s: %w", a.path, err)
	}
	a.s.log.Info("created array", "path", a.path, "elem", a.column.spec.String())
	return a.leaf, nil
}

// Write appends every pending entry in order and flushes the file. Entries
// stay buffered until the append has committed.
func (a *Array) Write(ctx context.Context) error {
	n := a.column.PendingCount()
	if n == 0 {
		a.s.log.Info("array has no rows to write, skipping", "path", a.path)
		return nil
	}

	leaf, err := a.Setup(ctx)
	if err != nil {
		return err
	}

	values := a.column.peek(n)
	err = a.s.file.Update(ctx, func(tx *container.Txn) error {
		_, err := tx.AppendEntries(leaf, values)
		return err
	})
	if err != nil {
		return fmt.Errorf("append %d entries to %s: %w", n, a.path, err)
	}
	a.column.discard(n)
	if err := a.s.file.Flush(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", a.path, err)
	}

	a.s.log.Info("array written", "path", a.path, "entries", n)
	return nil
}
