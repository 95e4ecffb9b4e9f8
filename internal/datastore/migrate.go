package datastore

import (
	"fmt"

	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/format"
	"github.com/xtxerr/batcha/internal/logging"
)

// migrate replaces old with a table of the given schema holding the same
// rows and attributes. Columns in both schemas keep their values, columns
// only in schema start out NULL, and columns only in old are dropped.
//
// Every step runs in tx, so a failure leaves old untouched once the
// transaction is rolled back. The swap into old's path happens only after
// the copy has completed.
func migrate(tx *container.Txn, old *container.TableLeaf, schema format.Schema, parent *container.Group) (*container.TableLeaf, error) {
	log := logging.Component("datastore").With("path", old.Path())

	added, removed, changed := old.Schema().Diff(schema)
	log.Info("migrating table schema",
		"from", old.Schema().String(), "to", schema.String(),
		"added", added, "removed", removed, "changed", changed)

	tmpName := container.TempName(old.Name())
	if stale, err := tx.Lookup(container.Join(parent.Path(), tmpName)); err == nil {
		// Left behind by a migration that was interrupted before commit.
		if err := tx.Remove(stale); err != nil {
			return nil, fmt.Errorf("remove stale %s: %w", stale.Path(), err)
		}
	} else if !errors.IsNotFound(err) {
		return nil, err
	}

	tmp, err := tx.CreateTable(parent, tmpName, schema)
	if err != nil {
		return nil, fmt.Errorf("create replacement for %s: %w", old.Path(), err)
	}
	if err := tx.CopyAttrs(old, tmp); err != nil {
		return nil, err
	}

	want, err := tx.NumRows(old)
	if err != nil {
		return nil, err
	}
	n, err := tx.CopyRows(old, tmp)
	if err != nil {
		return nil, err
	}
	if n != want {
		return nil, fmt.Errorf("copied %d of %d rows from %s: %w", n, want, old.Path(), errors.ErrInternal)
	}

	if err := tx.Remove(old); err != nil {
		return nil, fmt.Errorf("remove %s: %w", old.Path(), err)
	}
	moved, err := tx.Move(tmp, parent, old.Name())
	if err != nil {
		return nil, fmt.Errorf("rename replacement for %s: %w", old.Path(), err)
	}

	leaf, ok := container.AsTable(moved)
	if !ok {
		return nil, fmt.Errorf("%s is a %s after migration: %w", moved.Path(), moved.Kind(), errors.ErrInternal)
	}
	log.Info("table migrated", "rows", n)
	return leaf, nil
}
