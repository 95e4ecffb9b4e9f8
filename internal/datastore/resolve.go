package datastore

import (
	"fmt"

	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/format"
	"github.com/xtxerr/batcha/internal/logging"
)

// expectation describes the leaf a table or array wants at its path.
type expectation struct {
	kind   container.Kind
	schema format.Schema // tables
	elem   format.Spec   // arrays
}

// resolution is the outcome of walking a path.
type resolution struct {
	// existing is the node found at the terminal segment, nil if absent.
	existing container.Node
	// parent is the group holding the terminal segment.
	parent *container.Group
	// match reports whether existing can be appended to as is. A table
	// whose column names differ needs migration first.
	match bool
}

// resolve walks path from the root, creating every missing intermediate
// group, and inspects the terminal node. It never creates the terminal node
// and never migrates.
func resolve(tx *container.Txn, path string, want expectation) (resolution, error) {
	p, err := container.Clean(path)
	if err != nil {
		return resolution{}, err
	}
	segs := container.Segments(p)
	if len(segs) == 0 {
		return resolution{}, errors.NewInvalidPath(p, "the root cannot hold data")
	}

	log := logging.Component("datastore")
	parent := tx.Root()
	for _, seg := range segs[:len(segs)-1] {
		next := container.Join(parent.Path(), seg)
		n, err := tx.Lookup(next)
		switch {
		case errors.IsNotFound(err):
			g, err := tx.CreateGroup(parent, seg)
			if err != nil {
				return resolution{}, err
			}
			log.Debug("created group", "path", next)
			parent = g
		case err != nil:
			return resolution{}, err
		default:
			g, ok := container.AsGroup(n)
			if !ok {
				return resolution{}, fmt.Errorf("%s is a %s on the way to %s: %w", next, n.Kind(), p, errors.ErrNotGroup)
			}
			parent = g
		}
	}

	n, err := tx.Lookup(p)
	if errors.IsNotFound(err) {
		return resolution{parent: parent}, nil
	}
	if err != nil {
		return resolution{}, err
	}
	if n.Kind() != want.kind {
		return resolution{}, fmt.Errorf("%s is a %s, want %s: %w", p, n.Kind(), want.kind, errors.ErrKindMismatch)
	}

	res := resolution{existing: n, parent: parent, match: true}
	switch leaf := n.(type) {
	case *container.TableLeaf:
		res.match = leaf.Schema().SameNames(want.schema)
		if _, _, changed := leaf.Schema().Diff(want.schema); len(changed) > 0 {
			log.Warn("column formats differ, keeping persisted formats",
				"path", p, "persisted", leaf.Schema().String(), "requested", want.schema.String(), "columns", changed)
		}
	case *container.ArrayLeaf:
		if want.elem.IsValid() && leaf.Elem() != want.elem {
			log.Warn("array element format differs, keeping persisted format",
				"path", p, "persisted", leaf.Elem().String(), "requested", want.elem.String())
		}
	}
	return res, nil
}
