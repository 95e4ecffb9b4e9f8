package datastore

import (
	"fmt"

	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/format"
)

// Column buffers the pending values of one named field of a table or array.
//
// Values leave the buffer strictly in the order they were loaded and are
// never handed out twice. Loading never performs I/O.
type Column struct {
	path    string // owning table or array path
	name    string
	spec    format.Spec
	pending []any
	dirty   bool
}

func newColumn(path, name string, spec format.Spec) *Column {
	return &Column{path: path, name: name, spec: spec}
}

// Path returns the path of the owning table or array.
func (c *Column) Path() string { return c.path }

// Name returns the column name.
func (c *Column) Name() string { return c.name }

// Spec returns the column format.
func (c *Column) Spec() format.Spec { return c.spec }

// Load appends one value.
func (c *Column) Load(v any) {
	c.pending = append(c.pending, v)
	c.dirty = true
}

// Extend appends every value of vs, in order.
func (c *Column) Extend(vs []any) {
	if len(vs) == 0 {
		return
	}
	c.pending = append(c.pending, vs...)
	c.dirty = true
}

// LoadSlice appends every element of vs to c, in order.
func LoadSlice[T any](c *Column, vs []T) {
	if len(vs) == 0 {
		return
	}
	for _, v := range vs {
		c.pending = append(c.pending, v)
	}
	c.dirty = true
}

// PendingCount returns the number of buffered values.
func (c *Column) PendingCount() int { return len(c.pending) }

// Dirty reports whether the column holds unwritten values.
func (c *Column) Dirty() bool { return c.dirty }

// NextPendingRow pops the oldest buffered value. It fails with
// ErrEmptyBuffer when nothing is buffered.
func (c *Column) NextPendingRow() (any, error) {
	if !c.dirty {
		return nil, fmt.Errorf("column %s of %s: %w", c.name, c.path, errors.ErrEmptyBuffer)
	}

	v := c.pending[0]
	c.pending[0] = nil
	c.pending = c.pending[1:]
	if len(c.pending) == 0 {
		c.pending = nil
		c.dirty = false
	}
	return v, nil
}

// peek returns the n oldest buffered values without removing them.
func (c *Column) peek(n int) []any {
	return c.pending[:n:n]
}

// discard removes the n oldest buffered values.
func (c *Column) discard(n int) {
	clear(c.pending[:n])
	c.pending = c.pending[n:]
	if len(c.pending) == 0 {
		c.pending = nil
		c.dirty = false
	}
}
