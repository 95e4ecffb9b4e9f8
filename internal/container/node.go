package container

import (
	"fmt"

	"github.com/xtxerr/batcha/internal/format"
)

// Kind identifies the type of a node in the tree.
type Kind string

const (
	KindGroup Kind = "group"
	KindTable Kind = "table"
	KindArray Kind = "array"
)

// Node is an entry in the container's tree. It is implemented by *Group,
// *TableLeaf and *ArrayLeaf.
//
// Node handles are plain descriptions of what was persisted when they were
// obtained. They are not bound to a transaction and stay valid until the
// node is moved or removed.
type Node interface {
	Path() string
	Name() string
	Kind() Kind
	base() *nodeBase
}

type nodeBase struct {
	path    string
	parent  string
	name    string
	kind    Kind
	storage string // physical table backing a leaf, empty for groups
}

func (n *nodeBase) Path() string { return n.path }

func (n *nodeBase) Name() string { return n.name }

func (n *nodeBase) Kind() Kind { return n.kind }

func (n *nodeBase) String() string { return fmt.Sprintf("%s(%s)", n.kind, n.path) }

func (n *nodeBase) base() *nodeBase { return n }

// Group is a pure container node.
type Group struct {
	nodeBase
}

// TableLeaf is a leaf holding rows of a fixed, named schema.
type TableLeaf struct {
	nodeBase
	schema format.Schema
}

// Schema returns the persisted row schema.
func (t *TableLeaf) Schema() format.Schema { return t.schema }

// ArrayLeaf is a leaf holding an append-only sequence of independently
// serialized entries of one element format.
type ArrayLeaf struct {
	nodeBase
	elem format.Spec
}

// Elem returns the element format.
func (a *ArrayLeaf) Elem() format.Spec { return a.elem }

// AsGroup returns n as a group, or false.
func AsGroup(n Node) (*Group, bool) {
	g, ok := n.(*Group)
	return g, ok
}

// AsTable returns n as a table leaf, or false.
func AsTable(n Node) (*TableLeaf, bool) {
	t, ok := n.(*TableLeaf)
	return t, ok
}

// AsArray returns n as an array leaf, or false.
func AsArray(n Node) (*ArrayLeaf, bool) {
	a, ok := n.(*ArrayLeaf)
	return a, ok
}
