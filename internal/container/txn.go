package container

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/format"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Txn gives access to the tree for the duration of a View or Update call.
//
// A Txn must not be used after the callback returns. The file has a single
// connection, so a callback must not start a nested View or Update, and any
// result set it opens is closed before the next statement runs.
type Txn struct {
	f        *File
	q        querier
	ctx      context.Context
	writable bool
}

// Writable reports whether the transaction accepts mutations.
func (tx *Txn) Writable() bool { return tx.writable }

// Context returns the context the transaction was started with.
func (tx *Txn) Context() context.Context { return tx.ctx }

func (tx *Txn) checkWritable() error {
	if !tx.writable {
		return errors.ErrReadOnly
	}
	return nil
}

// quoteIdent quotes a SQL identifier.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// =============================================================================
// Lookup
// =============================================================================

// Root returns the root group.
func (tx *Txn) Root() *Group {
	return &Group{nodeBase{path: RootPath, kind: KindGroup}}
}

func (tx *Txn) exists(p string) (bool, error) {
	var n int
	err := tx.q.QueryRowContext(tx.ctx, `SELECT count(*) FROM _nodes WHERE path = ?`, p).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", p, err)
	}
	return n > 0, nil
}

// Exists reports whether a node exists at path.
func (tx *Txn) Exists(path string) (bool, error) {
	p, err := Clean(path)
	if err != nil {
		return false, err
	}
	return tx.exists(p)
}

// Lookup returns the node at path, or an error wrapping ErrNotFound.
func (tx *Txn) Lookup(path string) (Node, error) {
	p, err := Clean(path)
	if err != nil {
		return nil, err
	}
	if p == RootPath {
		return tx.Root(), nil
	}

	var (
		parent, name, kind string
		storage, spec      sql.NullString
	)
	err = tx.q.QueryRowContext(tx.ctx, `
		SELECT parent, name, kind, storage, format FROM _nodes WHERE path = ?
	`, p).Scan(&parent, &name, &kind, &storage, &spec)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("node", p)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", p, err)
	}

	base := nodeBase{path: p, parent: parent, name: name, kind: Kind(kind), storage: storage.String}
	switch base.kind {
	case KindGroup:
		return &Group{base}, nil

	case KindTable:
		schema, err := tx.loadSchema(p)
		if err != nil {
			return nil, err
		}
		return &TableLeaf{nodeBase: base, schema: schema}, nil

	case KindArray:
		elem, err := format.Parse(spec.String)
		if err != nil {
			return nil, fmt.Errorf("array %s: %w", p, err)
		}
		return &ArrayLeaf{nodeBase: base, elem: elem}, nil
	}

	return nil, fmt.Errorf("node %s has kind %q: %w", p, kind, errors.ErrInternal)
}

func (tx *Txn) loadSchema(p string) (format.Schema, error) {
	rows, err := tx.q.QueryContext(tx.ctx, `
		SELECT name, format FROM _columns WHERE path = ? ORDER BY position
	`, p)
	if err != nil {
		return nil, fmt.Errorf("load columns of %s: %w", p, err)
	}
	defer rows.Close()

	var cols []format.Column
	for rows.Next() {
		var name, text string
		if err := rows.Scan(&name, &text); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", p, err)
		}
		spec, err := format.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("column %s of %s: %w", name, p, err)
		}
		cols = append(cols, format.Column{Name: name, Spec: spec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load columns of %s: %w", p, err)
	}
	return format.NewSchema(cols...)
}

// Children returns the direct children of g ordered by name.
func (tx *Txn) Children(g *Group) ([]Node, error) {
	rows, err := tx.q.QueryContext(tx.ctx, `
		SELECT path FROM _nodes WHERE parent = ? ORDER BY name
	`, g.Path())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", g.Path(), err)
	}

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan child of %s: %w", g.Path(), err)
		}
		paths = append(paths, p)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", g.Path(), err)
	}

	nodes := make([]Node, 0, len(paths))
	for _, p := range paths {
		n, err := tx.Lookup(p)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Walk calls fn for n and then, depth first, for every node below it.
func (tx *Txn) Walk(n Node, fn func(Node) error) error {
	if err := fn(n); err != nil {
		return err
	}
	g, ok := AsGroup(n)
	if !ok {
		return nil
	}
	children, err := tx.Children(g)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := tx.Walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Creation
// =============================================================================

// CreateGroup creates an empty group named name under parent.
func (tx *Txn) CreateGroup(parent *Group, name string) (*Group, error) {
	base, err := tx.insertNode(parent, name, KindGroup, "")
	if err != nil {
		return nil, err
	}
	return &Group{base}, nil
}

// CreateTable creates an empty table leaf with the given schema.
func (tx *Txn) CreateTable(parent *Group, name string, schema format.Schema) (*TableLeaf, error) {
	base, err := tx.insertNode(parent, name, KindTable, "")
	if err != nil {
		return nil, err
	}

	defs := []string{quoteIdent(format.RowColumn) + " BIGINT NOT NULL"}
	for i, c := range schema {
		defs = append(defs, quoteIdent(c.Name)+" "+c.Spec.SQLType())
		if _, err := tx.q.ExecContext(tx.ctx, `
			INSERT INTO _columns (path, name, format, position) VALUES (?, ?, ?, ?)
		`, base.path, c.Name, c.Spec.String(), i); err != nil {
			return nil, fmt.Errorf("record column %s of %s: %w", c.Name, base.path, err)
		}
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(base.storage), strings.Join(defs, ", "))
	if _, err := tx.q.ExecContext(tx.ctx, ddl); err != nil {
		return nil, fmt.Errorf("create storage for %s: %w", base.path, err)
	}
	return &TableLeaf{nodeBase: base, schema: schema}, nil
}

// CreateArray creates an empty array leaf whose entries have format elem.
func (tx *Txn) CreateArray(parent *Group, name string, elem format.Spec) (*ArrayLeaf, error) {
	if !elem.IsValid() {
		return nil, fmt.Errorf("array element %s: %w", elem, errors.ErrInvalidFormat)
	}
	base, err := tx.insertNode(parent, name, KindArray, elem.String())
	if err != nil {
		return nil, err
	}

	ddl := fmt.Sprintf("CREATE TABLE %s (%s BIGINT NOT NULL, codec VARCHAR NOT NULL, payload BLOB)",
		quoteIdent(base.storage), quoteIdent(format.RowColumn))
	if _, err := tx.q.ExecContext(tx.ctx, ddl); err != nil {
		return nil, fmt.Errorf("create storage for %s: %w", base.path, err)
	}
	return &ArrayLeaf{nodeBase: base, elem: elem}, nil
}

func (tx *Txn) insertNode(parent *Group, name string, kind Kind, spec string) (nodeBase, error) {
	if err := tx.checkWritable(); err != nil {
		return nodeBase{}, err
	}
	if err := validateNodeName(name); err != nil {
		return nodeBase{}, err
	}

	p := Join(parent.Path(), name)
	exists, err := tx.exists(p)
	if err != nil {
		return nodeBase{}, err
	}
	if exists {
		return nodeBase{}, errors.NewAlreadyExists("node", p)
	}

	base := nodeBase{path: p, parent: parent.Path(), name: name, kind: kind}
	if kind != KindGroup {
		var seq int64
		if err := tx.q.QueryRowContext(tx.ctx, `SELECT nextval('_leaf_seq')`).Scan(&seq); err != nil {
			return nodeBase{}, fmt.Errorf("allocate storage for %s: %w", p, err)
		}
		base.storage = fmt.Sprintf("leaf_%d", seq)
	}

	if _, err := tx.q.ExecContext(tx.ctx, `
		INSERT INTO _nodes (path, parent, name, kind, storage, format, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, p, base.parent, name, string(kind), nullable(base.storage), nullable(spec), time.Now()); err != nil {
		return nodeBase{}, fmt.Errorf("create %s: %w", p, err)
	}
	return base, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// =============================================================================
// Removal and Renaming
// =============================================================================

// Remove deletes a leaf together with its storage, or an empty group.
func (tx *Txn) Remove(n Node) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	p := n.Path()
	if p == RootPath {
		return errors.NewInvalidPath(p, "cannot remove root")
	}

	if g, ok := AsGroup(n); ok {
		var count int
		if err := tx.q.QueryRowContext(tx.ctx, `
			SELECT count(*) FROM _nodes WHERE parent = ?
		`, g.Path()).Scan(&count); err != nil {
			return fmt.Errorf("count children of %s: %w", p, err)
		}
		if count > 0 {
			return fmt.Errorf("group %s has %d children: %w", p, count, errors.ErrNotEmpty)
		}
	}

	if storage := n.base().storage; storage != "" {
		if _, err := tx.q.ExecContext(tx.ctx, "DROP TABLE IF EXISTS "+quoteIdent(storage)); err != nil {
			return fmt.Errorf("drop storage of %s: %w", p, err)
		}
	}

	for _, table := range []string{"_columns", "_attrs", "_nodes"} {
		if _, err := tx.q.ExecContext(tx.ctx, "DELETE FROM "+table+" WHERE path = ?", p); err != nil {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// Move renames n to name under parent and returns the node at its new
// path. Moving a group carries its whole subtree.
func (tx *Txn) Move(n Node, parent *Group, name string) (Node, error) {
	if err := tx.checkWritable(); err != nil {
		return nil, err
	}
	if err := validateNodeName(name); err != nil {
		return nil, err
	}

	from := n.Path()
	to := Join(parent.Path(), name)
	if from == RootPath {
		return nil, errors.NewInvalidPath(from, "cannot move root")
	}
	if to == from {
		return n, nil
	}
	if _, ok := AsGroup(n); ok && strings.HasPrefix(to, from+"/") {
		return nil, errors.NewInvalidPath(to, "cannot move a group below itself")
	}

	exists, err := tx.exists(to)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.NewAlreadyExists("node", to)
	}

	if _, err := tx.q.ExecContext(tx.ctx, `
		UPDATE _nodes SET path = ?, parent = ?, name = ? WHERE path = ?
	`, to, parent.Path(), name, from); err != nil {
		return nil, fmt.Errorf("move %s: %w", from, err)
	}

	// Descendants keep their suffix below the moved prefix.
	prefix := from + "/"
	if _, err := tx.q.ExecContext(tx.ctx, `
		UPDATE _nodes
		SET path = ? || substr(path, length(?) + 1),
		    parent = ? || substr(parent, length(?) + 1)
		WHERE starts_with(path, ?)
	`, to, from, to, from, prefix); err != nil {
		return nil, fmt.Errorf("move children of %s: %w", from, err)
	}

	for _, table := range []string{"_columns", "_attrs"} {
		if _, err := tx.q.ExecContext(tx.ctx, `
			UPDATE `+table+` SET path = ? || substr(path, length(?) + 1)
			WHERE path = ? OR starts_with(path, ?)
		`, to, from, from, prefix); err != nil {
			return nil, fmt.Errorf("move %s of %s: %w", table, from, err)
		}
	}

	return tx.Lookup(to)
}

// =============================================================================
// Attributes
// =============================================================================

// Attrs returns the attributes of n.
func (tx *Txn) Attrs(n Node) (map[string]string, error) {
	rows, err := tx.q.QueryContext(tx.ctx, `SELECT key, value FROM _attrs WHERE path = ?`, n.Path())
	if err != nil {
		return nil, fmt.Errorf("attributes of %s: %w", n.Path(), err)
	}
	defer rows.Close()

	attrs := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan attribute of %s: %w", n.Path(), err)
		}
		attrs[key] = value.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("attributes of %s: %w", n.Path(), err)
	}
	return attrs, nil
}

// AttrKeys returns the attribute keys of n in sorted order.
func (tx *Txn) AttrKeys(n Node) ([]string, error) {
	attrs, err := tx.Attrs(n)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// SetAttr sets attribute key of n, replacing any previous value.
func (tx *Txn) SetAttr(n Node, key, value string) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("attribute key of %s: %w", n.Path(), errors.ErrInvalidName)
	}
	if err := tx.DelAttr(n, key); err != nil {
		return err
	}
	if _, err := tx.q.ExecContext(tx.ctx, `
		INSERT INTO _attrs (path, key, value) VALUES (?, ?, ?)
	`, n.Path(), key, value); err != nil {
		return fmt.Errorf("set attribute %s of %s: %w", key, n.Path(), err)
	}
	return nil
}

// DelAttr removes attribute key of n. Removing a missing key is a no-op.
func (tx *Txn) DelAttr(n Node, key string) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if _, err := tx.q.ExecContext(tx.ctx, `
		DELETE FROM _attrs WHERE path = ? AND key = ?
	`, n.Path(), key); err != nil {
		return fmt.Errorf("delete attribute %s of %s: %w", key, n.Path(), err)
	}
	return nil
}

// CopyAttrs copies every attribute of src onto dst, overwriting keys dst
// already has.
func (tx *Txn) CopyAttrs(src, dst Node) error {
	if err := tx.checkWritable(); err != nil {
		return err
	}
	if _, err := tx.q.ExecContext(tx.ctx, `
		DELETE FROM _attrs
		WHERE path = ? AND key IN (SELECT key FROM _attrs WHERE path = ?)
	`, dst.Path(), src.Path()); err != nil {
		return fmt.Errorf("copy attributes to %s: %w", dst.Path(), err)
	}
	if _, err := tx.q.ExecContext(tx.ctx, `
		INSERT INTO _attrs (path, key, value)
		SELECT ?, key, value FROM _attrs WHERE path = ?
	`, dst.Path(), src.Path()); err != nil {
		return fmt.Errorf("copy attributes to %s: %w", dst.Path(), err)
	}
	return nil
}
