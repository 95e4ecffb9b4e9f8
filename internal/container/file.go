// Package container implements the hierarchical container file backing a
// store session.
//
// A container is a single local DuckDB database file holding a rooted tree of
// nodes: groups (pure containers), table leaves (rows of a named, typed
// schema) and array leaves (append-only sequences of independently
// serialized entries). Nodes are addressed by "/"-joined paths and may carry
// flat string attributes.
//
// Layout inside the database:
//
//	_nodes    (path, parent, name, kind, storage, format, created_at)
//	_columns  (path, name, format, position)
//	_attrs    (path, key, value)
//	leaf_<n>  one physical table per leaf, named from the _leaf_seq sequence
//
// The physical table of a leaf never changes name; moving a node only
// rewrites the metadata rows. All mutation goes through File.Update, which
// runs in one SQL transaction.
package container

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/logging"
)

// =============================================================================
// Open Modes
// =============================================================================

// Mode selects how a container file is opened.
type Mode int

const (
	// ModeCreate creates a new file, replacing any existing one.
	ModeCreate Mode = iota
	// ModeUpdate opens an existing file for reading and writing.
	ModeUpdate
	// ModeReadOnly opens an existing file for reading only.
	ModeReadOnly
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeCreate:
		return "create"
	case ModeUpdate:
		return "update"
	case ModeReadOnly:
		return "read-only"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ModeFor picks the open mode for a file given whether it exists and
// whether the caller wants read-only access.
func ModeFor(exists, readonly bool) (Mode, error) {
	switch {
	case !exists && readonly:
		return 0, errors.ErrFileNotFoundForReadonly
	case !exists:
		return ModeCreate, nil
	case readonly:
		return ModeReadOnly, nil
	default:
		return ModeUpdate, nil
	}
}

// =============================================================================
// Options
// =============================================================================

// Options configures a container file.
type Options struct {
	// Title is stored as the TITLE attribute of the root group when the
	// file is created.
	Title string

	// Compression is the codec used for new array entries.
	Compression Compression

	// CompressionLevel is passed to codecs that support levels.
	CompressionLevel int
}

// DefaultOptions returns the default container options.
func DefaultOptions() Options {
	return Options{
		Title:            "datastore",
		Compression:      CompressionZstd,
		CompressionLevel: 1,
	}
}

// =============================================================================
// File
// =============================================================================

// File is an open container file.
//
// File is not safe for concurrent mutation: callers serialize Update calls.
// Concurrent View calls are allowed and are serialized on the file's single
// connection.
type File struct {
	db     *sql.DB
	path   string
	mode   Mode
	opts   Options
	write  codec
	codecs codecSet
	log    *slog.Logger
	closed bool
}

// Open opens the container file at path in the given mode.
func Open(path string, mode Mode, opts Options) (*File, error) {
	log := logging.Component("container").With("file", path)

	dsn := path
	switch mode {
	case ModeCreate:
		// Replace an existing file the way a create-write open truncates.
		for _, p := range []string{path, path + ".wal"} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("remove existing %s: %w", p, err)
			}
		}
	case ModeUpdate, ModeReadOnly:
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) && mode == ModeReadOnly {
				return nil, fmt.Errorf("%s: %w", path, errors.ErrFileNotFoundForReadonly)
			}
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if mode == ModeReadOnly {
			dsn = path + "?access_mode=read_only"
		}
	default:
		return nil, fmt.Errorf("open mode %s: %w", mode, errors.ErrInvalidConfig)
	}

	wc, err := newCodec(opts.Compression, opts.CompressionLevel)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection: the container has a single writer, and every
	// transaction sees the state left by the previous one.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	f := &File{
		db:    db,
		path:  path,
		mode:  mode,
		opts:  opts,
		write: wc,
		log:   log,
	}
	f.codecs.codecs = map[Compression]codec{wc.Name(): wc}

	if mode == ModeReadOnly {
		err = f.checkLayout(ctx)
	} else {
		err = f.initLayout(ctx)
	}
	if err != nil {
		f.codecs.close()
		db.Close()
		return nil, err
	}

	log.Debug("container opened", "mode", mode.String())
	return f, nil
}

// Path returns the file path.
func (f *File) Path() string { return f.path }

// Mode returns the mode the file was opened with.
func (f *File) Mode() Mode { return f.mode }

// ReadOnly reports whether the file rejects updates.
func (f *File) ReadOnly() bool { return f.mode == ModeReadOnly }

// Flush writes all committed changes to the file.
func (f *File) Flush(ctx context.Context) error {
	if f.closed {
		return errors.ErrSessionClosed
	}
	if f.mode == ModeReadOnly {
		return nil
	}
	if _, err := f.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Close flushes and closes the file. Closing twice is a no-op.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	var flushErr error
	if f.mode != ModeReadOnly {
		if _, err := f.db.Exec("CHECKPOINT"); err != nil {
			flushErr = fmt.Errorf("checkpoint: %w", err)
		}
	}
	f.codecs.close()

	if err := f.db.Close(); err != nil {
		return errors.Join(flushErr, fmt.Errorf("close database: %w", err))
	}
	f.log.Debug("container closed")
	return flushErr
}

// =============================================================================
// Transaction Support
// =============================================================================

// View runs fn with read access to the tree.
func (f *File) View(ctx context.Context, fn func(*Txn) error) error {
	if f.closed {
		return errors.ErrSessionClosed
	}
	return fn(&Txn{f: f, q: f.db, ctx: ctx})
}

// Update runs fn within a single transaction.
//
// If fn returns an error, the transaction is rolled back and no change made
// by fn is persisted. If fn returns nil, the transaction is committed.
func (f *File) Update(ctx context.Context, fn func(*Txn) error) error {
	if f.closed {
		return errors.ErrSessionClosed
	}
	if f.mode == ModeReadOnly {
		return errors.ErrReadOnly
	}

	tx, err := f.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&Txn{f: f, q: tx, ctx: ctx, writable: true}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// Layout
// =============================================================================

var layoutSQL = []string{
	`CREATE TABLE IF NOT EXISTS _nodes (
		path VARCHAR NOT NULL,
		parent VARCHAR,
		name VARCHAR NOT NULL,
		kind VARCHAR NOT NULL,
		storage VARCHAR,
		format VARCHAR,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS _columns (
		path VARCHAR NOT NULL,
		name VARCHAR NOT NULL,
		format VARCHAR NOT NULL,
		position INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS _attrs (
		path VARCHAR NOT NULL,
		key VARCHAR NOT NULL,
		value VARCHAR
	)`,
	`CREATE SEQUENCE IF NOT EXISTS _leaf_seq START 1`,
}

func (f *File) initLayout(ctx context.Context) error {
	return f.Update(ctx, func(tx *Txn) error {
		for _, stmt := range layoutSQL {
			if _, err := tx.q.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("create layout: %w", err)
			}
		}

		exists, err := tx.exists(RootPath)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		if _, err := tx.q.ExecContext(ctx, `
			INSERT INTO _nodes (path, parent, name, kind, created_at)
			VALUES (?, NULL, '', ?, ?)
		`, RootPath, string(KindGroup), time.Now()); err != nil {
			return fmt.Errorf("create root: %w", err)
		}

		if f.opts.Title != "" {
			return tx.SetAttr(tx.Root(), "TITLE", f.opts.Title)
		}
		return nil
	})
}

func (f *File) checkLayout(ctx context.Context) error {
	var n int
	err := f.db.QueryRowContext(ctx, `
		SELECT count(*) FROM information_schema.tables
		WHERE table_name IN ('_nodes', '_columns', '_attrs')
	`).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect layout: %w", err)
	}
	if n != 3 {
		return fmt.Errorf("%s is not a container file: %w", f.path, errors.ErrInvalidFormat)
	}
	return nil
}
