// Package datastore buffers measurement results per column and writes them
// into a container file.
//
// Callers obtain columns and arrays from a Session by path, load values into
// them while processing, and call FlushAll at the end of a run. Groups and
// leaves are created lazily on the first write; a table whose persisted
// schema differs from its current columns is migrated in place, keeping its
// rows and attributes.
//
// A Session is not safe for concurrent use.
package datastore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/format"
	"github.com/xtxerr/batcha/internal/logging"
)

// Option configures a Session.
type Option func(*container.Options)

// WithTitle sets the TITLE attribute written when the file is created.
func WithTitle(title string) Option {
	return func(o *container.Options) { o.Title = title }
}

// WithCompression sets the codec and level used for array entries.
func WithCompression(c container.Compression, level int) Option {
	return func(o *container.Options) {
		o.Compression = c
		o.CompressionLevel = level
	}
}

// Session owns an open container file and the tables and arrays buffering
// data for it.
type Session struct {
	file   *container.File
	tables map[string]*Table
	arrays map[string]*Array
	log    *slog.Logger
	closed bool
}

// Open opens filename. A missing file is created unless readonly is set, in
// which case Open fails with ErrFileNotFoundForReadonly.
func Open(filename string, readonly bool, opts ...Option) (*Session, error) {
	exists := true
	if _, err := os.Stat(filename); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat %s: %w", filename, err)
		}
		exists = false
	}

	mode, err := container.ModeFor(exists, readonly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	o := container.DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	f, err := container.Open(filename, mode, o)
	if err != nil {
		return nil, err
	}

	log := logging.Component("datastore").With("file", filename)
	log.Info("session opened", "mode", mode.String())
	return &Session{
		file:   f,
		tables: make(map[string]*Table),
		arrays: make(map[string]*Array),
		log:    log,
	}, nil
}

// File returns the underlying container file.
func (s *Session) File() *container.File { return s.file }

// TableColumn returns the column addressed by path: everything before the
// last segment is the table path, the last segment is the column name.
func (s *Session) TableColumn(path string, spec format.Spec) (*Column, error) {
	if s.closed {
		return nil, errors.ErrSessionClosed
	}
	p, err := container.Clean(path)
	if err != nil {
		return nil, err
	}
	tablePath, name := container.Split(p)
	if tablePath == "" || tablePath == container.RootPath {
		return nil, errors.NewInvalidPath(p, "column needs a table path")
	}

	t, err := s.table(tablePath)
	if err != nil {
		return nil, err
	}
	return t.Column(name, spec)
}

// Table returns the table at path, creating the buffer on first use.
func (s *Session) Table(path string) (*Table, error) {
	if s.closed {
		return nil, errors.ErrSessionClosed
	}
	p, err := container.Clean(path)
	if err != nil {
		return nil, err
	}
	if p == container.RootPath {
		return nil, errors.NewInvalidPath(p, "the root cannot hold data")
	}
	return s.table(p)
}

func (s *Session) table(p string) (*Table, error) {
	if t, ok := s.tables[p]; ok {
		return t, nil
	}
	if _, ok := s.arrays[p]; ok {
		return nil, fmt.Errorf("%s is already an array: %w", p, errors.ErrKindMismatch)
	}
	t := newTable(s, p)
	s.tables[p] = t
	return t, nil
}

// ArrayNode returns the array at path holding opaque object entries.
func (s *Session) ArrayNode(path string) (*Array, error) {
	return s.ArrayNodeFormat(path, format.Object())
}

// ArrayNodeFormat returns the array at path whose entries have format elem.
// Asking for an existing array with a different format fails with
// ErrSchemaConflict.
func (s *Session) ArrayNodeFormat(path string, elem format.Spec) (*Array, error) {
	if s.closed {
		return nil, errors.ErrSessionClosed
	}
	if !elem.IsValid() {
		return nil, fmt.Errorf("array %s: %w", path, errors.ErrInvalidFormat)
	}
	p, err := container.Clean(path)
	if err != nil {
		return nil, err
	}
	if p == container.RootPath {
		return nil, errors.NewInvalidPath(p, "the root cannot hold data")
	}

	if a, ok := s.arrays[p]; ok {
		if a.Elem() != elem {
			return nil, fmt.Errorf("array %s is %s, requested %s: %w", p, a.Elem(), elem, errors.ErrSchemaConflict)
		}
		return a, nil
	}
	if _, ok := s.tables[p]; ok {
		return nil, fmt.Errorf("%s is already a table: %w", p, errors.ErrKindMismatch)
	}
	a := newArray(s, p, elem)
	s.arrays[p] = a
	return a, nil
}

// Paths returns the paths of every table and array owned by the session,
// sorted.
func (s *Session) Paths() []string {
	paths := make([]string, 0, len(s.tables)+len(s.arrays))
	for p := range s.tables {
		paths = append(paths, p)
	}
	for p := range s.arrays {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// FlushAll writes every table and array. A failing node does not stop the
// others; all failures are returned joined.
func (s *Session) FlushAll(ctx context.Context) error {
	if s.closed {
		return errors.ErrSessionClosed
	}

	var errs []error
	for _, p := range s.Paths() {
		var err error
		if t, ok := s.tables[p]; ok {
			err = t.Write(ctx)
		} else {
			err = s.arrays[p].Write(ctx)
		}
		if err != nil {
			s.log.Error("write failed", "path", p, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes and closes the file. Buffered values that were not written
// are discarded. Closing twice is a no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", s.file.Path(), err)
	}
	s.log.Info("session closed")
	return nil
}
