// Package export writes container leaves to Parquet files.
//
// Every table leaf becomes one file with one optional column per schema
// column; object columns are written as JSON. Array leaves become a file
// with a single JSON column named "entry".
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"golang.org/x/sync/errgroup"

	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/format"
	"github.com/xtxerr/batcha/internal/logging"
)

// Compression represents a Parquet compression algorithm.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionSnappy
	CompressionZstd
	CompressionLZ4
	CompressionGzip
)

// ParseCompression parses a compression name. The empty string selects zstd.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "zstd", "":
		return CompressionZstd, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lz4":
		return CompressionLZ4, nil
	case "gzip":
		return CompressionGzip, nil
	case "none":
		return CompressionNone, nil
	}
	return CompressionNone, fmt.Errorf("parquet compression %q: %w", s, errors.ErrInvalidConfig)
}

func (c Compression) codec() compress.Codec {
	switch c {
	case CompressionSnappy:
		return &parquet.Snappy
	case CompressionZstd:
		return &parquet.Zstd
	case CompressionLZ4:
		return &parquet.Lz4Raw
	case CompressionGzip:
		return &parquet.Gzip
	default:
		return &parquet.Uncompressed
	}
}

// Options configures an export.
type Options struct {
	// Compression is the page compression.
	Compression Compression

	// Workers bounds the number of files written in parallel by Tree.
	Workers int

	// RowGroupSize is the maximum number of rows per row group.
	RowGroupSize int64
}

// DefaultOptions returns default export options.
func DefaultOptions() Options {
	return Options{
		Compression:  CompressionZstd,
		Workers:      4,
		RowGroupSize: 100000,
	}
}

// Result describes one exported leaf.
type Result struct {
	Node string // container path
	File string // written file
	Rows int
}

// FileName maps a node path to the file name used by Tree, e.g.
// "/results/rmsd" to "results.rmsd.parquet".
func FileName(nodePath string) string {
	return strings.ReplaceAll(strings.TrimPrefix(nodePath, "/"), "/", ".") + ".parquet"
}

// =============================================================================
// Tables
// =============================================================================

// Table writes every row of leaf to the Parquet file at path.
func Table(ctx context.Context, f *container.File, leaf *container.TableLeaf, path string, opts Options) (Result, error) {
	var rows [][]any
	err := f.View(ctx, func(tx *container.Txn) error {
		var err error
		rows, err = tx.ReadRows(leaf)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	schema := leaf.Schema()
	group := make(parquet.Group, len(schema))
	for _, c := range schema {
		group[c.Name] = parquet.Optional(node(c.Spec))
	}
	ps := parquet.NewSchema(leaf.Name(), group)

	// Leaf columns are indexed in field order, which parquet sorts by name.
	index := make(map[string]int, len(schema))
	for i, field := range ps.Fields() {
		index[field.Name()] = i
	}

	out := make([]parquet.Row, len(rows))
	for r, row := range rows {
		prow := make(parquet.Row, len(schema))
		for i, c := range schema {
			v, err := value(c.Spec, row[i])
			if err != nil {
				return Result{}, fmt.Errorf("row %d column %s of %s: %w", r, c.Name, leaf.Path(), err)
			}
			col := index[c.Name]
			if v.IsNull() {
				prow[col] = v.Level(0, 0, col)
			} else {
				prow[col] = v.Level(0, 1, col)
			}
		}
		out[r] = prow
	}

	if err := write(path, ps, out, opts); err != nil {
		return Result{}, fmt.Errorf("export %s: %w", leaf.Path(), err)
	}
	return Result{Node: leaf.Path(), File: path, Rows: len(out)}, nil
}

func node(s format.Spec) parquet.Node {
	switch s.Kind() {
	case format.KindString:
		return parquet.String()
	case format.KindFloat32:
		return parquet.Leaf(parquet.FloatType)
	case format.KindFloat64:
		return parquet.Leaf(parquet.DoubleType)
	case format.KindInt64:
		return parquet.Leaf(parquet.Int64Type)
	case format.KindBool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.JSON()
	}
}

func value(s format.Spec, v any) (parquet.Value, error) {
	if v == nil {
		return parquet.NullValue(), nil
	}
	if s.Kind() == format.KindObject {
		b, err := json.Marshal(v)
		if err != nil {
			return parquet.Value{}, fmt.Errorf("encode object as JSON: %w", err)
		}
		return parquet.ByteArrayValue(b), nil
	}
	return parquet.ValueOf(v), nil
}

// =============================================================================
// Arrays
// =============================================================================

// Array writes every entry of leaf as JSON to the Parquet file at path.
func Array(ctx context.Context, f *container.File, leaf *container.ArrayLeaf, path string, opts Options) (Result, error) {
	var entries []any
	err := f.View(ctx, func(tx *container.Txn) error {
		var err error
		entries, err = tx.ReadEntries(leaf)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	ps := parquet.NewSchema(leaf.Name(), parquet.Group{"entry": parquet.JSON()})
	out := make([]parquet.Row, len(entries))
	for i, e := range entries {
		b, err := json.Marshal(e)
		if err != nil {
			return Result{}, fmt.Errorf("entry %d of %s: %w", i, leaf.Path(), err)
		}
		out[i] = parquet.Row{parquet.ByteArrayValue(b).Level(0, 0, 0)}
	}

	if err := write(path, ps, out, opts); err != nil {
		return Result{}, fmt.Errorf("export %s: %w", leaf.Path(), err)
	}
	return Result{Node: leaf.Path(), File: path, Rows: len(out)}, nil
}

func write(path string, schema *parquet.Schema, rows []parquet.Row, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	writerOpts := []parquet.WriterOption{
		schema,
		parquet.Compression(opts.Compression.codec()),
	}
	if opts.RowGroupSize > 0 {
		writerOpts = append(writerOpts, parquet.MaxRowsPerRowGroup(opts.RowGroupSize))
	}
	w := parquet.NewWriter(file, writerOpts...)

	if _, err := w.WriteRows(rows); err != nil {
		w.Close()
		file.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		file.Close()
		return fmt.Errorf("close writer: %w", err)
	}
	return file.Close()
}

// =============================================================================
// Trees
// =============================================================================

// Tree exports every leaf at or below root into dir, writing up to
// opts.Workers files at a time. Results follow the depth-first order of
// the tree, children sorted by name.
func Tree(ctx context.Context, f *container.File, root, dir string, opts Options) ([]Result, error) {
	log := logging.Component("export")

	var leaves []container.Node
	err := f.View(ctx, func(tx *container.Txn) error {
		start, err := tx.Lookup(root)
		if err != nil {
			return err
		}
		return tx.Walk(start, func(n container.Node) error {
			if n.Kind() != container.KindGroup {
				leaves = append(leaves, n)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(leaves))
	g, ctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}
	for i, n := range leaves {
		g.Go(func() error {
			path := filepath.Join(dir, FileName(n.Path()))
			var (
				res Result
				err error
			)
			switch leaf := n.(type) {
			case *container.TableLeaf:
				res, err = Table(ctx, f, leaf, path, opts)
			case *container.ArrayLeaf:
				res, err = Array(ctx, f, leaf, path, opts)
			}
			if err != nil {
				return err
			}
			log.Debug("exported", "node", res.Node, "file", res.File, "rows", res.Rows)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("export complete", "root", root, "files", len(results), "dir", dir)
	return results, nil
}
