package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/parquet-go/parquet-go"

	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/format"
	"github.com/xtxerr/batcha/internal/testutil"
)

type measurementRow struct {
	Label *string  `parquet:"label,optional"`
	Value *float32 `parquet:"value,optional"`
	Count *int64   `parquet:"count,optional"`
	Extra *string  `parquet:"extra,optional"`
}

type entryRow struct {
	Entry string `parquet:"entry"`
}

func newTestFile(t *testing.T) *container.File {
	t.Helper()
	f := testutil.NewFile(t)
	schema := testutil.Schema(t, "label", "string(16)", "value", "float32", "count", "int64", "extra", "object")
	// Rows follow schema order, which is sorted by name.
	testutil.Table(t, f, "/res/m", schema, [][]any{
		{1, map[string]any{"k": "v"}, "a", 1.5},
		{2, nil, "b", nil},
	})
	testutil.Array(t, f, "/res/arr", format.Object(), []any{[]any{1.0, 2.0}, "x"})
	return f
}

func ptr[T any](v T) *T { return &v }

func TestParseCompression(t *testing.T) {
	tests := []struct {
		in   string
		want Compression
	}{
		{"", CompressionZstd},
		{"zstd", CompressionZstd},
		{"snappy", CompressionSnappy},
		{"lz4", CompressionLZ4},
		{"gzip", CompressionGzip},
		{"none", CompressionNone},
	}
	for _, tt := range tests {
		got, err := ParseCompression(tt.in)
		if err != nil {
			t.Fatalf("ParseCompression(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseCompression(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseCompression("brotli"); !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("ParseCompression(brotli) = %v, want ErrInvalidConfig", err)
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("/results/rmsd/backbone"); got != "results.rmsd.backbone.parquet" {
		t.Errorf("FileName = %q", got)
	}
}

func TestTable(t *testing.T) {
	ctx := context.Background()
	f := newTestFile(t)

	var leaf *container.TableLeaf
	err := f.View(ctx, func(tx *container.Txn) error {
		n, err := tx.Lookup("/res/m")
		if err != nil {
			return err
		}
		leaf, _ = container.AsTable(n)
		return nil
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	path := filepath.Join(t.TempDir(), "m.parquet")
	res, err := Table(ctx, f, leaf, path, DefaultOptions())
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if res.Rows != 2 || res.Node != "/res/m" {
		t.Errorf("unexpected result: %+v", res)
	}

	rows, err := parquet.ReadFile[measurementRow](path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := []measurementRow{
		{Label: ptr("a"), Value: ptr(float32(1.5)), Count: ptr(int64(1)), Extra: ptr(`{"k":"v"}`)},
		{Label: ptr("b"), Count: ptr(int64(2))},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestTree(t *testing.T) {
	ctx := context.Background()
	f := newTestFile(t)
	dir := t.TempDir()

	opts := DefaultOptions()
	opts.Workers = 2
	opts.Compression = CompressionSnappy

	results, err := Tree(ctx, f, "/", dir, opts)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}

	var got []string
	for _, r := range results {
		got = append(got, filepath.Base(r.File))
		if _, err := os.Stat(r.File); err != nil {
			t.Errorf("exported file missing: %v", err)
		}
	}
	if diff := cmp.Diff([]string{"res.arr.parquet", "res.m.parquet"}, got); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}

	entries, err := parquet.ReadFile[entryRow](filepath.Join(dir, "res.arr.parquet"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if diff := cmp.Diff([]entryRow{{Entry: "[1,2]"}, {Entry: `"x"`}}, entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	if _, err := Tree(ctx, f, "/missing", dir, opts); !errors.IsNotFound(err) {
		t.Errorf("Tree(/missing) = %v, want not found", err)
	}
}
