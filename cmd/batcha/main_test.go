package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xtxerr/batcha/internal/datastore"
	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/format"
)

func newTestFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.db")

	s, err := datastore.Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	rmsd, err := s.TableColumn("/protein/rmsd/backbone", format.Float64())
	if err != nil {
		t.Fatalf("TableColumn: %v", err)
	}
	rmsd.Extend([]any{1.0, 2.0, 3.0, 4.0})
	label, err := s.TableColumn("/protein/rmsd/label", format.String(8))
	if err != nil {
		t.Fatalf("TableColumn: %v", err)
	}
	label.Extend([]any{"a", "b", "c", "d"})

	arr, err := s.ArrayNode("/protein/contacts")
	if err != nil {
		t.Fatalf("ArrayNode: %v", err)
	}
	arr.Extend([]any{[]any{1.0}, []any{1.0, 2.0}})

	if err := s.FlushAll(context.Background()); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTreeCmd(t *testing.T) {
	path := newTestFile(t)

	out, err := run(t, "tree", path)
	if err != nil {
		t.Fatalf("tree: %v\n%s", err, out)
	}
	for _, want := range []string{
		"protein/",
		"contacts  array object  2 entries",
		"rmsd  table {backbone:float64, label:string(8)}  4 rows",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("tree output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "tree", filepath.Join(t.TempDir(), "missing.db")); !errors.Is(err, errors.ErrFileNotFoundForReadonly) {
		t.Errorf("tree on missing file = %v, want ErrFileNotFoundForReadonly", err)
	}
}

func TestAttrsCmd(t *testing.T) {
	path := newTestFile(t)

	out, err := run(t, "attrs", path, "/protein/rmsd", "unit=nm", "source=md")
	if err != nil {
		t.Fatalf("attrs set: %v\n%s", err, out)
	}
	if out != "source=md\nunit=nm\n" {
		t.Errorf("attrs output = %q", out)
	}

	out, err = run(t, "attrs", path, "/protein/rmsd", "--delete", "source")
	if err != nil {
		t.Fatalf("attrs delete: %v", err)
	}
	if out != "unit=nm\n" {
		t.Errorf("attrs output after delete = %q", out)
	}

	if _, err := run(t, "attrs", path, "/protein/rmsd", "novalue"); !errors.Is(err, errors.ErrInvalidName) {
		t.Errorf("attrs with bad assignment = %v, want ErrInvalidName", err)
	}
	if _, err := run(t, "attrs", path, "/nope"); !errors.IsNotFound(err) {
		t.Errorf("attrs on missing node = %v, want not found", err)
	}
}

func TestExportCmd(t *testing.T) {
	path := newTestFile(t)
	dir := t.TempDir()

	out, err := run(t, "export", path, "/protein", "--out", dir, "--compression", "snappy")
	if err != nil {
		t.Fatalf("export: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 files, 6 rows") {
		t.Errorf("export output:\n%s", out)
	}
	for _, name := range []string{"protein.rmsd.parquet", "protein.contacts.parquet"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing export: %v", err)
		}
	}

	if _, err := run(t, "export", path, "--compression", "rar"); !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("export with bad compression = %v, want ErrInvalidConfig", err)
	}
}

func TestStatsCmd(t *testing.T) {
	path := newTestFile(t)

	out, err := run(t, "stats", path, "/protein/rmsd", "backbone")
	if err != nil {
		t.Fatalf("stats: %v\n%s", err, out)
	}
	for _, want := range []string{"count  4\n", "min    1\n", "max    4\n", "avg    2.5\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "stats", path, "/protein/rmsd", "label"); !errors.Is(err, errors.ErrValueType) {
		t.Errorf("stats on string column = %v, want ErrValueType", err)
	}
	if _, err := run(t, "stats", path, "/protein/contacts", "x"); !errors.Is(err, errors.ErrKindMismatch) {
		t.Errorf("stats on array = %v, want ErrKindMismatch", err)
	}
}

func TestConfigFlag(t *testing.T) {
	path := newTestFile(t)
	cfgPath := filepath.Join(t.TempDir(), "batcha.yaml")
	if err := os.WriteFile(cfgPath, []byte("logging:\n  format: xml\n"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := run(t, "--config", cfgPath, "tree", path); err == nil {
		t.Error("expected error for invalid config")
	}
	if _, err := run(t, "--log-format", "yaml", "tree", path); !errors.IsValidation(err) {
		t.Errorf("bad --log-format = %v, want validation error", err)
	}
}
