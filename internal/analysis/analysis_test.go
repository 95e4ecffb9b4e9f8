package analysis

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/datastore"
	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/format"
)

type frames int

func (f frames) NumFrames() int { return int(f) }

// counter records frame*scale for every processed frame.
type counter struct {
	scale    float64
	prepared int
	values   []any
	failAt   int
}

func (c *counter) Prepare(ctx context.Context, ref, trj Trajectory) error {
	c.prepared++
	c.values = nil
	return nil
}

func (c *counter) Process(ctx context.Context, frame int) error {
	if c.failAt > 0 && frame == c.failAt {
		return fmt.Errorf("frame %d unreadable", frame)
	}
	c.values = append(c.values, float64(frame)*c.scale)
	return nil
}

func (c *counter) Results() []any { return c.values }

// shapes returns a slice growing by one element per frame.
type shapes struct{ values []any }

func (s *shapes) Prepare(ctx context.Context, ref, trj Trajectory) error { return nil }

func (s *shapes) Process(ctx context.Context, frame int) error {
	v := make([]any, frame+1)
	for i := range v {
		v[i] = float64(i)
	}
	s.values = append(s.values, v)
	return nil
}

func (s *shapes) Results() []any { return s.values }

type constant float64

func (c constant) Compute(ctx context.Context, trj Trajectory) ([]any, error) {
	out := make([]any, trj.NumFrames())
	for i := range out {
		out[i] = float64(c)
	}
	return out, nil
}

func newAnalysis(t *testing.T) (*Analysis, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.db")
	s, err := datastore.Open(path, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	a := New(s)
	t.Cleanup(func() { a.Close() })
	return a, path
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	a, path := newAnalysis(t)

	rmsd := &counter{scale: 0.5}
	dist := &counter{scale: 2}
	if err := a.AddToSequence("/protein/rmsd/backbone", rmsd, format.Float64(), false); err != nil {
		t.Fatalf("AddToSequence: %v", err)
	}
	if err := a.AddToSequence("/protein/rmsd/distance", dist, format.Float64(), false); err != nil {
		t.Fatalf("AddToSequence: %v", err)
	}
	if err := a.AddToSequence("/protein/contacts", &shapes{}, format.Object(), true); err != nil {
		t.Fatalf("AddToSequence: %v", err)
	}
	if err := a.AddTimeseries("/protein/rmsd/temperature", constant(300), format.Float64()); err != nil {
		t.Fatalf("AddTimeseries: %v", err)
	}
	if err := a.AddMetadata("/metadata/trajectory", map[string]string{"psf": "a.psf", "frames": "4"}); err != nil {
		t.Fatalf("AddMetadata: %v", err)
	}

	if err := a.Run(ctx, frames(0), frames(4)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rmsd.prepared != 1 {
		t.Errorf("Prepare called %d times, want 1", rmsd.prepared)
	}
	if err := a.Save(ctx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err := datastore.Open(path, true)
	if err != nil {
		t.Fatalf("Open read-only: %v", err)
	}
	defer s.Close()

	var (
		rows     [][]any
		meta     [][]any
		entries  []any
		schema   []string
		metaCols []string
	)
	err = s.File().View(ctx, func(tx *container.Txn) error {
		n, err := tx.Lookup("/protein/rmsd")
		if err != nil {
			return err
		}
		leaf, _ := container.AsTable(n)
		schema = leaf.Schema().Names()
		if rows, err = tx.ReadRows(leaf); err != nil {
			return err
		}

		if n, err = tx.Lookup("/metadata/trajectory"); err != nil {
			return err
		}
		leaf, _ = container.AsTable(n)
		metaCols = leaf.Schema().Names()
		if meta, err = tx.ReadRows(leaf); err != nil {
			return err
		}

		if n, err = tx.Lookup("/protein/contacts"); err != nil {
			return err
		}
		arr, _ := container.AsArray(n)
		entries, err = tx.ReadEntries(arr)
		return err
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}

	if diff := cmp.Diff([]string{"backbone", "distance", "temperature"}, schema); diff != "" {
		t.Errorf("schema mismatch (-want +got):\n%s", diff)
	}
	wantRows := [][]any{
		{0.0, 0.0, 300.0},
		{0.5, 2.0, 300.0},
		{1.0, 4.0, 300.0},
		{1.5, 6.0, 300.0},
	}
	if diff := cmp.Diff(wantRows, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"frames", "psf"}, metaCols); diff != "" {
		t.Errorf("metadata columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]any{{"4", "a.psf"}}, meta); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}

	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4", len(entries))
	}
	if diff := cmp.Diff([]any{0.0, 1.0, 2.0}, entries[2]); diff != "" {
		t.Errorf("entry 2 mismatch (-want +got):\n%s", diff)
	}
}

func TestAddDuplicate(t *testing.T) {
	a, _ := newAnalysis(t)

	if err := a.AddToSequence("/r/x", &counter{}, format.Float32(), false); err != nil {
		t.Fatalf("AddToSequence: %v", err)
	}
	if err := a.AddToSequence("/r/x/", &counter{}, format.Float32(), false); !errors.Is(err, errors.ErrAlreadyExists) {
		t.Errorf("duplicate sequence = %v, want ErrAlreadyExists", err)
	}
	if err := a.AddTimeseries("/r/t", constant(1), format.Float32()); err != nil {
		t.Fatalf("AddTimeseries: %v", err)
	}
	if err := a.AddTimeseries("/r/t", constant(1), format.Float32()); !errors.Is(err, errors.ErrAlreadyExists) {
		t.Errorf("duplicate timeseries = %v, want ErrAlreadyExists", err)
	}
	if err := a.AddToSequence("/r/y", &counter{}, format.Float64(), false); err != nil {
		t.Fatalf("AddToSequence: %v", err)
	}
	if err := a.AddToSequence("/r/arr/x", &counter{}, format.Float32(), false); err != nil {
		t.Fatalf("AddToSequence: %v", err)
	}
	if err := a.AddToSequence("/r/arr", &shapes{}, format.Object(), true); !errors.Is(err, errors.ErrKindMismatch) {
		t.Errorf("array over table = %v, want ErrKindMismatch", err)
	}
}

func TestRunStopsOnProcessError(t *testing.T) {
	ctx := context.Background()
	a, _ := newAnalysis(t)

	c := &counter{scale: 1, failAt: 2}
	if err := a.AddToSequence("/r/x", c, format.Float32(), false); err != nil {
		t.Fatalf("AddToSequence: %v", err)
	}
	if err := a.Run(ctx, frames(0), frames(5)); err == nil {
		t.Fatal("expected error from failing producer")
	}
	col, err := a.Session().TableColumn("/r/x", format.Float32())
	if err != nil {
		t.Fatalf("TableColumn: %v", err)
	}
	if col.PendingCount() != 0 {
		t.Errorf("results loaded after failure: %d pending", col.PendingCount())
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a, _ := newAnalysis(t)

	if err := a.AddToSequence("/r/x", &counter{scale: 1}, format.Float32(), false); err != nil {
		t.Fatalf("AddToSequence: %v", err)
	}
	if err := a.Run(ctx, frames(0), frames(3)); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
}

func TestProgressStep(t *testing.T) {
	tests := []struct {
		frames, want int
	}{
		{0, 1},
		{5, 1},
		{10, 1},
		{100, 10},
		{1005, 100},
	}
	for _, tt := range tests {
		if got := progressStep(tt.frames); got != tt.want {
			t.Errorf("progressStep(%d) = %d, want %d", tt.frames, got, tt.want)
		}
	}
}
