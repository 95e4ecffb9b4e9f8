package summary

import (
	"context"
	"math"
	"testing"

	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/testutil"
)

func within(got *float64, want, accuracy float64) bool {
	return got != nil && math.Abs(*got-want) <= math.Abs(want)*accuracy*1.01
}

func TestAggregate(t *testing.T) {
	agg, err := New(0.01)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := 1; i <= 100; i++ {
		agg.Add(float64(i))
	}
	agg.AddNull()
	agg.Add(math.NaN())

	s := agg.Result()
	if s.Count != 100 || s.Nulls != 2 {
		t.Errorf("Count = %d, Nulls = %d", s.Count, s.Nulls)
	}
	if s.Min != 1 || s.Max != 100 || s.Sum != 5050 || s.Avg != 50.5 {
		t.Errorf("unexpected stats: %+v", s)
	}
	if !within(s.P50, 50, 0.01) {
		t.Errorf("P50 = %v, want ~50", s.P50)
	}
	if !within(s.P99, 99, 0.01) {
		t.Errorf("P99 = %v, want ~99", s.P99)
	}
}

func TestAggregateEmpty(t *testing.T) {
	agg, err := New(0.01)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s := agg.Result()
	if s.Count != 0 || s.P50 != nil || s.Min != 0 {
		t.Errorf("empty aggregate = %+v", s)
	}
}

func TestAggregateMerge(t *testing.T) {
	a, _ := New(0.01)
	b, _ := New(0.01)
	a.Add(-5)
	b.Add(10)
	b.AddNull()

	if err := a.Merge(b); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	s := a.Result()
	if s.Count != 2 || s.Nulls != 1 || s.Min != -5 || s.Max != 10 || s.Sum != 5 {
		t.Errorf("merged = %+v", s)
	}
}

func TestNewRejectsAccuracy(t *testing.T) {
	if _, err := New(0); !errors.Is(err, errors.ErrInvalidConfig) {
		t.Errorf("New(0) = %v, want ErrInvalidConfig", err)
	}
}

func TestColumn(t *testing.T) {
	ctx := context.Background()
	f := testutil.NewFile(t)
	leaf := testutil.Table(t, f, "/t", testutil.Schema(t, "d", "float32", "s", "string(8)"), [][]any{
		{1.0, "a"}, {2.0, "b"}, {nil, "c"}, {3.0, "d"},
	})

	s, err := Column(ctx, f, leaf, "d", 0.01)
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	if s.Count != 3 || s.Nulls != 1 || s.Min != 1 || s.Max != 3 || s.Avg != 2 {
		t.Errorf("summary = %+v", s)
	}

	if _, err := Column(ctx, f, leaf, "s", 0.01); !errors.Is(err, errors.ErrValueType) {
		t.Errorf("string column = %v, want ErrValueType", err)
	}
	if _, err := Column(ctx, f, leaf, "zz", 0.01); !errors.Is(err, errors.ErrColumnNotFound) {
		t.Errorf("missing column = %v, want ErrColumnNotFound", err)
	}
}
