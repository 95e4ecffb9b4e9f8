// Package summary computes descriptive statistics of numeric columns.
package summary

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/format"
)

// Summary describes the values of one column. Percentiles are estimates
// within the relative accuracy the summary was computed with; they are nil
// when the column has no non-null values.
type Summary struct {
	Count int64 // non-null values
	Nulls int64
	Min   float64
	Max   float64
	Sum   float64
	Avg   float64
	P50   *float64
	P90   *float64
	P95   *float64
	P99   *float64
}

// Aggregate maintains running statistics over a stream of values.
type Aggregate struct {
	mu sync.Mutex

	count int64
	nulls int64
	sum   float64
	min   float64
	max   float64

	sketch *ddsketch.DDSketch
}

// New creates an aggregate whose percentiles have the given relative
// accuracy (0.01 = 1% error).
func New(accuracy float64) (*Aggregate, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err != nil {
		return nil, fmt.Errorf("accuracy %v: %v: %w", accuracy, err, errors.ErrInvalidConfig)
	}
	return &Aggregate{
		min:    math.MaxFloat64,
		max:    -math.MaxFloat64,
		sketch: sketch,
	}, nil
}

// Add adds a value.
func (a *Aggregate) Add(v float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if math.IsNaN(v) {
		a.nulls++
		return
	}

	a.count++
	a.sum += v
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
	a.sketch.Add(v)
}

// AddNull records a missing value.
func (a *Aggregate) AddNull() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nulls++
}

// Merge combines other into a.
func (a *Aggregate) Merge(other *Aggregate) error {
	if other == nil || other == a {
		return nil
	}

	a.mu.Lock()
	other.mu.Lock()
	defer a.mu.Unlock()
	defer other.mu.Unlock()

	if err := a.sketch.MergeWith(other.sketch); err != nil {
		return fmt.Errorf("merge sketches: %w", err)
	}
	a.count += other.count
	a.nulls += other.nulls
	a.sum += other.sum
	if other.min < a.min {
		a.min = other.min
	}
	if other.max > a.max {
		a.max = other.max
	}
	return nil
}

// Result returns the statistics gathered so far.
func (a *Aggregate) Result() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{Count: a.count, Nulls: a.nulls, Sum: a.sum}
	if a.count == 0 {
		return s
	}

	s.Min = a.min
	s.Max = a.max
	s.Avg = a.sum / float64(a.count)

	quantile := func(q float64) *float64 {
		v, err := a.sketch.GetValueAtQuantile(q)
		if err != nil {
			return nil
		}
		return &v
	}
	s.P50 = quantile(0.50)
	s.P90 = quantile(0.90)
	s.P95 = quantile(0.95)
	s.P99 = quantile(0.99)
	return s
}

// Column summarizes the numeric column name of leaf.
func Column(ctx context.Context, f *container.File, leaf *container.TableLeaf, name string, accuracy float64) (Summary, error) {
	spec, ok := leaf.Schema().Lookup(name)
	if !ok {
		return Summary{}, fmt.Errorf("%s in %s: %w", name, leaf.Path(), errors.ErrColumnNotFound)
	}
	switch spec.Kind() {
	case format.KindFloat32, format.KindFloat64, format.KindInt64:
	default:
		return Summary{}, fmt.Errorf("column %s of %s is %s, not numeric: %w", name, leaf.Path(), spec, errors.ErrValueType)
	}

	agg, err := New(accuracy)
	if err != nil {
		return Summary{}, err
	}

	var values []any
	err = f.View(ctx, func(tx *container.Txn) error {
		var err error
		values, err = tx.ReadColumn(leaf, name)
		return err
	})
	if err != nil {
		return Summary{}, err
	}

	for _, v := range values {
		switch x := v.(type) {
		case nil:
			agg.AddNull()
		case float32:
			agg.Add(float64(x))
		case float64:
			agg.Add(x)
		case int64:
			agg.Add(float64(x))
		default:
			return Summary{}, fmt.Errorf("column %s of %s holds %T: %w", name, leaf.Path(), v, errors.ErrInternal)
		}
	}
	return agg.Result(), nil
}
