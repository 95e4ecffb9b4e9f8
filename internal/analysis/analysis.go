// Package analysis drives per-frame producers over a trajectory and stores
// their results through a datastore session.
//
// A typical run registers metadata and producers, runs them, then saves:
//
//	a := analysis.New(session)
//	a.AddMetadata("/metadata/trajectory", map[string]string{"frames": "100"})
//	a.AddToSequence("/protein/rmsd/backbone", rmsd, format.Float32(), false)
//	if err := a.Run(ctx, ref, trj); err != nil { ... }
//	if err := a.Save(ctx); err != nil { ... }
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	defaults "github.com/xtxerr/batcha/config"
	"github.com/xtxerr/batcha/internal/container"
	"github.com/xtxerr/batcha/internal/datastore"
	"github.com/xtxerr/batcha/internal/errors"
	"github.com/xtxerr/batcha/internal/format"
	"github.com/xtxerr/batcha/internal/logging"
)

// Trajectory is a sequence of frames.
type Trajectory interface {
	NumFrames() int
}

// Producer computes one value per frame.
type Producer interface {
	// Prepare is called once before the first frame.
	Prepare(ctx context.Context, ref, trj Trajectory) error

	// Process handles frame, numbered from zero.
	Process(ctx context.Context, frame int) error

	// Results returns the values gathered so far.
	Results() []any
}

// Timeseries computes all of its values over a trajectory in one call.
type Timeseries interface {
	Compute(ctx context.Context, trj Trajectory) ([]any, error)
}

// sink is where a producer's results go: a table column or an array.
type sink interface {
	Extend(vs []any)
}

type sequential struct {
	path     string
	producer Producer
	sink     sink
}

type timeseries struct {
	path   string
	series Timeseries
	column *datastore.Column
}

// Analysis collects producers bound to paths of a session.
type Analysis struct {
	session    *datastore.Session
	sequential map[string]*sequential
	timeseries map[string]*timeseries
	log        *slog.Logger
}

// New creates an analysis writing to session.
func New(session *datastore.Session) *Analysis {
	return &Analysis{
		session:    session,
		sequential: make(map[string]*sequential),
		timeseries: make(map[string]*timeseries),
		log:        logging.Component("analysis"),
	}
}

// Session returns the session results are written to.
func (a *Analysis) Session() *datastore.Session { return a.session }

// AddMetadata buffers one row in the table at path with a string column per
// key of data.
func (a *Analysis) AddMetadata(path string, data map[string]string) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		col, err := a.session.TableColumn(container.Join(path, k), format.String(defaults.DefaultStringWidth))
		if err != nil {
			return fmt.Errorf("metadata %s: %w", path, err)
		}
		col.Load(data[k])
	}
	a.log.Debug("metadata loaded", "path", path, "keys", len(keys))
	return nil
}

// AddTimeseries binds series to the column at path.
func (a *Analysis) AddTimeseries(path string, series Timeseries, spec format.Spec) error {
	p, err := container.Clean(path)
	if err != nil {
		return err
	}
	if _, ok := a.timeseries[p]; ok {
		return errors.NewAlreadyExists("timeseries", p)
	}
	col, err := a.session.TableColumn(p, spec)
	if err != nil {
		return err
	}
	a.timeseries[p] = &timeseries{path: p, series: series, column: col}
	return nil
}

// AddToSequence binds producer to path: a table column of format spec, or an
// array with entries of format spec when array is set.
func (a *Analysis) AddToSequence(path string, producer Producer, spec format.Spec, array bool) error {
	p, err := container.Clean(path)
	if err != nil {
		return err
	}
	if _, ok := a.sequential[p]; ok {
		return errors.NewAlreadyExists("sequential producer", p)
	}

	var s sink
	if array {
		s, err = a.session.ArrayNodeFormat(p, spec)
	} else {
		s, err = a.session.TableColumn(p, spec)
	}
	if err != nil {
		return err
	}
	a.sequential[p] = &sequential{path: p, producer: producer, sink: s}
	return nil
}

// Run computes every timeseries, then feeds each frame of trj to the
// sequential producers in path order and loads their results.
func (a *Analysis) Run(ctx context.Context, ref, trj Trajectory) error {
	if err := a.runTimeseries(ctx, trj); err != nil {
		return err
	}
	return a.runSequential(ctx, ref, trj)
}

func (a *Analysis) runTimeseries(ctx context.Context, trj Trajectory) error {
	if len(a.timeseries) == 0 {
		return nil
	}
	a.log.Info("computing timeseries", "count", len(a.timeseries))

	series := sortedValues(a.timeseries)
	results := make([][]any, len(series))
	g, gctx := errgroup.WithContext(ctx)
	for i, ts := range series {
		g.Go(func() error {
			vs, err := ts.series.Compute(gctx, trj)
			if err != nil {
				return fmt.Errorf("timeseries %s: %w", ts.path, err)
			}
			results[i] = vs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, ts := range series {
		a.log.Debug("loading timeseries", "path", ts.path, "values", len(results[i]))
		ts.column.Extend(results[i])
	}
	return nil
}

func (a *Analysis) runSequential(ctx context.Context, ref, trj Trajectory) error {
	if len(a.sequential) == 0 {
		return nil
	}
	seq := sortedValues(a.sequential)

	for _, s := range seq {
		a.log.Debug("preparing", "path", s.path)
		if err := s.producer.Prepare(ctx, ref, trj); err != nil {
			return fmt.Errorf("prepare %s: %w", s.path, err)
		}
	}

	frames := trj.NumFrames()
	step := progressStep(frames)
	a.log.Info("processing frames", "frames", frames, "producers", len(seq))
	for i := 0; i < frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, s := range seq {
			if err := s.producer.Process(ctx, i); err != nil {
				return fmt.Errorf("process frame %d of %s: %w", i, s.path, err)
			}
		}
		if (i+1)%step == 0 || i+1 == frames {
			a.log.Info("progress", "frame", i+1, "frames", frames, "percent", (i+1)*100/frames)
		}
	}

	for _, s := range seq {
		s.sink.Extend(s.producer.Results())
	}
	a.log.Info("sequential analysis done", "producers", len(seq))
	return nil
}

// progressStep returns the number of frames between progress reports.
func progressStep(frames int) int {
	step := frames / defaults.ProgressSteps
	if step < 1 {
		return 1
	}
	return step
}

func sortedValues[T any](m map[string]*T) []*T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*T, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

// Save writes every buffered table and array.
func (a *Analysis) Save(ctx context.Context) error {
	a.log.Info("saving", "nodes", len(a.session.Paths()))
	return a.session.FlushAll(ctx)
}

// Close closes the session.
func (a *Analysis) Close() error {
	return a.session.Close()
}
