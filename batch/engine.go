package batch

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Engine runs batch jobs over a DataSource with a fixed-size pool of workers.
// An Engine holds configuration only and may run any number of jobs,
// concurrently or not.
//
// Type parameters:
//   - T: The payload type of the DataSource
//   - C: The worker-scoped resource type (struct{} when none is needed)
type Engine[T, C any] struct {
	conf     *config
	acquirer Acquirer[C]
}

// NewEngine creates an engine. acquirer may be nil, in which case every worker
// holds the zero C.
//
// Example:
//
//	eng := NewEngine[Doc, *Client](clients, WithWorkerCount(4), WithMaxRetries(3))
//	report, err := eng.Execute(ctx, docs, indexDoc)
func NewEngine[T, C any](acquirer Acquirer[C], opts ...Option) *Engine[T, C] {
	cfg := newConfig(opts...)

	if want := reflect.TypeFor[T](); cfg.itemKey != nil && cfg.itemKeyType != want {
		panic(fmt.Sprintf("WithItemKey expects payload type %s, but engine processes type %s", cfg.itemKeyType, want))
	}

	return &Engine[T, C]{
		conf:     cfg,
		acquirer: acquirer,
	}
}

// Execute processes every item of src exactly once and returns the merged report.
//
// Setup errors (ErrNoWorkFunc, ErrNoSource) are returned before anything
// starts, with a nil Report. Otherwise the Report is always returned, together
// with the producer's error if the source could not be drained: a fetch
// failure, ErrPoolCollapsed, or ctx's error.
func (e *Engine[T, C]) Execute(ctx context.Context, src DataSource[T], work WorkFunc[T, C]) (*Report, error) {
	if work == nil {
		return nil, ErrNoWorkFunc
	}
	if src == nil {
		return nil, ErrNoSource
	}

	start := time.Now()
	runID := uuid.NewString()
	logger := e.conf.logger.With(slog.String("run_id", runID))

	q := newQueue[T](e.conf.highWater())
	pool := newPoolState(e.conf.workerCount)
	p := newProducer(src, q, e.conf.batchSize, pool.collapsed, logger)
	r := &run[T, C]{
		conf:     e.conf,
		queue:    q,
		work:     work,
		acquirer: e.acquirer,
		agg:      newAggregator(),
		pool:     pool,
		logger:   logger,
	}

	logger.Info("run started",
		slog.Int("workers", e.conf.workerCount),
		slog.Int("batch_size", e.conf.batchSize),
		slog.Int("high_water", q.capacity()))

	var g errgroup.Group
	g.Go(func() error {
		return p.run(ctx)
	})

	// Workers start only once there is something to do.
	<-p.ready
	workers := 0
	if p.fetched.Load() > 0 {
		workers = e.conf.workerCount
		for id := range workers {
			g.Go(func() error {
				r.runWorker(ctx, id)
				return nil
			})
		}
	} else {
		logger.Debug("source is empty, no workers started")
	}

	err := g.Wait()

	summary, results := r.agg.snapshot()
	report := &Report{
		RunID:        runID,
		Summary:      summary,
		Results:      results,
		Failures:     r.failureList(),
		Workers:      workers,
		Fetched:      p.fetched.Load(),
		Processed:    r.processed.Load(),
		Failed:       r.failed.Load(),
		PeakQueueLen: q.peakLen(),
		Duration:     time.Since(start),
	}

	logger.Info("run finished",
		slog.Int64("fetched", report.Fetched),
		slog.Int64("processed", report.Processed),
		slog.Int64("failed", report.Failed),
		slog.Int("worker_failures", len(report.Failures)),
		slog.Duration("duration", report.Duration))

	if err != nil {
		logger.Error("run degraded", slog.Any("error", err))
		return report, fmt.Errorf("run %s: %w", runID, err)
	}
	return report, nil
}

// Execute runs fn over src with an engine that needs no worker resource.
func Execute[T any](
	ctx context.Context,
	src DataSource[T],
	fn func(ctx context.Context, item WorkItem[T], wc *WorkContext) error,
	opts ...Option,
) (*Report, error) {
	var work WorkFunc[T, struct{}]
	if fn != nil {
		work = func(ctx context.Context, _ struct{}, item WorkItem[T], wc *WorkContext) error {
			return fn(ctx, item, wc)
		}
	}
	return NewEngine[T, struct{}](nil, opts...).Execute(ctx, src, work)
}
