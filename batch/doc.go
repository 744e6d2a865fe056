// Package batch provides a generic parallel batch-processing engine.
//
// The engine drains a paginated DataSource through a single producer into a
// bounded queue, hands every item to exactly one of a fixed number of workers,
// and merges what each worker reports into one deduplicated Summary.
//
// # Basic Usage
//
//	src := batch.SliceSource[Order](orders)
//	report, err := batch.Execute(ctx, src, func(ctx context.Context, it batch.WorkItem[Order], wc *batch.WorkContext) error {
//	    if err := sync(ctx, it.Payload); err != nil {
//	        return batch.ItemFailed(it.Payload.ID, err)
//	    }
//	    wc.Updated(it.Payload.ID)
//	    return nil
//	}, batch.WithWorkerCount(8))
//
// # Worker Resources
//
// Workers that need a scoped resource (a pooled connection, a client session)
// use an Engine with an Acquirer. The resource is acquired once per worker and
// released on every exit path:
//
//	eng := batch.NewEngine[Order, *sql.Conn](connAcquirer, batch.WithMaxRetries(5))
//	report, err := eng.Execute(ctx, src, func(ctx context.Context, conn *sql.Conn, it batch.WorkItem[Order], wc *batch.WorkContext) error {
//	    ...
//	})
//
// # Error Handling
//
// The work function classifies its own failures:
//
//   - ItemFailed(id, err): the item is recorded under id in Summary.Errors and
//     the worker moves on to the next item.
//   - Exhausted(err): a transient resource failure. The worker releases its
//     resource, waits for the backoff, re-acquires and retries the same item, at
//     most MaxRetries times.
//   - any other error, or a panic: the worker terminates and a WorkerFailure is
//     recorded. Other workers keep going.
//
// Once past setup, a run always completes and returns its Report. Callers inspect
// Summary.Errors and Report.Failures to learn whether a run degraded.
//
// # Configuration Options
//
//   - WithWorkerCount(n): number of workers (default 10)
//   - WithMaxRetries(n): exhaustion retries per item (default 10)
//   - WithBackoff(d): delay between exhaustion retries (default 30s)
//   - WithBatchSize(n): page size requested from the DataSource (default 200)
//   - WithQueueHeadroom(n): queue capacity per worker (default 20)
//   - WithRateLimit(perSecond, burst): throttle item processing
//   - WithLogger(l): structured logging through log/slog
package batch
