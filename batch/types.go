package batch

import "context"

// WorkItem is a sequenced unit of input dispatched to exactly one worker.
// Seq reflects fetch order only; completion order across workers is unspecified.
type WorkItem[T any] struct {
	Seq     int64
	Payload T
}

// WorkFunc processes a single item.
//
// Type parameters:
//   - T: The payload type produced by the DataSource
//   - C: The worker-scoped resource type handed out by the Acquirer
//
// Identifiers reported through wc are merged into the run Summary once the
// call returns. The returned error decides what happens next, see ItemFailed
// and Exhausted.
type WorkFunc[T, C any] func(ctx context.Context, conn C, item WorkItem[T], wc *WorkContext) error

// DataSource is a paginated collection of items.
type DataSource[T any] interface {
	// Page returns up to limit items starting at offset. A page shorter than
	// limit marks the end of the collection.
	Page(ctx context.Context, offset, limit int) ([]T, error)

	// Count returns a best-effort total, or -1 when unknown. It is used for
	// progress reporting only.
	Count(ctx context.Context) (int, error)
}

// Acquirer hands out the scoped resource a worker holds while it processes items.
// Acquire may return an error wrapping ErrResourceExhausted to have the worker
// back off and try again.
type Acquirer[C any] interface {
	Acquire(ctx context.Context, workerID int) (C, error)
	Release(conn C)
}

// AcquireFuncs adapts a pair of functions to the Acquirer interface.
// A nil ReleaseFn is allowed.
type AcquireFuncs[C any] struct {
	AcquireFn func(ctx context.Context, workerID int) (C, error)
	ReleaseFn func(conn C)
}

func (a AcquireFuncs[C]) Acquire(ctx context.Context, workerID int) (C, error) {
	return a.AcquireFn(ctx, workerID)
}

func (a AcquireFuncs[C]) Release(conn C) {
	if a.ReleaseFn != nil {
		a.ReleaseFn(conn)
	}
}
