package batch

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSetup is wrapped by every error returned before a run starts.
	ErrSetup = errors.New("batch: invalid setup")

	ErrNoWorkFunc = fmt.Errorf("%w: no work function provided", ErrSetup)
	ErrNoSource   = fmt.Errorf("%w: no data source provided", ErrSetup)

	// ErrResourceExhausted marks a transient failure to obtain a shared resource.
	ErrResourceExhausted = errors.New("batch: resource exhausted")

	// ErrPoolCollapsed is returned when the producer stopped because every
	// worker terminated before the source was drained.
	ErrPoolCollapsed = errors.New("batch: all workers terminated before the source was drained")
)

// ItemError is a recoverable failure of a single item.
type ItemError struct {
	ID  string
	Err error
}

func (e *ItemError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("item failed: %v", e.Err)
	}
	return fmt.Sprintf("item %s failed: %v", e.ID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// ItemFailed returns an error that fails only the current item. An empty id
// falls back to the key configured with WithItemKey.
func ItemFailed(id string, err error) error {
	return &ItemError{ID: id, Err: err}
}

// Exhausted wraps err so that it is treated as a transient resource failure.
func Exhausted(err error) error {
	if err == nil {
		return ErrResourceExhausted
	}
	return fmt.Errorf("%w: %w", ErrResourceExhausted, err)
}

// WorkerFailure records why a worker terminated abnormally.
type WorkerFailure struct {
	WorkerID int
	// Seq of the item in flight when the worker died, -1 if none.
	Seq      int64
	Attempts int
	Err      error
}

func (f *WorkerFailure) Error() string {
	return fmt.Sprintf("worker %d terminated (seq=%d, attempts=%d): %v", f.WorkerID, f.Seq, f.Attempts, f.Err)
}

func (f *WorkerFailure) Unwrap() error { return f.Err }

// outcome tags the result of one work invocation.
type outcome int

const (
	outcomeDone outcome = iota
	outcomeItemFailed
	outcomeExhausted
	outcomeCanceled
	outcomeFatal
)

func (o outcome) String() string {
	switch o {
	case outcomeDone:
		return "done"
	case outcomeItemFailed:
		return "item_failed"
	case outcomeExhausted:
		return "exhausted"
	case outcomeCanceled:
		return "canceled"
	default:
		return "fatal"
	}
}

func classify(ctx context.Context, err error) outcome {
	if err == nil {
		return outcomeDone
	}

	var itemErr *ItemError
	switch {
	case errors.As(err, &itemErr):
		return outcomeItemFailed
	case errors.Is(err, ErrResourceExhausted):
		return outcomeExhausted
	case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return outcomeCanceled
	default:
		return outcomeFatal
	}
}
