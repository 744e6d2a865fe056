package batch

import "context"

// SliceSource serves an in-memory slice as a DataSource.
type SliceSource[T any] []T

func (s SliceSource[T]) Page(_ context.Context, offset, limit int) ([]T, error) {
	if offset >= len(s) || limit <= 0 {
		return nil, nil
	}
	end := min(offset+limit, len(s))
	return s[offset:end], nil
}

func (s SliceSource[T]) Count(context.Context) (int, error) {
	return len(s), nil
}

// SourceFunc adapts a paging function to the DataSource interface.
// Its Count is always unknown.
type SourceFunc[T any] func(ctx context.Context, offset, limit int) ([]T, error)

func (f SourceFunc[T]) Page(ctx context.Context, offset, limit int) ([]T, error) {
	return f(ctx, offset, limit)
}

func (f SourceFunc[T]) Count(context.Context) (int, error) {
	return -1, nil
}
