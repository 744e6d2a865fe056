package batch

import (
	"context"
	"sync"
	"sync/atomic"
)

// queue is a bounded FIFO of work items between the producer and the workers.
//
// Its capacity is the high-water mark: push blocks while that many items are
// waiting. A receive on the channel is exclusive, so no two workers ever observe
// the same item. Closing the queue is the producer-done signal.
type queue[T any] struct {
	items     chan WorkItem[T]
	peak      atomic.Int64
	closeOnce sync.Once
}

func newQueue[T any](highWater int) *queue[T] {
	return &queue[T]{
		items: make(chan WorkItem[T], max(highWater, 1)),
	}
}

// push blocks until there is room for it, the pool collapses or ctx is done.
func (q *queue[T]) push(ctx context.Context, collapsed <-chan struct{}, it WorkItem[T]) error {
	select {
	case <-collapsed:
		return ErrPoolCollapsed
	default:
	}

	select {
	case q.items <- it:
		q.observe()
		return nil
	case <-collapsed:
		return ErrPoolCollapsed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pop blocks for the next item. ok is false once the queue is closed and
// drained, or ctx is done.
func (q *queue[T]) pop(ctx context.Context) (it WorkItem[T], ok bool) {
	select {
	case it, ok = <-q.items:
		return it, ok
	case <-ctx.Done():
		return it, false
	}
}

// tryPop returns immediately. ok is false when nothing is waiting.
func (q *queue[T]) tryPop() (it WorkItem[T], ok bool) {
	select {
	case it, ok = <-q.items:
		return it, ok
	default:
		return it, false
	}
}

func (q *queue[T]) len() int { return len(q.items) }

func (q *queue[T]) capacity() int { return cap(q.items) }

// peakLen is the largest length observed right after a push.
func (q *queue[T]) peakLen() int { return int(q.peak.Load()) }

func (q *queue[T]) close() {
	q.closeOnce.Do(func() { close(q.items) })
}

func (q *queue[T]) observe() {
	n := int64(len(q.items))
	for {
		cur := q.peak.Load()
		if n <= cur || q.peak.CompareAndSwap(cur, n) {
			return
		}
	}
}
