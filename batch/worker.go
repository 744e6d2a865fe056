package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/utkarsh5026/batchrun/internal/cpu"
)

// run holds the state shared by the workers of one Execute call.
type run[T, C any] struct {
	conf     *config
	queue    *queue[T]
	work     WorkFunc[T, C]
	acquirer Acquirer[C]
	agg      *aggregator
	pool     *poolState
	logger   *slog.Logger

	processed atomic.Int64
	failed    atomic.Int64

	mu       sync.Mutex
	failures []WorkerFailure
}

// poolState counts abnormal worker exits. collapsed is closed once every
// worker of the pool has died.
type poolState struct {
	size      int32
	dead      atomic.Int32
	collapsed chan struct{}
	once      sync.Once
}

func newPoolState(size int) *poolState {
	return &poolState{
		size:      int32(size), // #nosec G115 -- worker counts are small
		collapsed: make(chan struct{}),
	}
}

func (p *poolState) workerDied() {
	if p.dead.Add(1) >= p.size {
		p.once.Do(func() { close(p.collapsed) })
	}
}

// workerState is owned by a single worker goroutine.
type workerState[C any] struct {
	id    int
	conn  C
	held  bool
	guard *guard
	local *buffer
	log   *slog.Logger
}

// runWorker runs one worker to completion and does the pool bookkeeping.
func (r *run[T, C]) runWorker(ctx context.Context, id int) {
	err := r.worker(ctx, id)
	if err != nil {
		r.pool.workerDied()
	}
	if r.conf.onWorkerExit != nil {
		callHook(r.logger.With(slog.Int("worker_id", id)), "on_worker_exit", func() {
			r.conf.onWorkerExit(id, err)
		})
	}
}

// worker processes items until the queue is closed and drained or ctx is done.
// A non-nil return is the *WorkerFailure that terminated it.
func (r *run[T, C]) worker(ctx context.Context, id int) error {
	if r.conf.cpuAffinity {
		defer cpu.Pin(id)()
	}

	w := &workerState[C]{
		id:    id,
		guard: newGuard(r.conf),
		local: newBuffer(),
		log:   r.logger.With(slog.Int("worker_id", id)),
	}
	defer r.agg.merge(w.local)
	defer r.release(w)

	w.log.Debug("worker state", slog.String("state", "acquiring"))
	if err := r.acquire(ctx, w); err != nil {
		return r.stop(ctx, w, -1, err)
	}

	for {
		item, ok := r.next(ctx, w)
		if !ok {
			w.log.Debug("worker state", slog.String("state", "terminated"))
			return nil
		}

		if err := r.handle(ctx, w, item); err != nil {
			return r.stop(ctx, w, item.Seq, err)
		}

		w.guard.reset()
		r.agg.merge(w.local)
		w.local.reset()
	}
}

// next takes a queued item without blocking when one is waiting, and only
// otherwise parks the worker on the queue.
func (r *run[T, C]) next(ctx context.Context, w *workerState[C]) (WorkItem[T], bool) {
	if item, ok := r.queue.tryPop(); ok {
		return item, true
	}
	w.log.Debug("worker state", slog.String("state", "idle"))
	return r.queue.pop(ctx)
}

// handle runs item until it completes. Resource exhaustion retries the same
// item with a freshly acquired resource. A non-nil error ends the worker.
func (r *run[T, C]) handle(ctx context.Context, w *workerState[C], item WorkItem[T]) error {
	for {
		if err := r.throttle(ctx); err != nil {
			return err
		}

		wc := newWorkContext()
		err := r.invoke(ctx, w.conn, item, wc)

		o := classify(ctx, err)
		w.log.Debug("item attempted", slog.Int64("seq", item.Seq), slog.String("outcome", o.String()))

		switch o {
		case outcomeDone:
			w.local.absorb(wc, true)
			r.processed.Add(1)

		case outcomeItemFailed:
			w.local.Errors.Add(r.itemID(w, item, err))
			w.local.absorb(wc, false)
			r.failed.Add(1)
			w.log.Debug("item failed", slog.Int64("seq", item.Seq), slog.Any("error", err))

		case outcomeExhausted:
			w.log.Debug("worker state", slog.String("state", "retrying"), slog.Int64("seq", item.Seq))
			r.release(w)
			if err := r.backoff(ctx, w, err); err != nil {
				return err
			}
			if err := r.acquire(ctx, w); err != nil {
				return err
			}
			continue

		default:
			return err
		}

		if r.conf.onItemDone != nil {
			callHook(w.log, "on_item_done", func() { r.conf.onItemDone(item.Seq, err) })
		}
		return nil
	}
}

// invoke calls the work function, converting a panic into an error so that it
// terminates only this worker.
func (r *run[T, C]) invoke(ctx context.Context, conn C, item WorkItem[T], wc *WorkContext) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("worker panic: %v\nstack trace:\n%s", rec, buf[:n])
		}
	}()

	return r.work(ctx, conn, item, wc)
}

// acquire obtains the worker's resource, backing off on exhaustion.
func (r *run[T, C]) acquire(ctx context.Context, w *workerState[C]) error {
	for {
		if r.acquirer == nil {
			w.held = true
			return nil
		}

		conn, err := r.acquirer.Acquire(ctx, w.id)
		if err == nil {
			w.conn, w.held = conn, true
			return nil
		}
		if classify(ctx, err) != outcomeExhausted {
			return err
		}
		if err := r.backoff(ctx, w, err); err != nil {
			return err
		}
	}
}

func (r *run[T, C]) release(w *workerState[C]) {
	if !w.held {
		return
	}
	if r.acquirer != nil {
		r.acquirer.Release(w.conn)
	}
	var zero C
	w.conn, w.held = zero, false
}

// backoff spends one retry. It returns nil when the worker may try again,
// cause once the budget is spent, or ctx's error.
func (r *run[T, C]) backoff(ctx context.Context, w *workerState[C], cause error) error {
	ok, err := w.guard.retry(ctx, cause)
	if err != nil {
		return err
	}
	if !ok {
		return cause
	}

	w.log.Debug("resource exhausted, retrying", slog.Int("attempt", w.guard.attempts), slog.Any("error", cause))
	if r.conf.onRetry != nil {
		callHook(w.log, "on_retry", func() { r.conf.onRetry(w.id, w.guard.attempts, cause) })
	}
	return nil
}

func (r *run[T, C]) throttle(ctx context.Context) error {
	if r.conf.rateLimiter == nil {
		return nil
	}
	if err := r.conf.rateLimiter.Wait(ctx); err != nil {
		// the limiter's error does not wrap the context's
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// stop converts the error that ended a worker into its exit value and records
// the failure. Cancellation is a normal exit.
func (r *run[T, C]) stop(ctx context.Context, w *workerState[C], seq int64, err error) error {
	if classify(ctx, err) == outcomeCanceled {
		w.log.Debug("worker state", slog.String("state", "terminated"), slog.String("reason", "canceled"))
		return nil
	}

	f := &WorkerFailure{WorkerID: w.id, Seq: seq, Attempts: w.guard.attempts, Err: err}
	w.local.Errors.Add(fmt.Sprintf("worker-%d", w.id))

	r.mu.Lock()
	r.failures = append(r.failures, *f)
	r.mu.Unlock()

	w.log.Error("worker terminated", slog.Int64("seq", seq), slog.Int("attempts", f.Attempts), slog.Any("error", err))
	return f
}

func (r *run[T, C]) itemID(w *workerState[C], item WorkItem[T], err error) string {
	var itemErr *ItemError
	if errors.As(err, &itemErr) && itemErr.ID != "" {
		return itemErr.ID
	}
	if r.conf.itemKey != nil {
		var id string
		callHook(w.log, "item_key", func() { id = r.conf.itemKey(item.Payload) })
		if id != "" {
			return id
		}
	}
	return fmt.Sprintf("item-%d", item.Seq)
}

// callHook runs caller-supplied code outside the work function. A panic is
// logged and swallowed so it cannot take down the worker or the process.
func callHook(log *slog.Logger, name string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("hook panicked", slog.String("hook", name), slog.Any("panic", rec))
		}
	}()
	fn()
}

func (r *run[T, C]) failureList() []WorkerFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]WorkerFailure(nil), r.failures...)
}
