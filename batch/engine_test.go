package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingAcquirer hands out increasing ints and records every call.
type countingAcquirer struct {
	acquired atomic.Int32
	released atomic.Int32
	failWith func(n int32) error
}

func (a *countingAcquirer) Acquire(_ context.Context, _ int) (int, error) {
	n := a.acquired.Add(1)
	if a.failWith != nil {
		if err := a.failWith(n); err != nil {
			a.acquired.Add(-1)
			return 0, err
		}
	}
	return int(n), nil
}

func (a *countingAcquirer) Release(int) {
	a.released.Add(1)
}

func intRange(n int) SliceSource[int] {
	items := make(SliceSource[int], n)
	for i := range items {
		items[i] = i
	}
	return items
}

func TestExecute_EmptySource(t *testing.T) {
	var calls atomic.Int32
	acq := &countingAcquirer{}

	report, err := NewEngine[int, int](acq, WithWorkerCount(4)).Execute(context.Background(), SliceSource[int]{},
		func(context.Context, int, WorkItem[int], *WorkContext) error {
			calls.Add(1)
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls.Load() != 0 {
		t.Errorf("expected no calls, got %d", calls.Load())
	}
	if report.Workers != 0 {
		t.Errorf("expected no workers started, got %d", report.Workers)
	}
	if acq.acquired.Load() != 0 {
		t.Errorf("expected no acquisitions, got %d", acq.acquired.Load())
	}
	s := report.Summary
	if s.Errors.Len()+s.Warnings.Len()+s.Created.Len()+s.Updated.Len() != 0 || len(report.Results) != 0 {
		t.Errorf("expected an empty report, got %+v", report)
	}
}

func TestExecute_EveryItemOnce(t *testing.T) {
	tests := []struct {
		name      string
		items     int
		workers   int
		batchSize int
		headroom  int
	}{
		{"five items two workers", 5, 2, 200, 20},
		{"single worker", 100, 1, 7, 1},
		{"more workers than items", 3, 16, 2, 1},
		{"page size divides total", 60, 4, 20, 2},
		{"large run", 2000, 10, 50, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make([]atomic.Int32, tt.items)

			report, err := Execute(context.Background(), intRange(tt.items),
				func(_ context.Context, item WorkItem[int], wc *WorkContext) error {
					seen[item.Payload].Add(1)
					wc.Created(fmt.Sprintf("doc-%d", item.Payload))
					return nil
				},
				WithWorkerCount(tt.workers),
				WithBatchSize(tt.batchSize),
				WithQueueHeadroom(tt.headroom),
			)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for i := range seen {
				if n := seen[i].Load(); n != 1 {
					t.Errorf("item %d processed %d times", i, n)
				}
			}
			if report.Summary.Created.Len() != tt.items {
				t.Errorf("expected %d created ids, got %d", tt.items, report.Summary.Created.Len())
			}
			if report.Processed != int64(tt.items) || report.Fetched != int64(tt.items) {
				t.Errorf("expected %d fetched and processed, got %d / %d", tt.items, report.Fetched, report.Processed)
			}
			if report.Summary.Errors.Len() != 0 {
				t.Errorf("expected no errors, got %v", report.Summary.Errors.Slice())
			}
			if report.Degraded() || report.Dropped() != 0 {
				t.Errorf("expected a clean run, got %+v", report)
			}
		})
	}
}

func TestExecute_DeduplicatesAcrossWorkers(t *testing.T) {
	report, err := Execute(context.Background(), intRange(500),
		func(_ context.Context, item WorkItem[int], wc *WorkContext) error {
			wc.Updated("shared", fmt.Sprintf("doc-%d", item.Payload%10))
			wc.Warn("slow-index")
			return nil
		},
		WithWorkerCount(8),
		WithBatchSize(16),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := report.Summary.Updated.Len(); got != 11 {
		t.Errorf("expected 11 unique updated ids, got %d", got)
	}
	if got := report.Summary.Warnings.Slice(); len(got) != 1 || got[0] != "slow-index" {
		t.Errorf("expected one warning, got %v", got)
	}
}

func TestExecute_ItemFailureIsRecorded(t *testing.T) {
	report, err := Execute(context.Background(), SliceSource[string]{"d1"},
		func(_ context.Context, item WorkItem[string], wc *WorkContext) error {
			wc.Created("should-be-dropped")
			wc.Emit("should-be-dropped")
			return ItemFailed(item.Payload, errors.New("invalid document"))
		},
		WithWorkerCount(1),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := report.Summary.Errors.Slice(); len(got) != 1 || got[0] != "d1" {
		t.Errorf("expected errors [d1], got %v", got)
	}
	if report.Summary.Created.Len() != 0 || len(report.Results) != 0 {
		t.Error("a failed call must not contribute created ids or results")
	}
	if len(report.Failures) != 0 {
		t.Errorf("an item failure must not terminate the worker, got %v", report.Failures)
	}
	if report.Failed != 1 || report.Processed != 0 {
		t.Errorf("expected 1 failed and 0 processed, got %d / %d", report.Failed, report.Processed)
	}
}

func TestExecute_ItemErrorIDFallbacks(t *testing.T) {
	type doc struct{ Key string }
	src := SliceSource[doc]{{Key: "alpha"}, {Key: ""}}

	report, err := Execute(context.Background(), src,
		func(context.Context, WorkItem[doc], *WorkContext) error {
			return ItemFailed("", errors.New("rejected"))
		},
		WithWorkerCount(1),
		WithItemKey(func(d doc) string { return d.Key }),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := report.Summary.Errors
	if !got.Has("alpha") || !got.Has("item-1") || got.Len() != 2 {
		t.Errorf("expected errors [alpha item-1], got %v", got.Slice())
	}
}

func TestNewEngine_ItemKeyTypeMismatchPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected a panic for a mismatched WithItemKey type")
		}
	}()

	NewEngine[int, struct{}](nil, WithItemKey(func(s string) string { return s }))
}

func TestNewEngine_ItemKeyInterfaceTypeMismatchPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected a panic for WithItemKey over a different interface type")
		}
	}()

	NewEngine[fmt.Stringer, struct{}](nil, WithItemKey(func(e error) string { return e.Error() }))
}

func TestNewEngine_ItemKeyInterfaceTypeMatches(t *testing.T) {
	eng := NewEngine[fmt.Stringer, struct{}](nil, WithItemKey(func(s fmt.Stringer) string { return s.String() }))
	if eng == nil {
		t.Fatal("expected an engine")
	}
}

func TestExecute_PanickingItemKeyFallsBackToSeq(t *testing.T) {
	report, err := Execute(context.Background(), SliceSource[string]{"a", "b"},
		func(context.Context, WorkItem[string], *WorkContext) error {
			return ItemFailed("", errors.New("rejected"))
		},
		WithWorkerCount(1),
		WithItemKey(func(string) string { panic("no key") }),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := report.Summary.Errors
	if !got.Has("item-0") || !got.Has("item-1") || got.Len() != 2 {
		t.Errorf("expected errors [item-0 item-1], got %v", got.Slice())
	}
	if len(report.Failures) != 0 {
		t.Errorf("a panicking item key must not terminate the worker, got %v", report.Failures)
	}
}

func TestExecute_PanickingHooksDoNotStopTheRun(t *testing.T) {
	const items = 20
	var calls, retries, done, exits atomic.Int32

	report, err := Execute(context.Background(), intRange(items),
		func(context.Context, WorkItem[int], *WorkContext) error {
			if calls.Add(1) == 1 {
				return Exhausted(errors.New("busy"))
			}
			return nil
		},
		WithWorkerCount(2),
		WithBackoff(0),
		WithOnRetry(func(int, int, error) {
			retries.Add(1)
			panic("retry hook")
		}),
		WithOnItemDone(func(int64, error) {
			done.Add(1)
			panic("item hook")
		}),
		WithOnWorkerExit(func(int, error) {
			exits.Add(1)
			panic("exit hook")
		}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Processed != items {
		t.Errorf("expected %d processed, got %d", items, report.Processed)
	}
	if len(report.Failures) != 0 {
		t.Errorf("hook panics must not terminate workers, got %v", report.Failures)
	}
	if retries.Load() != 1 || done.Load() != items || exits.Load() != 2 {
		t.Errorf("hooks called retry=%d done=%d exit=%d, want 1/%d/2", retries.Load(), done.Load(), exits.Load(), items)
	}
}

func TestExecute_ExhaustionExceedsRetries(t *testing.T) {
	acq := &countingAcquirer{}
	var calls atomic.Int32
	var retries []int
	var mu sync.Mutex

	eng := NewEngine[string, int](acq,
		WithWorkerCount(1),
		WithMaxRetries(3),
		WithBackoff(time.Millisecond),
		WithOnRetry(func(_, attempt int, _ error) {
			mu.Lock()
			retries = append(retries, attempt)
			mu.Unlock()
		}),
	)

	report, err := eng.Execute(context.Background(), SliceSource[string]{"d1"},
		func(context.Context, int, WorkItem[string], *WorkContext) error {
			calls.Add(1)
			return Exhausted(errors.New("connection pool empty"))
		})
	if err != nil && !errors.Is(err, ErrPoolCollapsed) {
		t.Fatalf("unexpected error: %v", err)
	}

	if calls.Load() != 4 {
		t.Errorf("expected 4 calls (1 + 3 retries), got %d", calls.Load())
	}
	if acq.acquired.Load() != 4 {
		t.Errorf("expected 4 acquisitions, got %d", acq.acquired.Load())
	}
	if acq.released.Load() != acq.acquired.Load() {
		t.Errorf("leaked resources: %d acquired, %d released", acq.acquired.Load(), acq.released.Load())
	}
	if len(retries) != 3 || retries[0] != 1 || retries[2] != 3 {
		t.Errorf("expected retry attempts [1 2 3], got %v", retries)
	}

	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 worker failure, got %d", len(report.Failures))
	}
	f := report.Failures[0]
	if f.Seq != 0 || f.Attempts != 4 || !errors.Is(f.Err, ErrResourceExhausted) {
		t.Errorf("unexpected failure record: %+v", f)
	}
	if !report.Summary.Errors.Has("worker-0") {
		t.Errorf("expected worker-0 in errors, got %v", report.Summary.Errors.Slice())
	}
	if report.Dropped() != 1 {
		t.Errorf("expected 1 dropped item, got %d", report.Dropped())
	}
}

func TestExecute_ExhaustionRecovers(t *testing.T) {
	acq := &countingAcquirer{}
	var calls atomic.Int32

	report, err := NewEngine[int, int](acq, WithWorkerCount(1), WithMaxRetries(2), WithBackoff(0)).
		Execute(context.Background(), intRange(3),
			func(_ context.Context, conn int, item WorkItem[int], wc *WorkContext) error {
				// the first two calls hit an exhausted resource
				if calls.Add(1) <= 2 {
					return Exhausted(nil)
				}
				wc.Emit(conn)
				return nil
			})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Processed != 3 || len(report.Failures) != 0 {
		t.Errorf("expected 3 processed and no failures, got %d / %v", report.Processed, report.Failures)
	}
	if acq.acquired.Load() != 3 {
		t.Errorf("expected the initial acquisition plus 2 re-acquisitions, got %d", acq.acquired.Load())
	}
	if acq.released.Load() != 3 {
		t.Errorf("expected 3 releases, got %d", acq.released.Load())
	}
}

func TestExecute_AcquireExhaustionIsRetried(t *testing.T) {
	var fails atomic.Int32
	acq := &countingAcquirer{
		failWith: func(int32) error {
			if fails.Add(1) <= 2 {
				return Exhausted(errors.New("no free connection"))
			}
			return nil
		},
	}

	report, err := NewEngine[int, int](acq, WithWorkerCount(1), WithMaxRetries(5), WithBackoff(0)).
		Execute(context.Background(), intRange(2),
			func(context.Context, int, WorkItem[int], *WorkContext) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Processed != 2 {
		t.Errorf("expected 2 processed, got %d", report.Processed)
	}
}

func TestExecute_AllWorkersDieStopsProducer(t *testing.T) {
	const workers, headroom, batchSize = 2, 2, 3

	var pages atomic.Int32
	// an unbounded source: without collapse detection the run would never end
	src := SourceFunc[int](func(_ context.Context, offset, limit int) ([]int, error) {
		pages.Add(1)
		page := make([]int, limit)
		for i := range page {
			page[i] = offset + i
		}
		return page, nil
	})

	report, err := Execute(context.Background(), src,
		func(context.Context, WorkItem[int], *WorkContext) error {
			return errors.New("database unreachable")
		},
		WithWorkerCount(workers),
		WithQueueHeadroom(headroom),
		WithBatchSize(batchSize),
	)

	if !errors.Is(err, ErrPoolCollapsed) {
		t.Fatalf("expected ErrPoolCollapsed, got %v", err)
	}
	if len(report.Failures) != workers {
		t.Errorf("expected %d worker failures, got %d", workers, len(report.Failures))
	}
	for id := range workers {
		if !report.Summary.Errors.Has(fmt.Sprintf("worker-%d", id)) {
			t.Errorf("expected worker-%d in errors", id)
		}
	}
	// at most the queue plus one in-flight item per worker was fetched
	if limit := int64(workers*headroom + workers); report.Fetched > limit {
		t.Errorf("producer kept going after collapse: fetched %d, limit %d", report.Fetched, limit)
	}
}

func TestExecute_AcquireFatalCollapses(t *testing.T) {
	acq := &countingAcquirer{failWith: func(int32) error { return errors.New("bad credentials") }}

	report, err := NewEngine[int, int](acq, WithWorkerCount(1), WithQueueHeadroom(1), WithBatchSize(5)).
		Execute(context.Background(), intRange(10),
			func(context.Context, int, WorkItem[int], *WorkContext) error { return nil })

	if !errors.Is(err, ErrPoolCollapsed) {
		t.Fatalf("expected ErrPoolCollapsed, got %v", err)
	}
	if len(report.Failures) != 1 || report.Failures[0].Seq != -1 {
		t.Errorf("expected one failure with no item in flight, got %+v", report.Failures)
	}
	if acq.released.Load() != 0 {
		t.Errorf("nothing was acquired, but %d releases happened", acq.released.Load())
	}
}

func TestExecute_PanicTerminatesOnlyThatWorker(t *testing.T) {
	const items = 50

	report, err := Execute(context.Background(), intRange(items),
		func(_ context.Context, item WorkItem[int], _ *WorkContext) error {
			if item.Payload == 0 {
				panic("corrupt payload")
			}
			return nil
		},
		WithWorkerCount(2),
		WithBatchSize(10),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Failures) != 1 {
		t.Fatalf("expected 1 worker failure, got %d", len(report.Failures))
	}
	if !strings.Contains(report.Failures[0].Err.Error(), "corrupt payload") {
		t.Errorf("expected the panic value in the failure, got %v", report.Failures[0].Err)
	}
	if report.Processed != items-1 {
		t.Errorf("surviving worker should process the rest: expected %d, got %d", items-1, report.Processed)
	}
}

func TestExecute_ResourceReleasedOnEveryPath(t *testing.T) {
	acq := &countingAcquirer{}

	_, _ = NewEngine[int, int](acq, WithWorkerCount(6), WithMaxRetries(1), WithBackoff(0), WithBatchSize(4)).
		Execute(context.Background(), intRange(120),
			func(_ context.Context, _ int, item WorkItem[int], _ *WorkContext) error {
				switch item.Payload % 4 {
				case 0:
					return ItemFailed("", errors.New("skip"))
				case 1:
					if item.Payload%40 == 1 {
						panic("boom")
					}
				case 2:
					if item.Payload%60 == 2 {
						return Exhausted(nil)
					}
				}
				return nil
			})

	if acq.acquired.Load() != acq.released.Load() {
		t.Errorf("leaked resources: %d acquired, %d released", acq.acquired.Load(), acq.released.Load())
	}
}

func TestExecute_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var started atomic.Int32
	report, err := Execute(ctx, intRange(10_000),
		func(ctx context.Context, item WorkItem[int], _ *WorkContext) error {
			if started.Add(1) == 2 {
				cancel()
			}
			<-ctx.Done()
			return ctx.Err()
		},
		WithWorkerCount(4),
		WithBatchSize(50),
	)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(report.Failures) != 0 {
		t.Errorf("cancellation is not a worker failure, got %v", report.Failures)
	}
	if report.Fetched == 10_000 && report.Processed == 10_000 {
		t.Error("cancellation did not stop the run")
	}
}

func TestExecute_SourceError(t *testing.T) {
	errDown := errors.New("source down")
	src := SourceFunc[int](func(_ context.Context, offset, limit int) ([]int, error) {
		if offset > 0 {
			return nil, errDown
		}
		return make([]int, limit), nil
	})

	report, err := Execute(context.Background(), src,
		func(context.Context, WorkItem[int], *WorkContext) error { return nil },
		WithWorkerCount(2),
		WithBatchSize(5),
	)

	if !errors.Is(err, errDown) {
		t.Fatalf("expected the source error, got %v", err)
	}
	if report.Processed != 5 {
		t.Errorf("items fetched before the error must still be processed, got %d", report.Processed)
	}
}

func TestExecute_QueueStaysBounded(t *testing.T) {
	report, err := Execute(context.Background(), intRange(1000),
		func(context.Context, WorkItem[int], *WorkContext) error {
			time.Sleep(50 * time.Microsecond)
			return nil
		},
		WithWorkerCount(10),
		WithQueueHeadroom(20),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.PeakQueueLen > 200 {
		t.Errorf("queue grew past its high-water mark: %d", report.PeakQueueLen)
	}
	if report.Processed != 1000 {
		t.Errorf("expected 1000 processed, got %d", report.Processed)
	}
}

func TestExecute_SetupErrors(t *testing.T) {
	acq := &countingAcquirer{}
	eng := NewEngine[int, int](acq)

	tests := []struct {
		name string
		src  DataSource[int]
		work WorkFunc[int, int]
		want error
	}{
		{"missing work func", intRange(1), nil, ErrNoWorkFunc},
		{"missing source", nil, func(context.Context, int, WorkItem[int], *WorkContext) error { return nil }, ErrNoSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := eng.Execute(context.Background(), tt.src, tt.work)
			if !errors.Is(err, tt.want) || !errors.Is(err, ErrSetup) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if report != nil {
				t.Error("expected a nil report on setup failure")
			}
		})
	}

	if acq.acquired.Load() != 0 {
		t.Error("setup failures must not acquire resources")
	}
}

func TestExecute_ResultsAndHooks(t *testing.T) {
	const items, workers = 40, 3
	var done, exits atomic.Int32

	report, err := Execute(context.Background(), intRange(items),
		func(_ context.Context, item WorkItem[int], wc *WorkContext) error {
			wc.Emit(item.Payload * 2)
			return nil
		},
		WithWorkerCount(workers),
		WithBatchSize(8),
		WithRateLimit(10_000, 10),
		WithCPUAffinity(),
		WithOnItemDone(func(int64, error) { done.Add(1) }),
		WithOnWorkerExit(func(_ int, err error) {
			if err != nil {
				t.Errorf("unexpected worker failure: %v", err)
			}
			exits.Add(1)
		}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(report.Results) != items {
		t.Errorf("expected %d results, got %d", items, len(report.Results))
	}
	sum := 0
	for _, r := range report.Results {
		sum += r.(int)
	}
	if want := items * (items - 1); sum != want {
		t.Errorf("expected results to sum to %d, got %d", want, sum)
	}
	if done.Load() != items {
		t.Errorf("expected %d item hooks, got %d", items, done.Load())
	}
	if exits.Load() != workers {
		t.Errorf("expected %d exit hooks, got %d", workers, exits.Load())
	}
	if report.RunID == "" {
		t.Error("expected a run id")
	}
}

func TestEngine_ConcurrentRuns(t *testing.T) {
	eng := NewEngine[int, struct{}](nil, WithWorkerCount(3), WithBatchSize(10))

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report, err := eng.Execute(context.Background(), intRange(100),
				func(_ context.Context, _ struct{}, item WorkItem[int], wc *WorkContext) error {
					wc.Created(fmt.Sprint(item.Payload))
					return nil
				})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if report.Summary.Created.Len() != 100 {
				t.Errorf("runs leaked state: %d created", report.Summary.Created.Len())
			}
		}()
	}
	wg.Wait()
}
