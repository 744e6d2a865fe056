package batch

import (
	"context"
	"time"

	"github.com/utkarsh5026/batchrun/internal/algorithms"
)

// guard is a worker's retry budget for resource exhaustion.
type guard struct {
	attempts int
	max      int
	backoff  algorithms.BackoffStrategy
}

func newGuard(cfg *config) *guard {
	return &guard{
		max:     cfg.maxRetries,
		backoff: cfg.newBackoff(),
	}
}

// retry records one exhaustion and waits out the backoff. It reports false
// once the budget is spent, or with ctx's error if ctx ends during the wait.
func (g *guard) retry(ctx context.Context, cause error) (bool, error) {
	g.attempts++
	if g.attempts > g.max {
		return false, nil
	}

	delay := g.backoff.NextDelay(g.attempts-1, cause)
	if delay <= 0 {
		return true, nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// reset starts a fresh budget for the next item.
func (g *guard) reset() {
	g.attempts = 0
	g.backoff.Reset()
}
