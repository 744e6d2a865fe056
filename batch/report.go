package batch

import "time"

// Report is everything a run hands back to its caller.
type Report struct {
	RunID   string
	Summary Summary
	// Results emitted by successful calls, in completion order.
	Results  []any
	Failures []WorkerFailure

	Workers   int
	Fetched   int64
	Processed int64
	Failed    int64

	// PeakQueueLen is the largest queue length seen by the producer.
	PeakQueueLen int
	Duration     time.Duration
}

// Degraded reports whether any item or worker failed.
func (r *Report) Degraded() bool {
	return r.Summary.Errors.Len() > 0 || len(r.Failures) > 0
}

// Dropped is the number of fetched items that were neither processed nor
// failed, because the workers holding them died or the run was canceled.
func (r *Report) Dropped() int64 {
	return r.Fetched - r.Processed - r.Failed
}
