package batch

import "sync"

// Summary is the deduplicated outcome of a run.
type Summary struct {
	Errors   IDSet
	Warnings IDSet
	Created  IDSet
	Updated  IDSet
}

func newSummary() Summary {
	return Summary{
		Errors:   NewIDSet(),
		Warnings: NewIDSet(),
		Created:  NewIDSet(),
		Updated:  NewIDSet(),
	}
}

func (s Summary) clone() Summary {
	return Summary{
		Errors:   s.Errors.Clone(),
		Warnings: s.Warnings.Clone(),
		Created:  s.Created.Clone(),
		Updated:  s.Updated.Clone(),
	}
}

// buffer is a worker's local view of what it reported since the last flush.
// Only its owning worker touches it.
type buffer struct {
	Summary
	results []any
}

func newBuffer() *buffer {
	return &buffer{Summary: newSummary()}
}

// absorb merges what one call reported. Changes (created, updated and
// results) are kept only for calls that succeeded.
func (b *buffer) absorb(wc *WorkContext, keepChanges bool) {
	b.Errors.Union(wc.errors)
	b.Warnings.Union(wc.warnings)
	if !keepChanges {
		return
	}
	b.Created.Union(wc.created)
	b.Updated.Union(wc.updated)
	b.results = append(b.results, wc.results...)
}

func (b *buffer) empty() bool {
	return b.Errors.Len() == 0 && b.Warnings.Len() == 0 &&
		b.Created.Len() == 0 && b.Updated.Len() == 0 && len(b.results) == 0
}

func (b *buffer) reset() {
	clear(b.Errors)
	clear(b.Warnings)
	clear(b.Created)
	clear(b.Updated)
	b.results = nil
}

// aggregator is the one merge point shared by all workers.
type aggregator struct {
	mu      sync.Mutex
	summary Summary
	results []any
}

func newAggregator() *aggregator {
	return &aggregator{summary: newSummary()}
}

// merge unions b into the run summary. Merging the same identifiers twice is a no-op.
func (a *aggregator) merge(b *buffer) {
	if b.empty() {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.summary.Errors.Union(b.Errors)
	a.summary.Warnings.Union(b.Warnings)
	a.summary.Created.Union(b.Created)
	a.summary.Updated.Union(b.Updated)
	a.results = append(a.results, b.results...)
}

// snapshot returns copies that stay valid after further merges.
func (a *aggregator) snapshot() (Summary, []any) {
	a.mu.Lock()
	defer a.mu.Unlock()

	results := make([]any, len(a.results))
	copy(results, a.results)
	return a.summary.clone(), results
}
