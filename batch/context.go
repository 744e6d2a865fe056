package batch

// WorkContext collects what a single WorkFunc call reports.
// A fresh WorkContext is handed to every call and must not be retained after
// the call returns.
type WorkContext struct {
	errors   IDSet
	warnings IDSet
	created  IDSet
	updated  IDSet
	results  []any
}

func newWorkContext() *WorkContext {
	return &WorkContext{
		errors:   NewIDSet(),
		warnings: NewIDSet(),
		created:  NewIDSet(),
		updated:  NewIDSet(),
	}
}

// Error records identifiers that failed without failing the item itself.
func (wc *WorkContext) Error(ids ...string) { wc.errors.Add(ids...) }

func (wc *WorkContext) Warn(ids ...string) { wc.warnings.Add(ids...) }

func (wc *WorkContext) Created(ids ...string) { wc.created.Add(ids...) }

func (wc *WorkContext) Updated(ids ...string) { wc.updated.Add(ids...) }

// Emit appends v to the run's result collection. Results are only kept when
// the call succeeds.
func (wc *WorkContext) Emit(v any) { wc.results = append(wc.results, v) }
