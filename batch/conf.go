package batch

import (
	"log/slog"
	"reflect"
	"time"

	"github.com/utkarsh5026/batchrun/internal/algorithms"
	"golang.org/x/time/rate"
)

// Defaults applied by NewEngine.
const (
	DefaultWorkerCount   = 10
	DefaultMaxRetries    = 10
	DefaultBackoff       = 30 * time.Second
	DefaultBatchSize     = 200
	DefaultQueueHeadroom = 20
)

// BackoffType selects how the wait between exhaustion retries evolves.
type BackoffType = algorithms.BackoffType

const (
	BackoffFixed       = algorithms.BackoffFixed
	BackoffExponential = algorithms.BackoffExponential
	BackoffJittered    = algorithms.BackoffJittered
)

// Option is a functional option for configuring an Engine.
type Option func(*config)

type config struct {
	workerCount   int
	maxRetries    int
	backoff       time.Duration
	maxBackoff    time.Duration
	backoffType   BackoffType
	jitterFactor  float64
	batchSize     int
	queueHeadroom int
	rateLimiter   *rate.Limiter
	cpuAffinity   bool
	logger        *slog.Logger

	// itemKey receives the payload as any; WithItemKey adapts the typed func.
	itemKey      func(payload any) string
	itemKeyType  reflect.Type
	onItemDone   func(seq int64, err error)
	onRetry      func(workerID, attempt int, err error)
	onWorkerExit func(workerID int, err error)
}

func defaultConfig() *config {
	return &config{
		workerCount:   DefaultWorkerCount,
		maxRetries:    DefaultMaxRetries,
		backoff:       DefaultBackoff,
		backoffType:   BackoffFixed,
		jitterFactor:  0.1,
		batchSize:     DefaultBatchSize,
		queueHeadroom: DefaultQueueHeadroom,
		logger:        slog.New(slog.DiscardHandler),
	}
}

func newConfig(opts ...Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// highWater is the queue size above which the producer blocks.
func (c *config) highWater() int {
	return max(c.workerCount*c.queueHeadroom, 1)
}

func (c *config) newBackoff() algorithms.BackoffStrategy {
	return algorithms.NewBackoffStrategy(c.backoffType, c.backoff, c.maxBackoff, c.jitterFactor)
}

// WithWorkerCount sets the number of concurrent workers.
func WithWorkerCount(count int) Option {
	return func(cfg *config) {
		if count > 0 {
			cfg.workerCount = count
		}
	}
}

// WithMaxRetries sets how many times a worker retries an item after a
// resource exhaustion before it gives up and terminates. Zero disables retries.
func WithMaxRetries(n int) Option {
	return func(cfg *config) {
		if n >= 0 {
			cfg.maxRetries = n
		}
	}
}

// WithBackoff sets the delay before each exhaustion retry. Zero retries immediately.
func WithBackoff(d time.Duration) Option {
	return func(cfg *config) {
		if d >= 0 {
			cfg.backoff = d
		}
	}
}

// WithBackoffStrategy replaces the fixed backoff. For exponential and jittered
// strategies the delay set by WithBackoff is the first wait and maxDelay caps
// later ones. A maxDelay of zero caps them at 32 times the first wait.
func WithBackoffStrategy(t BackoffType, maxDelay time.Duration) Option {
	return func(cfg *config) {
		cfg.backoffType = t
		cfg.maxBackoff = maxDelay
	}
}

// WithBatchSize sets the page size requested from the DataSource.
func WithBatchSize(size int) Option {
	return func(cfg *config) {
		if size > 0 {
			cfg.batchSize = size
		}
	}
}

// WithQueueHeadroom sets how many queued items are allowed per worker. The
// producer blocks once workers × headroom items are waiting.
func WithQueueHeadroom(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.queueHeadroom = n
		}
	}
}

// WithRateLimit caps how many items per second the pool starts processing,
// across all workers.
//
// Example:
//
//	WithRateLimit(10, 5) // 10 items/sec with a burst of 5
func WithRateLimit(perSecond float64, burst int) Option {
	return func(cfg *config) {
		if perSecond > 0 && burst > 0 {
			cfg.rateLimiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithCPUAffinity locks every worker to an OS thread pinned to one core.
func WithCPUAffinity() Option {
	return func(cfg *config) {
		cfg.cpuAffinity = true
	}
}

// WithLogger routes engine logs to l. Logging is disabled by default.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// WithItemKey sets how an item is identified in Summary.Errors when it fails
// with an ItemError that carries no ID. The default is "item-<seq>".
//
// Panics at engine construction if T differs from the engine's payload type.
func WithItemKey[T any](fn func(T) string) Option {
	return func(cfg *config) {
		cfg.itemKeyType = reflect.TypeFor[T]()
		cfg.itemKey = func(payload any) string {
			t, _ := payload.(T)
			return fn(t)
		}
	}
}

// WithOnItemDone registers a hook called after every item, with the item's
// error or nil. Called from worker goroutines; must be safe for concurrent use.
func WithOnItemDone(fn func(seq int64, err error)) Option {
	return func(cfg *config) {
		cfg.onItemDone = fn
	}
}

// WithOnRetry registers a hook called before a worker backs off after a
// resource exhaustion. attempt starts at 1.
func WithOnRetry(fn func(workerID, attempt int, err error)) Option {
	return func(cfg *config) {
		cfg.onRetry = fn
	}
}

// WithOnWorkerExit registers a hook called when a worker stops. err is nil on
// normal completion and a *WorkerFailure otherwise.
func WithOnWorkerExit(fn func(workerID int, err error)) Option {
	return func(cfg *config) {
		cfg.onWorkerExit = fn
	}
}
