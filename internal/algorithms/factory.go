package algorithms

import (
	"math"
	"time"
)

// BackoffType selects the retry backoff algorithm.
type BackoffType int

const (
	// BackoffFixed waits the same delay before every retry (default).
	BackoffFixed BackoffType = iota
	// BackoffExponential doubles the delay on every retry up to a ceiling.
	BackoffExponential
	// BackoffJittered is exponential backoff with random jitter, so workers that
	// hit the same exhausted resource do not retry in lockstep.
	BackoffJittered
)

func (t BackoffType) String() string {
	switch t {
	case BackoffFixed:
		return "fixed"
	case BackoffExponential:
		return "exponential"
	case BackoffJittered:
		return "jittered"
	default:
		return "unknown"
	}
}

// ParseBackoffType maps a name produced by String back to its BackoffType.
func ParseBackoffType(name string) (BackoffType, bool) {
	for _, t := range []BackoffType{BackoffFixed, BackoffExponential, BackoffJittered} {
		if t.String() == name {
			return t, true
		}
	}
	return BackoffFixed, false
}

// DefaultMaxDelayFactor sets the ceiling of growing strategies when no
// maxDelay is given: delay * DefaultMaxDelayFactor.
const DefaultMaxDelayFactor = 32

// NewBackoffStrategy builds a strategy. maxDelay is ignored by BackoffFixed.
// A maxDelay <= 0 defaults to delay * DefaultMaxDelayFactor, and a positive
// maxDelay smaller than delay is raised to delay.
func NewBackoffStrategy(backoffType BackoffType, delay, maxDelay time.Duration, jitterFactor float64) BackoffStrategy {
	if maxDelay <= 0 {
		maxDelay = defaultMaxDelay(delay)
	}
	maxDelay = max(maxDelay, delay)

	switch backoffType {
	case BackoffExponential:
		return newExponentialBackoff(delay, maxDelay)

	case BackoffJittered:
		return newJitteredBackoff(delay, maxDelay, jitterFactor)

	default:
		return fixedBackoff{delay: delay}
	}
}

func defaultMaxDelay(delay time.Duration) time.Duration {
	if delay > time.Duration(math.MaxInt64/DefaultMaxDelayFactor) {
		return time.Duration(math.MaxInt64)
	}
	return delay * DefaultMaxDelayFactor
}
