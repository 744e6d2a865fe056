package algorithms

import (
	"math/rand"
	"sync"
	"time"
)

// Prevents overflow of the shift in calcExponentialDelay.
const maxShift = 62

// fixedBackoff waits the same delay before every retry.
type fixedBackoff struct {
	delay time.Duration
}

func (fb fixedBackoff) NextDelay(attempt int, _ error) time.Duration {
	if attempt < 0 {
		return 0
	}
	return fb.delay
}

func (fixedBackoff) Reset() {}

// exponentialBackoff doubles the delay on every retry:
// delay, 2*delay, 4*delay ... until maxDelay is reached.
type exponentialBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
}

func newExponentialBackoff(initialDelay, maxDelay time.Duration) *exponentialBackoff {
	return &exponentialBackoff{
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
	}
}

func (eb *exponentialBackoff) NextDelay(attempt int, _ error) time.Duration {
	return calcExponentialDelay(attempt, eb.initialDelay, eb.maxDelay)
}

func (eb *exponentialBackoff) Reset() {}

// jitteredBackoff scales the exponential delay by a random factor in
// [1-jitterFactor, 1+jitterFactor].
//
// With jitterFactor=0.1 a base delay of 1s becomes a value between 900ms and 1100ms.
type jitteredBackoff struct {
	initialDelay time.Duration
	maxDelay     time.Duration
	jitterFactor float64
	mu           sync.Mutex // guards rng
	rng          *rand.Rand
}

// newJitteredBackoff clamps jitterFactor into [0, 1].
func newJitteredBackoff(initialDelay, maxDelay time.Duration, jitterFactor float64) *jitteredBackoff {
	return &jitteredBackoff{
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
		jitterFactor: clamp(jitterFactor, 0, 1),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter does not need crypto rand
	}
}

func (jb *jitteredBackoff) NextDelay(attempt int, _ error) time.Duration {
	if attempt < 0 {
		return 0
	}

	base := calcExponentialDelay(attempt, jb.initialDelay, jb.maxDelay)

	jb.mu.Lock()
	multiplier := 1.0 + (jb.rng.Float64()*2-1)*jb.jitterFactor
	jb.mu.Unlock()

	return clamp(time.Duration(float64(base)*multiplier), 0, jb.maxDelay)
}

func (jb *jitteredBackoff) Reset() {}

func calcExponentialDelay(attempt int, initialDelay, maxDelay time.Duration) time.Duration {
	if attempt < 0 {
		return 0
	}
	// checked before multiplying: 2^attempt * initialDelay may wrap around
	if attempt >= maxShift || initialDelay > maxDelay>>uint(attempt) {
		return maxDelay
	}
	return time.Duration(int64(1)<<uint(attempt)) * initialDelay
}

func clamp[N int64 | float64 | time.Duration](v, lo, hi N) N {
	return max(lo, min(v, hi))
}
