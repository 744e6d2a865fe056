package algorithms

import "time"

// BackoffStrategy computes the wait between two attempts at acquiring a resource.
type BackoffStrategy interface {
	// NextDelay returns the wait before retry number attempt (0-indexed, 0 = first
	// retry after the initial failure). lastError is the failure being retried.
	NextDelay(attempt int, lastError error) time.Duration

	// Reset clears any state carried between attempts. Called once an item completes.
	Reset()
}
