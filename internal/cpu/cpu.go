// Package cpu pins worker goroutines to CPU cores.
package cpu

import "runtime"

// core maps a worker id onto [0, runtime.NumCPU()).
func core(workerID int) int {
	n := runtime.NumCPU()
	c := workerID % n
	if c < 0 {
		c += n
	}
	return c
}
