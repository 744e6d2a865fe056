//go:build linux

package cpu

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to its OS thread and restricts that thread to
// core workerID modulo the number of logical CPUs.
//
// Once the mask is applied the returned func is a no-op: the goroutine must
// exit while still locked so the runtime discards the pinned thread instead of
// handing it to other goroutines. If sched_setaffinity fails the thread is
// untouched and unpin unlocks it.
func Pin(workerID int) (unpin func()) {
	runtime.LockOSThread()

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(core(workerID))
	if err := unix.SchedSetaffinity(0, &mask); err != nil { // 0 = current thread
		return runtime.UnlockOSThread
	}
	return func() {}
}
