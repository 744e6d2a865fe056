//go:build windows

package cpu

import (
	"runtime"
	"syscall"
)

var (
	kernel32              = syscall.NewLazyDLL("kernel32.dll")
	setThreadAffinityMask = kernel32.NewProc("SetThreadAffinityMask")
	getCurrentThread      = kernel32.NewProc("GetCurrentThread")
)

// Pin locks the calling goroutine to its OS thread and sets the thread
// affinity mask to core workerID modulo the number of logical CPUs.
func Pin(workerID int) (unpin func()) {
	runtime.LockOSThread()

	handle, _, _ := getCurrentThread.Call()
	if prev, _, _ := setThreadAffinityMask.Call(handle, uintptr(1)<<uint(core(workerID))); prev == 0 {
		return runtime.UnlockOSThread
	}
	// stay locked so the pinned thread exits with the goroutine
	return func() {}
}
