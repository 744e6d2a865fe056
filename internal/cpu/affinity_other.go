//go:build !linux && !darwin && !windows

package cpu

import "runtime"

func Pin(int) (unpin func()) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}
