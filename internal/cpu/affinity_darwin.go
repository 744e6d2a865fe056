//go:build darwin

package cpu

import "runtime"

// Pin locks the calling goroutine to its OS thread. macOS has no thread
// pinning API, so the core is not fixed.
func Pin(int) (unpin func()) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}
