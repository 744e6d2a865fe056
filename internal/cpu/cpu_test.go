package cpu

import (
	"runtime"
	"testing"
)

func TestCore(t *testing.T) {
	n := runtime.NumCPU()
	tests := []struct {
		workerID int
		want     int
	}{
		{0, 0},
		{n, 0},
		{n + 1, 1 % n},
		{-1, n - 1},
	}

	for _, tt := range tests {
		if got := core(tt.workerID); got != tt.want {
			t.Errorf("core(%d) = %d, want %d", tt.workerID, got, tt.want)
		}
	}
}

func TestPin(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		unpin := Pin(3)
		unpin()
	}()
	<-done
}
