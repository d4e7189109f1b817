package motion

import "time"

// Pacer holds a step line level for a fixed interval. Implementations must not
// yield to the scheduler for intervals this short.
type Pacer interface {
	Hold(d time.Duration)
}

// SpinPacer busy-waits on the monotonic clock.
type SpinPacer struct{}

func (SpinPacer) Hold(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}
