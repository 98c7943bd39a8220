// Package clock provides the time source used by the ADC protocol and the
// weight engine. The real clock busy-waits for short delays so that
// microsecond pulse widths are honoured; the fake clock only moves when told.
package clock

import (
	"runtime"
	"time"
)

// Clock is a monotonic time source with delay and cooperative-yield support.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for at least d. Delays below spinThreshold are busy-waited.
	Sleep(d time.Duration)

	// Yield hands the scheduler to other goroutines for one spin iteration.
	Yield()
}

// spinThreshold is the largest delay that is busy-waited instead of slept.
// time.Sleep on Linux has a granularity far above the ADC's 1µs half-pulse.
const spinThreshold = time.Millisecond

// Real is the wall clock.
type Real struct{}

// NewReal returns the wall clock.
func NewReal() Real {
	return Real{}
}

// Now returns time.Now().
func (Real) Now() time.Time {
	return time.Now()
}

// Sleep busy-waits short delays and sleeps long ones.
func (Real) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if d >= spinThreshold {
		time.Sleep(d)
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

// Yield calls runtime.Gosched.
func (Real) Yield() {
	runtime.Gosched()
}
