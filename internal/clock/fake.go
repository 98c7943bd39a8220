package clock

import (
	"sync"
	"time"
)

// DefaultYieldQuantum is how far a Fake clock advances on each Yield.
const DefaultYieldQuantum = 50 * time.Microsecond

// Fake is a manually advanced clock for tests.
// Sleep advances the clock by the requested duration and Yield advances it by
// YieldQuantum, so busy-wait loops driven by a Fake always terminate.
type Fake struct {
	mu  sync.Mutex
	now time.Time

	// YieldQuantum is the amount of time that passes per Yield call.
	YieldQuantum time.Duration

	// Sleeps counts calls to Sleep.
	Sleeps int

	// Yields counts calls to Yield.
	Yields int
}

// NewFake creates a Fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start, YieldQuantum: DefaultYieldQuantum}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep advances the clock by d.
func (f *Fake) Sleep(d time.Duration) {
	f.mu.Lock()
	f.Sleeps++
	if d > 0 {
		f.now = f.now.Add(d)
	}
	f.mu.Unlock()
}

// Yield advances the clock by YieldQuantum.
func (f *Fake) Yield() {
	f.mu.Lock()
	f.Yields++
	f.now = f.now.Add(f.YieldQuantum)
	f.mu.Unlock()
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}
