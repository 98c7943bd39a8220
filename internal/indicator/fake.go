package indicator

import "sync"

// Fake records every color it is asked to show.
type Fake struct {
	mu      sync.Mutex
	History []Color
	Closed  bool
}

// NewFake creates a Fake that starts off.
func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Set(c Color) {
	f.mu.Lock()
	f.History = append(f.History, c)
	f.mu.Unlock()
}

func (f *Fake) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// Current returns the color last shown.
func (f *Fake) Current() Color {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.History) == 0 {
		return Off
	}
	return f.History[len(f.History)-1]
}

// Colors returns a copy of the history.
func (f *Fake) Colors() []Color {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Color(nil), f.History...)
}
