package gpio

import (
	"runtime"
	"sync"
)

// NewCriticalSection returns the lock that brackets the 24-pulse bit transfer.
// Go cannot mask interrupts from user space; pinning the goroutine to its OS
// thread and serialising access is the closest bounded exclusion available.
func NewCriticalSection() sync.Locker {
	return &threadLock{}
}

type threadLock struct {
	mu sync.Mutex
}

func (t *threadLock) Lock() {
	runtime.LockOSThread()
	t.mu.Lock()
}

func (t *threadLock) Unlock() {
	t.mu.Unlock()
	runtime.UnlockOSThread()
}

// NoCriticalSection is a no-op lock for hosted tests.
type NoCriticalSection struct{}

func (NoCriticalSection) Lock()   {}
func (NoCriticalSection) Unlock() {}
