package sync

import (
	"sync"
	"time"
)

// Locker guards against two reconcilers running at once. A single-process
// deployment uses the in-process implementation; a distributed deployment
// plugs in external coordination behind the same interface.
type Locker interface {
	TryAcquire(name string, ttl time.Duration) bool
	Release(name string)
}

// LocalLocker coordinates within one process. TTL is ignored: the lock is
// released explicitly when the run ends.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) TryAcquire(name string, _ time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return false
	}
	l.held[name] = true
	return true
}

func (l *LocalLocker) Release(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
}

// NoopLocker always grants the lock.
type NoopLocker struct{}

func (NoopLocker) TryAcquire(string, time.Duration) bool { return true }
func (NoopLocker) Release(string)                        {}
