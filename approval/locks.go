package approval

import "sync"

// batchLocks serializes transitions per batch id inside one process. The
// store's conditional updates remain the second line of defense across
// processes.
type batchLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newBatchLocks() *batchLocks {
	return &batchLocks{held: make(map[string]struct{})}
}

// tryAcquire takes the lock for key without waiting. It returns false when
// another transition holds it.
func (l *batchLocks) tryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

func (l *batchLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
