package engine

import "sync"

// syncLocks serializes disk-to-graph syncs of the same path, so a slower read
// can never overwrite a newer one. Different paths sync in parallel. Entries
// are removed once nobody holds or waits for them.
type syncLocks struct {
	mu    sync.Mutex
	locks map[string]*syncLock
}

type syncLock struct {
	mu   sync.Mutex
	refs int
}

func (l *syncLocks) lock(key string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*syncLock{}
	}
	s, ok := l.locks[key]
	if !ok {
		s = &syncLock{}
		l.locks[key] = s
	}
	s.refs++
	l.mu.Unlock()

	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		l.mu.Lock()
		if s.refs--; s.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// held returns the number of paths with a holder or waiter.
func (l *syncLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
