package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/starford/vaultkeep/internal/apperr"
)

// lockRegistry hands out one exclusive lock per normalized path. Entries are
// reference counted and removed once no holder or waiter remains, so the
// registry does not grow with deleted or renamed paths.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	ch   chan struct{}
	refs int
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[string]*pathLock)}
}

// acquire blocks until the lock for key is held, ctx is done, or timeout
// elapses (timeout <= 0 waits indefinitely).
func (r *lockRegistry) acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	r.mu.Lock()
	l, ok := r.locks[key]
	if !ok {
		l = &pathLock{ch: make(chan struct{}, 1)}
		r.locks[key] = l
	}
	l.refs++
	r.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				r.drop(key, l)
			})
		}, nil
	case <-ctx.Done():
		r.drop(key, l)
		return nil, apperr.E(apperr.KindConcurrency, "lock", key, ctx.Err())
	case <-expired:
		r.drop(key, l)
		return nil, apperr.Errorf(apperr.KindConcurrency, "lock", key, "lock not acquired within %s", timeout)
	}
}

// acquireAll locks every key in lexical order so that two callers locking the
// same set can never deadlock.
func (r *lockRegistry) acquireAll(ctx context.Context, keys []string, timeout time.Duration) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var releases []func()
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	prev := ""
	for i, k := range sorted {
		if i > 0 && k == prev {
			continue
		}
		prev = k
		rel, err := r.acquire(ctx, k, timeout)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, rel)
	}
	return releaseAll, nil
}

func (r *lockRegistry) drop(key string, l *pathLock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(r.locks, key)
	}
}

func (r *lockRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
