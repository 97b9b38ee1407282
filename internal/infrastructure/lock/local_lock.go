package lock

import (
	"context"
	"sync"
)

// LocalLocker is an in-process keyed mutex for single-instance deployments
// and tests. Obtain honours context cancellation while waiting.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localEntry)}
}

func (l *LocalLocker) Obtain(ctx context.Context, key string) (Lock, error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return &localLock{owner: l, key: key, entry: e}, nil
	case <-ctx.Done():
		l.drop(key, e)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) drop(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

type localLock struct {
	owner    *LocalLocker
	key      string
	entry    *localEntry
	released sync.Once
}

func (l *localLock) Release(context.Context) error {
	err := ErrLockExpired
	l.released.Do(func() {
		<-l.entry.sem
		l.owner.drop(l.key, l.entry)
		err = nil
	})
	return err
}
