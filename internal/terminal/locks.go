package terminal

import (
	"context"
	"sync"
)

// scriptLocks serialises work on the same script while leaving different scripts independent.
type scriptLocks struct {
	mutex sync.Mutex
	locks map[string]*scriptLock
}

type scriptLock struct {
	held chan struct{}
	refs int
}

func newScriptLocks() *scriptLocks {
	return &scriptLocks{locks: make(map[string]*scriptLock)}
}

// acquire waits until the lock for key is held or ctx is done.
// On success it returns the matching release function. A waiter whose ctx is already done never takes the lock.
func (l *scriptLocks) acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mutex.Lock()
	lock, exists := l.locks[key]
	if !exists {
		lock = &scriptLock{held: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mutex.Unlock()

	select {
	case lock.held <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, lock)
		return nil, ctx.Err()
	}

	// Both cases may have been ready, a done ctx wins.
	if err := ctx.Err(); err != nil {
		<-lock.held
		l.unref(key, lock)
		return nil, err
	}

	return func() {
		<-lock.held
		l.unref(key, lock)
	}, nil
}

func (l *scriptLocks) unref(key string, lock *scriptLock) {
	l.mutex.Lock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
	l.mutex.Unlock()
}

func (l *scriptLocks) count() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.locks)
}
