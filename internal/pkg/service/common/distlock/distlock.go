// Package distlock provides cluster-wide exclusive locks.
//
// The etcd Provider is based on the concurrency.Mutex, all locks of a node share one resistant etcd session.
// The MemoryProvider is an in-process implementation for tests.
package distlock

import (
	"context"
	"time"
)

// Mutex is a named cluster-wide exclusive lock.
// At most one holder exists in the cluster at any time.
type Mutex interface {
	Name() string
	// Lock blocks until the lock is acquired or the context is cancelled.
	Lock(ctx context.Context) error
	// TryLock waits at most timeout for the lock. It returns false on timeout, without an error.
	TryLock(ctx context.Context, timeout time.Duration) (bool, error)
	// Unlock releases the lock, it fails with NotLockedError if the lock is not held by the mutex.
	Unlock(ctx context.Context) error
	// ForceUnlock releases the lock regardless of the holder, it is idempotent.
	ForceUnlock(ctx context.Context) error
	// IsLocked returns true if the lock is held by the mutex.
	IsLocked() bool
}

// Locker creates mutexes.
type Locker interface {
	NewMutex(name string) Mutex
}

type NotLockedError struct {
	name string
}

func (e NotLockedError) Error() string {
	return `lock "` + e.name + `" is not held`
}
