package port

import "sync"

// noopLocker satisfies sync.Locker without synchronizing anything. Pools
// built with WithSync(false) use it so the locking call sites stay the same.
type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// newLocker picks the locking strategy once, at construction time. The rest
// of the pool only sees a sync.Locker and never branches on the setting.
func newLocker(enabled bool) sync.Locker {
	if enabled {
		return &sync.Mutex{}
	}
	return noopLocker{}
}

// guarded runs fn while holding l and returns its result.
//
// This is the single critical section of a Pool: probing, checking the held
// set and recording the reservation all happen inside one call, so two
// goroutines can never both decide they own the same port.
func guarded[T any](l sync.Locker, fn func() T) T {
	l.Lock()
	// Unlock in a defer rather than after fn returns. If fn panics (a
	// scanner bug, a nil map) the lock is still released and other callers
	// of the pool are not blocked forever.
	defer l.Unlock()
	return fn()
}
