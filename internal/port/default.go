package port

import (
	"sync"
	"time"
)

var (
	defaultPool     *Pool
	defaultPoolOnce sync.Once
)

// Default returns the process-wide pool, creating it with default options on
// first use. It lives until the process exits.
func Default() *Pool {
	defaultPoolOnce.Do(func() {
		defaultPool = NewPool()
	})
	return defaultPool
}

// Acquire reserves a single port from the default pool.
func Acquire(timeout time.Duration) (int, error) {
	return Default().Acquire(timeout)
}

// AcquireN reserves a contiguous run of total ports from the default pool.
func AcquireN(total int, timeout time.Duration) ([]int, error) {
	return Default().AcquireN(total, timeout)
}

// Release returns ports to the default pool.
func Release(ports ...int) {
	Default().Release(ports...)
}

// Count returns the number of ports held by the default pool.
func Count() int {
	return Default().Count()
}

// Size is an alias for Count.
func Size() int {
	return Default().Size()
}

// Empty reports whether the default pool holds no ports.
func Empty() bool {
	return Default().Empty()
}

// With is WithPorts on the default pool: it reserves total ports, runs fn
// with them and releases them when fn is done, panics included.
func With[T any](total int, timeout time.Duration, fn func(ports []int) (T, error)) (T, error) {
	return WithPorts(Default(), total, timeout, fn)
}
