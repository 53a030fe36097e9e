package port

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTimeout is matched (via errors.Is) by every *TimeoutError.
	ErrTimeout = errors.New("port acquisition timed out")

	// ErrInvalidCount is returned when fewer than one port is requested.
	ErrInvalidCount = errors.New("port count must be at least 1")
)

// TimeoutError is returned by Acquire and friends when no reservation could
// be made before the deadline. It carries the pool state at the moment the
// acquisition gave up.
type TimeoutError struct {
	// Limit is the pool's configured capacity.
	Limit int

	// Held is the number of ports the pool held when it gave up.
	Held int

	// Requested is the number of ports asked for.
	Requested int

	// Attempts is the number of reservation attempts made.
	Attempts int

	// Elapsed is the time spent retrying.
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%v: requested %d port(s) with %d/%d held after %d attempt(s) in %s",
		ErrTimeout, e.Requested, e.Held, e.Limit, e.Attempts, e.Elapsed)
}

// Is lets errors.Is(err, ErrTimeout) match any TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}
