package port

import (
	"context"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// maxPort is the highest valid TCP port number (2^16 - 1).
	maxPort = 65535

	// DefaultLimit is the default cap on simultaneously held ports. It is
	// larger than the port space, so in practice the pool is unbounded.
	DefaultLimit = 65536

	// DefaultStart is the first port a new pool tries.
	DefaultStart = 1025

	// DefaultTimeout bounds how long an acquisition keeps retrying.
	DefaultTimeout = 4 * time.Second
)

// Pool hands out locally free TCP ports and remembers which ones it has
// handed out until they are released.
//
// A port is issued only if it could be bound on every scanner host at
// reservation time and is neither held by this pool nor excluded. Multi-port
// requests always receive a contiguous ascending run.
//
// Pools are safe for concurrent use unless built with WithSync(false).
type Pool struct {
	mu          sync.Locker
	syncEnabled bool
	limit       int
	next        int
	scanner     *Scanner
	logger      zerolog.Logger

	held     map[int]struct{}
	excluded map[int]struct{}
}

// Option configures a Pool.
type Option func(*Pool)

// WithSync enables or disables locking. Unsynchronized pools must not be
// shared between goroutines.
func WithSync(enabled bool) Option {
	return func(p *Pool) { p.syncEnabled = enabled }
}

// WithLimit caps the number of ports held at once. A limit of 0 makes every
// acquisition time out.
func WithLimit(limit int) Option {
	return func(p *Pool) { p.limit = limit }
}

// WithStart sets the port the first acquisition starts searching from.
func WithStart(start int) Option {
	return func(p *Pool) { p.next = wrapPort(start) }
}

// WithScanner replaces the default scanner.
func WithScanner(s *Scanner) Option {
	return func(p *Pool) { p.scanner = s }
}

// WithLogger sets the logger used for attempt tracing. Pools log nothing by
// default.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pool) { p.logger = logger.With().Str("component", "port-pool").Logger() }
}

// NewPool creates a Pool. Without options it is synchronized, effectively
// unbounded and starts searching at DefaultStart.
func NewPool(opts ...Option) *Pool {
	p := &Pool{
		syncEnabled: true,
		limit:       DefaultLimit,
		next:        DefaultStart,
		logger:      zerolog.Nop(),
		held:        make(map[int]struct{}),
		excluded:    make(map[int]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.scanner == nil {
		p.scanner = NewScanner()
	}
	p.mu = newLocker(p.syncEnabled)
	return p
}

// Limit returns the configured capacity.
func (p *Pool) Limit() int {
	return p.limit
}

// Synchronized reports whether the pool locks around its state.
func (p *Pool) Synchronized() bool {
	return p.syncEnabled
}

// Acquire reserves a single port.
func (p *Pool) Acquire(timeout time.Duration) (int, error) {
	ports, err := p.AcquireContext(context.Background(), 1, timeout)
	if err != nil {
		return 0, err
	}
	return ports[0], nil
}

// AcquireN reserves total ports forming a contiguous ascending run
// (ports[i] == ports[0]+i).
func (p *Pool) AcquireN(total int, timeout time.Duration) ([]int, error) {
	return p.AcquireContext(context.Background(), total, timeout)
}

// AcquireContext is AcquireN that also gives up when ctx is done. The
// context and the deadline are checked between attempts; an attempt that
// has started always runs to completion. At least one attempt is made even
// when timeout is not positive.
//
// On failure the error is a *TimeoutError, ctx.Err(), or ErrInvalidCount.
// The caller owns the returned ports until it passes them to Release.
func (p *Pool) AcquireContext(ctx context.Context, total int, timeout time.Duration) ([]int, error) {
	if total < 1 {
		return nil, ErrInvalidCount
	}

	started := time.Now()
	deadline := started.Add(timeout)
	attempts := 0

	for {
		// The deadline is only checked after the first attempt, so a zero or
		// negative timeout still gets one chance to reserve ports.
		if attempts > 0 && time.Now().After(deadline) {
			err := &TimeoutError{
				Limit:     p.limit,
				Held:      p.Count(),
				Requested: total,
				Attempts:  attempts,
				Elapsed:   time.Since(started),
			}
			p.logger.Warn().Err(err).Msg("port acquisition timed out")
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts++

		// One grouped attempt runs under the lock. The deadline and context
		// checks above run outside it, so a waiting caller never holds the
		// lock while it decides to give up.
		res := guarded(p.mu, func() reservation { return p.reserve(total) })
		if res.reason != "" {
			p.logger.Debug().
				Int("attempt", attempts).
				Int("total", total).
				Str("reason", string(res.reason)).
				Msg("reservation attempt failed")
			// Retry straight away. Yielding lets goroutines that are about
			// to Release ports run before the next attempt.
			runtime.Gosched()
			continue
		}

		p.logger.Debug().Ints("ports", res.ports).Int("attempts", attempts).Msg("ports acquired")
		return res.ports, nil
	}
}

// WithPorts reserves total ports, passes them to fn and releases them once fn
// is done, panics included. The result and error of fn are returned
// unchanged; a panic is re-raised after the release.
func WithPorts[T any](p *Pool, total int, timeout time.Duration, fn func(ports []int) (T, error)) (T, error) {
	ports, err := p.AcquireN(total, timeout)
	if err != nil {
		var zero T
		return zero, err
	}
	// The release is deferred so it also runs when fn panics. The panic
	// then continues unwinding to the caller with its original value.
	defer p.Release(ports...)
	return fn(ports)
}

// Release returns ports to the pool. Ports the pool does not hold are ignored.
func (p *Pool) Release(ports ...int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, port := range ports {
		delete(p.held, port)
	}
}

// Count returns the number of ports currently held.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.held)
}

// Size is an alias for Count.
func (p *Pool) Size() int {
	return p.Count()
}

// Empty reports whether the pool holds no ports.
func (p *Pool) Empty() bool {
	return p.Count() == 0
}

// Held returns the held ports in ascending order.
func (p *Pool) Held() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedKeys(p.held)
}

// Exclude marks ports that must never be issued, e.g. ports another tool has
// reserved. Excluded ports do not count toward the limit.
func (p *Pool) Exclude(ports ...int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, port := range ports {
		p.excluded[port] = struct{}{}
	}
}

// Excluded returns the excluded ports in ascending order.
func (p *Pool) Excluded() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedKeys(p.excluded)
}

// wrapPort folds a cursor value into [0, maxPort]. Anything outside the port
// range restarts at 0, which lets the OS pick the next candidate.
func wrapPort(port int) int {
	if port < 0 || port > maxPort {
		return 0
	}
	return port
}

func sortedKeys(m map[int]struct{}) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
