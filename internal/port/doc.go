// Package port hands out locally free TCP port numbers so tests and
// subprocesses can bind listeners without colliding with each other.
//
// A Pool probes the OS with a Scanner (bind then close a listener on every
// local address it checks), keeps the set of ports it has handed out, and
// can reserve a contiguous run of N ports in one step:
//
//	pool := port.NewPool()
//	ports, err := pool.AcquireN(3, port.DefaultTimeout) // e.g. [40001 40002 40003]
//	...
//	pool.Release(ports...)
//
// WithPorts scopes a reservation to a function call and always releases it.
// Default returns a process-wide pool shared by the package-level helpers,
// and With is the scoped form on that pool.
//
// Ports are only guaranteed unique within one pool's bookkeeping. Another
// process may bind a port between the probe and the caller's real use.
package port
