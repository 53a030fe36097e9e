package port

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"

	"github.com/hashicorp/go-multierror"
)

// DefaultHosts are the local addresses a Scanner binds when none are given.
// The empty host is the wildcard address (dual-stack where the OS allows it).
var DefaultHosts = []string{"127.0.0.1", "::1", "", "localhost"}

var (
	// ErrPortInUse is matched (via errors.Is) by probe failures caused by
	// another socket already being bound to the port.
	ErrPortInUse = errors.New("port already in use")

	// ErrNoInterfaces is returned when none of the scanner's hosts could be
	// bound at all, e.g. every configured address is missing on this machine.
	ErrNoInterfaces = errors.New("no probe address available")
)

// ProbeError describes a fatal probe failure on one host.
type ProbeError struct {
	Host string
	Port int
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", net.JoinHostPort(e.Host, strconv.Itoa(e.Port)), e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// Is reports address-in-use failures as ErrPortInUse.
func (e *ProbeError) Is(target error) bool {
	return target == ErrPortInUse && errors.Is(e.Err, syscall.EADDRINUSE)
}

// Scanner checks whether TCP ports are bindable on the host machine.
//
// A probe opens a listener on every configured host and closes it again
// right away. A port is only reported free when no host refused it, which
// catches ports that are bound on one interface but free on another.
type Scanner struct {
	hosts []string
}

// NewScanner creates a Scanner probing the given hosts, or DefaultHosts
// when called without arguments.
func NewScanner(hosts ...string) *Scanner {
	if len(hosts) == 0 {
		hosts = DefaultHosts
	}
	h := make([]string, len(hosts))
	copy(h, hosts)
	return &Scanner{hosts: h}
}

// Hosts returns the addresses this scanner probes, in probe order.
func (s *Scanner) Hosts() []string {
	h := make([]string, len(s.hosts))
	copy(h, s.hosts)
	return h
}

// Probe binds and immediately closes a listener on each host for the given
// port and returns the port that was confirmed.
//
// Port 0 asks the OS for an ephemeral port on the first usable host; the
// remaining hosts then confirm that same port. A host whose address does not
// exist on this machine is skipped. Any other bind failure aborts the probe.
//
// The port may be taken by someone else as soon as Probe returns.
func (s *Scanner) Probe(port int) (int, error) {
	if port < 0 || port > maxPort {
		return 0, &ProbeError{Port: port, Err: fmt.Errorf("port out of range (0-%d)", maxPort)}
	}

	// skipped collects the per-host errors that did not abort the probe so
	// they can be reported if no host could be bound at all.
	var skipped error
	bound := false
	for _, host := range s.hosts {
		// JoinHostPort brackets IPv6 literals ("[::1]:8080") and leaves the
		// empty host as ":8080", which binds the wildcard address.
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			// A machine without IPv6, or where "localhost" does not resolve,
			// simply has fewer places to check. Skip that host and keep going.
			if isAddrNotAvailable(err) {
				skipped = multierror.Append(skipped, err)
				continue
			}
			// Anything else (typically EADDRINUSE) means the port is taken on
			// this host, so it cannot be handed out.
			return 0, &ProbeError{Host: host, Port: port, Err: err}
		}

		// Read the port back before closing. For a fixed port this is the
		// same number; for port 0 it is the one the OS just picked.
		resolved := ln.Addr().(*net.TCPAddr).Port
		_ = ln.Close()

		// Port 0 is only meaningful for the first host that binds. From then
		// on the remaining hosts must confirm the OS-assigned port itself,
		// otherwise every host would get its own unrelated ephemeral port.
		if port == 0 {
			port = resolved
		}
		bound = true
	}

	if !bound {
		return 0, fmt.Errorf("%w: %v", ErrNoInterfaces, skipped)
	}
	return port, nil
}

// IsPortAvailable reports whether port can currently be bound on every
// scanner host. Port 0 is never reported as available.
func (s *Scanner) IsPortAvailable(port int) bool {
	if port < 1 {
		return false
	}
	_, err := s.Probe(port)
	return err == nil
}

// UsedPorts returns the ports in [start, end] (inclusive) that cannot be
// bound right now.
func (s *Scanner) UsedPorts(start, end int) []int {
	var used []int
	for port := start; port <= end; port++ {
		if !s.IsPortAvailable(port) {
			used = append(used, port)
		}
	}
	return used
}

// isAddrNotAvailable matches bind errors that mean "this address does not
// exist here" rather than "this port is taken". A host name that does not
// resolve falls in the same bucket.
func isAddrNotAvailable(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.EADDRNOTAVAIL) ||
		errors.Is(err, syscall.EAFNOSUPPORT) ||
		errors.Is(err, syscall.EPROTONOSUPPORT)
}
