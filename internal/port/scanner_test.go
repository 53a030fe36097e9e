package port

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listenLoopback starts a TCP listener on an OS-assigned loopback port and
// returns the port. The listener is closed when the test ends.
func listenLoopback(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to start test listener")
	t.Cleanup(func() { _ = ln.Close() })

	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return tcpAddr.Port
}

// TestNewScanner_DefaultHosts verifies that a scanner built without hosts
// probes loopback (v4 and v6), the wildcard address and "localhost".
func TestNewScanner_DefaultHosts(t *testing.T) {
	scanner := NewScanner()
	assert.Equal(t, []string{"127.0.0.1", "::1", "", "localhost"}, scanner.Hosts())
}

// TestProbe_EphemeralPort verifies that probing port 0 resolves to a real
// port chosen by the OS.
func TestProbe_EphemeralPort(t *testing.T) {
	scanner := NewScanner()

	port, err := scanner.Probe(0)
	require.NoError(t, err)
	assert.Greater(t, port, 0)
	assert.LessOrEqual(t, port, maxPort)
}

// TestProbe_FreePort verifies that probing a port that was just confirmed
// free returns that same port.
func TestProbe_FreePort(t *testing.T) {
	scanner := NewScanner()

	free, err := scanner.Probe(0)
	require.NoError(t, err)

	port, err := scanner.Probe(free)
	require.NoError(t, err)
	assert.Equal(t, free, port)
}

// TestProbe_UsedPort verifies that a port bound by another listener fails
// the probe with an error matching ErrPortInUse.
func TestProbe_UsedPort(t *testing.T) {
	port := listenLoopback(t)

	_, err := NewScanner().Probe(port)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPortInUse), "expected ErrPortInUse, got %v", err)

	var probeErr *ProbeError
	require.True(t, errors.As(err, &probeErr))
	assert.Equal(t, port, probeErr.Port)
}

// TestProbe_OutOfRange verifies that ports outside 0-65535 are rejected
// without touching the network.
func TestProbe_OutOfRange(t *testing.T) {
	scanner := NewScanner()

	_, err := scanner.Probe(maxPort + 1)
	assert.Error(t, err)

	_, err = scanner.Probe(-1)
	assert.Error(t, err)
}

// TestProbe_SkipsUnavailableAddress verifies that an address that does not
// exist on this machine is skipped as long as another host can be bound.
// 192.0.2.1 is TEST-NET-1 and never assigned to a local interface.
func TestProbe_SkipsUnavailableAddress(t *testing.T) {
	scanner := NewScanner("192.0.2.1", "127.0.0.1")

	port, err := scanner.Probe(0)
	require.NoError(t, err)
	assert.Greater(t, port, 0)
}

// TestProbe_NoInterfaces verifies that a scanner whose only host is not
// local reports ErrNoInterfaces.
func TestProbe_NoInterfaces(t *testing.T) {
	scanner := NewScanner("192.0.2.1")

	_, err := scanner.Probe(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoInterfaces), "expected ErrNoInterfaces, got %v", err)
}

// TestIsPortAvailable_FreePort verifies that IsPortAvailable returns true
// for a port no process is using.
func TestIsPortAvailable_FreePort(t *testing.T) {
	scanner := NewScanner()

	free, err := scanner.Probe(0)
	require.NoError(t, err)
	assert.True(t, scanner.IsPortAvailable(free), "port %d should be available", free)
}

// TestIsPortAvailable_UsedPort verifies that IsPortAvailable returns false
// while another listener holds the port.
func TestIsPortAvailable_UsedPort(t *testing.T) {
	port := listenLoopback(t)
	assert.False(t, NewScanner().IsPortAvailable(port), "port %d should be in use", port)
}

// TestIsPortAvailable_Zero verifies that port 0 is never reported free,
// since it is a request for a port rather than a port.
func TestIsPortAvailable_Zero(t *testing.T) {
	assert.False(t, NewScanner().IsPortAvailable(0))
}

// TestUsedPorts verifies that UsedPorts reports a port with an active
// listener.
func TestUsedPorts(t *testing.T) {
	port := listenLoopback(t)

	used := NewScanner().UsedPorts(port, port)
	assert.Contains(t, used, port, "the port with an active listener should be reported as used")
}
