package model

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxPort is the highest valid TCP/UDP port number (2^16 - 1).
const MaxPort = 65535

// ValidatePort checks that port is a usable port number (1-65535).
func ValidatePort(port int) error {
	if port < 1 || port > MaxPort {
		return fmt.Errorf("port %d out of range (1-%d)", port, MaxPort)
	}
	return nil
}

// ParsePortRange parses an inclusive range written as "start-end" or a
// single port "port".
func ParsePortRange(s string) (start, end int, err error) {
	lo, hi, found := strings.Cut(strings.TrimSpace(s), "-")
	start, err = strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port range %q: %w", s, err)
	}
	end = start
	if found {
		end, err = strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid port range %q: %w", s, err)
		}
	}

	if err := ValidatePort(start); err != nil {
		return 0, 0, fmt.Errorf("invalid port range %q: %w", s, err)
	}
	if err := ValidatePort(end); err != nil {
		return 0, 0, fmt.Errorf("invalid port range %q: %w", s, err)
	}
	if end < start {
		return 0, 0, fmt.Errorf("invalid port range %q: end is below start", s)
	}
	return start, end, nil
}

// Reservation is a set of ports handed out by a pool in one acquisition.
// Ports are ascending and contiguous.
type Reservation struct {
	// Ports holds the reserved port numbers.
	Ports []int `json:"ports"`
}

// First returns the lowest reserved port, or 0 for an empty reservation.
func (r Reservation) First() int {
	if len(r.Ports) == 0 {
		return 0
	}
	return r.Ports[0]
}

// Environ renders the reservation as environment variables for a child
// process: PORT is the first port and PORT_<i> is the i-th port.
func (r Reservation) Environ() []string {
	if len(r.Ports) == 0 {
		return nil
	}
	env := make([]string, 0, len(r.Ports)+1)
	env = append(env, "PORT="+strconv.Itoa(r.First()))
	for i, p := range r.Ports {
		env = append(env, fmt.Sprintf("PORT_%d=%d", i, p))
	}
	return env
}

// String joins the ports with commas, or returns "-" when there are none.
func (r Reservation) String() string {
	if len(r.Ports) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(r.Ports))
	for _, p := range r.Ports {
		parts = append(parts, strconv.Itoa(p))
	}
	return strings.Join(parts, ",")
}

// PublishedPort is a host port published by a Docker container.
type PublishedPort struct {
	// ContainerID is the Docker container identifier.
	ContainerID string `json:"containerId"`

	// ContainerName is the container name without Docker's leading "/".
	ContainerName string `json:"containerName"`

	// HostIP is the address the port is published on ("" or "0.0.0.0" for all).
	HostIP string `json:"hostIp,omitempty"`

	// HostPort is the port number on the host machine.
	HostPort int `json:"hostPort"`

	// ContainerPort is the port number inside the container.
	ContainerPort int `json:"containerPort"`

	// Protocol is "tcp" or "udp". Defaults to "tcp".
	Protocol string `json:"protocol"`
}

// Validate checks port ranges and the protocol.
func (p *PublishedPort) Validate() error {
	if err := ValidatePort(p.HostPort); err != nil {
		return fmt.Errorf("published port: host %w", err)
	}
	if err := ValidatePort(p.ContainerPort); err != nil {
		return fmt.Errorf("published port: container %w", err)
	}
	if p.Protocol == "" {
		p.Protocol = "tcp"
	}
	if p.Protocol != "tcp" && p.Protocol != "udp" {
		return fmt.Errorf("published port: invalid protocol %q (valid: tcp, udp)", p.Protocol)
	}
	return nil
}

// String returns "name:containerPort → hostPort/protocol".
func (p *PublishedPort) String() string {
	proto := p.Protocol
	if proto == "" {
		proto = "tcp"
	}
	return fmt.Sprintf("%s:%d → %d/%s", p.ContainerName, p.ContainerPort, p.HostPort, proto)
}

// ExitCode defines the process exit codes of the portpool CLI. A successful
// run exits with 0 and never builds a CLIError.
type ExitCode int

const (
	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigInvalid indicates the configuration file could not be read
	// or failed validation.
	ExitConfigInvalid ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitPortAllocationFailed indicates no ports could be reserved before
	// the timeout.
	ExitPortAllocationFailed ExitCode = 4

	// ExitInvalidArgument indicates a malformed flag or argument.
	ExitInvalidArgument ExitCode = 5
)

// CLIError is an error that carries the exit code the CLI should return.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error returns the message, followed by the underlying error if present.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
