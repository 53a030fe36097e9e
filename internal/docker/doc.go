// Package docker wraps the Docker Engine SDK client so the pool can avoid
// host ports that running containers have published.
//
// The client detects the Docker socket automatically (DOCKER_HOST, then the
// platform defaults). ListPublishedPorts reads the published TCP ports of
// running containers, and HostPorts reduces them to the port numbers a pool
// should exclude.
package docker
