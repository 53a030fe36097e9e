package docker

import (
	"context"
	"slices"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/rs/zerolog"

	"github.com/shinji-kodama/portpool/internal/model"
)

// ListPublishedPorts returns every TCP host port published by a running
// container.
//
// With Docker's userland proxy disabled, published ports are forwarded by
// iptables rules and nothing is bound on the host, so a bind probe reports
// them as free. Excluding these ports from a pool closes that gap.
//
// Entries Docker reports with an unusable port number are skipped and logged
// at warn level on logger.
func ListPublishedPorts(ctx context.Context, cli *Client, logger zerolog.Logger) ([]model.PublishedPort, error) {
	containers, err := cli.Inner().ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("status", "running")),
	})
	if err != nil {
		return nil, model.WrapCLIError(model.ExitDockerNotRunning, "failed to list Docker containers", err)
	}

	var published []model.PublishedPort
	for _, c := range containers {
		published = append(published, publishedPorts(c, logger)...)
	}
	return published, nil
}

// publishedPorts extracts the published TCP ports of one container. Ports
// that are exposed but not published have PublicPort 0 and are skipped.
func publishedPorts(c container.Summary, logger zerolog.Logger) []model.PublishedPort {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}

	var out []model.PublishedPort
	for _, p := range c.Ports {
		// Unpublished ports have PublicPort 0. UDP and SCTP ports do not
		// collide with TCP binds, so they are not reported either.
		if p.PublicPort == 0 || (p.Type != "" && p.Type != "tcp") {
			continue
		}
		pp := model.PublishedPort{
			ContainerID:   c.ID,
			ContainerName: name,
			HostIP:        p.IP,
			HostPort:      int(p.PublicPort),
			ContainerPort: int(p.PrivatePort),
			Protocol:      p.Type,
		}
		// Validate also fills in "tcp" when Docker leaves the type empty.
		if err := pp.Validate(); err != nil {
			logger.Warn().Err(err).Str("container", name).Msg("skipping published port")
			continue
		}
		out = append(out, pp)
	}
	return out
}

// HostPorts returns the distinct host ports in ascending order. Docker
// reports a port once per address family, so duplicates are common.
func HostPorts(published []model.PublishedPort) []int {
	ports := make([]int, 0, len(published))
	for _, p := range published {
		ports = append(ports, p.HostPort)
	}
	slices.Sort(ports)
	return slices.Compact(ports)
}
