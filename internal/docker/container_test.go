package docker

import (
	"bytes"
	"context"
	"slices"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/portpool/internal/model"
)

// TestPublishedPorts verifies the conversion of a container summary: the
// leading "/" is stripped, unpublished and UDP ports are skipped, and an
// empty protocol defaults to tcp.
func TestPublishedPorts(t *testing.T) {
	c := container.Summary{
		ID:    "aaa111",
		Names: []string{"/app-db-1"},
	}

	ports := publishedPorts(withPorts(c,
		portSpec{ip: "0.0.0.0", private: 5432, public: 15432, proto: "tcp"},
		portSpec{ip: "::", private: 5432, public: 15432, proto: "tcp"},
		portSpec{private: 9000},
		portSpec{ip: "0.0.0.0", private: 53, public: 10053, proto: "udp"},
		portSpec{ip: "127.0.0.1", private: 8080, public: 18080},
	), zerolog.Nop())

	require.Len(t, ports, 3)
	assert.Equal(t, model.PublishedPort{
		ContainerID:   "aaa111",
		ContainerName: "app-db-1",
		HostIP:        "0.0.0.0",
		HostPort:      15432,
		ContainerPort: 5432,
		Protocol:      "tcp",
	}, ports[0])
	assert.Equal(t, "::", ports[1].HostIP)
	assert.Equal(t, 18080, ports[2].HostPort)
	assert.Equal(t, "tcp", ports[2].Protocol)
}

// TestPublishedPorts_NoNames verifies that a container without names still
// converts.
func TestPublishedPorts_NoNames(t *testing.T) {
	ports := publishedPorts(withPorts(container.Summary{ID: "bbb222"},
		portSpec{private: 80, public: 8080, proto: "tcp"},
	), zerolog.Nop())

	require.Len(t, ports, 1)
	assert.Empty(t, ports[0].ContainerName)
	assert.Equal(t, "bbb222", ports[0].ContainerID)
}

// TestPublishedPorts_SkipsInvalid verifies that an entry with an unusable
// container port is dropped and reported on the logger.
func TestPublishedPorts_SkipsInvalid(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ports := publishedPorts(withPorts(container.Summary{ID: "ccc333", Names: []string{"/broken-1"}},
		portSpec{ip: "0.0.0.0", private: 0, public: 18081, proto: "tcp"},
		portSpec{ip: "0.0.0.0", private: 80, public: 18082, proto: "tcp"},
	), logger)

	require.Len(t, ports, 1)
	assert.Equal(t, 18082, ports[0].HostPort)
	assert.Contains(t, buf.String(), "skipping published port")
	assert.Contains(t, buf.String(), `"container":"broken-1"`)
}

// TestListPublishedPorts_Daemon lists published ports from a real Docker
// daemon. It is skipped when no daemon is reachable.
func TestListPublishedPorts_Daemon(t *testing.T) {
	cli, err := NewClient()
	if err != nil {
		t.Skipf("Docker not available: %v", err)
	}
	defer func() { _ = cli.Close() }()

	ctx := context.Background()
	if err := cli.Ping(ctx); err != nil {
		t.Skipf("Docker daemon not responding: %v", err)
	}

	published, err := ListPublishedPorts(ctx, cli, zerolog.Nop())
	require.NoError(t, err)
	for _, p := range published {
		assert.NoError(t, p.Validate())
		assert.Equal(t, "tcp", p.Protocol)
		assert.NotEmpty(t, p.ContainerID)
	}

	hostPorts := HostPorts(published)
	assert.True(t, slices.IsSorted(hostPorts))
}

// TestHostPorts verifies that host ports are de-duplicated and sorted.
func TestHostPorts(t *testing.T) {
	published := []model.PublishedPort{
		{HostPort: 18080},
		{HostPort: 15432},
		{HostPort: 15432},
		{HostPort: 3000},
	}

	assert.Equal(t, []int{3000, 15432, 18080}, HostPorts(published))
	assert.Empty(t, HostPorts(nil))
}

type portSpec struct {
	ip      string
	private uint16
	public  uint16
	proto   string
}

// withPorts sets the port entries of c without naming the SDK's port type,
// which moved packages between Docker API releases.
func withPorts(c container.Summary, specs ...portSpec) container.Summary {
	c.Ports = slices.Grow(c.Ports[:0], len(specs))[:len(specs)]
	for i, s := range specs {
		c.Ports[i].IP = s.ip
		c.Ports[i].PrivatePort = s.private
		c.Ports[i].PublicPort = s.public
		c.Ports[i].Type = s.proto
	}
	return c
}
