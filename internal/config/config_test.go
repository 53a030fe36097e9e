package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/portpool/internal/model"
	"github.com/shinji-kodama/portpool/internal/port"
)

// writeFile writes content to name inside a fresh temp dir and returns the
// full path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestDefault verifies the defaults match the pool's own defaults.
func TestDefault(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.Sync)
	assert.Equal(t, port.DefaultLimit, cfg.Limit)
	assert.Equal(t, port.DefaultStart, cfg.Start)
	assert.Equal(t, port.DefaultTimeout, cfg.TimeoutDuration())
	assert.Empty(t, cfg.Hosts)
	assert.False(t, cfg.Docker)
	assert.NoError(t, cfg.Validate())
}

// TestLoad_YAML verifies that every field is read from a YAML file.
func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, ".portpool.yaml", `
sync: false
limit: 10
start: 30000
timeout: 250ms
hosts: ["127.0.0.1", "::1"]
exclude: [30001, 30002]
docker: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.False(t, cfg.Sync)
	assert.Equal(t, 10, cfg.Limit)
	assert.Equal(t, 30000, cfg.Start)
	assert.Equal(t, 250*time.Millisecond, cfg.TimeoutDuration())
	assert.Equal(t, []string{"127.0.0.1", "::1"}, cfg.Hosts)
	assert.Equal(t, []int{30001, 30002}, cfg.Exclude)
	assert.True(t, cfg.Docker)
}

// TestLoad_JSONC verifies that comments and trailing commas are accepted
// and that the JSON form loads to the same settings as YAML.
func TestLoad_JSONC(t *testing.T) {
	path := writeFile(t, ".portpool.jsonc", `{
  // keep the pool small in CI
  "limit": 10,
  "start": 30000, /* inclusive */
  "timeout": "250ms",
  "exclude": [30001, 30002,],
}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Sync, "missing fields keep their defaults")
	assert.Equal(t, 10, cfg.Limit)
	assert.Equal(t, 30000, cfg.Start)
	assert.Equal(t, 250*time.Millisecond, cfg.TimeoutDuration())
	assert.Equal(t, []int{30001, 30002}, cfg.Exclude)
}

// TestLoad_NotFound verifies that a missing file is reported with the
// config exit code.
func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigInvalid, cliErr.Code)
	assert.Contains(t, err.Error(), "not found")
}

// TestLoad_UnsupportedExtension verifies that unknown extensions are
// rejected.
func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "portpool.toml", "limit = 3\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config extension")
}

// TestLoad_BadDuration verifies that malformed durations fail to parse.
func TestLoad_BadDuration(t *testing.T) {
	path := writeFile(t, ".portpool.yaml", "timeout: soon\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

// TestLoad_InvalidValues verifies that validation rejects out-of-range
// settings.
func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{name: "negative limit", content: "limit: -1\n", field: "Limit"},
		{name: "start too high", content: "start: 70000\n", field: "Start"},
		{name: "negative timeout", content: "timeout: -1s\n", field: "Timeout"},
		{name: "excluded port zero", content: "exclude: [0]\n", field: "Exclude[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, ".portpool.yaml", tt.content)

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

// TestLoadDir verifies default file discovery and the fallback to defaults.
func TestLoadDir(t *testing.T) {
	t.Run("no file", func(t *testing.T) {
		cfg, err := LoadDir(t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("yml file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".portpool.yml"), []byte("limit: 7\n"), 0o644))

		path, ok := Find(dir)
		require.True(t, ok)
		assert.Equal(t, ".portpool.yml", filepath.Base(path))

		cfg, err := LoadDir(dir)
		require.NoError(t, err)
		assert.Equal(t, 7, cfg.Limit)
	})
}

// TestNewPool verifies that settings reach the pool, including exclusions.
func TestNewPool(t *testing.T) {
	cfg := Default()
	cfg.Sync = false
	cfg.Limit = 3
	cfg.Exclude = []int{40000, 40001}
	cfg.Hosts = []string{"127.0.0.1"}

	pool := cfg.NewPool(zerolog.Nop())

	assert.False(t, pool.Synchronized())
	assert.Equal(t, 3, pool.Limit())
	assert.Equal(t, []int{40000, 40001}, pool.Excluded())
	assert.True(t, pool.Empty())
}
