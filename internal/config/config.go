// Package config loads portpool settings from an optional YAML or JSONC
// file in the working directory.
//
// JSON files may contain comments and trailing commas; they are passed
// through github.com/tidwall/jsonc before encoding/json parses them. YAML
// files are parsed with gopkg.in/yaml.v3. Every loaded file is validated
// with go-playground/validator.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/portpool/internal/model"
	"github.com/shinji-kodama/portpool/internal/port"
)

// DefaultFileNames are looked up, in order, when no config path is given.
var DefaultFileNames = []string{
	".portpool.yaml",
	".portpool.yml",
	".portpool.json",
	".portpool.jsonc",
}

// Duration is a time.Duration written as a Go duration string ("4s",
// "250ms") in config files.
type Duration time.Duration

// UnmarshalText parses a Go duration string. Both yaml.v3 and
// encoding/json use it for string values.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config holds pool and CLI settings. Fields missing from a file keep their
// defaults.
type Config struct {
	// Sync enables locking inside the pool.
	Sync bool `yaml:"sync" json:"sync"`

	// Limit caps the number of ports held at once.
	Limit int `yaml:"limit" json:"limit" validate:"gte=0"`

	// Start is the first port the pool tries. 0 lets the OS choose.
	Start int `yaml:"start" json:"start" validate:"gte=0,lte=65535"`

	// Timeout bounds each acquisition.
	Timeout Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`

	// Hosts are the addresses probed for each candidate port. Empty means
	// the scanner defaults.
	Hosts []string `yaml:"hosts" json:"hosts" validate:"dive,max=253"`

	// Exclude lists ports that must never be handed out.
	Exclude []int `yaml:"exclude" json:"exclude" validate:"dive,gte=1,lte=65535"`

	// Docker excludes host ports published by Docker containers.
	Docker bool `yaml:"docker" json:"docker"`
}

// Default returns the settings used when no config file exists.
func Default() *Config {
	return &Config{
		Sync:    true,
		Limit:   port.DefaultLimit,
		Start:   port.DefaultStart,
		Timeout: Duration(port.DefaultTimeout),
	}
}

// Load reads and validates the config file at path. The format is chosen by
// extension: .yaml/.yml for YAML, .json/.jsonc for JSON with comments.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, model.WrapCLIError(model.ExitConfigInvalid,
				fmt.Sprintf("config file not found: %s", path), err)
		}
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), cfg)
	default:
		err = fmt.Errorf("unsupported config extension %q (valid: .yaml, .yml, .json, .jsonc)", ext)
	}
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid,
			fmt.Sprintf("invalid config file %s", path), err)
	}
	return cfg, nil
}

// Find returns the first of DefaultFileNames that exists in dir.
func Find(dir string) (string, bool) {
	for _, name := range DefaultFileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// LoadDir loads the first default config file found in dir, or returns
// Default when there is none.
func LoadDir(dir string) (*Config, error) {
	path, ok := Find(dir)
	if !ok {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout)
}

// PoolOptions translates the settings into pool options.
func (c *Config) PoolOptions(logger zerolog.Logger) []port.Option {
	opts := []port.Option{
		port.WithSync(c.Sync),
		port.WithLimit(c.Limit),
		port.WithStart(c.Start),
		port.WithLogger(logger),
	}
	if len(c.Hosts) > 0 {
		opts = append(opts, port.WithScanner(port.NewScanner(c.Hosts...)))
	}
	return opts
}

// NewPool builds a pool from the settings and applies the exclusions.
func (c *Config) NewPool(logger zerolog.Logger) *port.Pool {
	pool := port.NewPool(c.PoolOptions(logger)...)
	pool.Exclude(c.Exclude...)
	return pool
}
