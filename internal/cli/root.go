// Package cli implements the cobra-based portpool command line.
//
// Each subcommand (acquire, exec, check, published) lives in its own file.
// This file defines the root command, the global flags, configuration
// loading and error/exit-code handling shared by all of them.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/portpool/internal/config"
	"github.com/shinji-kodama/portpool/internal/docker"
	"github.com/shinji-kodama/portpool/internal/model"
	"github.com/shinji-kodama/portpool/internal/port"
)

// Global flag values, bound to persistent flags on the root command.
var (
	// jsonOutput switches all command output to JSON.
	jsonOutput bool

	// verbose lowers the log level to debug.
	verbose bool

	// configPath points at an explicit config file. When empty the working
	// directory is searched for the default file names.
	configPath string

	// startPort, limit, noSync and useDocker override config file values
	// when their flags are set.
	startPort int
	limit     int
	noSync    bool
	useDocker bool
)

// logger is the CLI's logger, rebuilt for every invocation once flags are
// parsed.
var logger = zerolog.Nop()

// Build information, injected from main.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates the root command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "portpool",
		Short: "Hand out free local TCP ports",
		Long: `portpool finds TCP ports that are free on every local interface and hands
them out without repeating a port it is still holding. Multi-port requests
always receive a contiguous run (p, p+1, ..., p+n-1).

Typical use is wiring ports into test fixtures and subprocesses:

  portpool acquire -n 3
  portpool exec -n 2 -- ./run-cluster.sh   # sees PORT, PORT_0, PORT_1`,

		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		// Flags are parsed by the time PersistentPreRun runs, so this is
		// the first point where --verbose is known. Subcommands inherit it.
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = newLogger(cmd.ErrOrStderr(), verbose)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	flags.StringVar(&configPath, "config", "", "Config file (default: .portpool.{yaml,yml,json,jsonc} in the working directory)")
	flags.IntVar(&startPort, "start", port.DefaultStart, "First port to try (0 lets the OS choose)")
	flags.IntVar(&limit, "limit", port.DefaultLimit, "Maximum number of ports held at once")
	flags.BoolVar(&noSync, "no-sync", false, "Disable locking inside the pool")
	flags.BoolVar(&useDocker, "docker", false, "Never hand out ports published by Docker containers")

	rootCmd.AddCommand(NewAcquireCommand())
	rootCmd.AddCommand(NewExecCommand())
	rootCmd.AddCommand(NewCheckCommand())
	rootCmd.AddCommand(NewPublishedCommand())

	return rootCmd
}

// Execute runs the root command and exits with the code carried by a
// model.CLIError, or 1 for any other error.
func Execute(rootCmd *cobra.Command) {
	if err := rootCmd.Execute(); err != nil {
		var cliErr *model.CLIError
		if errors.As(err, &cliErr) {
			// A CLIError without a message carries a child's exit status
			// from "exec". The child has already reported its own failure.
			if cliErr.Message != "" {
				printError(rootCmd.ErrOrStderr(), cliErr.Message, cliErr.Err)
			}
			os.Exit(int(cliErr.Code))
		}

		printError(rootCmd.ErrOrStderr(), err.Error(), nil)
		os.Exit(int(model.ExitGeneralError))
	}
}

// printError writes an error as text or, with --json, as a JSON object.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		body := map[string]string{"message": message}
		if underlying != nil {
			body["detail"] = underlying.Error()
		}
		data, _ := json.MarshalIndent(map[string]any{"error": body}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// newLogger builds a human-readable stderr logger. Only warnings are shown
// unless verbose is set.
func newLogger(w io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true}).
		Level(level).
		With().Timestamp().
		Logger()
}

// VerboseLog writes a debug message, shown only with --verbose.
func VerboseLog(format string, args ...interface{}) {
	logger.Debug().Msgf(format, args...)
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}

// loadConfig reads the config file (explicit or discovered) and applies the
// global flags the user set on top of it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
	} else {
		dir, wdErr := os.Getwd()
		if wdErr != nil {
			return nil, model.WrapCLIError(model.ExitGeneralError, "failed to determine working directory", wdErr)
		}
		cfg, err = config.LoadDir(dir)
	}
	if err != nil {
		return nil, err
	}

	// Only flags the user actually passed override the file. Checking
	// Changed keeps a flag's default from silently replacing a value that
	// was set in the config file.
	flags := cmd.Flags()
	if flags.Changed("start") {
		cfg.Start = startPort
	}
	if flags.Changed("limit") {
		cfg.Limit = limit
	}
	if flags.Changed("no-sync") {
		cfg.Sync = !noSync
	}
	if flags.Changed("docker") {
		cfg.Docker = useDocker
	}

	if err := cfg.Validate(); err != nil {
		return nil, model.WrapCLIError(model.ExitConfigInvalid, "invalid settings", err)
	}
	return cfg, nil
}

// newPool builds the pool for one command run. With Docker exclusion
// enabled, ports published by running containers are excluded first.
func newPool(ctx context.Context, cfg *config.Config) (*port.Pool, error) {
	pool := cfg.NewPool(logger)
	VerboseLog("pool: start=%d limit=%d sync=%v excluded=%d", cfg.Start, cfg.Limit, cfg.Sync, len(cfg.Exclude))

	if !cfg.Docker {
		return pool, nil
	}

	published, err := listPublishedPorts(ctx)
	if err != nil {
		return nil, err
	}
	excludePublished(pool, published)
	return pool, nil
}

// excludePublished keeps the pool away from host ports Docker has published.
func excludePublished(pool *port.Pool, published []model.PublishedPort) {
	for _, p := range published {
		VerboseLog("excluding %s", p.String())
	}
	hostPorts := docker.HostPorts(published)
	pool.Exclude(hostPorts...)
	VerboseLog("excluded %d Docker-published port(s)", len(hostPorts))
}

// listPublishedPorts connects to Docker and lists published host ports.
func listPublishedPorts(ctx context.Context) ([]model.PublishedPort, error) {
	cli, err := docker.NewClient()
	if err != nil {
		return nil, err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return nil, err
	}
	VerboseLog("Connected to Docker daemon")

	return docker.ListPublishedPorts(ctx, cli, logger)
}

// acquisitionError maps pool errors to CLI errors with exit codes.
func acquisitionError(err error) error {
	switch {
	case errors.Is(err, port.ErrTimeout):
		return model.WrapCLIError(model.ExitPortAllocationFailed, "could not reserve ports", err)
	case errors.Is(err, port.ErrInvalidCount):
		return model.WrapCLIError(model.ExitInvalidArgument, "invalid port count", err)
	default:
		return err
	}
}

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(w, string(data))
}
