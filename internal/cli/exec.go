package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/portpool/internal/model"
	"github.com/shinji-kodama/portpool/internal/port"
)

// NewExecCommand creates the "exec" command.
func NewExecCommand() *cobra.Command {
	flags := &acquireFlags{}

	cmd := &cobra.Command{
		Use:   "exec [flags] -- COMMAND [ARGS...]",
		Short: "Run a command with reserved ports in its environment",
		Long: `Reserve ports, run COMMAND with them, and release them when it exits.

The command sees PORT (the first port) and PORT_0 ... PORT_<n-1>.
portpool exits with the command's exit status.

Examples:
  portpool exec -- ./server --listen :$PORT
  portpool exec -n 3 -- sh -c 'echo $PORT_0 $PORT_1 $PORT_2'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(cmd, flags, args)
		},
	}
	flags.register(cmd)
	return cmd
}

func runExec(cmd *cobra.Command, flags *acquireFlags, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	pool, err := newPool(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	timeout := cfg.TimeoutDuration()
	if flags.timeout > 0 {
		timeout = flags.timeout
	}

	_, err = port.WithPorts(pool, flags.count, timeout, func(ports []int) (struct{}, error) {
		r := model.Reservation{Ports: ports}
		VerboseLog("running %q with ports %s", args[0], r)

		// The child inherits our environment plus PORT and PORT_<i>. Later
		// entries win in os/exec, so a PORT already set by the caller is
		// replaced by the reserved one.
		child := exec.CommandContext(cmd.Context(), args[0], args[1:]...)
		child.Env = append(os.Environ(), r.Environ()...)
		child.Stdin = cmd.InOrStdin()
		child.Stdout = cmd.OutOrStdout()
		child.Stderr = cmd.ErrOrStderr()
		return struct{}{}, child.Run()
	})
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// The child already reported its own failure.
		code := exitErr.ExitCode()
		// ExitCode is -1 when the child was killed by a signal. That is not
		// a valid process exit status, so report it as a general error.
		if code < 0 {
			return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("%q was terminated", args[0]), err)
		}
		return &model.CLIError{Code: model.ExitCode(code)}
	}
	if errors.Is(err, port.ErrTimeout) || errors.Is(err, port.ErrInvalidCount) {
		return acquisitionError(err)
	}
	return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("failed to run %q", args[0]), err)
}
