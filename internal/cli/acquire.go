package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/portpool/internal/model"
)

// acquireFlags holds the flags shared by the acquire and exec commands.
type acquireFlags struct {
	// count is the number of contiguous ports to reserve.
	count int

	// timeout bounds the acquisition. Zero means the configured timeout.
	timeout time.Duration
}

func (f *acquireFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.count, "count", "n", 1, "Number of contiguous ports to reserve")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Give up after this long (default: config timeout, 4s)")
}

// NewAcquireCommand creates the "acquire" command.
func NewAcquireCommand() *cobra.Command {
	flags := &acquireFlags{}

	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Reserve free ports and print them",
		Long: `Reserve one or more free TCP ports and print them, one per line.

Multiple ports always form a contiguous ascending run. The ports are free
when printed, but nothing keeps them reserved once portpool exits; use
"portpool exec" to keep a reservation for the lifetime of a command.

Examples:
  portpool acquire
  portpool acquire -n 3 --timeout 10s
  portpool acquire -n 2 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAcquire(cmd, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func runAcquire(cmd *cobra.Command, flags *acquireFlags) error {
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

	ports, err := pool.AcquireContext(cmd.Context(), flags.count, timeout)
	if err != nil {
		return acquisitionError(err)
	}
	VerboseLog("reserved %v", ports)

	printReservation(cmd.OutOrStdout(), model.Reservation{Ports: ports})
	return nil
}

// printReservation writes the reserved ports as text (one per line) or JSON.
func printReservation(w io.Writer, r model.Reservation) {
	if IsJSONOutput() {
		writeJSON(w, r)
		return
	}
	for _, p := range r.Ports {
		fmt.Fprintln(w, p)
	}
}
