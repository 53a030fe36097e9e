package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/portpool/internal/model"
	"github.com/shinji-kodama/portpool/internal/port"
)

// checkFlags holds the flag values for the check command.
type checkFlags struct {
	// portRange is an inclusive "start-end" range to scan.
	portRange string

	// usedOnly limits the output to ports that are in use.
	usedOnly bool
}

// portStatus is one row of check output.
type portStatus struct {
	Port      int  `json:"port"`
	Available bool `json:"available"`
}

// NewCheckCommand creates the "check" command.
func NewCheckCommand() *cobra.Command {
	flags := &checkFlags{}

	cmd := &cobra.Command{
		Use:   "check [PORT...]",
		Short: "Report whether ports are free on all local interfaces",
		Long: `Probe ports by binding and closing a listener on every local address
(127.0.0.1, ::1, the wildcard address and localhost, or the configured
hosts) and report which ones are free.

Examples:
  portpool check 3000 5432
  portpool check --range 8000-8100 --used`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, flags, args)
		},
	}

	cmd.Flags().StringVar(&flags.portRange, "range", "", "Inclusive port range to scan, e.g. 8000-8100")
	cmd.Flags().BoolVar(&flags.usedOnly, "used", false, "Only list ports that are in use")
	return cmd
}

func runCheck(cmd *cobra.Command, flags *checkFlags, args []string) error {
	ports, err := checkTargets(flags.portRange, args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	scanner := port.NewScanner(cfg.Hosts...)
	VerboseLog("probing %d port(s) on %q", len(ports), scanner.Hosts())

	// Each port is probed on every scanner host, so a port bound only on
	// ::1 or the wildcard address is still reported as in use.
	statuses := make([]portStatus, 0, len(ports))
	for _, p := range ports {
		available := scanner.IsPortAvailable(p)
		if flags.usedOnly && available {
			continue
		}
		statuses = append(statuses, portStatus{Port: p, Available: available})
	}

	printCheckResult(cmd.OutOrStdout(), statuses)
	return nil
}

// checkTargets collects the ports named by arguments and --range.
func checkTargets(portRange string, args []string) ([]int, error) {
	var ports []int
	for _, arg := range args {
		p, err := strconv.Atoi(arg)
		if err == nil {
			err = model.ValidatePort(p)
		}
		if err != nil {
			return nil, model.WrapCLIError(model.ExitInvalidArgument, fmt.Sprintf("invalid port %q", arg), err)
		}
		ports = append(ports, p)
	}

	if portRange != "" {
		start, end, err := model.ParsePortRange(portRange)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitInvalidArgument, "invalid --range", err)
		}
		for p := start; p <= end; p++ {
			ports = append(ports, p)
		}
	}

	if len(ports) == 0 {
		return nil, model.NewCLIError(model.ExitInvalidArgument, "no ports given: pass PORT arguments or --range")
	}
	return ports, nil
}

// printCheckResult writes the statuses as a text table or JSON.
//
//	PORT   STATUS
//	3000   in use
//	5432   free
func printCheckResult(w io.Writer, statuses []portStatus) {
	if IsJSONOutput() {
		writeJSON(w, struct {
			Ports []portStatus `json:"ports"`
		}{Ports: statuses})
		return
	}

	fmt.Fprintf(w, "%-7s %s\n", "PORT", "STATUS")
	for _, s := range statuses {
		status := "free"
		if !s.Available {
			status = "in use"
		}
		fmt.Fprintf(w, "%-7d %s\n", s.Port, status)
	}
}
