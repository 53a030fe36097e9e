package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/portpool/internal/model"
)

// NewPublishedCommand creates the "published" command.
func NewPublishedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "published",
		Short: "List host ports published by running Docker containers",
		Long: `List the TCP host ports published by running Docker containers.

These are the ports excluded from the pool when --docker (or "docker: true"
in the config file) is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			published, err := listPublishedPorts(cmd.Context())
			if err != nil {
				return err
			}
			VerboseLog("Found %d published port(s)", len(published))
			printPublished(cmd.OutOrStdout(), published)
			return nil
		},
	}
}

// printPublished writes published ports sorted by host port, as a text
// table or JSON.
//
//	HOST PORT  CONTAINER            CONTAINER PORT
//	15432      app-db-1             5432
func printPublished(w io.Writer, published []model.PublishedPort) {
	sorted := make([]model.PublishedPort, len(published))
	copy(sorted, published)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].HostPort < sorted[j].HostPort
	})

	if IsJSONOutput() {
		writeJSON(w, struct {
			Published []model.PublishedPort `json:"published"`
		}{Published: sorted})
		return
	}

	if len(sorted) == 0 {
		fmt.Fprintln(w, "No published ports found.")
		return
	}

	fmt.Fprintf(w, "%-10s %-20s %s\n", "HOST PORT", "CONTAINER", "CONTAINER PORT")
	for _, p := range sorted {
		fmt.Fprintf(w, "%-10d %-20s %d\n", p.HostPort, p.ContainerName, p.ContainerPort)
	}
}
