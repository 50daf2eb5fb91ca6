package commands

import (
	"dagsync/types"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCheckCommand(flags *globalFlags) *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fetch the latest run of every visible job once and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			c, err := flags.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			list, err := c.NewListObserver()
			if err != nil {
				return err
			}
			if err := list.Load(ctx); err != nil {
				return err
			}
			list.SetFilter(types.JobFilter{Search: search})
			if _, err := list.RefreshVisibleRunStatus(ctx); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tPAUSED\tRUN\tSTATE")
			for _, job := range list.Visible() {
				runID, st := "-", "-"
				if job.LatestRun != nil {
					st = job.LatestRun.State.String()
					if job.LatestRun.RunID != "" {
						runID = job.LatestRun.RunID
					}
				}
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", job.JobID, job.IsPaused, runID, st)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "only check jobs matching this text")
	return cmd
}
