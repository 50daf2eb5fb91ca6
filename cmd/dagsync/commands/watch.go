package commands

import (
	"dagsync/types"
	"dagsync/web"

	"github.com/spf13/cobra"
)

func newWatchCommand(flags *globalFlags) *cobra.Command {
	var (
		filter types.JobFilter
		port   uint
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Load every job, follow active runs and serve the dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			c, err := flags.container(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			log := c.Logger

			list, err := c.NewListObserver()
			if err != nil {
				return err
			}
			list.SetFilter(filter)
			list.OnChanged(func() {
				active := 0
				for _, job := range list.Visible() {
					if job.HasActiveRun() {
						active++
					}
				}
				log.Debug("list changed", "visible", len(list.Visible()), "active", active)
			})

			if err := list.Load(ctx); err != nil {
				return err
			}
			refreshed, err := list.RefreshVisibleRunStatus(ctx)
			if err != nil {
				return err
			}
			log.Info("watching jobs", "jobs", len(list.Jobs()), "refreshed", refreshed)

			if port == 0 {
				port = c.Config.DashboardPort
			}
			if port == 0 {
				<-ctx.Done()
				return nil
			}
			handler := web.NewRouteHandler(list, c.NewDetailObserver, log, port)
			return handler.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&filter.Search, "search", "", "only show jobs matching this text")
	cmd.Flags().StringVar(&filter.Owner, "owner", "", "only show jobs owned by this user")
	cmd.Flags().StringVar(&filter.Tag, "tag", "", "only show jobs carrying this tag")
	cmd.Flags().BoolVar(&filter.FavoritesOnly, "favorites", false, "only show favorite jobs")
	cmd.Flags().UintVarP(&port, "port", "p", 0, "dashboard API port, overrides the config file")
	return cmd
}
