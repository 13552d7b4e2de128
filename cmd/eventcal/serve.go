package main

import (
	"github.com/spf13/cobra"

	appLog "eventcal/internal/log"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			// CLI --listen overrides config file listen if provided.
			if listen != "" {
				a.Config.Listen = listen
			}

			appLog.Info("eventcal starting",
				"version", version,
				"listen", a.Config.Listen,
				"timezone", a.Config.Timezone,
				"database", a.Config.Database.Driver,
				"telegram", a.Config.Telegram.Enabled,
				"ics_count", len(a.Config.ICS),
				"scraper_service", a.Config.Scraper.ServiceURL != "",
			)

			sched, err := a.Scheduler()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sched.Start(ctx)

			err = a.Server().Run(ctx, a.Config.Listen)
			appLog.Info("eventcal exiting")
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}
