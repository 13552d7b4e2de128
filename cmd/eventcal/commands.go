package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"eventcal/internal/calendar"
	"eventcal/internal/datetime"
	"eventcal/internal/shortcode"
	"eventcal/internal/telegram"
)

func newRenderCmd(opts *rootOptions) *cobra.Command {
	var hidden bool
	attrs := map[string]*string{
		shortcode.AttrStart:    new(string),
		shortcode.AttrDays:     new(string),
		shortcode.AttrStyle:    new(string),
		shortcode.AttrCalendar: new(string),
		shortcode.AttrMultiday: new(string),
	}

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a calendar to stdout",
		Example: `  eventcal render --start monday --days 7 --style markdown
  eventcal render --calendar kultur --style test`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			set := map[string]string{}
			for name, v := range attrs {
				if cmd.Flags().Changed(name) {
					set[name] = *v
				}
			}
			x := shortcode.NewExpander(a.Calendar, nil, shortcode.Defaults{
				Days:     a.Config.Site.DefaultDays,
				Style:    calendar.Style(a.Config.Site.DefaultStyle),
				Calendar: a.Config.Site.DefaultCalendar,
			})
			p, err := x.Params(set)
			if err != nil {
				return err
			}
			p.IncludeHidden = hidden

			out, err := a.Calendar.Render(cmd.Context(), p)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(attrs[shortcode.AttrStart], shortcode.AttrStart, "", "First day: YYYY-MM-DD, today or monday")
	f.StringVar(attrs[shortcode.AttrDays], shortcode.AttrDays, "", "Number of days")
	f.StringVar(attrs[shortcode.AttrStyle], shortcode.AttrStyle, "", "Output style: table, markdown or test")
	f.StringVar(attrs[shortcode.AttrCalendar], shortcode.AttrCalendar, "", "Calendar name; empty renders all calendars")
	f.StringVar(attrs[shortcode.AttrMultiday], shortcode.AttrMultiday, "", "Repeat multi-day events on every day (true/false)")
	f.BoolVar(&hidden, "hidden", false, "Include non-public events")
	return cmd
}

func newDigestCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Post or update the weekly Telegram digest once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if dryRun {
				tg := a.Config.Telegram
				d := telegram.NewDigest(nil, nil, a.Calendar, nil, telegram.DigestConfig{
					Calendar: tg.Calendar,
					Header:   tg.Header,
					Footer:   tg.Footer,
				})
				text, err := d.Text(cmd.Context(), telegram.DigestWeek(datetime.Today(datetime.SystemClock{})))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
				return err
			}

			action, err := a.RunDigest(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), action)
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the digest text instead of sending it")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <facebook-event-url>",
		Short: "Scrape a Facebook event page and print its fields as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			imported, err := a.Importer.Import(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(imported)
		},
	}
}

func newSyncICSCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-ics",
		Short: "Import all configured ICS subscriptions once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.SyncICS(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "sources=%d events=%d created=%d updated=%d cached=%d failed=%d\n",
				stats.Sources, stats.Events, stats.Created, stats.Updated, stats.FromCache, stats.Failed)
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "eventcal", version)
		},
	}
}
