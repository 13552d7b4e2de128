package main

import (
	"os"

	"github.com/spf13/cobra"

	"eventcal/internal/app"
	"eventcal/internal/config"
	appLog "eventcal/internal/log"
)

const defaultConfigPath = "/etc/eventcal/config.yaml"

type rootOptions struct {
	configPath string
	envPath    string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "eventcal",
		Short: "Community events calendar",
		Long: `eventcal stores community events, renders them as HTML tables or
Markdown digests, posts a weekly digest to Telegram and imports events
from ICS feeds and Facebook event pages.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "Path to config file")
	cmd.PersistentFlags().StringVar(&opts.envPath, "env", ".env", "Path to .env file with secrets")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		newServeCmd(opts),
		newRenderCmd(opts),
		newDigestCmd(opts),
		newImportCmd(opts),
		newSyncICSCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

// loadConfig reads .env and the YAML config and applies the log settings.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(o.envPath); err != nil {
		return nil, err
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", o.configPath)
		return nil, err
	}

	level := appLog.ParseLevel(cfg.Log.Level)
	if o.debug {
		level = appLog.LevelDebug
	}
	appLog.Configure(os.Stderr, cfg.Log.Format, level)
	return cfg, nil
}

// openApp loads the config and wires the application. The caller closes it.
func (o *rootOptions) openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg)
}
