// Package app wires the components from a loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"eventcal/internal/auth"
	"eventcal/internal/calendar"
	"eventcal/internal/config"
	"eventcal/internal/datetime"
	"eventcal/internal/ics"
	appLog "eventcal/internal/log"
	"eventcal/internal/nonce"
	"eventcal/internal/scheduler"
	"eventcal/internal/scrape"
	"eventcal/internal/store"
	"eventcal/internal/telegram"
	"eventcal/internal/throttle"
	"eventcal/internal/web"
)

// Job names as they appear in the logs.
const (
	JobDigest  = "telegram-digest"
	JobICSSync = "ics-sync"
)

// ErrTelegramDisabled is returned by RunDigest when telegram.enabled is off.
var ErrTelegramDisabled = errors.New("telegram digest is disabled")

type App struct {
	Config   *config.Config
	Store    *store.Store
	Calendar *calendar.Service
	Importer *scrape.Importer
	Syncer   *ics.Syncer
	// Digest is nil unless telegram.enabled is set.
	Digest *telegram.Digest

	clock datetime.Clock
}

// New opens the database and builds every component. The display location
// is taken from cfg.Timezone.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	datetime.Location = cfg.Location()

	st, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	clock := datetime.SystemClock{}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	cal := calendar.NewService(st, clock, cfg.Site.DefaultDays)

	a := &App{
		Config:   cfg,
		Store:    st,
		Calendar: cal,
		Importer: scrape.NewImporter(cfg.Scraper, httpClient),
		Syncer:   ics.NewSyncer(ics.NewFetcher(cfg.CacheDir, httpClient), st, cfg.Location(), 0),
		clock:    clock,
	}

	if cfg.Telegram.Enabled {
		bot := telegram.NewClient(cfg.Telegram.APIURL, cfg.Telegram.Token, httpClient)
		a.Digest = telegram.NewDigest(bot, st, cal, clock, telegram.DigestConfig{
			ChatID:   cfg.Telegram.ChatID,
			Calendar: cfg.Telegram.Calendar,
			Header:   cfg.Telegram.Header,
			Footer:   cfg.Telegram.Footer,
		})
	}
	return a, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// Server builds the HTTP server.
func (a *App) Server() *web.Server {
	return web.NewServer(web.Deps{
		Config:   a.Config,
		Store:    a.Store,
		Calendar: a.Calendar,
		Importer: a.Importer,
		Throttle: throttle.New(a.Store, a.Config.Throttle),
		Nonces:   nonce.NewStore(a.Config.NonceTTL),
		Auth:     auth.NewAuthenticator(a.Config.Users),
		Clock:    a.clock,
	})
}

// Scheduler registers the digest and ICS jobs that are configured.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(a.Config.Location())
	if a.Digest != nil {
		err := s.Add(JobDigest, a.Config.Telegram.Cron, func(ctx context.Context) error {
			_, err := a.RunDigest(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	if len(a.Config.ICS) > 0 {
		err := s.Add(JobICSSync, a.Config.ICSRefresh, func(ctx context.Context) error {
			_, err := a.SyncICS(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}

// RunDigest posts or updates this week's Telegram digest.
func (a *App) RunDigest(ctx context.Context) (telegram.Action, error) {
	if a.Digest == nil {
		return "", ErrTelegramDisabled
	}
	action, err := a.Digest.Run(ctx)
	if err != nil {
		return action, fmt.Errorf("telegram digest: %w", err)
	}
	return action, nil
}

// SyncICS imports all configured ICS subscriptions.
func (a *App) SyncICS(ctx context.Context) (ics.SyncStats, error) {
	sources := ics.SourcesFromConfig(a.Config.ICS)
	if len(sources) == 0 {
		appLog.Info("no ICS sources configured")
		return ics.SyncStats{}, nil
	}
	return a.Syncer.Sync(ctx, sources)
}
