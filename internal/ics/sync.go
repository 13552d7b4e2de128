package ics

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// Upserter stores imported events keyed by their external id.
type Upserter interface {
	UpsertImported(ctx context.Context, e *model.Event) (created bool, err error)
}

type SyncStats struct {
	Sources   int
	FromCache int
	Events    int
	Created   int
	Updated   int
	Failed    int
}

// Syncer imports subscribed feeds into the event table.
type Syncer struct {
	fetcher *Fetcher
	events  Upserter
	loc     *time.Location
	past    time.Duration
	horizon time.Duration
	now     func() time.Time
}

func NewSyncer(fetcher *Fetcher, events Upserter, loc *time.Location, horizonDays int) *Syncer {
	if loc == nil {
		loc = time.Local
	}
	if horizonDays <= 0 {
		horizonDays = 365
	}
	return &Syncer{
		fetcher: fetcher,
		events:  events,
		loc:     loc,
		past:    24 * time.Hour,
		horizon: time.Duration(horizonDays) * 24 * time.Hour,
		now:     time.Now,
	}
}

// Sync fetches every source and upserts the occurrences within the horizon.
// A failing source is logged and counted; the others still run. The joined
// source errors are returned.
func (s *Syncer) Sync(ctx context.Context, sources []Source) (SyncStats, error) {
	var stats SyncStats
	var errs []error

	now := s.now().In(s.loc)
	cfg := ExpandConfig{
		Location:   s.loc,
		RangeStart: now.Add(-s.past),
		RangeEnd:   now.Add(s.horizon),
	}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Sources++
		if err := s.syncOne(ctx, src, cfg, &stats); err != nil {
			stats.Failed++
			appLog.Error("ics sync failed", err, "id", src.ID, "url", redactURL(src.URL))
			errs = append(errs, fmt.Errorf("%s: %w", src.ID, err))
		}
	}

	appLog.Info("ics sync done",
		"sources", stats.Sources,
		"events", stats.Events,
		"created", stats.Created,
		"updated", stats.Updated,
		"failed", stats.Failed,
	)
	return stats, errors.Join(errs...)
}

func (s *Syncer) syncOne(ctx context.Context, src Source, cfg ExpandConfig, stats *SyncStats) error {
	res, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		return err
	}
	if res.FromCache {
		stats.FromCache++
	}

	parsed, err := Parse(src, res.Body, s.loc)
	if err != nil {
		return err
	}
	occurrences, err := Expand(parsed, cfg)
	if err != nil {
		return err
	}

	for _, occ := range occurrences {
		created, err := s.events.UpsertImported(ctx, occ.ToEvent())
		if err != nil {
			return fmt.Errorf("store %s: %w", occ.ExternalID(), err)
		}
		stats.Events++
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
	}
	return nil
}
