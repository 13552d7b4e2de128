package calendar

import (
	"context"
	"fmt"

	"eventcal/internal/datetime"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// EventSource loads the events whose span intersects [from, to], ordered by
// start date and time, with their categories attached.
type EventSource interface {
	EventsBetween(ctx context.Context, calendar string, from, to datetime.DateTime, publicOnly bool) ([]*model.Event, error)
}

// Params describe one calendar rendering.
type Params struct {
	// Start defaults to today. ExplicitStart turns it into a boundary for
	// the builders (boundary row, digest placeholders).
	Start         datetime.DateTime
	ExplicitStart bool
	Days          int
	Style         Style
	Calendar      string

	// IncludeHidden also renders non-public events.
	IncludeHidden bool
	// SingleDay renders multi-day events once, on their start day.
	SingleDay bool

	Header string
	Footer string
}

// Service renders calendars from stored events.
type Service struct {
	events      EventSource
	clock       datetime.Clock
	defaultDays int
}

func NewService(events EventSource, clock datetime.Clock, defaultDays int) *Service {
	if clock == nil {
		clock = datetime.SystemClock{}
	}
	if defaultDays <= 0 {
		defaultDays = 30
	}
	return &Service{events: events, clock: clock, defaultDays: defaultDays}
}

// Render loads the requested window and runs it through the style's builder.
func (s *Service) Render(ctx context.Context, p Params) (string, error) {
	if p.Style == "" {
		p.Style = StyleTable
	}
	start := p.Start
	if start.IsZero() {
		start = datetime.Today(s.clock)
	}
	start = start.Midnight()
	days := p.Days
	if days <= 0 {
		days = s.defaultDays
	}
	end := start.AddDays(days - 1)

	opts := Options{End: end, From: start, Header: p.Header, Footer: p.Footer}
	if p.ExplicitStart {
		opts.Start = start
	}
	builder, err := NewBuilder(p.Style, opts)
	if err != nil {
		return "", err
	}

	events, err := s.events.EventsBetween(ctx, p.Calendar, start, end, !p.IncludeHidden)
	if err != nil {
		return "", fmt.Errorf("load events: %w", err)
	}

	appLog.Debug("calendar render",
		"style", p.Style,
		"calendar", p.Calendar,
		"start", start.ISODate(),
		"end", end.ISODate(),
		"events", len(events),
	)

	out, err := builder.Build(NewIterator(events, !p.SingleDay))
	if err != nil {
		return "", fmt.Errorf("render calendar: %w", err)
	}
	return out, nil
}

// Week renders the Markdown digest for the seven days from weekStart.
func (s *Service) Week(ctx context.Context, weekStart datetime.DateTime, calendar, header, footer string) (string, error) {
	return s.Render(ctx, Params{
		Start:         weekStart,
		ExplicitStart: true,
		Days:          7,
		Style:         StyleMarkdown,
		Calendar:      calendar,
		Header:        header,
		Footer:        footer,
	})
}
