package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "eventcal/internal/log"
)

// ParsedEvent is a VEVENT before recurrence expansion.
type ParsedEvent struct {
	Source Source

	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	URL         string
	Organizer   string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID of an overridden instance
	Cancelled  bool
}

// IsOverride reports whether the VEVENT replaces one recurring instance.
func (p ParsedEvent) IsOverride() bool { return p.Recurrence != nil }

// Parse reads every VEVENT of an ICS payload. Floating times and dates are
// read in loc. Broken VEVENTs are logged and skipped.
func Parse(src Source, body []byte, loc *time.Location) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse ics %s: %w", src.ID, err)
	}

	events := make([]ParsedEvent, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(src, ve, loc)
		if err != nil {
			appLog.Warn("skipping vevent", "id", src.ID, "error", err.Error())
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parsed", "id", src.ID, "events", len(events))
	return events, nil
}

func propValue(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return strings.TrimSpace(prop.Value)
	}
	return ""
}

func parseVEvent(src Source, ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	out := ParsedEvent{Source: src}

	out.UID = propValue(ve, ical.ComponentPropertyUniqueId)
	if out.UID == "" {
		return out, errors.New("missing UID")
	}
	if n, err := strconv.Atoi(propValue(ve, ical.ComponentPropertySequence)); err == nil {
		out.Seq = n
	}

	out.Summary = propValue(ve, ical.ComponentPropertySummary)
	out.Description = propValue(ve, ical.ComponentPropertyDescription)
	out.Location = propValue(ve, ical.ComponentPropertyLocation)
	out.URL = propValue(ve, ical.ComponentPropertyUrl)
	out.Organizer = organizerName(ve.GetProperty(ical.ComponentPropertyOrganizer))
	out.Cancelled = strings.EqualFold(propValue(ve, ical.ComponentPropertyStatus), "CANCELLED")

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := propTime(dtStart, loc)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.Start, out.AllDay = start, allDay

	switch dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); {
	case dtEnd != nil:
		end, _, err := propTime(dtEnd, loc)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.End = end
	case allDay:
		out.End = start.AddDate(0, 0, 1)
	default:
		out.End = start
	}

	out.RawRRule = propValue(ve, ical.ComponentPropertyRrule)

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		tz := locationParam(p, loc)
		for _, part := range strings.Split(p.Value, ",") {
			if t, _, err := parseICSTime(strings.TrimSpace(part), tz); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty(ical.ComponentPropertyRecurrenceId); rid != nil {
		if t, _, err := propTime(rid, loc); err == nil {
			out.Recurrence = &t
		}
	}

	return out, nil
}

// propTime reads a DATE or DATE-TIME property, honoring TZID.
func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, bool, error) {
	t, dateOnly, err := parseICSTime(p.Value, locationParam(p, loc))
	if err != nil {
		return t, false, err
	}
	if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		dateOnly = true
	}
	return t, dateOnly, nil
}

func locationParam(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	if tzs := p.ICalParameters["TZID"]; len(tzs) > 0 {
		if l, err := time.LoadLocation(strings.Trim(tzs[0], `"`)); err == nil {
			return l
		}
	}
	return fallback
}

// parseICSTime parses 20250101T090000Z, 20250101T090000 (in loc) and
// 20250101 (in loc, date only).
func parseICSTime(v string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, false, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	case strings.Contains(v, "T"):
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	}
}

// organizerName prefers the CN parameter over the mailto: address.
func organizerName(p *ical.IANAProperty) string {
	if p == nil {
		return ""
	}
	if cn := p.ICalParameters["CN"]; len(cn) > 0 && cn[0] != "" {
		return strings.Trim(cn[0], `"`)
	}
	return strings.TrimPrefix(strings.TrimPrefix(p.Value, "mailto:"), "MAILTO:")
}
