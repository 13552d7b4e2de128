package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"eventcal/internal/datetime"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

const defaultMaxOccurrencesPerEvent = 1000

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// Location is the zone occurrences are converted to. nil means time.Local.
	Location *time.Location

	// RangeStart / RangeEnd define the inclusive window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps one RRULE. Zero uses the default.
	MaxOccurrencesPerEvent int
}

// Occurrence is one concrete instance of a VEVENT.
type Occurrence struct {
	Event ParsedEvent
	Start time.Time
	End   time.Time
	// InstanceKey identifies the instance within its UID.
	InstanceKey string
}

// Expand turns parsed events into occurrences within the configured range,
// applying RRULE, EXDATE and RECURRENCE-ID overrides. Cancelled instances are
// dropped. The result is ordered by start.
func Expand(events []ParsedEvent, cfg ExpandConfig) ([]Occurrence, error) {
	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return nil, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	bases := make(map[string][]ParsedEvent)
	overrides := make(map[string][]ParsedEvent)
	var order []string
	for _, ev := range events {
		if ev.IsOverride() {
			overrides[ev.UID] = append(overrides[ev.UID], ev)
			continue
		}
		if _, seen := bases[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		bases[ev.UID] = append(bases[ev.UID], ev)
	}

	var out []Occurrence
	for _, uid := range order {
		for _, ev := range bases[uid] {
			var occ []Occurrence
			if ev.RawRRule == "" {
				occ = expandSingle(ev, overrides[uid], cfg)
			} else {
				occ = expandRecurring(ev, overrides[uid], cfg)
			}
			out = append(out, occ...)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []Occurrence {
	if ev.Cancelled || !overlaps(ev.Start, ev.End, cfg.RangeStart, cfg.RangeEnd) {
		return nil
	}
	occ, ok := instance(ev, overrides, ev.Start, ev.End, cfg.Location)
	if !ok {
		return nil
	}
	return []Occurrence{occ}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []Occurrence {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Warn("skipping unparsable RRULE", "uid", ev.UID, "rrule", ev.RawRRule, "error", err.Error())
		return nil
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	loc := ev.Start.Location()
	dur := ev.End.Sub(ev.Start)
	// widen the window by the duration so spans that started earlier but
	// still run into the range are kept
	starts := set.Between(cfg.RangeStart.Add(-dur).In(loc), cfg.RangeEnd.In(loc), true)
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		appLog.Warn("truncating recurrence", "uid", ev.UID, "cap", cfg.MaxOccurrencesPerEvent)
		starts = starts[:cfg.MaxOccurrencesPerEvent]
	}

	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		if occ, ok := instance(ev, overrides, s, s.Add(dur), cfg.Location); ok {
			out = append(out, occ)
		}
	}
	return out
}

// instance applies a matching RECURRENCE-ID override to one base instance.
func instance(base ParsedEvent, overrides []ParsedEvent, start, end time.Time, loc *time.Location) (Occurrence, bool) {
	key := instanceKey(start, base.AllDay, loc)
	ev := base
	for _, ov := range overrides {
		if ov.Recurrence.Equal(start) {
			ev, start, end = ov, ov.Start, ov.End
			break
		}
	}
	if ev.Cancelled {
		return Occurrence{}, false
	}
	if ev.AllDay {
		// dates are kept as written, not shifted into the display zone
		return Occurrence{Event: ev, Start: start, End: end, InstanceKey: key}, true
	}
	return Occurrence{Event: ev, Start: start.In(loc), End: end.In(loc), InstanceKey: key}, true
}

func instanceKey(start time.Time, allDay bool, loc *time.Location) string {
	if allDay {
		return start.Format("20060102")
	}
	return start.In(loc).Format("20060102T1504")
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}

// ExternalID is the stable key of an imported instance:
// <source>:<uid>:<instance>.
func (o Occurrence) ExternalID() string {
	return o.Event.Source.ID + ":" + o.Event.UID + ":" + o.InstanceKey
}

// ToEvent converts the occurrence into an event for its source's calendar.
// All-day ends are exclusive in ICS and become the last covered day.
func (o Occurrence) ToEvent() *model.Event {
	ev := o.Event
	e := &model.Event{
		Title:       ev.Summary,
		Organizer:   ev.Organizer,
		Location:    ev.Location,
		Description: ev.Description,
		URL:         ev.URL,
		Public:      ev.Source.Public,
		Calendar:    ev.Source.Calendar,
		CreatedBy:   "ics:" + ev.Source.ID,
		ExternalID:  o.ExternalID(),
	}
	if e.Title == "" {
		e.Title = "(ohne Titel)"
	}

	if ev.AllDay {
		e.StartDate = o.Start.Format(datetime.LayoutISODate)
		if last := o.End.AddDate(0, 0, -1).Format(datetime.LayoutISODate); last > e.StartDate {
			e.EndDate = last
		}
		return e
	}

	start := datetime.New(o.Start)
	end := datetime.New(o.End)
	e.StartDate = start.ISODate()
	e.StartTime = start.Clock()
	if end.IsAfter(start) {
		if !end.SameDay(start) {
			e.EndDate = end.ISODate()
		}
		e.EndTime = end.Clock()
	}
	return e
}
