package ics

import (
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"eventcal/internal/datetime"
	"eventcal/internal/model"
)

const productID = "-//eventcal//Veranstaltungskalender//DE"

// Export renders events as a VCALENDAR. host qualifies the event UIDs.
func Export(events []*model.Event, name, host string) (string, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetName(name)
		cal.SetXWRCalName(name)
	}
	cal.SetXWRTimezone(datetime.Location.String())

	for _, e := range events {
		if err := addEvent(cal, e, host); err != nil {
			return "", fmt.Errorf("export event %d: %w", e.ID, err)
		}
	}
	return cal.Serialize(), nil
}

func addEvent(cal *ical.Calendar, e *model.Event, host string) error {
	uid := e.ExternalID
	if uid == "" {
		uid = fmt.Sprintf("event-%d@%s", e.ID, host)
	}
	ve := cal.AddEvent(uid)

	stamp := e.CreatedAt
	if stamp.IsZero() {
		stamp = time.Now()
	}
	ve.SetDtStampTime(stamp)
	ve.SetCreatedTime(stamp)
	ve.SetSummary(e.Title)
	if e.Location != "" {
		ve.SetLocation(e.Location)
	}
	if e.Description != "" {
		ve.SetDescription(e.Description)
	}
	if e.URL != "" {
		ve.SetURL(e.URL)
	}
	if e.Organizer != "" {
		ve.SetOrganizer("mailto:noreply@"+host, ical.WithCN(e.Organizer))
	}
	if len(e.Categories) > 0 {
		names := make([]string, 0, len(e.Categories))
		for _, ec := range e.Categories {
			names = append(names, ec.Category.Name)
		}
		ve.AddCategory(strings.Join(names, ","))
	}

	if e.AllDay() {
		start, err := datetime.Parse(e.StartDate)
		if err != nil {
			return err
		}
		days, err := e.NumberOfDays()
		if err != nil {
			return err
		}
		ve.SetAllDayStartAt(start.Time())
		ve.SetAllDayEndAt(start.AddDays(days).Time())
		return nil
	}

	start, err := e.StartDateTime()
	if err != nil {
		return err
	}
	end := start
	if e.EndTime != "" || e.EndDate != "" {
		if end, err = e.EndDateTime(); err != nil {
			return err
		}
	}
	if !end.IsAfter(start) {
		end = start
	}
	ve.SetStartAt(start.Time())
	ve.SetEndAt(end.Time())
	return nil
}
