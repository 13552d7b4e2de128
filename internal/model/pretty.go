package model

import (
	"fmt"

	"eventcal/internal/datetime"
)

// PrettyEvent is a precomputed display view of an Event. Strings are not
// escaped; each renderer escapes for its own output format.
type PrettyEvent struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	DateText    string `json:"date"`
	TimeText    string `json:"time"`
	DaysText    string `json:"days,omitempty"`
	Organizer   string `json:"organizer"`
	Location    string `json:"location"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Public      bool   `json:"public"`
	Calendar    string `json:"calendar"`

	CategoryName    string   `json:"category,omitempty"`
	TextColor       string   `json:"text_color,omitempty"`
	BackgroundColor string   `json:"background_color,omitempty"`
	Categories      []string `json:"categories,omitempty"`
}

// Pretty builds the display view. It fails only on malformed stored dates.
func Pretty(e *Event) (PrettyEvent, error) {
	start, err := e.StartDateTime()
	if err != nil {
		return PrettyEvent{}, err
	}
	end, err := e.EndDateTime()
	if err != nil {
		return PrettyEvent{}, err
	}
	days, err := e.NumberOfDays()
	if err != nil {
		return PrettyEvent{}, err
	}

	p := PrettyEvent{
		ID:          e.ID,
		Title:       e.Title,
		Organizer:   e.Organizer,
		Location:    e.Location,
		Description: e.Description,
		URL:         e.URL,
		Public:      e.Public,
		Calendar:    e.Calendar,
	}

	p.DateText = start.WeekdayShort() + " " + start.GermanDate()
	if days > 1 {
		p.DateText += " – " + end.WeekdayShort() + " " + end.GermanDate()
		p.DaysText = fmt.Sprintf("%d Tage", days)
	}
	p.TimeText = timeText(e, start, end)

	if c, ok := e.PrimaryCategory(); ok {
		p.CategoryName = c.Name
		p.TextColor = c.TextColor
		p.BackgroundColor = c.BackgroundColor
	}
	for _, ec := range e.Categories {
		p.Categories = append(p.Categories, ec.Category.Name)
	}

	return p, nil
}

func timeText(e *Event, start, end datetime.DateTime) string {
	if e.AllDay() {
		return "ganztägig"
	}
	if e.EndTime == "" {
		return start.Clock() + " Uhr"
	}
	return start.Clock() + " – " + end.Clock() + " Uhr"
}
