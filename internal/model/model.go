package model

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"eventcal/internal/datetime"
)

// Event is a stored community event. Dates and times are kept in the form
// they are posted and persisted (YYYY-MM-DD, HH:MM); an empty StartTime
// means all-day, an empty EndDate means a single-day event.
type Event struct {
	ID          int64     `db:"id" json:"id"`
	StartDate   string    `db:"start_date" json:"start_date"`
	StartTime   string    `db:"start_time" json:"start_time"`
	EndDate     string    `db:"end_date" json:"end_date"`
	EndTime     string    `db:"end_time" json:"end_time"`
	Title       string    `db:"title" json:"title"`
	Organizer   string    `db:"organizer" json:"organizer"`
	Location    string    `db:"location" json:"location"`
	Description string    `db:"description" json:"description"`
	URL         string    `db:"url" json:"url"`
	Public      bool      `db:"public" json:"public"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	Calendar    string    `db:"calendar" json:"calendar"`
	CreatedBy   string    `db:"created_by" json:"created_by"`
	ExternalID  string    `db:"external_id" json:"-"`

	Categories []EventCategory `db:"-" json:"categories,omitempty"`
}

// Category is a display category with a color-style pair for badges.
type Category struct {
	ID              int64  `db:"id" json:"id"`
	Name            string `db:"name" json:"name"`
	TextColor       string `db:"text_color" json:"text_color"`
	BackgroundColor string `db:"background_color" json:"background_color"`
}

// EventCategory links an event to a category. Primary marks the category
// used for the event's badge.
type EventCategory struct {
	EventID    int64    `db:"event_id" json:"event_id"`
	CategoryID int64    `db:"category_id" json:"category_id"`
	Primary    bool     `db:"is_primary" json:"primary"`
	Category   Category `db:"-" json:"category"`
}

// StartDateTime combines start date and time.
func (e *Event) StartDateTime() (datetime.DateTime, error) {
	return datetime.ParseWithTime(e.StartDate, e.StartTime)
}

// EndDateTime falls back to the start date when no end date is set.
func (e *Event) EndDateTime() (datetime.DateTime, error) {
	date := e.EndDate
	if date == "" {
		date = e.StartDate
	}
	return datetime.ParseWithTime(date, e.EndTime)
}

// NumberOfDays is the number of calendar days the event covers. Spans that
// end before they start count as one day.
func (e *Event) NumberOfDays() (int, error) {
	start, err := datetime.Parse(e.StartDate)
	if err != nil {
		return 0, err
	}
	if e.EndDate == "" {
		return 1, nil
	}
	end, err := datetime.Parse(e.EndDate)
	if err != nil {
		return 0, err
	}
	n := start.DaysUntil(end) + 1
	if n < 1 {
		n = 1
	}
	return n, nil
}

// AllDay reports whether the event has no start time.
func (e *Event) AllDay() bool {
	return strings.TrimSpace(e.StartTime) == ""
}

// PrimaryCategory returns the primary category, else the first one.
func (e *Event) PrimaryCategory() (Category, bool) {
	for _, ec := range e.Categories {
		if ec.Primary {
			return ec.Category, true
		}
	}
	if len(e.Categories) > 0 {
		return e.Categories[0].Category, true
	}
	return Category{}, false
}

// CategoryIDs lists the linked category ids, primary first.
func (e *Event) CategoryIDs() []int64 {
	ids := make([]int64, 0, len(e.Categories))
	for _, ec := range e.Categories {
		if ec.Primary {
			ids = append([]int64{ec.CategoryID}, ids...)
			continue
		}
		ids = append(ids, ec.CategoryID)
	}
	return ids
}

// Form field names shared by FullData and EventFromForm.
const (
	FieldStartDate   = "start_date"
	FieldStartTime   = "start_time"
	FieldEndDate     = "end_date"
	FieldEndTime     = "end_time"
	FieldTitle       = "title"
	FieldOrganizer   = "organizer"
	FieldLocation    = "location"
	FieldDescription = "description"
	FieldURL         = "url"
	FieldPublic      = "public"
	FieldCalendar    = "calendar"
	FieldCategories  = "categories"
)

// FullData returns the posted field set describing this event.
func (e *Event) FullData() url.Values {
	v := url.Values{}
	v.Set(FieldStartDate, e.StartDate)
	v.Set(FieldStartTime, e.StartTime)
	v.Set(FieldEndDate, e.EndDate)
	v.Set(FieldEndTime, e.EndTime)
	v.Set(FieldTitle, e.Title)
	v.Set(FieldOrganizer, e.Organizer)
	v.Set(FieldLocation, e.Location)
	v.Set(FieldDescription, e.Description)
	v.Set(FieldURL, e.URL)
	v.Set(FieldPublic, strconv.FormatBool(e.Public))
	v.Set(FieldCalendar, e.Calendar)
	for _, id := range e.CategoryIDs() {
		v.Add(FieldCategories, strconv.FormatInt(id, 10))
	}
	return v
}
