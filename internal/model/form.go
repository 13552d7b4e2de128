package model

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"eventcal/internal/datetime"
)

// FieldError is a validation failure on a single posted field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const (
	fieldName            = "name"
	fieldTextColor       = "text_color"
	fieldBackgroundColor = "background_color"
)

var validate = newValidator()

// newValidator reports fields by their form names and knows the "clock" tag,
// which accepts whatever datetime.ParseClock accepts.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("form")
	})
	if err := v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := datetime.ParseClock(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}
	return v
}

type eventForm struct {
	Title      string   `form:"title" validate:"required"`
	StartDate  string   `form:"start_date" validate:"required,datetime=2006-01-02"`
	StartTime  string   `form:"start_time" validate:"omitempty,clock"`
	EndDate    string   `form:"end_date" validate:"omitempty,datetime=2006-01-02"`
	EndTime    string   `form:"end_time" validate:"omitempty,clock"`
	URL        string   `form:"url" validate:"omitempty,http_url"`
	Public     string   `form:"public" validate:"omitempty,boolean"`
	Categories []string `form:"categories" validate:"dive,omitempty,number"`
}

type categoryForm struct {
	Name            string `form:"name" validate:"required"`
	TextColor       string `form:"text_color" validate:"omitempty,hexcolor"`
	BackgroundColor string `form:"background_color" validate:"omitempty,hexcolor"`
}

const (
	msgStart    = "Ungültiges Startdatum oder ungültige Startzeit."
	msgEnd      = "Ungültiges Enddatum oder ungültige Endzeit."
	msgCategory = "Ungültige Kategorie."
	msgColor    = "Ungültige Farbe."
)

// formMessages maps a posted field to the field the error is reported on and
// its message. Times are reported on their date field.
var formMessages = map[string]FieldError{
	FieldTitle:           {FieldTitle, "Bitte einen Titel angeben."},
	FieldStartDate:       {FieldStartDate, msgStart},
	FieldStartTime:       {FieldStartDate, msgStart},
	FieldEndDate:         {FieldEndDate, msgEnd},
	FieldEndTime:         {FieldEndDate, msgEnd},
	FieldURL:             {FieldURL, "Ungültige URL."},
	FieldPublic:          {FieldPublic, "Ungültiger Wert."},
	FieldCategories:      {FieldCategories, msgCategory},
	fieldName:            {fieldName, "Bitte einen Namen angeben."},
	fieldTextColor:       {fieldTextColor, msgColor},
	fieldBackgroundColor: {fieldBackgroundColor, msgColor},
}

// fieldError turns the first validation failure into a FieldError.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	name, _, _ := strings.Cut(fe.Field(), "[")
	if name == FieldStartDate && fe.Tag() == "required" {
		return &FieldError{Field: FieldStartDate, Message: "Bitte ein Startdatum angeben."}
	}
	if m, ok := formMessages[name]; ok {
		return &FieldError{Field: m.Field, Message: m.Message}
	}
	return &FieldError{Field: name, Message: "Ungültiger Wert."}
}

// EventFromForm builds an event from a posted field set. Times are stored as
// HH:MM. End before start is accepted as posted.
func EventFromForm(v url.Values) (*Event, error) {
	get := func(k string) string { return strings.TrimSpace(v.Get(k)) }

	form := eventForm{
		Title:     get(FieldTitle),
		StartDate: get(FieldStartDate),
		StartTime: get(FieldStartTime),
		EndDate:   get(FieldEndDate),
		EndTime:   get(FieldEndTime),
		URL:       get(FieldURL),
		Public:    get(FieldPublic),
	}
	for _, raw := range v[FieldCategories] {
		form.Categories = append(form.Categories, strings.TrimSpace(raw))
	}
	if err := validate.Struct(form); err != nil {
		return nil, fieldError(err)
	}

	e := &Event{
		StartDate:   form.StartDate,
		EndDate:     form.EndDate,
		Title:       form.Title,
		Organizer:   get(FieldOrganizer),
		Location:    get(FieldLocation),
		Description: strings.TrimSpace(v.Get(FieldDescription)),
		URL:         form.URL,
		Calendar:    get(FieldCalendar),
	}

	var err error
	if e.StartTime, err = normalizeClock(form.StartTime); err != nil {
		return nil, &FieldError{Field: FieldStartDate, Message: msgStart}
	}
	if e.EndTime, err = normalizeClock(form.EndTime); err != nil {
		return nil, &FieldError{Field: FieldEndDate, Message: msgEnd}
	}

	if form.Public != "" {
		e.Public, _ = strconv.ParseBool(form.Public)
	}

	primary := true
	for _, raw := range form.Categories {
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, &FieldError{Field: FieldCategories, Message: msgCategory}
		}
		e.Categories = append(e.Categories, EventCategory{CategoryID: id, Primary: primary})
		primary = false
	}

	return e, nil
}

// normalizeClock rewrites a posted time as HH:MM so that stored times order
// correctly as strings. Seconds are dropped; empty stays empty.
func normalizeClock(clock string) (string, error) {
	if clock == "" {
		return "", nil
	}
	c, err := datetime.ParseClock(clock)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%02d:%02d", int(c.Hours()), int(c.Minutes())%60), nil
}

// CategoryFromForm builds a category from a posted field set.
func CategoryFromForm(v url.Values) (*Category, error) {
	form := categoryForm{
		Name:            strings.TrimSpace(v.Get(fieldName)),
		TextColor:       strings.TrimSpace(v.Get(fieldTextColor)),
		BackgroundColor: strings.TrimSpace(v.Get(fieldBackgroundColor)),
	}
	if err := validate.Struct(form); err != nil {
		return nil, fieldError(err)
	}
	return &Category{
		Name:            form.Name,
		TextColor:       form.TextColor,
		BackgroundColor: form.BackgroundColor,
	}, nil
}
