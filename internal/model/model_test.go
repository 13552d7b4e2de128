package model_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcal/internal/model"
)

func TestNumberOfDays(t *testing.T) {
	tests := []struct {
		name       string
		start, end string
		want       int
	}{
		{"single day without end", "2020-01-01", "", 1},
		{"same day", "2020-01-01", "2020-01-01", 1},
		{"five days", "2020-01-02", "2020-01-06", 5},
		{"across month", "2020-01-30", "2020-02-02", 4},
		{"end before start clamps", "2020-01-05", "2020-01-01", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &model.Event{StartDate: tt.start, EndDate: tt.end}
			n, err := e.NumberOfDays()
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}

	_, err := (&model.Event{StartDate: "kaputt"}).NumberOfDays()
	assert.Error(t, err)
}

func TestEventFromForm_Validation(t *testing.T) {
	base := func() url.Values {
		return url.Values{
			model.FieldTitle:     {"Repair Café"},
			model.FieldStartDate: {"2020-01-01"},
		}
	}

	_, err := model.EventFromForm(base())
	require.NoError(t, err)

	cases := map[string]func(url.Values){
		model.FieldTitle:      func(v url.Values) { v.Del(model.FieldTitle) },
		model.FieldStartDate:  func(v url.Values) { v.Set(model.FieldStartDate, "01.01.2020") },
		model.FieldEndDate:    func(v url.Values) { v.Set(model.FieldEndTime, "99:00") },
		model.FieldURL:        func(v url.Values) { v.Set(model.FieldURL, "javascript:alert(1)") },
		model.FieldPublic:     func(v url.Values) { v.Set(model.FieldPublic, "vielleicht") },
		model.FieldCategories: func(v url.Values) { v.Add(model.FieldCategories, "x") },
	}
	for field, mutate := range cases {
		t.Run(field, func(t *testing.T) {
			v := base()
			mutate(v)
			_, err := model.EventFromForm(v)
			var fe *model.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, field, fe.Field)
			assert.NotEmpty(t, fe.Message)
		})
	}
}

func TestEventFromForm_Messages(t *testing.T) {
	_, err := model.EventFromForm(url.Values{model.FieldTitle: {"Ohne Datum"}})
	var fe *model.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, model.FieldStartDate, fe.Field)
	assert.Equal(t, "Bitte ein Startdatum angeben.", fe.Message)

	_, err = model.EventFromForm(url.Values{model.FieldTitle: {"  "}, model.FieldStartDate: {"2020-01-01"}})
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, model.FieldTitle, fe.Field)
	assert.Equal(t, "Bitte einen Titel angeben.", fe.Message)

	_, err = model.EventFromForm(url.Values{
		model.FieldTitle:     {"Spät"},
		model.FieldStartDate: {"2020-01-01"},
		model.FieldStartTime: {"25:00"},
	})
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, model.FieldStartDate, fe.Field)
	assert.Equal(t, "Ungültiges Startdatum oder ungültige Startzeit.", fe.Message)
}

func TestEventFromForm_NormalizesTimes(t *testing.T) {
	tests := []struct{ in, want string }{
		{"9:00", "09:00"},
		{"09:00", "09:00"},
		{"09:05:30", "09:05"},
		{" 18:45 ", "18:45"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			e, err := model.EventFromForm(url.Values{
				model.FieldTitle:     {"Treffen"},
				model.FieldStartDate: {"2020-01-01"},
				model.FieldStartTime: {tt.in},
				model.FieldEndTime:   {tt.in},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.StartTime)
			assert.Equal(t, tt.want, e.EndTime)
		})
	}
}

func TestEventFromForm_CategoriesPrimaryFirstNonEmpty(t *testing.T) {
	e, err := model.EventFromForm(url.Values{
		model.FieldTitle:      {"Treffen"},
		model.FieldStartDate:  {"2020-01-01"},
		model.FieldCategories: {"", " 4 ", "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 2}, e.CategoryIDs())

	_, err = model.EventFromForm(url.Values{
		model.FieldTitle:      {"Treffen"},
		model.FieldStartDate:  {"2020-01-01"},
		model.FieldCategories: {"0"},
	})
	var fe *model.FieldError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, model.FieldCategories, fe.Field)
}

func TestEventFromForm_EndBeforeStartAccepted(t *testing.T) {
	e, err := model.EventFromForm(url.Values{
		model.FieldTitle:     {"Rückwärts"},
		model.FieldStartDate: {"2020-01-05"},
		model.FieldEndDate:   {"2020-01-01"},
	})
	require.NoError(t, err)
	assert.Equal(t, "2020-01-01", e.EndDate)
}

func TestFullData_RoundTrip(t *testing.T) {
	orig := &model.Event{
		StartDate:   "2020-01-02",
		StartTime:   "19:00",
		EndDate:     "2020-01-06",
		EndTime:     "22:30",
		Title:       "Festival",
		Organizer:   "Verein e.V.",
		Location:    "Marktplatz",
		Description: "Fünf Tage Musik",
		URL:         "https://example.org/festival",
		Public:      true,
		Calendar:    "kultur",
		Categories: []model.EventCategory{
			{CategoryID: 7},
			{CategoryID: 3, Primary: true},
		},
	}

	got, err := model.EventFromForm(orig.FullData())
	require.NoError(t, err)

	assert.Equal(t, orig.StartDate, got.StartDate)
	assert.Equal(t, orig.StartTime, got.StartTime)
	assert.Equal(t, orig.EndDate, got.EndDate)
	assert.Equal(t, orig.EndTime, got.EndTime)
	assert.Equal(t, orig.Title, got.Title)
	assert.Equal(t, orig.Organizer, got.Organizer)
	assert.Equal(t, orig.Location, got.Location)
	assert.Equal(t, orig.Description, got.Description)
	assert.Equal(t, orig.URL, got.URL)
	assert.Equal(t, orig.Public, got.Public)
	assert.Equal(t, orig.Calendar, got.Calendar)
	assert.Equal(t, []int64{3, 7}, got.CategoryIDs())
}

func TestCategoryFromForm(t *testing.T) {
	c, err := model.CategoryFromForm(url.Values{"name": {"Musik"}, "text_color": {"#fff"}, "background_color": {"#AA0033"}})
	require.NoError(t, err)
	assert.Equal(t, "Musik", c.Name)

	tests := []struct {
		name      string
		form      url.Values
		wantField string
	}{
		{"named color", url.Values{"name": {"Musik"}, "text_color": {"red"}}, "text_color"},
		{"missing hash", url.Values{"name": {"Musik"}, "background_color": {"aa0033"}}, "background_color"},
		{"no name", url.Values{"text_color": {"#fff"}}, "name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := model.CategoryFromForm(tt.form)
			var fe *model.FieldError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.wantField, fe.Field)
			assert.NotEmpty(t, fe.Message)
		})
	}
}

func TestPretty(t *testing.T) {
	e := &model.Event{
		ID:        4,
		StartDate: "2020-01-02",
		StartTime: "19:00",
		EndDate:   "2020-01-06",
		EndTime:   "22:00",
		Title:     "Festival",
		Categories: []model.EventCategory{
			{CategoryID: 1, Category: model.Category{Name: "Kultur"}},
			{CategoryID: 2, Primary: true, Category: model.Category{Name: "Musik", TextColor: "#fff", BackgroundColor: "#000"}},
		},
	}

	p, err := model.Pretty(e)
	require.NoError(t, err)
	assert.Equal(t, "Do 02.01.2020 – Mo 06.01.2020", p.DateText)
	assert.Equal(t, "19:00 – 22:00 Uhr", p.TimeText)
	assert.Equal(t, "5 Tage", p.DaysText)
	assert.Equal(t, "Musik", p.CategoryName)
	assert.Equal(t, "#000", p.BackgroundColor)
	assert.Equal(t, []string{"Kultur", "Musik"}, p.Categories)

	allDay, err := model.Pretty(&model.Event{StartDate: "2020-01-01", Title: "Neujahr"})
	require.NoError(t, err)
	assert.Equal(t, "ganztägig", allDay.TimeText)
	assert.Empty(t, allDay.DaysText)
}
