package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventcal/internal/datetime"
	"eventcal/internal/model"
)

var vhs = Source{ID: "sport", URL: "https://example.org/feed.ics", Calendar: "sport", Public: true}

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func feed(t *testing.T) []byte {
	t.Helper()
	body, err := os.ReadFile("testdata/feed.ics")
	require.NoError(t, err)
	return body
}

func TestParse(t *testing.T) {
	loc := berlin(t)
	events, err := Parse(vhs, feed(t), loc)
	require.NoError(t, err)
	require.Len(t, events, 4, "the VEVENT without UID is skipped")

	lauf := events[0]
	assert.Equal(t, "lauf@example.org", lauf.UID)
	assert.Equal(t, "Sportverein", lauf.Organizer)
	assert.Equal(t, "FREQ=WEEKLY;COUNT=4", lauf.RawRRule)
	assert.True(t, lauf.Start.Equal(time.Date(2020, 1, 7, 18, 0, 0, 0, loc)))
	require.Len(t, lauf.ExDates, 1)
	assert.False(t, lauf.IsOverride())

	assert.True(t, events[1].IsOverride())
	assert.True(t, events[2].AllDay)
	assert.True(t, events[3].Cancelled)

	_, err = Parse(vhs, nil, loc)
	assert.Error(t, err)
}

func TestExpand(t *testing.T) {
	loc := berlin(t)
	events, err := Parse(vhs, feed(t), loc)
	require.NoError(t, err)

	occ, err := Expand(events, ExpandConfig{
		Location:   loc,
		RangeStart: time.Date(2020, 1, 1, 0, 0, 0, 0, loc),
		RangeEnd:   time.Date(2020, 2, 1, 0, 0, 0, 0, loc),
	})
	require.NoError(t, err)

	var got []string
	for _, o := range occ {
		got = append(got, o.ExternalID()+" "+o.Event.Summary)
	}
	assert.Equal(t, []string{
		"sport:lauf@example.org:20200107T1800 Lauftreff",
		"sport:markt@example.org:20200111 Flohmarkt",
		"sport:lauf@example.org:20200121T1800 Lauftreff (später)",
		"sport:lauf@example.org:20200128T1800 Lauftreff",
	}, got)

	_, err = Expand(events, ExpandConfig{RangeStart: time.Now(), RangeEnd: time.Now().Add(-time.Hour)})
	assert.Error(t, err)
}

func TestOccurrence_ToEvent(t *testing.T) {
	loc := berlin(t)
	events, err := Parse(vhs, feed(t), loc)
	require.NoError(t, err)
	occ, err := Expand(events, ExpandConfig{
		Location:   loc,
		RangeStart: time.Date(2020, 1, 1, 0, 0, 0, 0, loc),
		RangeEnd:   time.Date(2020, 1, 22, 0, 0, 0, 0, loc),
	})
	require.NoError(t, err)
	require.Len(t, occ, 3)

	lauf := occ[0].ToEvent()
	assert.Equal(t, "2020-01-07", lauf.StartDate)
	assert.Equal(t, "18:00", lauf.StartTime)
	assert.Equal(t, "", lauf.EndDate)
	assert.Equal(t, "19:30", lauf.EndTime)
	assert.Equal(t, "Park", lauf.Location)
	assert.Equal(t, "sport", lauf.Calendar)
	assert.True(t, lauf.Public)
	assert.Equal(t, "ics:sport", lauf.CreatedBy)

	markt := occ[1].ToEvent()
	assert.Equal(t, "2020-01-11", markt.StartDate)
	assert.Equal(t, "2020-01-12", markt.EndDate, "exclusive DTEND becomes the last day")
	assert.True(t, markt.AllDay())
	assert.Equal(t, "https://example.org/floh", markt.URL)

	moved := occ[2].ToEvent()
	assert.Equal(t, "19:00", moved.StartTime)
	assert.Equal(t, "sport:lauf@example.org:20200121T1800", moved.ExternalID)
}

func TestFetcher_ConditionalAndStale(t *testing.T) {
	body := feed(t)
	var status atomic.Int32
	status.Store(http.StatusOK)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case status.Load() != http.StatusOK:
			w.WriteHeader(int(status.Load()))
		case r.Header.Get("If-None-Match") == `"v1"`:
			w.WriteHeader(http.StatusNotModified)
		default:
			w.Header().Set("ETag", `"v1"`)
			_, _ = w.Write(body)
		}
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	src := Source{ID: "x", URL: srv.URL + "/feed.ics?token=geheim"}

	res, err := f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assert.Equal(t, body, res.Body)

	res, err = f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache, "304 served from disk")
	assert.Equal(t, body, res.Body)

	status.Store(http.StatusInternalServerError)
	res, err = f.Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, res.FromCache, "error status falls back to the last good body")

	_, err = f.Fetch(context.Background(), Source{ID: "y", URL: srv.URL + "/other.ics"})
	assert.ErrorContains(t, err, "500")
}

type memEvents struct {
	byExternal map[string]*model.Event
}

func (m *memEvents) UpsertImported(_ context.Context, e *model.Event) (bool, error) {
	_, exists := m.byExternal[e.ExternalID]
	m.byExternal[e.ExternalID] = e
	return !exists, nil
}

func TestSyncer(t *testing.T) {
	loc := berlin(t)
	body := feed(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken.ics" {
			_, _ = w.Write([]byte("BEGIN:VEVENT\r\nEND:VEVENT\r\n"))
			return
		}
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	store := &memEvents{byExternal: map[string]*model.Event{}}
	s := NewSyncer(NewFetcher(t.TempDir(), srv.Client()), store, loc, 30)
	s.now = func() time.Time { return time.Date(2020, 1, 5, 12, 0, 0, 0, loc) }

	src := Source{ID: "sport", URL: srv.URL + "/feed.ics", Calendar: "sport"}
	stats, err := s.Sync(context.Background(), []Source{src})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Created)
	assert.Len(t, store.byExternal, 4)

	stats, err = s.Sync(context.Background(), []Source{src, {ID: "kaputt", URL: srv.URL + "/broken.ics"}})
	assert.ErrorContains(t, err, "kaputt")
	assert.Equal(t, 4, stats.Updated)
	assert.Equal(t, 1, stats.Failed)
}

func TestExport(t *testing.T) {
	created := time.Date(2020, 1, 1, 9, 0, 0, 0, time.UTC)
	events := []*model.Event{
		{ID: 1, Title: "Konzert", StartDate: "2020-01-10", StartTime: "19:30", EndTime: "22:00",
			Location: "Halle", Organizer: "Verein", CreatedAt: created,
			Categories: []model.EventCategory{{Category: model.Category{Name: "Musik"}}}},
		{ID: 2, Title: "Flohmarkt", StartDate: "2020-01-11", EndDate: "2020-01-12", CreatedAt: created},
	}

	out, err := Export(events, "Kultur", "example.org")
	require.NoError(t, err)
	assert.Contains(t, out, "X-WR-CALNAME:Kultur")
	assert.Contains(t, out, "UID:event-1@example.org")
	assert.Contains(t, out, "CATEGORIES:Musik")

	parsed, err := Parse(Source{ID: "self"}, []byte(out), datetime.Location)
	require.NoError(t, err)
	require.Len(t, parsed, 2)

	start, err := events[0].StartDateTime()
	require.NoError(t, err)
	assert.True(t, parsed[0].Start.Equal(start.Time()))
	assert.Equal(t, 150*time.Minute, parsed[0].End.Sub(parsed[0].Start))
	assert.Equal(t, "Verein", parsed[0].Organizer)

	assert.True(t, parsed[1].AllDay)
	assert.Equal(t, "20200113", parsed[1].End.Format("20060102"))
	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR"))
}
