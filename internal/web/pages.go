package web

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"eventcal/internal/auth"
	"eventcal/internal/calendar"
	"eventcal/internal/datetime"
	"eventcal/internal/ics"
	"eventcal/internal/shortcode"
)

// icsPastDays and icsFutureDays bound the exported feed.
const (
	icsPastDays   = 30
	icsFutureDays = 365
)

var calendarAttrs = []string{
	shortcode.AttrStart,
	shortcode.AttrDays,
	shortcode.AttrStyle,
	shortcode.AttrCalendar,
	shortcode.AttrMultiday,
}

// GET /calendar?start=monday&days=7&style=markdown&calendar=kultur
//
// Takes the shortcode attributes as query parameters. Hidden events are only
// included for administrators.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	attrs := map[string]string{}
	for _, k := range calendarAttrs {
		if _, ok := q[k]; ok {
			attrs[k] = q.Get(k)
		}
	}

	p, err := s.expander.Params(attrs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p.IncludeHidden = auth.FromContext(r.Context()).CanAdminister()

	out, err := s.calendar.Render(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	contentType := "text/html; charset=utf-8"
	if p.Style != calendar.StyleTable {
		contentType = "text/plain; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

// POST /render expands the shortcodes in the posted content field. One
// request is one page: only its first calendar is rendered.
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	content := r.FormValue("content")
	rc := shortcode.NewRenderContext(auth.FromContext(r.Context()).CanAdminister())

	out, err := s.expander.Expand(r.Context(), content, rc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

// GET /calendar.ics?calendar=kultur exports the public events from a month
// ago to a year ahead.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	name := s.cfg.Site.DefaultCalendar
	if q := r.URL.Query(); q.Has("calendar") {
		name = q.Get("calendar")
	}

	today := datetime.Today(s.clock)
	events, err := s.store.EventsBetween(r.Context(), name, today.SubDays(icsPastDays), today.AddDays(icsFutureDays), true)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	title := name
	if title == "" {
		title = "Veranstaltungen"
	}
	body, err := ics.Export(events, title, s.host(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// host qualifies exported UIDs: the configured base URL, else the request.
func (s *Server) host(r *http.Request) string {
	if u, err := url.Parse(s.cfg.Site.BaseURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	if h, _, err := net.SplitHostPort(r.Host); err == nil {
		return h
	}
	if r.Host != "" {
		return strings.ToLower(r.Host)
	}
	return "localhost"
}
