package scrape

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"

	"eventcal/internal/datetime"
)

// ErrNoEvent is returned when a page carries neither event JSON-LD nor a title.
var ErrNoEvent = errors.New("no event data on page")

// Imported holds normalized event fields, keyed like the event form.
type Imported struct {
	StartDate   string `json:"start_date"`
	StartTime   string `json:"start_time"`
	EndDate     string `json:"end_date"`
	EndTime     string `json:"end_time"`
	Title       string `json:"title"`
	Location    string `json:"location"`
	Organizer   string `json:"organizer"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// ldEvent is the subset of schema.org/Event we read. Location and organizer
// come as plain strings, objects or arrays depending on the publisher.
type ldEvent struct {
	Type        json.RawMessage `json:"@type"`
	Graph       []ldEvent       `json:"@graph"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	StartDate   string          `json:"startDate"`
	EndDate     string          `json:"endDate"`
	URL         string          `json:"url"`
	Location    json.RawMessage `json:"location"`
	Organizer   json.RawMessage `json:"organizer"`
}

type ldThing struct {
	Name    string          `json:"name"`
	Address json.RawMessage `json:"address"`
}

type ldAddress struct {
	StreetAddress   string `json:"streetAddress"`
	PostalCode      string `json:"postalCode"`
	AddressLocality string `json:"addressLocality"`
}

// ParseEventPage extracts event fields from a rendered page. A schema.org
// Event JSON-LD block wins; otherwise OpenGraph title and description are
// used and the dates stay empty.
func ParseEventPage(doc string) (Imported, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return Imported{}, fmt.Errorf("parse html: %w", err)
	}

	var scripts []string
	meta := map[string]string{}
	walk(root, func(n *html.Node) {
		switch n.Data {
		case "script":
			if strings.EqualFold(attr(n, "type"), "application/ld+json") && n.FirstChild != nil {
				scripts = append(scripts, n.FirstChild.Data)
			}
		case "meta":
			key := attr(n, "property")
			if key == "" {
				key = attr(n, "name")
			}
			if strings.HasPrefix(key, "og:") {
				if _, seen := meta[key]; !seen {
					meta[key] = strings.TrimSpace(attr(n, "content"))
				}
			}
		}
	})

	for _, s := range scripts {
		ev, ok := findLDEvent([]byte(s))
		if !ok {
			continue
		}
		return fromLD(ev)
	}

	out := Imported{
		Title:       meta["og:title"],
		Description: meta["og:description"],
		URL:         meta["og:url"],
	}
	if out.Title == "" {
		return Imported{}, ErrNoEvent
	}
	return out, nil
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// findLDEvent looks for an Event in a JSON-LD payload: a single object, an
// array of objects, or an @graph.
func findLDEvent(raw []byte) (ldEvent, bool) {
	var list []ldEvent
	if err := json.Unmarshal(raw, &list); err != nil {
		var one ldEvent
		if err := json.Unmarshal(raw, &one); err != nil {
			return ldEvent{}, false
		}
		list = []ldEvent{one}
	}
	for _, ev := range list {
		if isEventType(ev.Type) {
			return ev, true
		}
		for _, g := range ev.Graph {
			if isEventType(g.Type) {
				return g, true
			}
		}
	}
	return ldEvent{}, false
}

// isEventType accepts Event and its subtypes such as SocialEvent.
func isEventType(raw json.RawMessage) bool {
	var types []string
	if err := json.Unmarshal(raw, &types); err != nil {
		var one string
		if err := json.Unmarshal(raw, &one); err != nil {
			return false
		}
		types = []string{one}
	}
	for _, t := range types {
		if strings.HasSuffix(t, "Event") {
			return true
		}
	}
	return false
}

func fromLD(ev ldEvent) (Imported, error) {
	out := Imported{
		Title:       strings.TrimSpace(ev.Name),
		Description: strings.TrimSpace(ev.Description),
		URL:         strings.TrimSpace(ev.URL),
		Location:    placeText(ev.Location),
		Organizer:   organizerText(ev.Organizer),
	}

	var err error
	if out.StartDate, out.StartTime, err = normalizeTime(ev.StartDate); err != nil {
		return Imported{}, fmt.Errorf("startDate: %w", err)
	}
	if ev.EndDate != "" {
		if out.EndDate, out.EndTime, err = normalizeTime(ev.EndDate); err != nil {
			return Imported{}, fmt.Errorf("endDate: %w", err)
		}
		if out.EndDate == out.StartDate {
			out.EndDate = ""
		}
	}
	return out, nil
}

func placeText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var place ldThing
	if json.Unmarshal(raw, &place) != nil {
		return ""
	}
	parts := []string{place.Name}
	var addr string
	if json.Unmarshal(place.Address, &addr) == nil {
		parts = append(parts, addr)
	} else {
		var a ldAddress
		if json.Unmarshal(place.Address, &a) == nil {
			parts = append(parts, a.StreetAddress, strings.TrimSpace(a.PostalCode+" "+a.AddressLocality))
		}
	}
	return joinNonEmpty(parts)
}

func organizerText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var many []ldThing
	if json.Unmarshal(raw, &many) != nil {
		var one ldThing
		if json.Unmarshal(raw, &one) != nil {
			return ""
		}
		many = []ldThing{one}
	}
	names := make([]string, 0, len(many))
	for _, o := range many {
		names = append(names, o.Name)
	}
	return joinNonEmpty(names)
}

func joinNonEmpty(parts []string) string {
	out := parts[:0:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || (len(out) > 0 && out[len(out)-1] == p) {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, ", ")
}

var zonedLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04-07:00",
	"2006-01-02T15:04-0700",
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// normalizeTime turns an ISO 8601 value into a local date and clock. A bare
// date yields an empty clock.
func normalizeTime(v string) (date, clock string, err error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", "", errors.New("empty value")
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			d := datetime.New(t.In(datetime.Location))
			return d.ISODate(), d.Clock(), nil
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, v, datetime.Location); err == nil {
			d := datetime.New(t)
			return d.ISODate(), d.Clock(), nil
		}
	}
	d, err := datetime.Parse(v)
	if err != nil {
		return "", "", err
	}
	return d.ISODate(), "", nil
}
