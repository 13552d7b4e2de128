// Package shortcode expands [eventcal ...] tags in page content into rendered
// calendars.
package shortcode

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"eventcal/internal/apperr"
	"eventcal/internal/calendar"
	"eventcal/internal/datetime"
	appLog "eventcal/internal/log"
)

const (
	Name = "eventcal"

	AttrStart    = "start"
	AttrDays     = "days"
	AttrStyle    = "style"
	AttrCalendar = "calendar"
	AttrMultiday = "multiday"

	maxDays = 366
)

// AlreadyShownNote replaces every tag after the first on a page.
const AlreadyShownNote = `<p class="eventcal-note">Der Kalender wird nur einmal pro Seite angezeigt.</p>`

var (
	tagRe  = regexp.MustCompile(`\[` + Name + `((?:\s+[A-Za-z_]+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s\]"']+))*)\s*/?\]`)
	attrRe = regexp.MustCompile(`([A-Za-z_]+)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s\]"']+))`)
)

// Tag is one shortcode occurrence; Start and End index into the content.
type Tag struct {
	Start, End int
	Attrs      map[string]string
}

// Parse finds all tags in content, in order.
func Parse(content string) []Tag {
	var tags []Tag
	for _, m := range tagRe.FindAllStringSubmatchIndex(content, -1) {
		tag := Tag{Start: m[0], End: m[1], Attrs: map[string]string{}}
		for _, a := range attrRe.FindAllStringSubmatch(content[m[2]:m[3]], -1) {
			val := a[2]
			if val == "" {
				val = a[3]
			}
			if val == "" {
				val = a[4]
			}
			tag.Attrs[strings.ToLower(a[1])] = strings.TrimSpace(val)
		}
		tags = append(tags, tag)
	}
	return tags
}

// Renderer renders one calendar.
type Renderer interface {
	Render(ctx context.Context, p calendar.Params) (string, error)
}

// RenderContext belongs to one page render. Only the first calendar claims
// it; IncludeHidden is decided by the caller from the visitor's rights.
type RenderContext struct {
	IncludeHidden bool
	shown         bool
}

func NewRenderContext(includeHidden bool) *RenderContext {
	return &RenderContext{IncludeHidden: includeHidden}
}

func (rc *RenderContext) claim() bool {
	if rc.shown {
		return false
	}
	rc.shown = true
	return true
}

// Defaults fill attributes a tag leaves out.
type Defaults struct {
	Days     int
	Style    calendar.Style
	Calendar string
}

type Expander struct {
	renderer Renderer
	clock    datetime.Clock
	defaults Defaults
}

func NewExpander(r Renderer, clock datetime.Clock, defaults Defaults) *Expander {
	if clock == nil {
		clock = datetime.SystemClock{}
	}
	return &Expander{renderer: r, clock: clock, defaults: defaults}
}

// Params turns tag attributes into render parameters. start accepts
// YYYY-MM-DD, "today" and "monday" (the Monday of the current week).
func (x *Expander) Params(attrs map[string]string) (calendar.Params, error) {
	p := calendar.Params{
		Days:     x.defaults.Days,
		Style:    x.defaults.Style,
		Calendar: x.defaults.Calendar,
	}

	switch start := strings.ToLower(attrs[AttrStart]); start {
	case "":
	case "today":
		p.Start, p.ExplicitStart = datetime.Today(x.clock), true
	case "monday":
		p.Start, p.ExplicitStart = datetime.LastMonday(datetime.Today(x.clock)), true
	default:
		d, err := datetime.Parse(start)
		if err != nil {
			return p, apperr.Wrap(apperr.Validation, "Ungültiges Startdatum.", err)
		}
		p.Start, p.ExplicitStart = d, true
	}

	if raw := attrs[AttrDays]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDays {
			return p, apperr.New(apperr.Validation, "Ungültige Anzahl Tage.")
		}
		p.Days = n
	}
	if s := attrs[AttrStyle]; s != "" {
		p.Style = calendar.Style(strings.ToLower(s))
	}
	if c, ok := attrs[AttrCalendar]; ok {
		p.Calendar = c
	}
	if m := attrs[AttrMultiday]; m != "" {
		expand, err := strconv.ParseBool(m)
		if err != nil {
			return p, apperr.New(apperr.Validation, "Ungültiger Wert für multiday.")
		}
		p.SingleDay = !expand
	}
	return p, nil
}

// Expand replaces each tag in content with its rendered calendar. After the
// first calendar in rc, tags are replaced with AlreadyShownNote.
func (x *Expander) Expand(ctx context.Context, content string, rc *RenderContext) (string, error) {
	tags := Parse(content)
	if len(tags) == 0 {
		return content, nil
	}

	var b strings.Builder
	last := 0
	for _, tag := range tags {
		b.WriteString(content[last:tag.Start])
		last = tag.End

		if !rc.claim() {
			b.WriteString(AlreadyShownNote)
			continue
		}
		p, err := x.Params(tag.Attrs)
		if err != nil {
			return "", err
		}
		p.IncludeHidden = rc.IncludeHidden
		out, err := x.renderer.Render(ctx, p)
		if err != nil {
			appLog.Error("shortcode render failed", err, "attrs", tag.Attrs)
			return "", err
		}
		b.WriteString(out)
	}
	b.WriteString(content[last:])
	return b.String(), nil
}
