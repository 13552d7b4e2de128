package calendar

import (
	"fmt"
	"sort"
	"strings"

	"eventcal/internal/datetime"
)

// Style selects an output format.
type Style string

const (
	StyleTable    Style = "table"
	StyleMarkdown Style = "markdown"
	StyleTest     Style = "test"
)

// NoEntries is rendered by the table formats for an empty input.
const NoEntries = "Keine Termine."

// Options bound and decorate a rendering. A zero Start means no explicit
// start boundary; a zero End means the range ends with the last event.
// Instances before From are dropped without any boundary row.
type Options struct {
	Start datetime.DateTime
	End   datetime.DateTime
	From  datetime.DateTime

	// Header and Footer replace the Markdown digest boilerplate when set.
	Header string
	Footer string
}

// Builder renders a sequence of event instances.
type Builder interface {
	Build(it *Iterator) (string, error)
}

// Constructor creates a Builder for one rendering.
type Constructor func(Options) Builder

var registry = map[Style]Constructor{
	StyleTable:    func(o Options) Builder { return newTableBuilder(o, htmlFormat{}) },
	StyleTest:     func(o Options) Builder { return newTableBuilder(o, textFormat{}) },
	StyleMarkdown: func(o Options) Builder { return &markdownBuilder{opts: o} },
}

// UnknownStyleError is returned for a style with no registered builder.
type UnknownStyleError struct {
	Style Style
}

func (e *UnknownStyleError) Error() string {
	return fmt.Sprintf("unknown calendar style %q", string(e.Style))
}

// NewBuilder looks up the constructor for style.
func NewBuilder(style Style, opts Options) (Builder, error) {
	ctor, ok := registry[Style(strings.ToLower(string(style)))]
	if !ok {
		return nil, &UnknownStyleError{Style: style}
	}
	if !opts.Start.IsZero() {
		opts.Start = opts.Start.Midnight()
	}
	if !opts.End.IsZero() {
		opts.End = opts.End.Midnight()
	}
	if !opts.From.IsZero() {
		opts.From = opts.From.Midnight()
	}
	return ctor(opts), nil
}

// Styles lists the registered style tags.
func Styles() []Style {
	out := make([]Style, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func inRange(opts Options, d datetime.DateTime) bool {
	if !opts.Start.IsZero() && d.DateBefore(opts.Start) {
		return false
	}
	if !opts.From.IsZero() && d.DateBefore(opts.From) {
		return false
	}
	if !opts.End.IsZero() && d.DateAfter(opts.End) {
		return false
	}
	return true
}

// tableFormat writes the pieces of a month-grouped table.
type tableFormat interface {
	empty(b *strings.Builder)
	openMonth(b *strings.Builder, month datetime.DateTime)
	closeMonth(b *strings.Builder, month datetime.DateTime)
	emptyDay(b *strings.Builder, day datetime.DateTime)
	event(b *strings.Builder, inst Instance, labeled bool)
}

type tableState int

const (
	noMonthOpen tableState = iota
	monthOpen
	finished
)

// tableBuilder is the month/day state machine shared by the table formats.
type tableBuilder struct {
	opts   Options
	format tableFormat

	state  tableState
	month  datetime.DateTime
	cursor datetime.DateTime
	b      strings.Builder
}

func newTableBuilder(opts Options, f tableFormat) *tableBuilder {
	return &tableBuilder{opts: opts, format: f}
}

func (tb *tableBuilder) Build(it *Iterator) (string, error) {
	seen := false
	for {
		inst, ok, err := it.Next()
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		if !inRange(tb.opts, inst.Date) {
			continue
		}
		seen = true

		labeled := tb.state == noMonthOpen || !tb.cursor.SameDay(inst.Date)
		tb.advance(inst.Date)
		tb.format.event(&tb.b, inst, labeled)
		tb.cursor = inst.Date
	}

	if !seen {
		tb.format.empty(&tb.b)
		tb.state = finished
		return tb.b.String(), nil
	}
	tb.finish()
	return tb.b.String(), nil
}

// advance emits everything between the cursor and d, opening and closing
// months on the way.
func (tb *tableBuilder) advance(d datetime.DateTime) {
	if tb.state == noMonthOpen {
		if start := tb.opts.Start; !start.IsZero() {
			tb.open(start)
			tb.cursor = start.SubDays(1)
			if d.DateAfter(start) {
				tb.format.emptyDay(&tb.b, start)
				tb.cursor = start
			}
		} else {
			tb.open(d)
		}
	}

	for !tb.month.SameMonth(d) {
		tb.fillThrough(tb.month.LastOfMonth())
		tb.close()
		tb.open(tb.month.NextMonth())
	}
	tb.fillThrough(d.SubDays(1))
}

func (tb *tableBuilder) finish() {
	if end := tb.opts.End; !end.IsZero() {
		for !tb.month.SameMonth(end) && end.DateAfter(tb.month) {
			tb.fillThrough(tb.month.LastOfMonth())
			tb.close()
			tb.open(tb.month.NextMonth())
		}
	}
	tb.fillThrough(tb.month.LastOfMonth())
	tb.close()
	tb.state = finished
}

// open starts the month containing d with the cursor before its 1st.
func (tb *tableBuilder) open(d datetime.DateTime) {
	tb.month = d.FirstOfMonth()
	tb.cursor = tb.month.SubDays(1)
	tb.format.openMonth(&tb.b, tb.month)
	tb.state = monthOpen
}

func (tb *tableBuilder) close() {
	tb.format.closeMonth(&tb.b, tb.month)
}

func (tb *tableBuilder) fillThrough(last datetime.DateTime) {
	for day := tb.cursor.AddDays(1); !day.DateAfter(last); day = day.AddDays(1) {
		tb.format.emptyDay(&tb.b, day)
		tb.cursor = day
	}
}
