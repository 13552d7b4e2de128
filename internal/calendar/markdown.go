package calendar

import (
	"fmt"
	"strings"

	"eventcal/internal/datetime"
)

// Placeholder marks an empty day inside the digest's explicit range.
const Placeholder = "(nothing yet)"

// markdownSpecial are the characters Telegram's MarkdownV2 requires escaped.
const markdownSpecial = "_*[]()~`>#+-=|{}.!\\"

// EscapeMarkdown escapes text for Telegram MarkdownV2.
func EscapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(markdownSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// escapeLinkURL escapes the inside of a MarkdownV2 link target.
func escapeLinkURL(s string) string {
	return strings.NewReplacer(`\`, `\\`, `)`, `\)`).Replace(s)
}

// markdownBuilder renders a digest grouped by day headers. Empty days are
// only listed inside an explicit start/end range.
type markdownBuilder struct {
	opts Options

	cursor  datetime.DateTime
	started bool
	days    int
	b       strings.Builder
}

// WeekRangeHeader is the default digest title, e.g.
// "Termine vom 06.01. bis 12.01.2020".
func WeekRangeHeader(start, end datetime.DateTime) string {
	return fmt.Sprintf("Termine vom %s bis %s", start.GermanShortDate(), end.GermanDate())
}

func (mb *markdownBuilder) Build(it *Iterator) (string, error) {
	mb.writeHeader()

	for {
		inst, ok, err := it.Next()
		if err != nil {
			return "", err
		}
		if !ok {
			break
		}
		if !inRange(mb.opts, inst.Date) {
			continue
		}
		if !mb.started || !mb.cursor.SameDay(inst.Date) {
			mb.fillThrough(inst.Date.SubDays(1))
			mb.dayHeader(inst.Date)
		}
		mb.eventLine(inst)
	}

	if !mb.opts.End.IsZero() {
		mb.fillThrough(mb.opts.End)
	}
	if mb.days == 0 {
		mb.b.WriteString("\n" + EscapeMarkdown(NoEntries) + "\n")
	}

	mb.writeFooter()
	return mb.b.String(), nil
}

func (mb *markdownBuilder) writeHeader() {
	header := mb.opts.Header
	if header == "" {
		switch {
		case !mb.opts.Start.IsZero() && !mb.opts.End.IsZero():
			header = WeekRangeHeader(mb.opts.Start, mb.opts.End)
		case !mb.opts.Start.IsZero():
			header = "Termine ab " + mb.opts.Start.GermanDate()
		default:
			header = "Termine"
		}
	}
	mb.b.WriteString("*" + EscapeMarkdown(header) + "*\n")
}

func (mb *markdownBuilder) writeFooter() {
	if mb.opts.Footer == "" {
		return
	}
	mb.b.WriteString("\n" + EscapeMarkdown(mb.opts.Footer) + "\n")
}

// fillThrough lists placeholder days up to last, only when the digest has an
// explicit start.
func (mb *markdownBuilder) fillThrough(last datetime.DateTime) {
	if mb.opts.Start.IsZero() {
		return
	}
	day := mb.opts.Start
	if mb.started {
		day = mb.cursor.AddDays(1)
	}
	for ; !day.DateAfter(last); day = day.AddDays(1) {
		mb.dayHeader(day)
		mb.b.WriteString(EscapeMarkdown(Placeholder) + "\n")
	}
}

func (mb *markdownBuilder) dayHeader(d datetime.DateTime) {
	mb.b.WriteString("\n*" + EscapeMarkdown(d.WeekdayName()+", "+d.GermanShortDate()) + "*\n")
	mb.cursor = d
	mb.started = true
	mb.days++
}

func (mb *markdownBuilder) eventLine(inst Instance) {
	ev := inst.Event
	var b strings.Builder
	b.WriteString("• ")
	if inst.First() && !ev.AllDay() {
		b.WriteString(EscapeMarkdown(ev.StartTime) + " ")
	}
	title := EscapeMarkdown(ev.Title)
	if ev.URL != "" {
		title = "[" + title + "](" + escapeLinkURL(ev.URL) + ")"
	}
	b.WriteString(title)
	if inst.Days > 1 {
		b.WriteString(" " + EscapeMarkdown(fmt.Sprintf("(Tag %d/%d)", inst.Offset+1, inst.Days)))
	}
	if ev.Location != "" {
		b.WriteString(" " + EscapeMarkdown("@ "+ev.Location))
	}
	mb.b.WriteString(b.String() + "\n")
}
