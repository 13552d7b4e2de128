package calendar

import (
	"fmt"
	"html"
	"strings"

	"eventcal/internal/datetime"
)

// htmlFormat renders one <table> per month, one row per day.
type htmlFormat struct{}

func (htmlFormat) empty(b *strings.Builder) {
	b.WriteString(`<p class="eventcal-none">` + NoEntries + "</p>\n")
}

func (htmlFormat) openMonth(b *strings.Builder, month datetime.DateTime) {
	fmt.Fprintf(b, "<table class=\"eventcal-month\" data-month=\"%s\">\n<caption>%s</caption>\n",
		month.Time().Format("2006-01"), html.EscapeString(month.MonthYear()))
}

func (htmlFormat) closeMonth(b *strings.Builder, _ datetime.DateTime) {
	b.WriteString("</table>\n")
}

func (htmlFormat) emptyDay(b *strings.Builder, day datetime.DateTime) {
	fmt.Fprintf(b, "<tr class=\"eventcal-empty%s\"><td class=\"eventcal-date\">%s</td><td></td></tr>\n",
		weekendClass(day), dateLabel(day))
}

func (htmlFormat) event(b *strings.Builder, inst Instance, labeled bool) {
	label := ""
	if labeled {
		label = dateLabel(inst.Date)
	}
	fmt.Fprintf(b, "<tr class=\"eventcal-event%s\" data-event-id=\"%d\"><td class=\"eventcal-date\">%s</td><td class=\"eventcal-entry\">%s</td></tr>\n",
		weekendClass(inst.Date), inst.Event.ID, label, eventFragment(inst))
}

func dateLabel(d datetime.DateTime) string {
	return d.WeekdayShort() + " " + d.GermanShortDate()
}

func weekendClass(d datetime.DateTime) string {
	if d.IsWeekend() {
		return " eventcal-weekend"
	}
	return ""
}

// eventFragment renders the cell content for one event instance.
func eventFragment(inst Instance) string {
	ev := inst.Event
	var b strings.Builder

	if c, ok := ev.PrimaryCategory(); ok {
		style := ""
		if c.TextColor != "" {
			style += "color:" + c.TextColor + ";"
		}
		if c.BackgroundColor != "" {
			style += "background-color:" + c.BackgroundColor + ";"
		}
		fmt.Fprintf(&b, `<span class="eventcal-badge" style="%s">%s</span> `,
			html.EscapeString(style), html.EscapeString(c.Name))
	}

	if inst.First() && !ev.AllDay() {
		fmt.Fprintf(&b, `<span class="eventcal-time">%s</span> `, html.EscapeString(ev.StartTime))
	}

	title := html.EscapeString(ev.Title)
	if ev.URL != "" {
		title = fmt.Sprintf(`<a href="%s" rel="nofollow">%s</a>`, html.EscapeString(ev.URL), title)
	}
	fmt.Fprintf(&b, `<span class="eventcal-title">%s</span>`, title)

	if inst.Days > 1 {
		fmt.Fprintf(&b, ` <span class="eventcal-days">(%d/%d)</span>`, inst.Offset+1, inst.Days)
	}
	if ev.Location != "" {
		fmt.Fprintf(&b, ` <span class="eventcal-location">%s</span>`, html.EscapeString(ev.Location))
	}
	if !ev.Public {
		b.WriteString(` <span class="eventcal-hidden">(nicht öffentlich)</span>`)
	}
	return b.String()
}

// textFormat is a plain-text rendering of the table layout, used for
// fixtures and terminal output.
type textFormat struct{}

const textIndent = "          "

func (textFormat) empty(b *strings.Builder) {
	b.WriteString(NoEntries + "\n")
}

func (textFormat) openMonth(b *strings.Builder, month datetime.DateTime) {
	b.WriteString("# " + month.MonthYear() + "\n")
}

func (textFormat) closeMonth(b *strings.Builder, _ datetime.DateTime) {}

func (textFormat) emptyDay(b *strings.Builder, day datetime.DateTime) {
	b.WriteString(dateLabel(day) + " |\n")
}

func (textFormat) event(b *strings.Builder, inst Instance, labeled bool) {
	prefix := textIndent
	if labeled {
		prefix = dateLabel(inst.Date) + " "
	}
	b.WriteString(prefix + "| " + inst.Event.Title)
	if inst.Days > 1 {
		fmt.Fprintf(b, " [%d/%d]", inst.Offset+1, inst.Days)
	}
	b.WriteString("\n")
}
