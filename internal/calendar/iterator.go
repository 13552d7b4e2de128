package calendar

import (
	"sort"

	"eventcal/internal/datetime"
	"eventcal/internal/model"
)

// Instance is one appearance of an event on one calendar day.
type Instance struct {
	Event  *model.Event
	Date   datetime.DateTime
	Offset int // 0-based day within the event's span
	Days   int // total days the event spans
}

// First reports whether this is the event's start day.
func (i Instance) First() bool { return i.Offset == 0 }

type openEvent struct {
	ev    *model.Event
	start datetime.DateTime
	days  int
}

// Iterator yields event instances in date order. With expansion enabled a
// multi-day event yields one instance per covered day; on each date the
// still-open events come first, in their original order, followed by the
// events starting that day.
type Iterator struct {
	events []*model.Event
	expand bool

	next  int
	open  []openEvent
	day   datetime.DateTime
	queue []Instance
	err   error
}

// NewIterator sorts a copy of events by start date then start time (stable)
// and prepares a forward-only iteration.
func NewIterator(events []*model.Event, expand bool) *Iterator {
	sorted := make([]*model.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.StartDate != b.StartDate {
			return a.StartDate < b.StartDate
		}
		return a.StartTime < b.StartTime
	})
	return &Iterator{events: sorted, expand: expand}
}

// Reset restarts the iteration from the first event.
func (it *Iterator) Reset() {
	it.next = 0
	it.open = nil
	it.queue = nil
	it.err = nil
	it.day = datetime.DateTime{}
}

// Next returns the next instance. ok is false once the sequence is
// exhausted or an event carried a malformed date.
func (it *Iterator) Next() (Instance, bool, error) {
	if it.err != nil {
		return Instance{}, false, it.err
	}
	for len(it.queue) == 0 {
		if !it.fill() {
			return Instance{}, false, it.err
		}
	}
	inst := it.queue[0]
	it.queue = it.queue[1:]
	return inst, true, nil
}

// All drains the iterator.
func (it *Iterator) All() ([]Instance, error) {
	var out []Instance
	for {
		inst, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, inst)
	}
}

// fill queues every instance for the next date that has any.
func (it *Iterator) fill() bool {
	if !it.expand {
		return it.fillSingle()
	}

	var day datetime.DateTime
	switch {
	case len(it.open) > 0:
		day = it.day.AddDays(1)
	case it.next < len(it.events):
		start, err := datetime.Parse(it.events[it.next].StartDate)
		if err != nil {
			it.err = err
			return false
		}
		day = start
	default:
		return false
	}
	it.day = day

	stillOpen := it.open[:0]
	for _, oe := range it.open {
		offset := oe.start.DaysUntil(day)
		it.queue = append(it.queue, Instance{Event: oe.ev, Date: day, Offset: offset, Days: oe.days})
		if offset < oe.days-1 {
			stillOpen = append(stillOpen, oe)
		}
	}
	it.open = stillOpen

	for it.next < len(it.events) {
		ev := it.events[it.next]
		start, err := datetime.Parse(ev.StartDate)
		if err != nil {
			it.err = err
			return false
		}
		if start.DateAfter(day) {
			break
		}
		days, err := ev.NumberOfDays()
		if err != nil {
			it.err = err
			return false
		}
		it.next++
		it.queue = append(it.queue, Instance{Event: ev, Date: day, Offset: 0, Days: days})
		if days > 1 {
			it.open = append(it.open, openEvent{ev: ev, start: day, days: days})
		}
	}
	return true
}

func (it *Iterator) fillSingle() bool {
	if it.next >= len(it.events) {
		return false
	}
	ev := it.events[it.next]
	start, err := datetime.Parse(ev.StartDate)
	if err != nil {
		it.err = err
		return false
	}
	days, err := ev.NumberOfDays()
	if err != nil {
		it.err = err
		return false
	}
	it.next++
	it.queue = append(it.queue, Instance{Event: ev, Date: start, Offset: 0, Days: days})
	return true
}
