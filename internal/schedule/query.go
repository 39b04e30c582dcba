package schedule

import (
	"sort"
	"time"

	"outage-ingester/internal/model"
)

// StartKey is the instant an event begins when viewed from loc.
// All-day events begin at local midnight of their date.
func StartKey(e model.Event, loc *time.Location) time.Time {
	if e.AllDay {
		return dateIn(e.Start, loc)
	}
	return e.Start
}

// EndKey is StartKey's counterpart for the exclusive end.
func EndKey(e model.Event, loc *time.Location) time.Time {
	if e.AllDay {
		return dateIn(e.End, loc)
	}
	return e.End
}

func dateIn(d time.Time, loc *time.Location) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}

// SortEvents returns a copy of events ordered by (start, end, type),
// comparing all-day and timed events on one timeline in loc.
func SortEvents(events []model.Event, loc *time.Location) []model.Event {
	out := make([]model.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		as, bs := StartKey(a, loc), StartKey(b, loc)
		if !as.Equal(bs) {
			return as.Before(bs)
		}
		ae, be := EndKey(a, loc), EndKey(b, loc)
		if !ae.Equal(be) {
			return ae.Before(be)
		}
		return a.Type < b.Type
	})
	return out
}

// Normalize sorts and merges raw decoded events.
func Normalize(events []model.Event, eps time.Duration, loc *time.Location) []model.Event {
	return Merge(SortEvents(events, loc), eps)
}

// Overlapping keeps events intersecting [start, end). Timed events use
// instants; all-day events are kept when their dates meet any date the
// window touches in loc.
func Overlapping(events []model.Event, start, end time.Time, loc *time.Location) []model.Event {
	out := make([]model.Event, 0, len(events))
	if !start.Before(end) {
		return out
	}
	first := model.Date(start.In(loc))
	last := model.Date(end.Add(-time.Nanosecond).In(loc))
	for _, e := range events {
		if e.AllDay {
			if e.Start.After(last) || !e.End.After(first) {
				continue
			}
		} else if !e.End.After(start) || !e.Start.Before(end) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Window runs the full query pipeline: sort, merge, then filter.
func Window(events []model.Event, start, end time.Time, eps time.Duration, loc *time.Location) []model.Event {
	return Overlapping(Normalize(events, eps, loc), start, end, loc)
}

// EventAt returns the first event containing at, half-open.
func EventAt(events []model.Event, at time.Time, loc *time.Location) (model.Event, bool) {
	at = at.In(loc)
	for _, e := range events {
		if e.Contains(at) {
			return e, true
		}
	}
	return model.Event{}, false
}

// FirstStartAfter returns the earliest event that begins strictly after at.
// All-day events are compared by date.
func FirstStartAfter(events []model.Event, at time.Time, loc *time.Location) (model.Event, bool) {
	at = at.In(loc)
	var (
		best  model.Event
		found bool
	)
	for _, e := range events {
		if !e.StartsAfter(at) {
			continue
		}
		if !found || StartKey(e, loc).Before(StartKey(best, loc)) {
			best, found = e, true
		}
	}
	return best, found
}

// NextBoundary returns the earliest start or end strictly after at.
func NextBoundary(events []model.Event, at time.Time, loc *time.Location) (time.Time, bool) {
	var (
		best  time.Time
		found bool
	)
	consider := func(t time.Time) {
		if t.After(at) && (!found || t.Before(best)) {
			best, found = t, true
		}
	}
	for _, e := range events {
		consider(StartKey(e, loc))
		consider(EndKey(e, loc))
	}
	return best, found
}
