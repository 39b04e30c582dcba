package schedule

import (
	"time"

	"outage-ingester/internal/model"
)

// Adjacency tolerances. Minute-slot data ends exactly on the next slot's
// start; hour grids close the day at 23:59:59 before midnight mapping.
const (
	MinuteGridEpsilon = time.Microsecond
	HourGridEpsilon   = time.Second
)

// Merge collapses touching events of the same type and all-day flag.
// events must be sorted by start. The input is not modified.
func Merge(events []model.Event, eps time.Duration) []model.Event {
	out := make([]model.Event, 0, len(events))
	if len(events) == 0 {
		return out
	}
	cur := events[0]
	for _, next := range events[1:] {
		if mergeable(cur, next, eps) {
			end := cur.End
			if next.End.After(end) {
				end = next.End
			}
			cur = model.Event{Type: cur.Type, Start: cur.Start, End: end, AllDay: cur.AllDay}
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

func mergeable(cur, next model.Event, eps time.Duration) bool {
	if cur.Type != next.Type || cur.AllDay != next.AllDay {
		return false
	}
	if cur.AllDay {
		return !next.Start.After(cur.End)
	}
	return !cur.End.Add(eps).Before(next.Start)
}
