package schedule

import (
	"fmt"
	"strconv"
	"time"

	"outage-ingester/internal/model"
)

// Hour-grid status codes, as published upstream.
const (
	CodeYes         = "yes"
	CodeNo          = "no"
	CodeMaybe       = "maybe"
	CodeFirst       = "first"
	CodeSecond      = "second"
	CodeMaybeFirst  = "mfirst"
	CodeMaybeSecond = "msecond"
)

// Grid maps hour-slot labels ("0".."23" or "1".."24") to status codes.
type Grid map[string]string

// TimeOfDay is a wall-clock time inside one calendar day.
type TimeOfDay struct {
	Hour, Minute, Second int
}

// EndOfDay closes an outage that runs until the following midnight.
var EndOfDay = TimeOfDay{Hour: 23, Minute: 59, Second: 59}

func (t TimeOfDay) IsEndOfDay() bool { return t.Hour == 23 && t.Minute == 59 }

// On anchors t to the calendar day of day, in day's location.
// EndOfDay maps to midnight of the next day.
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	if t.IsEndOfDay() {
		return time.Date(y, m, d+1, 0, 0, 0, 0, day.Location())
	}
	return time.Date(y, m, d, t.Hour, t.Minute, t.Second, 0, day.Location())
}

func (t TimeOfDay) String() string {
	if t.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	}
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// TimeRange is a same-day outage span produced by the decoder.
type TimeRange struct {
	Start, End TimeOfDay
}

func at(hour, minute int) TimeOfDay { return TimeOfDay{Hour: hour, Minute: minute} }

// GridPolicy selects how ambiguous codes are read.
type GridPolicy struct {
	// MaybeHalvesAsFull reads mfirst/msecond as a whole-hour outage
	// instead of a half-hour one.
	MaybeHalvesAsFull bool
	// UnknownAsOutage reads unrecognized codes as a whole-hour outage.
	// Otherwise they count as power on.
	UnknownAsOutage bool
}

var (
	// LivePolicy decodes confirmed schedules.
	LivePolicy = GridPolicy{MaybeHalvesAsFull: true}
	// PresetPolicy decodes recurring weekly schedules, where every
	// non-"yes" code is an outage and half hours keep their precision.
	PresetPolicy = GridPolicy{UnknownAsOutage: true}
)

type slot int

const (
	slotOn slot = iota
	slotFull
	slotFirst
	slotSecond
)

func (p GridPolicy) classify(code string) slot {
	switch code {
	case CodeYes:
		return slotOn
	case CodeNo, CodeMaybe:
		return slotFull
	case CodeFirst:
		return slotFirst
	case CodeSecond:
		return slotSecond
	case CodeMaybeFirst:
		if p.MaybeHalvesAsFull {
			return slotFull
		}
		return slotFirst
	case CodeMaybeSecond:
		if p.MaybeHalvesAsFull {
			return slotFull
		}
		return slotSecond
	}
	if p.UnknownAsOutage {
		return slotFull
	}
	return slotOn
}

// Decode sweeps the 24 hours of g once and returns outage ranges in
// chronological order. Missing hours count as "yes".
func (p GridPolicy) Decode(g Grid) []TimeRange {
	offset := 1
	if _, ok := g["0"]; ok {
		offset = 0
	}
	var hours [24]slot
	for h := range hours {
		code, ok := g[strconv.Itoa(h+offset)]
		if !ok {
			code = CodeYes
		}
		hours[h] = p.classify(code)
	}

	var (
		ranges []TimeRange
		start  TimeOfDay
		open   bool
	)
	for h, s := range hours {
		switch s {
		case slotOn:
			if open {
				ranges = append(ranges, TimeRange{Start: start, End: at(h, 0)})
				open = false
			}
		case slotFull:
			if !open {
				start, open = at(h, 0), true
			}
		case slotFirst:
			if !open {
				start, open = at(h, 0), true
			}
			next := slotOn
			if h < len(hours)-1 {
				next = hours[h+1]
			}
			if next == slotOn || next == slotSecond {
				ranges = append(ranges, TimeRange{Start: start, End: at(h, 30)})
				open = false
			}
		case slotSecond:
			// an outage already open from the previous hour runs through this one
			if !open {
				start, open = at(h, 30), true
			}
		}
	}
	if open {
		ranges = append(ranges, TimeRange{Start: start, End: EndOfDay})
	}
	return ranges
}

// DecodeGrid decodes g with the live policy.
func DecodeGrid(g Grid) []TimeRange { return LivePolicy.Decode(g) }

// Anchor turns ranges into events of type t on the calendar day of day.
func Anchor(ranges []TimeRange, day time.Time, t model.EventType) []model.Event {
	events := make([]model.Event, 0, len(ranges))
	for _, r := range ranges {
		start, end := r.Start.On(day), r.End.On(day)
		if !start.Before(end) {
			continue
		}
		events = append(events, model.Event{Type: t, Start: start, End: end})
	}
	return events
}
