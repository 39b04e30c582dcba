package source

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"outage-ingester/internal/clock"
	"outage-ingester/internal/model"
	"outage-ingester/internal/schedule"
)

const groupPrefix = "GPV"

// hourGridFact is the live hour-grid payload:
//
//	{"data": {"<day epoch>": {"GPV1.1": {"1": "yes", ..., "24": "no"}}},
//	 "update": "07.12.2025 10:15"}
type hourGridFact struct {
	Data   map[string]map[string]schedule.Grid `json:"data"`
	Update string                              `json:"update"`
}

// hourGridPreset is the recurring weekly schedule, keyed by group and
// ISO weekday "1" (Monday) .. "7".
type hourGridPreset struct {
	Data map[string]map[string]schedule.Grid `json:"data"`
}

// hourGrid owns decoding for the two DTEK payload flavours.
type hourGrid struct {
	group  string
	policy schedule.GridPolicy
	loc    *time.Location
	parser *schedule.TimestampParser
	clock  clock.Clock

	fact   *hourGridFact
	preset *hourGridPreset
}

func (g *hourGrid) set(fact *hourGridFact, preset *hourGridPreset) {
	g.fact = fact
	g.preset = preset
}

func (g *hourGrid) groupKey() string { return groupPrefix + g.group }

func (g *hourGrid) events(start, end time.Time) []model.Event {
	if g.fact == nil || g.group == "" {
		return []model.Event{}
	}
	var raw []model.Event
	for key, groups := range g.fact.Data {
		grid, ok := groups[g.groupKey()]
		if !ok {
			continue
		}
		day, ok := g.parser.Parse(key)
		if !ok {
			continue
		}
		raw = append(raw, schedule.Anchor(g.policy.Decode(grid), day.In(g.loc), model.EventDefinite)...)
	}
	return schedule.Window(raw, start, end, schedule.HourGridEpsilon, g.loc)
}

// scheduled expands the weekly preset over the seven days starting today.
func (g *hourGrid) scheduled(start, end time.Time) []model.Event {
	if g.preset == nil || g.group == "" {
		return []model.Event{}
	}
	week := g.preset.Data[g.groupKey()]
	today := g.clock.Now().In(g.loc)
	y, m, d := today.Date()
	var raw []model.Event
	for ahead := 0; ahead < 7; ahead++ {
		dayStart := time.Date(y, m, d+ahead, 0, 0, 0, 0, g.loc)
		dayEnd := time.Date(y, m, d+ahead+1, 0, 0, 0, 0, g.loc)
		if !dayEnd.After(start) || !dayStart.Before(end) {
			continue
		}
		grid, ok := week[strconv.Itoa(isoWeekday(dayStart))]
		if !ok {
			continue
		}
		raw = append(raw, schedule.Anchor(schedule.PresetPolicy.Decode(grid), dayStart, model.EventScheduled)...)
	}
	return schedule.Window(raw, start, end, schedule.HourGridEpsilon, g.loc)
}

func isoWeekday(t time.Time) int {
	if wd := t.Weekday(); wd != time.Sunday {
		return int(wd)
	}
	return 7
}

func (g *hourGrid) updatedOn() (time.Time, bool) {
	if g.fact == nil {
		return time.Time{}, false
	}
	return g.parser.Parse(g.fact.Update)
}

// groups lists the groups of the earliest day, without the GPV prefix.
func (g *hourGrid) groups() []string {
	if g.fact == nil {
		return []string{}
	}
	var (
		first time.Time
		day   map[string]schedule.Grid
	)
	for key, groups := range g.fact.Data {
		t, ok := g.parser.Parse(key)
		if !ok {
			continue
		}
		if day == nil || t.Before(first) {
			first, day = t, groups
		}
	}
	out := make([]string, 0, len(day))
	for k := range day {
		out = append(out, strings.TrimPrefix(k, groupPrefix))
	}
	sort.Strings(out)
	return out
}
