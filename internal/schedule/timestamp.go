package schedule

import (
	"math"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
)

// Kyiv is the zone upstream providers use for naive timestamps.
var Kyiv = mustLoad("Europe/Kyiv")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

const (
	LayoutDayFirst  = "02.01.2006 15:04"
	LayoutTimeFirst = "15:04 02.01.2006"
	LayoutDate      = "02.01.2006"
)

// Unix seconds of 0001-01-01 and 9999-12-31T23:59:59, the range a calendar can show.
const (
	minEpoch = -62135596800
	maxEpoch = 253402300799
)

var isoOffsetLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z0700",
}

var isoNaiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// TimestampParser turns upstream timestamp text into instants in Local.
// Naive values (no offset) are read in Naive.
type TimestampParser struct {
	Local *time.Location
	Naive *time.Location
	log   *zap.Logger
}

func NewTimestampParser(local, naive *time.Location, log *zap.Logger) *TimestampParser {
	if local == nil {
		local = time.Local
	}
	if naive == nil {
		naive = Kyiv
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TimestampParser{Local: local, Naive: naive, log: log}
}

// Parse tries epoch seconds, ISO-8601, "DD.MM.YYYY HH:MM" and
// "HH:MM DD.MM.YYYY", in that order. It never fails loudly: ok is false
// when no form matched.
func (p *TimestampParser) Parse(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, ok := parseEpoch(s); ok {
		return t.In(p.Local), true
	}
	for _, layout := range isoOffsetLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(p.Local), true
		}
	}
	for _, layout := range isoNaiveLayouts {
		if t, err := time.ParseInLocation(layout, s, p.Naive); err == nil {
			return t.In(p.Local), true
		}
	}
	for _, layout := range []string{LayoutDayFirst, LayoutTimeFirst} {
		if t, err := time.ParseInLocation(layout, s, p.Naive); err == nil {
			return t.In(p.Local), true
		}
	}
	p.log.Debug("unparseable timestamp", zap.String("value", s))
	return time.Time{}, false
}

func parseEpoch(s string) (time.Time, bool) {
	if !strings.ContainsAny(s[:1], "0123456789-") {
		return time.Time{}, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	if f < minEpoch || f > maxEpoch {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))), true
}
