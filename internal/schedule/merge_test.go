package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outage-ingester/internal/model"
)

var base = time.Date(2025, 12, 7, 0, 0, 0, 0, Kyiv)

func ev(t model.EventType, from, to time.Duration) model.Event {
	return model.Event{Type: t, Start: base.Add(from), End: base.Add(to)}
}

func TestMergeEmpty(t *testing.T) {
	got := Merge(nil, HourGridEpsilon)
	require.NotNil(t, got)
	assert.Empty(t, got)
}

func TestMergeEpsilon(t *testing.T) {
	for _, eps := range []time.Duration{MinuteGridEpsilon, HourGridEpsilon} {
		a, b, c := time.Hour, 2*time.Hour, 3*time.Hour

		touching := []model.Event{ev(model.EventDefinite, a, b), ev(model.EventDefinite, b+eps, c)}
		got := Merge(touching, eps)
		require.Len(t, got, 1, eps.String())
		assert.True(t, got[0].Equal(ev(model.EventDefinite, a, c)))

		apart := []model.Event{ev(model.EventDefinite, a, b), ev(model.EventDefinite, b+2*eps, c)}
		assert.Len(t, Merge(apart, eps), 2, eps.String())
	}
}

func TestMergeKeepsTypesApart(t *testing.T) {
	events := []model.Event{
		ev(model.EventDefinite, 0, time.Hour),
		ev(model.EventEmergency, time.Hour, 2*time.Hour),
		ev(model.EventDefinite, 2*time.Hour, 3*time.Hour),
	}
	assert.Equal(t, events, Merge(events, HourGridEpsilon))

	mixed := []model.Event{
		model.NewAllDay(model.EventEmergency, base),
		{Type: model.EventEmergency, Start: base.Add(24 * time.Hour), End: base.Add(25 * time.Hour)},
	}
	assert.Len(t, Merge(mixed, HourGridEpsilon), 2)
}

func TestMergeAllDay(t *testing.T) {
	day1 := model.NewAllDay(model.EventEmergency, base)
	day2 := model.NewAllDay(model.EventEmergency, base.AddDate(0, 0, 1))
	day4 := model.NewAllDay(model.EventEmergency, base.AddDate(0, 0, 3))

	got := Merge([]model.Event{day1, day2, day4}, MinuteGridEpsilon)
	require.Len(t, got, 2)
	assert.Equal(t, day1.Start, got[0].Start)
	assert.Equal(t, day2.End, got[0].End)
	assert.True(t, got[0].AllDay)
	assert.Equal(t, day4, got[1])
}

func TestMergeIdempotent(t *testing.T) {
	events := []model.Event{
		ev(model.EventDefinite, 0, time.Hour),
		ev(model.EventDefinite, time.Hour, 90*time.Minute),
		ev(model.EventDefinite, 80*time.Minute, 2*time.Hour),
		ev(model.EventEmergency, 2*time.Hour, 3*time.Hour),
		ev(model.EventDefinite, 5*time.Hour, 6*time.Hour),
		ev(model.EventDefinite, 6*time.Hour+time.Second, 7*time.Hour),
	}
	once := Merge(events, HourGridEpsilon)
	assert.Equal(t, once, Merge(once, HourGridEpsilon))
	assert.Len(t, once, 3)
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	events := []model.Event{ev(model.EventDefinite, 0, time.Hour), ev(model.EventDefinite, time.Hour, 2*time.Hour)}
	orig := append([]model.Event(nil), events...)
	Merge(events, HourGridEpsilon)
	assert.Equal(t, orig, events)
}

func TestMergeDaySeam(t *testing.T) {
	// 23:00..24:00 on day one followed by 00:00..02:00 on day two
	evening := Anchor([]TimeRange{{Start: at(23, 0), End: EndOfDay}}, base, model.EventDefinite)
	morning := Anchor([]TimeRange{{Start: at(0, 0), End: at(2, 0)}}, base.AddDate(0, 0, 1), model.EventDefinite)

	got := Merge(append(evening, morning...), HourGridEpsilon)
	require.Len(t, got, 1)
	assert.True(t, got[0].Start.Equal(base.Add(23*time.Hour)))
	assert.True(t, got[0].End.Equal(base.Add(26*time.Hour)))
}
