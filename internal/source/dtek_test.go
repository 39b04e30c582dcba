package source

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"outage-ingester/internal/clock"
	"outage-ingester/internal/config"
	"outage-ingester/internal/model"
	"outage-ingester/internal/schedule"
	"outage-ingester/internal/util"
)

// Sunday.
var day0 = time.Date(2025, 12, 7, 0, 0, 0, 0, schedule.Kyiv)

const scenarioGrid = `{"1":"yes","2":"yes","3":"yes","4":"yes","5":"yes","6":"yes","7":"yes","8":"yes",
"9":"yes","10":"yes","11":"yes","12":"yes","13":"second","14":"no","15":"no","16":"no","17":"first",
"18":"yes","19":"yes","20":"yes","21":"yes","22":"yes","23":"yes","24":"yes"}`

func factJSON(update string, days map[time.Time]string) string {
	var parts []string
	for d, grid := range days {
		parts = append(parts, fmt.Sprintf(`"%d": {"GPV1.1": %s, "GPV1.2": {"1": "no"}}`, d.Unix(), grid))
	}
	return fmt.Sprintf(`{"data": {%s}, "update": %q, "today": %d}`, strings.Join(parts, ","), update, day0.Unix())
}

func byURL(pages map[string]string) util.FetcherFunc {
	return func(_ context.Context, req util.Request) ([]byte, error) {
		if b, ok := pages[req.URL]; ok {
			return []byte(b), nil
		}
		return nil, &util.StatusError{Code: 404}
	}
}

func testDeps(now time.Time) Deps {
	return Deps{Log: zap.NewNop(), Clock: clock.NewFixed(now), Location: schedule.Kyiv}
}

func dtekJSONZone(urls ...string) config.Zone {
	return config.Zone{
		ID: "home", Type: config.TypeDTEKJSON, Group: "1.1",
		DTEKJSON: config.DTEKJSON{URLs: urls, FreshFor: 48 * time.Hour, Timeout: time.Second},
	}
}

func TestDTEKJSONScenario(t *testing.T) {
	page := `{"fact": ` + factJSON("07.12.2025 10:15", map[time.Time]string{day0: scenarioGrid}) + `}`
	p := NewDTEKJSON(dtekJSONZone("u1"), byURL(map[string]string{"u1": page}), testDeps(day0.Add(11*time.Hour)))
	require.NoError(t, p.Fetch(context.Background()))

	events := p.Events(day0, day0.Add(24*time.Hour))
	require.Len(t, events, 1)
	assert.Equal(t, model.EventDefinite, events[0].Type)
	assert.True(t, events[0].Start.Equal(day0.Add(12*time.Hour+30*time.Minute)))
	assert.True(t, events[0].End.Equal(day0.Add(16*time.Hour+30*time.Minute)))

	got, ok := p.CurrentEvent(day0.Add(14 * time.Hour))
	require.True(t, ok)
	assert.True(t, got.Equal(events[0]))
	_, ok = p.CurrentEvent(day0.Add(16*time.Hour + 30*time.Minute))
	assert.False(t, ok)

	updated, ok := p.UpdatedOn()
	require.True(t, ok)
	assert.True(t, updated.Equal(day0.Add(10*time.Hour+15*time.Minute)))
	assert.Equal(t, []string{"1.1", "1.2"}, p.Groups())
	assert.Empty(t, p.ScheduledEvents(day0, day0.Add(24*time.Hour)))
}

func TestDTEKJSONMergesAcrossMidnight(t *testing.T) {
	evening := `{"22": "no", "23": "no", "24": "no"}`
	morning := `{"1": "no", "2": "no", "3": "yes"}`
	day1 := day0.AddDate(0, 0, 1)
	page := `{"fact": ` + factJSON("07.12.2025 10:15", map[time.Time]string{day0: evening, day1: morning}) + `}`
	p := NewDTEKJSON(dtekJSONZone("u1"), byURL(map[string]string{"u1": page}), testDeps(day0))
	require.NoError(t, p.Fetch(context.Background()))

	events := p.Events(day0, day0.Add(48*time.Hour))
	require.Len(t, events, 1)
	assert.True(t, events[0].Start.Equal(day0.Add(21*time.Hour)))
	assert.True(t, events[0].End.Equal(day1.Add(2*time.Hour)))
}

func TestDTEKJSONFreshness(t *testing.T) {
	now := day0.Add(12 * time.Hour)
	stale := `{"fact": ` + factJSON("01.12.2025 09:00", map[time.Time]string{day0: `{"5": "no"}`}) + `}`
	older := `{"fact": ` + factJSON("20.11.2025 09:00", map[time.Time]string{day0: `{"8": "no"}`}) + `}`
	fresh := `{"fact": ` + factJSON("07.12.2025 09:00", map[time.Time]string{day0: scenarioGrid}) + `}`

	t.Run("first fresh source wins", func(t *testing.T) {
		p := NewDTEKJSON(dtekJSONZone("stale", "fresh"), byURL(map[string]string{"stale": stale, "fresh": fresh}), testDeps(now))
		require.NoError(t, p.Fetch(context.Background()))
		u, _ := p.UpdatedOn()
		assert.Equal(t, 9, u.Hour())
		assert.Equal(t, 7, u.Day())
	})

	t.Run("newest stale is the fallback", func(t *testing.T) {
		p := NewDTEKJSON(dtekJSONZone("older", "down", "stale"), byURL(map[string]string{"older": older, "stale": stale}), testDeps(now))
		require.NoError(t, p.Fetch(context.Background()))
		u, _ := p.UpdatedOn()
		assert.Equal(t, 1, u.Day())
	})

	t.Run("two whole days still count as fresh", func(t *testing.T) {
		p := NewDTEKJSON(dtekJSONZone("a"), byURL(map[string]string{"a": `{"fact": ` + factJSON("05.12.2025 00:30", nil) + `}`}), testDeps(now))
		assert.True(t, p.fresh(&hourGridFact{Update: "05.12.2025 00:30"}))
		assert.False(t, p.fresh(&hourGridFact{Update: "04.12.2025 11:00"}))
		assert.False(t, p.fresh(&hourGridFact{Update: "garbage"}))
	})

	t.Run("failures keep the retained payload", func(t *testing.T) {
		pages := map[string]string{"a": fresh}
		p := NewDTEKJSON(dtekJSONZone("a"), byURL(pages), testDeps(now))
		require.NoError(t, p.Fetch(context.Background()))
		delete(pages, "a")

		err := p.Fetch(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, util.ErrStatus)
		assert.Len(t, p.Events(day0, day0.Add(24*time.Hour)), 1)
	})

	t.Run("retained payload beats an older stale one", func(t *testing.T) {
		pages := map[string]string{"a": stale}
		p := NewDTEKJSON(dtekJSONZone("a"), byURL(pages), testDeps(now))
		require.NoError(t, p.Fetch(context.Background()))
		pages["a"] = older
		require.NoError(t, p.Fetch(context.Background()))
		u, _ := p.UpdatedOn()
		assert.Equal(t, 1, u.Day())
	})
}

func TestDTEKJSONMalformed(t *testing.T) {
	p := NewDTEKJSON(dtekJSONZone("a", "b"), byURL(map[string]string{"a": `{"fact": [`, "b": `{"other": {}}`}), testDeps(day0))
	err := p.Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoData)
	assert.Empty(t, p.Events(day0, day0.Add(24*time.Hour)))
	_, ok := p.UpdatedOn()
	assert.False(t, ok)
	assert.Empty(t, p.Groups())
}

func TestDTEKJSONPreset(t *testing.T) {
	preset := `"preset": {"data": {"GPV1.1": {"7": {"10": "no"}, "1": {"2": "mfirst"}, "3": {"5": "maybe"}}}}`
	page := `{"fact": ` + factJSON("07.12.2025 09:00", nil) + `, ` + preset + `}`
	p := NewDTEKJSON(dtekJSONZone("u"), byURL(map[string]string{"u": page}), testDeps(day0.Add(8*time.Hour)))
	require.NoError(t, p.Fetch(context.Background()))

	got := p.ScheduledEvents(day0, day0.Add(48*time.Hour))
	require.Len(t, got, 2)
	for _, e := range got {
		assert.Equal(t, model.EventScheduled, e.Type)
	}
	// Sunday 09:00-10:00, then Monday 01:00-01:30 with half-hour precision kept
	assert.True(t, got[0].Start.Equal(day0.Add(9*time.Hour)))
	assert.True(t, got[0].End.Equal(day0.Add(10*time.Hour)))
	assert.True(t, got[1].Start.Equal(day0.Add(25*time.Hour)))
	assert.True(t, got[1].End.Equal(day0.Add(25*time.Hour+30*time.Minute)))

	week := p.ScheduledEvents(day0, day0.AddDate(0, 0, 7))
	require.Len(t, week, 3)
	// Wednesday
	assert.True(t, week[2].Start.Equal(day0.AddDate(0, 0, 3).Add(4*time.Hour)))
}

func TestDTEKJSONHalfHourPolicy(t *testing.T) {
	page := `{"fact": ` + factJSON("07.12.2025 09:00", map[time.Time]string{day0: `{"9": "mfirst"}`}) + `}`
	z := dtekJSONZone("u")
	keep := false
	z.DTEKJSON.MaybeHalvesAsFull = &keep
	p := NewDTEKJSON(z, byURL(map[string]string{"u": page}), testDeps(day0))
	require.NoError(t, p.Fetch(context.Background()))
	events := p.Events(day0, day0.Add(24*time.Hour))
	require.Len(t, events, 1)
	assert.Equal(t, 30*time.Minute, events[0].End.Sub(events[0].Start))

	full := NewDTEKJSON(dtekJSONZone("u"), byURL(map[string]string{"u": page}), testDeps(day0))
	require.NoError(t, full.Fetch(context.Background()))
	events = full.Events(day0, day0.Add(24*time.Hour))
	require.Len(t, events, 1)
	assert.Equal(t, time.Hour, events[0].End.Sub(events[0].Start))
}

func htmlPage(fact string) string {
	return `<html><head><script>var x = 1;</script></head><body>
<script>
  DisconSchedule.fact = ` + fact + `</script>
<script>DisconSchedule.other = {"a": 1}</script></body></html>`
}

func TestExtractFact(t *testing.T) {
	raw, err := extractFact([]byte(htmlPage(`{"data": {}, "update": "07.12.2025 10:15"}`)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"data": {}, "update": "07.12.2025 10:15"}`, string(raw))

	_, err = extractFact([]byte("<html>Access denied</html>"))
	assert.ErrorIs(t, err, ErrMarkerNotFound)
}

func TestDTEKHTML(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	d := testDeps(day0)
	d.Log = zap.New(core)
	z := config.Zone{ID: "kyiv", Type: config.TypeDTEKHTML, Group: "1.1", DTEKHTML: config.DTEKHTML{URL: "page", Timeout: time.Second}}

	body := htmlPage(factJSON("07.12.2025 10:15", map[time.Time]string{day0: scenarioGrid}))
	var gotUA string
	f := util.FetcherFunc(func(_ context.Context, req util.Request) ([]byte, error) {
		gotUA = req.Header.Get("User-Agent")
		return []byte(body), nil
	})
	p := NewDTEKHTML(z, f, d)
	require.NoError(t, p.Fetch(context.Background()))
	assert.Equal(t, defaultBrowserUA, gotUA)
	require.Len(t, p.Events(day0, day0.Add(24*time.Hour)), 1)

	body = "<html><body>Please enable JavaScript</body></html>"
	err := p.Fetch(context.Background())
	require.ErrorIs(t, err, ErrMarkerNotFound)
	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "bot")
	// stale schedule retained
	assert.Len(t, p.Events(day0, day0.Add(24*time.Hour)), 1)

	body = htmlPage(`{"data": [}`)
	err = p.Fetch(context.Background())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMarkerNotFound))
	assert.Equal(t, 1, logs.FilterMessage("malformed DisconSchedule.fact").Len())
	assert.Empty(t, p.ScheduledEvents(day0, day0.Add(24*time.Hour)))
}

func TestIsoWeekday(t *testing.T) {
	for i := 0; i < 7; i++ {
		d := day0.AddDate(0, 0, i)
		want := 7
		if i > 0 {
			want = i
		}
		assert.Equal(t, want, isoWeekday(d), strconv.Itoa(i))
	}
}
