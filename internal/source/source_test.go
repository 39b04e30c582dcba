package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"outage-ingester/internal/config"
	"outage-ingester/internal/util"
)

func TestNewFromConfig(t *testing.T) {
	d := testDeps(day0)
	cases := []struct {
		zone config.Zone
		want Provider
	}{
		{zone: config.Zone{Type: config.TypeDTEKJSON}, want: &DTEKJSON{}},
		{zone: config.Zone{Type: config.TypeDTEKHTML}, want: &DTEKHTML{}},
		{zone: config.Zone{Type: config.TypeYasno}, want: &Yasno{}},
		{zone: config.Zone{Type: config.TypeESvitlo}, want: &ESvitlo{}},
	}
	for _, tc := range cases {
		p, err := NewFromConfig(tc.zone, d)
		require.NoError(t, err, tc.zone.Type)
		assert.IsType(t, tc.want, p)
		assert.Equal(t, tc.zone.Type, p.Name())
	}

	_, err := NewFromConfig(config.Zone{Type: "tesla"}, d)
	assert.ErrorContains(t, err, "unknown provider type")
	_, err = NewFromConfig(config.Zone{}, d)
	assert.Error(t, err)
}

func TestNewFromConfigWithoutTimeout(t *testing.T) {
	page := `{"fact": ` + factJSON("07.12.2025 10:15", map[time.Time]string{day0: scenarioGrid}) + `}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	z := config.Zone{ID: "home", Type: config.TypeDTEKJSON, Group: "1.1", DTEKJSON: config.DTEKJSON{URLs: []string{srv.URL}}}
	p, err := NewFromConfig(z, testDeps(day0.Add(13*time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, defaultJSONTimeout, p.(*DTEKJSON).timeout)
	assert.Equal(t, defaultFreshFor, p.(*DTEKJSON).freshFor)
	require.NoError(t, p.Fetch(context.Background()))
	assert.Len(t, p.Events(day0, day0.Add(24*time.Hour)), 1)

	for _, tc := range []struct {
		zone config.Zone
		got  func(Provider) time.Duration
	}{
		{config.Zone{Type: config.TypeDTEKHTML}, func(p Provider) time.Duration { return p.(*DTEKHTML).timeout }},
		{config.Zone{Type: config.TypeYasno}, func(p Provider) time.Duration { return p.(*Yasno).cfg.Timeout }},
		{config.Zone{Type: config.TypeESvitlo}, func(p Provider) time.Duration { return p.(*ESvitlo).cfg.Timeout }},
	} {
		p, err := NewFromConfig(tc.zone, testDeps(day0))
		require.NoError(t, err)
		assert.Equal(t, defaultPageTimeout, tc.got(p), tc.zone.Type)
	}
}

func TestDepsFetcher(t *testing.T) {
	z := config.Zone{Fixture: "testdata/dtek.json"}
	assert.IsType(t, util.FixtureFetcher{}, Deps{}.fetcher(z, time.Second, false))

	z.RatePerSecond = 5
	assert.IsType(t, &util.RateLimited{}, Deps{}.fetcher(z, time.Second, false))

	override := util.FetcherFunc(func(context.Context, util.Request) ([]byte, error) { return nil, nil })
	assert.IsType(t, override, Deps{Fetcher: override}.fetcher(config.Zone{}, time.Second, true))
	assert.IsType(t, &util.HTTPFetcher{}, Deps{}.fetcher(config.Zone{}, time.Second, true))
}

func TestFixtureZones(t *testing.T) {
	d := testDeps(day0.Add(13 * time.Hour))
	zones := []config.Zone{
		{ID: "json", Type: config.TypeDTEKJSON, Group: "1.1", Fixture: "testdata/dtek.json",
			DTEKJSON: config.DTEKJSON{FreshFor: 48 * time.Hour, Timeout: time.Second}},
		{ID: "html", Type: config.TypeDTEKHTML, Group: "1.1", Fixture: "testdata/shutdowns.html",
			DTEKHTML: config.DTEKHTML{URL: "https://dtek.test/ua/shutdowns", Timeout: time.Second}},
	}
	for _, z := range zones {
		t.Run(z.ID, func(t *testing.T) {
			p, err := NewFromConfig(z, d)
			require.NoError(t, err)
			require.NoError(t, p.Fetch(context.Background()))

			events := p.Events(day0, day0.Add(48*time.Hour))
			require.Len(t, events, 2)
			assert.True(t, events[0].Start.Equal(day0.Add(12*time.Hour+30*time.Minute)))
			assert.True(t, events[1].End.Equal(day0.Add(26*time.Hour)))

			current, ok := p.CurrentEvent(day0.Add(13 * time.Hour))
			require.True(t, ok)
			assert.True(t, current.Equal(events[0]))

			assert.Equal(t, []string{"1.1", "1.2", "2.1"}, p.Groups())
			info := p.Info()
			assert.Equal(t, "dtek", info.ProviderID)
			assert.Equal(t, "1.1", info.Group)
		})
	}

	p, err := NewFromConfig(zones[0], d)
	require.NoError(t, err)
	require.NoError(t, p.Fetch(context.Background()))
	assert.Len(t, p.ScheduledEvents(day0, day0.AddDate(0, 0, 7)), 7)
}
