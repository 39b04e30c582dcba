package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"outage-ingester/internal/clock"
	"outage-ingester/internal/config"
	"outage-ingester/internal/model"
	"outage-ingester/internal/schedule"
	"outage-ingester/internal/store"
	"outage-ingester/internal/util"
)

var (
	ErrMarkerNotFound = errors.New("schedule marker not found in page")
	ErrNotLoggedIn    = errors.New("session is not logged in")
	ErrNoGroup        = errors.New("group could not be determined")
	ErrNoData         = errors.New("no usable payload")
	ErrUnknownRegion  = errors.New("region or provider not found")
)

// Used when the zone config leaves them unset.
const (
	defaultJSONTimeout = 10 * time.Second
	defaultPageTimeout = 60 * time.Second
	defaultFreshFor    = 48 * time.Hour
)

// Provider is the query capability every upstream adapter implements.
// Fetch refreshes state and may fail; the query methods read whatever
// state was last fetched successfully and never fail.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) error
	CurrentEvent(at time.Time) (model.Event, bool)
	Events(start, end time.Time) []model.Event
	ScheduledEvents(start, end time.Time) []model.Event
	UpdatedOn() (time.Time, bool)
	Groups() []string
	Info() Info
}

// Info identifies the upstream behind a provider.
type Info struct {
	Type       string
	ProviderID string
	Name       string
	Region     string
	Group      string
	// ReportsState is false when events carry no usable connectivity state.
	ReportsState bool
}

// Deps are the collaborators shared by all providers.
type Deps struct {
	Log      *zap.Logger
	Clock    clock.Clock
	Location *time.Location
	Regions  *store.RegionCache
	// Fetcher overrides the transport built from the zone config.
	Fetcher util.Fetcher
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Location == nil {
		d.Location = schedule.Kyiv
	}
	if d.Clock == nil {
		d.Clock = clock.System{Location: d.Location}
	}
	if d.Regions == nil {
		d.Regions = store.NewRegionCache(0, d.Clock)
	}
	return d
}

func NewFromConfig(z config.Zone, d Deps) (Provider, error) {
	d = d.withDefaults()
	switch z.Type {
	case config.TypeDTEKJSON:
		return NewDTEKJSON(z, d.fetcher(z, defaultDur(z.DTEKJSON.Timeout, defaultJSONTimeout), false), d), nil
	case config.TypeDTEKHTML:
		return NewDTEKHTML(z, d.fetcher(z, defaultDur(z.DTEKHTML.Timeout, defaultPageTimeout), false), d), nil
	case config.TypeYasno:
		return NewYasno(z, d.fetcher(z, defaultDur(z.Yasno.Timeout, defaultPageTimeout), false), d), nil
	case config.TypeESvitlo:
		return NewESvitlo(z, d.fetcher(z, defaultDur(z.ESvitlo.Timeout, defaultPageTimeout), true), d), nil
	case "":
		return nil, errors.New("provider type is required")
	default:
		return nil, fmt.Errorf("unknown provider type: %s", z.Type)
	}
}

func (d Deps) fetcher(z config.Zone, timeout time.Duration, session bool) util.Fetcher {
	f := d.Fetcher
	switch {
	case f != nil:
	case z.Fixture != "":
		f = util.FixtureFetcher{Path: z.Fixture}
	case session:
		f = util.NewHTTPFetcher(util.NewSessionClient(timeout), z.UserAgent)
	default:
		f = util.NewHTTPFetcher(util.NewHTTPClient(timeout), z.UserAgent)
	}
	return util.NewRateLimited(f, z.RatePerSecond, z.Burst)
}

// currentEvent looks up the event containing at within the next day.
func currentEvent(p Provider, at time.Time, loc *time.Location) (model.Event, bool) {
	return schedule.EventAt(p.Events(at, at.Add(24*time.Hour)), at, loc)
}
