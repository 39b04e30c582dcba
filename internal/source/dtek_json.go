package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"outage-ingester/internal/config"
	"outage-ingester/internal/model"
	"outage-ingester/internal/schedule"
	"outage-ingester/internal/util"
)

type dtekEnvelope struct {
	Fact   *hourGridFact   `json:"fact"`
	Preset *hourGridPreset `json:"preset"`
}

// DTEKJSON reads hour grids from mirrored JSON files, preferring the
// first fresh one.
type DTEKJSON struct {
	zone     config.Zone
	urls     []string
	freshFor time.Duration
	timeout  time.Duration
	f        util.Fetcher
	log      *zap.Logger
	grid     *hourGrid
}

func NewDTEKJSON(z config.Zone, f util.Fetcher, d Deps) *DTEKJSON {
	d = d.withDefaults()
	urls := z.DTEKJSON.URLs
	if len(urls) == 0 && z.Fixture != "" {
		urls = []string{z.Fixture}
	}
	return &DTEKJSON{
		zone:     z,
		urls:     urls,
		freshFor: defaultDur(z.DTEKJSON.FreshFor, defaultFreshFor),
		timeout:  defaultDur(z.DTEKJSON.Timeout, defaultJSONTimeout),
		f:        f,
		log:      d.Log.Named("source.dtek_json").With(zap.String("zone", z.ID)),
		grid: &hourGrid{
			group:  z.Group,
			policy: schedule.GridPolicy{MaybeHalvesAsFull: config.HalvesAsFull(z.DTEKJSON.MaybeHalvesAsFull)},
			loc:    d.Location,
			parser: schedule.NewTimestampParser(d.Location, schedule.Kyiv, d.Log),
			clock:  d.Clock,
		},
	}
}

func (p *DTEKJSON) Name() string { return config.TypeDTEKJSON }

// Fetch tries every URL in order and keeps the first fresh payload. When
// none is fresh the newest payload seen wins, including the one already held.
func (p *DTEKJSON) Fetch(ctx context.Context) error {
	var (
		stale   []*dtekEnvelope
		lastErr error
	)
	for _, u := range p.urls {
		env, err := p.fetchOne(ctx, u)
		if err != nil {
			p.log.Warn("fetch failed, trying next source", zap.String("url", u), zap.Error(err))
			lastErr = err
			continue
		}
		if p.fresh(env.Fact) {
			p.grid.set(env.Fact, env.Preset)
			p.log.Debug("fresh payload", zap.String("url", u), zap.String("update", env.Fact.Update))
			return nil
		}
		p.log.Info("stale payload, trying next source", zap.String("url", u), zap.String("update", env.Fact.Update))
		stale = append(stale, env)
	}

	var best *dtekEnvelope
	for _, env := range stale {
		if best == nil || p.updated(env.Fact).After(p.updated(best.Fact)) {
			best = env
		}
	}
	switch {
	case best != nil && (p.grid.fact == nil || !p.updated(best.Fact).Before(p.updated(p.grid.fact))):
		p.grid.set(best.Fact, best.Preset)
		p.log.Info("no fresh source, using newest stale payload", zap.String("update", best.Fact.Update))
		return nil
	case best != nil:
		p.log.Info("no fresh source, keeping previous payload", zap.String("update", p.grid.fact.Update))
		return nil
	case lastErr != nil:
		return fmt.Errorf("dtek_json: all %d sources failed: %w", len(p.urls), lastErr)
	default:
		return fmt.Errorf("dtek_json: %w", ErrNoData)
	}
}

func (p *DTEKJSON) fetchOne(ctx context.Context, u string) (*dtekEnvelope, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	b, err := p.f.Fetch(ctx, util.Get(u))
	if err != nil {
		return nil, err
	}
	var env dtekEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", snippet(b), err)
	}
	if env.Fact == nil {
		return nil, fmt.Errorf("payload has no fact block: %w", ErrNoData)
	}
	return &env, nil
}

// fresh compares the payload age in whole days with freshFor.
func (p *DTEKJSON) fresh(f *hourGridFact) bool {
	t, ok := p.grid.parser.Parse(f.Update)
	if !ok {
		return false
	}
	age := p.grid.clock.Now().Sub(t)
	return age.Truncate(24*time.Hour) <= p.freshFor
}

func (p *DTEKJSON) updated(f *hourGridFact) time.Time {
	t, _ := p.grid.parser.Parse(f.Update)
	return t
}

func (p *DTEKJSON) CurrentEvent(at time.Time) (model.Event, bool) {
	return currentEvent(p, at, p.grid.loc)
}

func (p *DTEKJSON) Events(start, end time.Time) []model.Event { return p.grid.events(start, end) }

func (p *DTEKJSON) ScheduledEvents(start, end time.Time) []model.Event {
	return p.grid.scheduled(start, end)
}

func (p *DTEKJSON) UpdatedOn() (time.Time, bool) { return p.grid.updatedOn() }
func (p *DTEKJSON) Groups() []string             { return p.grid.groups() }

func (p *DTEKJSON) Info() Info {
	return Info{Type: p.Name(), ProviderID: "dtek", Name: "ДТЕК", Group: p.zone.Group, ReportsState: true}
}
