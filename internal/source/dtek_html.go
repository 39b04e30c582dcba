package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"go.uber.org/zap"

	"outage-ingester/internal/config"
	"outage-ingester/internal/model"
	"outage-ingester/internal/schedule"
	"outage-ingester/internal/util"
)

const defaultBrowserUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

var factMarker = regexp.MustCompile(`(?s)DisconSchedule\.fact\s*=\s*(\{.*?\})</script>`)

// extractFact pulls the schedule JSON embedded in the shutdowns page.
func extractFact(page []byte) ([]byte, error) {
	m := factMarker.FindSubmatch(page)
	if m == nil {
		return nil, ErrMarkerNotFound
	}
	return m[1], nil
}

// DTEKHTML scrapes the hour grid from the operator's shutdowns page.
type DTEKHTML struct {
	zone    config.Zone
	url     string
	ua      string
	timeout time.Duration
	f       util.Fetcher
	log     *zap.Logger
	grid    *hourGrid
}

func NewDTEKHTML(z config.Zone, f util.Fetcher, d Deps) *DTEKHTML {
	d = d.withDefaults()
	return &DTEKHTML{
		zone:    z,
		url:     z.DTEKHTML.URL,
		ua:      firstNonEmpty(z.DTEKHTML.UserAgent, z.UserAgent, defaultBrowserUA),
		timeout: defaultDur(z.DTEKHTML.Timeout, defaultPageTimeout),
		f:       f,
		log:     d.Log.Named("source.dtek_html").With(zap.String("zone", z.ID)),
		grid: &hourGrid{
			group:  z.Group,
			policy: schedule.GridPolicy{MaybeHalvesAsFull: config.HalvesAsFull(z.DTEKHTML.MaybeHalvesAsFull)},
			loc:    d.Location,
			parser: schedule.NewTimestampParser(d.Location, schedule.Kyiv, d.Log),
			clock:  d.Clock,
		},
	}
}

func (p *DTEKHTML) Name() string { return config.TypeDTEKHTML }

func (p *DTEKHTML) Fetch(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req := util.Get(p.url)
	req.Header = http.Header{
		"User-Agent":      {p.ua},
		"Accept":          {"text/html,application/xhtml+xml"},
		"Accept-Language": {"uk-UA,uk;q=0.9"},
	}
	page, err := p.f.Fetch(ctx, req)
	if err != nil {
		p.log.Warn("fetch failed, keeping previous schedule", zap.String("url", p.url), zap.Error(err))
		return fmt.Errorf("dtek_html: %w", err)
	}
	raw, err := extractFact(page)
	if err != nil {
		p.log.Error("DisconSchedule.fact not found in page: the request may be filtered as a bot or the service is down",
			zap.String("url", p.url), zap.Int("bytes", len(page)))
		return fmt.Errorf("dtek_html: %w", err)
	}
	var fact hourGridFact
	if err := json.Unmarshal(raw, &fact); err != nil {
		p.log.Warn("malformed DisconSchedule.fact", zap.String("payload", snippet(raw)), zap.Error(err))
		return fmt.Errorf("dtek_html: decode fact: %w", err)
	}
	p.grid.set(&fact, nil)
	return nil
}

func (p *DTEKHTML) CurrentEvent(at time.Time) (model.Event, bool) {
	return currentEvent(p, at, p.grid.loc)
}

func (p *DTEKHTML) Events(start, end time.Time) []model.Event { return p.grid.events(start, end) }

// ScheduledEvents is empty: the page carries no weekly preset.
func (p *DTEKHTML) ScheduledEvents(start, end time.Time) []model.Event {
	return p.grid.scheduled(start, end)
}

func (p *DTEKHTML) UpdatedOn() (time.Time, bool) { return p.grid.updatedOn() }
func (p *DTEKHTML) Groups() []string             { return p.grid.groups() }

func (p *DTEKHTML) Info() Info {
	return Info{Type: p.Name(), ProviderID: "dtek", Name: "ДТЕК", Group: p.zone.Group, ReportsState: true}
}
