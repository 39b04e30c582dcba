package source

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"outage-ingester/internal/config"
	"outage-ingester/internal/model"
	"outage-ingester/internal/schedule"
	"outage-ingester/internal/store"
	"outage-ingester/internal/util"
)

const (
	dtekFullName  = "ДТЕК КИЇВСЬКІ ЕЛЕКТРОМЕРЕЖІ"
	dtekShortName = "ДТЕК"
	minutesPerDay = 24 * 60
)

// SimplifyProviderName shortens operator names that are too long for labels.
func SimplifyProviderName(name string) string {
	if strings.Contains(strings.ToUpper(name), dtekFullName) {
		return dtekShortName
	}
	return name
}

type yasnoSlot struct {
	Start int             `json:"start"`
	End   int             `json:"end"`
	Type  model.EventType `json:"type"`
}

type yasnoDay struct {
	Slots  []yasnoSlot     `json:"slots"`
	Date   string          `json:"date"`
	Status model.DayStatus `json:"status"`
}

// yasnoGroup is one group's block: "today", "tomorrow" and "updatedOn".
type yasnoGroup struct {
	Days      []yasnoDay
	UpdatedOn string
}

func (g *yasnoGroup) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == "updatedOn" {
			g.UpdatedOn = rawString(raw[k])
			continue
		}
		var d yasnoDay
		if err := json.Unmarshal(raw[k], &d); err != nil || d.Date == "" {
			continue
		}
		g.Days = append(g.Days, d)
	}
	return nil
}

// Yasno reads minute-slot schedules for one region/operator/group.
type Yasno struct {
	zone    config.Zone
	cfg     config.Yasno
	f       util.Fetcher
	log     *zap.Logger
	loc     *time.Location
	parser  *schedule.TimestampParser
	regions *store.RegionCache

	regionID, dsoID int
	regionName      string
	dsoName         string
	data            map[string]yasnoGroup
}

func NewYasno(z config.Zone, f util.Fetcher, d Deps) *Yasno {
	d = d.withDefaults()
	z.Yasno.Timeout = defaultDur(z.Yasno.Timeout, defaultPageTimeout)
	return &Yasno{
		zone:       z,
		cfg:        z.Yasno,
		f:          f,
		log:        d.Log.Named("source.yasno").With(zap.String("zone", z.ID)),
		loc:        d.Location,
		parser:     schedule.NewTimestampParser(d.Location, schedule.Kyiv, d.Log),
		regions:    d.Regions,
		regionID:   z.Yasno.RegionID,
		dsoID:      z.Yasno.DSOID,
		regionName: z.Yasno.Region,
		dsoName:    z.Yasno.Provider,
	}
}

func (p *Yasno) Name() string { return config.TypeYasno }

func (p *Yasno) Fetch(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.resolve(ctx); err != nil {
		p.log.Warn("cannot resolve region and provider", zap.Error(err))
		return fmt.Errorf("yasno: %w", err)
	}
	u := strings.NewReplacer(
		"{region_id}", strconv.Itoa(p.regionID),
		"{dso_id}", strconv.Itoa(p.dsoID),
	).Replace(p.cfg.OutagesURL)
	b, err := p.f.Fetch(ctx, util.Get(u))
	if err != nil {
		p.log.Warn("fetch failed, keeping previous schedule", zap.String("url", u), zap.Error(err))
		return fmt.Errorf("yasno: %w", err)
	}
	var data map[string]yasnoGroup
	if err := json.Unmarshal(b, &data); err != nil {
		p.log.Warn("malformed planned outages payload", zap.String("payload", snippet(b)), zap.Error(err))
		return fmt.Errorf("yasno: decode: %w", err)
	}
	p.data = data
	p.log.Debug("planned outages fetched", zap.Int("groups", len(data)))
	return nil
}

// resolve fills region and operator ids and names via the shared catalogue.
// Configured ids are enough to fetch even when the catalogue is unavailable.
func (p *Yasno) resolve(ctx context.Context) error {
	known := p.regionID != 0 && p.dsoID != 0
	if known && p.regionName != "" && p.dsoName != "" {
		return nil
	}
	regions, err := p.regions.Get(ctx, p.loadRegions)
	if len(regions) == 0 {
		if known {
			return nil
		}
		if err == nil {
			err = fmt.Errorf("%w: empty region catalogue", ErrUnknownRegion)
		}
		return err
	}
	for _, r := range regions {
		if (p.regionID != 0 && r.ID != p.regionID) || (p.regionID == 0 && r.Name != p.regionName) {
			continue
		}
		for _, dso := range r.DSOs {
			if (p.dsoID != 0 && dso.ID == p.dsoID) || (p.dsoID == 0 && dso.Name == p.dsoName) {
				p.regionID, p.regionName = r.ID, r.Name
				p.dsoID, p.dsoName = dso.ID, dso.Name
				p.log.Info("resolved region", zap.Int("region_id", r.ID), zap.Int("dso_id", dso.ID))
				return nil
			}
		}
	}
	if known {
		return nil
	}
	// reload the catalogue next cycle
	p.regions.Invalidate()
	return fmt.Errorf("%w: region %q provider %q", ErrUnknownRegion, p.regionName, p.dsoName)
}

func (p *Yasno) loadRegions(ctx context.Context) ([]model.Region, error) {
	b, err := p.f.Fetch(ctx, util.Get(p.cfg.RegionsURL))
	if err != nil {
		return nil, err
	}
	var regions []model.Region
	if err := json.Unmarshal(b, &regions); err != nil {
		return nil, fmt.Errorf("decode regions: %w", err)
	}
	return regions, nil
}

func (p *Yasno) group() (yasnoGroup, bool) {
	g, ok := p.data[p.zone.Group]
	return g, ok
}

// dayAnchor is local midnight of the day a block describes.
func (p *Yasno) dayAnchor(d yasnoDay) (time.Time, bool) {
	t, ok := p.parser.Parse(d.Date)
	if !ok {
		return time.Time{}, false
	}
	y, m, day := t.In(p.loc).Date()
	return time.Date(y, m, day, 0, 0, 0, 0, p.loc), true
}

// slotEvents keeps Definite slots. Minute 1440 is the next midnight.
func slotEvents(d yasnoDay, day time.Time, t model.EventType) []model.Event {
	var out []model.Event
	y, m, dd := day.Date()
	for _, s := range d.Slots {
		if s.Type != model.EventDefinite || s.Start < 0 || s.End > minutesPerDay || s.Start >= s.End {
			continue
		}
		out = append(out, model.Event{
			Type:  t,
			Start: time.Date(y, m, dd, 0, s.Start, 0, 0, day.Location()),
			End:   time.Date(y, m, dd, 0, s.End, 0, 0, day.Location()),
		})
	}
	return out
}

func (p *Yasno) CurrentEvent(at time.Time) (model.Event, bool) { return currentEvent(p, at, p.loc) }

func (p *Yasno) Events(start, end time.Time) []model.Event {
	g, ok := p.group()
	if !ok {
		return []model.Event{}
	}
	var raw []model.Event
	for _, d := range g.Days {
		day, ok := p.dayAnchor(d)
		if !ok {
			continue
		}
		switch d.Status {
		case model.StatusScheduleApplies:
			raw = append(raw, slotEvents(d, day, model.EventDefinite)...)
		case model.StatusEmergencyShutdowns:
			raw = append(raw, model.NewAllDay(model.EventEmergency, day))
		}
	}
	return schedule.Window(raw, start, end, schedule.MinuteGridEpsilon, p.loc)
}

// ScheduledEvents decodes days still waiting for confirmation.
func (p *Yasno) ScheduledEvents(start, end time.Time) []model.Event {
	g, ok := p.group()
	if !ok {
		return []model.Event{}
	}
	var raw []model.Event
	for _, d := range g.Days {
		if d.Status != model.StatusWaitingForSchedule {
			continue
		}
		if day, ok := p.dayAnchor(d); ok {
			raw = append(raw, slotEvents(d, day, model.EventScheduled)...)
		}
	}
	return schedule.Window(raw, start, end, schedule.MinuteGridEpsilon, p.loc)
}

func (p *Yasno) UpdatedOn() (time.Time, bool) {
	g, ok := p.group()
	if !ok {
		return time.Time{}, false
	}
	return p.parser.Parse(g.UpdatedOn)
}

func (p *Yasno) Groups() []string {
	out := make([]string, 0, len(p.data))
	for k := range p.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (p *Yasno) Info() Info {
	return Info{
		Type:         p.Name(),
		ProviderID:   strconv.Itoa(p.dsoID),
		Name:         SimplifyProviderName(p.dsoName),
		Region:       p.regionName,
		Group:        p.zone.Group,
		ReportsState: true,
	}
}
