package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"outage-ingester/internal/clock"
	"outage-ingester/internal/metrics"
	"outage-ingester/internal/model"
	"outage-ingester/internal/sink"
	"outage-ingester/internal/source"
	"outage-ingester/internal/store"
	"outage-ingester/internal/translate"
)

var ErrUnknownZone = errors.New("unknown zone")

// zone is one configured provider plus its change tracking. mu serializes
// the poll cycle; queries take the read side.
type zone struct {
	id       string
	mu       sync.RWMutex
	provider source.Provider
	tracker  *store.ChangeTracker

	lastFetch time.Time
	lastErr   error
}

type Options struct {
	Log       *zap.Logger
	Clock     clock.Clock
	Location  *time.Location
	Lookahead time.Duration
	Bus       *sink.Bus
	Metrics   *metrics.Metrics
	Names     *translate.Table
}

// Coordinator polls every zone and answers the host-facing queries.
type Coordinator struct {
	opts  Options
	log   *zap.Logger
	zones []*zone
	byID  map[string]*zone
}

func New(opts Options) *Coordinator {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{Location: opts.Location}
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = 24 * time.Hour
	}
	if opts.Bus == nil {
		opts.Bus = sink.NewBus(opts.Log)
	}
	if opts.Names == nil {
		opts.Names = translate.New(nil, opts.Log)
	}
	return &Coordinator{opts: opts, log: opts.Log.Named("coordinator"), byID: map[string]*zone{}}
}

// Add registers a provider under a unique zone id.
func (c *Coordinator) Add(id string, p source.Provider) error {
	if _, dup := c.byID[id]; dup {
		return fmt.Errorf("zone %q: duplicate id", id)
	}
	z := &zone{id: id, provider: p, tracker: store.NewChangeTracker(c.opts.Clock, c.opts.Location)}
	c.zones = append(c.zones, z)
	c.byID[id] = z
	return nil
}

// ZoneIDs lists zones in registration order.
func (c *Coordinator) ZoneIDs() []string {
	out := make([]string, 0, len(c.zones))
	for _, z := range c.zones {
		out = append(out, z.id)
	}
	return out
}

// RunOnce polls all zones concurrently. Every zone runs to completion;
// the first failure is returned.
func (c *Coordinator) RunOnce(ctx context.Context) error {
	start := time.Now()
	var g errgroup.Group
	for _, z := range c.zones {
		z := z
		g.Go(func() error { return c.refresh(ctx, z) })
	}
	err := g.Wait()
	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveCycle(time.Since(start))
	}
	c.log.Debug("cycle finished", zap.Int("zones", len(c.zones)), zap.Duration("took", time.Since(start)))
	return err
}

// refresh is one zone's cycle: fetch, window, compare, notify.
func (c *Coordinator) refresh(ctx context.Context, z *zone) error {
	n, err := c.update(ctx, z)
	if err != nil {
		return err
	}
	if n == nil {
		return nil
	}
	if err := c.opts.Bus.Publish(ctx, *n); err != nil {
		c.log.Warn("notification delivery failed", zap.String("zone", z.id), zap.Error(err))
	}
	return nil
}

func (c *Coordinator) update(ctx context.Context, z *zone) (*model.Notification, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	log := c.log.With(zap.String("zone", z.id))
	started := time.Now()
	err := z.provider.Fetch(ctx)
	now := c.opts.Clock.Now()
	if c.opts.Metrics != nil {
		c.opts.Metrics.ObserveFetch(z.id, z.provider.Name(), time.Since(started), now, err)
	}
	z.lastErr = err
	if err != nil {
		log.Warn("fetch failed, serving previous schedule", zap.Error(err))
		return nil, fmt.Errorf("zone %s: %w", z.id, err)
	}
	z.lastFetch = now

	events := z.provider.Events(now, now.Add(c.opts.Lookahead))
	if c.opts.Metrics != nil {
		counts := map[string]int{}
		for _, e := range events {
			counts[string(e.Type)]++
		}
		c.opts.Metrics.SetEvents(z.id, counts)
		if u, ok := z.provider.UpdatedOn(); ok {
			c.opts.Metrics.SetUpdatedOn(z.id, u)
		}
	}
	log.Debug("fetched", zap.Int("events", len(events)))

	if !z.tracker.Check(events) {
		return nil, nil
	}
	changed, _ := z.tracker.LastChanged()
	if c.opts.Metrics != nil {
		c.opts.Metrics.DataChanged(z.id)
	}
	info := z.provider.Info()
	n := &model.Notification{
		Name:           model.EventDataChanged,
		ZoneID:         z.id,
		ProviderID:     info.ProviderID,
		ProviderType:   info.Type,
		Region:         info.Region,
		Group:          info.Group,
		LastDataChange: changed,
		CorrelationID:  uuid.NewString(),
	}
	log.Info("schedule changed", zap.String("correlation_id", n.CorrelationID), zap.Int("events", len(events)))
	return n, nil
}

func (c *Coordinator) lookup(id string) (*zone, error) {
	z, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownZone, id)
	}
	return z, nil
}

// EventView is an event with its display summary.
type EventView struct {
	model.Event
	Summary string `json:"summary"`
}

func (c *Coordinator) views(events []model.Event, group string) []EventView {
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		out = append(out, EventView{Event: e, Summary: c.opts.Names.Summary(e.Type, group)})
	}
	return out
}

// Events returns the zone's outages overlapping [start, end).
func (c *Coordinator) Events(id string, start, end time.Time) ([]EventView, error) {
	z, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	z.mu.RLock()
	defer z.mu.RUnlock()
	return c.views(z.provider.Events(start, end), z.provider.Info().Group), nil
}

// ScheduledEvents returns the zone's forecast outages overlapping [start, end).
func (c *Coordinator) ScheduledEvents(id string, start, end time.Time) ([]EventView, error) {
	z, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	z.mu.RLock()
	defer z.mu.RUnlock()
	return c.views(z.provider.ScheduledEvents(start, end), z.provider.Info().Group), nil
}

// Groups lists the groups the zone's last payload knows about.
func (c *Coordinator) Groups(id string) ([]string, error) {
	z, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	z.mu.RLock()
	defer z.mu.RUnlock()
	groups := z.provider.Groups()
	sort.Strings(groups)
	return groups, nil
}
