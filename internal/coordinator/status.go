package coordinator

import (
	"time"

	"outage-ingester/internal/model"
	"outage-ingester/internal/schedule"
	"outage-ingester/internal/source"
)

// Status is everything the host shows for one zone at a point in time.
// Nil fields are unknown.
type Status struct {
	ZoneID       string                   `json:"zone_id"`
	ProviderType string                   `json:"provider_type"`
	ProviderID   string                   `json:"provider_id"`
	ProviderName string                   `json:"provider_name"`
	Region       string                   `json:"region,omitempty"`
	Group        string                   `json:"group"`
	State        *model.ConnectivityState `json:"state"`
	Current      *EventView               `json:"current_event"`

	NextPlannedOutage   *time.Time `json:"next_planned_outage"`
	NextConnectivity    *time.Time `json:"next_connectivity"`
	NextScheduledOutage *time.Time `json:"next_scheduled_outage"`
	NextOutageBoundary  *time.Time `json:"next_outage_boundary"`
	ScheduleUpdatedOn   *time.Time `json:"schedule_updated_on"`
	LastDataChange      *time.Time `json:"last_data_change"`
	LastFetch           *time.Time `json:"last_fetch"`
	LastError           string     `json:"last_error,omitempty"`
}

// Status derives the zone's current state and upcoming transitions from
// the last fetched schedule, looking ahead by the configured window.
func (c *Coordinator) Status(id string, at time.Time) (Status, error) {
	z, err := c.lookup(id)
	if err != nil {
		return Status{}, err
	}
	z.mu.RLock()
	defer z.mu.RUnlock()

	loc := c.opts.Location
	at = at.In(loc)
	p := z.provider
	info := p.Info()
	st := Status{
		ZoneID:       z.id,
		ProviderType: info.Type,
		ProviderID:   info.ProviderID,
		ProviderName: info.Name,
		Region:       info.Region,
		Group:        info.Group,
	}

	horizon := at.Add(c.opts.Lookahead)
	events := p.Events(at, horizon)
	current, inEvent := schedule.EventAt(events, at, loc)
	if inEvent {
		v := c.views([]model.Event{current}, info.Group)[0]
		st.Current = &v
	}
	st.State = stateOf(info, current, inEvent)

	planned := ofType(events, model.EventDefinite)
	next, hasNext := schedule.FirstStartAfter(planned, at, loc)
	if hasNext {
		st.NextPlannedOutage = ptr(schedule.StartKey(next, loc))
	}
	switch {
	case inEvent && current.Type == model.EventDefinite:
		st.NextConnectivity = ptr(schedule.EndKey(current, loc))
	case hasNext:
		st.NextConnectivity = ptr(schedule.EndKey(next, loc))
	}

	// earliest of the next forecast outage and the next confirmed one
	if sched, ok := schedule.FirstStartAfter(p.ScheduledEvents(at, horizon), at, loc); ok {
		st.NextScheduledOutage = ptr(schedule.StartKey(sched, loc))
	}
	if st.NextPlannedOutage != nil && (st.NextScheduledOutage == nil || st.NextPlannedOutage.Before(*st.NextScheduledOutage)) {
		st.NextScheduledOutage = ptr(*st.NextPlannedOutage)
	}

	if b, ok := schedule.NextBoundary(events, at, loc); ok {
		st.NextOutageBoundary = ptr(b)
	}
	if u, ok := p.UpdatedOn(); ok {
		st.ScheduleUpdatedOn = ptr(u)
	}
	if t, ok := z.tracker.LastChanged(); ok {
		st.LastDataChange = ptr(t)
	}
	if !z.lastFetch.IsZero() {
		st.LastFetch = ptr(z.lastFetch)
	}
	if z.lastErr != nil {
		st.LastError = z.lastErr.Error()
	}
	return st, nil
}

// NextOutageBoundary is the next instant the zone's outage state can change.
func (c *Coordinator) NextOutageBoundary(id string, at time.Time) (time.Time, bool, error) {
	z, err := c.lookup(id)
	if err != nil {
		return time.Time{}, false, err
	}
	z.mu.RLock()
	defer z.mu.RUnlock()
	b, ok := schedule.NextBoundary(z.provider.Events(at, at.Add(c.opts.Lookahead)), at, c.opts.Location)
	return b, ok, nil
}

// stateOf maps the event at the current instant to a connectivity state.
// Providers that do not report state get nil.
func stateOf(info source.Info, e model.Event, ok bool) *model.ConnectivityState {
	if !info.ReportsState {
		return nil
	}
	s := model.StateNormal
	if ok {
		switch e.Type {
		case model.EventDefinite:
			s = model.StatePlannedOutage
		case model.EventEmergency:
			s = model.StateEmergency
		}
	}
	return &s
}

func ofType(events []model.Event, t model.EventType) []model.Event {
	var out []model.Event
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func ptr[T any](v T) *T { return &v }
