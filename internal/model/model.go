package model

import (
	"fmt"
	"time"
)

// EventType labels an outage interval.
type EventType string

const (
	EventDefinite   EventType = "Definite"
	EventNotPlanned EventType = "NotPlanned"
	EventEmergency  EventType = "Emergency"
	// EventScheduled never appears upstream; it marks preset or forecast data.
	EventScheduled EventType = "Scheduled"
)

// DayStatus is the per-day status of minute-slot schedules.
type DayStatus string

const (
	StatusScheduleApplies    DayStatus = "ScheduleApplies"
	StatusWaitingForSchedule DayStatus = "WaitingForSchedule"
	StatusEmergencyShutdowns DayStatus = "EmergencyShutdowns"
)

// ConnectivityState is what a zone looks like right now.
type ConnectivityState string

const (
	StateNormal        ConnectivityState = "normal"
	StatePlannedOutage ConnectivityState = "planned_outage"
	StateEmergency     ConnectivityState = "emergency"
)

// Event is the normalized representation for all providers.
// Timed events hold instants; all-day events hold UTC-midnight dates
// and End is the (exclusive) following date.
type Event struct {
	Type   EventType `json:"type"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`
}

// NewAllDay builds an all-day event covering the calendar date of day.
func NewAllDay(t EventType, day time.Time) Event {
	d := Date(day)
	return Event{Type: t, Start: d, End: d.AddDate(0, 0, 1), AllDay: true}
}

// Date truncates t to its calendar date (in t's location) as UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Equal compares all fields; instants compare by value, not location.
func (e Event) Equal(o Event) bool {
	return e.Type == o.Type && e.AllDay == o.AllDay && e.Start.Equal(o.Start) && e.End.Equal(o.End)
}

// Contains reports whether at falls in [Start, End). All-day events match
// on the calendar date of at in at's own location.
func (e Event) Contains(at time.Time) bool {
	if e.AllDay {
		d := Date(at)
		return !d.Before(e.Start) && d.Before(e.End)
	}
	return !at.Before(e.Start) && at.Before(e.End)
}

// StartsAfter reports whether the event begins strictly after at.
func (e Event) StartsAfter(at time.Time) bool {
	if e.AllDay {
		return e.Start.After(Date(at))
	}
	return e.Start.After(at)
}

func (e Event) String() string {
	if e.AllDay {
		return fmt.Sprintf("%s[%s..%s)", e.Type, e.Start.Format(time.DateOnly), e.End.Format(time.DateOnly))
	}
	return fmt.Sprintf("%s[%s..%s)", e.Type, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// EventDataChanged is the bus name of data-changed notifications.
const EventDataChanged = "svitlo_yeah_data_changed"

// Notification is emitted when a zone's normalized schedule changes.
type Notification struct {
	Name           string    `json:"name"`
	ZoneID         string    `json:"zone_id"`
	ProviderID     string    `json:"provider_id"`
	ProviderType   string    `json:"provider_type"`
	Region         string    `json:"region,omitempty"`
	Group          string    `json:"group"`
	LastDataChange time.Time `json:"last_data_change"`
	CorrelationID  string    `json:"correlation_id"`
}

// Region is a service area with the distribution operators that publish
// schedules for it.
type Region struct {
	ID   int    `json:"id"`
	Name string `json:"value"`
	DSOs []DSO  `json:"dsos"`
}

// DSO is a distribution system operator.
type DSO struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
