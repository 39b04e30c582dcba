package store

import (
	"sync"
	"time"

	"outage-ingester/internal/clock"
	"outage-ingester/internal/model"
	"outage-ingester/internal/schedule"
)

// ChangeTracker remembers the last observed schedule of one zone and
// reports when it differs.
type ChangeTracker struct {
	mu          sync.Mutex
	clock       clock.Clock
	loc         *time.Location
	previous    []model.Event
	seeded      bool
	lastChanged time.Time
}

func NewChangeTracker(c clock.Clock, loc *time.Location) *ChangeTracker {
	if loc == nil {
		loc = time.Local
	}
	return &ChangeTracker{clock: c, loc: loc}
}

// Check compares events (in any order) against the previous observation.
// The first call only records a baseline and returns false.
func (t *ChangeTracker) Check(events []model.Event) bool {
	sorted := schedule.SortEvents(events, t.loc)

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.seeded {
		t.previous, t.seeded = sorted, true
		return false
	}
	if sameEvents(t.previous, sorted) {
		return false
	}
	t.previous = sorted
	t.lastChanged = t.clock.Now()
	return true
}

// LastChanged is zero until a change after the baseline was seen.
func (t *ChangeTracker) LastChanged() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastChanged, !t.lastChanged.IsZero()
}

func sameEvents(a, b []model.Event) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
