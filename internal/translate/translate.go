package translate

import (
	"strings"

	"go.uber.org/zap"

	"outage-ingester/internal/model"
)

// Translation keys, as used in the config "translations" block.
const (
	KeyPlannedOutage   = "planned_outage"
	KeyEmergencyOutage = "emergency_outage"
	KeyScheduledOutage = "scheduled_outage"
)

var defaults = map[string]string{
	KeyPlannedOutage:   "Планове відключення",
	KeyEmergencyOutage: "Аварійне відключення",
	KeyScheduledOutage: "Можливе відключення",
}

var eventKeys = map[model.EventType]string{
	model.EventDefinite:  KeyPlannedOutage,
	model.EventEmergency: KeyEmergencyOutage,
	model.EventScheduled: KeyScheduledOutage,
}

// Table maps translation keys to display strings. Configured values
// override the built-in Ukrainian defaults; blank values are ignored.
type Table struct {
	m   map[string]string
	log *zap.Logger
}

func New(overrides map[string]string, log *zap.Logger) *Table {
	if log == nil {
		log = zap.NewNop()
	}
	m := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		m[k] = v
	}
	for k, v := range overrides {
		if s := strings.TrimSpace(v); s != "" {
			m[strings.TrimSpace(k)] = s
		}
	}
	return &Table{m: m, log: log.Named("translate")}
}

func (t *Table) Get(key string) (string, bool) {
	v, ok := t.m[key]
	return v, ok
}

// KeyFor returns the translation key of an event type.
func KeyFor(et model.EventType) (string, bool) {
	k, ok := eventKeys[et]
	return k, ok
}

// Summary is the display title of an event. Scheduled events carry the
// group as a suffix ("Можливе відключення 3.1").
func (t *Table) Summary(et model.EventType, group string) string {
	key, ok := KeyFor(et)
	if !ok {
		t.log.Warn("no translation key for event type", zap.String("type", string(et)))
		return ""
	}
	s, _ := t.Get(key)
	if et == model.EventScheduled && group != "" {
		s = strings.TrimSpace(s + " " + group)
	}
	return s
}
