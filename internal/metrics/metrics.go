package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "outage"

// Metrics holds the collectors of one process. Pass prometheus.DefaultRegisterer
// in main and a fresh registry in tests.
type Metrics struct {
	fetchTotal    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	lastSuccessTS *prometheus.GaugeVec
	updatedOnTS   *prometheus.GaugeVec
	events        *prometheus.GaugeVec
	dataChanged   *prometheus.CounterVec
	sinkPushTotal *prometheus.CounterVec
	cycleDur      prometheus.Summary
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Provider fetches by zone and status",
		}, []string{"zone", "provider", "status"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent in one provider fetch",
			Buckets:   prometheus.DefBuckets,
		}, []string{"zone", "provider"}),
		lastSuccessTS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful fetch",
		}, []string{"zone"}),
		updatedOnTS: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schedule_updated_timestamp_seconds",
			Help:      "Upstream last-updated timestamp of the schedule",
		}, []string{"zone"}),
		events: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "events",
			Help:      "Normalized events inside the lookahead window",
		}, []string{"zone", "type"}),
		dataChanged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "data_changed_total",
			Help:      "Schedule changes detected per zone",
		}, []string{"zone"}),
		sinkPushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_push_total",
			Help:      "Notification pushes by sink and status",
		}, []string{"sink", "status"}),
		cycleDur: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Time spent polling all zones",
		}),
	}
	reg.MustRegister(
		m.fetchTotal, m.fetchDuration, m.lastSuccessTS, m.updatedOnTS,
		m.events, m.dataChanged, m.sinkPushTotal, m.cycleDur,
	)
	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveFetch records one provider fetch. now is the wall time of completion.
func (m *Metrics) ObserveFetch(zone, provider string, took time.Duration, now time.Time, err error) {
	m.fetchTotal.WithLabelValues(zone, provider, status(err)).Inc()
	m.fetchDuration.WithLabelValues(zone, provider).Observe(took.Seconds())
	if err == nil {
		m.lastSuccessTS.WithLabelValues(zone).Set(float64(now.Unix()))
	}
}

func (m *Metrics) SetUpdatedOn(zone string, t time.Time) {
	m.updatedOnTS.WithLabelValues(zone).Set(float64(t.Unix()))
}

// SetEvents replaces the per-type event counts of a zone.
func (m *Metrics) SetEvents(zone string, counts map[string]int) {
	m.events.DeletePartialMatch(prometheus.Labels{"zone": zone})
	for typ, n := range counts {
		m.events.WithLabelValues(zone, typ).Set(float64(n))
	}
}

func (m *Metrics) DataChanged(zone string) { m.dataChanged.WithLabelValues(zone).Inc() }

func (m *Metrics) SinkPush(sink string, err error) {
	m.sinkPushTotal.WithLabelValues(sink, status(err)).Inc()
}

func (m *Metrics) ObserveCycle(took time.Duration) { m.cycleDur.Observe(took.Seconds()) }
