package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the ad server.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Decision metrics
	Decisions       *prometheus.CounterVec
	DecisionLatency *prometheus.HistogramVec
	RankerOutcomes  *prometheus.CounterVec

	// Ranking metrics
	CapRejections *prometheus.CounterVec
	EligibleAds   prometheus.Histogram

	// Event metrics
	EventsRecorded  *prometheus.CounterVec
	EventsDuplicate *prometheus.CounterVec
	EventFailures   *prometheus.CounterVec

	// Archive metrics
	ArchiveFlushes *prometheus.CounterVec
	ArchiveBatch   prometheus.Histogram
	ArchiveDropped prometheus.Counter

	// Infra metrics
	RateLimitHits *prometheus.CounterVec
	GeoLookups    *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Ad decisions by source and placement",
			},
			[]string{"source", "placement"},
		),
		DecisionLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decision_latency_seconds",
				Help:      "End-to-end ad selection latency",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"source"},
		),
		RankerOutcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ranker_outcomes_total",
				Help:      "Personalized ranker call outcomes",
			},
			[]string{"outcome"}, // ok, empty, timeout, error
		),

		CapRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "freq_cap_rejections_total",
				Help:      "Candidates skipped by frequency caps",
			},
			[]string{"check"},
		),
		EligibleAds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "eligible_ads",
				Help:      "Eligible ads per deterministic ranking pass",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),

		EventsRecorded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_recorded_total",
				Help:      "Accepted tracking events by type",
			},
			[]string{"type"},
		),
		EventsDuplicate: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_duplicate_total",
				Help:      "Tracking events dropped as replays",
			},
			[]string{"type"},
		),
		EventFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_failures_total",
				Help:      "Swallowed tracking failures by stage",
			},
			[]string{"stage"}, // insert, stats, caps, archive
		),

		ArchiveFlushes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_flushes_total",
				Help:      "Event archive batch flushes",
			},
			[]string{"status"},
		),
		ArchiveBatch: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "archive_batch_size",
				Help:      "Events per archive flush",
				Buckets:   []float64{1, 10, 50, 100, 250, 500, 1000},
			},
		),
		ArchiveDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archive_dropped_total",
				Help:      "Events dropped because the archive buffer was full",
			},
		),

		RateLimitHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Rate limit rejections",
			},
			[]string{"endpoint"},
		),
		GeoLookups: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "geo_lookups_total",
				Help:      "GeoIP lookups by result",
			},
			[]string{"status"}, // hit, miss, error
		),
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordDecision records one completed waterfall pass.
func (m *Metrics) RecordDecision(source, placement string, latency time.Duration) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(source, placement).Inc()
	m.DecisionLatency.WithLabelValues(source).Observe(latency.Seconds())
}

// RecordRankerOutcome records a personalized ranker call outcome.
func (m *Metrics) RecordRankerOutcome(outcome string) {
	if m == nil {
		return
	}
	m.RankerOutcomes.WithLabelValues(outcome).Inc()
}

// RecordCapRejection records a candidate skipped by a frequency cap.
func (m *Metrics) RecordCapRejection(check string) {
	if m == nil {
		return
	}
	m.CapRejections.WithLabelValues(check).Inc()
}

// RecordEligibleAds records the eligible pool size of a ranking pass.
func (m *Metrics) RecordEligibleAds(n int) {
	if m == nil {
		return
	}
	m.EligibleAds.Observe(float64(n))
}

// RecordEvent records an accepted or replayed tracking event.
func (m *Metrics) RecordEvent(eventType string, duplicate bool) {
	if m == nil {
		return
	}
	if duplicate {
		m.EventsDuplicate.WithLabelValues(eventType).Inc()
		return
	}
	m.EventsRecorded.WithLabelValues(eventType).Inc()
}

// RecordEventFailure records a swallowed tracking failure.
func (m *Metrics) RecordEventFailure(stage string) {
	if m == nil {
		return
	}
	m.EventFailures.WithLabelValues(stage).Inc()
}

// RecordArchiveFlush records an archive batch flush.
func (m *Metrics) RecordArchiveFlush(status string, size int) {
	if m == nil {
		return
	}
	m.ArchiveFlushes.WithLabelValues(status).Inc()
	m.ArchiveBatch.Observe(float64(size))
}

// RecordArchiveDrop records an event dropped at the archive buffer.
func (m *Metrics) RecordArchiveDrop() {
	if m == nil {
		return
	}
	m.ArchiveDropped.Inc()
}

// RecordRateLimitHit records a rate limit hit.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordGeoLookup records a GeoIP lookup result.
func (m *Metrics) RecordGeoLookup(status string) {
	if m == nil {
		return
	}
	m.GeoLookups.WithLabelValues(status).Inc()
}
