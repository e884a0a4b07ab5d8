package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Per-record outcome labels. Every accepted record ends in exactly one.
const (
	OutcomeEnriched = "enriched" // enriched and forwarded downstream
	OutcomeSkipped  = "skipped"  // a unit raised the skip signal
	OutcomeDropped  = "dropped"  // unparseable document or timestamp
)

// Metrics contains the pipeline-level metrics shared across components.
// Domain metrics specific to one component register through the
// MetricsRegistry instead.
type Metrics struct {
	// Run metrics
	RunState      prometheus.Gauge
	RecordsRead   *prometheus.CounterVec
	RecordOutcome *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	// Unit metrics
	UnitFailures *prometheus.CounterVec
	UnitSkips    *prometheus.CounterVec

	// Aggregation metrics
	BucketsTracked  prometheus.Gauge
	CountersTracked prometheus.Gauge

	// Error tracking
	ErrorsTotal *prometheus.CounterVec

	// NATS fanout metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
	NATSPublished  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		RunState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "trendstreams",
				Subsystem: "pipeline",
				Name:      "run_state",
				Help:      "Run state (0=idle, 1=collecting, 2=draining, 3=done, 4=failed)",
			},
		),

		RecordsRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trendstreams",
				Subsystem: "records",
				Name:      "read_total",
				Help:      "Total records read from the input",
			},
			[]string{"source"},
		),

		RecordOutcome: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trendstreams",
				Subsystem: "records",
				Name:      "outcome_total",
				Help:      "Per-record outcomes (enriched, skipped, dropped)",
			},
			[]string{"outcome"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trendstreams",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Per-record stage duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		UnitFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trendstreams",
				Subsystem: "units",
				Name:      "failures_total",
				Help:      "Unit executions recovered as null, by unit name",
			},
			[]string{"unit"},
		),

		UnitSkips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trendstreams",
				Subsystem: "units",
				Name:      "skips_total",
				Help:      "Records skipped by a unit's skip signal, by unit name",
			},
			[]string{"unit"},
		),

		BucketsTracked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "trendstreams",
				Subsystem: "buckets",
				Name:      "tracked",
				Help:      "Buckets currently held by the aggregator",
			},
		),

		CountersTracked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "trendstreams",
				Subsystem: "buckets",
				Name:      "counters_tracked",
				Help:      "Distinct counters observed so far in the run",
			},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trendstreams",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total errors by component and classification",
			},
			[]string{"component", "class"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "trendstreams",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "trendstreams",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trendstreams",
				Subsystem: "nats",
				Name:      "published_total",
				Help:      "Enriched records published to the fanout subject",
			},
			[]string{"subject", "status"},
		),
	}
}

// RecordRunState updates the run state gauge
func (c *Metrics) RecordRunState(state int) {
	c.RunState.Set(float64(state))
}

// RecordRead increments the read counter for a source
func (c *Metrics) RecordRead(source string) {
	c.RecordsRead.WithLabelValues(source).Inc()
}

// RecordRecordOutcome increments the outcome counter for one record
func (c *Metrics) RecordRecordOutcome(outcome string) {
	c.RecordOutcome.WithLabelValues(outcome).Inc()
}

// ObserveStageDuration records time spent in one stage for one record
func (c *Metrics) ObserveStageDuration(stage string, duration time.Duration) {
	c.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordUnitFailure increments the failure counter for a unit
func (c *Metrics) RecordUnitFailure(unit string) {
	c.UnitFailures.WithLabelValues(unit).Inc()
}

// RecordUnitSkip increments the skip counter for a unit
func (c *Metrics) RecordUnitSkip(unit string) {
	c.UnitSkips.WithLabelValues(unit).Inc()
}

// RecordTableSize updates the aggregator size gauges
func (c *Metrics) RecordTableSize(buckets, counters int) {
	c.BucketsTracked.Set(float64(buckets))
	c.CountersTracked.Set(float64(counters))
}

// RecordError increments the error counter
func (c *Metrics) RecordError(component, class string) {
	c.ErrorsTotal.WithLabelValues(component, class).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments the reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordPublish counts one fanout publish attempt
func (c *Metrics) RecordPublish(subject string, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	c.NATSPublished.WithLabelValues(subject, status).Inc()
}
