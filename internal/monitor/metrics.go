package monitor

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the Prometheus metrics of the monitoring scheduler.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	TicksTotal           *prometheus.CounterVec // by trigger
	TicksSkipped         prometheus.Counter
	DetectionsTotal      prometheus.Counter
	CollaboratorFailures *prometheus.CounterVec // by collaborator: recorder, subscriber
	TickDuration         prometheus.Histogram
	Active               prometheus.Gauge
}

// NewMetrics creates the scheduler metrics and registers them with registry.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register monitor metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_monitor_ticks_total",
			Help: "Total number of monitoring passes by trigger",
		},
		[]string{"trigger"}, // timer, manual
	)

	m.TicksSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lock_monitor_ticks_skipped_total",
		Help: "Timer ticks skipped because a previous pass was still running",
	})

	m.DetectionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lock_monitor_detections_total",
		Help: "Detections at or above the threshold",
	})

	m.CollaboratorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_monitor_collaborator_failures_total",
			Help: "Failed or timed out calls to the violation recorder and alert subscribers",
		},
		[]string{"collaborator"},
	)

	m.TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lock_monitor_tick_duration_seconds",
		Help:    "Time taken by one monitoring pass",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})

	m.Active = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lock_monitor_active",
		Help: "1 while the monitoring scheduler is running",
	})
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.TicksTotal.Describe(ch)
	m.TicksSkipped.Describe(ch)
	m.DetectionsTotal.Describe(ch)
	m.CollaboratorFailures.Describe(ch)
	m.TickDuration.Describe(ch)
	m.Active.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.TicksTotal.Collect(ch)
	m.TicksSkipped.Collect(ch)
	m.DetectionsTotal.Collect(ch)
	m.CollaboratorFailures.Collect(ch)
	m.TickDuration.Collect(ch)
	m.Active.Collect(ch)
}

func (m *Metrics) recordTick(trigger string, detections int, duration time.Duration) {
	if m == nil {
		return
	}
	m.TicksTotal.WithLabelValues(trigger).Inc()
	m.DetectionsTotal.Add(float64(detections))
	m.TickDuration.Observe(duration.Seconds())
}

func (m *Metrics) recordSkip() {
	if m == nil {
		return
	}
	m.TicksSkipped.Inc()
}

func (m *Metrics) recordFailure(collaborator string) {
	if m == nil {
		return
	}
	m.CollaboratorFailures.WithLabelValues(collaborator).Inc()
}

func (m *Metrics) setActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.Active.Set(1)
	} else {
		m.Active.Set(0)
	}
}
