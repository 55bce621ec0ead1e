// Package metrics exposes sandbox activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the sandbox metrics. Uses a custom registry, no global
// state. A nil *Collector is valid and records nothing.
type Collector struct {
	Registry *prometheus.Registry

	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	Preemptions  *prometheus.CounterVec
	ActiveRuns   prometheus.Gauge
	ResidentSize prometheus.Gauge
}

// NewCollector creates a Collector with all metrics registered on a fresh
// prometheus.Registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,

		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sandbox",
			Subsystem: "runs",
			Name:      "total",
			Help:      "Script runs by outcome.",
		}, []string{"backend", "outcome"}),

		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sandbox",
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "Wall time from request to outcome in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"backend"}),

		Preemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sandbox",
			Subsystem: "worker",
			Name:      "preemptions_total",
			Help:      "Workers preempted by the monitor, by reason.",
		}, []string{"reason"}),

		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sandbox",
			Subsystem: "worker",
			Name:      "active",
			Help:      "Workers currently running.",
		}),

		ResidentSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sandbox",
			Subsystem: "process",
			Name:      "sampled_resident_bytes",
			Help:      "Peak process RSS observed during the most recent supervised run.",
		}),
	}

	reg.MustRegister(
		c.RunsTotal,
		c.RunDuration,
		c.Preemptions,
		c.ActiveRuns,
		c.ResidentSize,
	)
	return c
}

// RunStarted marks a worker as running.
func (c *Collector) RunStarted() {
	if c == nil {
		return
	}
	c.ActiveRuns.Inc()
}

// RunFinished records one outcome. outcome is "success" or a fault kind;
// preempted says whether the monitor had to stop the worker.
func (c *Collector) RunFinished(backend, outcome string, elapsed time.Duration, preempted bool) {
	if c == nil {
		return
	}
	c.ActiveRuns.Dec()
	c.RunsTotal.WithLabelValues(backend, outcome).Inc()
	c.RunDuration.WithLabelValues(backend).Observe(elapsed.Seconds())
	if preempted {
		c.Preemptions.WithLabelValues(outcome).Inc()
	}
}

// Rejected records a request refused before any worker started.
func (c *Collector) Rejected(backend, outcome string) {
	if c == nil {
		return
	}
	c.RunsTotal.WithLabelValues(backend, outcome).Inc()
}

// ObserveRSS records a sampled resident size.
func (c *Collector) ObserveRSS(bytes uint64) {
	if c == nil || bytes == 0 {
		return
	}
	c.ResidentSize.Set(float64(bytes))
}
