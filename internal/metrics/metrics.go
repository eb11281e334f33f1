// Package metrics exposes escalation counters for Prometheus.
//
// Metrics:
//
//	grievance_escalations_total{type}              committed transitions (auto, manual)
//	grievance_escalation_rejections_total{reason}  requests that did not escalate
//	grievance_escalation_conflicts_total           optimistic write conflicts
//	grievance_escalation_sweep_duration_seconds    duration of worker sweeps
//	grievance_escalation_sweep_failures_total      per-issue failures during sweeps
//
// All methods are safe on a nil *Collector so callers can run without metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the escalation metrics
type Collector struct {
	escalations   *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	conflicts     prometheus.Counter
	sweepDuration prometheus.Histogram
	sweepFailures prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewCollector creates the metrics and registers them with reg. A fresh
// registry is used when reg is nil.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grievance_escalations_total",
			Help: "Total number of committed escalations by type",
		}, []string{"type"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grievance_escalation_rejections_total",
			Help: "Total number of escalation requests that did not escalate, by outcome",
		}, []string{"reason"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grievance_escalation_conflicts_total",
			Help: "Total number of optimistic concurrency conflicts on escalation writes",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grievance_escalation_sweep_duration_seconds",
			Help:    "Duration of auto-escalation sweeps in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grievance_escalation_sweep_failures_total",
			Help: "Total number of issues that failed during auto-escalation sweeps",
		}),
		gatherer: reg,
	}

	reg.MustRegister(c.escalations, c.rejections, c.conflicts, c.sweepDuration, c.sweepFailures)
	return c
}

func (c *Collector) RecordEscalation(escalationType string) {
	if c == nil {
		return
	}
	c.escalations.WithLabelValues(escalationType).Inc()
}

func (c *Collector) RecordRejection(reason string) {
	if c == nil {
		return
	}
	c.rejections.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordConflict() {
	if c == nil {
		return
	}
	c.conflicts.Inc()
}

func (c *Collector) ObserveSweep(seconds float64, failures int) {
	if c == nil {
		return
	}
	c.sweepDuration.Observe(seconds)
	c.sweepFailures.Add(float64(failures))
}

// Handler serves the collector's registry in Prometheus text format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
