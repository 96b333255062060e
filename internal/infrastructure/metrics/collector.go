// Package metrics exposes engine and webhook instrumentation to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "musicbot"

// Collector implements workflow.Metrics and records webhook outcomes.
type Collector struct {
	registry *prometheus.Registry

	runsInFlight prometheus.Gauge
	runs         prometheus.Counter
	steps        *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	events       *prometheus.CounterVec
	duplicates   prometheus.Counter
}

// NewCollector registers all series on a fresh registry together with the
// Go runtime and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		runsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Conversation runs currently executing.",
		}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Conversation runs started.",
		}),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Executed workflow steps by step and result.",
		}, []string{"step", "result"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Workflow step latency.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 180, 420},
		}, []string{"step"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_events_total",
			Help:      "Inbound webhook events by transport and status.",
		}, []string{"transport", "status"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_suppressed_total",
			Help:      "Inbound messages dropped by the duplicate filter.",
		}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.runsInFlight, c.runs, c.steps, c.stepDuration, c.events, c.duplicates,
	)
	return c
}

func (c *Collector) RunStarted() {
	c.runs.Inc()
	c.runsInFlight.Inc()
}

func (c *Collector) RunFinished() {
	c.runsInFlight.Dec()
}

func (c *Collector) StepCompleted(step, result string, d time.Duration) {
	c.steps.WithLabelValues(step, result).Inc()
	c.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// Event counts one inbound event outcome.
func (c *Collector) Event(transport, status string) {
	c.events.WithLabelValues(transport, status).Inc()
}

func (c *Collector) DuplicateSuppressed() {
	c.duplicates.Inc()
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
