// Package telemetry exposes Prometheus metrics for the script generator.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scriptgen"

// Collectors holds the service metrics on a private registry. It satisfies
// orchestrator.Observer and generation.CallObserver.
type Collectors struct {
	registry *prometheus.Registry

	submitted    prometheus.Counter
	finished     *prometheus.CounterVec
	calls        *prometheus.CounterVec
	improvements prometheus.Counter
	duration     prometheus.Histogram
}

// New creates and registers the collectors, plus Go runtime and process
// collectors.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Script generation tasks accepted.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Tasks that reached a terminal status.",
		}, []string{"status"}),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_calls_total",
			Help:      "Language model calls by operation, provider and outcome.",
		}, []string{"op", "provider", "outcome"}),
		improvements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "improvement_rounds_total",
			Help:      "Drafts sent back for one improvement round.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Time from submission to terminal status.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
	c.registry.MustRegister(
		c.submitted, c.finished, c.calls, c.improvements, c.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// TaskSubmitted counts an accepted task.
func (c *Collectors) TaskSubmitted() { c.submitted.Inc() }

// TaskFinished records a terminal task and its run time.
func (c *Collectors) TaskFinished(status string, elapsed time.Duration) {
	c.finished.WithLabelValues(status).Inc()
	c.duration.Observe(elapsed.Seconds())
}

// ImprovementRound counts an improve call.
func (c *Collectors) ImprovementRound() { c.improvements.Inc() }

// ObserveCall counts one provider attempt.
func (c *Collectors) ObserveCall(op, provider, outcome string) {
	c.calls.WithLabelValues(op, provider, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
