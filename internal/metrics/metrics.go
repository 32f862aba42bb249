// Package metrics holds the Prometheus collectors for the tutoring service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tutorai"

// Metrics groups the service's collectors around one registry.
type Metrics struct {
	registry *prometheus.Registry

	turns           *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	generation      *prometheus.HistogramVec
	hintLevel       prometheus.Histogram
	frustrated      prometheus.Counter
	stepsCompleted  prometheus.Counter
	topicsCompleted prometheus.Counter
	progressErrors  *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry together with the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Labels: outcome (ok, input, store, content, generation)
		turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tutor",
			Name:      "turns_total",
			Help:      "Tutoring turns processed, by outcome",
		}, []string{"outcome"}),
		turnDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tutor",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn latency in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"outcome"}),
		// Labels: model, status (ok, error)
		generation: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "generation_seconds",
			Help:      "Language model generation latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}, []string{"model", "status"}),
		hintLevel: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tutor",
			Name:      "hint_level",
			Help:      "Hint level returned per turn",
			Buckets:   []float64{0, 1, 2, 3},
		}),
		frustrated: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tutor",
			Name:      "frustrated_turns_total",
			Help:      "Turns where the student appeared frustrated",
		}),
		stepsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mastery",
			Name:      "steps_completed_total",
			Help:      "Mastery steps completed",
		}),
		topicsCompleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mastery",
			Name:      "topics_completed_total",
			Help:      "Subtopics completed",
		}),
		// Labels: event (student-completion, tutor-question, persist)
		progressErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mastery",
			Name:      "progress_update_failures_total",
			Help:      "Best-effort progress updates that failed",
		}, []string{"event"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTurn records one processed turn.
func (m *Metrics) ObserveTurn(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
	m.turnDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveGeneration records one language model call.
func (m *Metrics) ObserveGeneration(model string, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.generation.WithLabelValues(model, status).Observe(d.Seconds())
}

// ObserveHint records the hint level and frustration flag of a turn.
func (m *Metrics) ObserveHint(level int, frustrated bool) {
	if m == nil {
		return
	}
	m.hintLevel.Observe(float64(level))
	if frustrated {
		m.frustrated.Inc()
	}
}

// StepsCompleted adds newly completed mastery steps.
func (m *Metrics) StepsCompleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.stepsCompleted.Add(float64(n))
}

// TopicCompleted counts a subtopic completion.
func (m *Metrics) TopicCompleted() {
	if m == nil {
		return
	}
	m.topicsCompleted.Inc()
}

// ProgressFailure counts a failed best-effort progress update.
func (m *Metrics) ProgressFailure(event string) {
	if m == nil {
		return
	}
	m.progressErrors.WithLabelValues(event).Inc()
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(route, method, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, status).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
