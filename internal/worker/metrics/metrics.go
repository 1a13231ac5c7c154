// Package metrics exposes worker counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	jobsTotal    *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	stepDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docconv_jobs_total",
				Help: "Count of conversion jobs by terminal class",
			},
			[]string{"class", "format"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docconv_job_duration_seconds",
				Help:    "Wall time of a conversion job from decode to decision",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"class"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "docconv_step_duration_seconds",
				Help:    "Duration of successful pipeline steps",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
			},
			[]string{"step"},
		),
	}

	m.registry.MustRegister(
		m.jobsTotal,
		m.jobDuration,
		m.stepDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) JobFinished(class, format string, d time.Duration) {
	if format == "" {
		format = "unknown"
	}
	m.jobsTotal.WithLabelValues(class, format).Inc()
	m.jobDuration.WithLabelValues(class).Observe(d.Seconds())
}

func (m *Metrics) StepFinished(step string, d time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
