package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics holds the Prometheus collectors of one server. Each server owns its
// registry so several servers can live in one process.
type metrics struct {
	registry     *prometheus.Registry
	jobs         *prometheus.CounterVec
	running      prometheus.Gauge
	queued       prometheus.Gauge
	duration     *prometheus.HistogramVec
	evaluations  prometheus.Counter
	improvements prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portfolioopt_jobs_total",
			Help: "Finished jobs by terminal state.",
		}, []string{"state"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolioopt_jobs_running",
			Help: "Jobs currently solving.",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portfolioopt_jobs_queued",
			Help: "Jobs waiting for a free slot.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portfolioopt_job_duration_seconds",
			Help:    "Wall time of finished jobs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"engine"}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolioopt_evaluations_total",
			Help: "Objective evaluations across completed jobs.",
		}),
		improvements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portfolioopt_improvements_total",
			Help: "Best register improvements across finished jobs.",
		}),
	}
	m.registry.MustRegister(m.jobs, m.running, m.queued, m.duration, m.evaluations, m.improvements)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// finished records a job that reached a terminal state.
func (m *metrics) finished(job *Job) {
	m.jobs.WithLabelValues(string(job.State)).Inc()
	if job.EndTime != nil {
		m.duration.WithLabelValues(job.Config.Engine).Observe(job.EndTime.Sub(job.StartTime).Seconds())
	}
	m.evaluations.Add(float64(job.Evaluations))
	m.improvements.Add(float64(job.Improvements))
}
