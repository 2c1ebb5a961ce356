// Package jobmetrics instruments background job runs. The worker
// registers these collectors into the shared observability registry so
// job counters ship from the worker's own /metrics endpoint.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	flagged  *prometheus.CounterVec
}

var fallback struct {
	once sync.Once
	m    *Metrics
}

// NewMetrics registers the job collectors with the given registerer.
// A nil registerer selects the process-wide default registry; that
// instance is shared so the collectors register only once.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		fallback.once.Do(func() {
			fallback.m = newMetrics(prometheus.DefaultRegisterer)
		})
		return fallback.m
	}
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lyceum_jobs_total",
			Help: "Job executions by job name and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lyceum_jobs_failures_total",
			Help: "Failed job executions by job name.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lyceum_job_duration_seconds",
			Help:    "Job run duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		flagged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lyceum_security_flags_total",
			Help: "Principals flagged by the security scan, by severity.",
		}, []string{"severity"}),
	}
	reg.MustRegister(m.runs, m.failures, m.duration, m.flagged)
	return m
}

// Tracker measures a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing one run of the named job. Safe on a nil
// receiver; the tracker then records nothing.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run outcome and passes the error through unchanged,
// so it can wrap a handler's final call.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddFlagged bumps the flagged-principal counter for one severity.
func (m *Metrics) AddFlagged(severity string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.flagged.WithLabelValues(severity).Add(float64(count))
}
