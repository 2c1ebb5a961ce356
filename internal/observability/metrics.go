package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk layanan otorisasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge

	decisionsTotal   *prometheus.CounterVec
	decisionDuration *prometheus.HistogramVec
	gateDenials      *prometheus.CounterVec
	auditFailures    prometheus.Counter
	suspicious       prometheus.Gauge
}

// NewMetrics menginisialisasi registry beserta metrik HTTP dan metrik
// keputusan otorisasi.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lyceum_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lyceum_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lyceum_http_in_flight_requests",
		Help: "Jumlah permintaan HTTP yang sedang berjalan.",
	})
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lyceum_authz_decisions_total",
		Help: "Jumlah keputusan otorisasi per resource, aksi, dan hasil.",
	}, []string{"resource_type", "action", "outcome"})
	decisionDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lyceum_authz_decision_duration_seconds",
		Help:    "Durasi evaluasi keputusan otorisasi per resource.",
		Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"resource_type"})
	gateDenials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lyceum_authz_gate_denials_total",
		Help: "Jumlah penolakan per gate pipeline.",
	}, []string{"gate"})
	auditFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lyceum_audit_sink_failures_total",
		Help: "Jumlah kegagalan penulisan audit record.",
	})
	suspicious := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lyceum_suspicious_principals",
		Help: "Jumlah principal yang ditandai mencurigakan oleh scan keamanan.",
	})
	registry.MustRegister(requests, duration, inFlight, decisions, decisionDuration, gateDenials, auditFailures, suspicious)
	return &Metrics{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:    requests,
		requestDuration:  duration,
		inFlight:         inFlight,
		decisionsTotal:   decisions,
		decisionDuration: decisionDuration,
		gateDenials:      gateDenials,
		auditFailures:    auditFailures,
		suspicious:       suspicious,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		defer m.inFlight.Dec()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveDecision memenuhi hook metrik engine otorisasi. Penolakan juga
// dihitung per gate yang menolaknya.
func (m *Metrics) ObserveDecision(resourceType, action, gate string, authorized bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "granted"
	if !authorized {
		outcome = "denied"
		m.gateDenials.WithLabelValues(gate).Inc()
	}
	m.decisionsTotal.WithLabelValues(resourceType, action, outcome).Inc()
	m.decisionDuration.WithLabelValues(resourceType).Observe(elapsed.Seconds())
}

// ObserveAuditFailure mencatat kegagalan penulisan audit sink.
func (m *Metrics) ObserveAuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

// SetSuspiciousPrincipals memperbarui gauge hasil scan keamanan.
func (m *Metrics) SetSuspiciousPrincipals(count int) {
	if m == nil {
		return
	}
	m.suspicious.Set(float64(count))
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
