package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lyceum-edu/lyceum/internal/authz"
)

var _ authz.MetricsHook = (*Metrics)(nil)

func scrape(t *testing.T, metrics *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected scrape status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "lyceum_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "lyceum_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestDecisionMetricsCountOutcomes(t *testing.T) {
	metrics := NewMetrics()

	metrics.ObserveDecision("appointment", "cancel", "granted", true, 5*time.Millisecond)
	metrics.ObserveDecision("appointment", "cancel", "business_rule", false, 2*time.Millisecond)
	metrics.ObserveDecision("appointment", "cancel", "business_rule", false, 2*time.Millisecond)

	body := scrape(t, metrics)
	if !strings.Contains(body, "lyceum_authz_decisions_total{action=\"cancel\",outcome=\"granted\",resource_type=\"appointment\"} 1") {
		t.Fatalf("granted counter missing: %s", body)
	}
	if !strings.Contains(body, "lyceum_authz_decisions_total{action=\"cancel\",outcome=\"denied\",resource_type=\"appointment\"} 2") {
		t.Fatalf("denied counter missing: %s", body)
	}
	if !strings.Contains(body, "lyceum_authz_gate_denials_total{gate=\"business_rule\"} 2") {
		t.Fatalf("gate denial counter missing: %s", body)
	}
	if !strings.Contains(body, "lyceum_authz_decision_duration_seconds_bucket{resource_type=\"appointment\"") {
		t.Fatalf("decision duration histogram missing: %s", body)
	}
}

func TestAuditFailureCounterAndSuspiciousGauge(t *testing.T) {
	metrics := NewMetrics()

	metrics.ObserveAuditFailure()
	metrics.ObserveAuditFailure()
	metrics.ObserveAuditFailure()
	metrics.SetSuspiciousPrincipals(4)

	body := scrape(t, metrics)
	if !strings.Contains(body, "lyceum_audit_sink_failures_total 3") {
		t.Fatalf("audit failure counter missing: %s", body)
	}
	if !strings.Contains(body, "lyceum_suspicious_principals 4") {
		t.Fatalf("suspicious gauge missing: %s", body)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics

	metrics.ObserveDecision("post", "read", "granted", true, time.Millisecond)
	metrics.ObserveAuditFailure()
	metrics.SetSuspiciousPrincipals(1)

	passthrough := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	passthrough.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("nil middleware must pass through, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil handler should report unavailable, got %d", rr.Code)
	}
}
