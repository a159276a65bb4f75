package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestMetricsHandlerExposesPostingCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.EventPosted("expense_recorded")
	metrics.DuplicateSkipped("expense_recorded")
	metrics.SetInconsistencies(2)

	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "fleetline_posting_events_total{event=\"expense_recorded\"} 1") {
		t.Fatalf("expected posting counter, got: %s", body)
	}
	if !strings.Contains(body, "fleetline_posting_duplicates_total{event=\"expense_recorded\"} 1") {
		t.Fatalf("expected duplicate counter, got: %s", body)
	}
	if !strings.Contains(body, "fleetline_ledger_inconsistencies 2") {
		t.Fatalf("expected inconsistency gauge, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	metricsRR := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(metricsRR, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := metricsRR.Body.String()
	if !strings.Contains(body, "fleetline_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "fleetline_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram, got: %s", body)
	}
}
