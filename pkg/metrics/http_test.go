package metrics

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMetricsObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.ObserveRequest("/api/v1/cart/items/{productId}", http.MethodPut, http.StatusOK, 20*time.Millisecond)
	m.ObserveRequest("/api/v1/cart/items/{productId}", http.MethodPut, http.StatusConflict, 5*time.Millisecond)
	m.ObserveRequest("", http.MethodGet, http.StatusNotFound, time.Millisecond)

	expected := `
# HELP merch_http_requests_total HTTP requests served, by route pattern, method and status code.
# TYPE merch_http_requests_total counter
merch_http_requests_total{code="200",method="PUT",route="/api/v1/cart/items/{productId}"} 1
merch_http_requests_total{code="404",method="GET",route="unmatched"} 1
merch_http_requests_total{code="409",method="PUT",route="/api/v1/cart/items/{productId}"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "merch_http_requests_total"); err != nil {
		t.Fatalf("unexpected counters: %v", err)
	}
	if n := testutil.CollectAndCount(m.duration); n != 2 {
		t.Fatalf("expected 2 latency series, got %d", n)
	}
}

func TestHTTPMetricsNilSafe(t *testing.T) {
	var m *HTTPMetrics
	m.ObserveRequest("/x", http.MethodGet, http.StatusOK, time.Millisecond)
	NewHTTPMetrics(nil).ObserveRequest("/x", http.MethodGet, http.StatusOK, time.Millisecond)
}
