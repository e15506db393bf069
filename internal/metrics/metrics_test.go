package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/periods/{key}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	for _, key := range []string{"2024-5-1", "2024-5-2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/periods/"+key, nil))
	}

	got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/periods/{key}", "418"))
	if got != 2 {
		t.Fatalf("requests counter = %v, want 2", got)
	}
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.PeriodOperation("add_expense", nil)
	m.PeriodOperation("add_expense", errors.New("boom"))
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.EventPublished(nil)

	if v := testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")); v != 2 {
		t.Fatalf("cache misses = %v", v)
	}
	if v := testutil.ToFloat64(m.periodOps.WithLabelValues("add_expense", "error")); v != 1 {
		t.Fatalf("failed ops = %v", v)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"halfmonth_period_operations_total", "halfmonth_cache_lookups_total", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %s", want)
		}
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.PeriodOperation("x", nil)
	m.CacheLookup(true)
	m.EventPublished(nil)
	m.SecurityEvent("rate_limited")
}

func TestSecurityEvent(t *testing.T) {
	m := New()
	m.SecurityEvent("rate_limited")
	m.SecurityEvent("rate_limited")
	m.SecurityEvent("suspicious")
	if v := testutil.ToFloat64(m.securityEvents.WithLabelValues("rate_limited")); v != 2 {
		t.Fatalf("rate limited = %v", v)
	}
}
