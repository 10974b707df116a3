package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/daniacca/stochkin/internal/kinetics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecordsRunLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.RunStarted("decay", kinetics.MethodDirect)
	if got := testutil.ToFloat64(c.ActiveRuns); got != 1 {
		t.Fatalf("active_runs = %v, want 1", got)
	}
	c.RunFinished("decay", kinetics.StatusCompleted, 250, 20*time.Millisecond)

	if got := testutil.ToFloat64(c.RunsStarted.WithLabelValues("decay", "direct")); got != 1 {
		t.Fatalf("runs_started_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.RunsFinished.WithLabelValues("decay", "completed")); got != 1 {
		t.Fatalf("runs_finished_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.RunSteps.WithLabelValues("decay")); got != 250 {
		t.Fatalf("run_steps_total = %v, want 250", got)
	}
	if got := testutil.ToFloat64(c.ActiveRuns); got != 0 {
		t.Fatalf("active_runs = %v, want 0", got)
	}
	if n := testutil.CollectAndCount(c.RunDurations); n != 1 {
		t.Fatalf("run_duration_seconds series = %d, want 1", n)
	}
}

func TestNewCollectorIsIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	if first.RunsStarted != second.RunsStarted {
		t.Fatal("expected the existing counter to be reused")
	}
}

func TestInstrumentHandlerAndMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	h := c.InstrumentHandler("/models/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/models/x", nil))

	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues("/models/{id}", "404")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "stochkin_http_requests_total") {
		t.Fatalf("metrics output missing http counter:\n%s", body)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RunStarted("m", kinetics.MethodDirect)
	c.RunFinished("m", kinetics.StatusFailed, 0, 0)
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	if got := c.InstrumentHandler("/x", next); got == nil {
		t.Fatal("expected passthrough handler")
	}
}
