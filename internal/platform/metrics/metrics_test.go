package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequestCountsByRouteAndStatus(t *testing.T) {
	c := New()
	c.RecordRequest(http.MethodGet, "/api/v1/payroll/runs", 200, 10*time.Millisecond)
	c.RecordRequest(http.MethodGet, "/api/v1/payroll/runs", 200, 20*time.Millisecond)
	c.RecordRequest(http.MethodPost, "/api/v1/payroll/runs/{runID}/post", 429, time.Millisecond)

	if got := testutil.ToFloat64(c.requests.WithLabelValues(http.MethodGet, "/api/v1/payroll/runs", "200")); got != 2 {
		t.Fatalf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(c.rateLimited); got != 1 {
		t.Fatalf("expected 1 rate limited request, got %v", got)
	}
}

func TestRecordJobAndExport(t *testing.T) {
	c := New()
	c.RecordJob("payroll.compute_taxes", "completed", time.Second)
	c.RecordExport("ach", true)
	c.RecordExport("ach", false)
	c.RecordTaxRecords(3)
	c.RecordTaxRecords(0)

	if got := testutil.ToFloat64(c.jobs.WithLabelValues("payroll.compute_taxes", "completed")); got != 1 {
		t.Fatalf("expected 1 completed job, got %v", got)
	}
	if got := testutil.ToFloat64(c.exports.WithLabelValues("ach", "failure")); got != 1 {
		t.Fatalf("expected 1 failed export, got %v", got)
	}
	if got := testutil.ToFloat64(c.taxRecords); got != 3 {
		t.Fatalf("expected 3 tax records, got %v", got)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.RecordRequest(http.MethodGet, "/", 200, time.Millisecond)
	c.RecordJob("k", "completed", time.Millisecond)
	c.RecordExport("csv", true)
	if c.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}

func TestHandlerServesExposition(t *testing.T) {
	c := New()
	c.RecordExport("csv", true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "clinic_payroll_exports_total") {
		t.Fatalf("expected export counter in exposition output")
	}
}
