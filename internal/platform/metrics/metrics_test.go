package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCollectorSnapshot(t *testing.T) {
	c := New()
	c.Record(200, 20*time.Millisecond)
	c.Record(503, 40*time.Millisecond)

	snap := c.Snapshot()
	if snap["requestsTotal"] != uint64(2) {
		t.Fatalf("expected 2 requests, got %v", snap["requestsTotal"])
	}
	if snap["errorsTotal"] != uint64(1) {
		t.Fatalf("expected 1 error, got %v", snap["errorsTotal"])
	}
	if snap["avgDurationMs"] != float64(30) {
		t.Fatalf("expected avg 30ms, got %v", snap["avgDurationMs"])
	}
}

func TestHandlerExposesOutcomes(t *testing.T) {
	c := New()
	c.UpdateOutcome("confirmed")
	c.UpdateOutcome("confirmed")
	c.JobRun("pending_update_sweep", "completed")
	New().UpdateOutcome("confirmed")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), `payledger_salary_update_outcomes_total{outcome="confirmed"} 2`) {
		t.Fatalf("expected confirmed outcome count in output:\n%s", body)
	}
	if !strings.Contains(string(body), `payledger_jobs_runs_total{job="pending_update_sweep",status="completed"} 1`) {
		t.Fatalf("expected job run count in output:\n%s", body)
	}
}
