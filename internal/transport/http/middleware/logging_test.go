package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type countingRecorder struct {
	statuses []int
}

func (c *countingRecorder) Record(status int, _ time.Duration) {
	c.statuses = append(c.statuses, status)
}

func TestLoggerRecordsStatus(t *testing.T) {
	recorder := &countingRecorder{}
	handler := Logger(recorder)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(recorder.statuses) != 2 || recorder.statuses[0] != http.StatusTeapot {
		t.Fatalf("unexpected recorded statuses %v", recorder.statuses)
	}
}

func TestLoggerDefaultsToOK(t *testing.T) {
	recorder := &countingRecorder{}
	handler := Logger(recorder)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if recorder.statuses[0] != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.statuses[0])
	}
}
