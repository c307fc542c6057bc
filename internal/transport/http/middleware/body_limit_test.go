package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBodyLimitRejectsDeclaredOversize(t *testing.T) {
	called := false
	handler := BodyLimit(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodPost, "/employees", strings.NewReader(`{"name":"too long"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge || called {
		t.Fatalf("expected 413 without reaching the handler, got %d called=%v", rec.Code, called)
	}
	if !strings.Contains(rec.Body.String(), "payload_too_large") {
		t.Fatalf("expected envelope code, got %s", rec.Body.String())
	}
}

func TestBodyLimitPassesSmallBodies(t *testing.T) {
	var got string
	handler := BodyLimit(64)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		got = string(raw)
	}))

	req := httptest.NewRequest(http.MethodDelete, "/employees/EMP0001/salary-updates", strings.NewReader(`{}`))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got != `{}` {
		t.Fatalf("expected body passed through, got %q", got)
	}
}

func TestSecureHeaders(t *testing.T) {
	handler := SecureHeaders(true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/employees", nil))

	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("expected no-store, got %q", rec.Header().Get("Cache-Control"))
	}
	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("expected HSTS in production")
	}

	rec = httptest.NewRecorder()
	SecureHeaders(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS must stay off outside production")
	}
}
