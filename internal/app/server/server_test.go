package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"payledger/internal/domain/auth"
	"payledger/internal/platform/config"
)

func memoryConfig() config.Config {
	return config.Config{
		Store:           config.StoreMemory,
		Environment:     "development",
		JWTSecret:       "test-secret",
		ChallengeTTL:    time.Minute,
		MaxCodeAttempts: 3,
		MaxBodyBytes:    1 << 20,
		MetricsEnabled:  true,
	}
}

func bearer(t *testing.T, role string) string {
	t.Helper()
	token, err := auth.GenerateToken("test-secret", auth.Claims{UserID: "u-" + role, RoleName: role}, time.Hour)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	return "Bearer " + token
}

func call(t *testing.T, h http.Handler, token, method, path string, payload any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store = "sqlite"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("expected invalid store to be rejected")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app, err := New(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer app.Close()

	for _, path := range []string{"/healthz", "/readyz"} {
		rec, _ := call(t, app.Router, "", http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
	if rec, _ := call(t, app.Router, "", http.MethodGet, "/healthz", nil); rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}

	rec, _ := call(t, app.Router, "", http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "payledger_http_requests_total") {
		t.Fatalf("expected request counter in metrics, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestEndToEndAuthorizedUpdate(t *testing.T) {
	app, err := New(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer app.Close()
	clerk := bearer(t, auth.RolePayrollClerk)
	approver := bearer(t, auth.RolePayrollApprover)

	rec, body := call(t, app.Router, clerk, http.MethodPost, "/api/v1/employees", map[string]any{
		"name": "Ravi", "email": "ravi@example.com", "phone": "+15551234", "basePay": 30000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create employee: %d %s", rec.Code, rec.Body.String())
	}
	identity := body["data"].(map[string]any)["identity"].(string)

	rec, body = call(t, app.Router, clerk, http.MethodPost, "/api/v1/employees/"+identity+"/records", map[string]any{
		"salaryType": "monthly", "period": "2024-01", "allowances": 2000, "deductions": 500,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create record: %d %s", rec.Code, rec.Body.String())
	}
	recordID := body["data"].(map[string]any)["id"].(string)

	rec, body = call(t, app.Router, clerk, http.MethodPost, "/api/v1/employees/"+identity+"/salary-updates", map[string]any{
		"targetRecordId": recordID, "proposedChanges": map[string]any{"bonus": 1000},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("request: %d %s", rec.Code, rec.Body.String())
	}
	// Development without mail delivery exposes the code.
	code, _ := body["data"].(map[string]any)["code"].(string)
	if code == "" {
		t.Fatal("expected code in development response")
	}

	rec, body = call(t, app.Router, approver, http.MethodPost, "/api/v1/employees/"+identity+"/salary-updates/confirm", map[string]string{"code": code})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", rec.Code, rec.Body.String())
	}
	if total := body["data"].(map[string]any)["totalSalary"].(float64); total != 32500 {
		t.Fatalf("expected 32500, got %v", total)
	}

	rec, _ = call(t, app.Router, "", http.MethodGet, "/metrics", nil)
	if !strings.Contains(rec.Body.String(), `payledger_salary_update_outcomes_total{outcome="confirmed"} 1`) {
		t.Fatalf("expected confirmed outcome metric, got %s", rec.Body.String())
	}

	rec, body = call(t, app.Router, bearer(t, auth.RoleAuditor), http.MethodGet, "/api/v1/audit/events?employee="+identity, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit: %d", rec.Code)
	}
	if events := body["data"].([]any); len(events) < 4 {
		t.Fatalf("expected audit events for the flow, got %d", len(events))
	}
}
