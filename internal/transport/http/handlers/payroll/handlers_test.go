package payrollhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"payledger/internal/domain/auth"
	"payledger/internal/domain/payroll"
	"payledger/internal/platform/jobs"
	"payledger/internal/transport/http/middleware"
)

var codePattern = regexp.MustCompile(`Confirmation code: (\d+)`)

type sentMail struct {
	to   string
	body string
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *captureMailer) Send(_ context.Context, _, to, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, body: body})
	return nil
}

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("expected a mail to be sent")
	}
	match := codePattern.FindStringSubmatch(m.sent[len(m.sent)-1].body)
	if match == nil {
		t.Fatalf("no code in mail body %q", m.sent[len(m.sent)-1].body)
	}
	return match[1]
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

type testServer struct {
	router http.Handler
	mailer *captureMailer
}

func newTestServer(t *testing.T, seed ...payroll.Employee) *testServer {
	t.Helper()
	svc := payroll.NewService(payroll.NewMemoryStore(seed...), payroll.Options{CodeHashCost: bcrypt.MinCost})
	mailer := &captureMailer{}
	h := NewHandler(svc, auth.StaticPermissions{}, mailer, "payroll@example.com", jobs.New(nil, nil))

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if role := r.Header.Get("X-Test-Role"); role != "" {
				r = r.WithContext(middleware.WithUser(r.Context(), auth.UserContext{UserID: "user-" + role, RoleName: role}))
			}
			next.ServeHTTP(w, r)
		})
	})
	h.RegisterRoutes(router)
	return &testServer{router: router, mailer: mailer}
}

func (s *testServer) do(t *testing.T, role, method, path string, payload any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(env.Data, &out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	return out
}

func (s *testServer) createEmployee(t *testing.T, email, phone string) payroll.Employee {
	t.Helper()
	rec, env := s.do(t, auth.RolePayrollClerk, http.MethodPost, "/employees", map[string]any{
		"name": "Asha Rao", "email": email, "phone": phone, "basePay": 30000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create employee: %d %s", rec.Code, rec.Body.String())
	}
	return decodeData[payroll.Employee](t, env)
}

func (s *testServer) createRecord(t *testing.T, identity string) payroll.SalaryRecord {
	t.Helper()
	rec, env := s.do(t, auth.RolePayrollClerk, http.MethodPost, "/employees/"+identity+"/records", map[string]any{
		"salaryType": "monthly", "period": "2024-01", "allowances": 2000, "deductions": 500,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create record: %d %s", rec.Code, rec.Body.String())
	}
	return decodeData[payroll.SalaryRecord](t, env)
}

func TestAuthorizedBonusUpdateFlow(t *testing.T) {
	srv := newTestServer(t)
	emp := srv.createEmployee(t, "asha@example.com", "+15550001")
	if emp.Identity != "EMP0001" {
		t.Fatalf("expected EMP0001, got %s", emp.Identity)
	}
	record := srv.createRecord(t, emp.Identity)
	if record.TotalSalary != 31500 {
		t.Fatalf("expected 31500, got %v", record.TotalSalary)
	}

	rec, env := srv.do(t, auth.RolePayrollClerk, http.MethodPost, "/employees/EMP0001/salary-updates", map[string]any{
		"targetRecordId":  record.ID,
		"proposedChanges": map[string]any{"bonus": 1000},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("request update: %d %s", rec.Code, rec.Body.String())
	}
	if _, leaked := decodeData[map[string]any](t, env)["code"]; leaked {
		t.Fatal("code must not be returned to the requester")
	}
	if srv.mailer.sent[0].to != "asha@example.com" {
		t.Fatalf("expected code mailed to employee, got %s", srv.mailer.sent[0].to)
	}
	code := srv.mailer.lastCode(t)

	rec, _ = srv.do(t, auth.RolePayrollClerk, http.MethodPost, "/employees/EMP0001/salary-updates/confirm", map[string]string{"code": code})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected clerk confirm to be forbidden, got %d", rec.Code)
	}

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	rec, env = srv.do(t, auth.RolePayrollApprover, http.MethodPost, "/employees/EMP0001/salary-updates/confirm", map[string]string{"code": wrong})
	if rec.Code != http.StatusUnprocessableEntity || env.Error.Code != "invalid_code" {
		t.Fatalf("expected invalid_code, got %d %s", rec.Code, rec.Body.String())
	}

	rec, env = srv.do(t, auth.RolePayrollApprover, http.MethodPost, "/employees/EMP0001/salary-updates/confirm", map[string]string{"code": code})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", rec.Code, rec.Body.String())
	}
	if updated := decodeData[payroll.SalaryRecord](t, env); updated.TotalSalary != 32500 || updated.Bonus != 1000 {
		t.Fatalf("expected bonus applied with total 32500, got %+v", updated)
	}

	rec, env = srv.do(t, auth.RolePayrollApprover, http.MethodPost, "/employees/EMP0001/salary-updates/confirm", map[string]string{"code": code})
	if rec.Code != http.StatusNotFound || env.Error.Code != "no_pending_update" {
		t.Fatalf("expected no_pending_update on replay, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCreateEmployeeValidation(t *testing.T) {
	srv := newTestServer(t)
	rec, env := srv.do(t, auth.RolePayrollClerk, http.MethodPost, "/employees", map[string]any{"name": "No Contact", "basePay": -1})
	if rec.Code != http.StatusBadRequest || env.Error.Code != "validation_error" {
		t.Fatalf("expected validation_error, got %d %s", rec.Code, rec.Body.String())
	}
	var details struct {
		Fields []struct {
			Field string `json:"field"`
		} `json:"fields"`
	}
	if err := json.Unmarshal(env.Error.Details, &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if len(details.Fields) != 3 {
		t.Fatalf("expected email, phone and basePay issues, got %+v", details.Fields)
	}
}

func TestCreateEmployeeDuplicateContact(t *testing.T) {
	srv := newTestServer(t)
	srv.createEmployee(t, "dup@example.com", "+15550002")
	rec, env := srv.do(t, auth.RolePayrollClerk, http.MethodPost, "/employees", map[string]any{
		"name": "Copy", "email": "DUP@example.com", "phone": "+15550003", "basePay": 100,
	})
	if rec.Code != http.StatusConflict || env.Error.Code != "duplicate_contact" {
		t.Fatalf("expected duplicate_contact, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestMarkPaidTwiceIsInvalidState(t *testing.T) {
	srv := newTestServer(t)
	emp := srv.createEmployee(t, "pay@example.com", "+15550004")
	record := srv.createRecord(t, emp.Identity)

	path := "/employees/" + emp.Identity + "/records/" + record.ID + "/pay"
	rec, env := srv.do(t, auth.RolePayrollClerk, http.MethodPost, path, map[string]string{"paymentDate": "2024-02-01", "paymentMethod": "cash"})
	if rec.Code != http.StatusOK {
		t.Fatalf("pay: %d %s", rec.Code, rec.Body.String())
	}
	if paid := decodeData[payroll.SalaryRecord](t, env); paid.PaymentStatus != payroll.PaymentStatusPaid || paid.PaymentMethod != "cash" {
		t.Fatalf("unexpected paid record %+v", paid)
	}

	rec, env = srv.do(t, auth.RolePayrollClerk, http.MethodPost, path, nil)
	if rec.Code != http.StatusConflict || env.Error.Code != "invalid_state" {
		t.Fatalf("expected invalid_state, got %d %s", rec.Code, rec.Body.String())
	}

	rec, env = srv.do(t, auth.RolePayrollClerk, http.MethodGet, "/employees/"+emp.Identity+"/totals", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("totals: %d", rec.Code)
	}
	if totals := decodeData[payroll.Totals](t, env); totals.Paid != 31500 || totals.Pending != 0 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

func TestUnknownEmployeeIsNotFound(t *testing.T) {
	srv := newTestServer(t)
	rec, env := srv.do(t, auth.RolePayrollClerk, http.MethodGet, "/employees/EMP9999", nil)
	if rec.Code != http.StatusNotFound || env.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestAnonymousRequestRejected(t *testing.T) {
	srv := newTestServer(t)
	rec, _ := srv.do(t, "", http.MethodGet, "/employees", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestDeliveryFailureCancelsRequest(t *testing.T) {
	srv := newTestServer(t)
	emp := srv.createEmployee(t, "fail@example.com", "+15550005")
	record := srv.createRecord(t, emp.Identity)
	srv.mailer.err = errors.New("smtp down")

	rec, env := srv.do(t, auth.RolePayrollClerk, http.MethodPost, "/employees/"+emp.Identity+"/salary-updates", map[string]any{
		"targetRecordId":  record.ID,
		"proposedChanges": map[string]any{"bonus": 10},
	})
	if rec.Code != http.StatusBadGateway || env.Error.Code != "delivery_failed" {
		t.Fatalf("expected delivery_failed, got %d %s", rec.Code, rec.Body.String())
	}

	rec, env = srv.do(t, auth.RolePayrollClerk, http.MethodGet, "/employees/"+emp.Identity+"/salary-updates", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pending: %d", rec.Code)
	}
	if view := decodeData[payroll.PendingView](t, env); view.State != payroll.UpdateStateNone {
		t.Fatalf("expected NONE after failed delivery, got %s", view.State)
	}
}

func TestRequestUpdateRejectsBadDate(t *testing.T) {
	srv := newTestServer(t)
	emp := srv.createEmployee(t, "date@example.com", "+15550006")
	record := srv.createRecord(t, emp.Identity)

	rec, env := srv.do(t, auth.RolePayrollClerk, http.MethodPost, "/employees/"+emp.Identity+"/salary-updates", map[string]any{
		"targetRecordId":  record.ID,
		"proposedChanges": map[string]any{"payDate": "31/01/2024"},
	})
	if rec.Code != http.StatusBadRequest || env.Error.Code != "validation_error" {
		t.Fatalf("expected validation_error, got %d %s", rec.Code, rec.Body.String())
	}
	if len(srv.mailer.sent) != 0 {
		t.Fatal("no code should be sent for a rejected proposal")
	}
}

func TestDownloadPayslip(t *testing.T) {
	srv := newTestServer(t)
	emp := srv.createEmployee(t, "slip@example.com", "+15550007")
	record := srv.createRecord(t, emp.Identity)

	rec, _ := srv.do(t, auth.RolePayrollClerk, http.MethodGet, "/employees/"+emp.Identity+"/records/"+record.ID+"/payslip", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("payslip: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "application/pdf" || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("expected a pdf, got %q", rec.Header().Get("Content-Type"))
	}
}

func TestCurrentRecordAt(t *testing.T) {
	srv := newTestServer(t)
	emp := srv.createEmployee(t, "current@example.com", "+15550008")
	record := srv.createRecord(t, emp.Identity)

	rec, env := srv.do(t, auth.RolePayrollClerk, http.MethodGet, "/employees/"+emp.Identity+"/records/current?at=2024-01-15", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("current: %d %s", rec.Code, rec.Body.String())
	}
	if got := decodeData[payroll.SalaryRecord](t, env); got.ID != record.ID {
		t.Fatalf("expected %s, got %s", record.ID, got.ID)
	}

	rec, _ = srv.do(t, auth.RolePayrollClerk, http.MethodGet, "/employees/"+emp.Identity+"/records/current?at=2024-03-15", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a period without records, got %d", rec.Code)
	}
}

func TestMaintenanceMigrateLegacy(t *testing.T) {
	legacy := payroll.Employee{
		Identity: "EMP0001",
		Name:     "Legacy",
		Contact:  payroll.Contact{Email: "legacy@example.com", Phone: "+15550009"},
		BasePay:  20000,
		Status:   payroll.EmployeeStatusActive,
		SalaryRecords: []payroll.SalaryRecord{{
			ID: "legacy-1", Month: "2024-01", BasicSalary: 20000,
			PaymentStatus: payroll.PaymentStatusPending, PaymentMethod: payroll.PaymentMethodBankTransfer,
		}},
	}
	srv := newTestServer(t, legacy)

	rec, _ := srv.do(t, auth.RolePayrollClerk, http.MethodPost, "/maintenance/migrate-legacy", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected clerk to be forbidden, got %d", rec.Code)
	}

	rec, env := srv.do(t, auth.RoleSystemAdmin, http.MethodPost, "/maintenance/migrate-legacy", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("migrate: %d %s", rec.Code, rec.Body.String())
	}
	if summary := decodeData[payroll.MigrationSummary](t, env); summary.Changed != 1 || summary.Records != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	rec, env = srv.do(t, auth.RoleSystemAdmin, http.MethodPost, "/employees/EMP0001/migrate", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("migrate employee: %d", rec.Code)
	}
	if result := decodeData[payroll.MigrationResult](t, env); result.Changed {
		t.Fatal("expected second migration to be a no-op")
	}

	next := srv.createEmployee(t, "new@example.com", "+15550010")
	if next.Identity != "EMP0002" {
		t.Fatalf("expected EMP0002 after seeded EMP0001, got %s", next.Identity)
	}
}

func TestAuditorSeesMaskedContact(t *testing.T) {
	srv := newTestServer(t)
	emp := srv.createEmployee(t, "masked@example.com", "+15550011")

	rec, env := srv.do(t, auth.RoleAuditor, http.MethodGet, "/employees/"+emp.Identity, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	got := decodeData[payroll.Employee](t, env)
	if got.Contact.Email != "m***@example.com" || got.Contact.Phone != "******011" {
		t.Fatalf("expected masked contact, got %+v", got.Contact)
	}

	rec, env = srv.do(t, auth.RolePayrollClerk, http.MethodGet, "/employees", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d", rec.Code)
	}
	if list := decodeData[[]payroll.Employee](t, env); list[0].Contact.Email != "masked@example.com" {
		t.Fatalf("expected clerk to see full contact, got %+v", list[0].Contact)
	}
}
