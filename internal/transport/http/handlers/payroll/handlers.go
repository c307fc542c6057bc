package payrollhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"payledger/internal/domain/auth"
	"payledger/internal/domain/payroll"
	"payledger/internal/platform/email"
	"payledger/internal/platform/jobs"
	"payledger/internal/transport/http/api"
	"payledger/internal/transport/http/middleware"
	"payledger/internal/transport/http/shared"
)

type Handler struct {
	Service  *payroll.Service
	Perms    middleware.PermissionChecker
	Mailer   email.Mailer
	MailFrom string
	Jobs     *jobs.Service
	// ExposeCodes returns challenge codes in the response body. Only for
	// development setups without mail delivery.
	ExposeCodes bool
}

func NewHandler(service *payroll.Service, perms middleware.PermissionChecker, mailer email.Mailer, mailFrom string, runner *jobs.Service) *Handler {
	return &Handler{Service: service, Perms: perms, Mailer: mailer, MailFrom: mailFrom, Jobs: runner}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/employees", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/", h.handleListEmployees)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/", h.handleCreateEmployee)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/{identity}", h.handleGetEmployee)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Patch("/{identity}/status", h.handleSetStatus)
		r.With(middleware.RequirePermission(auth.PermEmployeesPurge, h.Perms)).Delete("/{identity}", h.handlePurgeEmployee)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/{identity}/records", h.handleListRecords)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/{identity}/records", h.handleCreateRecord)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/{identity}/records/current", h.handleCurrentRecord)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/{identity}/records/{recordID}/pay", h.handleMarkPaid)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/{identity}/records/{recordID}/cancel", h.handleMarkCancelled)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/{identity}/records/{recordID}/payslip", h.handleDownloadPayslip)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/{identity}/totals", h.handleTotals)
		r.With(middleware.RequirePermission(auth.PermPayrollRead, h.Perms)).Get("/{identity}/salary-updates", h.handlePendingUpdate)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Post("/{identity}/salary-updates", h.handleRequestUpdate)
		r.With(middleware.RequirePermission(auth.PermSalaryAuthorize, h.Perms)).Post("/{identity}/salary-updates/confirm", h.handleConfirmUpdate)
		r.With(middleware.RequirePermission(auth.PermPayrollWrite, h.Perms)).Delete("/{identity}/salary-updates", h.handleCancelUpdate)
		r.With(middleware.RequirePermission(auth.PermMaintenanceRun, h.Perms)).Post("/{identity}/migrate", h.handleMigrateEmployee)
	})
	r.Route("/maintenance", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermMaintenanceRun, h.Perms)).Post("/migrate-legacy", h.handleMigrateAll)
		r.With(middleware.RequirePermission(auth.PermMaintenanceRun, h.Perms)).Post("/sweep-pending", h.handleSweepPending)
	})
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	status := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	if status != "" {
		v := shared.NewValidator()
		v.Enum("status", status, payroll.EmployeeStatus, "must be one of "+strings.Join(payroll.EmployeeStatus, ", "))
		if v.Reject(w, middleware.GetRequestID(r.Context())) {
			return
		}
	}
	employees, err := h.Service.ListEmployees(r.Context(), status)
	if err != nil {
		writeError(w, r, err, "employees_list_failed")
		return
	}
	page := shared.ParsePagination(r)
	employees = shared.Window(employees, page)
	for i := range employees {
		h.filterEmployeeFields(r.Context(), &employees[i])
	}
	api.Success(w, employees, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var payload employeePayload
	if !decode(w, r, &payload) {
		return
	}
	emp, err := h.Service.CreateEmployee(r.Context(), payroll.NewEmployee{
		Name:    payload.Name,
		Email:   payload.Email,
		Phone:   payload.Phone,
		BasePay: payload.BasePay,
		Status:  payload.Status,
	}, actorID(r.Context()))
	if err != nil {
		writeError(w, r, err, "employee_create_failed")
		return
	}
	api.Created(w, emp, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Service.GetEmployee(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		writeError(w, r, err, "employee_get_failed")
		return
	}
	h.filterEmployeeFields(r.Context(), emp)
	api.Success(w, emp, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var payload statusPayload
	if !decode(w, r, &payload) {
		return
	}
	emp, err := h.Service.SetStatus(r.Context(), chi.URLParam(r, "identity"), payload.Status, actorID(r.Context()))
	if err != nil {
		writeError(w, r, err, "employee_status_failed")
		return
	}
	api.Success(w, emp, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePurgeEmployee(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	if err := h.Service.PurgeEmployee(r.Context(), identity, actorID(r.Context())); err != nil {
		writeError(w, r, err, "employee_purge_failed")
		return
	}
	api.Success(w, map[string]string{"identity": identity, "status": "purged"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := payroll.RecordFilter{
		SalaryType:    strings.ToLower(strings.TrimSpace(query.Get("salaryType"))),
		PaymentStatus: strings.ToLower(strings.TrimSpace(query.Get("paymentStatus"))),
	}
	v := shared.NewValidator()
	v.Enum("salaryType", filter.SalaryType, payroll.SalaryTypes, "must be one of "+strings.Join(payroll.SalaryTypes, ", "))
	v.Enum("paymentStatus", filter.PaymentStatus, payroll.PaymentStatuses, "must be one of "+strings.Join(payroll.PaymentStatuses, ", "))
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	records, err := h.Service.Records(r.Context(), chi.URLParam(r, "identity"), filter)
	if err != nil {
		writeError(w, r, err, "records_list_failed")
		return
	}
	api.Success(w, records, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var payload recordPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	draft := payload.draft(v, "")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	rec, err := h.Service.CreateRecord(r.Context(), chi.URLParam(r, "identity"), draft, actorID(r.Context()))
	if err != nil {
		writeError(w, r, err, "record_create_failed")
		return
	}
	api.Created(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCurrentRecord(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("at")); raw != "" {
		v := shared.NewValidator()
		at, ok := v.Date("at", raw)
		if !ok {
			v.Reject(w, middleware.GetRequestID(r.Context()))
			return
		}
		now = at
	}
	rec, err := h.Service.CurrentPeriodRecord(r.Context(), chi.URLParam(r, "identity"), now)
	if err != nil {
		writeError(w, r, err, "record_current_failed")
		return
	}
	if rec == nil {
		api.Fail(w, http.StatusNotFound, "not_found", "no record for the current period", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	var payload payPayload
	if r.ContentLength != 0 && !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	var paidOn time.Time
	if strings.TrimSpace(payload.PaymentDate) != "" {
		paidOn, _ = v.Date("paymentDate", payload.PaymentDate)
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	rec, err := h.Service.MarkPaid(r.Context(), chi.URLParam(r, "identity"), chi.URLParam(r, "recordID"), paidOn, payload.PaymentMethod, actorID(r.Context()))
	if err != nil {
		writeError(w, r, err, "record_pay_failed")
		return
	}
	api.Success(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMarkCancelled(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Service.MarkCancelled(r.Context(), chi.URLParam(r, "identity"), chi.URLParam(r, "recordID"), actorID(r.Context()))
	if err != nil {
		writeError(w, r, err, "record_cancel_failed")
		return
	}
	api.Success(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDownloadPayslip(w http.ResponseWriter, r *http.Request) {
	emp, rec, err := h.Service.Record(r.Context(), chi.URLParam(r, "identity"), chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, r, err, "payslip_failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=payslip-%s-%s.pdf", emp.Identity, rec.ID))
	if err := payroll.RenderPayslip(w, *emp, rec); err != nil {
		slog.Warn("payslip render failed", "identity", emp.Identity, "recordId", rec.ID, "err", err)
	}
}

func (h *Handler) handleTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Service.Totals(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		writeError(w, r, err, "totals_failed")
		return
	}
	api.Success(w, totals, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePendingUpdate(w http.ResponseWriter, r *http.Request) {
	view, err := h.Service.PendingUpdate(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		writeError(w, r, err, "salary_update_get_failed")
		return
	}
	api.Success(w, view, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleRequestUpdate(w http.ResponseWriter, r *http.Request) {
	var payload proposalPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	proposal := payload.proposal(v)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	identity := chi.URLParam(r, "identity")
	challenge, err := h.Service.RequestUpdate(r.Context(), identity, proposal, actorID(r.Context()))
	if err != nil {
		writeError(w, r, err, "salary_update_request_failed")
		return
	}

	if err := h.deliverCode(r.Context(), identity, challenge); err != nil {
		slog.Warn("challenge delivery failed", "identity", identity, "updateId", challenge.RequestID, "err", err)
		if cancelErr := h.Service.CancelUpdate(r.Context(), identity, actorID(r.Context())); cancelErr != nil {
			slog.Warn("cancel after failed delivery", "identity", identity, "err", cancelErr)
		}
		api.Fail(w, http.StatusBadGateway, "delivery_failed", "failed to deliver confirmation code", middleware.GetRequestID(r.Context()))
		return
	}

	out := map[string]any{
		"requestId": challenge.RequestID,
		"expiresAt": challenge.ExpiresAt,
		"state":     payroll.UpdateStateRequested,
	}
	if h.ExposeCodes {
		out["code"] = challenge.Code
	}
	api.WriteJSON(w, http.StatusAccepted, api.Envelope{Success: true, Data: out, RequestID: middleware.GetRequestID(r.Context())})
}

// deliverCode mails the code to the employee's registered address. The code
// never reaches the requesting actor unless ExposeCodes is set.
func (h *Handler) deliverCode(ctx context.Context, identity string, challenge payroll.Challenge) error {
	if h.Mailer == nil {
		return nil
	}
	emp, err := h.Service.GetEmployee(ctx, identity)
	if err != nil {
		return err
	}
	subject, body := email.ChallengeMessage(emp.Identity, challenge.Code, challenge.ExpiresAt)
	return h.Mailer.Send(ctx, h.MailFrom, emp.Contact.Email, subject, body)
}

func (h *Handler) handleConfirmUpdate(w http.ResponseWriter, r *http.Request) {
	var payload confirmPayload
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("code", payload.Code, "is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	rec, err := h.Service.ConfirmUpdate(r.Context(), chi.URLParam(r, "identity"), payload.Code, actorID(r.Context()))
	if err != nil {
		writeError(w, r, err, "salary_update_confirm_failed")
		return
	}
	api.Success(w, rec, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCancelUpdate(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.CancelUpdate(r.Context(), chi.URLParam(r, "identity"), actorID(r.Context())); err != nil {
		writeError(w, r, err, "salary_update_cancel_failed")
		return
	}
	api.Success(w, payroll.PendingView{State: payroll.UpdateStateNone}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMigrateEmployee(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.MigrateEmployee(r.Context(), chi.URLParam(r, "identity"), actorID(r.Context()))
	if err != nil {
		writeError(w, r, err, "migration_failed")
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMigrateAll(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r.Context())
	details, err := h.Jobs.RunNow(r.Context(), jobs.JobLegacyMigration, func(ctx context.Context) (any, error) {
		return h.Service.MigrateAll(ctx, actor)
	})
	if err != nil {
		writeError(w, r, err, "migration_failed")
		return
	}
	api.Success(w, details, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleSweepPending(w http.ResponseWriter, r *http.Request) {
	details, err := h.Jobs.RunNow(r.Context(), jobs.JobPendingSweep, jobs.SweepJob(h.Service))
	if err != nil {
		writeError(w, r, err, "sweep_failed")
		return
	}
	api.Success(w, details, middleware.GetRequestID(r.Context()))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

func actorID(ctx context.Context) string {
	if user, ok := middleware.GetUser(ctx); ok {
		return user.UserID
	}
	return ""
}

// writeError maps domain errors to envelope codes. Anything unrecognized is
// logged and reported with fallback.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	requestID := middleware.GetRequestID(r.Context())

	var validation *payroll.ValidationError
	var codeErr *payroll.CodeError
	switch {
	case errors.As(err, &validation):
		issues := make([]shared.ValidationIssue, 0, len(validation.Issues))
		for _, issue := range validation.Issues {
			issues = append(issues, shared.ValidationIssue{Field: issue.Field, Reason: issue.Reason})
		}
		shared.FailValidation(w, requestID, issues)
	case errors.Is(err, payroll.ErrDuplicateContact):
		api.Fail(w, http.StatusConflict, "duplicate_contact", "email or phone already registered", requestID)
	case errors.Is(err, payroll.ErrValidation):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), requestID)
	case errors.Is(err, payroll.ErrEmployeeNotFound), errors.Is(err, payroll.ErrRecordNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), requestID)
	case errors.Is(err, payroll.ErrInvalidStateTransition):
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), requestID)
	case errors.Is(err, payroll.ErrPendingUpdateExists):
		api.Fail(w, http.StatusConflict, "pending_update_exists", err.Error(), requestID)
	case errors.Is(err, payroll.ErrNoPendingUpdate):
		api.Fail(w, http.StatusNotFound, "no_pending_update", err.Error(), requestID)
	case errors.Is(err, payroll.ErrExpiredChallenge):
		api.Fail(w, http.StatusGone, "challenge_expired", err.Error(), requestID)
	case errors.Is(err, payroll.ErrTooManyAttempts):
		api.Fail(w, http.StatusTooManyRequests, "too_many_attempts", err.Error(), requestID)
	case errors.As(err, &codeErr):
		api.FailWithDetails(w, http.StatusUnprocessableEntity, "invalid_code", "invalid confirmation code",
			map[string]int{"attempts": codeErr.Attempts, "remaining": codeErr.Remaining}, requestID)
	case errors.Is(err, payroll.ErrInvalidCode):
		api.Fail(w, http.StatusUnprocessableEntity, "invalid_code", "invalid confirmation code", requestID)
	case errors.Is(err, payroll.ErrAllocationUnavailable):
		api.Fail(w, http.StatusServiceUnavailable, "allocation_unavailable", err.Error(), requestID)
	default:
		slog.Error("payroll request failed", "path", r.URL.Path, "code", fallback, "requestId", requestID, "err", err)
		api.Fail(w, http.StatusInternalServerError, fallback, "request failed", requestID)
	}
}
