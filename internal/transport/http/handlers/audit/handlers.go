package audithandler

import (
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"payledger/internal/domain/audit"
	"payledger/internal/domain/auth"
	"payledger/internal/transport/http/api"
	"payledger/internal/transport/http/middleware"
	"payledger/internal/transport/http/shared"
)

// Reader is satisfied by both audit.Service and the in-memory audit.Log.
type Reader interface {
	List(ctx context.Context, filter audit.Filter, limit, offset int) ([]audit.Event, error)
}

const exportLimit = 10000

type Handler struct {
	Events Reader
	Perms  middleware.PermissionChecker
}

func NewHandler(events Reader, perms middleware.PermissionChecker) *Handler {
	return &Handler{Events: events, Perms: perms}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/audit", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/events", h.handleListEvents)
		r.With(middleware.RequirePermission(auth.PermAuditRead, h.Perms)).Get("/events/export", h.handleExportEvents)
	})
}

func filterFromQuery(r *http.Request) audit.Filter {
	query := r.URL.Query()
	return audit.Filter{
		Action:     query.Get("action"),
		EmployeeID: query.Get("employee"),
		ActorID:    query.Get("actor"),
	}
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r)
	events, err := h.Events.List(r.Context(), filterFromQuery(r), page.Limit, page.Offset)
	if err != nil {
		slog.Warn("audit list failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, "audit_list_failed", "failed to list audit events", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, events, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleExportEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Events.List(r.Context(), filterFromQuery(r), exportLimit, 0)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "audit_export_failed", "failed to export audit events", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=audit-events.csv")
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"id", "actor_id", "action", "entity_type", "entity_id", "employee_identity", "request_id", "created_at"}); err != nil {
		slog.Warn("audit export header failed", "err", err)
	}
	for _, evt := range events {
		if err := writer.Write([]string{evt.ID, evt.ActorID, evt.Action, evt.EntityType, evt.EntityID, evt.EmployeeID, evt.RequestID, evt.CreatedAt.UTC().Format(time.RFC3339)}); err != nil {
			slog.Warn("audit export row failed", "err", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		slog.Warn("audit export flush failed", "err", err)
	}
}
