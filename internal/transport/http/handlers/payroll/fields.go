package payrollhandler

import (
	"context"
	"strings"

	"payledger/internal/domain/auth"
	"payledger/internal/domain/payroll"
	"payledger/internal/transport/http/middleware"
)

// filterEmployeeFields masks contact details for principals that cannot
// write payroll data, such as auditors.
func (h *Handler) filterEmployeeFields(ctx context.Context, emp *payroll.Employee) {
	user, ok := middleware.GetUser(ctx)
	if ok {
		allowed, err := h.Perms.HasPermission(ctx, user.RoleName, auth.PermPayrollWrite)
		if err == nil && allowed {
			return
		}
	}
	emp.Contact.Email = maskEmail(emp.Contact.Email)
	emp.Contact.Phone = maskTail(emp.Contact.Phone, 3)
}

func maskEmail(address string) string {
	local, domain, ok := strings.Cut(address, "@")
	if !ok || local == "" {
		return maskTail(address, 0)
	}
	return local[:1] + "***@" + domain
}

func maskTail(value string, keep int) string {
	if len(value) <= keep {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-keep) + value[len(value)-keep:]
}
