package payroll

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"payledger/internal/domain/audit"
)

type ImportSummary struct {
	Imported int      `json:"imported"`
	Skipped  []string `json:"skipped,omitempty"`
}

// ImportLegacy loads employees exported from the old system with their
// identities and records as-is. Identities already present are skipped, so
// a rerun is harmless. Records keep their legacy shape until Migrate runs.
//
// The whole export is checked before anything is written; one bad employee
// rejects the batch with a ValidationError naming it.
func (s *Service) ImportLegacy(ctx context.Context, employees []Employee, actor string) (ImportSummary, error) {
	var summary ImportSummary
	prepared, err := s.prepareImport(employees)
	if err != nil {
		return summary, err
	}
	for i := range prepared {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		emp := &prepared[i]
		err := s.store.InsertEmployee(ctx, emp)
		if errors.Is(err, ErrAllocationConflict) || errors.Is(err, ErrDuplicateContact) {
			s.logger.Warn("legacy employee skipped", "identity", emp.Identity, "err", err)
			summary.Skipped = append(summary.Skipped, emp.Identity)
			continue
		}
		if err != nil {
			return summary, fmt.Errorf("import %s: %w", emp.Identity, err)
		}
		summary.Imported++
		s.record(ctx, audit.Event{
			ActorID: actor, Action: ActionEmployeeImported, EntityType: "employee",
			EntityID: emp.Identity, EmployeeID: emp.Identity,
		})
	}
	s.logger.Info("legacy import finished", "imported", summary.Imported, "skipped", len(summary.Skipped))
	return summary, nil
}

func (s *Service) prepareImport(employees []Employee) ([]Employee, error) {
	var v issues
	now := s.now()
	recordIDs := map[string]bool{}
	out := make([]Employee, 0, len(employees))
	for _, src := range employees {
		emp := src.Clone()
		emp.Identity = strings.ToUpper(strings.TrimSpace(emp.Identity))
		if _, ok := ParseIdentity(emp.Identity); !ok {
			v.add("identity", fmt.Sprintf("%q is not a valid identity", emp.Identity))
			continue
		}
		if !validAmount(emp.BasePay) {
			v.add(emp.Identity+".basePay", "must be a non-negative amount")
		}
		emp.Contact.Email = NormalizeEmail(emp.Contact.Email)
		emp.Contact.Phone = NormalizePhone(emp.Contact.Phone)
		if emp.Status == "" {
			emp.Status = EmployeeStatusActive
		}
		if emp.CreatedAt.IsZero() {
			emp.CreatedAt = now
		}
		if emp.UpdatedAt.IsZero() {
			emp.UpdatedAt = now
		}
		// Staged requests from the old system carry no usable challenge.
		emp.PendingUpdate = nil

		for i := range emp.SalaryRecords {
			rec := &emp.SalaryRecords[i]
			// Exports often omit record ids; ids must be unique across the
			// ledger for records to stay addressable.
			if rec.ID = strings.TrimSpace(rec.ID); rec.ID == "" || recordIDs[rec.ID] {
				rec.ID = uuid.NewString()
			}
			recordIDs[rec.ID] = true
			rec.PaymentStatus = strings.ToLower(strings.TrimSpace(rec.PaymentStatus))
			if rec.PaymentStatus == "" {
				rec.PaymentStatus = PaymentStatusPending
			}
			if rec.CreatedAt.IsZero() {
				rec.CreatedAt = emp.CreatedAt
			}
			if rec.UpdatedAt.IsZero() {
				rec.UpdatedAt = emp.UpdatedAt
			}
			for _, issue := range componentIssues(*rec) {
				v.add(fmt.Sprintf("%s.salaryRecords[%d].%s", emp.Identity, i, issue.Field), issue.Reason)
			}
		}
		emp.recomputeTotals()
		out = append(out, emp)
	}
	if err := v.err(); err != nil {
		return nil, err
	}
	return out, nil
}
