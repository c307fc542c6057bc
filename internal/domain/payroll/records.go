package payroll

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// buildRecord validates a draft and fills every derivable field. The
// returned record is pending and already carries its computed total.
func buildRecord(draft RecordDraft, basePay float64, now time.Time) (SalaryRecord, error) {
	var v issues

	salaryType := strings.ToLower(strings.TrimSpace(draft.SalaryType))
	if salaryType == "" {
		v.add("salaryType", "is required")
	} else if !oneOf(salaryType, SalaryTypes) {
		v.add("salaryType", "must be one of "+strings.Join(SalaryTypes, ", "))
	}

	period := strings.TrimSpace(draft.Period)
	start := dateOnly(draft.WindowStart)
	end := dateOnly(draft.WindowEnd)

	if period == "" && !start.IsZero() && salaryType != SalaryTypeProject {
		period = PeriodKey(salaryType, start)
	}
	if period == "" {
		v.add("period", "is required")
	} else if salaryType != "" && salaryType != SalaryTypeProject {
		periodStart, periodEnd, ok := PeriodWindow(salaryType, period)
		if !ok {
			v.add("period", "is not a valid "+salaryType+" period key")
		} else {
			if start.IsZero() {
				start = periodStart
			}
			if end.IsZero() {
				end = periodEnd
			}
		}
	}

	if start.IsZero() {
		v.add("windowStart", "is required")
	}
	if end.IsZero() {
		v.add("windowEnd", "is required")
	}

	basic := basePay
	if draft.BasicSalary != nil {
		basic = *draft.BasicSalary
	}

	method := strings.ToLower(strings.TrimSpace(draft.PaymentMethod))
	if method == "" {
		method = PaymentMethodBankTransfer
	}

	payDate := dateOnly(draft.PayDate)
	if payDate.IsZero() {
		payDate = end
	}

	label := strings.TrimSpace(draft.PeriodLabel)
	if label == "" {
		label = PeriodLabel(salaryType, period)
	}

	rec := SalaryRecord{
		ID:            uuid.NewString(),
		SalaryType:    salaryType,
		Period:        period,
		PeriodLabel:   label,
		WindowStart:   start,
		WindowEnd:     end,
		PayDate:       payDate,
		BasicSalary:   basic,
		Allowances:    draft.Allowances,
		Bonus:         draft.Bonus,
		Overtime:      draft.Overtime,
		Deductions:    draft.Deductions,
		PaymentStatus: PaymentStatusPending,
		PaymentMethod: method,
		Notes:         strings.TrimSpace(draft.Notes),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	v = append(v, recordIssues(rec)...)
	if err := v.err(); err != nil {
		return SalaryRecord{}, err
	}
	rec.Recompute()
	return rec, nil
}

// recordIssues checks the invariants every stored record must satisfy.
func recordIssues(rec SalaryRecord) issues {
	v := componentIssues(rec)
	if rec.PaymentMethod != "" && !oneOf(rec.PaymentMethod, PaymentMethods) {
		v.add("paymentMethod", "must be one of "+strings.Join(PaymentMethods, ", "))
	}
	if !oneOf(rec.PaymentStatus, PaymentStatuses) {
		v.add("paymentStatus", "must be one of "+strings.Join(PaymentStatuses, ", "))
	}
	return v
}

// componentIssues covers amounts and the window, the part legacy records
// are held to as well.
func componentIssues(rec SalaryRecord) issues {
	var v issues
	amounts := []struct {
		field string
		value float64
	}{
		{"basicSalary", rec.BasicSalary},
		{"allowances", rec.Allowances},
		{"bonus", rec.Bonus},
		{"overtime", rec.Overtime},
		{"deductions", rec.Deductions},
	}
	for _, amount := range amounts {
		if !validAmount(amount.value) {
			v.add(amount.field, "must be a non-negative amount")
		}
	}
	if !rec.WindowStart.IsZero() && !rec.WindowEnd.IsZero() && rec.WindowEnd.Before(rec.WindowStart) {
		v.add("windowStart", "must be on or before windowEnd")
		v.add("windowEnd", "must be on or after windowStart")
	}
	return v
}

// applyChanges writes a confirmed delta onto rec. Payment status may move in
// any direction here; this is the authorized-edit path.
func applyChanges(rec *SalaryRecord, changes RecordChanges, now time.Time) error {
	next := rec.clone()
	if changes.BasicSalary != nil {
		next.BasicSalary = *changes.BasicSalary
	}
	if changes.Allowances != nil {
		next.Allowances = *changes.Allowances
	}
	if changes.Bonus != nil {
		next.Bonus = *changes.Bonus
	}
	if changes.Overtime != nil {
		next.Overtime = *changes.Overtime
	}
	if changes.Deductions != nil {
		next.Deductions = *changes.Deductions
	}
	if changes.WindowStart != nil {
		next.WindowStart = dateOnly(*changes.WindowStart)
	}
	if changes.WindowEnd != nil {
		next.WindowEnd = dateOnly(*changes.WindowEnd)
	}
	if changes.PayDate != nil {
		next.PayDate = dateOnly(*changes.PayDate)
	}
	if changes.PaymentMethod != nil {
		next.PaymentMethod = strings.ToLower(strings.TrimSpace(*changes.PaymentMethod))
	}
	if changes.Notes != nil {
		next.Notes = strings.TrimSpace(*changes.Notes)
	}
	if changes.PaymentStatus != nil {
		status := strings.ToLower(strings.TrimSpace(*changes.PaymentStatus))
		next.PaymentStatus = status
		switch {
		case status == PaymentStatusPaid && next.PaymentDate == nil:
			paid := now
			next.PaymentDate = &paid
		case status != PaymentStatusPaid:
			next.PaymentDate = nil
		}
	}

	if err := recordIssues(next).err(); err != nil {
		return err
	}
	next.UpdatedAt = now
	next.Recompute()
	*rec = next
	return nil
}
