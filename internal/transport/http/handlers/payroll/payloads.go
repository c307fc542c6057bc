package payrollhandler

import (
	"strings"
	"time"

	"payledger/internal/domain/payroll"
	"payledger/internal/transport/http/shared"
)

type employeePayload struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Phone   string  `json:"phone"`
	BasePay float64 `json:"basePay"`
	Status  string  `json:"status"`
}

type statusPayload struct {
	Status string `json:"status"`
}

type payPayload struct {
	PaymentDate   string `json:"paymentDate"`
	PaymentMethod string `json:"paymentMethod"`
}

type confirmPayload struct {
	Code string `json:"code"`
}

// recordPayload carries dates as YYYY-MM-DD or RFC3339 strings.
type recordPayload struct {
	SalaryType    string   `json:"salaryType"`
	Period        string   `json:"period"`
	PeriodLabel   string   `json:"periodLabel"`
	WindowStart   string   `json:"windowStart"`
	WindowEnd     string   `json:"windowEnd"`
	PayDate       string   `json:"payDate"`
	BasicSalary   *float64 `json:"basicSalary"`
	Allowances    float64  `json:"allowances"`
	Bonus         float64  `json:"bonus"`
	Overtime      float64  `json:"overtime"`
	Deductions    float64  `json:"deductions"`
	PaymentMethod string   `json:"paymentMethod"`
	Notes         string   `json:"notes"`
}

func (p recordPayload) draft(v *shared.Validator, prefix string) payroll.RecordDraft {
	return payroll.RecordDraft{
		SalaryType:    strings.ToLower(strings.TrimSpace(p.SalaryType)),
		Period:        strings.TrimSpace(p.Period),
		PeriodLabel:   strings.TrimSpace(p.PeriodLabel),
		WindowStart:   optionalDate(v, prefix+"windowStart", p.WindowStart),
		WindowEnd:     optionalDate(v, prefix+"windowEnd", p.WindowEnd),
		PayDate:       optionalDate(v, prefix+"payDate", p.PayDate),
		BasicSalary:   p.BasicSalary,
		Allowances:    p.Allowances,
		Bonus:         p.Bonus,
		Overtime:      p.Overtime,
		Deductions:    p.Deductions,
		PaymentMethod: strings.ToLower(strings.TrimSpace(p.PaymentMethod)),
		Notes:         p.Notes,
	}
}

type changesPayload struct {
	BasicSalary   *float64 `json:"basicSalary"`
	Allowances    *float64 `json:"allowances"`
	Bonus         *float64 `json:"bonus"`
	Overtime      *float64 `json:"overtime"`
	Deductions    *float64 `json:"deductions"`
	WindowStart   *string  `json:"windowStart"`
	WindowEnd     *string  `json:"windowEnd"`
	PayDate       *string  `json:"payDate"`
	PaymentStatus *string  `json:"paymentStatus"`
	PaymentMethod *string  `json:"paymentMethod"`
	Notes         *string  `json:"notes"`
}

type proposalPayload struct {
	TargetRecordID  string         `json:"targetRecordId"`
	ProposedChanges changesPayload `json:"proposedChanges"`
	NewRecord       *recordPayload `json:"newRecord"`
}

func (p proposalPayload) proposal(v *shared.Validator) payroll.UpdateProposal {
	c := p.ProposedChanges
	out := payroll.UpdateProposal{
		TargetRecordID: strings.TrimSpace(p.TargetRecordID),
		Changes: payroll.RecordChanges{
			BasicSalary:   c.BasicSalary,
			Allowances:    c.Allowances,
			Bonus:         c.Bonus,
			Overtime:      c.Overtime,
			Deductions:    c.Deductions,
			WindowStart:   datePtr(v, "proposedChanges.windowStart", c.WindowStart),
			WindowEnd:     datePtr(v, "proposedChanges.windowEnd", c.WindowEnd),
			PayDate:       datePtr(v, "proposedChanges.payDate", c.PayDate),
			PaymentStatus: c.PaymentStatus,
			PaymentMethod: c.PaymentMethod,
			Notes:         c.Notes,
		},
	}
	if p.NewRecord != nil {
		draft := p.NewRecord.draft(v, "newRecord.")
		out.NewRecord = &draft
	}
	return out
}

func optionalDate(v *shared.Validator, field, raw string) time.Time {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}
	}
	parsed, _ := v.Date(field, raw)
	return parsed
}

func datePtr(v *shared.Validator, field string, raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	parsed, ok := v.Date(field, *raw)
	if !ok {
		return nil
	}
	return &parsed
}
