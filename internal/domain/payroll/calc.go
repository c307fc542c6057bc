package payroll

import "math"

// ComputeTotal returns basic + allowances + bonus + overtime - deductions,
// rounded to cents.
func ComputeTotal(basic, allowances, bonus, overtime, deductions float64) float64 {
	return roundCents(basic + allowances + bonus + overtime - deductions)
}

// Recompute overwrites TotalSalary from the record's components.
func (r *SalaryRecord) Recompute() {
	r.TotalSalary = ComputeTotal(r.BasicSalary, r.Allowances, r.Bonus, r.Overtime, r.Deductions)
}

func (e *Employee) recomputeTotals() {
	for i := range e.SalaryRecords {
		e.SalaryRecords[i].Recompute()
	}
}

func sumByStatus(records []SalaryRecord, status string) float64 {
	var total float64
	for _, rec := range records {
		if rec.PaymentStatus != status {
			continue
		}
		total += ComputeTotal(rec.BasicSalary, rec.Allowances, rec.Bonus, rec.Overtime, rec.Deductions)
	}
	return roundCents(total)
}

func roundCents(value float64) float64 {
	return math.Round(value*100) / 100
}

func validAmount(value float64) bool {
	return value >= 0 && !math.IsNaN(value) && !math.IsInf(value, 0)
}
