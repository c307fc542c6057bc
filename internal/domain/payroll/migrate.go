package payroll

// Migrate upgrades every legacy month-only record of emp to the current
// shape and reports whether anything changed. Records that already carry a
// salary type are never touched, so a second run is a no-op.
func Migrate(emp *Employee) bool {
	migrated, _ := migrateRecords(emp)
	return migrated > 0
}

func migrateRecords(emp *Employee) (int, []string) {
	var migrated int
	var invalid []string
	for i := range emp.SalaryRecords {
		rec := &emp.SalaryRecords[i]
		if !rec.IsLegacy() {
			continue
		}
		start, end, ok := monthWindow(rec.Month)
		if !ok {
			invalid = append(invalid, rec.Month)
			continue
		}
		rec.SalaryType = SalaryTypeMonthly
		rec.Period = rec.Month
		rec.PeriodLabel = PeriodLabel(SalaryTypeMonthly, rec.Month)
		rec.WindowStart = start
		rec.WindowEnd = end
		if rec.PayDate.IsZero() {
			rec.PayDate = end
		}
		if rec.PaymentStatus == "" {
			rec.PaymentStatus = PaymentStatusPending
		}
		if rec.PaymentMethod == "" {
			rec.PaymentMethod = PaymentMethodBankTransfer
		}
		rec.Recompute()
		migrated++
	}
	return migrated, invalid
}
