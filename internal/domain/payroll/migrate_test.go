package payroll

import (
	"context"
	"testing"
	"time"
)

func legacyEmployee(identity string, months ...string) Employee {
	emp := Employee{
		Identity: identity,
		Name:     "Legacy " + identity,
		Contact:  Contact{Email: identity + "@example.com", Phone: identity},
		BasePay:  30000,
		Status:   EmployeeStatusActive,
	}
	for i, month := range months {
		emp.SalaryRecords = append(emp.SalaryRecords, SalaryRecord{
			ID:            identity + "-" + month + "-" + string(rune('a'+i)),
			Month:         month,
			BasicSalary:   30000,
			Allowances:    2000,
			Deductions:    500,
			PaymentStatus: PaymentStatusPaid,
		})
	}
	return emp
}

func TestMigrateUpgradesLegacyMonth(t *testing.T) {
	emp := legacyEmployee("EMP0001", "2024-01")

	if !Migrate(&emp) {
		t.Fatal("expected first migration to report a change")
	}
	rec := emp.SalaryRecords[0]
	if rec.SalaryType != SalaryTypeMonthly || rec.Period != "2024-01" {
		t.Fatalf("unexpected type/period %s %s", rec.SalaryType, rec.Period)
	}
	if rec.PeriodLabel != "January 2024" {
		t.Fatalf("unexpected label %q", rec.PeriodLabel)
	}
	if !rec.WindowStart.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) ||
		!rec.WindowEnd.Equal(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected window %v..%v", rec.WindowStart, rec.WindowEnd)
	}
	if rec.TotalSalary != 31500 {
		t.Fatalf("expected total 31500, got %v", rec.TotalSalary)
	}
	if rec.PaymentStatus != PaymentStatusPaid {
		t.Fatalf("migration must keep payment status, got %s", rec.PaymentStatus)
	}

	if Migrate(&emp) {
		t.Fatal("expected second migration to be a no-op")
	}
}

func TestMigrateSkipsUnparseableMonth(t *testing.T) {
	emp := legacyEmployee("EMP0001", "2024-01", "Jan-24")
	migrated, invalid := migrateRecords(&emp)
	if migrated != 1 {
		t.Fatalf("expected 1 migrated, got %d", migrated)
	}
	if len(invalid) != 1 || invalid[0] != "Jan-24" {
		t.Fatalf("expected Jan-24 reported, got %v", invalid)
	}
	if !emp.SalaryRecords[1].IsLegacy() {
		t.Fatal("unparseable record must be left untouched")
	}
}

func TestMigrateLeavesModernRecordsAlone(t *testing.T) {
	emp := legacyEmployee("EMP0001")
	emp.SalaryRecords = []SalaryRecord{{ID: "r1", SalaryType: SalaryTypeYearly, Period: "2024", Month: "2024-01", PaymentStatus: PaymentStatusPending}}
	if Migrate(&emp) {
		t.Fatal("expected records with a salary type to be left alone")
	}
	if emp.SalaryRecords[0].SalaryType != SalaryTypeYearly {
		t.Fatal("salary type must not change")
	}
}

func TestMigrateAll(t *testing.T) {
	env := newTestEnv(t,
		legacyEmployee("EMP0001", "2024-01", "2024-02"),
		legacyEmployee("EMP0002", "bad"),
		legacyEmployee("EMP0003"),
	)
	ctx := context.Background()

	summary, err := env.svc.MigrateAll(ctx, "system")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if summary.Employees != 3 || summary.Changed != 1 || summary.Records != 2 || summary.Invalid != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	again, err := env.svc.MigrateAll(ctx, "system")
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if again.Changed != 0 || again.Records != 0 {
		t.Fatalf("expected second run to be a no-op, got %+v", again)
	}

	next := env.createEmployee(t, 9)
	if next.Identity != "EMP0004" {
		t.Fatalf("expected allocation to continue after migrated data, got %s", next.Identity)
	}
}
