package payroll

import "time"

const (
	SalaryTypeDaily   = "daily"
	SalaryTypeWeekly  = "weekly"
	SalaryTypeMonthly = "monthly"
	SalaryTypeYearly  = "yearly"
	SalaryTypeProject = "project"
	SalaryTypeHourly  = "hourly"

	PaymentStatusPending   = "pending"
	PaymentStatusPaid      = "paid"
	PaymentStatusCancelled = "cancelled"

	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCash         = "cash"
	PaymentMethodCheque       = "cheque"
	PaymentMethodUPI          = "upi"

	EmployeeStatusActive     = "active"
	EmployeeStatusInactive   = "inactive"
	EmployeeStatusTerminated = "terminated"
)

// UpdateState is the tagged state of an employee's pending-update workflow.
type UpdateState string

const (
	UpdateStateNone       UpdateState = "NONE"
	UpdateStateRequested  UpdateState = "REQUESTED"
	UpdateStateConfirmed  UpdateState = "CONFIRMED"
	UpdateStateExpired    UpdateState = "EXPIRED"
	UpdateStateSuperseded UpdateState = "SUPERSEDED"
)

const (
	IdentityPrefix = "EMP"
	identityDigits = 4

	DefaultChallengeTTL    = 10 * time.Minute
	DefaultMaxCodeAttempts = 5
	challengeDigits        = 6

	maxAllocationAttempts = 3
)

// Audit actions recorded by the service.
const (
	ActionEmployeeCreated  = "employee.created"
	ActionEmployeeStatus   = "employee.status_changed"
	ActionEmployeePurged   = "employee.purged"
	ActionEmployeeImported = "employee.imported"
	ActionRecordCreated    = "salary_record.created"
	ActionRecordPaid       = "salary_record.paid"
	ActionRecordCancelled  = "salary_record.cancelled"
	ActionUpdateRequested  = "salary_update.requested"
	ActionUpdateSuperseded = "salary_update.superseded"
	ActionUpdateConfirmed  = "salary_update.confirmed"
	ActionUpdateExpired    = "salary_update.expired"
	ActionUpdateCancelled  = "salary_update.cancelled"
	ActionUpdateLocked     = "salary_update.locked"
	ActionRecordsMigrated  = "salary_record.migrated"
)

var (
	SalaryTypes     = []string{SalaryTypeDaily, SalaryTypeWeekly, SalaryTypeMonthly, SalaryTypeYearly, SalaryTypeProject, SalaryTypeHourly}
	PaymentStatuses = []string{PaymentStatusPending, PaymentStatusPaid, PaymentStatusCancelled}
	PaymentMethods  = []string{PaymentMethodBankTransfer, PaymentMethodCash, PaymentMethodCheque, PaymentMethodUPI}
	EmployeeStatus  = []string{EmployeeStatusActive, EmployeeStatusInactive, EmployeeStatusTerminated}
)

func oneOf(value string, allowed []string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}
