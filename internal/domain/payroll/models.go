package payroll

import "time"

type Contact struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Employee struct {
	Identity      string         `json:"identity"`
	Name          string         `json:"name"`
	Contact       Contact        `json:"contact"`
	BasePay       float64        `json:"basePay"`
	Status        string         `json:"status"`
	SalaryRecords []SalaryRecord `json:"salaryRecords"`
	PendingUpdate *UpdateRequest `json:"pendingUpdate,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// SalaryRecord is owned by exactly one Employee. TotalSalary is derived and
// is overwritten by Recompute on every write and read path.
type SalaryRecord struct {
	ID            string     `json:"id"`
	SalaryType    string     `json:"salaryType,omitempty"`
	Period        string     `json:"period,omitempty"`
	PeriodLabel   string     `json:"periodLabel,omitempty"`
	Month         string     `json:"month,omitempty"`
	WindowStart   time.Time  `json:"windowStart"`
	WindowEnd     time.Time  `json:"windowEnd"`
	PayDate       time.Time  `json:"payDate"`
	BasicSalary   float64    `json:"basicSalary"`
	Allowances    float64    `json:"allowances"`
	Bonus         float64    `json:"bonus"`
	Overtime      float64    `json:"overtime"`
	Deductions    float64    `json:"deductions"`
	TotalSalary   float64    `json:"totalSalary"`
	PaymentStatus string     `json:"paymentStatus"`
	PaymentMethod string     `json:"paymentMethod"`
	PaymentDate   *time.Time `json:"paymentDate,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// IsLegacy reports whether the record still carries the old month-only shape.
func (r SalaryRecord) IsLegacy() bool {
	return r.SalaryType == "" && r.Month != ""
}

type NewEmployee struct {
	Name    string
	Email   string
	Phone   string
	BasePay float64
	Status  string
}

// RecordDraft is the caller input for a new salary record. It has no total
// field on purpose: the total is always derived.
type RecordDraft struct {
	SalaryType    string    `json:"salaryType"`
	Period        string    `json:"period,omitempty"`
	PeriodLabel   string    `json:"periodLabel,omitempty"`
	WindowStart   time.Time `json:"windowStart"`
	WindowEnd     time.Time `json:"windowEnd"`
	PayDate       time.Time `json:"payDate"`
	BasicSalary   *float64  `json:"basicSalary,omitempty"`
	Allowances    float64   `json:"allowances"`
	Bonus         float64   `json:"bonus"`
	Overtime      float64   `json:"overtime"`
	Deductions    float64   `json:"deductions"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
	Notes         string    `json:"notes,omitempty"`
}

// RecordChanges is a field-level delta; nil fields are left untouched.
type RecordChanges struct {
	BasicSalary   *float64   `json:"basicSalary,omitempty"`
	Allowances    *float64   `json:"allowances,omitempty"`
	Bonus         *float64   `json:"bonus,omitempty"`
	Overtime      *float64   `json:"overtime,omitempty"`
	Deductions    *float64   `json:"deductions,omitempty"`
	WindowStart   *time.Time `json:"windowStart,omitempty"`
	WindowEnd     *time.Time `json:"windowEnd,omitempty"`
	PayDate       *time.Time `json:"payDate,omitempty"`
	PaymentStatus *string    `json:"paymentStatus,omitempty"`
	PaymentMethod *string    `json:"paymentMethod,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
}

func (c RecordChanges) IsEmpty() bool {
	return c.BasicSalary == nil && c.Allowances == nil && c.Bonus == nil && c.Overtime == nil &&
		c.Deductions == nil && c.WindowStart == nil && c.WindowEnd == nil && c.PayDate == nil &&
		c.PaymentStatus == nil && c.PaymentMethod == nil && c.Notes == nil
}

// UpdateProposal is what an actor asks to change. An empty TargetRecordID
// means the confirmed update creates NewRecord instead.
type UpdateProposal struct {
	TargetRecordID string        `json:"targetRecordId,omitempty"`
	Changes        RecordChanges `json:"proposedChanges"`
	NewRecord      *RecordDraft  `json:"newRecord,omitempty"`
}

type UpdateRequest struct {
	ID                 string        `json:"id"`
	TargetRecordID     string        `json:"targetRecordId,omitempty"`
	Changes            RecordChanges `json:"proposedChanges"`
	NewRecord          *RecordDraft  `json:"newRecord,omitempty"`
	RequestedBy        string        `json:"requestedBy"`
	RequestedAt        time.Time     `json:"requestedAt"`
	ChallengeHash      string        `json:"-"`
	ChallengeExpiresAt time.Time     `json:"challengeExpiresAt"`
	FailedAttempts     int           `json:"failedAttempts"`
	State              UpdateState   `json:"state"`
}

func (u *UpdateRequest) expired(now time.Time) bool {
	return now.After(u.ChallengeExpiresAt)
}

// Challenge is handed back to the caller once; the code is never stored.
type Challenge struct {
	RequestID string    `json:"requestId"`
	Code      string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type PendingView struct {
	State   UpdateState    `json:"state"`
	Request *UpdateRequest `json:"request,omitempty"`
}

type RecordFilter struct {
	SalaryType    string
	PaymentStatus string
}

type Totals struct {
	Paid    float64 `json:"paid"`
	Pending float64 `json:"pending"`
}

type MigrationResult struct {
	Identity      string   `json:"identity"`
	Changed       bool     `json:"changed"`
	Migrated      int      `json:"migrated"`
	InvalidMonths []string `json:"invalidMonths,omitempty"`
}

type MigrationSummary struct {
	Employees int `json:"employees"`
	Changed   int `json:"changed"`
	Records   int `json:"records"`
	Invalid   int `json:"invalid"`
}

func (e *Employee) record(id string) *SalaryRecord {
	for i := range e.SalaryRecords {
		if e.SalaryRecords[i].ID == id {
			return &e.SalaryRecords[i]
		}
	}
	return nil
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (e Employee) Clone() Employee {
	out := e
	if e.SalaryRecords != nil {
		out.SalaryRecords = make([]SalaryRecord, len(e.SalaryRecords))
		for i, rec := range e.SalaryRecords {
			out.SalaryRecords[i] = rec.clone()
		}
	}
	if e.PendingUpdate != nil {
		pending := *e.PendingUpdate
		pending.Changes = e.PendingUpdate.Changes.clone()
		if e.PendingUpdate.NewRecord != nil {
			draft := e.PendingUpdate.NewRecord.clone()
			pending.NewRecord = &draft
		}
		out.PendingUpdate = &pending
	}
	return out
}

func (r SalaryRecord) clone() SalaryRecord {
	out := r
	if r.PaymentDate != nil {
		paid := *r.PaymentDate
		out.PaymentDate = &paid
	}
	return out
}

func (d RecordDraft) clone() RecordDraft {
	out := d
	out.BasicSalary = copyPtr(d.BasicSalary)
	return out
}

func (c RecordChanges) clone() RecordChanges {
	return RecordChanges{
		BasicSalary:   copyPtr(c.BasicSalary),
		Allowances:    copyPtr(c.Allowances),
		Bonus:         copyPtr(c.Bonus),
		Overtime:      copyPtr(c.Overtime),
		Deductions:    copyPtr(c.Deductions),
		WindowStart:   copyPtr(c.WindowStart),
		WindowEnd:     copyPtr(c.WindowEnd),
		PayDate:       copyPtr(c.PayDate),
		PaymentStatus: copyPtr(c.PaymentStatus),
		PaymentMethod: copyPtr(c.PaymentMethod),
		Notes:         copyPtr(c.Notes),
	}
}

func copyPtr[T any](value *T) *T {
	if value == nil {
		return nil
	}
	out := *value
	return &out
}
