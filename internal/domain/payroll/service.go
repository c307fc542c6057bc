package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"payledger/internal/domain/audit"
	"payledger/internal/platform/requestctx"
)

type Options struct {
	ChallengeTTL    time.Duration
	MaxCodeAttempts int
	// CodeHashCost is the bcrypt cost for challenge hashes; 0 means default.
	CodeHashCost int
	Audit        Auditor
	Observer     Observer
	Logger       *slog.Logger
	Clock        func() time.Time
}

type Service struct {
	store        StoreAPI
	ids          *IdentityAllocator
	audit        Auditor
	observer     Observer
	logger       *slog.Logger
	now          func() time.Time
	challengeTTL time.Duration
	maxAttempts  int
	hashCost     int
}

func NewService(store StoreAPI, opts Options) *Service {
	s := &Service{
		store:        store,
		ids:          NewIdentityAllocator(store),
		audit:        opts.Audit,
		observer:     opts.Observer,
		logger:       opts.Logger,
		now:          opts.Clock,
		challengeTTL: opts.ChallengeTTL,
		maxAttempts:  opts.MaxCodeAttempts,
		hashCost:     opts.CodeHashCost,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.challengeTTL <= 0 {
		s.challengeTTL = DefaultChallengeTTL
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxCodeAttempts
	}
	return s
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NormalizePhone(phone string) string {
	return strings.Join(strings.Fields(phone), "")
}

func (s *Service) CreateEmployee(ctx context.Context, input NewEmployee, actor string) (*Employee, error) {
	email := NormalizeEmail(input.Email)
	phone := NormalizePhone(input.Phone)
	status := strings.ToLower(strings.TrimSpace(input.Status))
	if status == "" {
		status = EmployeeStatusActive
	}

	var v issues
	if email == "" {
		v.add("email", "is required")
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		v.add("email", "must be a valid email address")
	}
	if phone == "" {
		v.add("phone", "is required")
	}
	if !validAmount(input.BasePay) {
		v.add("basePay", "must be a non-negative amount")
	}
	if !oneOf(status, EmployeeStatus) {
		v.add("status", "must be one of "+strings.Join(EmployeeStatus, ", "))
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	taken, err := s.store.ContactTaken(ctx, email, phone)
	if err != nil {
		return nil, fmt.Errorf("check contact: %w", err)
	}
	if taken {
		return nil, ErrDuplicateContact
	}

	for attempt := 1; attempt <= maxAllocationAttempts; attempt++ {
		identity, err := s.ids.Allocate(ctx)
		if err != nil {
			s.logger.Error("identity allocation failed", "err", err)
			return nil, err
		}

		now := s.now()
		emp := &Employee{
			Identity:  identity,
			Name:      strings.TrimSpace(input.Name),
			Contact:   Contact{Email: email, Phone: phone},
			BasePay:   roundCents(input.BasePay),
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
		}
		err = s.store.InsertEmployee(ctx, emp)
		if errors.Is(err, ErrAllocationConflict) {
			s.logger.Warn("identity collision, retrying", "identity", identity, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		s.record(ctx, audit.Event{
			ActorID: actor, Action: ActionEmployeeCreated, EntityType: "employee",
			EntityID: identity, EmployeeID: identity, After: emp,
		})
		s.logger.Info("employee created", "identity", identity, requestctx.Attr(ctx))
		return emp, nil
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrAllocationConflict, maxAllocationAttempts)
}

func (s *Service) GetEmployee(ctx context.Context, identity string) (*Employee, error) {
	emp, err := s.store.GetEmployee(ctx, identity)
	if err != nil {
		return nil, err
	}
	emp.recomputeTotals()
	return emp, nil
}

func (s *Service) ListEmployees(ctx context.Context, status string) ([]Employee, error) {
	employees, err := s.store.ListEmployees(ctx, status)
	if err != nil {
		return nil, err
	}
	for i := range employees {
		employees[i].recomputeTotals()
	}
	return employees, nil
}

// SetStatus moves an employee between active and inactive; terminated is
// terminal.
func (s *Service) SetStatus(ctx context.Context, identity, status, actor string) (*Employee, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !oneOf(status, EmployeeStatus) {
		return nil, &ValidationError{Issues: []Issue{{Field: "status", Reason: "must be one of " + strings.Join(EmployeeStatus, ", ")}}}
	}
	var previous string
	emp, err := s.mutate(ctx, identity, func(emp *Employee) error {
		previous = emp.Status
		if previous == status {
			return nil
		}
		if previous == EmployeeStatusTerminated {
			return transitionError(previous, status)
		}
		emp.Status = status
		return nil
	})
	if err != nil {
		return nil, err
	}
	if previous != status {
		s.record(ctx, audit.Event{
			ActorID: actor, Action: ActionEmployeeStatus, EntityType: "employee",
			EntityID: identity, EmployeeID: identity,
			Before: map[string]string{"status": previous}, After: map[string]string{"status": status},
		})
	}
	return emp, nil
}

// PurgeEmployee physically removes a duplicate employee. It is the only
// delete path; the identity is never handed out again.
func (s *Service) PurgeEmployee(ctx context.Context, identity, actor string) error {
	emp, err := s.store.DeleteEmployee(ctx, identity, func(emp *Employee) error {
		if emp.PendingUpdate != nil && !emp.PendingUpdate.expired(s.now()) {
			return ErrPendingUpdateExists
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, audit.Event{
		ActorID: actor, Action: ActionEmployeePurged, EntityType: "employee",
		EntityID: identity, EmployeeID: identity, Before: emp,
	})
	s.logger.Warn("employee purged", "identity", identity, "actor", actor)
	return nil
}

func (s *Service) CreateRecord(ctx context.Context, identity string, draft RecordDraft, actor string) (SalaryRecord, error) {
	var recordID string
	emp, err := s.mutate(ctx, identity, func(emp *Employee) error {
		rec, err := buildRecord(draft, emp.BasePay, s.now())
		if err != nil {
			return err
		}
		recordID = rec.ID
		emp.SalaryRecords = append(emp.SalaryRecords, rec)
		return nil
	})
	if err != nil {
		return SalaryRecord{}, err
	}
	rec := emp.record(recordID)
	s.record(ctx, audit.Event{
		ActorID: actor, Action: ActionRecordCreated, EntityType: "salary_record",
		EntityID: recordID, EmployeeID: identity, After: rec,
	})
	return *rec, nil
}

func (s *Service) MarkPaid(ctx context.Context, identity, recordID string, paymentDate time.Time, method, actor string) (SalaryRecord, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method != "" && !oneOf(method, PaymentMethods) {
		return SalaryRecord{}, &ValidationError{Issues: []Issue{{Field: "paymentMethod", Reason: "must be one of " + strings.Join(PaymentMethods, ", ")}}}
	}
	if paymentDate.IsZero() {
		paymentDate = s.now()
	}
	return s.transition(ctx, identity, recordID, PaymentStatusPaid, ActionRecordPaid, actor, func(rec *SalaryRecord) {
		paid := paymentDate
		rec.PaymentDate = &paid
		if method != "" {
			rec.PaymentMethod = method
		}
	})
}

func (s *Service) MarkCancelled(ctx context.Context, identity, recordID, actor string) (SalaryRecord, error) {
	return s.transition(ctx, identity, recordID, PaymentStatusCancelled, ActionRecordCancelled, actor, nil)
}

// transition moves a pending record forward. Ordinary flow never leaves
// paid or cancelled.
func (s *Service) transition(ctx context.Context, identity, recordID, to, action, actor string, apply func(*SalaryRecord)) (SalaryRecord, error) {
	var before SalaryRecord
	emp, err := s.mutate(ctx, identity, func(emp *Employee) error {
		rec := emp.record(recordID)
		if rec == nil {
			return ErrRecordNotFound
		}
		if rec.PaymentStatus != PaymentStatusPending {
			return transitionError(rec.PaymentStatus, to)
		}
		before = rec.clone()
		rec.PaymentStatus = to
		if apply != nil {
			apply(rec)
		}
		rec.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return SalaryRecord{}, err
	}
	rec := emp.record(recordID)
	s.record(ctx, audit.Event{
		ActorID: actor, Action: action, EntityType: "salary_record",
		EntityID: recordID, EmployeeID: identity, Before: before, After: rec,
	})
	return *rec, nil
}

// CurrentPeriodRecord returns the latest monthly record covering now. Legacy
// month-only records match too until they are migrated.
func (s *Service) CurrentPeriodRecord(ctx context.Context, identity string, now time.Time) (*SalaryRecord, error) {
	emp, err := s.GetEmployee(ctx, identity)
	if err != nil {
		return nil, err
	}
	key := PeriodKey(SalaryTypeMonthly, now)
	for i := len(emp.SalaryRecords) - 1; i >= 0; i-- {
		rec := emp.SalaryRecords[i]
		if rec.SalaryType == SalaryTypeMonthly && rec.Period == key {
			return &rec, nil
		}
		if rec.IsLegacy() && rec.Month == key {
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *Service) TotalPaid(ctx context.Context, identity string) (float64, error) {
	emp, err := s.store.GetEmployee(ctx, identity)
	if err != nil {
		return 0, err
	}
	return sumByStatus(emp.SalaryRecords, PaymentStatusPaid), nil
}

func (s *Service) TotalPending(ctx context.Context, identity string) (float64, error) {
	emp, err := s.store.GetEmployee(ctx, identity)
	if err != nil {
		return 0, err
	}
	return sumByStatus(emp.SalaryRecords, PaymentStatusPending), nil
}

func (s *Service) Totals(ctx context.Context, identity string) (Totals, error) {
	emp, err := s.store.GetEmployee(ctx, identity)
	if err != nil {
		return Totals{}, err
	}
	return Totals{
		Paid:    sumByStatus(emp.SalaryRecords, PaymentStatusPaid),
		Pending: sumByStatus(emp.SalaryRecords, PaymentStatusPending),
	}, nil
}

func (s *Service) Records(ctx context.Context, identity string, filter RecordFilter) ([]SalaryRecord, error) {
	emp, err := s.GetEmployee(ctx, identity)
	if err != nil {
		return nil, err
	}
	out := make([]SalaryRecord, 0, len(emp.SalaryRecords))
	for _, rec := range emp.SalaryRecords {
		if filter.SalaryType != "" && rec.SalaryType != filter.SalaryType {
			continue
		}
		if filter.PaymentStatus != "" && rec.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Service) Record(ctx context.Context, identity, recordID string) (*Employee, SalaryRecord, error) {
	emp, err := s.GetEmployee(ctx, identity)
	if err != nil {
		return nil, SalaryRecord{}, err
	}
	rec := emp.record(recordID)
	if rec == nil {
		return nil, SalaryRecord{}, ErrRecordNotFound
	}
	return emp, *rec, nil
}

// MigrateEmployee runs the legacy migration for one employee under the
// per-employee lock.
func (s *Service) MigrateEmployee(ctx context.Context, identity, actor string) (MigrationResult, error) {
	result := MigrationResult{Identity: identity}
	_, err := s.mutate(ctx, identity, func(emp *Employee) error {
		result.Migrated, result.InvalidMonths = migrateRecords(emp)
		result.Changed = result.Migrated > 0
		return nil
	})
	if err != nil {
		return MigrationResult{}, err
	}
	for _, month := range result.InvalidMonths {
		s.logger.Warn("legacy record month unparseable", "identity", identity, "month", month)
	}
	if result.Changed {
		s.record(ctx, audit.Event{
			ActorID: actor, Action: ActionRecordsMigrated, EntityType: "employee",
			EntityID: identity, EmployeeID: identity, After: map[string]int{"migrated": result.Migrated},
		})
	}
	return result, nil
}

func (s *Service) MigrateAll(ctx context.Context, actor string) (MigrationSummary, error) {
	identities, err := s.store.ListIdentities(ctx)
	if err != nil {
		return MigrationSummary{}, err
	}
	var summary MigrationSummary
	for _, identity := range identities {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		result, err := s.MigrateEmployee(ctx, identity, actor)
		if errors.Is(err, ErrEmployeeNotFound) {
			continue
		}
		if err != nil {
			return summary, fmt.Errorf("migrate %s: %w", identity, err)
		}
		summary.Employees++
		summary.Records += result.Migrated
		summary.Invalid += len(result.InvalidMonths)
		if result.Changed {
			summary.Changed++
		}
	}
	s.logger.Info("legacy migration finished", "employees", summary.Employees, "changed", summary.Changed, "records", summary.Records)
	return summary, nil
}

// mutate is the single write path. Totals are recomputed after fn as the
// last step before the store commits.
func (s *Service) mutate(ctx context.Context, identity string, fn func(*Employee) error) (*Employee, error) {
	return s.store.UpdateEmployee(ctx, identity, func(emp *Employee) error {
		if err := fn(emp); err != nil {
			return err
		}
		emp.UpdatedAt = s.now()
		emp.recomputeTotals()
		return nil
	})
}

func (s *Service) record(ctx context.Context, evt audit.Event) {
	if s.audit == nil {
		return
	}
	if evt.RequestID == "" {
		evt.RequestID = requestctx.GetRequestID(ctx)
	}
	if err := s.audit.Record(ctx, evt); err != nil {
		s.logger.Warn("audit record failed", "action", evt.Action, "entityId", evt.EntityID, "err", err)
	}
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.UpdateOutcome(outcome)
	}
}
