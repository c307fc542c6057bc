package payroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	cryptoutil "payledger/internal/platform/crypto"
)

const identityCounter = "employee_identity"

type Store struct {
	DB     *pgxpool.Pool
	Crypto *cryptoutil.Service
}

func NewStore(db *pgxpool.Pool, crypto *cryptoutil.Service) *Store {
	return &Store{DB: db, Crypto: crypto}
}

// storedPending is the at-rest shape of a pending update. The challenge hash
// is kept here and never leaves the store through the JSON API.
type storedPending struct {
	Request       UpdateRequest `json:"request"`
	ChallengeHash string        `json:"challengeHash"`
}

// NextEmployeeSequence bumps the identity counter in one statement. The
// counter never drops below the highest identity already stored, so
// imported employees are skipped over.
func (s *Store) NextEmployeeSequence(ctx context.Context) (int64, error) {
	var next int64
	err := s.DB.QueryRow(ctx, `
    INSERT INTO employee_counters (name, last_value)
    VALUES ($1, (SELECT COALESCE(MAX(identity_seq), 0) FROM employees) + 1)
    ON CONFLICT (name) DO UPDATE
      SET last_value = GREATEST(
            employee_counters.last_value,
            (SELECT COALESCE(MAX(identity_seq), 0) FROM employees)
          ) + 1,
          updated_at = now()
    RETURNING last_value
  `, identityCounter).Scan(&next)
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (s *Store) ContactTaken(ctx context.Context, email, phone string) (bool, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM employees WHERE email = $1 OR phone = $2
  `, email, phone).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) InsertEmployee(ctx context.Context, emp *Employee) error {
	seq, ok := ParseIdentity(emp.Identity)
	if !ok {
		return fmt.Errorf("%w: malformed identity %q", ErrAllocationUnavailable, emp.Identity)
	}
	pending, err := s.encodePending(emp.PendingUpdate)
	if err != nil {
		return err
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
    INSERT INTO employees (identity, identity_seq, name, email, phone, base_pay, status, pending_update, created_at, updated_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
  `, emp.Identity, seq, emp.Name, emp.Contact.Email, emp.Contact.Phone, emp.BasePay, emp.Status, pending,
		emp.CreatedAt, emp.UpdatedAt)
	if err != nil {
		return mapInsertError(err)
	}
	if err := writeRecords(ctx, tx, emp.Identity, emp.SalaryRecords); err != nil {
		return err
	}
	// Imported identities move the counter too, so deleting one later cannot
	// hand it out again.
	if _, err := tx.Exec(ctx, `
    INSERT INTO employee_counters (name, last_value)
    VALUES ($1, $2)
    ON CONFLICT (name) DO UPDATE
      SET last_value = GREATEST(employee_counters.last_value, EXCLUDED.last_value),
          updated_at = now()
  `, identityCounter, seq); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func mapInsertError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return err
	}
	switch pgErr.ConstraintName {
	case "employees_pkey", "employees_identity_seq_key":
		return ErrAllocationConflict
	case "employees_email_key", "employees_phone_key":
		return ErrDuplicateContact
	}
	return err
}

func (s *Store) GetEmployee(ctx context.Context, identity string) (*Employee, error) {
	return s.loadEmployee(ctx, s.DB, identity, false)
}

func (s *Store) ListEmployees(ctx context.Context, status string) ([]Employee, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT identity
    FROM employees
    WHERE ($1 = '' OR status = $1)
    ORDER BY identity_seq
  `, status)
	if err != nil {
		return nil, err
	}
	identities, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}

	out := make([]Employee, 0, len(identities))
	for _, identity := range identities {
		emp, err := s.GetEmployee(ctx, identity)
		if errors.Is(err, ErrEmployeeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *emp)
	}
	return out, nil
}

func (s *Store) ListIdentities(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `SELECT identity FROM employees ORDER BY identity_seq`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// UpdateEmployee locks the employee row for the whole transaction; a
// concurrent writer blocks on FOR UPDATE until this one commits.
func (s *Store) UpdateEmployee(ctx context.Context, identity string, fn func(*Employee) error) (*Employee, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	emp, err := s.loadEmployee(ctx, tx, identity, true)
	if err != nil {
		return nil, err
	}
	if err := fn(emp); err != nil {
		return nil, err
	}
	emp.Identity = identity

	pending, err := s.encodePending(emp.PendingUpdate)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
    UPDATE employees
    SET name = $2, base_pay = $3, status = $4, pending_update = $5, updated_at = $6
    WHERE identity = $1
  `, identity, emp.Name, emp.BasePay, emp.Status, pending, emp.UpdatedAt); err != nil {
		return nil, err
	}
	if err := writeRecords(ctx, tx, identity, emp.SalaryRecords); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return emp, nil
}

// DeleteEmployee checks guard and deletes under the same row lock, so no
// writer can stage anything on the employee in between.
func (s *Store) DeleteEmployee(ctx context.Context, identity string, guard func(*Employee) error) (*Employee, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	emp, err := s.loadEmployee(ctx, tx, identity, true)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(emp); err != nil {
			return nil, err
		}
	}
	tag, err := tx.Exec(ctx, `DELETE FROM employees WHERE identity = $1`, identity)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrEmployeeNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return emp, nil
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) loadEmployee(ctx context.Context, q queryer, identity string, lock bool) (*Employee, error) {
	query := `
    SELECT identity, name, email, phone, base_pay::float8, status, pending_update, created_at, updated_at
    FROM employees
    WHERE identity = $1
  `
	if lock {
		query += " FOR UPDATE"
	}

	var emp Employee
	var pending []byte
	err := q.QueryRow(ctx, query, identity).Scan(
		&emp.Identity,
		&emp.Name,
		&emp.Contact.Email,
		&emp.Contact.Phone,
		&emp.BasePay,
		&emp.Status,
		&pending,
		&emp.CreatedAt,
		&emp.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEmployeeNotFound
	}
	if err != nil {
		return nil, err
	}
	if emp.PendingUpdate, err = s.decodePending(pending); err != nil {
		return nil, fmt.Errorf("decode pending update for %s: %w", identity, err)
	}
	if emp.SalaryRecords, err = loadRecords(ctx, q, identity); err != nil {
		return nil, err
	}
	return &emp, nil
}

func loadRecords(ctx context.Context, q queryer, identity string) ([]SalaryRecord, error) {
	rows, err := q.Query(ctx, `
    SELECT id::text,
           COALESCE(salary_type, ''),
           COALESCE(period, ''),
           COALESCE(period_label, ''),
           COALESCE(month, ''),
           window_start,
           window_end,
           pay_date,
           basic_salary::float8,
           allowances::float8,
           bonus::float8,
           overtime::float8,
           deductions::float8,
           payment_status,
           payment_method,
           payment_date,
           COALESCE(notes, ''),
           created_at,
           updated_at
    FROM salary_records
    WHERE employee_identity = $1
    ORDER BY seq
  `, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SalaryRecord
	for rows.Next() {
		var rec SalaryRecord
		var windowStart, windowEnd, payDate *time.Time
		if err := rows.Scan(
			&rec.ID,
			&rec.SalaryType,
			&rec.Period,
			&rec.PeriodLabel,
			&rec.Month,
			&windowStart,
			&windowEnd,
			&payDate,
			&rec.BasicSalary,
			&rec.Allowances,
			&rec.Bonus,
			&rec.Overtime,
			&rec.Deductions,
			&rec.PaymentStatus,
			&rec.PaymentMethod,
			&rec.PaymentDate,
			&rec.Notes,
			&rec.CreatedAt,
			&rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rec.WindowStart = derefDate(windowStart)
		rec.WindowEnd = derefDate(windowEnd)
		rec.PayDate = derefDate(payDate)
		rec.Recompute()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// writeRecords upserts every record by id and keeps the slice order in seq.
// Records are never removed through this path.
func writeRecords(ctx context.Context, tx pgx.Tx, identity string, records []SalaryRecord) error {
	batch := &pgx.Batch{}
	for i, rec := range records {
		batch.Queue(`
      INSERT INTO salary_records
        (id, employee_identity, seq, salary_type, period, period_label, month, window_start, window_end, pay_date,
         basic_salary, allowances, bonus, overtime, deductions, total_salary,
         payment_status, payment_method, payment_date, notes, created_at, updated_at)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
      ON CONFLICT (id) DO UPDATE SET
        seq = EXCLUDED.seq,
        salary_type = EXCLUDED.salary_type,
        period = EXCLUDED.period,
        period_label = EXCLUDED.period_label,
        month = EXCLUDED.month,
        window_start = EXCLUDED.window_start,
        window_end = EXCLUDED.window_end,
        pay_date = EXCLUDED.pay_date,
        basic_salary = EXCLUDED.basic_salary,
        allowances = EXCLUDED.allowances,
        bonus = EXCLUDED.bonus,
        overtime = EXCLUDED.overtime,
        deductions = EXCLUDED.deductions,
        total_salary = EXCLUDED.total_salary,
        payment_status = EXCLUDED.payment_status,
        payment_method = EXCLUDED.payment_method,
        payment_date = EXCLUDED.payment_date,
        notes = EXCLUDED.notes,
        updated_at = EXCLUDED.updated_at
      WHERE salary_records.employee_identity = EXCLUDED.employee_identity
    `, rec.ID, identity, i, nullIfEmpty(rec.SalaryType), nullIfEmpty(rec.Period), nullIfEmpty(rec.PeriodLabel),
			nullIfEmpty(rec.Month), nullIfZero(rec.WindowStart), nullIfZero(rec.WindowEnd), nullIfZero(rec.PayDate),
			rec.BasicSalary, rec.Allowances, rec.Bonus, rec.Overtime, rec.Deductions, rec.TotalSalary,
			rec.PaymentStatus, rec.PaymentMethod, rec.PaymentDate, nullIfEmpty(rec.Notes), rec.CreatedAt, rec.UpdatedAt)
	}
	if batch.Len() == 0 {
		return nil
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (s *Store) encodePending(pending *UpdateRequest) ([]byte, error) {
	if pending == nil {
		return nil, nil
	}
	return s.Crypto.SealJSON(storedPending{Request: *pending, ChallengeHash: pending.ChallengeHash})
}

func (s *Store) decodePending(raw []byte) (*UpdateRequest, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var stored storedPending
	if err := s.Crypto.OpenJSON(raw, &stored); err != nil {
		return nil, err
	}
	stored.Request.ChallengeHash = stored.ChallengeHash
	return &stored.Request, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullIfZero(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value
}

func derefDate(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return value.UTC()
}
