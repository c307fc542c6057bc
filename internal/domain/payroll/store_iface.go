package payroll

import (
	"context"

	"payledger/internal/domain/audit"
)

type StoreAPI interface {
	SequenceSource
	ContactTaken(ctx context.Context, email, phone string) (bool, error)
	// InsertEmployee returns ErrAllocationConflict when the identity is
	// already taken and ErrDuplicateContact when email or phone is.
	InsertEmployee(ctx context.Context, emp *Employee) error
	GetEmployee(ctx context.Context, identity string) (*Employee, error)
	ListEmployees(ctx context.Context, status string) ([]Employee, error)
	ListIdentities(ctx context.Context) ([]string, error)
	// UpdateEmployee runs fn with exclusive access to one employee and
	// persists the result atomically. Nothing is written when fn fails.
	UpdateEmployee(ctx context.Context, identity string, fn func(*Employee) error) (*Employee, error)
	// DeleteEmployee removes the employee when guard accepts it, with the
	// same exclusive access as UpdateEmployee. It returns the removed state.
	DeleteEmployee(ctx context.Context, identity string, guard func(*Employee) error) (*Employee, error)
}

type Auditor interface {
	Record(ctx context.Context, evt audit.Event) error
}

// Observer receives workflow outcomes, typically a metrics collector.
type Observer interface {
	UpdateOutcome(outcome string)
}
