package payroll

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrDuplicateContact       = fmt.Errorf("%w: email or phone already registered", ErrValidation)
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrExpiredChallenge       = errors.New("challenge expired")
	ErrInvalidCode            = errors.New("invalid challenge code")
	ErrTooManyAttempts        = errors.New("too many invalid challenge attempts")
	ErrNoPendingUpdate        = errors.New("no pending update")
	ErrPendingUpdateExists    = errors.New("employee has a pending update")
	ErrAllocationConflict     = errors.New("employee identity already allocated")
	ErrAllocationUnavailable  = errors.New("identity allocation unavailable")
	ErrEmployeeNotFound       = errors.New("employee not found")
	ErrRecordNotFound         = errors.New("salary record not found")
)

type Issue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every rejected field of a single input.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.Field+" "+issue.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

type issues []Issue

func (v *issues) add(field, reason string) {
	*v = append(*v, Issue{Field: field, Reason: reason})
}

func (v issues) err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Issues: v}
}

// CodeError reports a rejected challenge code together with the attempt
// context a caller-side rate limiter needs.
type CodeError struct {
	Attempts  int
	Remaining int
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("invalid challenge code (%d attempts, %d remaining)", e.Attempts, e.Remaining)
}

func (e *CodeError) Is(target error) bool {
	return target == ErrInvalidCode
}

func transitionError(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
}
