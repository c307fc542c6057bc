package payroll

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"payledger/internal/domain/audit"
	"payledger/internal/platform/requestctx"
)

// Workflow outcomes reported to the Observer.
const (
	OutcomeRequested  = "requested"
	OutcomeSuperseded = "superseded"
	OutcomeConfirmed  = "confirmed"
	OutcomeExpired    = "expired"
	OutcomeInvalid    = "invalid_code"
	OutcomeLocked     = "locked"
	OutcomeCancelled  = "cancelled"
)

// RequestUpdate stages an edit and issues a challenge. A request that is
// already pending is superseded; its code stops working immediately.
func (s *Service) RequestUpdate(ctx context.Context, identity string, proposal UpdateProposal, requestedBy string) (Challenge, error) {
	requestedBy = strings.TrimSpace(requestedBy)
	if requestedBy == "" {
		return Challenge{}, &ValidationError{Issues: []Issue{{Field: "requestedBy", Reason: "is required"}}}
	}

	code, hash, err := newChallengeCode(s.hashCost)
	if err != nil {
		return Challenge{}, err
	}

	var superseded *UpdateRequest
	var staged UpdateRequest
	_, err = s.mutate(ctx, identity, func(emp *Employee) error {
		now := s.now()
		if err := validateProposal(emp, proposal, now); err != nil {
			return err
		}
		if emp.PendingUpdate != nil {
			previous := *emp.PendingUpdate
			if previous.expired(now) {
				previous.State = UpdateStateExpired
			} else {
				previous.State = UpdateStateSuperseded
			}
			superseded = &previous
		}
		staged = UpdateRequest{
			ID:                 uuid.NewString(),
			TargetRecordID:     proposal.TargetRecordID,
			Changes:            proposal.Changes.clone(),
			RequestedBy:        requestedBy,
			RequestedAt:        now,
			ChallengeHash:      hash,
			ChallengeExpiresAt: now.Add(s.challengeTTL),
			State:              UpdateStateRequested,
		}
		if proposal.NewRecord != nil {
			draft := proposal.NewRecord.clone()
			staged.NewRecord = &draft
		}
		pending := staged
		emp.PendingUpdate = &pending
		return nil
	})
	if err != nil {
		return Challenge{}, err
	}

	if superseded != nil {
		outcome, action, actor := OutcomeSuperseded, ActionUpdateSuperseded, requestedBy
		if superseded.State == UpdateStateExpired {
			outcome, action, actor = OutcomeExpired, ActionUpdateExpired, "system"
		}
		s.observe(outcome)
		s.record(ctx, audit.Event{
			ActorID: actor, Action: action, EntityType: "salary_update",
			EntityID: superseded.ID, EmployeeID: identity, Before: superseded,
		})
	}
	s.observe(OutcomeRequested)
	s.record(ctx, audit.Event{
		ActorID: requestedBy, Action: ActionUpdateRequested, EntityType: "salary_update",
		EntityID: staged.ID, EmployeeID: identity, After: staged,
	})
	s.logger.Info("salary update requested",
		"identity", identity,
		"updateId", staged.ID,
		"targetRecordId", staged.TargetRecordID,
		"requestedBy", requestedBy,
		requestctx.Attr(ctx),
	)

	return Challenge{RequestID: staged.ID, Code: code, ExpiresAt: staged.ChallengeExpiresAt}, nil
}

// ConfirmUpdate applies the pending edit when code matches. Consuming the
// request and applying the edit commit together, so a challenge confirms at
// most once.
func (s *Service) ConfirmUpdate(ctx context.Context, identity, code, actor string) (SalaryRecord, error) {
	code = strings.TrimSpace(code)
	var outcome error
	var applied UpdateRequest
	var recordID string
	var before *SalaryRecord

	emp, err := s.mutate(ctx, identity, func(emp *Employee) error {
		pending := emp.PendingUpdate
		if pending == nil {
			return ErrNoPendingUpdate
		}
		now := s.now()
		if pending.expired(now) {
			applied = *pending
			applied.State = UpdateStateExpired
			emp.PendingUpdate = nil
			outcome = ErrExpiredChallenge
			return nil
		}
		if !challengeMatches(pending.ChallengeHash, code) {
			pending.FailedAttempts++
			if pending.FailedAttempts >= s.maxAttempts {
				applied = *pending
				emp.PendingUpdate = nil
				outcome = ErrTooManyAttempts
				return nil
			}
			outcome = &CodeError{Attempts: pending.FailedAttempts, Remaining: s.maxAttempts - pending.FailedAttempts}
			return nil
		}

		if pending.TargetRecordID == "" {
			if pending.NewRecord == nil {
				return &ValidationError{Issues: []Issue{{Field: "newRecord", Reason: "is required when no target record is given"}}}
			}
			rec, err := buildRecord(*pending.NewRecord, emp.BasePay, now)
			if err != nil {
				return err
			}
			emp.SalaryRecords = append(emp.SalaryRecords, rec)
			recordID = rec.ID
		} else {
			rec := emp.record(pending.TargetRecordID)
			if rec == nil {
				return ErrRecordNotFound
			}
			previous := rec.clone()
			before = &previous
			if err := applyChanges(rec, pending.Changes, now); err != nil {
				return err
			}
			recordID = rec.ID
		}
		applied = *pending
		applied.State = UpdateStateConfirmed
		emp.PendingUpdate = nil
		return nil
	})
	if err != nil {
		return SalaryRecord{}, err
	}

	var codeErr *CodeError
	switch {
	case errors.Is(outcome, ErrExpiredChallenge):
		s.observe(OutcomeExpired)
		s.record(ctx, audit.Event{
			ActorID: actor, Action: ActionUpdateExpired, EntityType: "salary_update",
			EntityID: applied.ID, EmployeeID: identity, Before: applied,
		})
		s.logger.Info("salary update expired", "identity", identity, "updateId", applied.ID)
		return SalaryRecord{}, outcome
	case errors.Is(outcome, ErrTooManyAttempts):
		s.observe(OutcomeLocked)
		s.record(ctx, audit.Event{
			ActorID: actor, Action: ActionUpdateLocked, EntityType: "salary_update",
			EntityID: applied.ID, EmployeeID: identity, Before: applied,
		})
		s.logger.Warn("salary update discarded after repeated invalid codes", "identity", identity, "updateId", applied.ID)
		return SalaryRecord{}, outcome
	case errors.As(outcome, &codeErr):
		s.observe(OutcomeInvalid)
		s.logger.Warn("salary update invalid code", "identity", identity, "attempts", codeErr.Attempts)
		return SalaryRecord{}, outcome
	}

	rec := emp.record(recordID)
	s.observe(OutcomeConfirmed)
	s.record(ctx, audit.Event{
		ActorID: actor, Action: ActionUpdateConfirmed, EntityType: "salary_record",
		EntityID: recordID, EmployeeID: identity, Before: before, After: rec,
	})
	s.logger.Info("salary update confirmed",
		"identity", identity,
		"updateId", applied.ID,
		"recordId", recordID,
		requestctx.Attr(ctx),
	)
	return *rec, nil
}

// CancelUpdate discards the pending edit. It is a no-op when none exists.
func (s *Service) CancelUpdate(ctx context.Context, identity, actor string) error {
	var cancelled *UpdateRequest
	_, err := s.mutate(ctx, identity, func(emp *Employee) error {
		if emp.PendingUpdate == nil {
			return nil
		}
		previous := *emp.PendingUpdate
		cancelled = &previous
		emp.PendingUpdate = nil
		return nil
	})
	if err != nil {
		return err
	}
	if cancelled != nil {
		s.observe(OutcomeCancelled)
		s.record(ctx, audit.Event{
			ActorID: actor, Action: ActionUpdateCancelled, EntityType: "salary_update",
			EntityID: cancelled.ID, EmployeeID: identity, Before: cancelled,
		})
	}
	return nil
}

// PendingUpdate reports the workflow state. An expired request is discarded
// here and reported once as EXPIRED.
func (s *Service) PendingUpdate(ctx context.Context, identity string) (PendingView, error) {
	emp, err := s.store.GetEmployee(ctx, identity)
	if err != nil {
		return PendingView{}, err
	}
	if emp.PendingUpdate == nil {
		return PendingView{State: UpdateStateNone}, nil
	}
	if !emp.PendingUpdate.expired(s.now()) {
		return PendingView{State: emp.PendingUpdate.State, Request: emp.PendingUpdate}, nil
	}
	discarded, err := s.discardExpired(ctx, identity)
	if err != nil {
		return PendingView{}, err
	}
	if !discarded {
		return s.PendingUpdate(ctx, identity)
	}
	return PendingView{State: UpdateStateExpired}, nil
}

// SweepExpired discards every expired pending update and returns how many
// were removed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	identities, err := s.store.ListIdentities(ctx)
	if err != nil {
		return 0, err
	}
	var removed int
	for _, identity := range identities {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		discarded, err := s.discardExpired(ctx, identity)
		if errors.Is(err, ErrEmployeeNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		if discarded {
			removed++
		}
	}
	return removed, nil
}

func (s *Service) discardExpired(ctx context.Context, identity string) (bool, error) {
	var expired *UpdateRequest
	_, err := s.mutate(ctx, identity, func(emp *Employee) error {
		if emp.PendingUpdate == nil || !emp.PendingUpdate.expired(s.now()) {
			return nil
		}
		previous := *emp.PendingUpdate
		previous.State = UpdateStateExpired
		expired = &previous
		emp.PendingUpdate = nil
		return nil
	})
	if err != nil || expired == nil {
		return false, err
	}
	s.observe(OutcomeExpired)
	s.record(ctx, audit.Event{
		ActorID: "system", Action: ActionUpdateExpired, EntityType: "salary_update",
		EntityID: expired.ID, EmployeeID: identity, Before: expired,
	})
	return true, nil
}

// validateProposal dry-runs the proposal against the current employee so a
// challenge is only issued for an edit that can be applied.
func validateProposal(emp *Employee, proposal UpdateProposal, now time.Time) error {
	if proposal.TargetRecordID == "" {
		if proposal.NewRecord == nil {
			return &ValidationError{Issues: []Issue{{Field: "newRecord", Reason: "is required when no target record is given"}}}
		}
		_, err := buildRecord(*proposal.NewRecord, emp.BasePay, now)
		return err
	}
	if proposal.NewRecord != nil {
		return &ValidationError{Issues: []Issue{{Field: "newRecord", Reason: "must be empty when a target record is given"}}}
	}
	if proposal.Changes.IsEmpty() {
		return &ValidationError{Issues: []Issue{{Field: "proposedChanges", Reason: "must change at least one field"}}}
	}
	rec := emp.record(proposal.TargetRecordID)
	if rec == nil {
		return ErrRecordNotFound
	}
	scratch := rec.clone()
	return applyChanges(&scratch, proposal.Changes, now)
}
