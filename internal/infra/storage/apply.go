package storage

import (
	"fmt"

	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/core/status"
)

// ApplyStepUpdate mutates rec in place. It reports false when the update is
// a repeated terminal write, which is accepted and ignored. Backends call it
// on their private copy before persisting.
func ApplyStepUpdate(rec *domain.BurnRecord, stepID string, u StepUpdate) (bool, error) {
	if rec.Plan == nil {
		return false, fmt.Errorf("%w: record %s has no plan", domain.ErrUnknownStep, rec.ID)
	}
	step := rec.Plan.Step(stepID)
	if step == nil {
		return false, fmt.Errorf("%w: %s", domain.ErrUnknownStep, stepID)
	}
	if u.Status == "" {
		u.Status = step.Status
	}
	if step.Status == u.Status && step.Status.IsTerminal() {
		return false, nil
	}
	if err := status.CheckTransition(step.ID, step.Status, u.Status); err != nil {
		return false, err
	}
	if u.AmountIn != nil && (step.Status != domain.StepPending || u.Status != domain.StepPending) {
		return false, fmt.Errorf("%w: step %s cannot be resized once %s", domain.ErrInvalidTransition, step.ID, step.Status)
	}

	at := u.At
	step.Status = u.Status
	if u.TxRef != "" {
		step.TxRef = u.TxRef
	}
	if u.Attempt > 0 {
		step.Attempt = u.Attempt
	}
	if u.AmountIn != nil {
		step.AmountIn = *u.AmountIn
	}
	if u.Quote != nil {
		q := *u.Quote
		step.Quote = &q
		step.MinAmountOut = q.MinOutputAmount
	}
	switch u.Status {
	case domain.StepSubmitted:
		if step.SubmittedAt == nil {
			step.SubmittedAt = &at
		}
	case domain.StepConfirmed:
		step.ConfirmedAt = &at
	case domain.StepFailed:
		step.FailureReason = u.Reason
		step.FailureDetail = u.Detail
	}
	step.UpdatedAt = at

	next := status.Aggregate(rec.Plan.Steps)
	if status.CanAdvancePlan(rec.Status, next) {
		rec.Status = next
	}
	rec.Plan.Status = rec.Status
	rec.UpdatedAt = at
	rec.Version++
	return true, nil
}
