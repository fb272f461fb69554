package status

import (
	"fmt"
	"time"

	"github.com/vietddude/burnrelay/internal/core/domain"
)

// ValidTransitions defines allowed step transitions.
// Key is the current status, value is the list of valid next statuses.
var ValidTransitions = map[domain.StepStatus][]domain.StepStatus{
	domain.StepPending:   {domain.StepSubmitted, domain.StepFailed},
	domain.StepSubmitted: {domain.StepConfirmed, domain.StepFailed},
	domain.StepConfirmed: {},
	domain.StepFailed:    {},
}

// CanTransition checks if a step may move from one status to another.
// Staying in the same non-terminal status is allowed so that quotes and
// attempt counters can be refreshed.
func CanTransition(from, to domain.StepStatus) bool {
	if from == to {
		return !from.IsTerminal()
	}
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}

	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// CheckTransition returns domain.ErrInvalidTransition wrapped with context
// when the move is not allowed.
func CheckTransition(stepID string, from, to domain.StepStatus) error {
	if CanTransition(from, to) {
		return nil
	}
	return fmt.Errorf("%w: step %s %s -> %s", domain.ErrInvalidTransition, stepID, from, to)
}

// Aggregate derives a plan status from its steps. A single failed step
// settles the aggregate even while siblings are still in flight.
func Aggregate(steps []domain.ExecutionStep) domain.PlanStatus {
	if len(steps) == 0 {
		return domain.PlanPending
	}
	var pending, confirmed, failed int
	for _, s := range steps {
		switch s.Status {
		case domain.StepPending:
			pending++
		case domain.StepConfirmed:
			confirmed++
		case domain.StepFailed:
			failed++
		}
	}

	switch {
	case pending == len(steps):
		return domain.PlanPending
	case confirmed == len(steps):
		return domain.PlanCompleted
	case failed > 0 && confirmed > 0:
		return domain.PlanPartiallyFailed
	case failed > 0:
		return domain.PlanFailed
	default:
		return domain.PlanInProgress
	}
}

var planRank = map[domain.PlanStatus]int{
	domain.PlanPending:         0,
	domain.PlanInProgress:      1,
	domain.PlanFailed:          2,
	domain.PlanPartiallyFailed: 3,
	domain.PlanCompleted:       4,
}

// CanAdvancePlan reports whether a plan may move from one aggregate status
// to another. Plans never move backwards; a Failed plan can still become
// PartiallyFailed when an in-flight sibling confirms afterwards.
func CanAdvancePlan(from, to domain.PlanStatus) bool {
	if from == to {
		return true
	}
	if from == domain.PlanCompleted || from == domain.PlanPartiallyFailed {
		return false
	}
	return planRank[to] > planRank[from]
}

// Settled reports whether every step has reached a terminal status.
func Settled(steps []domain.ExecutionStep) bool {
	for _, s := range steps {
		if !s.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Transition represents a step status change with metadata.
type Transition struct {
	StepID    string
	From      domain.StepStatus
	To        domain.StepStatus
	Reason    string
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(stepID string, from, to domain.StepStatus, reason string, at time.Time) Transition {
	return Transition{
		StepID:    stepID,
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: at,
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// Description returns a human-readable description of a plan status.
func Description(s domain.PlanStatus) string {
	switch s {
	case domain.PlanPending:
		return "Pending - plan built, nothing submitted yet"
	case domain.PlanInProgress:
		return "In progress - steps submitted and awaiting confirmation"
	case domain.PlanCompleted:
		return "Completed - every step confirmed"
	case domain.PlanPartiallyFailed:
		return "Partially failed - some steps confirmed, others failed"
	case domain.PlanFailed:
		return "Failed - no step confirmed"
	default:
		return "Unknown status"
	}
}
