package domain

import (
	"fmt"
	"time"
)

// BurnRecord is the durable ledger entry for one burn request.
type BurnRecord struct {
	ID                string         `json:"id"`
	WalletAddress     string         `json:"wallet_address"`
	DestinationWallet string         `json:"destination_wallet,omitempty"`
	SourceChain       ChainID        `json:"source_chain"`
	TokenAddress      string         `json:"token_address"`
	TokenSymbol       string         `json:"token_symbol"`
	TokenDecimals     int32          `json:"token_decimals"`
	Amount            Amount         `json:"amount"`
	Mode              AllocationMode `json:"mode"`
	Status            PlanStatus     `json:"status"`
	Plan              *ExecutionPlan `json:"execution_plan"`
	Version           int64          `json:"version"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Clone returns a deep copy of the record.
func (r *BurnRecord) Clone() *BurnRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Plan = r.Plan.Clone()
	return &cp
}

// BurnedAmount sums the confirmed burn-address transfers.
func (r *BurnRecord) BurnedAmount() Amount {
	total := Amount{}
	if r.Plan == nil {
		return total
	}
	for _, leg := range r.Plan.Allocation.Legs {
		if leg.Kind != DestBurn {
			continue
		}
		for _, s := range r.Plan.Steps {
			if s.LegName == leg.Name && s.Status == StepConfirmed {
				total = total.Add(s.AmountIn)
			}
		}
	}
	return total
}

// Summary renders the user-visible status line for the record.
func (r *BurnRecord) Summary() string {
	if r.Plan == nil {
		return fmt.Sprintf("record #%s has no execution plan", r.ID)
	}
	total := len(r.Plan.Steps)
	confirmed := r.Plan.Count(StepConfirmed)

	switch r.Status {
	case PlanCompleted:
		return fmt.Sprintf("all %d steps confirmed", total)
	case PlanPending:
		return fmt.Sprintf("waiting to submit %d steps", total)
	case PlanInProgress:
		return fmt.Sprintf("%d of %d steps confirmed", confirmed, total)
	}

	for _, s := range r.Plan.Steps {
		if s.Status != StepFailed || s.FailureReason == ReasonDependencyFailed {
			continue
		}
		reason := s.FailureReason
		if s.FailureDetail != "" {
			reason = s.FailureDetail
		}
		return fmt.Sprintf(
			"%d of %d steps confirmed, step %s failed: %s, record #%s for support",
			confirmed, total, s.ID, reason, r.ID,
		)
	}
	return fmt.Sprintf("%d of %d steps confirmed, record #%s for support", confirmed, total, r.ID)
}
