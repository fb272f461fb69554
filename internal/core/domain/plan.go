package domain

import "time"

// StepKind is the on-chain operation a step performs.
type StepKind string

const (
	StepTransfer StepKind = "transfer"
	StepSwap     StepKind = "swap"
	StepBridge   StepKind = "bridge"
	StepForward  StepKind = "forward"
)

// StepAction refines a Transfer step.
type StepAction string

const (
	ActionTransfer StepAction = "transfer"
	// ActionApprove grants the bridge spender an allowance for the amount.
	ActionApprove StepAction = "approve"
)

// StepStatus is the lifecycle state of one step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepSubmitted StepStatus = "submitted"
	StepConfirmed StepStatus = "confirmed"
	StepFailed    StepStatus = "failed"
)

// IsTerminal reports whether no further transition is possible.
func (s StepStatus) IsTerminal() bool {
	return s == StepConfirmed || s == StepFailed
}

// PlanStatus is the aggregate state of an execution plan.
type PlanStatus string

const (
	PlanPending         PlanStatus = "pending"
	PlanInProgress      PlanStatus = "in_progress"
	PlanPartiallyFailed PlanStatus = "partially_failed"
	PlanCompleted       PlanStatus = "completed"
	PlanFailed          PlanStatus = "failed"
)

// TxStatus is what a chain or bridge reports for a submitted transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxReverted  TxStatus = "reverted"
)

// ExecutionStep is one concrete transaction in a plan.
type ExecutionStep struct {
	ID             string       `json:"id"`
	LegName        string       `json:"leg"`
	Chain          ChainID      `json:"chain"`
	DestChain      ChainID      `json:"dest_chain,omitempty"`
	Kind           StepKind     `json:"kind"`
	Action         StepAction   `json:"action,omitempty"`
	DependsOn      []string     `json:"depends_on"`
	Status         StepStatus   `json:"status"`
	TxRef          string       `json:"tx_ref,omitempty"`
	Attempt        int          `json:"attempt"`
	IdempotencyKey string       `json:"idempotency_key"`
	From           string       `json:"from"`
	Token          string       `json:"token"`
	OutputToken    string       `json:"output_token,omitempty"`
	Recipient      string       `json:"recipient,omitempty"`
	AmountIn       Amount       `json:"amount_in"`
	MinAmountOut   Amount       `json:"min_amount_out"`
	Quote          *Quote       `json:"quote,omitempty"`
	BridgeQuote    *BridgeQuote `json:"bridge_quote,omitempty"`
	FailureReason  string       `json:"failure_reason,omitempty"`
	FailureDetail  string       `json:"failure_detail,omitempty"`
	SubmittedAt    *time.Time   `json:"submitted_at,omitempty"`
	ConfirmedAt    *time.Time   `json:"confirmed_at,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ExecutionPlan is the step DAG for one allocation plan.
type ExecutionPlan struct {
	ID           string          `json:"id"`
	BurnRecordID string          `json:"burn_record_id"`
	SourceChain  ChainID         `json:"source_chain"`
	Mode         AllocationMode  `json:"mode"`
	Allocation   AllocationPlan  `json:"allocation"`
	Steps        []ExecutionStep `json:"steps"`
	Status       PlanStatus      `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Step returns a pointer to the step with the given id.
func (p *ExecutionPlan) Step(id string) *ExecutionStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// Dependents returns the ids of every step that depends on id,
// directly or transitively.
func (p *ExecutionPlan) Dependents(id string) []string {
	seen := map[string]bool{}
	queue := []string{id}
	var out []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, s := range p.Steps {
			if seen[s.ID] {
				continue
			}
			for _, dep := range s.DependsOn {
				if dep == cur {
					seen[s.ID] = true
					out = append(out, s.ID)
					queue = append(queue, s.ID)
					break
				}
			}
		}
	}
	return out
}

// Count returns how many steps are in the given status.
func (p *ExecutionPlan) Count(status StepStatus) int {
	n := 0
	for _, s := range p.Steps {
		if s.Status == status {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the plan.
func (p *ExecutionPlan) Clone() *ExecutionPlan {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Allocation.Legs = append([]AllocationLeg(nil), p.Allocation.Legs...)
	cp.Steps = make([]ExecutionStep, len(p.Steps))
	for i, s := range p.Steps {
		s.DependsOn = append([]string(nil), s.DependsOn...)
		if s.Quote != nil {
			q := *s.Quote
			q.Route = append([]string(nil), s.Quote.Route...)
			if s.Quote.Tx != nil {
				tx := *s.Quote.Tx
				q.Tx = &tx
			}
			s.Quote = &q
		}
		if s.BridgeQuote != nil {
			bq := *s.BridgeQuote
			if s.BridgeQuote.Tx != nil {
				tx := *s.BridgeQuote.Tx
				bq.Tx = &tx
			}
			s.BridgeQuote = &bq
		}
		if s.SubmittedAt != nil {
			t := *s.SubmittedAt
			s.SubmittedAt = &t
		}
		if s.ConfirmedAt != nil {
			t := *s.ConfirmedAt
			s.ConfirmedAt = &t
		}
		cp.Steps[i] = s
	}
	return &cp
}
