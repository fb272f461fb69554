package domain

import "time"

type EventType string

const (
	EventRecordCreated EventType = "record.created"
	EventStepUpdated   EventType = "step.updated"
	EventRecordClosed  EventType = "record.closed"
)

// BurnEvent is published whenever a burn record changes.
type BurnEvent struct {
	Type         EventType  `json:"type"`
	RecordID     string     `json:"record_id"`
	Wallet       string     `json:"wallet"`
	Chain        ChainID    `json:"chain"`
	RecordStatus PlanStatus `json:"record_status"`
	StepID       string     `json:"step_id,omitempty"`
	StepStatus   StepStatus `json:"step_status,omitempty"`
	TxRef        string     `json:"tx_ref,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	Summary      string     `json:"summary"`
	Timestamp    time.Time  `json:"timestamp"`
}

// NewBurnEvent builds an event snapshot from a record.
func NewBurnEvent(t EventType, rec *BurnRecord, step *ExecutionStep, at time.Time) *BurnEvent {
	ev := &BurnEvent{
		Type:         t,
		RecordID:     rec.ID,
		Wallet:       rec.WalletAddress,
		Chain:        rec.SourceChain,
		RecordStatus: rec.Status,
		Summary:      rec.Summary(),
		Timestamp:    at,
	}
	if step != nil {
		ev.StepID = step.ID
		ev.StepStatus = step.Status
		ev.TxRef = step.TxRef
		ev.Reason = step.FailureReason
	}
	return ev
}
