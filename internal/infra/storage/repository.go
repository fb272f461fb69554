package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vietddude/burnrelay/internal/core/domain"
)

var (
	// ErrRecordNotFound is returned when a burn record doesn't exist
	ErrRecordNotFound = errors.New("burn record not found")
)

// StepUpdate is a change to one step. Zero fields are left untouched.
type StepUpdate struct {
	Status  domain.StepStatus
	TxRef   string
	Reason  string
	Detail  string
	Attempt int
	// Quote replaces the step quote and its min-output guard.
	Quote *domain.Quote
	// AmountIn resizes a step that has not been submitted yet.
	AmountIn *domain.Amount
	At       time.Time
}

// ListFilter narrows List results. Zero fields match everything.
type ListFilter struct {
	Wallet   string
	Statuses []domain.PlanStatus
	Chain    domain.ChainID
	Token    string
	Since    time.Time
	// UpdatedBefore selects records untouched since the given time.
	UpdatedBefore time.Time
}

// Matches reports whether rec passes the filter.
func (f ListFilter) Matches(rec *domain.BurnRecord) bool {
	if f.Wallet != "" && !SameWallet(rec.WalletAddress, f.Wallet) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if rec.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Chain != "" && rec.SourceChain != f.Chain {
		return false
	}
	if f.Token != "" && !SameWallet(rec.TokenAddress, f.Token) {
		return false
	}
	if !f.Since.IsZero() && rec.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.UpdatedBefore.IsZero() && !rec.UpdatedAt.Before(f.UpdatedBefore) {
		return false
	}
	return true
}

// SameWallet compares addresses without knowing their chain: hex addresses
// case-insensitively, anything else exactly.
func SameWallet(a, b string) bool {
	if strings.HasPrefix(a, "0x") || strings.HasPrefix(a, "0X") {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// BurnRepository persists burn records and their execution plans.
type BurnRepository interface {
	// Create stores a new record
	Create(ctx context.Context, rec *domain.BurnRecord) error

	// Get retrieves a record by id
	Get(ctx context.Context, id string) (*domain.BurnRecord, error)

	// UpdateStepStatus applies u to one step and recomputes the aggregate.
	// It returns the record as stored after the update.
	UpdateStepStatus(ctx context.Context, recordID, stepID string, u StepUpdate) (*domain.BurnRecord, error)

	// List returns matching records, newest first
	List(ctx context.Context, f ListFilter, limit, offset int) ([]*domain.BurnRecord, error)
}
