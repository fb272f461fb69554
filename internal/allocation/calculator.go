// Package allocation splits a burn amount into legs according to the
// basis-point table of its allocation mode.
package allocation

import (
	"fmt"

	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
)

// Calculator computes allocation plans. It is safe for concurrent use.
type Calculator struct {
	tables    map[domain.AllocationMode][]config.LegConfig
	maxAmount domain.Amount
}

// NewCalculator validates every table and returns a Calculator.
func NewCalculator(cfg config.AllocationConfig) (*Calculator, error) {
	if err := ValidateTables(cfg.Tables); err != nil {
		return nil, err
	}
	c := &Calculator{tables: make(map[domain.AllocationMode][]config.LegConfig, len(cfg.Tables))}
	for mode, legs := range cfg.Tables {
		c.tables[mode] = append([]config.LegConfig(nil), legs...)
	}
	if cfg.MaxAmount != "" {
		limit, err := domain.ParseAmount(cfg.MaxAmount)
		if err != nil {
			return nil, fmt.Errorf("max amount: %w", err)
		}
		c.maxAmount = limit
	}
	return c, nil
}

// ValidateTables checks that a table exists for every mode and that each
// one sums to exactly 10,000 bps.
func ValidateTables(tables map[domain.AllocationMode][]config.LegConfig) error {
	for _, mode := range domain.AllModes {
		legs, ok := tables[mode]
		if !ok {
			return fmt.Errorf("allocation table %s missing", mode)
		}
		if err := config.ValidateTable(legs); err != nil {
			return fmt.Errorf("allocation table %s: %w", mode, err)
		}
	}
	return nil
}

// ResolveMode picks the effective mode for a classified token. Protocol
// tokens always go direct and non-burnable tokens always fold their burn
// share into swaps, whatever the caller asked for.
func ResolveMode(class domain.TokenClassification, requested domain.AllocationMode) domain.AllocationMode {
	switch {
	case class.IsProtocolToken:
		return domain.ModeDrbDirect
	case !class.IsBurnable:
		return domain.ModeNonBurnable
	case requested == domain.ModeContest:
		return domain.ModeContest
	default:
		return domain.ModeStandard
	}
}

// Table returns a copy of the table for mode.
func (c *Calculator) Table(mode domain.AllocationMode) []config.LegConfig {
	return append([]config.LegConfig(nil), c.tables[mode]...)
}

// ComputeAllocation splits amount across the legs of the resolved mode.
// Every leg but the last is floored; the last leg takes the remainder so
// the legs always sum to amount exactly.
func (c *Calculator) ComputeAllocation(
	amount domain.Amount,
	class domain.TokenClassification,
	requested domain.AllocationMode,
) (domain.AllocationPlan, error) {
	if amount.Sign() <= 0 {
		return domain.AllocationPlan{}, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	if !c.maxAmount.IsZero() && amount.Cmp(c.maxAmount) > 0 {
		return domain.AllocationPlan{}, fmt.Errorf("%w: amount exceeds maximum %s", domain.ErrInvalidAmount, c.maxAmount)
	}

	mode := ResolveMode(class, requested)
	table := c.tables[mode]

	plan := domain.AllocationPlan{
		Mode:        mode,
		TotalAmount: amount,
		Legs:        make([]domain.AllocationLeg, 0, len(table)),
	}

	remaining := amount
	for i, row := range table {
		share := remaining
		if i < len(table)-1 {
			share = amount.MulBps(row.WeightBps)
			remaining = remaining.Sub(share)
		}
		leg := domain.AllocationLeg{
			Name:        row.Name,
			Kind:        row.Kind,
			WeightBps:   row.WeightBps,
			OutputToken: row.Target,
			AmountIn:    share,
		}
		if row.Kind == domain.DestForward || row.Kind == domain.DestPool {
			leg.Recipient = row.Recipients[class.Token.Chain]
		}
		plan.Legs = append(plan.Legs, leg)
	}
	return plan, nil
}
