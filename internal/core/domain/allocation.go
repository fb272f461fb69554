package domain

import "fmt"

// AllocationMode selects the percentage table applied to a burn.
type AllocationMode string

const (
	ModeStandard    AllocationMode = "standard"
	ModeContest     AllocationMode = "contest"
	ModeDrbDirect   AllocationMode = "drb_direct"
	ModeNonBurnable AllocationMode = "non_burnable"
)

// AllModes lists every allocation mode. Tables must exist for each.
var AllModes = []AllocationMode{ModeStandard, ModeContest, ModeDrbDirect, ModeNonBurnable}

// ParseMode parses a user-requested mode. Only standard and contest can be
// requested; the other two are derived from the token classification.
func ParseMode(s string) (AllocationMode, error) {
	switch AllocationMode(s) {
	case "", ModeStandard:
		return ModeStandard, nil
	case ModeContest:
		return ModeContest, nil
	default:
		return "", fmt.Errorf("unsupported mode %q", s)
	}
}

// DestinationKind says where a leg's amount goes.
type DestinationKind string

const (
	DestBurn    DestinationKind = "burn"
	DestSwap    DestinationKind = "swap"
	DestForward DestinationKind = "forward"
	DestPool    DestinationKind = "pool"
)

// AllocationLeg is one named share of the burn amount.
type AllocationLeg struct {
	Name      string          `json:"name"`
	Kind      DestinationKind `json:"kind"`
	WeightBps int64           `json:"weight_bps"`
	// OutputToken is the target symbol for swap legs.
	OutputToken string `json:"output_token,omitempty"`
	// Recipient is filled for forward and pool legs; burn and swap legs
	// resolve their destination per chain at plan time.
	Recipient string `json:"recipient,omitempty"`
	AmountIn  Amount `json:"amount_in"`
}

// AllocationPlan is the ordered split of a burn amount.
type AllocationPlan struct {
	Mode        AllocationMode  `json:"mode"`
	TotalAmount Amount          `json:"total_amount"`
	Legs        []AllocationLeg `json:"legs"`
}

// Sum returns the sum of all leg amounts.
func (p AllocationPlan) Sum() Amount {
	total := Amount{}
	for _, leg := range p.Legs {
		total = total.Add(leg.AmountIn)
	}
	return total
}

// Leg returns the leg with the given name.
func (p AllocationPlan) Leg(name string) (AllocationLeg, bool) {
	for _, leg := range p.Legs {
		if leg.Name == name {
			return leg, true
		}
	}
	return AllocationLeg{}, false
}
