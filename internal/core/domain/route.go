package domain

// Route actions.
const (
	RouteBurn          = "burn"
	RouteSwap          = "swap"
	RouteBridgeAndSwap = "bridge_and_swap"
)

// RouteStep is one advisory line of a cross-chain route analysis.
type RouteStep struct {
	Step          int     `json:"step"`
	Action        string  `json:"action"`
	Chain         ChainID `json:"chain"`
	DestChain     ChainID `json:"dest_chain,omitempty"`
	Target        string  `json:"target,omitempty"`
	EstimatedTime string  `json:"estimated_time"`
	EstimatedCost string  `json:"estimated_cost"`
	BridgeTool    string  `json:"bridge_tool,omitempty"`
}

// CrossChainRoute is the read-only result of route analysis.
type CrossChainRoute struct {
	SourceChain        ChainID            `json:"source_chain"`
	SourceToken        string             `json:"source_token"`
	Amount             Amount             `json:"amount"`
	CrossChainRequired bool               `json:"cross_chain_required"`
	OptimalChains      map[string]ChainID `json:"optimal_chains"`
	Routes             []RouteStep        `json:"routes"`
	TotalEstimatedTime string             `json:"total_estimated_time"`
	TotalEstimatedCost string             `json:"total_estimated_cost"`
}

// TargetChain returns the chain a target symbol should be swapped on.
func (r *CrossChainRoute) TargetChain(symbol string) (ChainID, bool) {
	if r == nil {
		return "", false
	}
	c, ok := r.OptimalChains[symbol]
	return c, ok
}
