package domain

import "time"

// TxPayload is the transaction handed to the signer.
// EVM payloads carry hex calldata. Provider-built Solana payloads carry a
// base64 serialized transaction in Data; locally built Solana payloads leave
// Data empty and name an SPL Intent instead.
type TxPayload struct {
	To       string `json:"to,omitempty"`
	Data     string `json:"data,omitempty"`
	Value    string `json:"value,omitempty"`
	GasLimit string `json:"gas_limit,omitempty"`
	Intent   string `json:"intent,omitempty"`
	Mint     string `json:"mint,omitempty"`
	Amount   string `json:"amount,omitempty"`
}

// Quote is a priced swap between two tokens on one chain.
type Quote struct {
	Chain           ChainID    `json:"chain"`
	InputToken      string     `json:"input_token"`
	OutputToken     string     `json:"output_token"`
	AmountIn        Amount     `json:"amount_in"`
	OutputAmount    Amount     `json:"output_amount"`
	MinOutputAmount Amount     `json:"min_output_amount"`
	PriceImpactBps  int64      `json:"price_impact_bps"`
	Route           []string   `json:"route,omitempty"`
	Provider        string     `json:"provider"`
	Tx              *TxPayload `json:"tx,omitempty"`
	QuotedAt        time.Time  `json:"quoted_at"`
}

// IsStale reports whether the quote is older than threshold at now.
func (q Quote) IsStale(now time.Time, threshold time.Duration) bool {
	if threshold <= 0 {
		return false
	}
	return now.Sub(q.QuotedAt) > threshold
}

// BridgeQuote prices a cross-chain hop.
type BridgeQuote struct {
	Provider      string        `json:"provider"`
	Tool          string        `json:"tool,omitempty"`
	SourceChain   ChainID       `json:"source_chain"`
	DestChain     ChainID       `json:"dest_chain"`
	FromToken     string        `json:"from_token"`
	ToToken       string        `json:"to_token"`
	AmountIn      Amount        `json:"amount_in"`
	ToAmount      Amount        `json:"to_amount"`
	ToAmountMin   Amount        `json:"to_amount_min"`
	Spender       string        `json:"spender,omitempty"`
	FeeUSD        string        `json:"fee_usd,omitempty"`
	EstimatedTime time.Duration `json:"estimated_time"`
	Tx            *TxPayload    `json:"tx,omitempty"`
	QuotedAt      time.Time     `json:"quoted_at"`
}
