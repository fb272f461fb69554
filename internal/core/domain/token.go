package domain

import "time"

// TokenMetadata is what a chain reports about a token contract or mint.
type TokenMetadata struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int32  `json:"decimals"`
}

// Token identifies a token by (chain, address).
type Token struct {
	Chain   ChainID `json:"chain"`
	Address string  `json:"address"`
	TokenMetadata
}

// TokenClassification is the result of classifying a token for one request.
type TokenClassification struct {
	Token           Token     `json:"token"`
	IsValid         bool      `json:"is_valid"`
	IsProtocolToken bool      `json:"is_protocol_token"`
	IsBurnable      bool      `json:"is_burnable"`
	LiquidityChains []ChainID `json:"liquidity_chains"`
	ClassifiedAt    time.Time `json:"classified_at"`
}

// HasLiquidityOn reports whether the token can be swapped on chain.
func (c TokenClassification) HasLiquidityOn(chain ChainID) bool {
	for _, id := range c.LiquidityChains {
		if id == chain {
			return true
		}
	}
	return false
}
