package quote

import (
	"context"

	"github.com/vietddude/burnrelay/internal/core/domain"
)

// Request asks for a same-chain swap quote.
type Request struct {
	Chain       domain.ChainID
	InputToken  string
	OutputToken string
	AmountIn    domain.Amount
	// From is the wallet that will sign the swap. When empty the provider
	// returns a price only and no transaction.
	From string
	// To receives the output. Defaults to From.
	To string
}

// Provider prices swaps on one chain family. Implementations return an
// error wrapping domain.ErrNoLiquidity when no route exists; any other
// error is treated as a provider failure.
type Provider interface {
	Name() string
	Quote(ctx context.Context, chain domain.ChainInfo, req Request, slippageBps int64) (domain.Quote, error)
}
