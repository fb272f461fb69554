// Package bridge quotes and tracks cross-chain hops.
package bridge

import (
	"context"

	"github.com/vietddude/burnrelay/internal/core/domain"
)

// Request asks for a cross-chain transfer quote.
type Request struct {
	SourceChain domain.ChainID
	DestChain   domain.ChainID
	FromToken   string
	ToToken     string
	Amount      domain.Amount
	From        string
	To          string
}

// Provider is a bridge aggregator. QuoteBridge returns an error wrapping
// domain.ErrNoRoute when the hop is impossible.
type Provider interface {
	Name() string
	QuoteBridge(ctx context.Context, req Request) (domain.BridgeQuote, error)
	// Status reports the hop started by txRef on the source chain.
	Status(ctx context.Context, q domain.BridgeQuote, txRef string) (domain.TxStatus, error)
}
