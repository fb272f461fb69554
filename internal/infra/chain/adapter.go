package chain

import (
	"context"
	"errors"

	"github.com/vietddude/burnrelay/internal/core/domain"
)

var (
	// ErrNotToken is returned when the address holds no token contract or mint.
	ErrNotToken = errors.New("address is not a token")
	// ErrCallReverted is returned when a read or simulated call reverts.
	ErrCallReverted = errors.New("call reverted")
	// ErrSimulationUnsupported is returned by chains without a transfer simulator.
	ErrSimulationUnsupported = errors.New("transfer simulation unsupported")
)

// Adapter defines the chain-level interface used by the classifier, the plan
// builder and the confirmation monitor.
type Adapter interface {
	// ChainID returns the chain identifier
	ChainID() domain.ChainID

	// Family returns the chain family
	Family() domain.ChainFamily

	// TokenMetadata reads symbol, name and decimals of a token.
	// Returns ErrNotToken when nothing token-like lives at the address.
	TokenMetadata(ctx context.Context, token string) (domain.TokenMetadata, error)

	// SimulateTransfer dry-runs transfer(to, amount) of token sent by from.
	// Returns ErrCallReverted when the chain refuses the transfer.
	SimulateTransfer(ctx context.Context, token, from, to string, amount domain.Amount) error

	// LatestHead returns the latest block number or slot
	LatestHead(ctx context.Context) (uint64, error)

	// TxStatus reports the confirmation state of a submitted transaction.
	TxStatus(ctx context.Context, txRef string) (domain.TxStatus, error)

	// BuildTransfer builds the payload moving amount of token to recipient.
	BuildTransfer(token, recipient string, amount domain.Amount) (*domain.TxPayload, error)

	// BuildApprove builds the payload granting spender an allowance of amount.
	BuildApprove(token, spender string, amount domain.Amount) (*domain.TxPayload, error)
}

// Registry holds one adapter per configured chain.
type Registry map[domain.ChainID]Adapter

// Get returns the adapter for chain.
func (r Registry) Get(chain domain.ChainID) (Adapter, bool) {
	a, ok := r[chain]
	return a, ok
}
