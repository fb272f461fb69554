package solana

import (
	"context"
	"fmt"

	logger "log/slog"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/chain"
	"github.com/vietddude/burnrelay/internal/infra/rpc"
)

var token2022ProgramID = solanago.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

// SPL intents understood by the signer.
const (
	IntentTransfer = "spl_transfer"
	IntentApprove  = "spl_approve"
	IntentBurn     = "spl_burn"
)

var commitmentRank = map[string]int{
	"processed": 0,
	"confirmed": 1,
	"finalized": 2,
}

type SolanaAdapter struct {
	chainID    domain.ChainID
	client     rpc.RPCClient
	commitment string
	tokens     *TokenList
	log        *logger.Logger
}

var _ chain.Adapter = (*SolanaAdapter)(nil)

func NewSolanaAdapter(chainID domain.ChainID, client rpc.RPCClient, commitment string, tokens *TokenList) *SolanaAdapter {
	if _, ok := commitmentRank[commitment]; !ok {
		commitment = "confirmed"
	}
	if tokens == nil {
		tokens = NewTokenList("", 0)
	}
	return &SolanaAdapter{
		chainID:    chainID,
		client:     client,
		commitment: commitment,
		tokens:     tokens,
		log:        logger.Default().With("chain", chainID),
	}
}

func (a *SolanaAdapter) ChainID() domain.ChainID    { return a.chainID }
func (a *SolanaAdapter) Family() domain.ChainFamily { return domain.FamilySolana }

type accountInfo struct {
	Value *struct {
		Owner string `json:"owner"`
		Data  struct {
			Program string `json:"program"`
			Parsed  struct {
				Type string `json:"type"`
				Info struct {
					Decimals      int32 `json:"decimals"`
					IsInitialized bool  `json:"isInitialized"`
				} `json:"info"`
			} `json:"parsed"`
		} `json:"data"`
	} `json:"value"`
}

func (a *SolanaAdapter) TokenMetadata(ctx context.Context, token string) (domain.TokenMetadata, error) {
	mint, err := solanago.PublicKeyFromBase58(token)
	if err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("%w: malformed mint %q: %w", chain.ErrNotToken, token, err)
	}

	var info accountInfo
	opts := map[string]any{"encoding": "jsonParsed", "commitment": a.commitment}
	if err := a.client.Call(ctx, &info, "getAccountInfo", mint.String(), opts); err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("getAccountInfo failed: %w", err)
	}
	if info.Value == nil {
		return domain.TokenMetadata{}, fmt.Errorf("%w: no account at %s", chain.ErrNotToken, token)
	}

	owner, err := solanago.PublicKeyFromBase58(info.Value.Owner)
	if err != nil || (!owner.Equals(solanago.TokenProgramID) && !owner.Equals(token2022ProgramID)) {
		return domain.TokenMetadata{}, fmt.Errorf("%w: %s is not owned by a token program", chain.ErrNotToken, token)
	}
	if info.Value.Data.Parsed.Type != "mint" {
		return domain.TokenMetadata{}, fmt.Errorf("%w: %s is a %q account", chain.ErrNotToken, token, info.Value.Data.Parsed.Type)
	}

	meta := domain.TokenMetadata{Decimals: info.Value.Data.Parsed.Info.Decimals}
	listed, ok, err := a.tokens.Lookup(ctx, token)
	if err != nil {
		a.log.Warn("Token list unavailable", "mint", token, "error", err)
	}
	if ok {
		meta.Symbol = listed.Symbol
		meta.Name = listed.Name
	} else {
		meta.Symbol = shortMint(token)
		meta.Name = token
	}
	return meta, nil
}

// SimulateTransfer is not available; callers stay optimistic on Solana.
func (a *SolanaAdapter) SimulateTransfer(context.Context, string, string, string, domain.Amount) error {
	return chain.ErrSimulationUnsupported
}

func (a *SolanaAdapter) LatestHead(ctx context.Context) (uint64, error) {
	var slot uint64
	if err := a.client.Call(ctx, &slot, "getSlot", map[string]string{"commitment": a.commitment}); err != nil {
		return 0, fmt.Errorf("getSlot failed: %w", err)
	}
	return slot, nil
}

type signatureStatuses struct {
	Value []*struct {
		Slot               uint64 `json:"slot"`
		Err                any    `json:"err"`
		ConfirmationStatus string `json:"confirmationStatus"`
	} `json:"value"`
}

func (a *SolanaAdapter) TxStatus(ctx context.Context, txRef string) (domain.TxStatus, error) {
	sig, err := solanago.SignatureFromBase58(txRef)
	if err != nil {
		return domain.TxPending, fmt.Errorf("malformed signature %q: %w", txRef, err)
	}

	var out signatureStatuses
	opts := map[string]bool{"searchTransactionHistory": true}
	if err := a.client.Call(ctx, &out, "getSignatureStatuses", []string{sig.String()}, opts); err != nil {
		return domain.TxPending, fmt.Errorf("getSignatureStatuses failed: %w", err)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return domain.TxPending, nil
	}

	st := out.Value[0]
	if st.Err != nil {
		return domain.TxReverted, nil
	}
	rank, ok := commitmentRank[st.ConfirmationStatus]
	if !ok || rank < commitmentRank[a.commitment] {
		return domain.TxPending, nil
	}
	return domain.TxConfirmed, nil
}

// BuildTransfer returns an SPL intent. Transfers to the burn address become
// a burn of the mint's supply.
func (a *SolanaAdapter) BuildTransfer(token, recipient string, amount domain.Amount) (*domain.TxPayload, error) {
	if err := validateKeys(token, recipient); err != nil {
		return nil, err
	}
	intent := IntentTransfer
	if recipient == domain.SolanaBurnAddress {
		intent = IntentBurn
	}
	return &domain.TxPayload{Intent: intent, Mint: token, To: recipient, Amount: amount.String()}, nil
}

func (a *SolanaAdapter) BuildApprove(token, spender string, amount domain.Amount) (*domain.TxPayload, error) {
	if err := validateKeys(token, spender); err != nil {
		return nil, err
	}
	return &domain.TxPayload{Intent: IntentApprove, Mint: token, To: spender, Amount: amount.String()}, nil
}

func validateKeys(keys ...string) error {
	for _, k := range keys {
		if _, err := solanago.PublicKeyFromBase58(k); err != nil {
			return fmt.Errorf("malformed key %q: %w", k, err)
		}
	}
	return nil
}

func shortMint(mint string) string {
	if len(mint) <= 8 {
		return mint
	}
	return mint[:4] + "..." + mint[len(mint)-4:]
}
