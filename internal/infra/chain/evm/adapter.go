package evm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	logger "log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/chain"
	"github.com/vietddude/burnrelay/internal/infra/rpc"
)

type EVMAdapter struct {
	chainID       domain.ChainID
	client        rpc.RPCClient
	confirmations uint64
	log           *logger.Logger
}

var _ chain.Adapter = (*EVMAdapter)(nil)

func NewEVMAdapter(chainID domain.ChainID, client rpc.RPCClient, confirmations uint64) *EVMAdapter {
	if confirmations == 0 {
		confirmations = 1
	}
	return &EVMAdapter{
		chainID:       chainID,
		client:        client,
		confirmations: confirmations,
		log:           logger.Default().With("chain", chainID),
	}
}

func (a *EVMAdapter) ChainID() domain.ChainID    { return a.chainID }
func (a *EVMAdapter) Family() domain.ChainFamily { return domain.FamilyEVM }

type callMsg struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Data string `json:"data"`
}

func (a *EVMAdapter) ethCall(ctx context.Context, from, to string, data []byte) ([]byte, error) {
	var result string
	msg := callMsg{From: from, To: to, Data: hexutil.Encode(data)}
	if err := a.client.Call(ctx, &result, "eth_call", msg, "latest"); err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%w: %w", chain.ErrCallReverted, err)
		}
		return nil, err
	}
	return hexutil.Decode(normalizeHex(result))
}

func (a *EVMAdapter) TokenMetadata(ctx context.Context, token string) (domain.TokenMetadata, error) {
	if !common.IsHexAddress(token) {
		return domain.TokenMetadata{}, fmt.Errorf("%w: malformed address %q", chain.ErrNotToken, token)
	}

	var code string
	if err := a.client.Call(ctx, &code, "eth_getCode", token, "latest"); err != nil {
		return domain.TokenMetadata{}, fmt.Errorf("eth_getCode failed: %w", err)
	}
	if code == "" || code == "0x" {
		return domain.TokenMetadata{}, fmt.Errorf("%w: no contract code at %s", chain.ErrNotToken, token)
	}

	var meta domain.TokenMetadata
	for _, method := range []string{"symbol", "name", "decimals"} {
		raw, err := a.ethCall(ctx, "", token, packNoArgs(method))
		if err != nil {
			if errors.Is(err, chain.ErrCallReverted) {
				return domain.TokenMetadata{}, fmt.Errorf("%w: %s(): %w", chain.ErrNotToken, method, err)
			}
			return domain.TokenMetadata{}, fmt.Errorf("%s() failed: %w", method, err)
		}

		switch method {
		case "decimals":
			meta.Decimals, err = unpackDecimals(raw)
		case "symbol":
			meta.Symbol, err = unpackText(method, raw)
		case "name":
			meta.Name, err = unpackText(method, raw)
		}
		if err != nil {
			return domain.TokenMetadata{}, fmt.Errorf("%w: decode %s(): %w", chain.ErrNotToken, method, err)
		}
	}

	if meta.Symbol == "" {
		return domain.TokenMetadata{}, fmt.Errorf("%w: empty symbol", chain.ErrNotToken)
	}
	return meta, nil
}

func (a *EVMAdapter) SimulateTransfer(ctx context.Context, token, from, to string, amount domain.Amount) error {
	data, err := PackTransfer(to, amount.Big())
	if err != nil {
		return fmt.Errorf("pack transfer: %w", err)
	}
	raw, err := a.ethCall(ctx, from, token, data)
	if err != nil {
		return err
	}
	ok, err := unpackBool("transfer", raw)
	if err != nil {
		return fmt.Errorf("decode transfer result: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: transfer returned false", chain.ErrCallReverted)
	}
	return nil
}

func (a *EVMAdapter) LatestHead(ctx context.Context) (uint64, error) {
	var blockHex string
	if err := a.client.Call(ctx, &blockHex, "eth_blockNumber"); err != nil {
		return 0, fmt.Errorf("eth_blockNumber failed: %w", err)
	}
	return hexutil.DecodeUint64(blockHex)
}

type receipt struct {
	Status      string `json:"status"`
	BlockNumber string `json:"blockNumber"`
}

// TxStatus reads the receipt. A mined transaction counts as confirmed once
// it is buried under the configured number of blocks.
func (a *EVMAdapter) TxStatus(ctx context.Context, txRef string) (domain.TxStatus, error) {
	var r *receipt
	if err := a.client.Call(ctx, &r, "eth_getTransactionReceipt", txRef); err != nil {
		return domain.TxPending, fmt.Errorf("eth_getTransactionReceipt failed: %w", err)
	}
	if r == nil || r.BlockNumber == "" {
		return domain.TxPending, nil
	}
	if r.Status == "0x0" {
		return domain.TxReverted, nil
	}

	mined, err := hexutil.DecodeUint64(r.BlockNumber)
	if err != nil {
		return domain.TxPending, fmt.Errorf("decode receipt block: %w", err)
	}
	if a.confirmations > 1 {
		head, err := a.LatestHead(ctx)
		if err != nil {
			return domain.TxPending, err
		}
		if head < mined || head-mined+1 < a.confirmations {
			a.log.Debug("Receipt awaiting confirmations", "tx", txRef, "mined", mined, "head", head)
			return domain.TxPending, nil
		}
	}
	return domain.TxConfirmed, nil
}

func (a *EVMAdapter) BuildTransfer(token, recipient string, amount domain.Amount) (*domain.TxPayload, error) {
	if !common.IsHexAddress(recipient) {
		return nil, fmt.Errorf("malformed recipient %q", recipient)
	}
	data, err := PackTransfer(recipient, amount.Big())
	if err != nil {
		return nil, err
	}
	return &domain.TxPayload{To: token, Data: hexutil.Encode(data), Value: "0"}, nil
}

func (a *EVMAdapter) BuildApprove(token, spender string, amount domain.Amount) (*domain.TxPayload, error) {
	if !common.IsHexAddress(spender) {
		return nil, fmt.Errorf("malformed spender %q", spender)
	}
	data, err := PackApprove(spender, amount.Big())
	if err != nil {
		return nil, err
	}
	return &domain.TxPayload{To: token, Data: hexutil.Encode(data), Value: "0"}, nil
}

func isRevert(err error) bool {
	var rpcErr *rpc.RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == 3 || strings.Contains(strings.ToLower(rpcErr.Message), "revert")
	}
	return false
}

func normalizeHex(s string) string {
	if s == "" {
		return "0x"
	}
	if !strings.HasPrefix(s, "0x") {
		return "0x" + s
	}
	return s
}
