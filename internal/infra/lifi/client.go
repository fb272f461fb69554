// Package lifi is a client for the Li.Fi aggregation API, used for
// same-chain EVM swaps and for cross-chain bridging.
package lifi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/httpapi"
)

// ErrNoRoute is returned when Li.Fi finds no quote for the transfer.
var ErrNoRoute = errors.New("lifi: no route")

// Solana is addressed by key rather than numeric id.
const solanaKey = "SOL"

// ChainKey returns the identifier Li.Fi uses for a chain.
func ChainKey(info domain.ChainInfo) string {
	if info.Family == domain.FamilySolana {
		return solanaKey
	}
	return info.NumericID
}

// Client calls the Li.Fi REST API.
type Client struct {
	api *httpapi.Client
}

// NewClient creates a Li.Fi client. apiKey may be empty.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		api: httpapi.NewClient(baseURL, timeout).WithHeader("x-lifi-api-key", apiKey),
	}
}

// QuoteRequest mirrors the /v1/quote query.
type QuoteRequest struct {
	FromChain   string
	ToChain     string
	FromToken   string
	ToToken     string
	FromAmount  string
	FromAddress string
	ToAddress   string
	SlippageBps int64
}

// TokenInfo describes a token in a Li.Fi response.
type TokenInfo struct {
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
	PriceUSD string `json:"priceUSD"`
}

// QuoteResponse is the subset of /v1/quote the service uses.
type QuoteResponse struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Tool   string `json:"tool"`
	Action struct {
		FromToken  TokenInfo `json:"fromToken"`
		ToToken    TokenInfo `json:"toToken"`
		FromAmount string    `json:"fromAmount"`
	} `json:"action"`
	Estimate struct {
		FromAmount        string `json:"fromAmount"`
		ToAmount          string `json:"toAmount"`
		ToAmountMin       string `json:"toAmountMin"`
		FromAmountUSD     string `json:"fromAmountUSD"`
		ToAmountUSD       string `json:"toAmountUSD"`
		ApprovalAddress   string `json:"approvalAddress"`
		ExecutionDuration int    `json:"executionDuration"`
		FeeCosts          []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"feeCosts"`
		GasCosts []struct {
			AmountUSD string `json:"amountUSD"`
		} `json:"gasCosts"`
	} `json:"estimate"`
	IncludedSteps []struct {
		Tool string `json:"tool"`
	} `json:"includedSteps"`
	TransactionRequest *struct {
		To       string `json:"to"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		GasLimit string `json:"gasLimit"`
	} `json:"transactionRequest"`
}

// Payload converts the transaction request into a signer payload.
func (q *QuoteResponse) Payload() *domain.TxPayload {
	if q.TransactionRequest == nil {
		return nil
	}
	tr := q.TransactionRequest
	return &domain.TxPayload{To: tr.To, Data: tr.Data, Value: tr.Value, GasLimit: tr.GasLimit}
}

// Duration is the estimated execution time.
func (q *QuoteResponse) Duration() time.Duration {
	return time.Duration(q.Estimate.ExecutionDuration) * time.Second
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Li.Fi error codes meaning no route was found.
var noRouteCodes = map[int]bool{1002: true, 1011: true}

func classify(err error) error {
	var se *httpapi.StatusError
	if !errors.As(err, &se) || se.Temporary() {
		return err
	}
	var body apiError
	_ = json.Unmarshal([]byte(se.Body), &body)
	msg := strings.ToLower(body.Message + " " + se.Body)
	if se.StatusCode == http.StatusNotFound || noRouteCodes[body.Code] ||
		strings.Contains(msg, "no available quotes") || strings.Contains(msg, "no_possible_route") {
		return fmt.Errorf("%w: %s", ErrNoRoute, body.Message)
	}
	return err
}

// Quote requests a same-chain swap or a cross-chain transfer quote.
func (c *Client) Quote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error) {
	params := url.Values{}
	params.Add("fromChain", req.FromChain)
	params.Add("toChain", req.ToChain)
	params.Add("fromToken", req.FromToken)
	params.Add("toToken", req.ToToken)
	params.Add("fromAmount", req.FromAmount)
	if req.FromAddress != "" {
		params.Add("fromAddress", req.FromAddress)
	}
	if req.ToAddress != "" {
		params.Add("toAddress", req.ToAddress)
	}
	if req.SlippageBps > 0 {
		params.Add("slippage", strconv.FormatFloat(float64(req.SlippageBps)/10000, 'f', 4, 64))
	}

	var resp QuoteResponse
	if err := c.api.Get(ctx, "/v1/quote", params, &resp); err != nil {
		return nil, classify(err)
	}
	return &resp, nil
}

// Transfer statuses reported by /v1/status.
const (
	StatusDone     = "DONE"
	StatusPending  = "PENDING"
	StatusFailed   = "FAILED"
	StatusInvalid  = "INVALID"
	StatusNotFound = "NOT_FOUND"
)

// StatusResponse is the subset of /v1/status the monitor uses.
type StatusResponse struct {
	Status    string `json:"status"`
	Substatus string `json:"substatus"`
	Receiving struct {
		TxHash string `json:"txHash"`
		Amount string `json:"amount"`
	} `json:"receiving"`
}

// Status reports the state of a cross-chain transfer.
func (c *Client) Status(ctx context.Context, txHash, fromChain, toChain, bridge string) (*StatusResponse, error) {
	params := url.Values{}
	params.Add("txHash", txHash)
	if fromChain != "" {
		params.Add("fromChain", fromChain)
	}
	if toChain != "" {
		params.Add("toChain", toChain)
	}
	if bridge != "" {
		params.Add("bridge", bridge)
	}

	var resp StatusResponse
	if err := c.api.Get(ctx, "/v1/status", params, &resp); err != nil {
		var se *httpapi.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return &StatusResponse{Status: StatusNotFound}, nil
		}
		return nil, err
	}
	return &resp, nil
}
