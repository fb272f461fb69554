package quote

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

	"github.com/shopspring/decimal"

	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/httpapi"
)

// JupiterProvider quotes Solana swaps through the Jupiter v6 API.
type JupiterProvider struct {
	api *httpapi.Client
}

func NewJupiterProvider(baseURL string, timeout time.Duration) *JupiterProvider {
	return &JupiterProvider{api: httpapi.NewClient(baseURL, timeout)}
}

func (p *JupiterProvider) Name() string { return "jupiter" }

type jupiterQuote struct {
	InputMint            string `json:"inputMint"`
	InAmount             string `json:"inAmount"`
	OutputMint           string `json:"outputMint"`
	OutAmount            string `json:"outAmount"`
	OtherAmountThreshold string `json:"otherAmountThreshold"`
	SlippageBps          int64  `json:"slippageBps"`
	PriceImpactPct       string `json:"priceImpactPct"`
	RoutePlan            []struct {
		SwapInfo struct {
			Label string `json:"label"`
		} `json:"swapInfo"`
	} `json:"routePlan"`
}

type jupiterError struct {
	Error     string `json:"error"`
	ErrorCode string `json:"errorCode"`
}

type swapRequest struct {
	QuoteResponse           json.RawMessage `json:"quoteResponse"`
	UserPublicKey           string          `json:"userPublicKey"`
	DestinationTokenAccount string          `json:"destinationTokenAccount,omitempty"`
	WrapAndUnwrapSol        bool            `json:"wrapAndUnwrapSol"`
}

type swapResponse struct {
	SwapTransaction      string `json:"swapTransaction"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

func noRoute(err error) error {
	var se *httpapi.StatusError
	if !errors.As(err, &se) || se.Temporary() {
		return err
	}
	var body jupiterError
	_ = json.Unmarshal([]byte(se.Body), &body)
	if body.ErrorCode == "COULD_NOT_FIND_ANY_ROUTE" || body.ErrorCode == "TOKEN_NOT_TRADABLE" ||
		strings.Contains(strings.ToLower(body.Error), "could not find any route") ||
		se.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: jupiter: %s", domain.ErrNoLiquidity, body.Error)
	}
	return err
}

func (p *JupiterProvider) Quote(ctx context.Context, chain domain.ChainInfo, req Request, slippageBps int64) (domain.Quote, error) {
	params := url.Values{}
	params.Add("inputMint", req.InputToken)
	params.Add("outputMint", req.OutputToken)
	params.Add("amount", req.AmountIn.String())
	params.Add("slippageBps", strconv.FormatInt(slippageBps, 10))

	var raw json.RawMessage
	if err := p.api.Get(ctx, "/v6/quote", params, &raw); err != nil {
		return domain.Quote{}, noRoute(err)
	}
	var jq jupiterQuote
	if err := json.Unmarshal(raw, &jq); err != nil {
		return domain.Quote{}, fmt.Errorf("decode jupiter quote: %w", err)
	}

	out, err := domain.ParseAmount(jq.OutAmount)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter outAmount %q: %w", jq.OutAmount, err)
	}
	if out.IsZero() {
		return domain.Quote{}, fmt.Errorf("%w: jupiter quoted zero output", domain.ErrNoLiquidity)
	}

	q := domain.Quote{
		Chain:          chain.ID,
		InputToken:     req.InputToken,
		OutputToken:    req.OutputToken,
		AmountIn:       req.AmountIn,
		OutputAmount:   out,
		PriceImpactBps: pctToBps(jq.PriceImpactPct),
		Provider:       p.Name(),
	}
	for _, leg := range jq.RoutePlan {
		q.Route = append(q.Route, leg.SwapInfo.Label)
	}

	if req.From == "" {
		return q, nil
	}
	var swap swapResponse
	if err := p.api.Post(ctx, "/v6/swap", swapRequest{
		QuoteResponse:           raw,
		UserPublicKey:           req.From,
		DestinationTokenAccount: destinationAccount(req),
		WrapAndUnwrapSol:        true,
	}, &swap); err != nil {
		return domain.Quote{}, fmt.Errorf("jupiter swap: %w", err)
	}
	q.Tx = &domain.TxPayload{Data: swap.SwapTransaction}
	return q, nil
}

// destinationAccount is only set when the output goes to someone else.
// Jupiter expects a token account there; the signer derives the associated
// account of To when it is a wallet.
func destinationAccount(req Request) string {
	if req.To == "" || req.To == req.From {
		return ""
	}
	return req.To
}

// pctToBps converts Jupiter's fractional impact ("0.0123" = 1.23%) to bps.
func pctToBps(pct string) int64 {
	d, err := decimal.NewFromString(pct)
	if err != nil {
		return 0
	}
	return d.Mul(decimal.NewFromInt(10000)).Round(0).Abs().IntPart()
}
