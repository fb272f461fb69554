package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/lifi"
)

// LiFiProvider quotes same-chain EVM swaps through Li.Fi.
type LiFiProvider struct {
	client *lifi.Client
}

func NewLiFiProvider(client *lifi.Client) *LiFiProvider {
	return &LiFiProvider{client: client}
}

func (p *LiFiProvider) Name() string { return "lifi" }

func (p *LiFiProvider) Quote(ctx context.Context, chain domain.ChainInfo, req Request, slippageBps int64) (domain.Quote, error) {
	key := lifi.ChainKey(chain)
	resp, err := p.client.Quote(ctx, lifi.QuoteRequest{
		FromChain:   key,
		ToChain:     key,
		FromToken:   req.InputToken,
		ToToken:     req.OutputToken,
		FromAmount:  req.AmountIn.String(),
		FromAddress: req.From,
		ToAddress:   req.To,
		SlippageBps: slippageBps,
	})
	if err != nil {
		if errors.Is(err, lifi.ErrNoRoute) {
			return domain.Quote{}, fmt.Errorf("%w: %w", domain.ErrNoLiquidity, err)
		}
		return domain.Quote{}, err
	}

	out, err := domain.ParseAmount(resp.Estimate.ToAmount)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("lifi toAmount %q: %w", resp.Estimate.ToAmount, err)
	}
	if out.IsZero() {
		return domain.Quote{}, fmt.Errorf("%w: lifi quoted zero output", domain.ErrNoLiquidity)
	}

	route := make([]string, 0, len(resp.IncludedSteps))
	for _, s := range resp.IncludedSteps {
		route = append(route, s.Tool)
	}
	if len(route) == 0 && resp.Tool != "" {
		route = append(route, resp.Tool)
	}

	return domain.Quote{
		Chain:          chain.ID,
		InputToken:     req.InputToken,
		OutputToken:    req.OutputToken,
		AmountIn:       req.AmountIn,
		OutputAmount:   out,
		PriceImpactBps: usdImpactBps(resp.Estimate.FromAmountUSD, resp.Estimate.ToAmountUSD),
		Route:          route,
		Provider:       p.Name(),
		Tx:             resp.Payload(),
	}, nil
}

// usdImpactBps derives price impact from the USD value in and out.
func usdImpactBps(fromUSD, toUSD string) int64 {
	from, err := decimal.NewFromString(fromUSD)
	if err != nil || !from.IsPositive() {
		return 0
	}
	to, err := decimal.NewFromString(toUSD)
	if err != nil {
		return 0
	}
	impact := from.Sub(to).Div(from).Mul(decimal.NewFromInt(10000)).Round(0)
	if impact.IsNegative() {
		return 0
	}
	return impact.IntPart()
}
