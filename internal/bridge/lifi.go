package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/httpapi"
	"github.com/vietddude/burnrelay/internal/infra/lifi"
	"github.com/vietddude/burnrelay/internal/metrics"
)

// LiFi bridges through the Li.Fi aggregator.
type LiFi struct {
	client   *lifi.Client
	chains   map[domain.ChainID]domain.ChainInfo
	slippage int64
	backoff  httpapi.Backoff
	clock    clock.Clock
	log      *slog.Logger
}

var _ Provider = (*LiFi)(nil)

func NewLiFi(client *lifi.Client, cfg *config.AppConfig, clk clock.Clock) *LiFi {
	if clk == nil {
		clk = clock.New()
	}
	chains := make(map[domain.ChainID]domain.ChainInfo, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		chains[ch.ID] = ch.Info()
	}
	slippage := cfg.Bridge.SlippageBps
	if slippage == 0 {
		slippage = cfg.Quote.SlippageBps
	}
	return &LiFi{
		client:   client,
		chains:   chains,
		slippage: slippage,
		backoff: httpapi.Backoff{
			MaxAttempts: cfg.Bridge.Retry.MaxAttempts,
			BaseDelay:   cfg.Bridge.Retry.BaseDelay,
			MaxDelay:    cfg.Bridge.Retry.MaxDelay,
		},
		clock: clk,
		log:   slog.Default().With("component", "bridge"),
	}
}

func (l *LiFi) Name() string { return "lifi" }

func retryable(err error) bool {
	return !errors.Is(err, lifi.ErrNoRoute) && httpapi.IsTemporary(err)
}

func (l *LiFi) keys(src, dst domain.ChainID) (string, string, error) {
	from, ok := l.chains[src]
	if !ok {
		return "", "", fmt.Errorf("%w: chain %q not configured", domain.ErrNoRoute, src)
	}
	to, ok := l.chains[dst]
	if !ok {
		return "", "", fmt.Errorf("%w: chain %q not configured", domain.ErrNoRoute, dst)
	}
	return lifi.ChainKey(from), lifi.ChainKey(to), nil
}

// QuoteBridge prices the hop and returns the transaction to sign, the
// spender to approve and the guaranteed destination amount.
func (l *LiFi) QuoteBridge(ctx context.Context, req Request) (domain.BridgeQuote, error) {
	fromKey, toKey, err := l.keys(req.SourceChain, req.DestChain)
	if err != nil {
		return domain.BridgeQuote{}, err
	}

	var resp *lifi.QuoteResponse
	attempts, err := httpapi.Do(ctx, l.clock, l.backoff, retryable, func(ctx context.Context) error {
		var err error
		resp, err = l.client.Quote(ctx, lifi.QuoteRequest{
			FromChain:   fromKey,
			ToChain:     toKey,
			FromToken:   req.FromToken,
			ToToken:     req.ToToken,
			FromAmount:  req.Amount.String(),
			FromAddress: req.From,
			ToAddress:   req.To,
			SlippageBps: l.slippage,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, lifi.ErrNoRoute) {
			metrics.QuoteRequests.WithLabelValues("lifi_bridge", "no_route").Inc()
			return domain.BridgeQuote{}, fmt.Errorf("%w: %s to %s: %w", domain.ErrNoRoute, req.SourceChain, req.DestChain, err)
		}
		metrics.QuoteRequests.WithLabelValues("lifi_bridge", "unavailable").Inc()
		return domain.BridgeQuote{}, fmt.Errorf("%w: bridge after %d attempts: %w", domain.ErrQuoteProviderUnavailable, attempts, err)
	}
	metrics.QuoteRequests.WithLabelValues("lifi_bridge", "ok").Inc()

	toAmount, err := domain.ParseAmount(resp.Estimate.ToAmount)
	if err != nil {
		return domain.BridgeQuote{}, fmt.Errorf("lifi toAmount %q: %w", resp.Estimate.ToAmount, err)
	}
	toMin, err := domain.ParseAmount(resp.Estimate.ToAmountMin)
	if err != nil || toMin.IsZero() {
		toMin = toAmount.MulBps(config.TotalBps - l.slippage)
	}

	return domain.BridgeQuote{
		Provider:      l.Name(),
		Tool:          resp.Tool,
		SourceChain:   req.SourceChain,
		DestChain:     req.DestChain,
		FromToken:     req.FromToken,
		ToToken:       req.ToToken,
		AmountIn:      req.Amount,
		ToAmount:      toAmount,
		ToAmountMin:   toMin,
		Spender:       resp.Estimate.ApprovalAddress,
		FeeUSD:        feeUSD(resp),
		EstimatedTime: resp.Duration(),
		Tx:            resp.Payload(),
		QuotedAt:      l.clock.Now(),
	}, nil
}

// Status maps the Li.Fi transfer status: DONE confirms, FAILED and INVALID
// revert, everything else is still pending.
func (l *LiFi) Status(ctx context.Context, q domain.BridgeQuote, txRef string) (domain.TxStatus, error) {
	fromKey, toKey, err := l.keys(q.SourceChain, q.DestChain)
	if err != nil {
		return domain.TxPending, err
	}
	resp, err := l.client.Status(ctx, txRef, fromKey, toKey, q.Tool)
	if err != nil {
		return domain.TxPending, fmt.Errorf("bridge status: %w", err)
	}

	switch resp.Status {
	case lifi.StatusDone:
		if resp.Substatus == "REFUNDED" {
			l.log.Warn("Bridge transfer refunded", "tx", txRef, "substatus", resp.Substatus)
			return domain.TxReverted, nil
		}
		return domain.TxConfirmed, nil
	case lifi.StatusFailed, lifi.StatusInvalid:
		l.log.Warn("Bridge transfer failed", "tx", txRef, "status", resp.Status, "substatus", resp.Substatus)
		return domain.TxReverted, nil
	default:
		return domain.TxPending, nil
	}
}

func feeUSD(resp *lifi.QuoteResponse) string {
	total := decimal.Zero
	for _, f := range resp.Estimate.FeeCosts {
		if d, err := decimal.NewFromString(f.AmountUSD); err == nil {
			total = total.Add(d)
		}
	}
	for _, g := range resp.Estimate.GasCosts {
		if d, err := decimal.NewFromString(g.AmountUSD); err == nil {
			total = total.Add(d)
		}
	}
	return total.StringFixed(2)
}
