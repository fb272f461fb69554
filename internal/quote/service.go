// Package quote prices swaps for the plan builder and the executor.
package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/httpapi"
	"github.com/vietddude/burnrelay/internal/metrics"
)

// Service routes quote requests to the provider of the chain's family and
// applies retries and the slippage guard.
type Service struct {
	chains     map[domain.ChainID]config.ChainConfig
	providers  map[domain.ChainFamily]Provider
	slippage   int64
	staleAfter time.Duration
	backoff    httpapi.Backoff
	clock      clock.Clock
	log        *slog.Logger
}

// NewService creates a quote service over the given providers.
func NewService(cfg *config.AppConfig, providers map[domain.ChainFamily]Provider, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.New()
	}
	chains := make(map[domain.ChainID]config.ChainConfig, len(cfg.Chains))
	for _, ch := range cfg.Chains {
		chains[ch.ID] = ch
	}
	return &Service{
		chains:     chains,
		providers:  providers,
		slippage:   cfg.Quote.SlippageBps,
		staleAfter: cfg.Quote.StaleAfter,
		backoff: httpapi.Backoff{
			MaxAttempts: cfg.Quote.Retry.MaxAttempts,
			BaseDelay:   cfg.Quote.Retry.BaseDelay,
			MaxDelay:    cfg.Quote.Retry.MaxDelay,
		},
		clock: clk,
		log:   slog.Default().With("component", "quote"),
	}
}

func retryable(err error) bool {
	return !errors.Is(err, domain.ErrNoLiquidity) && httpapi.IsTemporary(err)
}

// GetQuote returns a priced quote with MinOutputAmount set from the
// configured slippage. It returns domain.ErrNoLiquidity when no route exists
// and domain.ErrQuoteProviderUnavailable once retries are exhausted.
func (s *Service) GetQuote(ctx context.Context, req Request) (domain.Quote, error) {
	ch, ok := s.chains[req.Chain]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: chain %q not configured", domain.ErrQuoteProviderUnavailable, req.Chain)
	}
	provider, ok := s.providers[ch.Family]
	if !ok {
		return domain.Quote{}, fmt.Errorf("%w: no provider for %s", domain.ErrQuoteProviderUnavailable, ch.Family)
	}
	if req.AmountIn.Sign() <= 0 {
		return domain.Quote{}, fmt.Errorf("%w: quote amount must be positive", domain.ErrInvalidAmount)
	}
	if req.To == "" {
		req.To = req.From
	}

	var q domain.Quote
	attempts, err := httpapi.Do(ctx, s.clock, s.backoff, retryable, func(ctx context.Context) error {
		var err error
		q, err = provider.Quote(ctx, ch.Info(), req, s.slippage)
		return err
	})
	switch {
	case err == nil:
		metrics.QuoteRequests.WithLabelValues(provider.Name(), "ok").Inc()
	case errors.Is(err, domain.ErrNoLiquidity):
		metrics.QuoteRequests.WithLabelValues(provider.Name(), "no_liquidity").Inc()
		return domain.Quote{}, err
	default:
		metrics.QuoteRequests.WithLabelValues(provider.Name(), "unavailable").Inc()
		s.log.Warn("Quote provider unavailable",
			"provider", provider.Name(),
			"chain", req.Chain,
			"attempts", attempts,
			"error", err,
		)
		return domain.Quote{}, fmt.Errorf("%w: %s after %d attempts: %w", domain.ErrQuoteProviderUnavailable, provider.Name(), attempts, err)
	}

	q.MinOutputAmount = q.OutputAmount.MulBps(config.TotalBps - s.slippage)
	q.QuotedAt = s.clock.Now()
	return q, nil
}

// IsStale reports whether q should be re-quoted before submission.
func (s *Service) IsStale(q domain.Quote) bool {
	return q.IsStale(s.clock.Now(), s.staleAfter)
}

// Refresh re-quotes the same swap with the same wallets.
func (s *Service) Refresh(ctx context.Context, q domain.Quote, from, to string) (domain.Quote, error) {
	return s.GetQuote(ctx, Request{
		Chain:       q.Chain,
		InputToken:  q.InputToken,
		OutputToken: q.OutputToken,
		AmountIn:    q.AmountIn,
		From:        from,
		To:          to,
	})
}

// CheckLiquidity quotes one whole token against the chain's reference
// asset. It only reports domain.ErrNoLiquidity when the provider says so.
func (s *Service) CheckLiquidity(ctx context.Context, chain domain.ChainID, token string, decimals int32) error {
	ch, ok := s.chains[chain]
	if !ok || ch.ReferenceToken == "" || domain.SameAddress(ch.Family, ch.ReferenceToken, token) {
		return nil
	}
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	_, err := s.GetQuote(ctx, Request{
		Chain:       chain,
		InputToken:  token,
		OutputToken: ch.ReferenceToken,
		AmountIn:    domain.AmountFromBig(one),
	})
	return err
}
