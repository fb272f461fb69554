// Package classifier decides whether a token may be burned and which
// allocation table applies to it.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/chain"
	"github.com/vietddude/burnrelay/internal/infra/rpc"
)

// LiquidityChecker checks whether a token can be swapped on a chain.
// It returns domain.ErrNoLiquidity when no route exists.
type LiquidityChecker interface {
	CheckLiquidity(ctx context.Context, chain domain.ChainID, token string, decimals int32) error
}

type tokenSet map[domain.ChainID]map[string]bool

func (s tokenSet) add(family domain.ChainFamily, ref config.TokenRef) {
	if s[ref.Chain] == nil {
		s[ref.Chain] = make(map[string]bool)
	}
	s[ref.Chain][domain.NormalizeAddress(family, ref.Address)] = true
}

func (s tokenSet) has(family domain.ChainFamily, chain domain.ChainID, addr string) bool {
	return s[chain][domain.NormalizeAddress(family, addr)]
}

// Classifier implements token classification over the chain adapters.
type Classifier struct {
	adapters    chain.Registry
	burnAddrs   map[domain.ChainID]string
	protocol    tokenSet
	denied      tokenSet
	nonBurnable tokenSet
	denySymbols map[string]bool

	cache     Cache
	cacheTTL  time.Duration
	liquidity LiquidityChecker
	simulate  bool
	clock     clock.Clock
	log       *slog.Logger
}

// New creates a classifier. cache may be nil to disable caching.
func New(cfg *config.AppConfig, adapters chain.Registry, cache Cache, clk clock.Clock) *Classifier {
	if clk == nil {
		clk = clock.New()
	}
	c := &Classifier{
		adapters:    adapters,
		burnAddrs:   make(map[domain.ChainID]string),
		protocol:    make(tokenSet),
		denied:      make(tokenSet),
		nonBurnable: make(tokenSet),
		denySymbols: make(map[string]bool),
		cache:       cache,
		cacheTTL:    cfg.Classifier.CacheTTL,
		simulate:    cfg.Classifier.SimulateBurn,
		clock:       clk,
		log:         slog.Default().With("component", "classifier"),
	}

	families := make(map[domain.ChainID]domain.ChainFamily)
	for _, ch := range cfg.Chains {
		families[ch.ID] = ch.Family
		c.burnAddrs[ch.ID] = ch.BurnAddress
	}
	for _, ref := range cfg.ProtocolTokens {
		c.protocol.add(families[ref.Chain], ref)
	}
	for _, ref := range cfg.Classifier.DenyAddresses {
		c.denied.add(families[ref.Chain], ref)
	}
	for _, ref := range cfg.Classifier.NonBurnable {
		c.nonBurnable.add(families[ref.Chain], ref)
	}
	for _, sym := range cfg.Classifier.DenySymbols {
		c.denySymbols[strings.ToLower(sym)] = true
	}
	return c
}

// SetLiquidityChecker enables the liquidity check.
func (c *Classifier) SetLiquidityChecker(p LiquidityChecker) {
	c.liquidity = p
}

func cacheKey(family domain.ChainFamily, chain domain.ChainID, token string) string {
	return string(chain) + ":" + domain.NormalizeAddress(family, token)
}

// Classify validates a token and reports how it may be allocated.
func (c *Classifier) Classify(ctx context.Context, chainID domain.ChainID, token string) (domain.TokenClassification, error) {
	adapter, ok := c.adapters.Get(chainID)
	if !ok {
		return domain.TokenClassification{}, fmt.Errorf("%w: unsupported chain %q", domain.ErrInvalidToken, chainID)
	}
	family := adapter.Family()
	token = strings.TrimSpace(token)
	if err := config.ValidAddress(family, token); err != nil {
		return domain.TokenClassification{}, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
	}

	key := cacheKey(family, chainID, token)
	if c.cache != nil {
		if tc, ok := c.cache.Get(ctx, key); ok {
			return tc, nil
		}
	}

	meta, err := adapter.TokenMetadata(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, chain.ErrNotToken):
			return domain.TokenClassification{}, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
		case rpc.IsTransient(err), errors.Is(err, context.DeadlineExceeded):
			return domain.TokenClassification{}, fmt.Errorf("%w: %w", domain.ErrValidationTimeout, err)
		default:
			return domain.TokenClassification{}, fmt.Errorf("%w: %w", domain.ErrInvalidToken, err)
		}
	}

	tc := domain.TokenClassification{
		Token:           domain.Token{Chain: chainID, Address: token, TokenMetadata: meta},
		IsValid:         true,
		IsProtocolToken: c.protocol.has(family, chainID, token),
		LiquidityChains: []domain.ChainID{chainID},
		ClassifiedAt:    c.clock.Now(),
	}

	if !tc.IsProtocolToken && (c.denySymbols[strings.ToLower(meta.Symbol)] || c.denied.has(family, chainID, token)) {
		c.log.Info("Token rejected by deny list", "chain", chainID, "token", token, "symbol", meta.Symbol)
		return domain.TokenClassification{}, fmt.Errorf("%w: token not accepted (%s)", domain.ErrInvalidToken, meta.Symbol)
	}

	tc.IsBurnable = !tc.IsProtocolToken && !c.nonBurnable.has(family, chainID, token)

	if c.liquidity != nil && !tc.IsProtocolToken {
		if err := c.liquidity.CheckLiquidity(ctx, chainID, token, meta.Decimals); err != nil {
			if errors.Is(err, domain.ErrNoLiquidity) {
				tc.LiquidityChains = nil
			} else {
				c.log.Warn("Liquidity check inconclusive", "chain", chainID, "token", token, "error", err)
			}
		}
	}

	if c.cache != nil {
		c.cache.Set(ctx, key, tc, c.cacheTTL)
	}
	c.log.Debug("Token classified",
		"chain", chainID,
		"token", token,
		"symbol", meta.Symbol,
		"protocol", tc.IsProtocolToken,
		"burnable", tc.IsBurnable,
	)
	return tc, nil
}

// SimulateBurn simulates the burn transfer from wallet. A reverting simulation
// downgrades the token to non-burnable for this request; any other outcome
// leaves the classification unchanged.
func (c *Classifier) SimulateBurn(ctx context.Context, tc domain.TokenClassification, wallet string, amount domain.Amount) domain.TokenClassification {
	if !c.simulate || !tc.IsBurnable || wallet == "" {
		return tc
	}
	adapter, ok := c.adapters.Get(tc.Token.Chain)
	if !ok {
		return tc
	}

	err := adapter.SimulateTransfer(ctx, tc.Token.Address, wallet, c.burnAddrs[tc.Token.Chain], amount)
	switch {
	case err == nil, errors.Is(err, chain.ErrSimulationUnsupported):
	case errors.Is(err, chain.ErrCallReverted):
		c.log.Info("Burn simulation reverted, treating token as non-burnable",
			"chain", tc.Token.Chain, "token", tc.Token.Address, "error", err)
		tc.IsBurnable = false
	default:
		c.log.Warn("Burn simulation failed", "chain", tc.Token.Chain, "token", tc.Token.Address, "error", err)
	}
	return tc
}
