// Package crosschain decides where each swap target is best acquired and
// produces the advisory route shown before a burn starts.
package crosschain

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vietddude/burnrelay/internal/bridge"
	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
)

// Router analyzes cross-chain routes. It never moves funds.
type Router struct {
	cfg    *config.AppConfig
	bridge bridge.Provider
	log    *slog.Logger
}

// NewRouter creates a router. bridge may be nil, in which case only the
// configured estimates are used.
func NewRouter(cfg *config.AppConfig, bridge bridge.Provider) *Router {
	return &Router{
		cfg:    cfg,
		bridge: bridge,
		log:    slog.Default().With("component", "crosschain"),
	}
}

// OptimalChains maps every target symbol to the chain it should be bought on.
func (r *Router) OptimalChains() map[string]domain.ChainID {
	out := make(map[string]domain.ChainID, len(r.cfg.Targets))
	for _, t := range r.cfg.Targets {
		out[t.Symbol] = t.OptimalChain
	}
	return out
}

// estimate is a summable min/max pair.
type estimate struct {
	minTime, maxTime time.Duration
	minCost, maxCost decimal.Decimal
}

func fromRange(er config.EstimateRange) estimate {
	return estimate{
		minTime: er.MinTime,
		maxTime: er.MaxTime,
		minCost: parseCost(er.MinCost),
		maxCost: parseCost(er.MaxCost),
	}
}

func parseCost(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (e estimate) add(o estimate) estimate {
	return estimate{
		minTime: e.minTime + o.minTime,
		maxTime: e.maxTime + o.maxTime,
		minCost: e.minCost.Add(o.minCost),
		maxCost: e.maxCost.Add(o.maxCost),
	}
}

// AnalyzeRoute reports, for a burn of amount of sourceToken on sourceChain,
// where each target would be swapped and roughly what it costs.
func (r *Router) AnalyzeRoute(ctx context.Context, sourceChain domain.ChainID, sourceToken string, amount domain.Amount) (domain.CrossChainRoute, error) {
	if _, ok := r.cfg.Chain(sourceChain); !ok {
		return domain.CrossChainRoute{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedChain, sourceChain)
	}

	est := r.cfg.Bridge.Estimates
	route := domain.CrossChainRoute{
		SourceChain:   sourceChain,
		SourceToken:   sourceToken,
		Amount:        amount,
		OptimalChains: r.OptimalChains(),
	}

	burn := fromRange(est.Burn)
	total := burn
	route.Routes = append(route.Routes, domain.RouteStep{
		Step:          1,
		Action:        domain.RouteBurn,
		Chain:         sourceChain,
		EstimatedTime: FormatTime(burn.minTime, burn.maxTime),
		EstimatedCost: FormatCost(burn.minCost, burn.maxCost),
	})

	for _, t := range r.cfg.Targets {
		step := domain.RouteStep{
			Step:   len(route.Routes) + 1,
			Chain:  sourceChain,
			Target: t.Symbol,
		}
		var e estimate
		if t.OptimalChain == sourceChain {
			step.Action = domain.RouteSwap
			e = fromRange(est.Swap)
		} else {
			route.CrossChainRequired = true
			step.Action = domain.RouteBridgeAndSwap
			step.DestChain = t.OptimalChain
			e = fromRange(est.Bridge)
			if tool, d, ok := r.liveBridge(ctx, sourceChain, t.OptimalChain, sourceToken, amount); ok {
				step.BridgeTool = tool
				e.minTime, e.maxTime = d, d
			}
		}
		step.EstimatedTime = FormatTime(e.minTime, e.maxTime)
		step.EstimatedCost = FormatCost(e.minCost, e.maxCost)
		total = total.add(e)
		route.Routes = append(route.Routes, step)
	}

	route.TotalEstimatedTime = FormatTime(total.minTime, total.maxTime)
	route.TotalEstimatedCost = FormatCost(total.minCost, total.maxCost)
	return route, nil
}

// liveBridge asks the bridge provider for the current execution duration.
// Failures fall back to the configured estimate.
func (r *Router) liveBridge(ctx context.Context, src, dst domain.ChainID, token string, amount domain.Amount) (string, time.Duration, bool) {
	if r.bridge == nil || amount.Sign() <= 0 {
		return "", 0, false
	}
	dest, ok := r.cfg.Chain(dst)
	if !ok || dest.BridgeAsset == "" {
		return "", 0, false
	}
	q, err := r.bridge.QuoteBridge(ctx, bridge.Request{
		SourceChain: src,
		DestChain:   dst,
		FromToken:   token,
		ToToken:     dest.BridgeAsset,
		Amount:      amount,
	})
	if err != nil {
		r.log.Debug("live bridge estimate unavailable", "from", src, "to", dst, "error", err)
		return "", 0, false
	}
	if q.EstimatedTime <= 0 {
		return q.Tool, 0, false
	}
	return q.Tool, q.EstimatedTime, true
}

// FormatTime renders a duration range: "30 seconds", "1-2 minutes".
// Minute values are truncated.
func FormatTime(min, max time.Duration) string {
	if max < time.Minute {
		lo, hi := int(min.Seconds()), int(max.Seconds())
		if lo == hi {
			return fmt.Sprintf("%d seconds", hi)
		}
		return fmt.Sprintf("%d-%d seconds", lo, hi)
	}
	lo, hi := int(min.Minutes()), int(max.Minutes())
	if lo == hi {
		if hi == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", hi)
	}
	return fmt.Sprintf("%d-%d minutes", lo, hi)
}

// FormatCost renders a USD range: "$0", "$5-15".
func FormatCost(min, max decimal.Decimal) string {
	if min.Equal(max) {
		return "$" + max.String()
	}
	return fmt.Sprintf("$%s-%s", min.String(), max.String())
}
