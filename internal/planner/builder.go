// Package planner turns an allocation plan into the concrete step DAG the
// executor runs.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/vietddude/burnrelay/internal/bridge"
	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/quote"
)

// Quoter prices same-chain swaps.
type Quoter interface {
	GetQuote(ctx context.Context, req quote.Request) (domain.Quote, error)
}

// BuildInput is everything needed to plan one burn.
type BuildInput struct {
	RecordID       string
	Allocation     domain.AllocationPlan
	Classification domain.TokenClassification
	SourceChain    domain.ChainID
	Wallet         string
	// DestinationWallet receives bridged funds on a chain of another family.
	DestinationWallet string
	// Route is set when the caller asked for cross-chain routing.
	Route *domain.CrossChainRoute
}

// Builder builds execution plans.
type Builder struct {
	cfg    *config.AppConfig
	quotes Quoter
	bridge bridge.Provider
	clock  clock.Clock
	log    *slog.Logger
}

// NewBuilder creates a plan builder. bridge may be nil when cross-chain
// routing is disabled.
func NewBuilder(cfg *config.AppConfig, quotes Quoter, bridge bridge.Provider, clk clock.Clock) *Builder {
	if clk == nil {
		clk = clock.New()
	}
	return &Builder{
		cfg:    cfg,
		quotes: quotes,
		bridge: bridge,
		clock:  clk,
		log:    slog.Default().With("component", "planner"),
	}
}

// StepID names a step after its leg and kind.
func StepID(leg string, kind domain.StepKind) string {
	return leg + "-" + string(kind)
}

// IdempotencyKey derives the key attached to every submission of a step.
func IdempotencyKey(recordID, leg string, kind domain.StepKind) string {
	return crypto.Keccak256Hash([]byte(recordID + "|" + leg + "|" + string(kind))).Hex()
}

func infeasible(leg string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: leg %s: %w", domain.ErrPlanInfeasible, leg, err)
}

// BuildPlan returns a plan whose steps are all Pending. Any error means
// nothing may be submitted; infeasibility wraps domain.ErrPlanInfeasible.
func (b *Builder) BuildPlan(ctx context.Context, in BuildInput) (*domain.ExecutionPlan, error) {
	src, ok := b.cfg.Chain(in.SourceChain)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedChain, in.SourceChain)
	}
	token := in.Classification.Token.Address
	now := b.clock.Now()

	plan := &domain.ExecutionPlan{
		ID:           uuid.NewString(),
		BurnRecordID: in.RecordID,
		SourceChain:  in.SourceChain,
		Mode:         in.Allocation.Mode,
		Allocation:   in.Allocation,
		Status:       domain.PlanPending,
		CreatedAt:    now,
	}

	lb := &legBuilder{b: b, in: in, src: src, token: token, plan: plan}
	for _, leg := range in.Allocation.Legs {
		if leg.AmountIn.Sign() <= 0 {
			// A floored share can be zero for dust amounts; nothing to move.
			continue
		}
		var err error
		switch leg.Kind {
		case domain.DestBurn:
			err = lb.transfer(leg, src.BurnAddress)
		case domain.DestForward, domain.DestPool:
			recipient := leg.Recipient
			if recipient == "" {
				recipient = in.DestinationWallet
			}
			if recipient == "" {
				err = infeasible(leg.Name, fmt.Errorf("no recipient on %s", src.ID))
				break
			}
			err = lb.transfer(leg, recipient)
		case domain.DestSwap:
			err = lb.swap(ctx, leg)
		default:
			err = fmt.Errorf("leg %s: unknown kind %q", leg.Name, leg.Kind)
		}
		if err != nil {
			return nil, err
		}
	}

	for i := range plan.Steps {
		plan.Steps[i].Status = domain.StepPending
		plan.Steps[i].UpdatedAt = now
		if plan.Steps[i].DependsOn == nil {
			plan.Steps[i].DependsOn = []string{}
		}
	}
	b.log.Debug("plan built", "record", in.RecordID, "mode", plan.Mode, "steps", len(plan.Steps))
	return plan, nil
}

type legBuilder struct {
	b     *Builder
	in    BuildInput
	src   config.ChainConfig
	token string
	plan  *domain.ExecutionPlan
}

func (lb *legBuilder) add(leg string, step domain.ExecutionStep) string {
	step.ID = StepID(leg, step.Kind)
	step.LegName = leg
	step.IdempotencyKey = IdempotencyKey(lb.in.RecordID, leg, step.Kind)
	lb.plan.Steps = append(lb.plan.Steps, step)
	return step.ID
}

func (lb *legBuilder) transfer(leg domain.AllocationLeg, recipient string) error {
	lb.add(leg.Name, domain.ExecutionStep{
		Chain:     lb.src.ID,
		Kind:      domain.StepTransfer,
		Action:    domain.ActionTransfer,
		From:      lb.in.Wallet,
		Token:     lb.token,
		Recipient: recipient,
		AmountIn:  leg.AmountIn,
	})
	return nil
}

// swap plans a swap leg either on the source chain or through a bridge hop.
func (lb *legBuilder) swap(ctx context.Context, leg domain.AllocationLeg) error {
	target, ok := lb.b.cfg.Target(leg.OutputToken)
	if !ok {
		return infeasible(leg.Name, fmt.Errorf("unknown target %q", leg.OutputToken))
	}
	if !lb.in.Classification.HasLiquidityOn(lb.src.ID) {
		return infeasible(leg.Name, fmt.Errorf("%w: token has no liquidity on %s", domain.ErrNoLiquidity, lb.src.ID))
	}

	targetChain := lb.src.ID
	if lb.in.Route != nil && lb.in.Route.CrossChainRequired {
		if c, ok := lb.in.Route.TargetChain(target.Symbol); ok {
			targetChain = c
		}
	}
	if targetChain == lb.src.ID {
		return lb.localSwap(ctx, leg, target)
	}
	return lb.bridgedSwap(ctx, leg, target, targetChain)
}

func (lb *legBuilder) localSwap(ctx context.Context, leg domain.AllocationLeg, target config.TargetConfig) error {
	out, ok := target.Tokens[lb.src.ID]
	if !ok {
		return infeasible(leg.Name, fmt.Errorf("target %s has no token on %s", target.Symbol, lb.src.ID))
	}
	recipient := target.Recipients[lb.src.ID]
	if recipient == "" {
		recipient = lb.in.Wallet
	}
	q, err := lb.b.quotes.GetQuote(ctx, quote.Request{
		Chain:       lb.src.ID,
		InputToken:  lb.token,
		OutputToken: out,
		AmountIn:    leg.AmountIn,
		From:        lb.in.Wallet,
		To:          recipient,
	})
	if err != nil {
		return infeasible(leg.Name, err)
	}
	lb.add(leg.Name, domain.ExecutionStep{
		Chain:        lb.src.ID,
		Kind:         domain.StepSwap,
		From:         lb.in.Wallet,
		Token:        lb.token,
		OutputToken:  out,
		Recipient:    recipient,
		AmountIn:     leg.AmountIn,
		MinAmountOut: q.MinOutputAmount,
		Quote:        &q,
	})
	return nil
}

// bridgedSwap plans approve, bridge, swap on the destination chain and a
// final forward to the target recipient. Each step depends on the previous.
func (lb *legBuilder) bridgedSwap(ctx context.Context, leg domain.AllocationLeg, target config.TargetConfig, destID domain.ChainID) error {
	if lb.b.bridge == nil {
		return infeasible(leg.Name, fmt.Errorf("%w: bridging disabled", domain.ErrNoRoute))
	}
	dest, ok := lb.b.cfg.Chain(destID)
	if !ok {
		return infeasible(leg.Name, fmt.Errorf("%w: %q", domain.ErrUnsupportedChain, destID))
	}
	out, ok := target.Tokens[destID]
	if !ok {
		return infeasible(leg.Name, fmt.Errorf("target %s has no token on %s", target.Symbol, destID))
	}
	if dest.BridgeAsset == "" {
		return infeasible(leg.Name, fmt.Errorf("%w: no bridge asset on %s", domain.ErrNoRoute, destID))
	}

	// The wallet that holds funds on the destination chain.
	holder := lb.in.Wallet
	if dest.Family != lb.src.Family {
		holder = lb.in.DestinationWallet
		if holder == "" {
			return infeasible(leg.Name, fmt.Errorf("%s to %s needs a destination wallet", lb.src.Family, dest.Family))
		}
	}
	if err := config.ValidAddress(dest.Family, holder); err != nil {
		return infeasible(leg.Name, fmt.Errorf("destination wallet: %w", err))
	}
	recipient := target.Recipients[destID]
	if recipient == "" {
		recipient = holder
	}

	bq, err := lb.b.bridge.QuoteBridge(ctx, bridge.Request{
		SourceChain: lb.src.ID,
		DestChain:   destID,
		FromToken:   lb.token,
		ToToken:     dest.BridgeAsset,
		Amount:      leg.AmountIn,
		From:        lb.in.Wallet,
		To:          holder,
	})
	if err != nil {
		return infeasible(leg.Name, err)
	}
	// Only the guaranteed amount is planned onward.
	arrived := bq.ToAmountMin
	if arrived.Sign() <= 0 {
		arrived = bq.ToAmount
	}

	sq, err := lb.b.quotes.GetQuote(ctx, quote.Request{
		Chain:       destID,
		InputToken:  dest.BridgeAsset,
		OutputToken: out,
		AmountIn:    arrived,
		From:        holder,
		To:          holder,
	})
	if err != nil {
		return infeasible(leg.Name, err)
	}

	var deps []string
	if bq.Spender != "" {
		id := lb.add(leg.Name, domain.ExecutionStep{
			Chain:     lb.src.ID,
			Kind:      domain.StepTransfer,
			Action:    domain.ActionApprove,
			From:      lb.in.Wallet,
			Token:     lb.token,
			Recipient: bq.Spender,
			AmountIn:  leg.AmountIn,
		})
		deps = []string{id}
	}
	bridgeID := lb.add(leg.Name, domain.ExecutionStep{
		Chain:        lb.src.ID,
		DestChain:    destID,
		Kind:         domain.StepBridge,
		DependsOn:    deps,
		From:         lb.in.Wallet,
		Token:        lb.token,
		OutputToken:  dest.BridgeAsset,
		Recipient:    holder,
		AmountIn:     leg.AmountIn,
		MinAmountOut: arrived,
		BridgeQuote:  &bq,
	})
	swapID := lb.add(leg.Name, domain.ExecutionStep{
		Chain:        destID,
		Kind:         domain.StepSwap,
		DependsOn:    []string{bridgeID},
		From:         holder,
		Token:        dest.BridgeAsset,
		OutputToken:  out,
		Recipient:    holder,
		AmountIn:     arrived,
		MinAmountOut: sq.MinOutputAmount,
		Quote:        &sq,
	})
	lb.add(leg.Name, domain.ExecutionStep{
		Chain:     destID,
		Kind:      domain.StepForward,
		DependsOn: []string{swapID},
		From:      holder,
		Token:     out,
		Recipient: recipient,
		AmountIn:  sq.MinOutputAmount,
	})
	return nil
}
