package planner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/burnrelay/internal/bridge"
	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/quote"
)

const (
	wallet     = "0x9999999999999999999999999999999999999999"
	solWallet  = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
	memeToken  = "0x1111111111111111111111111111111111111111"
	memeMint   = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
	spender    = "0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE"
	planRecord = "rec-1"
)

type fakeQuoter struct {
	reqs []quote.Request
	err  map[domain.ChainID]error
}

func (f *fakeQuoter) GetQuote(_ context.Context, req quote.Request) (domain.Quote, error) {
	f.reqs = append(f.reqs, req)
	if err := f.err[req.Chain]; err != nil {
		return domain.Quote{}, err
	}
	out := req.AmountIn.Add(req.AmountIn)
	return domain.Quote{
		Chain:           req.Chain,
		InputToken:      req.InputToken,
		OutputToken:     req.OutputToken,
		AmountIn:        req.AmountIn,
		OutputAmount:    out,
		MinOutputAmount: out.MulBps(9700),
		Provider:        "fake",
	}, nil
}

type fakeBridge struct {
	reqs []bridge.Request
	err  error
}

func (f *fakeBridge) Name() string { return "fake" }

func (f *fakeBridge) QuoteBridge(_ context.Context, req bridge.Request) (domain.BridgeQuote, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return domain.BridgeQuote{}, f.err
	}
	return domain.BridgeQuote{
		Provider:    "fake",
		SourceChain: req.SourceChain,
		DestChain:   req.DestChain,
		FromToken:   req.FromToken,
		ToToken:     req.ToToken,
		AmountIn:    req.Amount,
		ToAmount:    domain.NewAmount(590),
		ToAmountMin: domain.NewAmount(580),
		Spender:     spender,
	}, nil
}

func (f *fakeBridge) Status(context.Context, domain.BridgeQuote, string) (domain.TxStatus, error) {
	return domain.TxPending, nil
}

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.Parse([]byte(`
chains:
  - id: base
    providers: [{url: "http://base"}]
  - id: ethereum
    providers: [{url: "http://eth"}]
  - id: solana
    providers: [{url: "http://sol"}]
`))
	require.NoError(t, err)
	return cfg
}

func standardAllocation(burn, drb, cbbtc int64) domain.AllocationPlan {
	return domain.AllocationPlan{
		Mode:        domain.ModeStandard,
		TotalAmount: domain.NewAmount(burn + drb + cbbtc),
		Legs: []domain.AllocationLeg{
			{Name: "burn", Kind: domain.DestBurn, WeightBps: 8800, AmountIn: domain.NewAmount(burn)},
			{Name: "swap_drb", Kind: domain.DestSwap, WeightBps: 600, OutputToken: "DRB", AmountIn: domain.NewAmount(drb)},
			{Name: "swap_cbbtc", Kind: domain.DestSwap, WeightBps: 600, OutputToken: "CBBTC", AmountIn: domain.NewAmount(cbbtc)},
		},
	}
}

func classification(chain domain.ChainID, addr string) domain.TokenClassification {
	return domain.TokenClassification{
		Token:           domain.Token{Chain: chain, Address: addr},
		IsValid:         true,
		IsBurnable:      true,
		LiquidityChains: []domain.ChainID{chain},
	}
}

func crossRoute(source domain.ChainID) *domain.CrossChainRoute {
	return &domain.CrossChainRoute{
		SourceChain:        source,
		CrossChainRequired: true,
		OptimalChains:      map[string]domain.ChainID{"DRB": domain.ChainBase, "CBBTC": domain.ChainEthereum},
	}
}

func stepIDs(p *domain.ExecutionPlan) []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.ID
	}
	return ids
}

func TestBuildPlan_StandardSameChain(t *testing.T) {
	cfg := testConfig(t)
	clk := clock.NewFake(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	q := &fakeQuoter{}
	b := NewBuilder(cfg, q, nil, clk)

	plan, err := b.BuildPlan(context.Background(), BuildInput{
		RecordID:       planRecord,
		Allocation:     standardAllocation(8800, 600, 600),
		Classification: classification(domain.ChainBase, memeToken),
		SourceChain:    domain.ChainBase,
		Wallet:         wallet,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"burn-transfer", "swap_drb-swap", "swap_cbbtc-swap"}, stepIDs(plan))
	assert.Equal(t, domain.PlanPending, plan.Status)
	assert.Equal(t, clk.Now(), plan.CreatedAt)

	burn := plan.Step("burn-transfer")
	assert.Equal(t, domain.EVMBurnAddress, burn.Recipient)
	assert.Equal(t, domain.ActionTransfer, burn.Action)
	assert.Equal(t, "8800", burn.AmountIn.String())

	drb := plan.Step("swap_drb-swap")
	assert.Equal(t, config.DefaultGrokWallet, drb.Recipient)
	require.NotNil(t, drb.Quote)
	assert.Equal(t, "1164", drb.MinAmountOut.String())

	for _, s := range plan.Steps {
		assert.Equal(t, domain.StepPending, s.Status)
		assert.Empty(t, s.DependsOn)
		assert.Equal(t, IdempotencyKey(planRecord, s.LegName, s.Kind), s.IdempotencyKey)
	}
	assert.NotEqual(t, plan.Steps[1].IdempotencyKey, plan.Steps[2].IdempotencyKey)

	require.Len(t, q.reqs, 2)
	assert.Equal(t, wallet, q.reqs[0].From)
}

func TestBuildPlan_CrossChainSwapLeg(t *testing.T) {
	cfg := testConfig(t)
	q := &fakeQuoter{}
	br := &fakeBridge{}
	b := NewBuilder(cfg, q, br, clock.NewFake(time.Now()))

	plan, err := b.BuildPlan(context.Background(), BuildInput{
		RecordID:       planRecord,
		Allocation:     standardAllocation(8800, 600, 600),
		Classification: classification(domain.ChainBase, memeToken),
		SourceChain:    domain.ChainBase,
		Wallet:         wallet,
		Route:          crossRoute(domain.ChainBase),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"burn-transfer",
		"swap_drb-swap",
		"swap_cbbtc-transfer",
		"swap_cbbtc-bridge",
		"swap_cbbtc-swap",
		"swap_cbbtc-forward",
	}, stepIDs(plan))

	approve := plan.Step("swap_cbbtc-transfer")
	assert.Equal(t, domain.ActionApprove, approve.Action)
	assert.Equal(t, spender, approve.Recipient)
	assert.Equal(t, domain.ChainBase, approve.Chain)

	hop := plan.Step("swap_cbbtc-bridge")
	assert.Equal(t, []string{"swap_cbbtc-transfer"}, hop.DependsOn)
	assert.Equal(t, domain.ChainEthereum, hop.DestChain)
	require.NotNil(t, hop.BridgeQuote)

	swap := plan.Step("swap_cbbtc-swap")
	assert.Equal(t, domain.ChainEthereum, swap.Chain)
	assert.Equal(t, []string{"swap_cbbtc-bridge"}, swap.DependsOn)
	assert.Equal(t, "580", swap.AmountIn.String(), "only the guaranteed bridge output is swapped")

	fwd := plan.Step("swap_cbbtc-forward")
	assert.Equal(t, []string{"swap_cbbtc-swap"}, fwd.DependsOn)
	assert.Equal(t, config.DefaultCommunityWallet, fwd.Recipient)
	assert.Equal(t, swap.MinAmountOut, fwd.AmountIn)

	require.Len(t, br.reqs, 1)
	assert.Equal(t, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", br.reqs[0].ToToken)
	assert.Equal(t, wallet, br.reqs[0].To)
}

func TestBuildPlan_Contest(t *testing.T) {
	b := NewBuilder(testConfig(t), &fakeQuoter{}, nil, nil)
	plan, err := b.BuildPlan(context.Background(), BuildInput{
		RecordID: planRecord,
		Allocation: domain.AllocationPlan{
			Mode: domain.ModeContest,
			Legs: []domain.AllocationLeg{
				{Name: "burn", Kind: domain.DestBurn, AmountIn: domain.NewAmount(880)},
				{Name: "pool", Kind: domain.DestPool, Recipient: config.DefaultCommunityWallet, AmountIn: domain.NewAmount(120)},
			},
		},
		Classification: classification(domain.ChainBase, memeToken),
		SourceChain:    domain.ChainBase,
		Wallet:         wallet,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"burn-transfer", "pool-transfer"}, stepIDs(plan))
	assert.Equal(t, config.DefaultCommunityWallet, plan.Step("pool-transfer").Recipient)
}

func TestBuildPlan_SkipsDustLegs(t *testing.T) {
	b := NewBuilder(testConfig(t), &fakeQuoter{}, nil, nil)
	plan, err := b.BuildPlan(context.Background(), BuildInput{
		RecordID:       planRecord,
		Allocation:     standardAllocation(0, 0, 1),
		Classification: classification(domain.ChainBase, memeToken),
		SourceChain:    domain.ChainBase,
		Wallet:         wallet,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"swap_cbbtc-swap"}, stepIDs(plan))
}

func TestBuildPlan_Infeasible(t *testing.T) {
	tests := []struct {
		name    string
		quoter  *fakeQuoter
		bridge  *fakeBridge
		input   func() BuildInput
		wantErr error
		wantMsg string
	}{
		{
			name:   "swap quote has no liquidity",
			quoter: &fakeQuoter{err: map[domain.ChainID]error{domain.ChainBase: domain.ErrNoLiquidity}},
			input: func() BuildInput {
				return BuildInput{
					Allocation:     standardAllocation(8800, 600, 600),
					Classification: classification(domain.ChainBase, memeToken),
					SourceChain:    domain.ChainBase,
					Wallet:         wallet,
				}
			},
			wantErr: domain.ErrNoLiquidity,
		},
		{
			name:   "quote provider exhausted",
			quoter: &fakeQuoter{err: map[domain.ChainID]error{domain.ChainBase: fmt.Errorf("%w: lifi after 3 attempts", domain.ErrQuoteProviderUnavailable)}},
			input: func() BuildInput {
				return BuildInput{
					Allocation:     standardAllocation(8800, 600, 600),
					Classification: classification(domain.ChainBase, memeToken),
					SourceChain:    domain.ChainBase,
					Wallet:         wallet,
				}
			},
			wantErr: domain.ErrQuoteProviderUnavailable,
		},
		{
			name:   "source chain missing from liquidity chains",
			quoter: &fakeQuoter{},
			input: func() BuildInput {
				c := classification(domain.ChainBase, memeToken)
				c.LiquidityChains = nil
				return BuildInput{
					Allocation:     standardAllocation(8800, 600, 600),
					Classification: c,
					SourceChain:    domain.ChainBase,
					Wallet:         wallet,
				}
			},
			wantErr: domain.ErrNoLiquidity,
		},
		{
			name:   "bridge has no route",
			quoter: &fakeQuoter{},
			bridge: &fakeBridge{err: fmt.Errorf("%w: no_possible_route", domain.ErrNoRoute)},
			input: func() BuildInput {
				return BuildInput{
					Allocation:     standardAllocation(8800, 600, 600),
					Classification: classification(domain.ChainBase, memeToken),
					SourceChain:    domain.ChainBase,
					Wallet:         wallet,
					Route:          crossRoute(domain.ChainBase),
				}
			},
			wantErr: domain.ErrNoRoute,
		},
		{
			name:   "target has no token on source chain",
			quoter: &fakeQuoter{},
			input: func() BuildInput {
				return BuildInput{
					Allocation:     standardAllocation(8800, 600, 600),
					Classification: classification(domain.ChainSolana, memeMint),
					SourceChain:    domain.ChainSolana,
					Wallet:         solWallet,
				}
			},
			wantMsg: "target DRB has no token on solana",
		},
		{
			name:   "cross-family hop without destination wallet",
			quoter: &fakeQuoter{},
			bridge: &fakeBridge{},
			input: func() BuildInput {
				return BuildInput{
					Allocation:     standardAllocation(8800, 600, 600),
					Classification: classification(domain.ChainSolana, memeMint),
					SourceChain:    domain.ChainSolana,
					Wallet:         solWallet,
					Route:          crossRoute(domain.ChainSolana),
				}
			},
			wantMsg: "needs a destination wallet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var br bridge.Provider
			if tt.bridge != nil {
				br = tt.bridge
			}
			b := NewBuilder(testConfig(t), tt.quoter, br, nil)
			plan, err := b.BuildPlan(context.Background(), tt.input())
			require.Error(t, err)
			assert.Nil(t, plan)
			assert.ErrorIs(t, err, domain.ErrPlanInfeasible)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestBuildPlan_SolanaToEVMWithDestinationWallet(t *testing.T) {
	br := &fakeBridge{}
	b := NewBuilder(testConfig(t), &fakeQuoter{}, br, nil)
	plan, err := b.BuildPlan(context.Background(), BuildInput{
		RecordID:          planRecord,
		Allocation:        standardAllocation(8800, 600, 600),
		Classification:    classification(domain.ChainSolana, memeMint),
		SourceChain:       domain.ChainSolana,
		Wallet:            solWallet,
		DestinationWallet: wallet,
		Route:             crossRoute(domain.ChainSolana),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.SolanaBurnAddress, plan.Step("burn-transfer").Recipient)
	require.Len(t, br.reqs, 2)
	for _, req := range br.reqs {
		assert.Equal(t, solWallet, req.From)
		assert.Equal(t, wallet, req.To)
	}
	assert.Equal(t, domain.ChainBase, plan.Step("swap_drb-swap").Chain)
	assert.Equal(t, domain.ChainEthereum, plan.Step("swap_cbbtc-swap").Chain)

	// Source-chain steps are signed by the Solana wallet, destination steps
	// by the EVM wallet that receives the bridged funds.
	assert.Equal(t, solWallet, plan.Step("swap_cbbtc-bridge").From)
	assert.Equal(t, wallet, plan.Step("swap_cbbtc-swap").From)
	assert.Equal(t, wallet, plan.Step("swap_cbbtc-forward").From)
}

func TestBuildPlan_ContextCancelledIsNotInfeasible(t *testing.T) {
	q := &fakeQuoter{err: map[domain.ChainID]error{domain.ChainBase: context.Canceled}}
	b := NewBuilder(testConfig(t), q, nil, nil)
	_, err := b.BuildPlan(context.Background(), BuildInput{
		Allocation:     standardAllocation(8800, 600, 600),
		Classification: classification(domain.ChainBase, memeToken),
		SourceChain:    domain.ChainBase,
		Wallet:         wallet,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, domain.ErrPlanInfeasible))
}

func TestIdempotencyKey_Deterministic(t *testing.T) {
	a := IdempotencyKey("r", "burn", domain.StepTransfer)
	assert.Equal(t, a, IdempotencyKey("r", "burn", domain.StepTransfer))
	assert.NotEqual(t, a, IdempotencyKey("r2", "burn", domain.StepTransfer))
	assert.Len(t, a, 66)
}
