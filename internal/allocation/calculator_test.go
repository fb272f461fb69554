package allocation

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
)

func newCalculator(t *testing.T) *Calculator {
	t.Helper()
	c, err := NewCalculator(config.AllocationConfig{Tables: config.DefaultTables()})
	require.NoError(t, err)
	return c
}

func classification(protocol, burnable bool) domain.TokenClassification {
	return domain.TokenClassification{
		Token:           domain.Token{Chain: domain.ChainBase, Address: "0x1111111111111111111111111111111111111111"},
		IsValid:         true,
		IsProtocolToken: protocol,
		IsBurnable:      burnable,
		LiquidityChains: []domain.ChainID{domain.ChainBase},
	}
}

func amounts(t *testing.T, plan domain.AllocationPlan) map[string]string {
	t.Helper()
	out := make(map[string]string, len(plan.Legs))
	for _, leg := range plan.Legs {
		out[leg.Name] = leg.AmountIn.String()
	}
	return out
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		name      string
		protocol  bool
		burnable  bool
		requested domain.AllocationMode
		want      domain.AllocationMode
	}{
		{"standard", false, true, domain.ModeStandard, domain.ModeStandard},
		{"contest", false, true, domain.ModeContest, domain.ModeContest},
		{"protocol token ignores request", true, false, domain.ModeContest, domain.ModeDrbDirect},
		{"non burnable ignores contest", false, false, domain.ModeContest, domain.ModeNonBurnable},
		{"empty request", false, true, "", domain.ModeStandard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveMode(classification(tt.protocol, tt.burnable), tt.requested))
		})
	}
}

func TestComputeAllocation_Scenarios(t *testing.T) {
	c := newCalculator(t)

	plan, err := c.ComputeAllocation(domain.NewAmount(1000), classification(false, true), domain.ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"burn": "880", "swap_drb": "60", "swap_cbbtc": "60"}, amounts(t, plan))

	n, ok := new(big.Int).SetString("999999999999999999", 10)
	require.True(t, ok)
	plan, err = c.ComputeAllocation(domain.AmountFromBig(n), classification(false, true), domain.ModeContest)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"burn": "879999999999999999", "pool": "120000000000000000"}, amounts(t, plan))
	assert.Equal(t, n.String(), plan.Sum().String())

	plan, err = c.ComputeAllocation(domain.NewAmount(1000), classification(true, false), domain.ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeDrbDirect, plan.Mode)
	assert.Equal(t, map[string]string{"drb_grok": "740", "drb_team": "100", "drb_community": "160"}, amounts(t, plan))
	for _, leg := range plan.Legs {
		assert.Equal(t, domain.DestForward, leg.Kind)
		assert.NotEmpty(t, leg.Recipient, "forward leg %s has no recipient on base", leg.Name)
	}

	plan, err = c.ComputeAllocation(domain.NewAmount(1000), classification(false, false), domain.ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"swap_drb": "940", "swap_cbbtc": "60"}, amounts(t, plan))
}

func TestComputeAllocation_SmallestUnit(t *testing.T) {
	c := newCalculator(t)
	plan, err := c.ComputeAllocation(domain.NewAmount(1), classification(false, true), domain.ModeStandard)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"burn": "0", "swap_drb": "0", "swap_cbbtc": "1"}, amounts(t, plan))
}

func TestComputeAllocation_InvalidAmount(t *testing.T) {
	c, err := NewCalculator(config.AllocationConfig{Tables: config.DefaultTables(), MaxAmount: "5000"})
	require.NoError(t, err)

	_, err = c.ComputeAllocation(domain.NewAmount(0), classification(false, true), domain.ModeStandard)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = c.ComputeAllocation(domain.NewAmount(5001), classification(false, true), domain.ModeStandard)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = c.ComputeAllocation(domain.NewAmount(5000), classification(false, true), domain.ModeStandard)
	assert.NoError(t, err)
}

func TestComputeAllocation_ExactSum(t *testing.T) {
	c := newCalculator(t)
	rng := rand.New(rand.NewSource(42))

	combos := []domain.TokenClassification{
		classification(false, true),
		classification(false, false),
		classification(true, false),
	}
	modes := []domain.AllocationMode{domain.ModeStandard, domain.ModeContest}

	fixed := []string{"1", "9", "99", "10001", "999999999999999999", "115792089237316195423570985008687907853269984665640564039457584007913129639935"}
	for i := 0; i < 200; i++ {
		n := new(big.Int).Rand(rng, new(big.Int).Lsh(big.NewInt(1), uint(rng.Intn(256)+1)))
		n.Add(n, big.NewInt(1))
		fixed = append(fixed, n.String())
	}

	for _, s := range fixed {
		amount, err := domain.ParseAmount(s)
		require.NoError(t, err)
		for _, class := range combos {
			for _, mode := range modes {
				plan, err := c.ComputeAllocation(amount, class, mode)
				require.NoError(t, err)
				require.Zero(t, plan.Sum().Cmp(amount), "sum mismatch for %s in %s", s, plan.Mode)
				for _, leg := range plan.Legs {
					require.GreaterOrEqual(t, leg.AmountIn.Sign(), 0)
				}
			}
		}
	}
}

func TestValidateTables(t *testing.T) {
	assert.NoError(t, ValidateTables(config.DefaultTables()))

	broken := config.DefaultTables()
	broken[domain.ModeContest] = []config.LegConfig{
		{Name: "burn", Kind: domain.DestBurn, WeightBps: 8800},
		{Name: "pool", Kind: domain.DestPool, WeightBps: 1100},
	}
	err := ValidateTables(broken)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contest")

	missing := config.DefaultTables()
	delete(missing, domain.ModeDrbDirect)
	assert.Error(t, ValidateTables(missing))
}
