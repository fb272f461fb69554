package burn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/storage"
	"github.com/vietddude/burnrelay/internal/infra/storage/memory"
	"github.com/vietddude/burnrelay/internal/planner"
)

const (
	wallet = "0x1111111111111111111111111111111111111111"
	token  = "0x2222222222222222222222222222222222222222"
)

type fakeClassifier struct {
	err error
}

func (f *fakeClassifier) Classify(_ context.Context, chain domain.ChainID, addr string) (domain.TokenClassification, error) {
	if f.err != nil {
		return domain.TokenClassification{}, f.err
	}
	return domain.TokenClassification{
		Token:           domain.Token{Chain: chain, Address: addr, TokenMetadata: domain.TokenMetadata{Symbol: "MEME", Decimals: 18}},
		IsValid:         true,
		IsBurnable:      true,
		LiquidityChains: []domain.ChainID{chain},
	}, nil
}

func (f *fakeClassifier) SimulateBurn(_ context.Context, tc domain.TokenClassification, _ string, _ domain.Amount) domain.TokenClassification {
	return tc
}

type fakeAllocator struct{}

func (fakeAllocator) ComputeAllocation(amount domain.Amount, _ domain.TokenClassification, mode domain.AllocationMode) (domain.AllocationPlan, error) {
	if mode == "" {
		mode = domain.ModeStandard
	}
	return domain.AllocationPlan{Mode: mode, TotalAmount: amount}, nil
}

type fakeRouter struct{ calls int }

func (r *fakeRouter) AnalyzeRoute(_ context.Context, chain domain.ChainID, tok string, amount domain.Amount) (domain.CrossChainRoute, error) {
	r.calls++
	return domain.CrossChainRoute{SourceChain: chain, SourceToken: tok, Amount: amount, CrossChainRequired: true}, nil
}

type fakePlanner struct {
	err   error
	input planner.BuildInput
}

func (p *fakePlanner) BuildPlan(_ context.Context, in planner.BuildInput) (*domain.ExecutionPlan, error) {
	p.input = in
	if p.err != nil {
		return nil, p.err
	}
	return &domain.ExecutionPlan{
		ID:           "plan-" + in.RecordID,
		BurnRecordID: in.RecordID,
		SourceChain:  in.SourceChain,
		Mode:         in.Allocation.Mode,
		Status:       domain.PlanPending,
		Steps: []domain.ExecutionStep{
			{ID: "burn-transfer", LegName: "burn", Chain: in.SourceChain, Kind: domain.StepTransfer, Status: domain.StepPending, DependsOn: []string{}},
			{ID: "swap_drb-swap", LegName: "swap_drb", Chain: in.SourceChain, Kind: domain.StepSwap, Status: domain.StepPending, DependsOn: []string{}},
		},
	}, nil
}

type fakeRunner struct {
	store   storage.BurnRepository
	block   bool
	started chan string
	mu      sync.Mutex
	runs    int
}

func newRunner(store storage.BurnRepository, block bool) *fakeRunner {
	return &fakeRunner{store: store, block: block, started: make(chan string, 10)}
}

func (r *fakeRunner) Run(ctx context.Context, id string) error {
	r.mu.Lock()
	r.runs++
	r.mu.Unlock()
	r.started <- id
	if r.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (r *fakeRunner) Reconcile(ctx context.Context, id string) (*domain.BurnRecord, error) {
	return r.store.Get(ctx, id)
}

type recordingEvents struct {
	mu  sync.Mutex
	got []domain.EventType
}

func (e *recordingEvents) Emit(_ context.Context, ev *domain.BurnEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.got = append(e.got, ev.Type)
	return nil
}

func (e *recordingEvents) Close() error { return nil }

func (e *recordingEvents) types() []domain.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.EventType(nil), e.got...)
}

type fixture struct {
	svc     *Service
	store   *memory.BurnRepo
	runner  *fakeRunner
	planner *fakePlanner
	router  *fakeRouter
	lease   *MemoryLease
	events  *recordingEvents
}

func newFixture(t *testing.T, block bool, classErr error) *fixture {
	t.Helper()
	cfg := &config.AppConfig{
		Chains: []config.ChainConfig{{ID: domain.ChainBase, Family: domain.FamilyEVM}},
		Execution: config.ExecutionConfig{
			LeaseTTL: time.Minute,
		},
	}
	store := memory.NewBurnRepo()
	f := &fixture{
		store:   store,
		runner:  newRunner(store, block),
		planner: &fakePlanner{},
		router:  &fakeRouter{},
		lease:   NewMemoryLease(time.Minute, nil),
		events:  &recordingEvents{},
	}
	f.svc = NewService(Deps{
		Config:     cfg,
		Classifier: &fakeClassifier{err: classErr},
		Allocator:  fakeAllocator{},
		Router:     f.router,
		Planner:    f.planner,
		Runner:     f.runner,
		Store:      store,
		Lease:      f.lease,
		Events:     f.events,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.svc.Close(ctx)
	})
	return f
}

func request() BurnRequest {
	return BurnRequest{
		WalletAddress: wallet,
		TokenAddress:  token,
		Amount:        domain.NewAmount(10_000),
		Chain:         domain.ChainBase,
		Mode:          domain.ModeStandard,
	}
}

func waitStarted(t *testing.T, r *fakeRunner) string {
	t.Helper()
	select {
	case id := <-r.started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("executor was not launched")
		return ""
	}
}

func TestStart_PersistsAndLaunches(t *testing.T) {
	f := newFixture(t, false, nil)
	res, err := f.svc.Start(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, res.BurnRecordID, waitStarted(t, f.runner))
	assert.Equal(t, res.BurnRecordID, res.ExecutionPlan.BurnRecordID)

	rec, err := f.store.Get(context.Background(), res.BurnRecordID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPending, rec.Status)
	assert.Equal(t, "MEME", rec.TokenSymbol)
	assert.Equal(t, int32(18), rec.TokenDecimals)
	assert.Len(t, rec.Plan.Steps, 2)
	assert.Equal(t, []domain.EventType{domain.EventRecordCreated}, f.events.types())
	assert.Nil(t, f.planner.input.Route)
	assert.Zero(t, f.router.calls)
}

func TestStart_CrossChainAnalyzesRoute(t *testing.T) {
	f := newFixture(t, false, nil)
	req := request()
	req.CrossChain = true
	_, err := f.svc.Start(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, f.router.calls)
	require.NotNil(t, f.planner.input.Route)
	assert.True(t, f.planner.input.Route.CrossChainRequired)
}

func TestStart_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*BurnRequest)
		classErr   error
		planErr    error
		want       error
		wantReason string
	}{
		{name: "unsupported chain", mutate: func(r *BurnRequest) { r.Chain = "dogechain" }, want: domain.ErrUnsupportedChain},
		{name: "bad wallet", mutate: func(r *BurnRequest) { r.WalletAddress = "not-a-wallet" }, want: domain.ErrInvalidWallet},
		{name: "contest inactive", mutate: func(r *BurnRequest) { r.Mode = domain.ModeContest }, want: domain.ErrContestInactive},
		{name: "invalid token", classErr: fmt.Errorf("%w: not a contract", domain.ErrInvalidToken), want: domain.ErrInvalidToken},
		{name: "validation timeout", classErr: fmt.Errorf("%w: rpc", domain.ErrValidationTimeout), want: domain.ErrValidationTimeout},
		{name: "plan infeasible", planErr: fmt.Errorf("%w: leg swap_drb: %w", domain.ErrPlanInfeasible, domain.ErrNoLiquidity), want: domain.ErrPlanInfeasible},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false, tt.classErr)
			f.planner.err = tt.planErr
			req := request()
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			_, err := f.svc.Start(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, strings.HasPrefix(err.Error(), "could not start: "), err.Error())
			assert.True(t, IsPreSubmission(err))

			recs, err := f.store.List(context.Background(), storage.ListFilter{}, 10, 0)
			require.NoError(t, err)
			assert.Empty(t, recs, "nothing may be persisted for a rejected burn")
			assert.Zero(t, len(f.runner.started))
		})
	}
}

func TestStart_ContestWhenActive(t *testing.T) {
	f := newFixture(t, false, nil)
	f.svc.SetContestActive(true)
	req := request()
	req.Mode = domain.ModeContest

	res, err := f.svc.Start(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.ModeContest, res.ExecutionPlan.Mode)
}

func TestCancel_PendingPlan(t *testing.T) {
	f := newFixture(t, true, nil)
	res, err := f.svc.Start(context.Background(), request())
	require.NoError(t, err)
	waitStarted(t, f.runner)

	rec, err := f.svc.Cancel(context.Background(), res.BurnRecordID)
	require.NoError(t, err)

	assert.Equal(t, domain.PlanFailed, rec.Status)
	for _, s := range rec.Plan.Steps {
		assert.Equal(t, domain.StepFailed, s.Status)
		assert.Equal(t, domain.ReasonCancelled, s.FailureReason)
	}
	assert.False(t, f.svc.Running(res.BurnRecordID))
	held, _ := f.lease.Held(context.Background(), res.BurnRecordID)
	assert.False(t, held, "cancel must release the lease")

	types := f.events.types()
	assert.Equal(t, domain.EventRecordClosed, types[len(types)-1])

	_, err = f.svc.Cancel(context.Background(), res.BurnRecordID)
	assert.ErrorIs(t, err, domain.ErrCancelNotAllowed)
}

func TestCancel_RefusedOnceSubmitted(t *testing.T) {
	f := newFixture(t, true, nil)
	res, err := f.svc.Start(context.Background(), request())
	require.NoError(t, err)
	waitStarted(t, f.runner)

	_, err = f.store.UpdateStepStatus(context.Background(), res.BurnRecordID, "burn-transfer", storage.StepUpdate{
		Status: domain.StepSubmitted, TxRef: "0xtx", Attempt: 1, At: time.Now(),
	})
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), res.BurnRecordID)
	assert.ErrorIs(t, err, domain.ErrCancelNotAllowed)

	// Execution resumes so the submitted step is still followed.
	assert.Equal(t, res.BurnRecordID, waitStarted(t, f.runner))
	rec, _ := f.store.Get(context.Background(), res.BurnRecordID)
	assert.Equal(t, domain.StepPending, rec.Plan.Step("swap_drb-swap").Status)
}

func TestCancel_RefusedWhileLeasedElsewhere(t *testing.T) {
	f := newFixture(t, false, nil)
	res, err := f.svc.Start(context.Background(), request())
	require.NoError(t, err)
	waitStarted(t, f.runner)
	require.Eventually(t, func() bool { return !f.svc.Running(res.BurnRecordID) }, 2*time.Second, 10*time.Millisecond)

	ok, err := f.lease.Acquire(context.Background(), res.BurnRecordID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.Cancel(context.Background(), res.BurnRecordID)
	assert.ErrorIs(t, err, domain.ErrCancelNotAllowed)
}

func TestResume(t *testing.T) {
	f := newFixture(t, false, nil)
	res, err := f.svc.Start(context.Background(), request())
	require.NoError(t, err)
	waitStarted(t, f.runner)
	require.Eventually(t, func() bool { return !f.svc.Running(res.BurnRecordID) }, 2*time.Second, 10*time.Millisecond)

	ok, err := f.svc.Resume(context.Background(), res.BurnRecordID)
	require.NoError(t, err)
	assert.True(t, ok)
	waitStarted(t, f.runner)

	_, err = f.svc.Resume(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrRecordNotFound))
}

func TestClose_StopsRuns(t *testing.T) {
	f := newFixture(t, true, nil)
	res, err := f.svc.Start(context.Background(), request())
	require.NoError(t, err)
	waitStarted(t, f.runner)
	assert.Equal(t, 1, f.svc.Active())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.svc.Close(ctx))
	assert.Zero(t, f.svc.Active())

	ok, err := f.svc.Resume(context.Background(), res.BurnRecordID)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrClosed)
}
