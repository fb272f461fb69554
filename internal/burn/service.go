// Package burn coordinates a burn request from classification to a running
// execution plan and answers queries about existing records.
package burn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/core/status"
	"github.com/vietddude/burnrelay/internal/events"
	"github.com/vietddude/burnrelay/internal/infra/storage"
	"github.com/vietddude/burnrelay/internal/metrics"
	"github.com/vietddude/burnrelay/internal/planner"
)

// ErrClosed is returned once the service has shut down.
var ErrClosed = errors.New("burn service closed")

type Classifier interface {
	Classify(ctx context.Context, chain domain.ChainID, token string) (domain.TokenClassification, error)
	SimulateBurn(ctx context.Context, tc domain.TokenClassification, wallet string, amount domain.Amount) domain.TokenClassification
}

type Allocator interface {
	ComputeAllocation(amount domain.Amount, class domain.TokenClassification, requested domain.AllocationMode) (domain.AllocationPlan, error)
}

type RouteAnalyzer interface {
	AnalyzeRoute(ctx context.Context, chain domain.ChainID, token string, amount domain.Amount) (domain.CrossChainRoute, error)
}

type Planner interface {
	BuildPlan(ctx context.Context, in planner.BuildInput) (*domain.ExecutionPlan, error)
}

// Runner drives a stored plan. Implemented by the executor.
type Runner interface {
	Run(ctx context.Context, recordID string) error
	Reconcile(ctx context.Context, recordID string) (*domain.BurnRecord, error)
}

// BurnRequest is a user's request to burn an amount of a token.
type BurnRequest struct {
	WalletAddress     string
	TokenAddress      string
	Amount            domain.Amount
	Chain             domain.ChainID
	Mode              domain.AllocationMode
	CrossChain        bool
	DestinationWallet string
}

// StartResult is returned once a plan is persisted and running.
type StartResult struct {
	BurnRecordID  string                `json:"burnRecordId"`
	ExecutionPlan *domain.ExecutionPlan `json:"executionPlan"`
}

// Deps groups the collaborators of the service.
type Deps struct {
	Config     *config.AppConfig
	Classifier Classifier
	Allocator  Allocator
	Router     RouteAnalyzer
	Planner    Planner
	Runner     Runner
	Store      storage.BurnRepository
	Lease      Lease
	Events     events.Emitter
	Clock      clock.Clock
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Service is the burn coordinator.
type Service struct {
	cfg        *config.AppConfig
	classifier Classifier
	allocator  Allocator
	router     RouteAnalyzer
	planner    Planner
	runner     Runner
	store      storage.BurnRepository
	lease      Lease
	events     events.Emitter
	clock      clock.Clock
	log        *slog.Logger

	contest atomic.Bool

	ctx    context.Context
	stop   context.CancelFunc
	mu     sync.Mutex
	runs   map[string]*run
	closed bool
	wg     sync.WaitGroup
}

func NewService(d Deps) *Service {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Lease == nil {
		d.Lease = NewMemoryLease(d.Config.Execution.LeaseTTL, d.Clock)
	}
	ctx, stop := context.WithCancel(context.Background())
	s := &Service{
		cfg:        d.Config,
		classifier: d.Classifier,
		allocator:  d.Allocator,
		router:     d.Router,
		planner:    d.Planner,
		runner:     d.Runner,
		store:      d.Store,
		lease:      d.Lease,
		events:     d.Events,
		clock:      d.Clock,
		log:        slog.Default().With("component", "burn"),
		ctx:        ctx,
		stop:       stop,
		runs:       make(map[string]*run),
	}
	s.contest.Store(d.Config.Admin.ContestActive)
	return s
}

// SetContestActive toggles whether contest-mode burns are accepted.
func (s *Service) SetContestActive(active bool) {
	s.contest.Store(active)
	s.log.Info("contest toggled", "active", active)
}

func (s *Service) ContestActive() bool {
	return s.contest.Load()
}

// Classify validates a token without starting anything.
func (s *Service) Classify(ctx context.Context, chain domain.ChainID, token string) (domain.TokenClassification, error) {
	return s.classifier.Classify(ctx, chain, token)
}

// AnalyzeRoute returns the advisory cross-chain route for a burn.
func (s *Service) AnalyzeRoute(ctx context.Context, chain domain.ChainID, token string, amount domain.Amount) (domain.CrossChainRoute, error) {
	return s.router.AnalyzeRoute(ctx, chain, token, amount)
}

// Start validates, plans and persists a burn, then begins executing it in
// the background. Any error means nothing was submitted.
func (s *Service) Start(ctx context.Context, req BurnRequest) (*StartResult, error) {
	res, err := s.start(ctx, req)
	if err != nil {
		metrics.PlansRejected.WithLabelValues(rejectReason(err)).Inc()
		s.log.Info("burn rejected", "chain", req.Chain, "token", req.TokenAddress, "error", err)
		return nil, fmt.Errorf("could not start: %w", err)
	}
	return res, nil
}

func (s *Service) start(ctx context.Context, req BurnRequest) (*StartResult, error) {
	chainCfg, ok := s.cfg.Chain(req.Chain)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedChain, req.Chain)
	}
	if err := config.ValidAddress(chainCfg.Family, req.WalletAddress); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidWallet, err)
	}
	if req.Mode == domain.ModeContest && !s.ContestActive() {
		return nil, domain.ErrContestInactive
	}

	class, err := s.classifier.Classify(ctx, req.Chain, req.TokenAddress)
	if err != nil {
		return nil, err
	}
	class = s.classifier.SimulateBurn(ctx, class, req.WalletAddress, req.Amount)

	alloc, err := s.allocator.ComputeAllocation(req.Amount, class, req.Mode)
	if err != nil {
		return nil, err
	}

	var route *domain.CrossChainRoute
	if req.CrossChain {
		r, err := s.router.AnalyzeRoute(ctx, req.Chain, class.Token.Address, req.Amount)
		if err != nil {
			return nil, err
		}
		route = &r
	}

	id := uuid.NewString()
	plan, err := s.planner.BuildPlan(ctx, planner.BuildInput{
		RecordID:          id,
		Allocation:        alloc,
		Classification:    class,
		SourceChain:       req.Chain,
		Wallet:            req.WalletAddress,
		DestinationWallet: req.DestinationWallet,
		Route:             route,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	rec := &domain.BurnRecord{
		ID:                id,
		WalletAddress:     req.WalletAddress,
		DestinationWallet: req.DestinationWallet,
		SourceChain:       req.Chain,
		TokenAddress:      class.Token.Address,
		TokenSymbol:       class.Token.Symbol,
		TokenDecimals:     class.Token.Decimals,
		Amount:            req.Amount,
		Mode:              alloc.Mode,
		Status:            domain.PlanPending,
		Plan:              plan,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist record: %w", err)
	}
	metrics.BurnsStarted.WithLabelValues(string(req.Chain), string(alloc.Mode)).Inc()
	s.emit(ctx, domain.NewBurnEvent(domain.EventRecordCreated, rec, nil, now))
	s.log.Info("Burn started", "record", id, "chain", req.Chain, "mode", alloc.Mode, "steps", len(plan.Steps))

	if _, err := s.launch(id); err != nil {
		// The record is durable; the resumer picks it up.
		s.log.Warn("failed to launch executor", "record", id, "error", err)
	}
	return &StartResult{BurnRecordID: id, ExecutionPlan: plan.Clone()}, nil
}

func rejectReason(err error) string {
	reasons := []struct {
		err    error
		reason string
	}{
		{domain.ErrInvalidToken, "invalid_token"},
		{domain.ErrInvalidWallet, "invalid_wallet"},
		{domain.ErrValidationTimeout, "validation_timeout"},
		{domain.ErrInvalidAmount, "invalid_amount"},
		{domain.ErrUnsupportedChain, "unsupported_chain"},
		{domain.ErrContestInactive, "contest_inactive"},
		{domain.ErrNoLiquidity, "no_liquidity"},
		{domain.ErrQuoteProviderUnavailable, "quote_unavailable"},
		{domain.ErrNoRoute, "no_route"},
		{domain.ErrPlanInfeasible, "plan_infeasible"},
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "other"
}

// IsPreSubmission reports whether err is one of the errors Start returns
// before anything reaches a chain.
func IsPreSubmission(err error) bool {
	return rejectReason(err) != "other"
}

func (s *Service) Get(ctx context.Context, id string) (*domain.BurnRecord, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f storage.ListFilter, limit, offset int) ([]*domain.BurnRecord, error) {
	return s.store.List(ctx, f, limit, offset)
}

// Resume re-drives an unsettled record. It reports false when the record
// is settled or another process holds its lease.
func (s *Service) Resume(ctx context.Context, id string) (bool, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if rec.Plan == nil || status.Settled(rec.Plan.Steps) {
		return false, nil
	}
	return s.launch(id)
}

// Cancel fails every step of a plan that has not submitted anything yet.
// Once any step is submitted or confirmed the plan can only run to the end.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.BurnRecord, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Plan == nil || status.Settled(rec.Plan.Steps) {
		return rec, domain.ErrCancelNotAllowed
	}

	if err := s.halt(ctx, id); err != nil {
		return nil, err
	}
	ok, err := s.lease.Acquire(ctx, id)
	if err != nil {
		s.relaunch(id)
		return nil, err
	}
	if !ok {
		return rec, fmt.Errorf("%w: record is executing in another process", domain.ErrCancelNotAllowed)
	}

	rec, err = s.runner.Reconcile(ctx, id)
	if err != nil {
		s.releaseLease(id)
		s.relaunch(id)
		return nil, err
	}
	if rec.Plan.Count(domain.StepSubmitted)+rec.Plan.Count(domain.StepConfirmed) > 0 {
		s.releaseLease(id)
		s.relaunch(id)
		return rec, domain.ErrCancelNotAllowed
	}

	for _, step := range rec.Plan.Steps {
		if step.Status != domain.StepPending {
			continue
		}
		updated, err := s.store.UpdateStepStatus(ctx, id, step.ID, storage.StepUpdate{
			Status: domain.StepFailed,
			Reason: domain.ReasonCancelled,
			Detail: "cancelled by request",
			At:     s.clock.Now(),
		})
		if err != nil {
			s.releaseLease(id)
			return nil, fmt.Errorf("cancel step %s: %w", step.ID, err)
		}
		rec = updated
		s.emit(ctx, domain.NewBurnEvent(domain.EventStepUpdated, rec, rec.Plan.Step(step.ID), s.clock.Now()))
	}
	s.releaseLease(id)
	s.emit(ctx, domain.NewBurnEvent(domain.EventRecordClosed, rec, nil, s.clock.Now()))
	s.log.Info("Burn cancelled", "record", id)
	return rec, nil
}

// Active returns how many plans this process is driving.
func (s *Service) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

// Running reports whether this process is driving the record.
func (s *Service) Running(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.runs[id]
	return ok
}

// launch starts a background run of id under its lease. It reports false
// when another process holds the lease.
func (s *Service) launch(id string) (bool, error) {
	if s.Running(id) {
		return true, nil
	}
	ok, err := s.lease.Acquire(s.ctx, id)
	if err != nil {
		return false, fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return false, nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.releaseLease(id)
		return false, ErrClosed
	}
	if _, running := s.runs[id]; running {
		s.mu.Unlock()
		return true, nil
	}
	ctx, cancel := context.WithCancel(s.ctx)
	r := &run{cancel: cancel, done: make(chan struct{})}
	s.runs[id] = r
	s.wg.Add(1)
	s.mu.Unlock()

	go s.drive(ctx, id, r)
	return true, nil
}

func (s *Service) relaunch(id string) {
	if _, err := s.launch(id); err != nil {
		s.log.Warn("failed to relaunch executor", "record", id, "error", err)
	}
}

func (s *Service) drive(ctx context.Context, id string, r *run) {
	defer s.wg.Done()
	defer close(r.done)
	defer func() {
		s.mu.Lock()
		delete(s.runs, id)
		s.mu.Unlock()
		s.releaseLease(id)
	}()
	defer r.cancel()

	go s.keepLease(ctx, id, r.cancel)

	err := s.runner.Run(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		s.log.Info("execution stopped", "record", id)
	default:
		s.log.Error("execution interrupted", "record", id, "error", err)
	}
}

// keepLease refreshes the lease until ctx ends. Losing the lease stops the
// run so two processes never drive the same plan.
func (s *Service) keepLease(ctx context.Context, id string, cancel context.CancelFunc) {
	interval := s.cfg.Execution.LeaseTTL / 3
	if interval <= 0 {
		interval = 30 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(interval):
		}
		ok, err := s.lease.Refresh(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("lease refresh failed", "record", id, "error", err)
			continue
		}
		if !ok {
			s.log.Error("lease lost, stopping execution", "record", id)
			cancel()
			return
		}
	}
}

// halt stops the local run of id, if any, and waits for it to exit.
func (s *Service) halt(ctx context.Context, id string) error {
	s.mu.Lock()
	r, ok := s.runs[id]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	r.cancel()
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) releaseLease(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.lease.Release(ctx, id); err != nil {
		s.log.Warn("failed to release lease", "record", id, "error", err)
	}
}

func (s *Service) emit(ctx context.Context, ev *domain.BurnEvent) {
	if err := s.events.Emit(ctx, ev); err != nil {
		s.log.Warn("failed to emit event", "type", ev.Type, "record", ev.RecordID, "error", err)
	}
}

// Close stops every run and waits for them to exit. Stopped plans keep
// their stored state and are resumed on the next start.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
