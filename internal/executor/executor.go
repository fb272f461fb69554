// Package executor submits the steps of an execution plan and follows them
// to a terminal status.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/burnrelay/internal/bridge"
	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/core/status"
	"github.com/vietddude/burnrelay/internal/events"
	"github.com/vietddude/burnrelay/internal/infra/chain"
	"github.com/vietddude/burnrelay/internal/infra/signer"
	"github.com/vietddude/burnrelay/internal/infra/storage"
	"github.com/vietddude/burnrelay/internal/metrics"
)

const defaultConcurrency = 4

// ErrStalled is returned when a plan has unsettled steps but none can run.
var ErrStalled = errors.New("plan stalled")

// QuoteRefresher re-prices swap quotes that aged past the stale threshold.
type QuoteRefresher interface {
	IsStale(q domain.Quote) bool
	Refresh(ctx context.Context, q domain.Quote, from, to string) (domain.Quote, error)
}

// Deps groups the collaborators of an Executor. Bridge and Quotes may be nil.
type Deps struct {
	Store  storage.BurnRepository
	Chains chain.Registry
	Signer signer.Signer
	Bridge bridge.Provider
	Quotes QuoteRefresher
	Events events.Emitter
	Config *config.AppConfig
	Clock  clock.Clock
}

// Executor drives execution plans. It holds no per-plan state; everything
// it knows about a plan is read back from the store.
type Executor struct {
	store       storage.BurnRepository
	chains      chain.Registry
	signer      signer.Signer
	bridge      bridge.Provider
	quotes      QuoteRefresher
	events      events.Emitter
	cfg         *config.AppConfig
	clock       clock.Clock
	concurrency int
	log         *slog.Logger
}

func New(d Deps) *Executor {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	n := d.Config.Execution.MaxConcurrency
	if n <= 0 {
		n = defaultConcurrency
	}
	return &Executor{
		store:       d.Store,
		chains:      d.Chains,
		signer:      d.Signer,
		bridge:      d.Bridge,
		quotes:      d.Quotes,
		events:      d.Events,
		cfg:         d.Config,
		clock:       d.Clock,
		concurrency: n,
		log:         slog.Default().With("component", "executor"),
	}
}

// Run drives the plan of recordID until every step is terminal. Step
// failures are recorded on the record and do not make Run fail; a returned
// error means the store, the context or the plan itself got in the way.
//
// Steps are launched as soon as their dependencies confirm. A slow sibling
// never holds back a step whose own parents are done.
func (e *Executor) Run(ctx context.Context, recordID string) error {
	metrics.ActiveExecutions.Inc()
	defer metrics.ActiveExecutions.Dec()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(e.concurrency)
	abort := func(err error) error {
		cancel()
		if werr := g.Wait(); werr != nil && !errors.Is(werr, context.Canceled) {
			return werr
		}
		return err
	}

	var done chan struct{}
	launched := map[string]bool{}
	running := 0
	progressed := false
	for {
		rec, err := e.store.Get(gctx, recordID)
		if err != nil {
			return abort(fmt.Errorf("load record %s: %w", recordID, err))
		}
		if rec.Plan == nil {
			return abort(fmt.Errorf("record %s has no execution plan", recordID))
		}
		if done == nil {
			// Each step finishes at most once per Run.
			done = make(chan struct{}, len(rec.Plan.Steps))
		}

		n, err := e.cascade(gctx, rec)
		if err != nil {
			return abort(err)
		}
		if n > 0 {
			progressed = true
			continue
		}

		if status.Settled(rec.Plan.Steps) {
			if err := g.Wait(); err != nil {
				return err
			}
			if progressed {
				e.emit(ctx, domain.NewBurnEvent(domain.EventRecordClosed, rec, nil, e.clock.Now()))
			}
			e.log.Info("plan settled", "record", recordID, "status", rec.Status)
			return nil
		}

		for _, step := range readySteps(rec.Plan) {
			if launched[step.ID] {
				continue
			}
			launched[step.ID] = true
			running++
			g.Go(func() error {
				defer func() { done <- struct{}{} }()
				return e.runStep(gctx, recordID, step)
			})
		}
		if running == 0 {
			return fmt.Errorf("%w: record %s", ErrStalled, recordID)
		}

		select {
		case <-done:
			running--
			progressed = true
		case <-gctx.Done():
		}
		if gctx.Err() != nil {
			if err := g.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		}
	}
}

// Reconcile records as Submitted every Pending step the signer already
// broadcast, then returns the current record.
func (e *Executor) Reconcile(ctx context.Context, recordID string) (*domain.BurnRecord, error) {
	rec, err := e.store.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Plan == nil {
		return rec, nil
	}
	for _, step := range rec.Plan.Steps {
		if step.Status != domain.StepPending {
			continue
		}
		ref, found, err := e.signer.Lookup(ctx, step.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("reconcile step %s: %w", step.ID, err)
		}
		if !found {
			continue
		}
		if _, err := e.markSubmitted(ctx, recordID, step, ref); err != nil {
			return nil, err
		}
	}
	return e.store.Get(ctx, recordID)
}

// cascade fails every pending step whose dependency failed. It returns the
// number of steps it failed.
func (e *Executor) cascade(ctx context.Context, rec *domain.BurnRecord) (int, error) {
	n := 0
	for _, step := range rec.Plan.Steps {
		if step.Status != domain.StepPending {
			continue
		}
		for _, dep := range step.DependsOn {
			d := rec.Plan.Step(dep)
			if d == nil || d.Status != domain.StepFailed {
				continue
			}
			_, err := e.update(ctx, rec.ID, step, storage.StepUpdate{
				Status: domain.StepFailed,
				Reason: domain.ReasonDependencyFailed,
				Detail: fmt.Sprintf("dependency %s failed", dep),
			})
			if err != nil {
				return n, err
			}
			n++
			break
		}
	}
	return n, nil
}

// readySteps returns steps that are already in flight plus pending steps
// whose dependencies have all confirmed.
func readySteps(plan *domain.ExecutionPlan) []domain.ExecutionStep {
	var ready []domain.ExecutionStep
	for _, step := range plan.Steps {
		switch step.Status {
		case domain.StepSubmitted:
			ready = append(ready, step)
		case domain.StepPending:
			ok := true
			for _, dep := range step.DependsOn {
				d := plan.Step(dep)
				if d == nil || d.Status != domain.StepConfirmed {
					ok = false
					break
				}
			}
			if ok {
				ready = append(ready, step)
			}
		}
	}
	return ready
}

func (e *Executor) runStep(ctx context.Context, recordID string, step domain.ExecutionStep) error {
	log := e.log.With("record", recordID, "step", step.ID, "chain", step.Chain)

	if step.Status.IsTerminal() {
		return nil
	}
	if step.Status == domain.StepSubmitted && step.TxRef != "" {
		// In flight from an earlier run. Never resubmit, only poll again.
		resumed, err := e.update(ctx, recordID, step, storage.StepUpdate{
			Status:  domain.StepSubmitted,
			TxRef:   step.TxRef,
			Attempt: step.Attempt + 1,
		})
		if err != nil {
			return err
		}
		log.Info("resuming confirmation polling", "tx", step.TxRef, "attempt", resumed.Attempt)
		return e.poll(ctx, recordID, resumed)
	}

	ref, found, err := e.signer.Lookup(ctx, step.IdempotencyKey)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// Submit carries the same key, so the signer still drops a duplicate.
		log.Warn("signer lookup failed", "error", err)
	case found:
		log.Info("signer already broadcast step", "tx", ref)
		submitted, err := e.markSubmitted(ctx, recordID, step, ref)
		if err != nil {
			return err
		}
		return e.poll(ctx, recordID, submitted)
	}

	if step.Kind == domain.StepBridge && e.bridge == nil {
		return e.fail(ctx, recordID, step, domain.ReasonSubmissionRejected, "bridging disabled")
	}
	if _, ok := e.chains.Get(step.Chain); !ok && step.Kind != domain.StepBridge {
		return e.fail(ctx, recordID, step, domain.ReasonSubmissionRejected, fmt.Sprintf("no adapter for chain %s", step.Chain))
	}

	if step.Kind == domain.StepSwap && step.Quote != nil && e.quotes != nil && e.quotes.IsStale(*step.Quote) {
		q, err := e.quotes.Refresh(ctx, *step.Quote, step.From, step.Recipient)
		if err != nil {
			return e.fail(ctx, recordID, step, domain.FailureReason(err), err.Error())
		}
		step, err = e.update(ctx, recordID, step, storage.StepUpdate{Status: domain.StepPending, Quote: &q})
		if err != nil {
			return err
		}
		log.Info("refreshed stale quote", "min_out", q.MinOutputAmount.String())
		if err := e.resizeForwards(ctx, recordID, step); err != nil {
			return err
		}
	}

	payload, err := e.payload(step)
	if err != nil {
		return e.fail(ctx, recordID, step, domain.ReasonSubmissionRejected, err.Error())
	}

	chainCfg, _ := e.cfg.Chain(step.Chain)
	ref, err = e.signer.Submit(ctx, signer.TxRequest{
		IdempotencyKey: step.IdempotencyKey,
		Chain:          step.Chain,
		ChainID:        chainCfg.NumericID,
		From:           step.From,
		Kind:           step.Kind,
		Action:         step.Action,
		Payload:        *payload,
	})
	if err != nil {
		log.Warn("submission failed", "error", err)
		return e.fail(ctx, recordID, step, domain.FailureReason(err), err.Error())
	}

	submitted, err := e.markSubmitted(ctx, recordID, step, ref)
	if err != nil {
		return err
	}
	log.Info("step submitted", "tx", ref, "kind", step.Kind)
	return e.poll(ctx, recordID, submitted)
}

// resizeForwards sets the amount of every pending forward that moves the
// output of swap to the swap's guaranteed output.
func (e *Executor) resizeForwards(ctx context.Context, recordID string, swap domain.ExecutionStep) error {
	rec, err := e.store.Get(ctx, recordID)
	if err != nil {
		return fmt.Errorf("load record %s: %w", recordID, err)
	}
	for _, fwd := range rec.Plan.Steps {
		if fwd.Kind != domain.StepForward || fwd.Status != domain.StepPending || !slices.Contains(fwd.DependsOn, swap.ID) {
			continue
		}
		if fwd.Token != swap.OutputToken || fwd.AmountIn.Cmp(swap.MinAmountOut) == 0 {
			continue
		}
		amt := swap.MinAmountOut
		if _, err := e.update(ctx, recordID, fwd, storage.StepUpdate{Status: domain.StepPending, AmountIn: &amt}); err != nil {
			return err
		}
		e.log.Info("resized forward to refreshed swap output", "record", recordID, "step", fwd.ID,
			"from", fwd.AmountIn.String(), "to", amt.String())
	}
	return nil
}

func (e *Executor) payload(step domain.ExecutionStep) (*domain.TxPayload, error) {
	switch step.Kind {
	case domain.StepTransfer, domain.StepForward:
		a, ok := e.chains.Get(step.Chain)
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedChain, step.Chain)
		}
		if step.Action == domain.ActionApprove {
			return a.BuildApprove(step.Token, step.Recipient, step.AmountIn)
		}
		return a.BuildTransfer(step.Token, step.Recipient, step.AmountIn)
	case domain.StepSwap:
		if step.Quote == nil || step.Quote.Tx == nil {
			return nil, fmt.Errorf("swap step %s has no quote transaction", step.ID)
		}
		return step.Quote.Tx, nil
	case domain.StepBridge:
		if step.BridgeQuote == nil || step.BridgeQuote.Tx == nil {
			return nil, fmt.Errorf("bridge step %s has no quote transaction", step.ID)
		}
		return step.BridgeQuote.Tx, nil
	}
	return nil, fmt.Errorf("unknown step kind %q", step.Kind)
}

func (e *Executor) markSubmitted(ctx context.Context, recordID string, step domain.ExecutionStep, ref string) (domain.ExecutionStep, error) {
	return e.update(ctx, recordID, step, storage.StepUpdate{
		Status:  domain.StepSubmitted,
		TxRef:   ref,
		Attempt: step.Attempt + 1,
	})
}

type statusFunc func(ctx context.Context, txRef string) (domain.TxStatus, error)

// statusSource picks the poll cadence and status check for a step. Bridge
// hops are followed through the bridge status API, everything else on its
// chain.
func (e *Executor) statusSource(step domain.ExecutionStep) (time.Duration, int, statusFunc, error) {
	if step.Kind == domain.StepBridge {
		if e.bridge == nil || step.BridgeQuote == nil {
			return 0, 0, nil, errors.New("bridge status unavailable")
		}
		q := *step.BridgeQuote
		return e.cfg.Bridge.PollInterval, e.cfg.Bridge.MaxPollAttempts, func(ctx context.Context, ref string) (domain.TxStatus, error) {
			return e.bridge.Status(ctx, q, ref)
		}, nil
	}
	a, ok := e.chains.Get(step.Chain)
	if !ok {
		return 0, 0, nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedChain, step.Chain)
	}
	chainCfg, _ := e.cfg.Chain(step.Chain)
	return chainCfg.PollInterval, chainCfg.MaxPollAttempts, a.TxStatus, nil
}

// poll waits for a submitted step to confirm or revert. Running out of
// attempts fails the step; it is never resubmitted.
func (e *Executor) poll(ctx context.Context, recordID string, step domain.ExecutionStep) error {
	interval, attempts, check, err := e.statusSource(step)
	if err != nil {
		return e.fail(ctx, recordID, step, domain.ReasonConfirmationTimeout, "unknown, check explorer: "+e.txURL(step))
	}
	log := e.log.With("record", recordID, "step", step.ID, "tx", step.TxRef)

	for i := 0; i < attempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.clock.After(interval):
		}

		st, err := check(ctx, step.TxRef)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Debug("status check failed", "attempt", i+1, "error", err)
			continue
		}
		switch st {
		case domain.TxConfirmed:
			return e.confirm(ctx, recordID, step)
		case domain.TxReverted:
			return e.fail(ctx, recordID, step, domain.ReasonTransactionReverted, fmt.Sprintf("transaction reverted: %s", e.txURL(step)))
		}
	}

	log.Warn("confirmation timed out", "attempts", attempts)
	return e.fail(ctx, recordID, step, domain.ReasonConfirmationTimeout, "unknown, check explorer: "+e.txURL(step))
}

func (e *Executor) confirm(ctx context.Context, recordID string, step domain.ExecutionStep) error {
	confirmed, err := e.update(ctx, recordID, step, storage.StepUpdate{
		Status: domain.StepConfirmed,
		TxRef:  step.TxRef,
	})
	if err != nil {
		return err
	}
	if confirmed.SubmittedAt != nil && confirmed.ConfirmedAt != nil {
		metrics.StepConfirmationLatency.WithLabelValues(string(step.Chain), string(step.Kind)).
			Observe(confirmed.ConfirmedAt.Sub(*confirmed.SubmittedAt).Seconds())
	}
	return nil
}

func (e *Executor) fail(ctx context.Context, recordID string, step domain.ExecutionStep, reason, detail string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := e.update(ctx, recordID, step, storage.StepUpdate{
		Status: domain.StepFailed,
		TxRef:  step.TxRef,
		Reason: reason,
		Detail: detail,
	})
	return err
}

// update writes a step change and publishes it. It returns the step as
// stored.
func (e *Executor) update(ctx context.Context, recordID string, step domain.ExecutionStep, u storage.StepUpdate) (domain.ExecutionStep, error) {
	u.At = e.clock.Now()
	rec, err := e.store.UpdateStepStatus(ctx, recordID, step.ID, u)
	if err != nil {
		return step, fmt.Errorf("update step %s: %w", step.ID, err)
	}
	stored := rec.Plan.Step(step.ID)
	if stored == nil {
		return step, fmt.Errorf("%w: %s", domain.ErrUnknownStep, step.ID)
	}
	if u.Status != step.Status {
		metrics.StepTransitions.WithLabelValues(string(step.Chain), string(step.Kind), string(u.Status)).Inc()
	}
	e.emit(ctx, domain.NewBurnEvent(domain.EventStepUpdated, rec, stored, u.At))
	return *stored, nil
}

func (e *Executor) emit(ctx context.Context, ev *domain.BurnEvent) {
	if err := e.events.Emit(ctx, ev); err != nil {
		e.log.Warn("failed to emit event", "type", ev.Type, "record", ev.RecordID, "error", err)
	}
}

func (e *Executor) txURL(step domain.ExecutionStep) string {
	chainCfg, ok := e.cfg.Chain(step.Chain)
	if !ok {
		return step.TxRef
	}
	if url := chainCfg.Info().TxURL(step.TxRef); url != "" {
		return url
	}
	return step.TxRef
}
