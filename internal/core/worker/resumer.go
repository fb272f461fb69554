// Package worker holds background loops that run beside the API.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/core/status"
	"github.com/vietddude/burnrelay/internal/infra/storage"
)

const pageSize = 200

// Lister is the read side of the burn store.
type Lister interface {
	List(ctx context.Context, f storage.ListFilter, limit, offset int) ([]*domain.BurnRecord, error)
}

// Launcher re-drives a stored record, reporting false when it is settled
// or owned by another process.
type Launcher interface {
	Resume(ctx context.Context, id string) (bool, error)
}

// Resumer picks up records whose execution stopped, either because the
// process restarted or because the owning replica died.
type Resumer struct {
	cfg   config.ExecutionConfig
	store Lister
	burns Launcher
	clock clock.Clock
	log   *slog.Logger
}

func NewResumer(cfg config.ExecutionConfig, store Lister, burns Launcher, clk clock.Clock) *Resumer {
	if clk == nil {
		clk = clock.New()
	}
	return &Resumer{
		cfg:   cfg,
		store: store,
		burns: burns,
		clock: clk,
		log:   slog.Default().With("component", "resumer"),
	}
}

// resumable lists the aggregates a record can have while steps are still
// open. Failed and partially failed records may have siblings in flight.
var resumable = []domain.PlanStatus{
	domain.PlanPending, domain.PlanInProgress, domain.PlanPartiallyFailed, domain.PlanFailed,
}

// Start sweeps every unsettled record once, then periodically sweeps
// unsettled records that have not been touched within the grace period.
// It blocks until ctx is done.
func (r *Resumer) Start(ctx context.Context) {
	interval := max(r.cfg.ResumeInterval, time.Second)

	n := r.Sweep(ctx, storage.ListFilter{Statuses: resumable})
	r.log.Info("startup sweep finished", "resumed", n)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(interval):
		}
		r.Sweep(ctx, storage.ListFilter{
			Statuses:      resumable,
			UpdatedBefore: r.clock.Now().Add(-r.cfg.ResumeGrace),
		})
	}
}

// Sweep resumes every unsettled record matching f and returns how many
// were launched.
func (r *Resumer) Sweep(ctx context.Context, f storage.ListFilter) int {
	var ids []string
	for offset := 0; ; offset += pageSize {
		page, err := r.store.List(ctx, f, pageSize, offset)
		if err != nil {
			r.log.Error("failed to list records", "error", err)
			return 0
		}
		for _, rec := range page {
			if rec.Plan != nil && !status.Settled(rec.Plan.Steps) {
				ids = append(ids, rec.ID)
			}
		}
		if len(page) < pageSize {
			break
		}
	}

	resumed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return resumed
		}
		ok, err := r.burns.Resume(ctx, id)
		if err != nil {
			r.log.Warn("failed to resume record", "record", id, "error", err)
			continue
		}
		if ok {
			resumed++
			r.log.Info("Resumed execution", "record", id)
		}
	}
	return resumed
}
