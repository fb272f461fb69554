package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/httpapi"
	"github.com/vietddude/burnrelay/internal/infra/storage"
	"github.com/vietddude/burnrelay/internal/metrics"
)

// burnRow mirrors the burn_records table.
type burnRow struct {
	ID                string        `db:"id"`
	WalletAddress     string        `db:"wallet_address"`
	DestinationWallet string        `db:"destination_wallet"`
	SourceChain       string        `db:"source_chain"`
	TokenAddress      string        `db:"token_address"`
	TokenSymbol       string        `db:"token_symbol"`
	TokenDecimals     int32         `db:"token_decimals"`
	Amount            domain.Amount `db:"amount"`
	Mode              string        `db:"mode"`
	Status            string        `db:"status"`
	Plan              string        `db:"plan"`
	Version           int64         `db:"version"`
	CreatedAt         time.Time     `db:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at"`
}

const burnColumns = `id, wallet_address, destination_wallet, source_chain, token_address,
	token_symbol, token_decimals, amount, mode, status, plan, version, created_at, updated_at`

func toRow(rec *domain.BurnRecord) (*burnRow, error) {
	plan, err := json.Marshal(rec.Plan)
	if err != nil {
		return nil, fmt.Errorf("failed to encode plan: %w", err)
	}
	return &burnRow{
		ID:                rec.ID,
		WalletAddress:     rec.WalletAddress,
		DestinationWallet: rec.DestinationWallet,
		SourceChain:       string(rec.SourceChain),
		TokenAddress:      rec.TokenAddress,
		TokenSymbol:       rec.TokenSymbol,
		TokenDecimals:     rec.TokenDecimals,
		Amount:            rec.Amount,
		Mode:              string(rec.Mode),
		Status:            string(rec.Status),
		Plan:              string(plan),
		Version:           rec.Version,
		CreatedAt:         rec.CreatedAt.UTC(),
		UpdatedAt:         rec.UpdatedAt.UTC(),
	}, nil
}

func (r *burnRow) record() (*domain.BurnRecord, error) {
	rec := &domain.BurnRecord{
		ID:                r.ID,
		WalletAddress:     r.WalletAddress,
		DestinationWallet: r.DestinationWallet,
		SourceChain:       domain.ChainID(r.SourceChain),
		TokenAddress:      r.TokenAddress,
		TokenSymbol:       r.TokenSymbol,
		TokenDecimals:     r.TokenDecimals,
		Amount:            r.Amount,
		Mode:              domain.AllocationMode(r.Mode),
		Status:            domain.PlanStatus(r.Status),
		Version:           r.Version,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.Plan), &rec.Plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan of %s: %w", r.ID, err)
	}
	return rec, nil
}

// BurnRepo implements storage.BurnRepository using PostgreSQL.
type BurnRepo struct {
	db      *DB
	retries int
	clock   clock.Clock
	log     *slog.Logger
}

const defaultConflictRetries = 20

// errVersionLost marks one lost optimistic-lock race.
var errVersionLost = errors.New("version changed underneath the update")

// conflictBackoff spaces out retries after a lost version race.
var conflictBackoff = httpapi.Backoff{
	BaseDelay: 10 * time.Millisecond,
	MaxDelay:  250 * time.Millisecond,
	Jitter:    5 * time.Millisecond,
}

// retryConflicts runs fn until it stops losing version races, waiting on clk
// between attempts. Exhausting the attempts yields ErrConcurrentUpdateConflict.
func retryConflicts(ctx context.Context, clk clock.Clock, attempts int, fn func(ctx context.Context, attempt int) error) error {
	b := conflictBackoff
	b.MaxAttempts = attempts
	n := 0
	tried, err := httpapi.Do(ctx, clk, b, func(err error) bool {
		return errors.Is(err, errVersionLost)
	}, func(ctx context.Context) error {
		n++
		return fn(ctx, n)
	})
	if errors.Is(err, errVersionLost) {
		return fmt.Errorf("%w: after %d attempts", domain.ErrConcurrentUpdateConflict, tried)
	}
	return err
}

var _ storage.BurnRepository = (*BurnRepo)(nil)

// NewBurnRepo creates a new PostgreSQL burn repository. retries bounds the
// optimistic-lock retries of UpdateStepStatus.
func NewBurnRepo(db *DB, retries int) *BurnRepo {
	if retries <= 0 {
		retries = defaultConflictRetries
	}
	return &BurnRepo{db: db, retries: retries, clock: clock.New(), log: slog.Default().With("component", "burn_repo")}
}

// Create inserts a new record.
func (r *BurnRepo) Create(ctx context.Context, rec *domain.BurnRecord) error {
	if rec.Version == 0 {
		rec.Version = 1
	}
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	query := `INSERT INTO burn_records (` + burnColumns + `) VALUES (
		:id, :wallet_address, :destination_wallet, :source_chain, :token_address,
		:token_symbol, :token_decimals, :amount, :mode, :status, :plan, :version, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to create burn record: %w", err)
	}
	return nil
}

// Get retrieves a record by id.
func (r *BurnRepo) Get(ctx context.Context, id string) (*domain.BurnRecord, error) {
	var row burnRow
	err := r.db.GetContext(ctx, &row, `SELECT `+burnColumns+` FROM burn_records WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get burn record: %w", err)
	}
	return row.record()
}

// UpdateStepStatus reads the record, applies the update and writes it back
// guarded by the version column. Lost races are retried with backoff.
func (r *BurnRepo) UpdateStepStatus(ctx context.Context, recordID, stepID string, u storage.StepUpdate) (*domain.BurnRecord, error) {
	var out *domain.BurnRecord
	err := retryConflicts(ctx, r.clock, r.retries, func(ctx context.Context, attempt int) error {
		rec, err := r.Get(ctx, recordID)
		if err != nil {
			return err
		}
		prev := rec.Version
		changed, err := storage.ApplyStepUpdate(rec, stepID, u)
		if err != nil {
			return err
		}
		if !changed {
			out = rec
			return nil
		}

		plan, err := json.Marshal(rec.Plan)
		if err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		res, err := r.db.ExecContext(ctx, `
			UPDATE burn_records
			SET status = $1, plan = $2, version = $3, updated_at = $4
			WHERE id = $5 AND version = $6`,
			string(rec.Status), string(plan), rec.Version, rec.UpdatedAt.UTC(), recordID, prev,
		)
		if err != nil {
			return fmt.Errorf("failed to update burn record: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to update burn record: %w", err)
		}
		if n == 1 {
			out = rec
			return nil
		}
		metrics.StoreConflicts.Inc()
		r.log.Debug("version conflict, retrying", "record", recordID, "step", stepID, "attempt", attempt)
		return errVersionLost
	})
	if err != nil {
		if errors.Is(err, domain.ErrConcurrentUpdateConflict) {
			return nil, fmt.Errorf("record %s step %s: %w", recordID, stepID, err)
		}
		return nil, err
	}
	return out, nil
}

// List returns matching records, newest first.
func (r *BurnRepo) List(ctx context.Context, f storage.ListFilter, limit, offset int) ([]*domain.BurnRecord, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Wallet != "" {
		p := arg(f.Wallet)
		where = append(where, fmt.Sprintf("(wallet_address = %s OR (wallet_address ILIKE '0x%%' AND lower(wallet_address) = lower(%s)))", p, p))
	}
	if len(f.Statuses) > 0 {
		ph := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ph[i] = arg(string(s))
		}
		where = append(where, "status IN ("+strings.Join(ph, ", ")+")")
	}
	if f.Chain != "" {
		where = append(where, "source_chain = "+arg(string(f.Chain)))
	}
	if f.Token != "" {
		p := arg(f.Token)
		where = append(where, fmt.Sprintf("(token_address = %s OR (token_address ILIKE '0x%%' AND lower(token_address) = lower(%s)))", p, p))
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= "+arg(f.Since.UTC()))
	}
	if !f.UpdatedBefore.IsZero() {
		where = append(where, "updated_at < "+arg(f.UpdatedBefore.UTC()))
	}

	query := `SELECT ` + burnColumns + ` FROM burn_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT " + arg(limit)
	}
	if offset > 0 {
		query += " OFFSET " + arg(offset)
	}

	var rows []burnRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list burn records: %w", err)
	}
	out := make([]*domain.BurnRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
