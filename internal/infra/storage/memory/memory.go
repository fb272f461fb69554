package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/storage"
)

type entry struct {
	mu  sync.Mutex
	rec *domain.BurnRecord
}

// BurnRepo keeps burn records in process memory. Records are copied on the
// way in and out so callers never share state with the store.
type BurnRepo struct {
	mu      sync.RWMutex
	records map[string]*entry
}

var _ storage.BurnRepository = (*BurnRepo)(nil)

func NewBurnRepo() *BurnRepo {
	return &BurnRepo{records: make(map[string]*entry)}
}

func (r *BurnRepo) Create(ctx context.Context, rec *domain.BurnRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[rec.ID]; ok {
		return fmt.Errorf("burn record %s already exists", rec.ID)
	}
	cp := rec.Clone()
	if cp.Version == 0 {
		cp.Version = 1
	}
	r.records[rec.ID] = &entry{rec: cp}
	return nil
}

func (r *BurnRepo) lookup(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrRecordNotFound, id)
	}
	return e, nil
}

func (r *BurnRepo) Get(ctx context.Context, id string) (*domain.BurnRecord, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.Clone(), nil
}

func (r *BurnRepo) UpdateStepStatus(ctx context.Context, recordID, stepID string, u storage.StepUpdate) (*domain.BurnRecord, error) {
	e, err := r.lookup(recordID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	// Work on a copy so a rejected update leaves the stored record intact.
	next := e.rec.Clone()
	changed, err := storage.ApplyStepUpdate(next, stepID, u)
	if err != nil {
		return nil, err
	}
	if changed {
		e.rec = next
	}
	return e.rec.Clone(), nil
}

func (r *BurnRepo) List(ctx context.Context, f storage.ListFilter, limit, offset int) ([]*domain.BurnRecord, error) {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.records))
	for _, e := range r.records {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	var out []*domain.BurnRecord
	for _, e := range entries {
		e.mu.Lock()
		if f.Matches(e.rec) {
			out = append(out, e.rec.Clone())
		}
		e.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset > 0 {
		if offset >= len(out) {
			return []*domain.BurnRecord{}, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []*domain.BurnRecord{}
	}
	return out, nil
}
