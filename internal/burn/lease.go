package burn

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/burnrelay/internal/core/clock"
)

// Lease makes sure only one process drives a record at a time.
type Lease interface {
	Acquire(ctx context.Context, recordID string) (bool, error)
	Refresh(ctx context.Context, recordID string) (bool, error)
	Release(ctx context.Context, recordID string) error
	Held(ctx context.Context, recordID string) (bool, error)
}

// RedisLeaser is the subset of the redis client the lease needs.
type RedisLeaser interface {
	AcquireLease(ctx context.Context, recordID, owner string, ttl time.Duration) (bool, error)
	RefreshLease(ctx context.Context, recordID, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, recordID, owner string) error
	LeaseHeld(ctx context.Context, recordID string) (bool, error)
}

// RedisLease is a SETNX lease shared by every replica.
type RedisLease struct {
	client RedisLeaser
	owner  string
	ttl    time.Duration
}

func NewRedisLease(client RedisLeaser, owner string, ttl time.Duration) *RedisLease {
	return &RedisLease{client: client, owner: owner, ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context, recordID string) (bool, error) {
	return l.client.AcquireLease(ctx, recordID, l.owner, l.ttl)
}

func (l *RedisLease) Refresh(ctx context.Context, recordID string) (bool, error) {
	return l.client.RefreshLease(ctx, recordID, l.owner, l.ttl)
}

func (l *RedisLease) Release(ctx context.Context, recordID string) error {
	return l.client.ReleaseLease(ctx, recordID, l.owner)
}

func (l *RedisLease) Held(ctx context.Context, recordID string) (bool, error) {
	return l.client.LeaseHeld(ctx, recordID)
}

// MemoryLease is a single-process lease with expiry.
type MemoryLease struct {
	mu     sync.Mutex
	ttl    time.Duration
	clock  clock.Clock
	leases map[string]time.Time
}

func NewMemoryLease(ttl time.Duration, clk clock.Clock) *MemoryLease {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryLease{ttl: ttl, clock: clk, leases: make(map[string]time.Time)}
}

func (l *MemoryLease) live(recordID string) bool {
	until, ok := l.leases[recordID]
	return ok && l.clock.Now().Before(until)
}

func (l *MemoryLease) Acquire(_ context.Context, recordID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.live(recordID) {
		return false, nil
	}
	l.leases[recordID] = l.clock.Now().Add(l.ttl)
	return true, nil
}

func (l *MemoryLease) Refresh(_ context.Context, recordID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.leases[recordID]; !ok {
		return false, nil
	}
	l.leases[recordID] = l.clock.Now().Add(l.ttl)
	return true, nil
}

func (l *MemoryLease) Release(_ context.Context, recordID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.leases, recordID)
	return nil
}

func (l *MemoryLease) Held(_ context.Context, recordID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live(recordID), nil
}
