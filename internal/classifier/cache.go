package classifier

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/domain"
)

// Cache stores classifications between requests of the same session.
type Cache interface {
	Get(ctx context.Context, key string) (domain.TokenClassification, bool)
	Set(ctx context.Context, key string, tc domain.TokenClassification, ttl time.Duration)
}

type cacheEntry struct {
	value     domain.TokenClassification
	expiresAt time.Time
}

// MemoryCache is an in-process Cache with per-entry expiry.
type MemoryCache struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]cacheEntry
}

func NewMemoryCache(clk clock.Clock) *MemoryCache {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryCache{clock: clk, entries: make(map[string]cacheEntry)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (domain.TokenClassification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return domain.TokenClassification{}, false
	}
	if !c.clock.Now().Before(e.expiresAt) {
		delete(c.entries, key)
		return domain.TokenClassification{}, false
	}
	return e.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, tc domain.TokenClassification, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{value: tc, expiresAt: c.clock.Now().Add(ttl)}
}
