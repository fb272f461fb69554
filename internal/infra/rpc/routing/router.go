// Package routing handles provider selection and failover logic.
//
// This package contains:
//   - Router: interface for provider selection and health tracking
//   - DefaultRouter: round-robin implementation with a circuit breaker
//   - Retry: retry logic with exponential backoff and failover
package routing

import (
	"sync"
	"time"

	"github.com/vietddude/burnrelay/internal/infra/rpc/provider"
)

// Router handles provider selection and health tracking.
type Router interface {
	// AddProvider registers a provider for a specific chain
	AddProvider(chainID string, p provider.Provider)

	// Candidates returns the providers to try for a chain, best first
	Candidates(chainID string) []provider.Provider

	// GetAllProviders returns all providers for a chain
	GetAllProviders(chainID string) []provider.Provider

	// RecordSuccess tracks successful calls
	RecordSuccess(providerName string, latency time.Duration)

	// RecordFailure tracks failed calls
	RecordFailure(providerName string, err error)
}

type providerMetrics struct {
	successCount     int
	failureCount     int
	totalLatency     time.Duration
	lastSuccessAt    time.Time
	lastFailureAt    time.Time
	consecutiveFails int
	circuitOpenUntil time.Time
}

// DefaultRouter implements provider selection with a circuit breaker.
type DefaultRouter struct {
	mu             sync.RWMutex
	chainProviders map[string][]provider.Provider
	providerHealth map[string]*providerMetrics
	nextIndex      map[string]int

	failureThreshold int
	cooldown         time.Duration
	now              func() time.Time
}

// NewRouter creates a new router with round-robin rotation.
func NewRouter() *DefaultRouter {
	return &DefaultRouter{
		chainProviders:   make(map[string][]provider.Provider),
		providerHealth:   make(map[string]*providerMetrics),
		nextIndex:        make(map[string]int),
		failureThreshold: 5,
		cooldown:         30 * time.Second,
		now:              time.Now,
	}
}

// AddProvider registers a provider for a chain.
func (r *DefaultRouter) AddProvider(chainID string, p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.chainProviders[chainID] = append(r.chainProviders[chainID], p)
	r.providerHealth[p.GetName()] = &providerMetrics{
		lastSuccessAt: r.now(),
	}
}

// Candidates returns available providers starting from the round-robin
// cursor, followed by providers with an open circuit as a last resort.
func (r *DefaultRouter) Candidates(chainID string) []provider.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	providers := r.chainProviders[chainID]
	if len(providers) == 0 {
		return nil
	}

	start := r.nextIndex[chainID] % len(providers)
	r.nextIndex[chainID] = start + 1

	now := r.now()
	var healthy, tripped []provider.Provider
	for i := range providers {
		p := providers[(start+i)%len(providers)]
		m := r.providerHealth[p.GetName()]
		if (m != nil && now.Before(m.circuitOpenUntil)) || !p.IsAvailable() {
			tripped = append(tripped, p)
			continue
		}
		healthy = append(healthy, p)
	}
	return append(healthy, tripped...)
}

// GetAllProviders returns all providers for a chain.
func (r *DefaultRouter) GetAllProviders(chainID string) []provider.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := r.chainProviders[chainID]
	result := make([]provider.Provider, len(providers))
	copy(result, providers)
	return result
}

// RecordSuccess records a successful call.
func (r *DefaultRouter) RecordSuccess(providerName string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, ok := r.providerHealth[providerName]
	if !ok {
		return
	}

	metrics.successCount++
	metrics.totalLatency += latency
	metrics.lastSuccessAt = r.now()
	metrics.consecutiveFails = 0
	metrics.circuitOpenUntil = time.Time{}
}

// RecordFailure records a failed call.
func (r *DefaultRouter) RecordFailure(providerName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics, ok := r.providerHealth[providerName]
	if !ok {
		return
	}

	metrics.failureCount++
	metrics.lastFailureAt = r.now()
	metrics.consecutiveFails++

	if metrics.consecutiveFails >= r.failureThreshold {
		metrics.circuitOpenUntil = metrics.lastFailureAt.Add(r.cooldown)
	}
}

// CircuitOpen reports whether the provider is currently tripped.
func (r *DefaultRouter) CircuitOpen(providerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.providerHealth[providerName]
	return ok && r.now().Before(m.circuitOpenUntil)
}
