// Package rpc provides a resilient JSON-RPC client for EVM and Solana nodes.
//
// This package offers:
//   - Multiple provider support per chain (Alchemy, Helius, public nodes)
//   - Automatic failover with a per-provider circuit breaker
//   - Bounded retries with exponential backoff
//   - Health monitoring and Prometheus metrics
//
// # Quick Start
//
//	router := rpc.NewRouter()
//	router.AddProvider("base", rpc.NewHTTPProvider("alchemy", alchemyURL, 10*time.Second))
//	router.AddProvider("base", rpc.NewHTTPProvider("public", publicURL, 10*time.Second))
//
//	client := rpc.NewClient("base", router, rpc.DefaultRetryConfig)
//
//	var head hexutil.Uint64
//	err := client.Call(ctx, &head, "eth_blockNumber")
//
// Most types of the provider/ and routing/ sub-packages are re-exported here.
package rpc

import (
	"time"

	"github.com/vietddude/burnrelay/internal/infra/rpc/provider"
	"github.com/vietddude/burnrelay/internal/infra/rpc/routing"
)

// =============================================================================
// Re-exported types from provider package
// =============================================================================

// Provider is the core interface for RPC endpoints.
type Provider = provider.Provider

// HTTPProvider implements Provider for JSON-RPC over HTTP.
type HTTPProvider = provider.HTTPProvider

// HealthStatus represents the health state of a provider.
type HealthStatus = provider.HealthStatus

// RPCError is a JSON-RPC error object returned by a node.
type RPCError = provider.RPCError

// HTTPError is a non-200 response from an RPC endpoint.
type HTTPError = provider.HTTPError

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return provider.NewHTTPProvider(name, endpoint, timeout)
}

// =============================================================================
// Re-exported types from routing package
// =============================================================================

// Router handles provider selection and health tracking.
type Router = routing.Router

// DefaultRouter implements provider selection with a circuit breaker.
type DefaultRouter = routing.DefaultRouter

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// DefaultRetryConfig provides sensible retry defaults.
var DefaultRetryConfig = routing.DefaultRetryConfig

// Errors callers use to tell transient exhaustion from a definitive answer.
var (
	ErrRetriesExhausted   = routing.ErrRetriesExhausted
	ErrAllProvidersFailed = routing.ErrAllProvidersFailed
)

// NewRouter creates a new router with round-robin rotation.
func NewRouter() *DefaultRouter {
	return routing.NewRouter()
}
