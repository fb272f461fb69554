// Package provider implements RPC provider interfaces.
//
// This package contains:
//   - Provider interface: core abstraction for JSON-RPC endpoints
//   - HTTPProvider: JSON-RPC 2.0 over HTTP implementation
//   - ProviderMonitor: health and rate tracking
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Operation represents a JSON-RPC call to execute.
type Operation struct {
	// Method is the JSON-RPC method (e.g., "eth_call", "getSignatureStatuses")
	Method string

	// Params are the positional JSON-RPC params.
	Params []any
}

// Provider defines the core interface for an RPC endpoint.
type Provider interface {
	// GetName returns provider identifier (e.g., "alchemy", "helius")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// Execute performs the operation and returns the raw JSON result
	Execute(ctx context.Context, op Operation) (json.RawMessage, error)

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}

// RPCError is an error object returned inside a JSON-RPC response. The
// node answered, so the transport is healthy.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPError is a non-200 response from the endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}
