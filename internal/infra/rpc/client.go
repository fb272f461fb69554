package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/burnrelay/internal/infra/rpc/routing"
	"github.com/vietddude/burnrelay/internal/metrics"
)

// RPCClient is what chain adapters depend on.
type RPCClient interface {
	// Call executes method and decodes the result into out. out may be nil.
	Call(ctx context.Context, out any, method string, params ...any) error

	// Execute runs an operation and returns the raw result.
	Execute(ctx context.Context, op Operation) (json.RawMessage, error)
}

// Client is the high-level RPC client for one chain.
type Client struct {
	chainID string
	router  routing.Router
	retry   RetryConfig
}

var _ RPCClient = (*Client)(nil)

// NewClient creates a new RPC client.
func NewClient(chainID string, router routing.Router, retry RetryConfig) *Client {
	return &Client{
		chainID: chainID,
		router:  router,
		retry:   retry,
	}
}

// ChainID returns the chain this client talks to.
func (c *Client) ChainID() string {
	return c.chainID
}

// Execute makes an RPC call with automatic failover and retry.
func (c *Client) Execute(ctx context.Context, op Operation) (json.RawMessage, error) {
	start := time.Now()
	result, providerName, err := routing.CallWithRetryAndFailover(ctx, c.router, c.chainID, op, c.retry)
	if providerName == "" {
		providerName = "none"
	}

	metrics.RPCCallsTotal.WithLabelValues(c.chainID, providerName, op.Method).Inc()
	metrics.RPCLatency.WithLabelValues(c.chainID, providerName, op.Method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(c.chainID, providerName, errorType(err)).Inc()
		return nil, fmt.Errorf("%s %s: %w", c.chainID, op.Method, err)
	}
	return result, nil
}

// Call executes method and decodes the JSON result into out.
func (c *Client) Call(ctx context.Context, out any, method string, params ...any) error {
	raw, err := c.Execute(ctx, NewOperation(method, params...))
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode result: %w", c.chainID, method, err)
	}
	return nil
}

// Health returns the health of every provider for this chain.
func (c *Client) Health() map[string]HealthStatus {
	out := make(map[string]HealthStatus)
	for _, p := range c.router.GetAllProviders(c.chainID) {
		out[p.GetName()] = p.GetHealth()
	}
	return out
}

// IsTransient reports whether err means the chain could not be reached
// rather than that it gave a definitive answer.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRetriesExhausted) ||
		errors.Is(err, ErrAllProvidersFailed) ||
		errors.Is(err, context.DeadlineExceeded)
}

func errorType(err error) string {
	var rpcErr *RPCError
	var httpErr *HTTPError
	switch {
	case errors.As(err, &rpcErr):
		return "rpc"
	case errors.As(err, &httpErr):
		return fmt.Sprintf("http_%d", httpErr.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return routing.ClassifyError(err).String()
	}
}
