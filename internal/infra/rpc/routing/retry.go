package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/burnrelay/internal/infra/rpc/provider"
)

var (
	// ErrRetriesExhausted means every attempt against a provider hit a
	// transient failure.
	ErrRetriesExhausted = errors.New("rpc retries exhausted")

	// ErrAllProvidersFailed means every provider for the chain was tried.
	ErrAllProvidersFailed = errors.New("all rpc providers failed")
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    500 * time.Millisecond,
	MaxDelay:        10 * time.Second,
	BackoffMultiple: 2.0,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFailover
	ActionFatal
)

func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFailover:
		return "failover"
	default:
		return "fatal"
	}
}

// ClassifyError determines the action for a given error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry // Should not happen
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ActionFatal
	}

	var rpcErr *provider.RPCError
	if errors.As(err, &rpcErr) {
		msg := strings.ToLower(rpcErr.Message)
		switch {
		// -32700: Parse error, -32600: Invalid Request, -32601: Method not found, -32602: Invalid params
		case rpcErr.Code == -32700 || rpcErr.Code == -32600 ||
			rpcErr.Code == -32601 || rpcErr.Code == -32602:
			return ActionFatal
		case strings.Contains(msg, "execution reverted") || strings.Contains(msg, "revert"):
			return ActionFatal
		case strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota") ||
			strings.Contains(msg, "too many requests") || strings.Contains(msg, "count exceeded"):
			return ActionFailover
		default:
			// Node-side errors such as -32000 "header not found" are transient.
			return ActionRetry
		}
	}

	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests,
			httpErr.StatusCode == http.StatusForbidden,
			httpErr.StatusCode == http.StatusUnauthorized:
			return ActionFailover
		case httpErr.StatusCode >= 500:
			return ActionRetry
		default:
			return ActionFailover
		}
	}

	sLower := strings.ToLower(err.Error())
	if strings.Contains(sLower, "parse response") {
		return ActionFatal
	}
	if strings.Contains(sLower, "throttle") || strings.Contains(sLower, "rate limit") {
		return ActionFailover
	}

	// Default to Retry (Network, timeouts, etc)
	return ActionRetry
}

// CallWithRetry executes an operation with exponential backoff.
func CallWithRetry(
	ctx context.Context,
	p provider.Provider,
	op provider.Operation,
	config RetryConfig,
) ([]byte, error) {
	var lastErr error
	attempts := max(config.MaxAttempts, 1)

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := p.Execute(ctx, op)
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Classify error
		action := ClassifyError(err)
		if action == ActionFatal || action == ActionFailover {
			return nil, err // Stop here, the caller decides about the next provider
		}

		// ActionRetry: continue loop
		if attempt == attempts-1 {
			break
		}

		delay := calculateBackoff(attempt, config)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}

// CallWithRetryAndFailover tries every available provider with retry.
func CallWithRetryAndFailover(
	ctx context.Context,
	router Router,
	chainID string,
	op provider.Operation,
	config RetryConfig,
) ([]byte, string, error) {
	providers := router.Candidates(chainID)
	if len(providers) == 0 {
		return nil, "", fmt.Errorf("%w: no providers for chain %s", ErrAllProvidersFailed, chainID)
	}

	var lastErr error
	for _, p := range providers {
		start := time.Now()
		result, err := CallWithRetry(ctx, p, op, config)
		latency := time.Since(start)
		if err == nil {
			router.RecordSuccess(p.GetName(), latency)
			return result, p.GetName(), nil
		}

		lastErr = err

		// Check if Fatal
		if ClassifyError(err) == ActionFatal && !errors.Is(err, ErrRetriesExhausted) {
			return nil, p.GetName(), err
		}
		router.RecordFailure(p.GetName(), err)
	}

	return nil, "", fmt.Errorf("%w: %w", ErrAllProvidersFailed, lastErr)
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	multiple := config.BackoffMultiple
	if multiple <= 0 {
		multiple = 2.0
	}
	delay := float64(config.InitialDelay) * math.Pow(multiple, float64(attempt))
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
