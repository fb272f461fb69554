package httpapi

import (
	"context"
	"time"

	retry "github.com/sethvargo/go-retry"

	"github.com/vietddude/burnrelay/internal/core/clock"
)

// Backoff bounds retries of an external call.
type Backoff struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter adds up to +/- this much to every delay.
	Jitter time.Duration
}

// Do runs fn until it succeeds, returns an error retryable rejects, or the
// attempts run out. Delays are exponential and waited on clk. It returns the
// number of attempts made and the last error.
func Do(ctx context.Context, clk clock.Clock, b Backoff, retryable func(error) bool, fn func(context.Context) error) (int, error) {
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = 1
	}
	if b.BaseDelay <= 0 {
		b.BaseDelay = 500 * time.Millisecond
	}
	policy := retry.WithMaxRetries(uint64(b.MaxAttempts-1), retry.NewExponential(b.BaseDelay))
	if b.Jitter > 0 {
		policy = retry.WithJitter(b.Jitter, policy)
	}
	if b.MaxDelay > 0 {
		policy = retry.WithCappedDuration(b.MaxDelay, policy)
	}

	attempts := 0
	for {
		attempts++
		err := fn(ctx)
		if err == nil || !retryable(err) {
			return attempts, err
		}
		delay, stop := policy.Next()
		if stop {
			return attempts, err
		}
		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-clk.After(delay):
		}
	}
}
