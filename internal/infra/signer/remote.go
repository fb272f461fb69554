// Package signer submits transactions through the external signing service.
package signer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/config"
	"github.com/vietddude/burnrelay/internal/core/domain"
	"github.com/vietddude/burnrelay/internal/infra/httpapi"
)

// TxRequest is one transaction to sign and broadcast.
type TxRequest struct {
	IdempotencyKey string            `json:"idempotency_key"`
	Chain          domain.ChainID    `json:"chain"`
	ChainID        string            `json:"chain_id"`
	From           string            `json:"from"`
	Kind           domain.StepKind   `json:"kind"`
	Action         domain.StepAction `json:"action,omitempty"`
	Payload        domain.TxPayload  `json:"payload"`
}

type txResponse struct {
	TxRef string `json:"tx_ref"`
}

type errorResponse struct {
	Code    any    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Signer submits a transaction and returns its reference.
type Signer interface {
	Submit(ctx context.Context, req TxRequest) (string, error)
	// Lookup returns the reference of a transaction previously submitted
	// under key, if the signer has one.
	Lookup(ctx context.Context, key string) (string, bool, error)
}

// Remote is the HTTP signer client.
type Remote struct {
	api     *httpapi.Client
	backoff httpapi.Backoff
	clock   clock.Clock
	log     *slog.Logger
}

var _ Signer = (*Remote)(nil)

func NewRemote(cfg config.SignerConfig, clk clock.Clock) *Remote {
	if clk == nil {
		clk = clock.New()
	}
	api := httpapi.NewClient(cfg.URL, cfg.RequestTimeout)
	if cfg.APIKey != "" {
		api.WithHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	return &Remote{
		api: api,
		backoff: httpapi.Backoff{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		clock: clk,
		log:   slog.Default().With("component", "signer"),
	}
}

// classify maps a signer failure onto the submission taxonomy.
func classify(err error) error {
	var se *httpapi.StatusError
	if !errors.As(err, &se) {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrSignerUnavailable, err)
	}

	var body errorResponse
	_ = json.Unmarshal([]byte(se.Body), &body)
	code := strings.ToLower(fmt.Sprint(body.Code))
	msg := body.Error
	if msg == "" {
		msg = body.Message
	}
	switch {
	case code == "4001" || code == "user_rejected" || strings.Contains(strings.ToLower(msg), "user rejected"):
		return fmt.Errorf("%w: %s", domain.ErrUserRejected, msg)
	case se.StatusCode == http.StatusServiceUnavailable || se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500:
		return fmt.Errorf("%w: %w", domain.ErrSignerUnavailable, err)
	default:
		return fmt.Errorf("%w: %s", domain.ErrSubmissionRejected, strings.TrimSpace(msg+" "+se.Body))
	}
}

func retryable(err error) bool {
	return errors.Is(err, domain.ErrSignerUnavailable)
}

// Submit posts the transaction. The idempotency key lets the signer drop a
// duplicate of a request it already broadcast. An unavailable signer is
// retried and then reported as a rejected submission.
func (r *Remote) Submit(ctx context.Context, req TxRequest) (string, error) {
	var resp txResponse
	attempts, err := httpapi.Do(ctx, r.clock, r.backoff, retryable, func(ctx context.Context) error {
		if err := r.api.Post(ctx, "/v1/transactions", req, &resp); err != nil {
			return classify(err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrSignerUnavailable) {
			r.log.Error("Signer unavailable", "key", req.IdempotencyKey, "attempts", attempts, "error", err)
			return "", fmt.Errorf("%w: %w", domain.ErrSubmissionRejected, err)
		}
		return "", err
	}
	if resp.TxRef == "" {
		return "", fmt.Errorf("%w: signer returned no transaction reference", domain.ErrSubmissionRejected)
	}
	return resp.TxRef, nil
}

func (r *Remote) Lookup(ctx context.Context, key string) (string, bool, error) {
	var resp txResponse
	err := r.api.Get(ctx, "/v1/transactions/"+url.PathEscape(key), nil, &resp)
	if err != nil {
		var se *httpapi.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("signer lookup: %w", err)
	}
	return resp.TxRef, resp.TxRef != "", nil
}
