package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/burnrelay/internal/infra/rpc/provider"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorAction
	}{
		{&provider.HTTPError{StatusCode: 429}, ActionFailover},
		{&provider.HTTPError{StatusCode: 403}, ActionFailover},
		{&provider.HTTPError{StatusCode: 502}, ActionRetry},
		{&provider.RPCError{Code: -32005, Message: "project rate limit exceeded"}, ActionFailover},
		{&provider.RPCError{Code: -32600, Message: "invalid request"}, ActionFatal},
		{&provider.RPCError{Code: -32601, Message: "method not found"}, ActionFatal},
		{&provider.RPCError{Code: 3, Message: "execution reverted"}, ActionFatal},
		{&provider.RPCError{Code: -32000, Message: "header not found"}, ActionRetry},
		{fmt.Errorf("wrapped: %w", &provider.RPCError{Code: -32602, Message: "invalid params"}), ActionFatal},
		{errors.New("parse response: unexpected end of JSON input"), ActionFatal},
		{errors.New("provider x throttled, retry after: 1m"), ActionFailover},
		{errors.New("connection reset by peer"), ActionRetry},
		{context.DeadlineExceeded, ActionFatal},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

type mockProvider struct {
	mu    sync.Mutex
	name  string
	errs  []error
	calls int
}

func (m *mockProvider) GetName() string { return m.name }

func (m *mockProvider) GetHealth() provider.HealthStatus {
	return provider.HealthStatus{Available: true}
}

func (m *mockProvider) IsAvailable() bool { return true }
func (m *mockProvider) Close() error      { return nil }

func (m *mockProvider) Execute(ctx context.Context, op provider.Operation) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return json.RawMessage(`"0x1"`), nil
}

var fastRetry = RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func TestCallWithRetry_RecoversFromTransient(t *testing.T) {
	p := &mockProvider{name: "a", errs: []error{errors.New("connection refused"), nil}}
	res, err := CallWithRetry(context.Background(), p, provider.Operation{Method: "eth_blockNumber"}, fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res) != `"0x1"` || p.calls != 2 {
		t.Errorf("expected success on second call, got %s after %d calls", res, p.calls)
	}
}

func TestCallWithRetry_Exhausted(t *testing.T) {
	transient := errors.New("connection refused")
	p := &mockProvider{name: "a", errs: []error{transient, transient, transient}}
	_, err := CallWithRetry(context.Background(), p, provider.Operation{Method: "eth_blockNumber"}, fastRetry)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 calls, got %d", p.calls)
	}
}

func TestCallWithRetryAndFailover(t *testing.T) {
	r := NewRouter()
	throttled := &mockProvider{name: "a", errs: []error{&provider.HTTPError{StatusCode: 429}}}
	good := &mockProvider{name: "b"}
	r.AddProvider("base", throttled)
	r.AddProvider("base", good)

	_, name, err := CallWithRetryAndFailover(context.Background(), r, "base", provider.Operation{Method: "eth_blockNumber"}, fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "b" {
		t.Errorf("expected failover to b, got %s", name)
	}
	if throttled.calls != 1 {
		t.Errorf("429 should not be retried on the same provider, got %d calls", throttled.calls)
	}
}

func TestCallWithRetryAndFailover_FatalStops(t *testing.T) {
	r := NewRouter()
	reverted := &mockProvider{name: "a", errs: []error{&provider.RPCError{Code: 3, Message: "execution reverted"}}}
	other := &mockProvider{name: "b"}
	r.AddProvider("base", reverted)
	r.AddProvider("base", other)

	_, _, err := CallWithRetryAndFailover(context.Background(), r, "base", provider.Operation{Method: "eth_call"}, fastRetry)
	var rpcErr *provider.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected rpc error, got %v", err)
	}
	if other.calls != 0 {
		t.Error("fatal error must not fail over")
	}
}

func TestCallWithRetryAndFailover_AllFail(t *testing.T) {
	r := NewRouter()
	r.AddProvider("base", &mockProvider{name: "a", errs: []error{&provider.HTTPError{StatusCode: 503}, &provider.HTTPError{StatusCode: 503}, &provider.HTTPError{StatusCode: 503}}})

	_, _, err := CallWithRetryAndFailover(context.Background(), r, "base", provider.Operation{Method: "eth_call"}, fastRetry)
	if !errors.Is(err, ErrAllProvidersFailed) || !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected exhausted providers, got %v", err)
	}
}

func TestRouter_CircuitBreaker(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewRouter()
	r.now = func() time.Time { return now }
	a, b := &mockProvider{name: "a"}, &mockProvider{name: "b"}
	r.AddProvider("base", a)
	r.AddProvider("base", b)

	for i := 0; i < 5; i++ {
		r.RecordFailure("a", errors.New("boom"))
	}
	if !r.CircuitOpen("a") {
		t.Fatal("expected circuit open after 5 failures")
	}
	for i := 0; i < 2; i++ {
		if first := r.Candidates("base")[0]; first.GetName() != "b" {
			t.Errorf("tripped provider should be tried last, got %s first", first.GetName())
		}
	}

	now = now.Add(time.Minute)
	if r.CircuitOpen("a") {
		t.Error("circuit should close after cooldown")
	}
}
