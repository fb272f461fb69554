package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/burnrelay/internal/core/clock"
)

func TestClient_GetDecodesAndSendsHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-lifi-api-key") != "secret" {
			t.Errorf("missing api key header")
		}
		if r.URL.Query().Get("fromChain") != "8453" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"tool":"uniswap"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second).WithHeader("x-lifi-api-key", "secret")
	var out struct {
		Tool string `json:"tool"`
	}
	if err := c.Get(context.Background(), "/v1/quote", url.Values{"fromChain": {"8453"}}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Tool != "uniswap" {
		t.Errorf("expected uniswap, got %s", out.Tool)
	}
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		status    int
		temporary bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message":"nope"}`))
			}))
			defer srv.Close()

			err := NewClient(srv.URL, time.Second).Post(context.Background(), "/x", map[string]string{}, nil)
			var se *StatusError
			if !errors.As(err, &se) || se.StatusCode != tt.status {
				t.Fatalf("expected status error %d, got %v", tt.status, err)
			}
			if IsTemporary(err) != tt.temporary {
				t.Errorf("expected temporary=%v for %d", tt.temporary, tt.status)
			}
		})
	}
}

func TestDo_RetriesOnClock(t *testing.T) {
	clk := clock.NewAutoFake(time.Unix(0, 0))
	var calls atomic.Int32
	attempts, err := Do(context.Background(), clk, Backoff{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 5 * time.Second},
		IsTemporary,
		func(context.Context) error {
			if calls.Add(1) < 3 {
				return &StatusError{StatusCode: http.StatusServiceUnavailable}
			}
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if clk.Now().Sub(time.Unix(0, 0)) < 3*time.Second {
		t.Errorf("expected backoff to advance the clock, got %v", clk.Now())
	}
}

func TestDo_StopsOnPermanent(t *testing.T) {
	clk := clock.NewAutoFake(time.Unix(0, 0))
	attempts, err := Do(context.Background(), clk, Backoff{MaxAttempts: 5, BaseDelay: time.Second},
		IsTemporary,
		func(context.Context) error { return &StatusError{StatusCode: http.StatusBadRequest} })
	if err == nil || attempts != 1 {
		t.Fatalf("expected a single failed attempt, got %d %v", attempts, err)
	}
}

func TestDo_Exhausts(t *testing.T) {
	clk := clock.NewAutoFake(time.Unix(0, 0))
	attempts, err := Do(context.Background(), clk, Backoff{MaxAttempts: 4, BaseDelay: time.Millisecond},
		IsTemporary,
		func(context.Context) error { return errors.New("connection refused") })
	if err == nil || attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d %v", attempts, err)
	}
}
