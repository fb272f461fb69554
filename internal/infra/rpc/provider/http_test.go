package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHTTPProvider_Execute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode body: %v", err)
			return
		}

		// Verify "jsonrpc": "2.0"
		if v, ok := req["jsonrpc"].(string); !ok || v != "2.0" {
			t.Errorf("expected jsonrpc: 2.0, got %v", req["jsonrpc"])
		}
		if params, ok := req["params"].([]any); !ok || len(params) != 0 {
			t.Errorf("expected empty params array, got %v", req["params"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"result":  "0x123",
			"id":      req["id"],
		})
	}))
	defer server.Close()

	p := NewHTTPProvider("eth-mock", server.URL, 5*time.Second)

	result, err := p.Execute(context.Background(), Operation{Method: "eth_blockNumber"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != `"0x123"` {
		t.Errorf("expected \"0x123\", got %s", result)
	}
}

func TestHTTPProvider_RPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":3,"message":"execution reverted"}}`))
	}))
	defer server.Close()

	p := NewHTTPProvider("eth-mock", server.URL, 5*time.Second)
	_, err := p.Execute(context.Background(), Operation{Method: "eth_call", Params: []any{map[string]string{}, "latest"}})

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != 3 || rpcErr.Message != "execution reverted" {
		t.Errorf("unexpected rpc error %+v", rpcErr)
	}
	if !p.GetHealth().Available {
		t.Error("a method error must not mark the provider unhealthy")
	}
}

func TestHTTPProvider_HTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewHTTPProvider("eth-mock", server.URL, 5*time.Second)
	_, err := p.Execute(context.Background(), Operation{Method: "eth_blockNumber"})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 HTTPError, got %v", err)
	}
	if p.Monitor.GetStats().ThrottleCount429 != 1 {
		t.Error("expected throttle to be recorded")
	}
}
