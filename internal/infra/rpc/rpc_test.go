package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newNode(t *testing.T, handler func(method string, params []any) (any, *RPCError, int)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64 `json:"id"`
			Method string `json:"method"`
			Params []any  `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		result, rpcErr, status := handler(req.Method, req.Params)
		if status != 0 && status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

var testRetry = RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

func TestClient_CallDecodes(t *testing.T) {
	node := newNode(t, func(method string, params []any) (any, *RPCError, int) {
		if method != "eth_blockNumber" {
			t.Errorf("unexpected method %s", method)
		}
		return "0x10", nil, 0
	})
	defer node.Close()

	router := NewRouter()
	router.AddProvider("base", NewHTTPProvider("node", node.URL, time.Second))
	client := NewClient("base", router, testRetry)

	var head string
	if err := client.Call(context.Background(), &head, "eth_blockNumber"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if head != "0x10" {
		t.Errorf("expected 0x10, got %s", head)
	}
}

func TestClient_FailoverToSecondProvider(t *testing.T) {
	var downCalls atomic.Int32
	down := newNode(t, func(string, []any) (any, *RPCError, int) {
		downCalls.Add(1)
		return nil, nil, http.StatusServiceUnavailable
	})
	defer down.Close()
	up := newNode(t, func(string, []any) (any, *RPCError, int) { return "0x1", nil, 0 })
	defer up.Close()

	router := NewRouter()
	router.AddProvider("base", NewHTTPProvider("down", down.URL, time.Second))
	router.AddProvider("base", NewHTTPProvider("up", up.URL, time.Second))
	client := NewClient("base", router, testRetry)

	var out string
	if err := client.Call(context.Background(), &out, "eth_chainId"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "0x1" {
		t.Errorf("expected 0x1, got %s", out)
	}
	if downCalls.Load() != int32(testRetry.MaxAttempts) {
		t.Errorf("expected %d attempts on the failing provider, got %d", testRetry.MaxAttempts, downCalls.Load())
	}
}

func TestClient_TransientVsDefinitive(t *testing.T) {
	down := newNode(t, func(string, []any) (any, *RPCError, int) { return nil, nil, http.StatusBadGateway })
	defer down.Close()

	router := NewRouter()
	router.AddProvider("base", NewHTTPProvider("down", down.URL, time.Second))
	client := NewClient("base", router, testRetry)

	err := client.Call(context.Background(), nil, "eth_getCode", "0x0", "latest")
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}

	reverted := newNode(t, func(string, []any) (any, *RPCError, int) {
		return nil, &RPCError{Code: 3, Message: "execution reverted"}, 0
	})
	defer reverted.Close()

	router = NewRouter()
	router.AddProvider("base", NewHTTPProvider("reverted", reverted.URL, time.Second))
	client = NewClient("base", router, testRetry)

	err = client.Call(context.Background(), nil, "eth_call")
	if IsTransient(err) {
		t.Fatalf("revert must not be transient: %v", err)
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
}
