package solana

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

func rpcServer(t *testing.T, handle func(req rpcRequest) (any, *RPCError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		result, rpcErr := handle(req)
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPTransport_Dispatch(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) (any, *RPCError) {
		if req.Method != "getSlot" {
			t.Errorf("expected method getSlot, got %s", req.Method)
		}
		if req.JSONRPC != "2.0" {
			t.Errorf("expected jsonrpc 2.0, got %s", req.JSONRPC)
		}
		return 4242, nil
	})
	defer server.Close()

	transport := NewHTTPTransport(server.URL)
	raw, err := transport.Dispatch(context.Background(), "getSlot", nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if string(raw) != "4242" {
		t.Errorf("expected 4242, got %s", raw)
	}
}

func TestHTTPTransport_NullResult(t *testing.T) {
	server := rpcServer(t, func(rpcRequest) (any, *RPCError) { return nil, nil })
	defer server.Close()

	raw, err := NewHTTPTransport(server.URL).Dispatch(context.Background(), "getTransaction", []any{"sig"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if string(raw) != "null" {
		t.Errorf("expected null, got %s", raw)
	}
}

func TestHTTPTransport_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := rpcServer(t, func(rpcRequest) (any, *RPCError) {
		calls.Add(1)
		return nil, &RPCError{Code: -32602, Message: "invalid params"}
	})
	defer server.Close()

	transport := NewHTTPTransport(server.URL, WithRetryDelay(time.Millisecond))
	_, err := transport.Dispatch(context.Background(), "getBalance", []any{"x"})

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %v", err)
	}
	if rpcErr.Code != -32602 {
		t.Errorf("expected code -32602, got %d", rpcErr.Code)
	}
	if !errors.Is(err, ErrRPC) {
		t.Error("expected errors.Is(err, ErrRPC)")
	}
	if errors.Is(err, ErrNetwork) {
		t.Error("rpc error must not be classified as network error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestHTTPTransport_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": 7})
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(time.Millisecond),
		WithMaxDelay(5*time.Millisecond),
	)
	raw, err := transport.Dispatch(context.Background(), "getSlot", nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if string(raw) != "7" {
		t.Errorf("expected 7, got %s", raw)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestHTTPTransport_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	transport := NewHTTPTransport(server.URL, WithMaxRetries(1), WithRetryDelay(time.Millisecond))
	_, err := transport.Dispatch(context.Background(), "getSlot", nil)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
	var netErr *NetworkError
	if !errors.As(err, &netErr) || netErr.Method != "getSlot" {
		t.Errorf("expected NetworkError for getSlot, got %v", err)
	}
}

func TestHTTPTransport_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPTransport(server.URL).Dispatch(ctx, "getSlot", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
