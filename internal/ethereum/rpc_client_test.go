package ethereum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPClient_BlockNumber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		if req.Method != "eth_blockNumber" {
			t.Errorf("expected method eth_blockNumber, got %s", req.Method)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0xd1e5db",
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	block, err := client.BlockNumber(ctx)
	if err != nil {
		t.Fatalf("BlockNumber: %v", err)
	}

	if block != 13755867 {
		t.Errorf("expected block 13755867, got %d", block)
	}
}

func TestHTTPClient_CallContract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Method != "eth_call" {
			t.Errorf("expected method eth_call, got %s", req.Method)
		}

		var call struct {
			To   string `json:"to"`
			Data string `json:"data"`
		}
		raw, _ := json.Marshal(req.Params[0])
		json.Unmarshal(raw, &call)

		if call.To != "0xabc" {
			t.Errorf("expected to 0xabc, got %s", call.To)
		}
		if call.Data != "0x18160ddd" {
			t.Errorf("expected data 0x18160ddd, got %s", call.Data)
		}
		if req.Params[1] != "latest" {
			t.Errorf("expected block tag latest, got %v", req.Params[1])
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0x0000000000000000000000000000000000000000000000000000000000001f40",
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	out, err := client.CallContract(ctx, "0xabc", "0x18160ddd", "latest")
	if err != nil {
		t.Fatalf("CallContract: %v", err)
	}

	value, err := ParseHexInt64(out)
	if err != nil {
		t.Fatalf("ParseHexInt64: %v", err)
	}
	if value != 8000 {
		t.Errorf("expected 8000, got %d", value)
	}
}

func TestHTTPClient_BlockTime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		if req.Method != "eth_getBlockByNumber" {
			t.Errorf("expected method eth_getBlockByNumber, got %s", req.Method)
		}
		if req.Params[0] != "0xd1e5db" {
			t.Errorf("expected block tag 0xd1e5db, got %v", req.Params[0])
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result": map[string]interface{}{
				"number":    "0xd1e5db",
				"timestamp": "0x61b1b0c0",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx := context.Background()

	ts, err := client.BlockTime(ctx, 13755867)
	if err != nil {
		t.Fatalf("BlockTime: %v", err)
	}

	if ts != 0x61b1b0c0 {
		t.Errorf("expected timestamp %d, got %d", int64(0x61b1b0c0), ts)
	}
}

func TestHTTPClient_RetryOn429(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  "0x10",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond))
	ctx := context.Background()

	block, err := client.BlockNumber(ctx)
	if err != nil {
		t.Fatalf("BlockNumber after retries: %v", err)
	}
	if block != 16 {
		t.Errorf("expected 16, got %d", block)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestHTTPClient_RPCErrorNotRetried(t *testing.T) {
	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]interface{}{
				"code":    -32000,
				"message": "execution reverted",
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond))
	ctx := context.Background()

	_, err := client.BlockNumber(ctx)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call without retries, got %d", calls.Load())
	}
}

func TestParseHexInt64(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0x0", 0, false},
		{"0x10", 16, false},
		{"0x0000000000000000000000000000000000000000000000000000000011e1a32a", 300000042, false},
		{"0x", 0, true},
		{"", 0, true},
		{"0xzz", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseHexInt64(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseHexInt64(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHexInt64(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseHexInt64(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBlockTag(t *testing.T) {
	if tag := BlockTag(0); tag != "latest" {
		t.Errorf("BlockTag(0) = %q, want latest", tag)
	}
	if tag := BlockTag(-1); tag != "latest" {
		t.Errorf("BlockTag(-1) = %q, want latest", tag)
	}
	if tag := BlockTag(13755675); tag != "0xd1e51b" {
		t.Errorf("BlockTag(13755675) = %q, want 0xd1e51b", tag)
	}
}
