package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPProvider_Call(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode body: %v", err)
			return
		}
		if req["jsonrpc"] != "2.0" {
			t.Errorf("expected jsonrpc 2.0, got %v", req["jsonrpc"])
		}
		if req["method"] != "eth_blockNumber" {
			t.Errorf("expected eth_blockNumber, got %v", req["method"])
		}
		if params, ok := req["params"].([]any); !ok || len(params) != 0 {
			t.Errorf("expected empty params array, got %v", req["params"])
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req["id"],
			"result":  "0x10",
		})
	}))
	defer server.Close()

	p := NewHTTPProvider("local", server.URL, 5*time.Second)
	result, err := p.Call(context.Background(), "eth_blockNumber", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.(string) != "0x10" {
		t.Errorf("expected 0x10, got %v", result)
	}
	if !p.IsAvailable() {
		t.Error("provider should be available after success")
	}
}

func TestHTTPProvider_NullResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`))
	}))
	defer server.Close()

	p := NewHTTPProvider("local", server.URL, 5*time.Second)
	result, err := p.Call(context.Background(), "eth_getTransactionReceipt", []any{"0xabc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %v", result)
	}
}

func TestHTTPProvider_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"rate limited", http.StatusTooManyRequests, "", "429"},
		{"blocked", http.StatusForbidden, "", "403"},
		{"rpc error", http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"nonce too low"}}`, "nonce too low"},
		{"throttle in body", http.StatusOK, `{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"Project rate limit exceeded"}}`, "throttle"},
		{"server error", http.StatusInternalServerError, "boom", "http 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := NewHTTPProvider("local", server.URL, 5*time.Second)
			_, err := p.Call(context.Background(), "eth_sendTransaction", []any{})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
			if p.GetHealth().ErrorRate == 0 {
				t.Error("expected error rate to be recorded")
			}
		})
	}
}
