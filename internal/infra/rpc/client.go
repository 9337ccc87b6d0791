package rpc

import (
	"context"
	"fmt"
	"strings"

	"github.com/vietddude/txmanager/internal/infra/rpc/routing"
)

// Caller is the minimal surface chain adapters depend on.
type Caller interface {
	Call(ctx context.Context, method string, params []any) (any, error)
}

// Client is the high-level interface for making RPC calls.
// This is what application layers should use.
type Client struct {
	providers []RPCProvider
	retry     RetryConfig
}

// NewClient creates a client that fails over across providers in order.
func NewClient(providers ...RPCProvider) *Client {
	return &Client{
		providers: providers,
		retry:     DefaultRetryConfig,
	}
}

// WithRetryConfig overrides the retry behaviour.
func (c *Client) WithRetryConfig(cfg RetryConfig) *Client {
	c.retry = cfg
	return c
}

// Call makes an RPC call with automatic failover and retry.
func (c *Client) Call(ctx context.Context, method string, params []any) (any, error) {
	if len(c.providers) == 0 {
		return nil, fmt.Errorf("rpc client has no providers")
	}
	return routing.CallWithRetryAndFailover(ctx, c.providers, method, params, c.retry)
}

// Health returns the health of every provider keyed by name.
func (c *Client) Health() map[string]HealthStatus {
	out := make(map[string]HealthStatus, len(c.providers))
	for _, p := range c.providers {
		out[p.GetName()] = p.GetHealth()
	}
	return out
}

// Dashboard renders provider health as text for CLI output.
func (c *Client) Dashboard() string {
	var b strings.Builder
	b.WriteString("=== Provider Health ===\n")
	for _, p := range c.providers {
		h := p.GetHealth()
		status := "available"
		if !h.Available {
			status = "unavailable"
		}
		fmt.Fprintf(&b, "%-12s %-12s latency=%-10s errors=%.1f%% throttled=%d\n",
			p.GetName(), status, h.Latency.Round(1e6), h.ErrorRate*100, h.Throttled)
	}
	return b.String()
}

// Close closes every provider.
func (c *Client) Close() error {
	for _, p := range c.providers {
		_ = p.Close()
	}
	return nil
}
