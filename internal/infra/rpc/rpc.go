// Package rpc provides a resilient JSON-RPC client for EVM nodes.
//
// This package offers:
//   - Multiple provider support with ordered failover
//   - Exponential backoff for transient errors
//   - Error classification (retry, failover, fatal)
//
// # Quick Start
//
//	import "github.com/vietddude/txmanager/internal/infra/rpc"
//
//	client := rpc.NewClient(
//	    rpc.NewHTTPProvider("primary", primaryURL, 30*time.Second),
//	    rpc.NewHTTPProvider("backup", backupURL, 30*time.Second),
//	)
//	result, err := client.Call(ctx, "eth_blockNumber", nil)
//
// # Package Structure
//
//   - provider/ - Provider implementations (HTTPProvider)
//   - routing/  - Retry and failover logic
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"time"

	"github.com/vietddude/txmanager/internal/infra/rpc/provider"
	"github.com/vietddude/txmanager/internal/infra/rpc/routing"
)

// RPCProvider is the interface for providers that support JSON-RPC calls.
type RPCProvider = provider.RPCProvider

// HTTPProvider implements RPCProvider for JSON-RPC over HTTP.
type HTTPProvider = provider.HTTPProvider

// HealthStatus represents the health state of a provider.
type HealthStatus = provider.HealthStatus

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// DefaultRetryConfig provides sensible retry defaults.
var DefaultRetryConfig = routing.DefaultRetryConfig

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return provider.NewHTTPProvider(name, endpoint, timeout)
}

// CallWithRetry executes an RPC call with exponential backoff.
var CallWithRetry = routing.CallWithRetry
