// Package provider implements JSON-RPC endpoints.
//
// This package contains:
//   - RPCProvider interface: core abstraction for JSON-RPC endpoints
//   - HTTPProvider: JSON-RPC 2.0 over HTTP implementation
package provider

import (
	"context"
	"time"
)

// RPCProvider defines an endpoint that answers JSON-RPC calls.
type RPCProvider interface {
	// GetName returns provider identifier (e.g., "alchemy", "local")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// Call makes a single RPC request
	Call(ctx context.Context, method string, params []any) (any, error)

	// Close cleans up resources
	Close() error
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	Throttled     int           `json:"throttled"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
}

// RPCError is an error object returned by the remote node.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}
