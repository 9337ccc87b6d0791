// Package health provides system health monitoring and status reporting.
package health

import (
	"github.com/vietddude/txmanager/internal/infra/rpc"
	"github.com/vietddude/txmanager/internal/tracker"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// ComponentHealth is the result of one dependency check.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus                `json:"system_status"`
	ChainHead    uint64                      `json:"chain_head"`
	NonceBackend string                      `json:"nonce_backend"`
	Providers    map[string]rpc.HealthStatus `json:"providers,omitempty"`
	Components   map[string]ComponentHealth  `json:"components,omitempty"`
	Handles      []tracker.HandleInfo        `json:"handles"`
}

// worst returns the more severe of two statuses.
func worst(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
