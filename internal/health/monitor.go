package health

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/txmanager/internal/infra/rpc"
	"github.com/vietddude/txmanager/internal/tracker"
)

// HeadFetcher fetches the latest block number of the chain.
type HeadFetcher interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// ProviderSource reports RPC provider health.
type ProviderSource interface {
	Health() map[string]rpc.HealthStatus
}

// HandleSource lists tracked handles.
type HandleSource interface {
	Handles() []tracker.HandleInfo
}

// Check is a named dependency probe such as a Redis or database ping.
type Check func(ctx context.Context) error

// Monitor aggregates health status from various system components.
type Monitor struct {
	head         HeadFetcher
	providers    ProviderSource
	handles      HandleSource
	nonceBackend string
	checks       map[string]Check
	cacheFor     time.Duration
	lastCheck    time.Time
	lastReport   *HealthReport
	mu           sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(head HeadFetcher, providers ProviderSource, handles HandleSource, nonceBackend string) *Monitor {
	return &Monitor{
		head:         head,
		providers:    providers,
		handles:      handles,
		nonceBackend: nonceBackend,
		checks:       make(map[string]Check),
		cacheFor:     10 * time.Second,
	}
}

// AddCheck registers a dependency probe. A failing probe degrades the system.
func (m *Monitor) AddCheck(name string, check Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks[name] = check
}

// CheckHealth builds a report, reusing the previous one for a short while to
// avoid spamming RPC.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < m.cacheFor {
		report := *m.lastReport
		report.Handles = m.handles.Handles()
		return report
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		NonceBackend: m.nonceBackend,
		Components:   make(map[string]ComponentHealth),
		Handles:      m.handles.Handles(),
	}

	head, err := m.head.BlockNumber(ctx)
	if err != nil {
		// Without the chain nothing can be mined
		report.SystemStatus = StatusCritical
		report.Components["chain"] = ComponentHealth{Status: StatusCritical, Error: err.Error()}
	} else {
		report.ChainHead = head
		report.Components["chain"] = ComponentHealth{Status: StatusHealthy}
	}

	if m.providers != nil {
		report.Providers = m.providers.Health()
		available := 0
		for _, p := range report.Providers {
			if p.Available {
				available++
			}
		}
		if available < len(report.Providers) {
			report.SystemStatus = worst(report.SystemStatus, StatusDegraded)
		}
	}

	for name, check := range m.checks {
		if err := check(ctx); err != nil {
			report.Components[name] = ComponentHealth{Status: StatusDegraded, Error: err.Error()}
			report.SystemStatus = worst(report.SystemStatus, StatusDegraded)
			continue
		}
		report.Components[name] = ComponentHealth{Status: StatusHealthy}
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}
