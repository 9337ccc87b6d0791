package rpc

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
)

// MockProvider implements RPCProvider for client tests
type MockProvider struct {
	name       string
	shouldFail bool
	callCount  int
}

func (m *MockProvider) GetName() string {
	return m.name
}

func (m *MockProvider) Call(ctx context.Context, method string, params []any) (any, error) {
	m.callCount++
	if m.shouldFail {
		return nil, fmt.Errorf("mock provider %s failed: 429 Too Many Requests", m.name)
	}
	return "0x1", nil
}

func (m *MockProvider) GetHealth() HealthStatus {
	return HealthStatus{Available: !m.shouldFail, Latency: 10 * time.Millisecond}
}

func (m *MockProvider) IsAvailable() bool {
	return !m.shouldFail
}

func (m *MockProvider) Close() error {
	return nil
}

func TestClient_FailsOverToHealthyProvider(t *testing.T) {
	primary := &MockProvider{name: "primary", shouldFail: true}
	backup := &MockProvider{name: "backup"}

	client := NewClient(primary, backup)
	result, err := client.Call(context.Background(), "eth_blockNumber", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "0x1" {
		t.Errorf("expected 0x1, got %v", result)
	}
	if backup.callCount != 1 {
		t.Errorf("expected backup to be called once, got %d", backup.callCount)
	}
}

func TestClient_NoProviders(t *testing.T) {
	client := NewClient()
	if _, err := client.Call(context.Background(), "eth_blockNumber", nil); err == nil {
		t.Fatal("expected error without providers")
	}
}

func TestClient_Dashboard(t *testing.T) {
	client := NewClient(&MockProvider{name: "primary"}, &MockProvider{name: "broken", shouldFail: true})
	out := client.Dashboard()
	if !strings.Contains(out, "primary") || !strings.Contains(out, "unavailable") {
		t.Errorf("unexpected dashboard output:\n%s", out)
	}
	if len(client.Health()) != 2 {
		t.Errorf("expected 2 health entries, got %d", len(client.Health()))
	}
}
