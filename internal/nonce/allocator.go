// Package nonce allocates transaction nonces for a sending account.
//
// An Allocator is the serialising authority for nonces: every options build
// requests exactly one nonce and relies on the allocator to never hand out
// the same value twice.
package nonce

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/metrics"
)

// Allocator hands out the next nonce to use.
type Allocator interface {
	GetNonce(ctx context.Context) (uint64, error)
}

// Resyncer is implemented by allocators that can drop their local view and
// re-read the pending nonce from the chain after a failed send.
type Resyncer interface {
	Resync(ctx context.Context) error
}

// Source reads the pending nonce of an account from the chain.
type Source interface {
	PendingNonceAt(ctx context.Context, addr string) (uint64, error)
}

// MemoryAllocator serialises nonces within a single process. It is seeded
// lazily from the chain on first use.
type MemoryAllocator struct {
	source Source
	addr   string

	mu     sync.Mutex
	next   uint64
	seeded bool
}

var (
	_ Allocator = (*MemoryAllocator)(nil)
	_ Resyncer  = (*MemoryAllocator)(nil)
)

func NewMemoryAllocator(source Source, addr string) *MemoryAllocator {
	return &MemoryAllocator{source: source, addr: addr}
}

func (a *MemoryAllocator) GetNonce(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.seeded {
		pending, err := a.source.PendingNonceAt(ctx, a.addr)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", domain.ErrNonceAllocation, a.addr, err)
		}
		a.next = pending
		a.seeded = true
	}

	n := a.next
	a.next++
	metrics.NonceAllocations.WithLabelValues("memory").Inc()
	return n, nil
}

// Resync forces the next GetNonce to re-read the pending nonce.
func (a *MemoryAllocator) Resync(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.seeded = false
	slog.Debug("nonce allocator resynced", "backend", "memory", "address", a.addr)
	return nil
}
