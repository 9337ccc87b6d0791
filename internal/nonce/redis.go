package nonce

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/metrics"
)

// Counter is the subset of the Redis client used for nonces.
type Counter interface {
	SeedCounter(ctx context.Context, key string, value int64) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// RedisAllocator shares one nonce sequence between processes. The counter
// holds the last allocated nonce; it is seeded with pending-1 so the first
// INCR yields the chain's pending nonce.
type RedisAllocator struct {
	counter Counter
	source  Source
	addr    string
	key     string
}

var (
	_ Allocator = (*RedisAllocator)(nil)
	_ Resyncer  = (*RedisAllocator)(nil)
)

func NewRedisAllocator(counter Counter, source Source, addr, key string) *RedisAllocator {
	return &RedisAllocator{
		counter: counter,
		source:  source,
		addr:    addr,
		key:     key,
	}
}

func (a *RedisAllocator) GetNonce(ctx context.Context) (uint64, error) {
	pending, err := a.source.PendingNonceAt(ctx, a.addr)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", domain.ErrNonceAllocation, a.addr, err)
	}
	seeded, err := a.counter.SeedCounter(ctx, a.key, int64(pending)-1)
	if err != nil {
		return 0, fmt.Errorf("%w: seed %s: %w", domain.ErrNonceAllocation, a.key, err)
	}
	if seeded {
		slog.Info("nonce counter seeded", "key", a.key, "pending", pending)
	}

	n, err := a.counter.Incr(ctx, a.key)
	if err != nil {
		return 0, fmt.Errorf("%w: incr %s: %w", domain.ErrNonceAllocation, a.key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: counter %s is negative", domain.ErrNonceAllocation, a.key)
	}
	metrics.NonceAllocations.WithLabelValues("redis").Inc()
	return uint64(n), nil
}

// Resync drops the shared counter so the next allocation re-seeds from the chain.
func (a *RedisAllocator) Resync(ctx context.Context) error {
	if err := a.counter.Reset(ctx, a.key); err != nil {
		return fmt.Errorf("resync %s: %w", a.key, err)
	}
	slog.Debug("nonce allocator resynced", "backend", "redis", "key", a.key)
	return nil
}
