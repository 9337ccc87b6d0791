package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/infra/storage"
)

// JournalRepo keeps events in process memory.
type JournalRepo struct {
	events []*domain.Event
	mu     sync.RWMutex
}

var _ storage.JournalRepository = (*JournalRepo)(nil)

func NewJournalRepo() *JournalRepo {
	return &JournalRepo{}
}

func (r *JournalRepo) Append(ctx context.Context, ev *domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *ev
	r.events = append(r.events, &cp)
	return nil
}

func (r *JournalRepo) ListByHash(ctx context.Context, hashes ...string) ([]*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Event
	for _, ev := range r.events {
		if ev.TxHash != "" && slices.Contains(hashes, ev.TxHash) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *JournalRepo) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Event
	for _, ev := range r.events {
		if ev.TransactionID == transactionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (r *JournalRepo) Recent(ctx context.Context, limit int) ([]*domain.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Event, 0, min(limit, len(r.events)))
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.events[i])
	}
	return out, nil
}

func (r *JournalRepo) DeleteOlderThan(ctx context.Context, t time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := make([]*domain.Event, 0, len(r.events))
	for _, ev := range r.events {
		if ev.OccurredAt.Before(t) {
			continue
		}
		kept = append(kept, ev)
	}
	removed := len(r.events) - len(kept)
	r.events = kept
	return removed, nil
}

func (r *JournalRepo) Close() error {
	return nil
}
