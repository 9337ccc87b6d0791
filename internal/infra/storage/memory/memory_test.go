package memory

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/txmanager/internal/core/domain"
)

func TestJournalRepo(t *testing.T) {
	repo := NewJournalRepo()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	_ = repo.Append(ctx, &domain.Event{ID: "1", TransactionID: "tx-1", State: domain.TxStateInitialized, OccurredAt: base})
	_ = repo.Append(ctx, &domain.Event{ID: "2", TransactionID: "tx-1", TxHash: "0xaaa", State: domain.TxStatePending, OccurredAt: base.Add(time.Minute)})
	_ = repo.Append(ctx, &domain.Event{ID: "3", TransactionID: "tx-2", TxHash: "0xbbb", State: domain.TxStatePending, OccurredAt: base.Add(2 * time.Minute)})

	if evs, _ := repo.ListByTransaction(ctx, "tx-1"); len(evs) != 2 {
		t.Errorf("expected 2 events for tx-1, got %d", len(evs))
	}
	if evs, _ := repo.ListByHash(ctx, "0xbbb"); len(evs) != 1 || evs[0].ID != "3" {
		t.Errorf("unexpected events by hash: %v", evs)
	}
	if evs, _ := repo.Recent(ctx, 10); len(evs) != 3 || evs[0].ID != "3" {
		t.Errorf("expected newest first, got %v", evs)
	}

	removed, _ := repo.DeleteOlderThan(ctx, base.Add(90*time.Second))
	if removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if evs, _ := repo.Recent(ctx, 10); len(evs) != 1 {
		t.Errorf("expected 1 event left, got %d", len(evs))
	}
}
