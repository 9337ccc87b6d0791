package storage

import (
	"context"
	"time"

	"github.com/vietddude/txmanager/internal/core/domain"
)

// JournalRepository stores lifecycle events of tracked transactions.
type JournalRepository interface {
	// Append saves one event.
	Append(ctx context.Context, ev *domain.Event) error

	// ListByHash returns the events of the given transaction hashes, oldest first.
	ListByHash(ctx context.Context, hashes ...string) ([]*domain.Event, error)

	// ListByTransaction returns the events of one transaction, oldest first.
	ListByTransaction(ctx context.Context, transactionID string) ([]*domain.Event, error)

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]*domain.Event, error)

	// DeleteOlderThan removes events that occurred before t and returns how many were removed.
	DeleteOlderThan(ctx context.Context, t time.Time) (int, error)

	// Close releases the backend.
	Close() error
}
