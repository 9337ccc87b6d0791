package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/txmanager/internal/infra/storage"
)

// Expirer drops terminal transactions past their retention window.
type Expirer interface {
	ClearExpiredTransactions() int
}

// Sweeper periodically clears expired transactions from the tracker and
// deletes journal events older than the journal retention period.
type Sweeper struct {
	tracker          Expirer
	journal          storage.JournalRepository
	interval         time.Duration
	journalRetention time.Duration
	now              func() time.Time
}

// NewSweeper creates a new Sweeper worker. journal may be nil.
func NewSweeper(
	tracker Expirer,
	journal storage.JournalRepository,
	interval time.Duration,
	journalRetention time.Duration,
) *Sweeper {
	return &Sweeper{
		tracker:          tracker,
		journal:          journal,
		interval:         interval,
		journalRetention: journalRetention,
		now:              time.Now,
	}
}

// Start runs the sweeper loop until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	interval := max(s.interval, time.Second)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial sweep
	s.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if removed := s.tracker.ClearExpiredTransactions(); removed > 0 {
		slog.Info("[Sweeper] cleared expired transactions", "removed", removed)
	}

	if s.journal == nil || s.journalRetention <= 0 {
		return // Journal retention disabled
	}
	threshold := s.now().Add(-s.journalRetention)
	removed, err := s.journal.DeleteOlderThan(ctx, threshold)
	if err != nil {
		slog.Error("[Sweeper] failed to prune journal", "before", threshold, "error", err)
		return
	}
	if removed > 0 {
		slog.Info("[Sweeper] pruned journal events", "removed", removed, "before", threshold)
	}
}
