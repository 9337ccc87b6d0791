package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/infra/storage"
)

// JournalRepo implements storage.JournalRepository using PostgreSQL.
type JournalRepo struct {
	db *DB
}

var _ storage.JournalRepository = (*JournalRepo)(nil)

// NewJournalRepo creates a new PostgreSQL journal repository.
func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

type eventRow struct {
	ID            string    `db:"id"`
	TransactionID string    `db:"transaction_id"`
	TxHash        string    `db:"tx_hash"`
	State         string    `db:"state"`
	Error         string    `db:"error"`
	Contract      string    `db:"contract"`
	Method        string    `db:"method"`
	BlockNumber   int64     `db:"block_number"`
	Metadata      []byte    `db:"metadata"`
	OccurredAt    time.Time `db:"occurred_at"`
}

func newEventRow(ev *domain.Event) (*eventRow, error) {
	row := &eventRow{
		ID:            ev.ID,
		TransactionID: ev.TransactionID,
		TxHash:        ev.TxHash,
		State:         string(ev.State),
		Error:         ev.Error,
		Contract:      ev.Contract,
		Method:        ev.Method,
		BlockNumber:   int64(ev.BlockNumber),
		OccurredAt:    ev.OccurredAt,
	}
	if len(ev.Metadata) > 0 {
		meta, err := json.Marshal(ev.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		row.Metadata = meta
	}
	return row, nil
}

func (r *eventRow) toDomain() (*domain.Event, error) {
	ev := &domain.Event{
		ID:            r.ID,
		TransactionID: r.TransactionID,
		TxHash:        r.TxHash,
		State:         domain.TxState(r.State),
		Error:         r.Error,
		Contract:      r.Contract,
		Method:        r.Method,
		BlockNumber:   uint64(r.BlockNumber),
		OccurredAt:    r.OccurredAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &ev.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata of %s: %w", r.ID, err)
		}
	}
	return ev, nil
}

const selectEvents = `
	SELECT id, transaction_id, tx_hash, state, error, contract, method, block_number, metadata, occurred_at
	FROM tx_events
`

// Append saves an event. Re-appending the same id is a no-op.
func (r *JournalRepo) Append(ctx context.Context, ev *domain.Event) error {
	row, err := newEventRow(ev)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO tx_events (
			id, transaction_id, tx_hash, state, error, contract, method, block_number, metadata, occurred_at
		) VALUES (
			:id, :transaction_id, :tx_hash, :state, :error, :contract, :method, :block_number, :metadata, :occurred_at
		)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListByHash retrieves the events of several transaction hashes.
func (r *JournalRepo) ListByHash(ctx context.Context, hashes ...string) ([]*domain.Event, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	query := selectEvents + `WHERE tx_hash = ANY($1) ORDER BY occurred_at, id`
	return r.list(ctx, query, pq.Array(hashes))
}

func (r *JournalRepo) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.Event, error) {
	query := selectEvents + `WHERE transaction_id = $1 ORDER BY occurred_at, id`
	return r.list(ctx, query, transactionID)
}

func (r *JournalRepo) Recent(ctx context.Context, limit int) ([]*domain.Event, error) {
	query := selectEvents + `ORDER BY occurred_at DESC, id DESC LIMIT $1`
	return r.list(ctx, query, limit)
}

func (r *JournalRepo) DeleteOlderThan(ctx context.Context, t time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tx_events WHERE occurred_at < $1`, t)
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *JournalRepo) Close() error {
	return r.db.Close()
}

func (r *JournalRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Event, error) {
	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	out := make([]*domain.Event, 0, len(rows))
	for i := range rows {
		ev, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}
