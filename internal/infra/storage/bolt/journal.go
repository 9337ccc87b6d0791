// Package bolt stores the lifecycle journal in an embedded bbolt file.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/infra/storage"
)

var (
	eventsBucket = []byte("events")
	hashBucket   = []byte("events_by_hash")
	txBucket     = []byte("events_by_tx")
)

// JournalRepo implements storage.JournalRepository on bbolt. Event ids are
// UUIDv7 strings, so key order in the events bucket is time order.
type JournalRepo struct {
	db *bolt.DB
}

var _ storage.JournalRepository = (*JournalRepo)(nil)

// Open opens or creates the journal file at path.
func Open(path string) (*JournalRepo, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt journal %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{eventsBucket, hashBucket, txBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	return &JournalRepo{db: db}, nil
}

func indexKey(prefix, id string) []byte {
	return []byte(prefix + "/" + id)
}

func (r *JournalRepo) Append(ctx context.Context, ev *domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(eventsBucket).Put([]byte(ev.ID), data); err != nil {
			return err
		}
		if err := tx.Bucket(txBucket).Put(indexKey(ev.TransactionID, ev.ID), nil); err != nil {
			return err
		}
		if ev.TxHash != "" {
			return tx.Bucket(hashBucket).Put(indexKey(ev.TxHash, ev.ID), nil)
		}
		return nil
	})
}

func (r *JournalRepo) ListByHash(ctx context.Context, hashes ...string) ([]*domain.Event, error) {
	var out []*domain.Event
	err := r.db.View(func(tx *bolt.Tx) error {
		for _, h := range hashes {
			evs, err := scanIndex(tx, hashBucket, h)
			if err != nil {
				return err
			}
			out = append(out, evs...)
		}
		return nil
	})
	return out, err
}

func (r *JournalRepo) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.Event, error) {
	var out []*domain.Event
	err := r.db.View(func(tx *bolt.Tx) error {
		evs, err := scanIndex(tx, txBucket, transactionID)
		out = evs
		return err
	})
	return out, err
}

func (r *JournalRepo) Recent(ctx context.Context, limit int) ([]*domain.Event, error) {
	var out []*domain.Event
	err := r.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(eventsBucket).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			ev, err := decode(v)
			if err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	return out, err
}

func (r *JournalRepo) DeleteOlderThan(ctx context.Context, t time.Time) (int, error) {
	removed := 0
	err := r.db.Update(func(tx *bolt.Tx) error {
		events := tx.Bucket(eventsBucket)
		var stale []*domain.Event
		c := events.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			ev, err := decode(v)
			if err != nil {
				return err
			}
			if !ev.OccurredAt.Before(t) {
				break
			}
			stale = append(stale, ev)
		}
		for _, ev := range stale {
			if err := events.Delete([]byte(ev.ID)); err != nil {
				return err
			}
			if err := tx.Bucket(txBucket).Delete(indexKey(ev.TransactionID, ev.ID)); err != nil {
				return err
			}
			if ev.TxHash != "" {
				if err := tx.Bucket(hashBucket).Delete(indexKey(ev.TxHash, ev.ID)); err != nil {
					return err
				}
			}
		}
		removed = len(stale)
		return nil
	})
	return removed, err
}

func (r *JournalRepo) Close() error {
	return r.db.Close()
}

func scanIndex(tx *bolt.Tx, bucket []byte, prefix string) ([]*domain.Event, error) {
	events := tx.Bucket(eventsBucket)
	p := []byte(prefix + "/")
	var out []*domain.Event
	c := tx.Bucket(bucket).Cursor()
	for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
		v := events.Get(k[len(p):])
		if v == nil {
			continue
		}
		ev, err := decode(v)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func decode(v []byte) (*domain.Event, error) {
	var ev domain.Event
	if err := json.Unmarshal(v, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &ev, nil
}
