// Package journal records the lifecycle events of every transaction the
// manager creates.
package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/metrics"
	"github.com/vietddude/txmanager/internal/txstate"
)

const defaultQueueSize = 1024

// Recorder turns transitions into events and hands them to emitters from a
// single background loop, so transaction watches never block on I/O.
type Recorder struct {
	emitters []Emitter
	queue    chan *domain.Event
	now      func() time.Time
	log      *slog.Logger
}

func NewRecorder(emitters ...Emitter) *Recorder {
	return &Recorder{
		emitters: emitters,
		queue:    make(chan *domain.Event, defaultQueueSize),
		now:      time.Now,
		log:      slog.Default().With("component", "journal"),
	}
}

// Observe records the initialized state of tx and subscribes to the rest.
// It is meant to be registered with manager.OnNewTransaction.
func (r *Recorder) Observe(tx *txstate.Transaction) {
	r.enqueue(r.event(tx, domain.TxStateInitialized))
	tx.Subscribe(func(state domain.TxState) {
		r.enqueue(r.event(tx, state))
	})
}

func (r *Recorder) event(tx *txstate.Transaction, state domain.TxState) *domain.Event {
	meta := tx.Metadata()
	ev := &domain.Event{
		ID:            uuid.Must(uuid.NewV7()).String(),
		TransactionID: tx.ID(),
		TxHash:        tx.Hash(),
		State:         state,
		Contract:      meta.Contract,
		Method:        meta.Method,
		Metadata:      meta.Extra,
		OccurredAt:    r.now(),
	}
	if receipt := tx.Receipt(); receipt != nil {
		ev.BlockNumber = receipt.BlockNumber
	}
	if state == domain.TxStateError {
		if err := tx.Err(); err != nil {
			ev.Error = err.Error()
		}
	}
	return ev
}

func (r *Recorder) enqueue(ev *domain.Event) {
	select {
	case r.queue <- ev:
	default:
		metrics.JournalWrites.WithLabelValues("queue", "dropped").Inc()
		r.log.Warn("Journal queue full, dropping event", "tx", ev.TransactionID, "state", ev.State)
	}
}

// Run delivers queued events until ctx is done, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case ev := <-r.queue:
			r.deliver(ctx, ev)
		case <-ctx.Done():
			r.drain()
			return
		}
	}
}

func (r *Recorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-r.queue:
			r.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (r *Recorder) deliver(ctx context.Context, ev *domain.Event) {
	for _, e := range r.emitters {
		if err := e.Emit(ctx, ev); err != nil {
			metrics.JournalWrites.WithLabelValues(e.Name(), "error").Inc()
			r.log.Error("Failed to record event",
				"sink", e.Name(),
				"tx", ev.TransactionID,
				"state", ev.State,
				"error", err,
			)
			continue
		}
		metrics.JournalWrites.WithLabelValues(e.Name(), "ok").Inc()
	}
}

// Close closes every emitter. Call it after Run has returned.
func (r *Recorder) Close() error {
	return closeAll(r.emitters)
}
