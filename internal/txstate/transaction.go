// Package txstate models the lifecycle of a single submitted transaction.
package txstate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/core/future"
	"github.com/vietddude/txmanager/internal/infra/chain"
	"github.com/vietddude/txmanager/internal/metrics"
	"github.com/vietddude/txmanager/internal/nonce"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultDropTimeout  = 10 * time.Minute
)

// Options configures a Transaction.
type Options struct {
	BusinessObject any
	Metadata       domain.CallMetadata

	// PollInterval is the delay between receipt and head polls.
	PollInterval time.Duration

	// DropTimeout is how long a pending transaction may go without a
	// receipt before it is considered dropped. Zero disables drop detection.
	DropTimeout time.Duration

	Clock func() time.Time
}

// Transaction is the state object of one submission. Transitions are emitted
// from the goroutine that observes them; subscribers run synchronously.
type Transaction struct {
	id     string
	sent   *future.Future[string]
	client chain.Client
	nonces nonce.Allocator
	opts   Options

	mu          sync.Mutex
	state       State
	highest     State
	err         error
	hash        string
	receipt     *domain.Receipt
	createdAt   time.Time
	minedAt     time.Time
	updatedAt   time.Time
	history     []Transition
	subscribers []func(State)

	mineOnce sync.Once
	mined    *future.Future[*domain.Receipt]
}

// New wraps a pending send. sent resolves to the transaction hash.
func New(sent *future.Future[string], client chain.Client, nonces nonce.Allocator, opts Options) *Transaction {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	now := opts.Clock()
	return &Transaction{
		id:        newID(),
		sent:      sent,
		client:    client,
		nonces:    nonces,
		opts:      opts,
		state:     domain.TxStateInitialized,
		highest:   domain.TxStateInitialized,
		createdAt: now,
		updatedAt: now,
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (t *Transaction) ID() string                    { return t.id }
func (t *Transaction) BusinessObject() any           { return t.opts.BusinessObject }
func (t *Transaction) Metadata() domain.CallMetadata { return t.opts.Metadata }
func (t *Transaction) CreatedAt() time.Time          { return t.createdAt }

func (t *Transaction) State() domain.TxState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transaction) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

func (t *Transaction) Hash() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hash
}

func (t *Transaction) Receipt() *domain.Receipt {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.receipt
}

func (t *Transaction) MinedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minedAt
}

func (t *Transaction) UpdatedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updatedAt
}

// History returns a copy of the recorded transitions.
func (t *Transaction) History() []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Transition, len(t.history))
	copy(out, t.history)
	return out
}

// InOrPastState reports whether the transaction has reached state. For the
// ordered states this is the highest state reached, so an errored
// transaction counts only for states it passed before failing.
func (t *Transaction) InOrPastState(state domain.TxState) bool {
	state = state.Normalize()
	t.mu.Lock()
	defer t.mu.Unlock()
	if state == domain.TxStateError {
		return t.state == domain.TxStateError
	}
	order := state.Order()
	return order >= 0 && t.highest.Order() >= order
}

func (t *Transaction) IsMined() bool     { return t.InOrPastState(domain.TxStateMined) }
func (t *Transaction) IsFinalized() bool { return t.State() == domain.TxStateFinalized }
func (t *Transaction) IsError() bool     { return t.State() == domain.TxStateError }

// Subscribe registers fn for every subsequent transition.
func (t *Transaction) Subscribe(fn func(state domain.TxState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers = append(t.subscribers, fn)
}

// Mine starts the mining watch on first call and returns its future. The
// watch is detached from ctx cancellation.
func (t *Transaction) Mine(ctx context.Context) *future.Future[*domain.Receipt] {
	t.mineOnce.Do(func() {
		t.mined = future.Go(context.WithoutCancel(ctx), t.watch)
	})
	return t.mined
}

// Confirm waits until the transaction has n confirmations and marks it
// finalized. The mined block itself counts as the first confirmation.
func (t *Transaction) Confirm(ctx context.Context, n uint64) (*domain.Receipt, error) {
	receipt, err := t.Mine(ctx).Await(ctx)
	if err != nil {
		return nil, err
	}

	start := t.opts.Clock()
	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		head, err := t.client.BlockNumber(ctx)
		if err != nil {
			slog.Warn("failed to read chain head", "tx", t.id, "hash", receipt.TxHash, "error", err)
		} else if head+1 >= receipt.BlockNumber+n {
			t.transition(domain.TxStateFinalized, fmt.Sprintf("%d confirmations", n), nil)
			metrics.ConfirmationWait.Observe(t.opts.Clock().Sub(start).Seconds())
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Transaction) watch(ctx context.Context) (*domain.Receipt, error) {
	hash, err := t.sent.Await(ctx)
	if err != nil {
		t.fail(fmt.Errorf("send failed: %w", err))
		t.resync(ctx)
		return nil, t.Err()
	}

	t.mu.Lock()
	t.hash = hash
	t.mu.Unlock()
	t.transition(domain.TxStatePending, "sent", nil)

	pendingSince := t.opts.Clock()
	ticker := time.NewTicker(t.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.client.TransactionReceipt(ctx, hash)
		switch {
		case err != nil:
			slog.Warn("failed to fetch receipt", "tx", t.id, "hash", hash, "error", err)
		case receipt == nil:
			if t.opts.DropTimeout > 0 && t.opts.Clock().Sub(pendingSince) > t.opts.DropTimeout {
				t.fail(fmt.Errorf("%w: %s not mined after %s", domain.ErrTransactionDropped, hash, t.opts.DropTimeout))
				return nil, t.Err()
			}
		case !receipt.Succeeded():
			t.mu.Lock()
			t.receipt = receipt
			t.mu.Unlock()
			t.fail(fmt.Errorf("%w: %s in block %d", domain.ErrTransactionReverted, hash, receipt.BlockNumber))
			return nil, t.Err()
		default:
			t.transition(domain.TxStateMined, fmt.Sprintf("block %d", receipt.BlockNumber), receipt)
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (t *Transaction) resync(ctx context.Context) {
	r, ok := t.nonces.(nonce.Resyncer)
	if !ok {
		return
	}
	if err := r.Resync(ctx); err != nil {
		slog.Warn("nonce resync failed", "tx", t.id, "error", err)
	}
}

func (t *Transaction) fail(err error) {
	t.mu.Lock()
	if t.err == nil {
		t.err = err
	}
	t.mu.Unlock()
	t.transition(domain.TxStateError, err.Error(), nil)
}

// transition applies to when allowed and notifies subscribers outside the lock.
func (t *Transaction) transition(to State, reason string, receipt *domain.Receipt) bool {
	t.mu.Lock()
	from := t.state
	if !CanTransition(from, to) {
		t.mu.Unlock()
		if from != to {
			slog.Debug("ignored transition", "tx", t.id, "error", ErrInvalidTransition, "from", from, "to", to)
		}
		return false
	}

	now := t.opts.Clock()
	t.state = to
	t.updatedAt = now
	if to.Order() > t.highest.Order() {
		t.highest = to
	}
	if receipt != nil {
		t.receipt = receipt
	}
	if to == domain.TxStateMined {
		t.minedAt = now
	}
	t.history = append(t.history, NewTransition(from, to, reason, now))
	subs := make([]func(State), len(t.subscribers))
	copy(subs, t.subscribers)
	t.mu.Unlock()

	metrics.TransactionTransitions.WithLabelValues(string(to)).Inc()
	slog.Debug("transaction transition", "tx", t.id, "from", from, "to", to, "reason", reason)

	for _, fn := range subs {
		fn(to)
	}
	return true
}
