package tracker

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/metrics"
)

// DefaultRetention is how long terminal transactions stay reachable.
const DefaultRetention = 5 * time.Minute

// listenOrder fixes the order in which a Handlers map is registered.
var listenOrder = []domain.TxState{
	domain.TxStateInitialized,
	domain.TxStatePending,
	domain.TxStateMined,
	domain.TxStateFinalized,
	domain.TxStateConfirmed,
	domain.TxStateError,
}

type entry[T Transaction] struct {
	tx     T
	seq    uint64
	active bool
}

type listener[T Transaction] struct {
	fn   Listener[T]
	seen map[uint64]struct{}
}

type record[T Transaction] struct {
	txs       []*entry[T]
	listeners map[domain.TxState][]*listener[T]
	touched   time.Time
}

type call[T Transaction] struct {
	fn    Listener[T]
	tx    T
	state domain.TxState
}

// collect returns the listeners of state that have not yet seen e and marks them.
func (r *record[T]) collect(state domain.TxState, e *entry[T]) []call[T] {
	var calls []call[T]
	for _, l := range r.listeners[state] {
		if _, ok := l.seen[e.seq]; ok {
			continue
		}
		l.seen[e.seq] = struct{}{}
		calls = append(calls, call[T]{fn: l.fn, tx: e.tx, state: state})
	}
	return calls
}

// HandleInfo is a snapshot of one tracked handle.
type HandleInfo struct {
	Handle       domain.Handle    `json:"handle"`
	Transactions int              `json:"transactions"`
	Listeners    int              `json:"listeners"`
	States       []domain.TxState `json:"states"`
}

// Tracker is a registry of transactions and lifecycle listeners keyed by handle.
type Tracker[T Transaction] struct {
	mu        sync.Mutex
	records   map[domain.Handle]*record[T]
	seq       uint64
	retention time.Duration
	now       func() time.Time
	onEvict   func(domain.Handle)
	idle      func(domain.Handle) bool
	log       *slog.Logger
}

// Resolver yields the handle to store or listen under. It runs with the
// tracker locked, so resolution and eviction of the same handle never interleave.
type Resolver func() (domain.Handle, error)

// Option configures a Tracker.
type Option func(*options)

type options struct {
	retention time.Duration
	now       func() time.Time
	idle      func(domain.Handle) bool
}

// WithRetention overrides the retention window.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retention = d
		}
	}
}

// WithClock overrides the time source used by the expiry sweep.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIdleCheck lets the sweep drop handles that only hold listeners. A
// listener-only handle is removed once it has been untouched for the retention
// window and idle reports that no transaction can arrive for it any more.
func WithIdleCheck(idle func(domain.Handle) bool) Option {
	return func(o *options) {
		o.idle = idle
	}
}

// New creates an empty Tracker.
func New[T Transaction](opts ...Option) *Tracker[T] {
	o := options{retention: DefaultRetention, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Tracker[T]{
		records:   make(map[domain.Handle]*record[T]),
		retention: o.retention,
		now:       o.now,
		idle:      o.idle,
		log:       slog.Default().With("component", "tracker"),
	}
}

// OnEvict registers fn to be called when a handle has been fully removed. fn
// runs with the tracker locked and must not call back into the tracker.
func (t *Tracker[T]) OnEvict(fn func(domain.Handle)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onEvict = fn
}

// ensure must be called with t.mu held.
func (t *Tracker[T]) ensure(h domain.Handle) *record[T] {
	rec, ok := t.records[h]
	if !ok {
		rec = &record[T]{listeners: make(map[domain.TxState][]*listener[T])}
		t.records[h] = rec
		metrics.TrackedHandles.Set(float64(len(t.records)))
	}
	rec.touched = t.now()
	return rec
}

func fixed(h domain.Handle) Resolver {
	return func() (domain.Handle, error) { return h, nil }
}

// Store registers tx under h and wires its transitions to the handle's listeners.
func (t *Tracker[T]) Store(h domain.Handle, tx T) {
	_, _ = t.StoreFor(fixed(h), tx)
}

// StoreFor is Store with the handle resolved under the tracker lock.
func (t *Tracker[T]) StoreFor(resolve Resolver, tx T) (domain.Handle, error) {
	t.mu.Lock()
	h, err := resolve()
	if err != nil {
		t.mu.Unlock()
		return "", err
	}
	t.seq++
	e := &entry[T]{tx: tx, seq: t.seq, active: true}
	rec := t.ensure(h)
	rec.txs = append(rec.txs, e)
	t.mu.Unlock()

	// Transitions racing with the subscription are covered by the replay
	// below and filtered by seen.
	tx.Subscribe(func(state domain.TxState) {
		t.dispatch(h, e, state)
	})

	var calls []call[T]
	t.mu.Lock()
	if rec, ok := t.records[h]; ok && e.active {
		for _, s := range domain.AllStates {
			if s == domain.TxStateInitialized || reached(tx, s) {
				calls = append(calls, rec.collect(s, e)...)
			}
		}
	}
	t.mu.Unlock()

	metrics.TransactionsStored.Inc()
	t.invoke(h, calls)
	t.sweep()
	return h, nil
}

// Listen registers handlers under h and replays states already reached.
func (t *Tracker[T]) Listen(h domain.Handle, handlers Handlers[T]) error {
	_, err := t.ListenFor(fixed(h), handlers)
	return err
}

// ListenFor is Listen with the handle resolved under the tracker lock.
func (t *Tracker[T]) ListenFor(resolve Resolver, handlers Handlers[T]) (domain.Handle, error) {
	for state, fn := range handlers {
		if !state.Valid() {
			return "", fmt.Errorf("%w: unknown lifecycle state %q", domain.ErrInvalidOptions, state)
		}
		if fn == nil {
			return "", fmt.Errorf("%w: nil listener for %q", domain.ErrInvalidOptions, state)
		}
	}

	t.mu.Lock()
	h, err := resolve()
	if err != nil {
		t.mu.Unlock()
		return "", err
	}
	rec := t.ensure(h)
	var calls []call[T]
	for _, key := range listenOrder {
		fn, ok := handlers[key]
		if !ok {
			continue
		}
		state := key.Normalize()
		l := &listener[T]{fn: fn, seen: make(map[uint64]struct{})}
		rec.listeners[state] = append(rec.listeners[state], l)

		for _, e := range rec.txs {
			if reached(e.tx, state) {
				l.seen[e.seq] = struct{}{}
				calls = append(calls, call[T]{fn: fn, tx: e.tx, state: state})
			}
		}
	}
	t.mu.Unlock()

	t.invoke(h, calls)
	return h, nil
}

// GetAll returns the transactions stored under h in insertion order.
func (t *Tracker[T]) GetAll(h domain.Handle) []T {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[h]
	if !ok {
		return nil
	}
	out := make([]T, 0, len(rec.txs))
	for _, e := range rec.txs {
		out = append(out, e.tx)
	}
	return out
}

// Get returns the single transaction stored under h. When several are stored
// the first one is returned and a warning is logged.
func (t *Tracker[T]) Get(h domain.Handle, label ...string) (T, error) {
	txs := t.GetAll(h)
	if len(txs) == 0 {
		var zero T
		return zero, fmt.Errorf("%w: %s", domain.ErrNotFound, describe(h, label))
	}
	if len(txs) > 1 {
		t.log.Warn("Multiple transactions tracked under handle, returning the first",
			"handle", h,
			"label", describe(h, label),
			"count", len(txs),
		)
		metrics.MultipleMatches.Inc()
	}
	return txs[0], nil
}

// ClearExpiredTransactions removes terminal transactions whose mined timestamp
// is older than the retention window. It returns the number removed.
func (t *Tracker[T]) ClearExpiredTransactions() int {
	removed, evicted := t.removeExpired(t.now().Add(-t.retention))

	if removed > 0 || evicted > 0 {
		metrics.TransactionsSwept.Add(float64(removed))
		t.log.Debug("Cleared expired transactions", "removed", removed, "handles", evicted)
	}
	return removed
}

func (t *Tracker[T]) removeExpired(threshold time.Time) (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed, evicted := 0, 0
	for h, rec := range t.records {
		if len(rec.txs) == 0 {
			if t.idle != nil && rec.touched.Before(threshold) && t.idle(h) {
				t.evict(h)
				evicted++
			}
			continue
		}
		kept := make([]*entry[T], 0, len(rec.txs))
		var gone []*entry[T]
		for _, e := range rec.txs {
			if isTerminal(e.tx) && expiryStamp(e.tx).Before(threshold) {
				gone = append(gone, e)
				continue
			}
			kept = append(kept, e)
		}
		if len(gone) == 0 {
			continue
		}
		for _, e := range gone {
			e.active = false
		}
		removed += len(gone)
		rec.txs = kept

		if len(rec.txs) == 0 {
			t.evict(h)
			evicted++
		}
	}
	metrics.TrackedHandles.Set(float64(len(t.records)))
	return removed, evicted
}

// evict must be called with t.mu held.
func (t *Tracker[T]) evict(h domain.Handle) {
	delete(t.records, h)
	if t.onEvict != nil {
		t.onEvict(h)
	}
}

// Handles returns a snapshot of every tracked handle sorted by handle.
func (t *Tracker[T]) Handles() []HandleInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	infos := make([]HandleInfo, 0, len(t.records))
	for h, rec := range t.records {
		info := HandleInfo{Handle: h, Transactions: len(rec.txs)}
		for _, ls := range rec.listeners {
			info.Listeners += len(ls)
		}
		for _, e := range rec.txs {
			info.States = append(info.States, e.tx.State())
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Handle < infos[j].Handle })
	return infos
}

// Len returns the number of tracked handles.
func (t *Tracker[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

func (t *Tracker[T]) dispatch(h domain.Handle, e *entry[T], state domain.TxState) {
	t.mu.Lock()
	rec, ok := t.records[h]
	if !ok || !e.active {
		t.mu.Unlock()
		return
	}
	calls := rec.collect(state, e)
	t.mu.Unlock()

	t.invoke(h, calls)
}

func (t *Tracker[T]) invoke(h domain.Handle, calls []call[T]) {
	for _, c := range calls {
		t.safeCall(h, c)
	}
}

func (t *Tracker[T]) safeCall(h domain.Handle, c call[T]) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("Listener panicked", "handle", h, "state", c.state, "panic", r)
		}
	}()
	metrics.ListenerInvocations.WithLabelValues(string(c.state)).Inc()
	c.fn(c.tx, c.tx.Err())
}

// sweep runs the expiry sweep without letting a failure escape Store.
func (t *Tracker[T]) sweep() {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("Expiry sweep failed", "panic", r)
		}
	}()
	t.ClearExpiredTransactions()
}

func describe(h domain.Handle, label []string) string {
	if len(label) > 0 && label[0] != "" {
		return fmt.Sprintf("%s (%s)", label[0], h)
	}
	return string(h)
}
