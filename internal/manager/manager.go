// Package manager issues transactions and tracks them by the handle returned
// to the caller.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/core/future"
	"github.com/vietddude/txmanager/internal/core/handle"
	"github.com/vietddude/txmanager/internal/infra/chain"
	"github.com/vietddude/txmanager/internal/metrics"
	"github.com/vietddude/txmanager/internal/nonce"
	"github.com/vietddude/txmanager/internal/tracker"
	"github.com/vietddude/txmanager/internal/txstate"
)

const (
	dispatchDirect = "direct"
	dispatchProxy  = "proxy"
	dispatchRaw    = "raw"
)

// Handlers maps lifecycle states to listeners.
type Handlers = tracker.Handlers[*txstate.Transaction]

// Observer is called once for every transaction the manager creates, before
// its mining watch starts.
type Observer func(tx *txstate.Transaction)

// ProxyExecutor dispatches contract calls through a proxy contract.
type ProxyExecutor interface {
	Execute(
		ctx context.Context,
		contract chain.Contract,
		method string,
		args []any,
		opts chain.TxOptions,
		address string,
	) (string, error)
}

// Config holds transaction watch settings.
type Config struct {
	PollInterval time.Duration
	DropTimeout  time.Duration
	Retention    time.Duration
	Clock        func() time.Time
}

// Manager builds, sends and tracks transactions.
type Manager struct {
	client  chain.Client
	nonces  nonce.Allocator
	proxy   ProxyExecutor
	cfg     Config
	tracker *tracker.Tracker[*txstate.Transaction]
	handles *handle.Registry

	obsMu     sync.RWMutex
	observers []Observer

	log *slog.Logger
}

// New creates a Manager. proxy may be nil when proxy dispatch is not used.
func New(client chain.Client, nonces nonce.Allocator, proxy ProxyExecutor, cfg Config) *Manager {
	handles := handle.NewRegistry()
	tr := tracker.New[*txstate.Transaction](
		tracker.WithRetention(cfg.Retention),
		tracker.WithClock(cfg.Clock),
		tracker.WithIdleCheck(handles.Settled),
	)
	tr.OnEvict(handles.Forget)

	return &Manager{
		client:  client,
		nonces:  nonces,
		proxy:   proxy,
		cfg:     cfg,
		tracker: tr,
		handles: handles,
		log:     slog.Default().With("component", "manager"),
	}
}

// Tracker exposes the underlying tracker for sweeping and status reporting.
func (m *Manager) Tracker() *tracker.Tracker[*txstate.Transaction] {
	return m.tracker
}

// OnNewTransaction registers fn for every transaction created from now on.
// Observers run synchronously in registration order and cannot be removed.
func (m *Manager) OnNewTransaction(fn Observer) {
	if fn == nil {
		return
	}
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	m.observers = append(m.observers, fn)
}

// SendContractCall calls method on contract with args. When the last argument
// is a CallOptions (or *CallOptions) it is used as the call options. The
// returned future is the handle of the transaction and settles once mined.
func (m *Manager) SendContractCall(
	ctx context.Context,
	contract chain.Contract,
	method string,
	args ...any,
) *future.Future[*domain.Receipt] {
	h := future.New[*domain.Receipt]()
	if contract == nil {
		m.reject(h, "options", fmt.Errorf("%w: nil contract", domain.ErrInvalidOptions))
		return h
	}

	args, opts, err := splitArgs(args)
	if err != nil {
		m.reject(h, "options", err)
		return h
	}

	meta := domain.CallMetadata{
		Contract: contract.Name(),
		Method:   domain.MethodName(method),
		Args:     args,
	}
	meta.Merge(opts.Metadata)

	dispatch := dispatchDirect
	if opts.Proxy != nil {
		dispatch = dispatchProxy
		if m.proxy == nil {
			m.reject(h, "options", fmt.Errorf("%w: proxy dispatch requested but no proxy is configured", domain.ErrInvalidOptions))
			return h
		}
	}

	exec := func(ctx context.Context, txOpts chain.TxOptions) (string, error) {
		if opts.Proxy != nil {
			return m.proxy.Execute(ctx, contract, method, args, txOpts, opts.Proxy.Address)
		}
		data, err := contract.Pack(method, args...)
		if err != nil {
			return "", err
		}
		txOpts.To = contract.Address()
		txOpts.Data = data
		return m.client.SendTransaction(ctx, txOpts)
	}

	go m.run(context.WithoutCancel(ctx), h, opts, meta, dispatch, exec)
	return h
}

// SendTransaction sends raw transaction data. The returned future is the
// handle of the transaction and settles once mined.
func (m *Manager) SendTransaction(
	ctx context.Context,
	data chain.TxOptions,
	opts ...CallOptions,
) *future.Future[*domain.Receipt] {
	h := future.New[*domain.Receipt]()

	o, err := singleOptions(opts)
	if err == nil && o.Proxy != nil {
		err = fmt.Errorf("%w: proxy dispatch needs a contract call", domain.ErrInvalidOptions)
	}
	if err != nil {
		m.reject(h, "options", err)
		return h
	}
	o.Tx = data.Merge(o.Tx)

	meta := domain.CallMetadata{Contract: data.To}
	meta.Merge(o.Metadata)

	exec := func(ctx context.Context, txOpts chain.TxOptions) (string, error) {
		return m.client.SendTransaction(ctx, txOpts)
	}

	go m.run(context.WithoutCancel(ctx), h, o, meta, dispatchRaw, exec)
	return h
}

type executeFunc func(ctx context.Context, opts chain.TxOptions) (string, error)

func (m *Manager) run(
	ctx context.Context,
	h *future.Future[*domain.Receipt],
	opts CallOptions,
	meta domain.CallMetadata,
	dispatch string,
	exec executeFunc,
) {
	txOpts, err := m.buildOptions(ctx, opts.Tx)
	if err != nil {
		m.reject(h, buildFailureReason(err), err)
		return
	}

	sent := future.Go(ctx, func(ctx context.Context) (string, error) {
		return exec(ctx, txOpts)
	})
	tx := txstate.New(sent, m.client, m.nonces, txstate.Options{
		BusinessObject: opts.BusinessObject,
		Metadata:       meta,
		PollInterval:   m.cfg.PollInterval,
		DropTimeout:    m.cfg.DropTimeout,
		Clock:          m.cfg.Clock,
	})
	metrics.TransactionsCreated.WithLabelValues(dispatch).Inc()
	m.log.Debug("transaction created",
		"tx", tx.ID(),
		"dispatch", dispatch,
		"contract", meta.Contract,
		"method", meta.Method,
		"nonce", txOpts.Nonce,
	)

	m.notify(tx)
	mined := tx.Mine(ctx)

	m.store(h, tx)
	if opts.Promise != nil {
		m.store(opts.Promise, tx)
	}
	future.Forward(mined, h)
}

// buildOptions merges chain defaults, caller data and a fresh nonce, in
// increasing priority. The nonce is allocated last.
func (m *Manager) buildOptions(ctx context.Context, caller chain.TxOptions) (chain.TxOptions, error) {
	settings, err := m.client.TransactionSettings(ctx)
	if err != nil {
		return chain.TxOptions{}, fmt.Errorf("%w: %w", domain.ErrSettings, err)
	}
	opts := settings.Merge(caller)

	n, err := m.nonces.GetNonce(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNonceAllocation) {
			return chain.TxOptions{}, err
		}
		return chain.TxOptions{}, fmt.Errorf("%w: %w", domain.ErrNonceAllocation, err)
	}
	return opts.WithNonce(n), nil
}

func buildFailureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrSettings):
		return "settings"
	case errors.Is(err, domain.ErrNonceAllocation):
		return "nonce"
	default:
		return "other"
	}
}

func (m *Manager) reject(h *future.Future[*domain.Receipt], reason string, err error) {
	metrics.BuildFailures.WithLabelValues(reason).Inc()
	m.log.Error("Failed to build transaction", "reason", reason, "error", err)
	h.Reject(err)
}

func (m *Manager) notify(tx *txstate.Transaction) {
	m.obsMu.RLock()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	m.obsMu.RUnlock()

	for _, fn := range observers {
		m.safeNotify(fn, tx)
	}
}

func (m *Manager) safeNotify(fn Observer, tx *txstate.Transaction) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("New transaction observer panicked", "tx", tx.ID(), "panic", r)
		}
	}()
	fn(tx)
}

func (m *Manager) store(s future.Settler, tx *txstate.Transaction) {
	_, err := m.tracker.StoreFor(m.resolver(s), tx)
	if err != nil {
		m.log.Error("Cannot register transaction", "tx", tx.ID(), "error", err)
	}
}

// resolver assigns the handle of s inside the tracker lock so an eviction of
// the same handle cannot slip between assignment and use.
func (m *Manager) resolver(s future.Settler) tracker.Resolver {
	return func() (domain.Handle, error) {
		return m.handles.For(s)
	}
}

// Handle returns the tracker key of s, if s has been seen.
func (m *Manager) Handle(s future.Settler) (domain.Handle, bool) {
	return m.handles.Lookup(s)
}

// GetTransaction returns the transaction tracked under s. label is used in
// error and diagnostic messages.
func (m *Manager) GetTransaction(s future.Settler, label ...string) (*txstate.Transaction, error) {
	h, ok := m.handles.Lookup(s)
	if !ok {
		if err := handle.Validate(s); err != nil {
			return nil, err
		}
		desc := "untracked handle"
		if len(label) > 0 && label[0] != "" {
			desc = label[0]
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, desc)
	}
	return m.tracker.Get(h, label...)
}

// IsMined reports whether the transaction tracked under s is mined.
func (m *Manager) IsMined(s future.Settler) bool {
	tx, err := m.GetTransaction(s)
	if err != nil {
		return false
	}
	return tx.IsMined()
}

// Confirm waits for s to settle and then for every transaction tracked under
// it to reach n confirmations.
func (m *Manager) Confirm(ctx context.Context, s future.Settler, n uint64) error {
	if err := future.Wait(ctx, s); err != nil {
		return err
	}

	h, ok := m.handles.Lookup(s)
	if !ok {
		return fmt.Errorf("%w: untracked handle", domain.ErrNotFound)
	}
	txs := m.tracker.GetAll(h)
	if len(txs) == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, h)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, tx := range txs {
		g.Go(func() error {
			_, err := tx.Confirm(gctx, n)
			return err
		})
	}
	return g.Wait()
}

// Listen registers lifecycle handlers for s. Handlers may be registered
// before the transaction exists; states already reached are replayed.
func (m *Manager) Listen(s future.Settler, handlers Handlers) error {
	_, err := m.tracker.ListenFor(m.resolver(s), handlers)
	return err
}

// ListenFunc registers fn for every lifecycle event of s.
func (m *Manager) ListenFunc(s future.Settler, fn func(event domain.TxState, tx *txstate.Transaction, err error)) error {
	return m.Listen(s, tracker.Uniform(fn))
}
