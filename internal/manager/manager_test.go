package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/core/future"
	"github.com/vietddude/txmanager/internal/infra/chain"
	"github.com/vietddude/txmanager/internal/infra/chain/evm"
	"github.com/vietddude/txmanager/internal/txstate"
)

const (
	tokenAddr     = "0x00000000000000000000000000000000000000aa"
	recipientAddr = "0x00000000000000000000000000000000000000bb"
	proxyAddr     = "0x00000000000000000000000000000000000000dd"
)

// fakeChain mines every transaction in block 10 with the configured status.
type fakeChain struct {
	mu          sync.Mutex
	settings    chain.TxOptions
	settingsErr error
	status      uint64
	sent        []chain.TxOptions
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		settings: chain.TxOptions{From: "0xdefault", Gas: 21000, ChainID: 1},
		status:   1,
	}
}

func (f *fakeChain) TransactionSettings(ctx context.Context) (chain.TxOptions, error) {
	return f.settings, f.settingsErr
}

func (f *fakeChain) SendTransaction(ctx context.Context, opts chain.TxOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, opts)
	return fmt.Sprintf("0xhash%d", len(f.sent)), nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash string) (*domain.Receipt, error) {
	return &domain.Receipt{TxHash: hash, BlockNumber: 10, Status: f.status}, nil
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) { return 20, nil }

func (f *fakeChain) PendingNonceAt(ctx context.Context, addr string) (uint64, error) {
	return 0, nil
}

func (f *fakeChain) sentTxs() []chain.TxOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chain.TxOptions(nil), f.sent...)
}

type fakeNonces struct {
	mu    sync.Mutex
	next  uint64
	err   error
	calls int
}

func (f *fakeNonces) GetNonce(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	n := f.next
	f.next++
	return n, nil
}

type proxyCall struct {
	contract string
	method   string
	args     []any
	opts     chain.TxOptions
	address  string
}

type fakeProxy struct {
	mu    sync.Mutex
	calls []proxyCall
}

func (f *fakeProxy) Execute(
	ctx context.Context,
	contract chain.Contract,
	method string,
	args []any,
	opts chain.TxOptions,
	address string,
) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, proxyCall{contract.Name(), method, args, opts, address})
	return "0xproxied", nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// eventLog collects lifecycle events from ListenFunc.
type eventLog struct {
	mu     sync.Mutex
	events []domain.TxState
	errs   []error
}

func (l *eventLog) record(event domain.TxState, tx *txstate.Transaction, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
	l.errs = append(l.errs, err)
}

func (l *eventLog) get() []domain.TxState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.TxState(nil), l.events...)
}

// counts returns how often each state was delivered.
func (l *eventLog) counts() map[domain.TxState]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[domain.TxState]int)
	for _, e := range l.events {
		out[e]++
	}
	return out
}

func expectOnce(t *testing.T, l *eventLog, states ...domain.TxState) {
	t.Helper()
	counts := l.counts()
	for _, s := range states {
		if counts[s] != 1 {
			t.Errorf("expected %s once, got %d (events %v)", s, counts[s], l.get())
		}
	}
	if len(l.get()) != len(states) {
		t.Errorf("expected %d events, got %v", len(states), l.get())
	}
}

type fixture struct {
	chain   *fakeChain
	nonces  *fakeNonces
	proxy   *fakeProxy
	clock   *testClock
	manager *Manager
	token   *evm.Contract
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		chain:  newFakeChain(),
		nonces: &fakeNonces{next: 7},
		proxy:  &fakeProxy{},
		clock:  &testClock{now: time.Unix(1_700_000_000, 0)},
	}
	f.manager = New(f.chain, f.nonces, f.proxy, Config{
		PollInterval: time.Millisecond,
		Clock:        f.clock.Now,
	})
	token, err := evm.NewContract("Token", tokenAddr, "transfer(address,uint256)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.token = token
	return f
}

func awaitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSendContractCall_Direct(t *testing.T) {
	f := newFixture(t)

	h := f.manager.SendContractCall(context.Background(), f.token, "transfer(address,uint256)",
		recipientAddr, 1,
		CallOptions{Metadata: map[string]any{"order": "A-1"}, BusinessObject: "order-A-1"},
	)

	receipt, err := h.Await(awaitCtx(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.TxHash != "0xhash1" {
		t.Errorf("unexpected receipt %+v", receipt)
	}

	sent := f.chain.sentTxs()
	if len(sent) != 1 {
		t.Fatalf("expected one send, got %d", len(sent))
	}
	want, _ := f.token.Pack("transfer", recipientAddr, 1)
	if sent[0].To != tokenAddr || string(sent[0].Data) != string(want) {
		t.Errorf("unexpected direct dispatch: %+v", sent[0])
	}
	if len(f.proxy.calls) != 0 {
		t.Error("proxy must not be used without the proxy option")
	}

	tx, err := f.manager.GetTransaction(h, "transfer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	meta := tx.Metadata()
	if meta.Contract != "Token" || meta.Method != "transfer" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if len(meta.Args) != 2 {
		t.Errorf("options must be stripped from args, got %v", meta.Args)
	}
	if meta.Extra["order"] != "A-1" {
		t.Errorf("expected merged metadata, got %v", meta.Extra)
	}
	if tx.BusinessObject() != "order-A-1" {
		t.Errorf("unexpected business object %v", tx.BusinessObject())
	}
	if !f.manager.IsMined(h) {
		t.Error("expected IsMined")
	}
}

func TestSendContractCall_Proxy(t *testing.T) {
	tests := []struct {
		name    string
		option  *ProxyOption
		address string
	}{
		{"explicit address", ViaProxy(proxyAddr), proxyAddr},
		{"default address", &ProxyOption{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			h := f.manager.SendContractCall(context.Background(), f.token, "transfer",
				recipientAddr, 1, &CallOptions{Proxy: tt.option})
			if _, err := h.Await(awaitCtx(t)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(f.proxy.calls) != 1 {
				t.Fatalf("expected one proxy call, got %d", len(f.proxy.calls))
			}
			call := f.proxy.calls[0]
			if call.address != tt.address || call.method != "transfer" || len(call.args) != 2 {
				t.Errorf("unexpected proxy call %+v", call)
			}
			if call.opts.Nonce == nil || *call.opts.Nonce != 7 {
				t.Errorf("expected built options to reach the proxy, got %+v", call.opts)
			}
			if len(f.chain.sentTxs()) != 0 {
				t.Error("direct send must not happen in proxy mode")
			}
		})
	}
}

func TestSendTransaction_OptionPriority(t *testing.T) {
	f := newFixture(t)
	callerNonce := uint64(1)

	h := f.manager.SendTransaction(context.Background(), chain.TxOptions{
		To:    recipientAddr,
		Value: uint256.NewInt(5),
		Gas:   50000,
		Nonce: &callerNonce,
	})
	if _, err := h.Await(awaitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := f.chain.sentTxs()[0]
	if sent.From != "0xdefault" {
		t.Errorf("expected chain default from, got %s", sent.From)
	}
	if sent.Gas != 50000 {
		t.Errorf("expected caller gas to override default, got %d", sent.Gas)
	}
	if sent.Nonce == nil || *sent.Nonce != 7 {
		t.Errorf("expected allocated nonce to override caller nonce, got %v", sent.Nonce)
	}
	if sent.Value.Uint64() != 5 || sent.To != recipientAddr {
		t.Errorf("unexpected raw transaction %+v", sent)
	}
}

func TestSend_BuildFailures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(f *fixture)
		wantErr    error
		wantNonces int
	}{
		{
			name:       "nonce allocation",
			setup:      func(f *fixture) { f.nonces.err = errors.New("redis down") },
			wantErr:    domain.ErrNonceAllocation,
			wantNonces: 1,
		},
		{
			name:       "chain settings",
			setup:      func(f *fixture) { f.chain.settingsErr = errors.New("rpc down") },
			wantErr:    domain.ErrSettings,
			wantNonces: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)
			observed := 0
			f.manager.OnNewTransaction(func(tx *txstate.Transaction) { observed++ })

			promise := future.New[string]()
			h := f.manager.SendContractCall(context.Background(), f.token, "transfer",
				recipientAddr, 1, CallOptions{Promise: promise})

			_, err := h.Await(awaitCtx(t))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if f.nonces.calls != tt.wantNonces {
				t.Errorf("expected %d nonce requests, got %d", tt.wantNonces, f.nonces.calls)
			}
			if observed != 0 {
				t.Error("no transaction object may be created on build failure")
			}
			if len(f.chain.sentTxs()) != 0 {
				t.Error("nothing may be sent on build failure")
			}
			if f.manager.Tracker().Len() != 0 {
				t.Error("nothing may be registered on build failure")
			}
			if _, err := f.manager.GetTransaction(promise); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("expected ErrNotFound for promise, got %v", err)
			}
		})
	}
}

func TestOnNewTransaction_OrderAndTiming(t *testing.T) {
	f := newFixture(t)

	var mu sync.Mutex
	var calls []string
	var statesAtObserve []domain.TxState
	for _, name := range []string{"first", "second", "third"} {
		f.manager.OnNewTransaction(func(tx *txstate.Transaction) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, name)
			statesAtObserve = append(statesAtObserve, tx.State())
		})
	}

	// A panicking observer must not stop the transaction.
	f.manager.OnNewTransaction(func(tx *txstate.Transaction) { panic("boom") })

	var lifecycle []domain.TxState
	f.manager.OnNewTransaction(func(tx *txstate.Transaction) {
		tx.Subscribe(func(s domain.TxState) {
			mu.Lock()
			defer mu.Unlock()
			lifecycle = append(lifecycle, s)
		})
	})

	h := f.manager.SendContractCall(context.Background(), f.token, "transfer", recipientAddr, 1)
	if _, err := h.Await(awaitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(calls) != "[first second third]" {
		t.Errorf("observers out of order: %v", calls)
	}
	for _, s := range statesAtObserve {
		if s != domain.TxStateInitialized {
			t.Errorf("observer ran after lifecycle started, state %s", s)
		}
	}
	if fmt.Sprint(lifecycle) != "[pending mined]" {
		t.Errorf("observer subscription missed events: %v", lifecycle)
	}
}

func TestPromise_DoubleRegistration(t *testing.T) {
	f := newFixture(t)
	outer := future.New[*domain.Receipt]()

	outerLog := &eventLog{}
	if err := f.manager.ListenFunc(outer, outerLog.record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := f.manager.SendContractCall(context.Background(), f.token, "transfer",
		recipientAddr, 1, CallOptions{Promise: outer})
	if _, err := h.Await(awaitCtx(t)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inner, err := f.manager.GetTransaction(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	viaOuter, err := f.manager.GetTransaction(outer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner != viaOuter {
		t.Error("both handles must resolve to the same transaction")
	}

	hOuter, _ := f.manager.Handle(outer)
	hInner, _ := f.manager.Handle(h)
	if hOuter == hInner {
		t.Error("returned handle must differ from the external one")
	}

	expectOnce(t, outerLog, domain.TxStateInitialized, domain.TxStatePending, domain.TxStateMined)
}

func TestListen_ReplayAndConfirm(t *testing.T) {
	f := newFixture(t)

	h := f.manager.SendContractCall(context.Background(), f.token, "transfer", recipientAddr, 1)
	log := &eventLog{}
	if err := f.manager.ListenFunc(h, log.record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := f.manager.Confirm(awaitCtx(t), h, 3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectOnce(t, log,
		domain.TxStateInitialized,
		domain.TxStatePending,
		domain.TxStateMined,
		domain.TxStateFinalized,
	)

	late := &eventLog{}
	if err := f.manager.Listen(h, Handlers{domain.TxStateConfirmed: func(tx *txstate.Transaction, err error) {
		late.record(domain.TxStateFinalized, tx, err)
	}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(late.get()) != 1 {
		t.Errorf("late confirmed listener should be replayed once, got %v", late.get())
	}
}

func TestSend_Reverted(t *testing.T) {
	f := newFixture(t)
	f.chain.status = 0

	h := f.manager.SendContractCall(context.Background(), f.token, "transfer", recipientAddr, 1)
	log := &eventLog{}
	_ = f.manager.ListenFunc(h, log.record)

	_, err := h.Await(awaitCtx(t))
	if !errors.Is(err, domain.ErrTransactionReverted) {
		t.Fatalf("expected ErrTransactionReverted, got %v", err)
	}
	if f.manager.IsMined(h) {
		t.Error("reverted transaction is not mined")
	}
	if err := f.manager.Confirm(awaitCtx(t), h, 1); !errors.Is(err, domain.ErrTransactionReverted) {
		t.Errorf("confirm should fail with the revert, got %v", err)
	}

	expectOnce(t, log, domain.TxStateInitialized, domain.TxStatePending, domain.TxStateError)
	log.mu.Lock()
	defer log.mu.Unlock()
	for i, e := range log.events {
		if e == domain.TxStateError && !errors.Is(log.errs[i], domain.ErrTransactionReverted) {
			t.Errorf("error listener should receive the revert, got %v", log.errs[i])
		}
	}
}

func TestSend_InvalidOptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		h    *future.Future[*domain.Receipt]
	}{
		{"options not last", f.manager.SendContractCall(ctx, f.token, "transfer", CallOptions{}, recipientAddr, 1, CallOptions{})},
		{"value promise", f.manager.SendContractCall(ctx, f.token, "transfer", recipientAddr, 1, CallOptions{Promise: valueSettler{}})},
		{"proxy on raw transaction", f.manager.SendTransaction(ctx, chain.TxOptions{To: recipientAddr}, CallOptions{Proxy: ViaProxy(proxyAddr)})},
		{"two option sets", f.manager.SendTransaction(ctx, chain.TxOptions{}, CallOptions{}, CallOptions{})},
		{"nil contract", f.manager.SendContractCall(ctx, nil, "transfer")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.h.Await(awaitCtx(t)); !errors.Is(err, domain.ErrInvalidOptions) {
				t.Errorf("expected ErrInvalidOptions, got %v", err)
			}
		})
	}
	if f.nonces.calls != 0 {
		t.Errorf("invalid options must not allocate nonces, got %d", f.nonces.calls)
	}
}

func TestGetTransaction_Unknown(t *testing.T) {
	f := newFixture(t)

	if _, err := f.manager.GetTransaction(future.New[string](), "order"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.manager.GetTransaction(nil); !errors.Is(err, domain.ErrInvalidHandle) {
		t.Errorf("expected ErrInvalidHandle, got %v", err)
	}
	if f.manager.IsMined(future.New[string]()) {
		t.Error("unknown handle is not mined")
	}
}

func TestExpiry_ForgetsHandle(t *testing.T) {
	f := newFixture(t)

	h := f.manager.SendContractCall(context.Background(), f.token, "transfer", recipientAddr, 1)
	if err := f.manager.Confirm(awaitCtx(t), h, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.clock.Advance(4 * time.Minute)
	if n := f.manager.Tracker().ClearExpiredTransactions(); n != 0 {
		t.Fatalf("nothing should expire within retention, removed %d", n)
	}

	f.clock.Advance(2 * time.Minute)
	if n := f.manager.Tracker().ClearExpiredTransactions(); n != 1 {
		t.Fatalf("expected one expired transaction, removed %d", n)
	}
	if _, err := f.manager.GetTransaction(h); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after expiry, got %v", err)
	}
	if _, ok := f.manager.Handle(h); ok {
		t.Error("expired handle identity should be forgotten")
	}
}

func TestExpiry_DropsListenersOfFailedSend(t *testing.T) {
	f := newFixture(t)
	f.nonces.err = errors.New("redis down")

	promise := future.New[string]()
	h := f.manager.SendContractCall(context.Background(), f.token, "transfer",
		recipientAddr, 1, CallOptions{Promise: promise})
	if _, err := h.Await(awaitCtx(t)); err == nil {
		t.Fatal("expected build failure")
	}

	var events eventLog
	if err := f.manager.ListenFunc(h, events.record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.manager.ListenFunc(promise, events.record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.manager.Tracker().Len() != 2 {
		t.Fatalf("expected two listener-only handles, got %d", f.manager.Tracker().Len())
	}

	f.manager.Tracker().ClearExpiredTransactions()
	if f.manager.Tracker().Len() != 2 {
		t.Fatal("listener-only handles must stay within retention")
	}

	// The rejected handle can never receive a transaction; the caller's
	// promise is still pending and might.
	f.clock.Advance(time.Hour)
	f.manager.Tracker().ClearExpiredTransactions()
	if n := f.manager.Tracker().Len(); n != 1 {
		t.Fatalf("expected only the pending promise to stay, got %d handles", n)
	}
	if _, ok := f.manager.Handle(h); ok {
		t.Error("dropped handle identity should be forgotten")
	}
	if _, ok := f.manager.Handle(promise); !ok {
		t.Error("pending promise should still be tracked")
	}

	promise.Reject(errors.New("abandoned"))
	f.manager.Tracker().ClearExpiredTransactions()
	if n := f.manager.Tracker().Len(); n != 0 {
		t.Errorf("expected settled listener-only handles to be dropped, got %d", n)
	}
	if len(events.get()) != 0 {
		t.Errorf("no lifecycle events expected, got %v", events.get())
	}
}

// valueSettler is a non-pointer Settler.
type valueSettler struct{}

func (valueSettler) Done() <-chan struct{} { return nil }
func (valueSettler) Err() error            { return nil }
