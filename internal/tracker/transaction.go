package tracker

import (
	"time"

	"github.com/vietddude/txmanager/internal/core/domain"
)

// Transaction is the view of a transaction-state object the tracker needs.
type Transaction interface {
	// State returns the current lifecycle state.
	State() domain.TxState

	// Err returns the transaction error, if any.
	Err() error

	// MinedAt returns when the transaction was mined (zero if never).
	MinedAt() time.Time

	// UpdatedAt returns the time of the last transition.
	UpdatedAt() time.Time

	// InOrPastState reports whether the transaction reached state.
	InOrPastState(state domain.TxState) bool

	IsMined() bool
	IsError() bool
	IsFinalized() bool

	// Subscribe registers fn for every subsequent transition.
	Subscribe(fn func(state domain.TxState))
}

// Listener receives a transaction and its error (nil unless errored).
type Listener[T Transaction] func(tx T, err error)

// Handlers maps lifecycle states to listeners. TxStateConfirmed is accepted as
// an alias of TxStateFinalized.
type Handlers[T Transaction] map[domain.TxState]Listener[T]

// Uniform builds Handlers that call fn for every lifecycle event.
func Uniform[T Transaction](fn func(event domain.TxState, tx T, err error)) Handlers[T] {
	h := make(Handlers[T], len(domain.AllStates))
	for _, s := range domain.AllStates {
		state := s
		h[state] = func(tx T, err error) {
			fn(state, tx, err)
		}
	}
	return h
}

func reached(tx Transaction, state domain.TxState) bool {
	if state == domain.TxStateError {
		return tx.IsError()
	}
	return tx.InOrPastState(state)
}

func isTerminal(tx Transaction) bool {
	return tx.IsFinalized() || tx.IsError()
}

// expiryStamp is the mined timestamp, or the last transition time for
// transactions that errored before being mined.
func expiryStamp(tx Transaction) time.Time {
	if at := tx.MinedAt(); !at.IsZero() {
		return at
	}
	return tx.UpdatedAt()
}
