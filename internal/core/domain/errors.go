package domain

import "errors"

var (
	// ErrNotFound is returned when no transaction is tracked under a handle.
	ErrNotFound = errors.New("transaction not found")

	// ErrTransactionReverted is returned when a mined transaction has status 0.
	ErrTransactionReverted = errors.New("transaction reverted")

	// ErrTransactionDropped is returned when no receipt shows up before the drop timeout.
	ErrTransactionDropped = errors.New("transaction dropped")

	// ErrNonceAllocation is returned when the nonce allocator fails.
	ErrNonceAllocation = errors.New("nonce allocation failed")

	// ErrSettings is returned when chain default settings cannot be read.
	ErrSettings = errors.New("chain settings unavailable")

	// ErrInvalidHandle is returned for values that cannot serve as handles.
	ErrInvalidHandle = errors.New("invalid handle")

	// ErrInvalidOptions is returned when call options fail validation.
	ErrInvalidOptions = errors.New("invalid call options")
)
