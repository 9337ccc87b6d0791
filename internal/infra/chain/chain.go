// Package chain defines the boundary between the transaction manager and a
// chain node.
package chain

import (
	"context"

	"github.com/holiman/uint256"

	"github.com/vietddude/txmanager/internal/core/domain"
)

// Client is the chain-level execution interface the manager depends on.
type Client interface {
	// TransactionSettings returns the chain default transaction options.
	TransactionSettings(ctx context.Context) (TxOptions, error)

	// SendTransaction submits a transaction and returns its hash.
	SendTransaction(ctx context.Context, opts TxOptions) (string, error)

	// TransactionReceipt returns the receipt for hash, or nil if not yet mined.
	TransactionReceipt(ctx context.Context, hash string) (*domain.Receipt, error)

	// BlockNumber returns the latest block number on the chain.
	BlockNumber(ctx context.Context) (uint64, error)

	// PendingNonceAt returns the next nonce for addr including pending transactions.
	PendingNonceAt(ctx context.Context, addr string) (uint64, error)
}

// Contract is a deployed contract whose methods can be ABI encoded.
type Contract interface {
	Name() string
	Address() string
	Pack(method string, args ...any) ([]byte, error)
}

// TxOptions is the transaction data sent to the node.
type TxOptions struct {
	From     string       `yaml:"from" json:"from,omitempty"`
	To       string       `yaml:"to" json:"to,omitempty"`
	Data     []byte       `yaml:"-" json:"data,omitempty"`
	Value    *uint256.Int `yaml:"-" json:"value,omitempty"`
	Gas      uint64       `yaml:"gas" json:"gas,omitempty"`
	GasPrice *uint256.Int `yaml:"-" json:"gas_price,omitempty"`
	Nonce    *uint64      `yaml:"-" json:"nonce,omitempty"`
	ChainID  uint64       `yaml:"chain_id" json:"chain_id,omitempty"`
}

// Merge returns o with every non-zero field of override applied on top.
func (o TxOptions) Merge(override TxOptions) TxOptions {
	out := o
	if override.From != "" {
		out.From = override.From
	}
	if override.To != "" {
		out.To = override.To
	}
	if len(override.Data) > 0 {
		out.Data = override.Data
	}
	if override.Value != nil {
		out.Value = new(uint256.Int).Set(override.Value)
	}
	if override.Gas != 0 {
		out.Gas = override.Gas
	}
	if override.GasPrice != nil {
		out.GasPrice = new(uint256.Int).Set(override.GasPrice)
	}
	if override.Nonce != nil {
		n := *override.Nonce
		out.Nonce = &n
	}
	if override.ChainID != 0 {
		out.ChainID = override.ChainID
	}
	return out
}

// WithNonce returns a copy of o carrying nonce n.
func (o TxOptions) WithNonce(n uint64) TxOptions {
	o.Nonce = &n
	return o
}
