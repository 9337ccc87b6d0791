// Package proxy routes contract calls through a proxy contract exposing
// execute(address,bytes).
package proxy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/infra/chain"
	"github.com/vietddude/txmanager/internal/infra/chain/evm"
)

// ExecuteSignature is the proxy entry point.
const ExecuteSignature = "execute(address,bytes)"

var executeMethod = evm.MustParseMethod(ExecuteSignature)

// Executor sends calls through a proxy contract.
type Executor struct {
	client         chain.Client
	defaultAddress string
}

func NewExecutor(client chain.Client, defaultAddress string) *Executor {
	return &Executor{client: client, defaultAddress: defaultAddress}
}

// Execute packs method on contract, wraps it in the proxy's execute call and
// sends it to address, or to the default proxy when address is empty.
func (e *Executor) Execute(
	ctx context.Context,
	contract chain.Contract,
	method string,
	args []any,
	opts chain.TxOptions,
	address string,
) (string, error) {
	if address == "" {
		address = e.defaultAddress
	}
	if address == "" {
		return "", fmt.Errorf("%w: no proxy address configured", domain.ErrInvalidOptions)
	}

	if _, err := evm.ParseAddress(address); err != nil {
		return "", fmt.Errorf("%w: proxy %v", domain.ErrInvalidOptions, err)
	}

	inner, err := contract.Pack(method, args...)
	if err != nil {
		return "", err
	}
	data, err := wrap(contract.Address(), inner)
	if err != nil {
		return "", fmt.Errorf("wrap %s.%s for proxy: %w", contract.Name(), method, err)
	}

	opts.To = address
	opts.Data = data
	slog.Debug("dispatching through proxy",
		"proxy", address,
		"contract", contract.Name(),
		"method", method,
	)
	return e.client.SendTransaction(ctx, opts)
}

// wrap encodes execute(target, inner).
func wrap(target string, inner []byte) ([]byte, error) {
	addr, err := evm.ParseAddress(target)
	if err != nil {
		return nil, err
	}
	body, err := executeMethod.Inputs.Pack(addr, inner)
	if err != nil {
		return nil, err
	}
	data := make([]byte, 0, len(executeMethod.ID)+len(body))
	data = append(data, executeMethod.ID...)
	return append(data, body...), nil
}
