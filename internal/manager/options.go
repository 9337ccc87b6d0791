package manager

import (
	"fmt"

	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/core/future"
	"github.com/vietddude/txmanager/internal/core/handle"
	"github.com/vietddude/txmanager/internal/infra/chain"
)

// CallOptions are the optional settings of a manager call. For contract
// calls they are passed as the last positional argument.
type CallOptions struct {
	// Tx is caller-supplied transaction data. It overrides chain defaults;
	// the allocated nonce overrides it.
	Tx chain.TxOptions

	// Metadata is merged into the call metadata of the transaction.
	Metadata map[string]any

	// Promise is an external pending operation under which the transaction
	// is registered in addition to the returned handle.
	Promise future.Settler

	// BusinessObject is carried on the transaction for observers and listeners.
	BusinessObject any

	// Proxy routes the call through the proxy contract.
	Proxy *ProxyOption
}

// ProxyOption selects proxy dispatch. An empty Address uses the configured proxy.
type ProxyOption struct {
	Address string
}

// ViaProxy returns a ProxyOption for address.
func ViaProxy(address string) *ProxyOption {
	return &ProxyOption{Address: address}
}

func (o CallOptions) validate() error {
	if o.Promise != nil {
		if err := handle.Validate(o.Promise); err != nil {
			return fmt.Errorf("%w: promise: %w", domain.ErrInvalidOptions, err)
		}
	}
	return nil
}

// splitArgs extracts trailing CallOptions from positional contract arguments.
func splitArgs(args []any) ([]any, CallOptions, error) {
	if len(args) == 0 {
		return args, CallOptions{}, nil
	}

	var opts CallOptions
	switch last := args[len(args)-1].(type) {
	case CallOptions:
		opts = last
	case *CallOptions:
		if last != nil {
			opts = *last
		}
	default:
		return args, CallOptions{}, nil
	}

	args = args[:len(args)-1]
	for i, a := range args {
		switch a.(type) {
		case CallOptions, *CallOptions:
			return nil, CallOptions{}, fmt.Errorf("%w: call options at position %d must be last", domain.ErrInvalidOptions, i)
		}
	}
	return args, opts, opts.validate()
}

func singleOptions(opts []CallOptions) (CallOptions, error) {
	switch len(opts) {
	case 0:
		return CallOptions{}, nil
	case 1:
		return opts[0], opts[0].validate()
	default:
		return CallOptions{}, fmt.Errorf("%w: expected at most one CallOptions, got %d", domain.ErrInvalidOptions, len(opts))
	}
}
