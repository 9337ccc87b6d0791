package evm

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/vietddude/txmanager/internal/core/domain"
	"github.com/vietddude/txmanager/internal/infra/chain"
)

// Contract is an ABI binding: a name, an address and the methods it can encode.
type Contract struct {
	name    string
	address string
	abi     abi.ABI
	// methods maps canonical signatures and bare names to keys of abi.Methods.
	methods map[string]string
}

var _ chain.Contract = (*Contract)(nil)

// NewContract binds signatures such as "transfer(address,uint256)". Methods
// can then be packed by bare name or by full signature; for overloads the
// bare name resolves to the first signature given.
func NewContract(name, address string, signatures ...string) (*Contract, error) {
	parsed := abi.ABI{Methods: make(map[string]abi.Method, len(signatures))}
	for _, sig := range signatures {
		m, err := ParseMethod(sig)
		if err != nil {
			return nil, err
		}
		if _, dup := parsed.Methods[m.RawName]; dup {
			// Overloads are keyed the way abi.JSON keys them: transfer, transfer0, ...
			key := m.RawName
			for i := 0; ; i++ {
				if _, taken := parsed.Methods[key]; !taken {
					break
				}
				key = fmt.Sprintf("%s%d", m.RawName, i)
			}
			m = abi.NewMethod(key, m.RawName, m.Type, m.StateMutability, m.Constant, m.Payable, m.Inputs, m.Outputs)
		}
		parsed.Methods[m.Name] = m
	}
	return bind(name, address, parsed)
}

// NewContractFromJSON binds a contract from its JSON ABI definition.
func NewContractFromJSON(name, address string, r io.Reader) (*Contract, error) {
	parsed, err := abi.JSON(r)
	if err != nil {
		return nil, fmt.Errorf("parse ABI of %s: %w", name, err)
	}
	return bind(name, address, parsed)
}

func bind(name, address string, parsed abi.ABI) (*Contract, error) {
	if _, err := ParseAddress(address); err != nil {
		return nil, fmt.Errorf("contract %s: %w", name, err)
	}
	c := &Contract{
		name:    name,
		address: address,
		abi:     parsed,
		methods: make(map[string]string, len(parsed.Methods)*2),
	}
	for key, m := range parsed.Methods {
		c.methods[m.Sig] = key
		if key == m.RawName {
			c.methods[m.RawName] = key
		}
	}
	return c, nil
}

func (c *Contract) Name() string    { return c.name }
func (c *Contract) Address() string { return c.address }

// Method returns the ABI method name resolves to.
func (c *Contract) Method(name string) (abi.Method, bool) {
	key, ok := c.methods[name]
	if !ok {
		// Normalise signatures written with spaces
		if m, err := ParseMethod(name); err == nil {
			key, ok = c.methods[m.Sig]
		}
	}
	if !ok {
		key, ok = c.methods[domain.MethodName(name)]
	}
	if !ok {
		return abi.Method{}, false
	}
	return c.abi.Methods[key], true
}

// Pack encodes a call to method with args.
func (c *Contract) Pack(name string, args ...any) ([]byte, error) {
	m, ok := c.Method(name)
	if !ok {
		return nil, fmt.Errorf("contract %s has no method %q", c.name, name)
	}
	values, err := ConvertArgs(m, args)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s: %w", c.name, m.Sig, err)
	}
	data, err := c.abi.Pack(m.Name, values...)
	if err != nil {
		return nil, fmt.Errorf("pack %s.%s: %w", c.name, m.Sig, err)
	}
	return data, nil
}
