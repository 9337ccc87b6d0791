package evm

import (
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// ParseMethod builds an ABI method from a human-readable signature such as
// "transfer(address, uint256)". The selector is derived from the canonical
// form, so whitespace between parameters does not change it.
func ParseMethod(signature string) (abi.Method, error) {
	open := strings.IndexByte(signature, '(')
	if open <= 0 || !strings.HasSuffix(signature, ")") {
		return abi.Method{}, fmt.Errorf("invalid method signature %q", signature)
	}
	name := strings.TrimSpace(signature[:open])
	params := strings.TrimSpace(signature[open+1 : len(signature)-1])

	var inputs abi.Arguments
	if params != "" {
		for i, raw := range strings.Split(params, ",") {
			typ, err := abi.NewType(strings.TrimSpace(raw), "", nil)
			if err != nil {
				return abi.Method{}, fmt.Errorf("parameter %d of %q: %w", i, signature, err)
			}
			inputs = append(inputs, abi.Argument{Type: typ})
		}
	}
	return abi.NewMethod(name, name, abi.Function, "nonpayable", false, false, inputs, nil), nil
}

// MustParseMethod is ParseMethod for signatures known at compile time.
func MustParseMethod(signature string) abi.Method {
	m, err := ParseMethod(signature)
	if err != nil {
		panic(err)
	}
	return m
}

// ParseAddress accepts a 20-byte hex address with or without the 0x prefix.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// ConvertArgs coerces loosely typed call arguments (hex strings, Go integers,
// uint256 values) into the Go types the ABI packer expects for m's inputs.
func ConvertArgs(m abi.Method, args []any) ([]any, error) {
	if len(args) != len(m.Inputs) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(m.Inputs), len(args))
	}
	out := make([]any, len(args))
	for i, arg := range args {
		v, err := convertArg(m.Inputs[i].Type, arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, m.Inputs[i].Type, err)
		}
		out[i] = v
	}
	return out, nil
}

func convertArg(typ abi.Type, arg any) (any, error) {
	if arg == nil {
		return nil, fmt.Errorf("nil value")
	}
	switch typ.T {
	case abi.AddressTy:
		return toAddress(arg)
	case abi.UintTy, abi.IntTy:
		return toInteger(typ, arg)
	case abi.FixedBytesTy:
		return toFixedBytes(typ, arg)
	case abi.BytesTy:
		return toBytes(arg)
	case abi.StringTy:
		if b, ok := arg.([]byte); ok {
			return string(b), nil
		}
	case abi.SliceTy, abi.ArrayTy:
		return toSequence(typ, arg)
	}
	// bool, string and tuples are checked by the packer
	return arg, nil
}

func toAddress(arg any) (common.Address, error) {
	switch v := arg.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		if v != nil {
			return *v, nil
		}
	case string:
		return ParseAddress(v)
	}
	return common.Address{}, fmt.Errorf("expected address, got %T", arg)
}

func toInteger(typ abi.Type, arg any) (any, error) {
	n, err := toBig(arg)
	if err != nil {
		return nil, err
	}
	if typ.T == abi.UintTy {
		if n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s", n)
		}
		if n.BitLen() > typ.Size {
			return nil, fmt.Errorf("value %s overflows %s", n, typ)
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(typ.Size-1))
		if n.Cmp(new(big.Int).Neg(limit)) < 0 || n.Cmp(limit) >= 0 {
			return nil, fmt.Errorf("value %s overflows %s", n, typ)
		}
	}

	rt := typ.GetType()
	if rt.Kind() == reflect.Pointer {
		return n, nil
	}
	v := reflect.New(rt).Elem()
	if typ.T == abi.UintTy {
		v.SetUint(n.Uint64())
	} else {
		v.SetInt(n.Int64())
	}
	return v.Interface(), nil
}

func toBig(arg any) (*big.Int, error) {
	switch v := arg.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil big.Int")
		}
		return new(big.Int).Set(v), nil
	case *uint256.Int:
		if v == nil {
			return nil, fmt.Errorf("nil uint256")
		}
		return v.ToBig(), nil
	case uint256.Int:
		return v.ToBig(), nil
	case string:
		n, ok := new(big.Int).SetString(v, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", v)
		}
		return n, nil
	}

	rv := reflect.ValueOf(arg)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return big.NewInt(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Int).SetUint64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("expected integer, got %T", arg)
}

func toFixedBytes(typ abi.Type, arg any) (any, error) {
	var b []byte
	switch v := arg.(type) {
	case []byte:
		b = v
	case string:
		decoded, err := decodeHex(v)
		if err != nil {
			return nil, err
		}
		b = decoded
	default:
		rv := reflect.ValueOf(arg)
		if rv.Kind() != reflect.Array || rv.Type().Elem().Kind() != reflect.Uint8 {
			return nil, fmt.Errorf("expected %s, got %T", typ, arg)
		}
		b = make([]byte, rv.Len())
		reflect.Copy(reflect.ValueOf(b), rv)
	}
	if len(b) != typ.Size {
		return nil, fmt.Errorf("expected %d bytes, got %d", typ.Size, len(b))
	}
	out := reflect.New(typ.GetType()).Elem()
	reflect.Copy(out, reflect.ValueOf(b))
	return out.Interface(), nil
}

func toBytes(arg any) ([]byte, error) {
	switch v := arg.(type) {
	case []byte:
		return v, nil
	case string:
		return decodeHex(v)
	}
	return nil, fmt.Errorf("expected bytes, got %T", arg)
}

func toSequence(typ abi.Type, arg any) (any, error) {
	rv := reflect.ValueOf(arg)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("expected %s, got %T", typ, arg)
	}
	if typ.T == abi.ArrayTy && rv.Len() != typ.Size {
		return nil, fmt.Errorf("expected %d elements, got %d", typ.Size, rv.Len())
	}

	var out reflect.Value
	if typ.T == abi.SliceTy {
		out = reflect.MakeSlice(typ.GetType(), rv.Len(), rv.Len())
	} else {
		out = reflect.New(typ.GetType()).Elem()
	}
	for i := 0; i < rv.Len(); i++ {
		elem, err := convertArg(*typ.Elem, rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		ev := reflect.ValueOf(elem)
		if !ev.Type().AssignableTo(out.Index(i).Type()) {
			return nil, fmt.Errorf("element %d: cannot use %T as %s", i, elem, typ.Elem)
		}
		out.Index(i).Set(ev)
	}
	return out.Interface(), nil
}

func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}
