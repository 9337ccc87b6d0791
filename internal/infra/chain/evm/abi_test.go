package evm

import (
	"bytes"
	"encoding/hex"
	"math/big"
	"strings"
	"testing"

	"github.com/holiman/uint256"
)

const (
	tokenAddr     = "0x00000000000000000000000000000000000000aa"
	recipientAddr = "0x00000000000000000000000000000000000000bb"
)

func TestParseMethod_Selector(t *testing.T) {
	tests := []struct {
		signature string
		want      string
	}{
		{"transfer(address,uint256)", "a9059cbb"},
		{"transfer(address, uint256)", "a9059cbb"},
		{" transfer( address ,uint256 )", "a9059cbb"},
		{"balanceOf(address)", "70a08231"},
		{"execute(address,bytes)", "1cff79cd"},
	}
	for _, tt := range tests {
		m, err := ParseMethod(tt.signature)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.signature, err)
		}
		if got := hex.EncodeToString(m.ID); got != tt.want {
			t.Errorf("%q: expected %s, got %s (canonical %s)", tt.signature, tt.want, got, m.Sig)
		}
	}
}

func TestContract_PackTransfer(t *testing.T) {
	token, err := NewContract("Token", tokenAddr, "transfer(address,uint256)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := token.Pack("transfer", recipientAddr, uint256.NewInt(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "a9059cbb" +
		strings.Repeat("0", 62) + "bb" +
		strings.Repeat("0", 63) + "1"
	if got := hex.EncodeToString(data); got != want {
		t.Errorf("unexpected calldata\n got %s\nwant %s", got, want)
	}

	for _, name := range []string{"transfer(address,uint256)", "transfer(address, uint256)"} {
		bySignature, err := token.Pack(name, recipientAddr, 1)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if !bytes.Equal(data, bySignature) {
			t.Errorf("packing by %q and by name should match", name)
		}
	}
}

func TestContract_SpacedSignature(t *testing.T) {
	token, err := NewContract("Token", tokenAddr, "transfer(address, uint256)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := token.Pack("transfer", recipientAddr, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := hex.EncodeToString(data[:4]); got != "a9059cbb" {
		t.Errorf("expected canonical selector a9059cbb, got %s", got)
	}
}

func TestContract_PackErrors(t *testing.T) {
	token, err := NewContract("Token", tokenAddr,
		"transfer(address,uint256)",
		"setFee(uint8)",
		"setTag(bytes4)",
		"setDelta(int8)",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		method string
		args   []any
	}{
		{"unknown method", "mint", nil},
		{"arity", "transfer", []any{recipientAddr}},
		{"bad address", "transfer", []any{"0xbb", 1}},
		{"negative", "transfer", []any{recipientAddr, -1}},
		{"uint8 overflow", "setFee", []any{300}},
		{"int8 overflow", "setDelta", []any{-129}},
		{"bytes4 too long", "setTag", []any{make([]byte, 32)}},
		{"bytes4 too short", "setTag", []any{"0xdead"}},
		{"bad integer", "setFee", []any{"ten"}},
		{"wrong type", "transfer", []any{recipientAddr, struct{}{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := token.Pack(tt.method, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestContract_PackConvertsArguments(t *testing.T) {
	token, err := NewContract("Token", tokenAddr,
		"setFee(uint8)",
		"setTag(bytes4)",
		"setDelta(int8)",
		"batch(address[],uint256[])",
		"setMemo(string)",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name     string
		method   string
		args     []any
		wantTail string
	}{
		{"uint8 max", "setFee", []any{255}, "ff"},
		{"uint8 from hex string", "setFee", []any{"0x10"}, "10"},
		{"int8 min", "setDelta", []any{-128}, strings.Repeat("f", 62) + "80"},
		{"bytes4 from hex", "setTag", []any{"0xdeadbeef"}, "deadbeef" + strings.Repeat("0", 56)},
		{"bytes4 from array", "setTag", []any{[4]byte{0xde, 0xad, 0xbe, 0xef}}, "deadbeef" + strings.Repeat("0", 56)},
		{"big int", "setFee", []any{big.NewInt(7)}, "07"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := token.Pack(tt.method, tt.args...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(data) != 4+32 {
				t.Fatalf("expected one word, got %d bytes", len(data)-4)
			}
			if got := hex.EncodeToString(data[4:]); !strings.HasSuffix(got, tt.wantTail) && !strings.HasPrefix(got, tt.wantTail) {
				t.Errorf("unexpected word %s", got)
			}
		})
	}

	data, err := token.Pack("batch", []string{recipientAddr, tokenAddr}, []any{1, "0x2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// two offsets, then each array as length + elements
	if len(data) != 4+32*2+32*3+32*3 {
		t.Errorf("unexpected dynamic array encoding length %d", len(data))
	}

	if _, err := token.Pack("setMemo", "hello"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestContract_DynamicBytes(t *testing.T) {
	token, err := NewContract("Proxy", tokenAddr, "execute(address,bytes)")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload := []byte{0xde, 0xad, 0xbe, 0xef}

	data, err := token.Pack("execute", "0x00000000000000000000000000000000000000cc", payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const word = 32
	// selector + address + offset + length + one padded word
	if len(data) != 4+4*word {
		t.Fatalf("unexpected length %d", len(data))
	}
	body := data[4:]
	if body[2*word-1] != 0x40 {
		t.Errorf("expected offset 0x40, got %x", body[word:2*word])
	}
	if body[3*word-1] != 4 {
		t.Errorf("expected length 4, got %x", body[2*word:3*word])
	}
	if !bytes.Equal(body[3*word:3*word+4], payload) {
		t.Errorf("payload not encoded: %x", body[3*word:])
	}

	fromHex, err := token.Pack("execute", "0x00000000000000000000000000000000000000cc", "0xdeadbeef")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(data, fromHex) {
		t.Error("hex string and byte slice payloads should encode the same")
	}
}

func TestContract_Overloads(t *testing.T) {
	c, err := NewContract("Token", tokenAddr,
		"transfer(address,uint256)",
		"transfer(address,uint256,bytes)",
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	byName, err := c.Pack("transfer", recipientAddr, 1)
	if err != nil {
		t.Fatalf("bare name should resolve to the first overload: %v", err)
	}
	if hex.EncodeToString(byName[:4]) != "a9059cbb" {
		t.Errorf("unexpected selector %x", byName[:4])
	}

	if _, err := c.Pack("transfer(address,uint256,bytes)", recipientAddr, 1, []byte{1}); err != nil {
		t.Errorf("second overload should be reachable by signature: %v", err)
	}
}

func TestNewContractFromJSON(t *testing.T) {
	const erc20 = `[
		{"type":"function","name":"transfer","stateMutability":"nonpayable",
		 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
		 "outputs":[{"name":"","type":"bool"}]},
		{"type":"function","name":"balanceOf","stateMutability":"view",
		 "inputs":[{"name":"owner","type":"address"}],
		 "outputs":[{"name":"","type":"uint256"}]}
	]`

	fromJSON, err := NewContractFromJSON("Token", tokenAddr, strings.NewReader(erc20))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fromSig, _ := NewContract("Token", tokenAddr, "transfer(address,uint256)")

	a, err := fromJSON.Pack("transfer", recipientAddr, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := fromSig.Pack("transfer", recipientAddr, 1)
	if !bytes.Equal(a, b) {
		t.Error("JSON and signature bindings should encode the same call")
	}

	if _, ok := fromJSON.Method("balanceOf(address)"); !ok {
		t.Error("expected balanceOf to be reachable by signature")
	}

	if _, err := NewContractFromJSON("Bad", tokenAddr, strings.NewReader("{")); err == nil {
		t.Error("expected error for malformed ABI")
	}
}

func TestNewContract_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		address   string
		signature string
	}{
		{"no parentheses", tokenAddr, "transfer"},
		{"unknown type", tokenAddr, "swap(foo)"},
		{"bad address", "0xaa", "transfer(address,uint256)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewContract("Bad", tt.address, tt.signature); err == nil {
				t.Error("expected error")
			}
		})
	}
}
