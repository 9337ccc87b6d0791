package chain

import (
	"testing"

	"github.com/holiman/uint256"
)

func TestTxOptions_Merge(t *testing.T) {
	defaults := TxOptions{
		From:     "0xsender",
		Gas:      21000,
		GasPrice: uint256.NewInt(1_000_000_000),
		ChainID:  1,
	}
	caller := TxOptions{
		To:    "0xreceiver",
		Value: uint256.NewInt(5),
		Gas:   90000,
	}

	merged := defaults.Merge(caller).WithNonce(7)

	if merged.From != "0xsender" {
		t.Errorf("expected default from, got %s", merged.From)
	}
	if merged.To != "0xreceiver" {
		t.Errorf("expected caller to, got %s", merged.To)
	}
	if merged.Gas != 90000 {
		t.Errorf("expected caller gas to win, got %d", merged.Gas)
	}
	if merged.GasPrice.Uint64() != 1_000_000_000 {
		t.Errorf("expected default gas price, got %s", merged.GasPrice)
	}
	if merged.Nonce == nil || *merged.Nonce != 7 {
		t.Errorf("expected nonce 7, got %v", merged.Nonce)
	}
	if defaults.Nonce != nil {
		t.Error("merge must not mutate the receiver")
	}
}

func TestTxOptions_MergeCopiesNumerics(t *testing.T) {
	value := uint256.NewInt(10)
	merged := TxOptions{}.Merge(TxOptions{Value: value})
	value.SetUint64(99)

	if merged.Value.Uint64() != 10 {
		t.Errorf("merged value aliased the override, got %s", merged.Value)
	}
}

func TestTxOptions_ZeroNonceIsKept(t *testing.T) {
	merged := TxOptions{}.WithNonce(0).Merge(TxOptions{From: "0xa"})
	if merged.Nonce == nil || *merged.Nonce != 0 {
		t.Errorf("expected explicit zero nonce, got %v", merged.Nonce)
	}
}
