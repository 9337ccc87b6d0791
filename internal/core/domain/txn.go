package domain

import "strings"

// TxState is a lifecycle state of a submitted transaction.
type TxState string

const (
	TxStateInitialized TxState = "initialized"
	TxStatePending     TxState = "pending"
	TxStateMined       TxState = "mined"
	TxStateFinalized   TxState = "finalized"
	TxStateError       TxState = "error"

	// TxStateConfirmed is accepted from listeners as an alias of TxStateFinalized.
	TxStateConfirmed TxState = "confirmed"
)

// OrderedStates lists the non-error states in lifecycle order.
var OrderedStates = []TxState{
	TxStateInitialized,
	TxStatePending,
	TxStateMined,
	TxStateFinalized,
}

// AllStates lists every state a transaction can emit.
var AllStates = []TxState{
	TxStateInitialized,
	TxStatePending,
	TxStateMined,
	TxStateFinalized,
	TxStateError,
}

// Order returns the position of s in OrderedStates, or -1 for error and unknown states.
func (s TxState) Order() int {
	for i, o := range OrderedStates {
		if o == s {
			return i
		}
	}
	return -1
}

// Normalize resolves aliases.
func (s TxState) Normalize() TxState {
	if s == TxStateConfirmed {
		return TxStateFinalized
	}
	return s
}

// IsTerminal reports whether no further transitions can follow s.
func (s TxState) IsTerminal() bool {
	return s == TxStateFinalized || s == TxStateError
}

// Valid reports whether s (after alias resolution) is a known state.
func (s TxState) Valid() bool {
	n := s.Normalize()
	return n == TxStateError || n.Order() >= 0
}

// CallMetadata describes the service call that produced a transaction.
type CallMetadata struct {
	Contract string         `json:"contract,omitempty"`
	Method   string         `json:"method,omitempty"`
	Args     []any          `json:"args,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// Merge copies extra fields into m.Extra. Existing keys are overwritten.
func (m *CallMetadata) Merge(extra map[string]any) {
	if len(extra) == 0 {
		return
	}
	if m.Extra == nil {
		m.Extra = make(map[string]any, len(extra))
	}
	for k, v := range extra {
		m.Extra[k] = v
	}
}

// MethodName strips an overload signature, e.g. "transfer(address,uint256)" -> "transfer".
func MethodName(method string) string {
	if i := strings.IndexByte(method, '('); i >= 0 && strings.HasSuffix(method, ")") {
		return method[:i]
	}
	return method
}

// Receipt is the mined result of a transaction.
type Receipt struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	BlockHash   string `json:"block_hash"`
	GasUsed     uint64 `json:"gas_used"`
	Status      uint64 `json:"status"`
}

// Succeeded reports whether the receipt status is 1.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == 1
}
