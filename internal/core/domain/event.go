package domain

import "time"

// Event is a recorded lifecycle transition of a tracked transaction.
type Event struct {
	ID            string         `json:"id"`
	TransactionID string         `json:"transaction_id"`
	TxHash        string         `json:"tx_hash,omitempty"`
	State         TxState        `json:"state"`
	Error         string         `json:"error,omitempty"`
	Contract      string         `json:"contract,omitempty"`
	Method        string         `json:"method,omitempty"`
	BlockNumber   uint64         `json:"block_number,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}
