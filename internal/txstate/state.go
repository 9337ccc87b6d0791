package txstate

import (
	"errors"
	"time"

	"github.com/vietddude/txmanager/internal/core/domain"
)

// State is an alias for domain.TxState for internal use.
type State = domain.TxState

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
// Finalized and error are terminal.
var ValidTransitions = map[State][]State{
	domain.TxStateInitialized: {domain.TxStatePending, domain.TxStateError},
	domain.TxStatePending:     {domain.TxStateMined, domain.TxStateError},
	domain.TxStateMined:       {domain.TxStateFinalized, domain.TxStateError},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}

	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string, at time.Time) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: at,
	}
}

// IsValid returns true if this transition is allowed by the state machine.
func (t Transition) IsValid() bool {
	return CanTransition(t.From, t.To)
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s.Normalize() {
	case domain.TxStateInitialized:
		return "Initialized - options built, send in flight"
	case domain.TxStatePending:
		return "Pending - accepted by the node, waiting for a receipt"
	case domain.TxStateMined:
		return "Mined - included in a block"
	case domain.TxStateFinalized:
		return "Finalized - reached the requested confirmations"
	case domain.TxStateError:
		return "Error - send failed, reverted or dropped"
	default:
		return "Unknown state"
	}
}
