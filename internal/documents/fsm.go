package documents

import "github.com/nusantara-erp/ledger-core/internal/shared"

// State enumerates document lifecycle values.
type State string

const (
	StateDraft    State = "draft"
	StatePending  State = "pending_approval"
	StateApproved State = "approved"
	StateRejected State = "rejected"
	StateReversed State = "reversed"
)

// Action enumerates lifecycle transitions a caller may request.
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionReverse Action = "reverse"
)

// transitions is the complete lifecycle table. Anything absent is rejected;
// there are no other paths between states.
var transitions = map[State]map[Action]State{
	StateDraft: {
		ActionSubmit: StatePending,
	},
	StatePending: {
		ActionApprove: StateApproved,
		ActionReject:  StateRejected,
	},
	StateApproved: {
		ActionReverse: StateReversed,
	},
}

// ErrInvalidTransition marks a lifecycle action the table does not allow.
var ErrInvalidTransition = shared.Conflictf("transition not allowed")

// Next resolves the target state for an action, or ErrInvalidTransition.
func Next(from State, action Action) (State, error) {
	if targets, ok := transitions[from]; ok {
		if to, ok := targets[action]; ok {
			return to, nil
		}
	}
	return "", ErrInvalidTransition
}
