package decision

// State is one step of a duplicate-check instance's lifecycle
type State string

const (
	// StateChecking means the duplicate lookup is running
	StateChecking State = "checking"
	// StateAwaitingDecision means candidates were found and the instance
	// waits for an operator (or the timeout)
	StateAwaitingDecision State = "awaiting_decision"
	// StateContinuing means the operator keeps the import
	StateContinuing State = "continuing"
	// StateCancelling means the import is being aborted and its upload
	// cleaned up
	StateCancelling State = "cancelling"
	// StateLogged means the audit entry was accepted
	StateLogged State = "logged"
	// StateDone is the terminal state
	StateDone State = "done"
)

// IsValid checks if the state value is valid
func (s State) IsValid() bool {
	switch s {
	case StateChecking, StateAwaitingDecision, StateContinuing,
		StateCancelling, StateLogged, StateDone:
		return true
	}
	return false
}

// ValidTransitions defines the valid transitions for the decision state
// machine.
//
// State Machine Diagram:
//
//	checking → awaiting_decision → continuing ─┐
//	    │              │                       ├→ logged → done
//	    │              └─────────→ cancelling ─┘
//	    └────────────────────────────────────────────────→ done
//
// Valid transitions:
//   - checking → awaiting_decision (candidates found, operator consulted)
//   - checking → done (no candidates; import proceeds, nothing is logged)
//   - awaiting_decision → continuing (operator keeps the import)
//   - awaiting_decision → cancelling (operator cancels, or the timeout does)
//   - continuing → logged (audit entry accepted)
//   - cancelling → logged (audit entry accepted; cleanup outcome ignored)
//   - logged → done
func (s State) ValidTransitions() []State {
	switch s {
	case StateChecking:
		return []State{StateAwaitingDecision, StateDone}
	case StateAwaitingDecision:
		return []State{StateContinuing, StateCancelling}
	case StateContinuing:
		return []State{StateLogged}
	case StateCancelling:
		return []State{StateLogged}
	case StateLogged:
		return []State{StateDone}
	case StateDone:
		return []State{} // Terminal state
	default:
		return []State{}
	}
}

// CanTransitionTo checks if a transition from this state to the target
// state is valid.
func (s State) CanTransitionTo(target State) bool {
	for _, valid := range s.ValidTransitions() {
		if valid == target {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends the lifecycle
func (s State) Terminal() bool {
	return s == StateDone
}
