package provision

// State is an installation state for one portfolio entry.
type State string

const (
	// StatePending means the entry has not been processed yet.
	StatePending State = "pending"
	// StatePulling means the runtime fetch is in flight.
	StatePulling State = "pulling"
	// StateVerifying means the fetch finished and the inventory is being checked.
	StateVerifying State = "verifying"
	// StateSucceeded is terminal: the model is verified installed.
	StateSucceeded State = "succeeded"
	// StateFallbackPending means the last attempt failed and a fallback will be tried.
	StateFallbackPending State = "fallback_pending"
	// StateFailed is terminal: the fallback chain is exhausted or absent.
	StateFailed State = "failed"
)

// transitions is the explicit transition table. Pending and
// FallbackPending may jump straight to Succeeded when the inventory
// snapshot already contains the model.
var transitions = map[State][]State{
	StatePending:         {StatePulling, StateSucceeded},
	StatePulling:         {StateVerifying, StateFallbackPending, StateFailed},
	StateVerifying:       {StateSucceeded, StateFallbackPending, StateFailed},
	StateFallbackPending: {StatePulling, StateSucceeded},
	StateSucceeded:       {},
	StateFailed:          {},
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state ends processing for an entry.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}
