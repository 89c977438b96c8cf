package model

// PassState represents the lifecycle state of a scheduler pass.
type PassState string

const (
	PassStateIdle       PassState = "IDLE"
	PassStateInProgress PassState = "IN_PROGRESS"
)

// String returns the string representation of the pass state.
func (s PassState) String() string {
	return string(s)
}

// ValidPassTransitions defines the allowed state transitions for passes.
var ValidPassTransitions = map[PassState][]PassState{
	PassStateIdle:       {PassStateInProgress},
	PassStateInProgress: {PassStateIdle},
}

// CanTransitionTo returns true if moving from the current state to next is valid.
func (s PassState) CanTransitionTo(next PassState) bool {
	for _, allowed := range ValidPassTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Strategy is the scheduling strategy chosen for one bounded call.
type Strategy string

const (
	// StrategyFull means a whole pass is expected to fit in the budget.
	StrategyFull Strategy = "FULL"
	// StrategyIncremental means the pass is spread across several calls.
	StrategyIncremental Strategy = "INCREMENTAL"
)

// String returns the string representation of the strategy.
func (s Strategy) String() string {
	return string(s)
}
