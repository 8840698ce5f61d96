package player

// State is the lifecycle state of a Controller
type State string

const (
	// StateUninitialized means no engine has been created yet
	StateUninitialized State = "uninitialized"

	// StateInitializing means an engine is being constructed and bound
	StateInitializing State = "initializing"

	// StateReady means the engine is playing or able to play
	StateReady State = "ready"

	// StateError means the last initialization failed
	StateError State = "error"

	// StateRetrying means a re-initialization is scheduled
	StateRetrying State = "retrying"

	// StateDestroyed is terminal
	StateDestroyed State = "destroyed"
)

type transition struct {
	From State
	To   State
}

// validTransitions defines all valid state transitions
var validTransitions = map[transition]bool{
	// From Uninitialized
	{StateUninitialized, StateInitializing}: true,
	{StateUninitialized, StateDestroyed}:    true,

	// From Initializing
	{StateInitializing, StateReady}:     true,
	{StateInitializing, StateError}:     true,
	{StateInitializing, StateDestroyed}: true,

	// From Ready
	{StateReady, StateError}:        true,
	{StateReady, StateInitializing}: true, // Source fallback or manual restart
	{StateReady, StateDestroyed}:    true,

	// From Error
	{StateError, StateRetrying}:     true,
	{StateError, StateInitializing}: true, // Manual restart after exhaustion
	{StateError, StateDestroyed}:    true,

	// From Retrying
	{StateRetrying, StateInitializing}: true,
	{StateRetrying, StateDestroyed}:    true,
}

// CanTransition reports whether from -> to is a legal move
func CanTransition(from, to State) bool {
	return validTransitions[transition{From: from, To: to}]
}

// String returns the state name
func (s State) String() string {
	return string(s)
}
