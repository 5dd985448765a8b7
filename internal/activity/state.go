// Package activity defines the closed vocabulary of semantic activity
// states a tracked agent session can be in. Every classifier, the session
// registry, and the display state machine speak in these states.
package activity

// State is one semantic activity state. Exactly one state is current for a
// session at any instant.
type State string

const (
	StateIdle        State = "idle"
	StateThinking    State = "thinking"
	StateReading     State = "reading"
	StateSearching   State = "searching"
	StateCoding      State = "coding"
	StateExecuting   State = "executing"
	StateTesting     State = "testing"
	StateInstalling  State = "installing"
	StateCommitting  State = "committing"
	StateReviewing   State = "reviewing"
	StateSubagent    State = "subagent"
	StateResponding  State = "responding"
	StateWaiting     State = "waiting"
	StateRateLimited State = "ratelimited"
	StateHappy       State = "happy"
	StateSatisfied   State = "satisfied"
	StateProud       State = "proud"
	StateRelieved    State = "relieved"
	StateError       State = "error"
	StateSleeping    State = "sleeping"
	StateCaffeinated State = "caffeinated"
)

// all lists every valid state. Kept in sync with the constants above.
var all = map[State]bool{
	StateIdle: true, StateThinking: true, StateReading: true,
	StateSearching: true, StateCoding: true, StateExecuting: true,
	StateTesting: true, StateInstalling: true, StateCommitting: true,
	StateReviewing: true, StateSubagent: true, StateResponding: true,
	StateWaiting: true, StateRateLimited: true, StateHappy: true,
	StateSatisfied: true, StateProud: true, StateRelieved: true,
	StateError: true, StateSleeping: true, StateCaffeinated: true,
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	return all[s]
}

// IsFailure reports whether s represents a failed tool result.
func (s State) IsFailure() bool {
	return s == StateError || s == StateRateLimited
}

// IsCelebration reports whether s is one of the post-result reward states.
func (s State) IsCelebration() bool {
	switch s {
	case StateHappy, StateSatisfied, StateProud, StateRelieved:
		return true
	}
	return false
}
