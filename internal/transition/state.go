package transition

// State is a step of the transition state machine.
type State string

// Transition states.
const (
	Idle               State = "idle"
	CommandSent        State = "command_sent"
	Settling           State = "settling"
	Verifying          State = "verifying"
	Verified           State = "verified"
	VerificationFailed State = "verification_failed"
)

// Terminal reports whether s ends a transition.
func (s State) Terminal() bool {
	return s == Verified || s == VerificationFailed
}

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}
