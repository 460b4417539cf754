package orchestrator

// State is a step of the session state machine.
type State int

const (
	StateDetermineMode State = iota
	StateRunSession
	StateAudit
	StateUpdateProgress
	StateContinue
	StateComplete
	StatePaused
	StateError
)

var stateNames = [...]string{
	StateDetermineMode:  "DETERMINE_MODE",
	StateRunSession:     "RUN_SESSION",
	StateAudit:          "AUDIT",
	StateUpdateProgress: "UPDATE_PROGRESS",
	StateContinue:       "CONTINUE",
	StateComplete:       "COMPLETE",
	StatePaused:         "PAUSED",
	StateError:          "ERROR",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Mode is the kind of agent session.
type Mode string

const (
	// ModeInitializer creates the feature ledger for a new project.
	ModeInitializer Mode = "initializer"
	// ModeEnhancementInit extends an existing ledger with new instructions.
	ModeEnhancementInit Mode = "enhancement_init"
	// ModeCoding implements features from the ledger.
	ModeCoding Mode = "coding"
)

// AllowsAdditions reports whether sessions of this mode may add features.
func (m Mode) AllowsAdditions() bool {
	return m == ModeInitializer || m == ModeEnhancementInit
}

// promptName returns the template name for the mode.
func (m Mode) promptName() string {
	switch m {
	case ModeInitializer:
		return "initializer_prompt"
	case ModeEnhancementInit:
		return "enhancement_prompt"
	default:
		return "coding_prompt"
	}
}
