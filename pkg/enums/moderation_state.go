package enums

import "fmt"

// ModerationState maps to the moderation_state column on captures.
type ModerationState string

const (
	ModerationStatePending  ModerationState = "pending"
	ModerationStateApproved ModerationState = "approved"
	ModerationStateDeclined ModerationState = "declined"
)

var validModerationStates = []ModerationState{
	ModerationStatePending,
	ModerationStateApproved,
	ModerationStateDeclined,
}

// String implements fmt.Stringer.
func (s ModerationState) String() string {
	return string(s)
}

// IsValid reports whether the value is one of the three lifecycle states.
func (s ModerationState) IsValid() bool {
	for _, candidate := range validModerationStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsDecision reports whether the state can be the target of a moderation decision.
// Pending is only ever the initial state.
func (s ModerationState) IsDecision() bool {
	return s == ModerationStateApproved || s == ModerationStateDeclined
}

// ParseModerationState converts raw input into ModerationState.
func ParseModerationState(value string) (ModerationState, error) {
	for _, candidate := range validModerationStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid moderation state %q", value)
}
