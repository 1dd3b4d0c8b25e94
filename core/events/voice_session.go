package events

const (
	// KindVoiceSessionUpdated identifies a voice session state transition.
	KindVoiceSessionUpdated Kind = "voice_session.updated"
)

// VoiceSessionUpdated marks one edge of the voice session state machine.
type VoiceSessionUpdated struct {
	Base
	State string
}

// NewVoiceSessionUpdated creates a session state transition event.
func NewVoiceSessionUpdated(state string) VoiceSessionUpdated {
	return VoiceSessionUpdated{Base: NewBase(KindVoiceSessionUpdated), State: state}
}
