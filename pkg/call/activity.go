package call

// VoiceActivity is the single derived voice-activity state of a call.
// Exactly one value holds at any instant; the activity stream only carries
// changes, never two consecutive identical values.
type VoiceActivity int

const (
	// ActivityIdle means neither side is speaking.
	ActivityIdle VoiceActivity = iota
	// ActivityUserSpeaking means local capture is classified as speech.
	ActivityUserSpeaking
	// ActivityWaiting means the user turn ended and the bot has not
	// started speaking yet.
	ActivityWaiting
	// ActivityBotSpeaking means bot audio is playing.
	ActivityBotSpeaking
)

// String returns the wire/display name of the activity state.
func (a VoiceActivity) String() string {
	switch a {
	case ActivityIdle:
		return "idle"
	case ActivityUserSpeaking:
		return "userSpeaking"
	case ActivityWaiting:
		return "waiting"
	case ActivityBotSpeaking:
		return "botSpeaking"
	default:
		return "unknown"
	}
}
