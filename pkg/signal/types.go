package signal

// Control message types exchanged with the calling endpoint.
const (
	// Inbound.
	TypeReady        = "ready"
	TypeVoice        = "voice"
	TypeTurnComplete = "turn_complete"
	TypeError        = "error"

	// Outbound.
	TypeUserTurnEnd = "user_turn_end"
	TypeEndCall     = "end_call"
)

// Control is a JSON control message on the call channel. Binary frames on
// the same channel carry raw PCM audio and are delivered separately.
type Control struct {
	Type    string `json:"type"`
	Role    string `json:"role,omitempty"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}
