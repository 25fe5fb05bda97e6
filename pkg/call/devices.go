package call

import "context"

// Recorder supplies microphone capture frames: mono 16-bit LE PCM at
// 16 kHz, one frame per capture interval. Start returns an error when
// microphone permission is denied. The returned channel is closed when the
// context is cancelled or the recorder is closed.
type Recorder interface {
	Start(ctx context.Context) (<-chan []byte, error)
	Close() error
}

// Player is a streaming audio sink for bot speech: mono 16-bit LE PCM at
// 24 kHz, fed in fixed-size chunks.
type Player interface {
	Open() error
	Feed(chunk []byte) error
	Close() error
}

// PlayerFactory creates a fresh Player. The playback pipeline recreates
// the sink when a feed fails.
type PlayerFactory func() Player

// AudioRouter is the platform audio-routing capability. The engine calls
// it at session start, session end, on speaker toggle, and for periodic
// route reassertion; the native routing itself lives outside the engine.
type AudioRouter interface {
	ConfigureCallAudio() error
	ResetCallAudio() error
	SetSpeakerEnabled(enabled bool) error
}
