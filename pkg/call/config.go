package call

import (
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

// Tuning holds the hand-tuned audio constants of the engine. The defaults
// were dialed in against the iOS capture path and its echo profile; they
// are exposed as configuration because they do not necessarily generalize
// to other devices.
type Tuning struct {
	// MicInputGain amplifies capture frames while the bot is quiet. The
	// raw microphone signal is quiet, so this runs hot.
	MicInputGain float64 `yaml:"micInputGain"`

	// MicGainDuringBotSpeech replaces MicInputGain while bot audio is
	// playing, suppressing speaker echo picked up by the microphone.
	MicGainDuringBotSpeech float64 `yaml:"micGainDuringBotSpeech"`

	// PlaybackGain amplifies bot audio before feeding the sink.
	PlaybackGain float64 `yaml:"playbackGain"`

	// BargeInThreshold is the capture level a frame must exceed, while
	// the bot speaks, to count toward a barge-in.
	BargeInThreshold float64 `yaml:"bargeInThreshold"`

	// BargeInConsecutiveFrames is how many consecutive qualifying frames
	// are needed before a barge-in is allowed.
	BargeInConsecutiveFrames int `yaml:"bargeInConsecutiveFrames"`

	// SpeechThreshold classifies a frame as speech while the bot is quiet.
	SpeechThreshold float64 `yaml:"speechThreshold"`

	// NoiseFloor is the level above which frames are still transmitted
	// even before the turn-active latch engages, so quiet utterance
	// onsets are not clipped.
	NoiseFloor float64 `yaml:"noiseFloor"`

	// SilenceHold is how long capture must stay silent before the user
	// turn is considered over.
	SilenceHold time.Duration `yaml:"silenceHold"`

	// TurnCompleteDebounce delays acting on a remote turn_complete, which
	// can arrive slightly before the final audio chunk.
	TurnCompleteDebounce time.Duration `yaml:"turnCompleteDebounce"`

	// BotAudioFreshness: a fired debounce is ignored when bot audio
	// arrived more recently than this.
	BotAudioFreshness time.Duration `yaml:"botAudioFreshness"`

	// ReadyTimeout bounds the wait for the endpoint's ready message.
	ReadyTimeout time.Duration `yaml:"readyTimeout"`

	// RouteReassertInterval throttles opportunistic re-application of the
	// speaker route while bot audio plays.
	RouteReassertInterval time.Duration `yaml:"routeReassertInterval"`

	// PlaybackChunkMs is the duration of one sink feed chunk.
	PlaybackChunkMs int `yaml:"playbackChunkMs"`

	// WaveformCapacity is the number of recent levels kept for display.
	WaveformCapacity int `yaml:"waveformCapacity"`
}

// DefaultTuning returns the documented defaults.
func DefaultTuning() Tuning {
	return Tuning{
		MicInputGain:             2.0,
		MicGainDuringBotSpeech:   0.45,
		PlaybackGain:             1.6,
		BargeInThreshold:         0.07,
		BargeInConsecutiveFrames: 4,
		SpeechThreshold:          0.015,
		NoiseFloor:               0.008,
		SilenceHold:              800 * time.Millisecond,
		TurnCompleteDebounce:     220 * time.Millisecond,
		BotAudioFreshness:        180 * time.Millisecond,
		ReadyTimeout:             15 * time.Second,
		RouteReassertInterval:    2 * time.Second,
		PlaybackChunkMs:          40,
		WaveformCapacity:         30,
	}
}

// LoadTuning reads a YAML tuning file over the defaults. Absent keys keep
// their default value.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("parse tuning file: %w", err)
	}
	return t, nil
}
