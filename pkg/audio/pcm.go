package audio

import (
	"encoding/binary"
	"math"
)

// Sample rates for the two PCM domains on a call. Capture frames come from
// the microphone at 16 kHz; bot speech arrives at 24 kHz. Frames are never
// resampled or mixed between domains.
const (
	CaptureRate  = 16000
	PlaybackRate = 24000

	// BytesPerSample is the width of one mono 16-bit sample.
	BytesPerSample = 2
)

// ApplyGain multiplies every 16-bit little-endian sample in buf by gain and
// clamps the result to the int16 range. The buffer is modified in place.
// Trailing odd bytes (a truncated sample) are left untouched.
func ApplyGain(buf []byte, gain float64) {
	if gain == 1.0 {
		return
	}
	for i := 0; i+1 < len(buf); i += BytesPerSample {
		sample := int16(binary.LittleEndian.Uint16(buf[i:]))
		scaled := float64(sample) * gain
		if scaled > math.MaxInt16 {
			scaled = math.MaxInt16
		} else if scaled < math.MinInt16 {
			scaled = math.MinInt16
		}
		binary.LittleEndian.PutUint16(buf[i:], uint16(int16(scaled)))
	}
}

// Level computes the RMS of the 16-bit little-endian samples in buf,
// normalized to [0, 1].
func Level(buf []byte) float64 {
	n := len(buf) / BytesPerSample
	if n == 0 {
		return 0
	}

	var sumSq float64
	for i := 0; i+1 < len(buf); i += BytesPerSample {
		s := float64(int16(binary.LittleEndian.Uint16(buf[i:])))
		sumSq += s * s
	}

	level := math.Sqrt(sumSq/float64(n)) / 32768.0
	if level > 1 {
		level = 1
	}
	return level
}
