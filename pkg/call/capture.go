package call

import (
	"github.com/botsapp/voicecall-go/pkg/audio"
)

// processCaptureFrame handles one microphone frame: gain, level, VAD, and
// the transmit decision.
//
// The thresholds are asymmetric on purpose. While the bot speaks, the
// microphone also hears the speaker output, so interrupting must be loud
// and sustained (barge-in). While the bot is quiet, the engine is
// permissive so quiet speech onsets are not clipped.
func (s *Session) processCaptureFrame(frame []byte, silence *singleShot) {
	gain := s.tuning.MicInputGain
	if s.botSpeaking {
		gain = s.tuning.MicGainDuringBotSpeech
	}
	audio.ApplyGain(frame, gain)

	level := audio.Level(frame)
	s.waveform.Push(level)
	s.levels.publish(level)

	var transmit bool
	if s.botSpeaking {
		if level > s.tuning.BargeInThreshold {
			s.bargeInCount++
		} else {
			s.bargeInCount = 0
		}

		allowed := s.bargeInCount >= s.tuning.BargeInConsecutiveFrames
		if allowed {
			s.userTurnActive = true
			s.stopSilenceTimer(silence)
			s.setActivity(ActivityUserSpeaking)
		} else {
			// No idle transition here: flipping activity on every
			// sub-threshold frame during playback reads as flicker.
			s.userTurnActive = false
			s.stopSilenceTimer(silence)
		}
		transmit = allowed && level > s.tuning.BargeInThreshold
	} else {
		s.bargeInCount = 0

		if level > s.tuning.SpeechThreshold {
			s.userTurnActive = true
			s.stopSilenceTimer(silence)
			s.setActivity(ActivityUserSpeaking)
		} else if s.activity == ActivityUserSpeaking && !s.silenceArmed {
			// Armed once at the speech-to-silence transition; further
			// quiet frames must not push the deadline out.
			silence.Reset(s.tuning.SilenceHold)
			s.silenceArmed = true
		}

		// The noise floor lets short utterances through before the
		// turn-active latch engages.
		transmit = s.userTurnActive || level > s.tuning.NoiseFloor
	}

	if !transmit || s.muted.Load() {
		return
	}
	if err := s.sig.SendAudioFrame(frame); err != nil {
		// Audio loss is acceptable; a failed send never ends the call.
		s.logger.Debug("failed to send capture frame", "error", err)
	}
}

// stopSilenceTimer cancels a pending turn-end deadline.
func (s *Session) stopSilenceTimer(silence *singleShot) {
	silence.Stop()
	s.silenceArmed = false
}
