package call

import (
	"github.com/botsapp/voicecall-go/pkg/audio"
)

// playbackLoop drains the playback queue: one worker feeds the sink so
// chunks go out strictly in arrival order even though each feed is an
// independent call.
func (s *Session) playbackLoop() {
	defer s.wg.Done()

	chunker := audio.NewChunker(audio.PlaybackRate, s.tuning.PlaybackChunkMs)

	for {
		select {
		case <-s.ctx.Done():
			return

		case frame := <-s.playCh:
			audio.ApplyGain(frame, s.tuning.PlaybackGain)
			for _, chunk := range chunker.Add(frame) {
				s.feedChunk(chunk)
			}
		}
	}
}

// feedChunk writes one fixed-size chunk to the sink. On failure it runs a
// single recovery cycle: close the sink, recreate and reopen it, re-apply
// the audio route, and retry the failed chunk once. A failed recovery
// drops only this chunk; the next frame feeds normally.
func (s *Session) feedChunk(chunk []byte) {
	err := s.player.Feed(chunk)
	if err == nil {
		return
	}
	s.logger.Warn("playback feed failed, recovering sink", "error", err)

	if cerr := s.player.Close(); cerr != nil {
		s.logger.Debug("failed to close broken sink", "error", cerr)
	}

	p := s.cfg.NewPlayer()
	if oerr := p.Open(); oerr != nil {
		s.logger.Warn("sink recovery failed, dropping chunk", "error", oerr)
		s.player = p
		return
	}
	s.player = p

	if rerr := s.router.SetSpeakerEnabled(s.speakerOn.Load()); rerr != nil {
		s.logger.Debug("failed to re-apply audio route after recovery", "error", rerr)
	}

	if ferr := s.player.Feed(chunk); ferr != nil {
		s.logger.Warn("playback retry failed, dropping chunk", "error", ferr)
	}
}
