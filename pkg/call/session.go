package call

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/botsapp/voicecall-go/pkg/audio"
	"github.com/botsapp/voicecall-go/pkg/callstatus"
	"github.com/botsapp/voicecall-go/pkg/signal"
	"github.com/botsapp/voicecall-go/pkg/store"
	"github.com/botsapp/voicecall-go/pkg/transcript"
)

// Session is one voice call: the signaling channel, capture and playback
// pipelines, turn/activity state, and the transcript for the call. The
// session exclusively owns its connection, recorder, and player; consumers
// observe it only through the broadcast event streams.
//
// All session state mutation happens on one event loop: capture frames,
// inbound channel messages, and timer fires are processed to completion in
// arrival order.
type Session struct {
	id     string
	cfg    Config
	tuning Tuning
	logger *slog.Logger

	sig      *signal.Client
	recorder Recorder
	player   Player
	router   AudioRouter

	levels     *broadcaster[float64]
	activities *broadcaster[VoiceActivity]
	lines      *broadcaster[transcript.Line]
	waveform   *audio.LevelRing

	// Event-loop-owned state. Touched only by run() and, after the loop
	// has exited, by teardown.
	activity        VoiceActivity
	botSpeaking     bool
	userTurnActive  bool
	silenceArmed    bool
	bargeInCount    int
	lastBotAudio    time.Time
	lastRouteAssert time.Time
	merger          *transcript.Merger
	fragments       []transcript.Fragment

	muted     atomic.Bool
	speakerOn atomic.Bool
	active    atomic.Bool
	started   atomic.Bool
	ending    atomic.Bool

	playCh    chan []byte
	startedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds session configuration. Recorder, NewPlayer, and Router are
// the platform capabilities supplied by the embedding app.
type Config struct {
	BaseURL string // Call endpoint base URL (ws:// or wss://)
	ChatID  string // Chat the call belongs to
	CallID  string // Optional outbound call intent ID
	Token   string // Auth credential

	Recorder  Recorder
	NewPlayer PlayerFactory
	Router    AudioRouter

	// Status, when set together with CallID, reports intent transitions
	// to the backend (best-effort).
	Status *callstatus.Client

	// Store, when set, persists the call transcript at teardown.
	Store *store.Store

	// SpeakerEnabled is the initial audio route.
	SpeakerEnabled bool

	// Tuning overrides the default audio constants when non-nil.
	Tuning *Tuning

	Logger *slog.Logger
}

// NewSession creates a session for one call attempt. The session is
// one-shot: after End it cannot be started again.
func NewSession(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	tuning := DefaultTuning()
	if cfg.Tuning != nil {
		tuning = *cfg.Tuning
	}

	ctx, cancel := context.WithCancel(context.Background())

	id := uuid.NewString()
	s := &Session{
		id:         id,
		cfg:        cfg,
		tuning:     tuning,
		logger:     cfg.Logger.With("session_id", id[:8], "chat_id", cfg.ChatID),
		recorder:   cfg.Recorder,
		router:     cfg.Router,
		levels:     newBroadcaster[float64](),
		activities: newBroadcaster[VoiceActivity](),
		lines:      newBroadcaster[transcript.Line](),
		waveform:   audio.NewLevelRing(tuning.WaveformCapacity),
		merger:     transcript.NewMerger(),
		playCh:     make(chan []byte, 64), // Bounded playback queue
		ctx:        ctx,
		cancel:     cancel,
	}
	s.speakerOn.Store(cfg.SpeakerEnabled)
	return s
}

// Start connects the call. It returns only after the endpoint has
// signalled readiness (or a fatal failure): missing token, denied
// microphone permission, channel connect error, and readiness timeout all
// fail the call and release every resource acquired so far.
func (s *Session) Start(ctx context.Context) error {
	if s.ending.Load() {
		return ErrEnded
	}
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if s.cfg.Token == "" {
		s.teardown(false, callstatus.StatusFailed, "no_token")
		return ErrMissingToken
	}

	s.startedAt = time.Now()

	if err := s.router.ConfigureCallAudio(); err != nil {
		// Routing problems degrade audio but should not block the call.
		s.logger.Warn("failed to configure call audio", "error", err)
	}
	if err := s.router.SetSpeakerEnabled(s.speakerOn.Load()); err != nil {
		s.logger.Warn("failed to set initial speaker route", "error", err)
	}

	frames, err := s.recorder.Start(s.ctx)
	if err != nil {
		s.teardown(false, callstatus.StatusFailed, "mic_permission")
		return fmt.Errorf("start recorder: %w", err)
	}

	s.sig = signal.NewClient(signal.Config{
		BaseURL: s.cfg.BaseURL,
		ChatID:  s.cfg.ChatID,
		CallID:  s.cfg.CallID,
		Token:   s.cfg.Token,
		Logger:  s.logger,
	})
	if err := s.sig.Connect(ctx); err != nil {
		s.teardown(false, callstatus.StatusFailed, "connect_error")
		return err
	}

	select {
	case <-s.sig.Ready():
	case err := <-s.sig.ErrorChan():
		s.teardown(false, callstatus.StatusFailed, "signaling_error")
		return fmt.Errorf("call channel failed before ready: %w", err)
	case <-time.After(s.tuning.ReadyTimeout):
		s.teardown(false, callstatus.StatusFailed, "ready_timeout")
		return ErrReadyTimeout
	case <-ctx.Done():
		s.teardown(false, callstatus.StatusFailed, "cancelled")
		return ctx.Err()
	}

	s.player = s.cfg.NewPlayer()
	if err := s.player.Open(); err != nil {
		s.teardown(true, callstatus.StatusFailed, "player_open")
		return fmt.Errorf("open player: %w", err)
	}

	if s.cfg.Status != nil && s.cfg.CallID != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.cfg.Status.Report(ctx, s.cfg.CallID, callstatus.StatusAccepted, "")
		}()
	}

	s.active.Store(true)
	s.logger.Info("call session active", "call_id", s.cfg.CallID)

	s.wg.Add(2)
	go s.run(frames)
	go s.playbackLoop()

	return nil
}

// run is the session event loop. Every input that mutates session state is
// handled here, one at a time.
func (s *Session) run(frames <-chan []byte) {
	defer s.wg.Done()

	silence := newSingleShot()
	debounce := newSingleShot()
	defer silence.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			s.processCaptureFrame(frame, silence)

		case msg := <-s.sig.ControlChan():
			s.handleControl(msg, debounce)

		case data := <-s.sig.AudioChan():
			s.handleBotAudio(data, silence, debounce)

		case err := <-s.sig.ErrorChan():
			s.logger.Warn("call channel failed, ending call", "error", err)
			go s.teardown(false, callstatus.StatusFailed, "signaling_error")
			return

		case <-silence.C():
			s.onSilenceElapsed()

		case <-debounce.C():
			s.onTurnCompleteDebounce()
		}
	}
}

// handleControl dispatches one inbound control message.
func (s *Session) handleControl(msg signal.Control, debounce *singleShot) {
	switch msg.Type {
	case signal.TypeVoice:
		s.fragments = append(s.fragments, transcript.Fragment{Role: msg.Role, Text: msg.Text})
		if line, changed := s.merger.Add(msg.Role, msg.Text); changed {
			s.lines.publish(line)
		}

	case signal.TypeTurnComplete:
		// The endpoint can emit this slightly before its final audio
		// chunk; act only once the signal has stayed stable.
		debounce.Reset(s.tuning.TurnCompleteDebounce)

	case signal.TypeError:
		s.logger.Warn("call endpoint reported error", "message", msg.Message)
	}
}

// handleBotAudio routes one inbound bot audio frame to playback and
// updates turn state.
func (s *Session) handleBotAudio(data []byte, silence, debounce *singleShot) {
	s.lastBotAudio = time.Now()
	debounce.Stop()
	s.stopSilenceTimer(silence)
	s.botSpeaking = true
	s.setActivity(ActivityBotSpeaking)

	// The platform occasionally resets the output route mid-call;
	// reassert it when bot speech is flowing, at most every few seconds.
	if time.Since(s.lastRouteAssert) >= s.tuning.RouteReassertInterval {
		s.lastRouteAssert = time.Now()
		if err := s.router.SetSpeakerEnabled(s.speakerOn.Load()); err != nil {
			s.logger.Debug("route reassert failed", "error", err)
		}
	}

	select {
	case s.playCh <- data:
	default:
		s.logger.Warn("playback queue full, dropping bot frame", "bytes", len(data))
	}
}

// onSilenceElapsed fires when capture stayed silent long enough to end the
// user's turn.
func (s *Session) onSilenceElapsed() {
	s.silenceArmed = false
	s.userTurnActive = false
	if err := s.sig.SendControl(signal.TypeUserTurnEnd); err != nil {
		s.logger.Debug("failed to send user_turn_end", "error", err)
	}
	s.setActivity(ActivityWaiting)
}

// onTurnCompleteDebounce fires after the turn_complete debounce window.
// It is ignored when a bot audio byte arrived too recently: the remote
// end-of-turn signal was premature.
func (s *Session) onTurnCompleteDebounce() {
	if time.Since(s.lastBotAudio) < s.tuning.BotAudioFreshness {
		return
	}
	s.botSpeaking = false
	s.bargeInCount = 0
	if s.activity == ActivityBotSpeaking {
		s.setActivity(ActivityIdle)
	}
}

// setActivity transitions the activity state, emitting only on change.
func (s *Session) setActivity(a VoiceActivity) {
	if s.activity == a {
		return
	}
	s.activity = a
	s.activities.publish(a)
}

// End terminates the call: sends end_call, releases every resource, and
// closes the event streams. Idempotent; concurrent calls collapse into a
// single teardown.
func (s *Session) End() error {
	s.teardown(true, callstatus.StatusCompleted, callstatus.ReasonUserEnd)
	return nil
}

// teardown releases all session resources exactly once. Every release step
// runs regardless of earlier steps failing; failures are logged and
// swallowed.
func (s *Session) teardown(sendEndCall bool, status, endReason string) {
	if !s.ending.CompareAndSwap(false, true) {
		return
	}

	if sendEndCall && s.sig != nil {
		if err := s.sig.SendControl(signal.TypeEndCall); err != nil {
			s.logger.Debug("failed to send end_call", "error", err)
		}
	}

	s.cancel()

	if s.sig != nil {
		if err := s.sig.Close(); err != nil {
			s.logger.Warn("failed to close call channel", "error", err)
		}
	}
	if s.recorder != nil {
		if err := s.recorder.Close(); err != nil {
			s.logger.Warn("failed to close recorder", "error", err)
		}
	}

	// Loop and playback worker exit on ctx cancellation; loop-owned state
	// is safe to read below.
	s.wg.Wait()

	if s.player != nil {
		if err := s.player.Close(); err != nil {
			s.logger.Warn("failed to close player", "error", err)
		}
	}
	if s.router != nil {
		if err := s.router.ResetCallAudio(); err != nil {
			s.logger.Warn("failed to reset call audio", "error", err)
		}
	}

	if s.cfg.Status != nil && s.cfg.CallID != "" && status != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.cfg.Status.Report(ctx, s.cfg.CallID, status, endReason)
		cancel()
	}

	if s.cfg.Store != nil && len(s.fragments) > 0 {
		key := s.cfg.CallID
		if key == "" {
			key = s.id
		}
		rec := store.Record{
			ChatID:    s.cfg.ChatID,
			CallID:    s.cfg.CallID,
			StartedAt: s.startedAt,
			EndedAt:   time.Now(),
			Fragments: s.fragments,
		}
		if err := s.cfg.Store.Save(key, rec); err != nil {
			s.logger.Warn("failed to persist transcript", "error", err)
		}
	}

	if s.activity != ActivityIdle {
		s.activity = ActivityIdle
		s.activities.publish(ActivityIdle)
	}
	s.levels.close()
	s.activities.close()
	s.lines.close()

	s.active.Store(false)
	s.logger.Info("call session ended", "status", status, "end_reason", endReason)
}

// IsActive reports whether the call is connected and not torn down.
func (s *Session) IsActive() bool {
	return s.active.Load()
}

// SetMuted toggles transmission of capture frames. Level and activity
// processing continue while muted.
func (s *Session) SetMuted(muted bool) {
	s.muted.Store(muted)
}

// Muted reports whether capture transmission is suppressed.
func (s *Session) Muted() bool {
	return s.muted.Load()
}

// SetSpeakerEnabled switches the output route between speaker and
// earpiece.
func (s *Session) SetSpeakerEnabled(enabled bool) {
	s.speakerOn.Store(enabled)
	if err := s.router.SetSpeakerEnabled(enabled); err != nil {
		s.logger.Warn("failed to switch speaker route", "error", err)
	}
}

// SpeakerEnabled reports the desired output route.
func (s *Session) SpeakerEnabled() bool {
	return s.speakerOn.Load()
}

// Waveform returns the recent capture levels, oldest first.
func (s *Session) Waveform() []float64 {
	return s.waveform.Snapshot()
}

// SubscribeLevels registers a consumer of per-frame capture levels.
func (s *Session) SubscribeLevels() (<-chan float64, func()) {
	return s.levels.subscribe(64)
}

// SubscribeActivity registers a consumer of voice-activity changes.
func (s *Session) SubscribeActivity() (<-chan VoiceActivity, func()) {
	return s.activities.subscribe(16)
}

// SubscribeTranscript registers a consumer of transcript line updates.
func (s *Session) SubscribeTranscript() (<-chan transcript.Line, func()) {
	return s.lines.subscribe(32)
}
