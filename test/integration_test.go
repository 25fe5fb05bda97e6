package test

import (
	"context"
	"encoding/binary"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/botsapp/voicecall-go/pkg/call"
	"github.com/botsapp/voicecall-go/pkg/store"
	"github.com/botsapp/voicecall-go/pkg/transcript"
)

// toneRecorder produces loud frames for a fixed count, then silence, so a
// full user turn plays out against the silence hold.
type toneRecorder struct {
	loudFrames int
	cancel     context.CancelFunc
}

func (r *toneRecorder) Start(ctx context.Context) (<-chan []byte, error) {
	ctx, r.cancel = context.WithCancel(ctx)
	frames := make(chan []byte, 8)

	go func() {
		defer close(frames)

		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()

		sent := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			frame := make([]byte, 320*2)
			if sent < r.loudFrames {
				for i := 0; i < 320; i++ {
					binary.LittleEndian.PutUint16(frame[i*2:], uint16(int16(8000)))
				}
			}
			sent++

			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	return frames, nil
}

func (r *toneRecorder) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

type collectPlayer struct {
	mu     sync.Mutex
	chunks int
}

func (p *collectPlayer) Open() error { return nil }

func (p *collectPlayer) Feed(chunk []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks++
	return nil
}

func (p *collectPlayer) Close() error { return nil }

func (p *collectPlayer) chunkCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chunks
}

type nopRouter struct{}

func (nopRouter) ConfigureCallAudio() error    { return nil }
func (nopRouter) ResetCallAudio() error        { return nil }
func (nopRouter) SetSpeakerEnabled(bool) error { return nil }

// TestFullCallFlow drives one complete call: speech, turn end, bot reply
// with audio, settling to idle, and an explicit hangup.
func TestFullCallFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	endpoint := StartMockVoiceEndpoint(logger)
	defer endpoint.Close()

	st, err := store.Open(store.Options{InMemory: true, Logger: logger})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	tuning := call.DefaultTuning()
	tuning.SilenceHold = 120 * time.Millisecond
	tuning.TurnCompleteDebounce = 30 * time.Millisecond
	tuning.BotAudioFreshness = 10 * time.Millisecond

	player := &collectPlayer{}
	sess := call.NewSession(call.Config{
		BaseURL:   endpoint.URL,
		ChatID:    "chat-42",
		CallID:    "call-42",
		Token:     "test-token",
		Recorder:  &toneRecorder{loudFrames: 8},
		NewPlayer: func() call.Player { return player },
		Router:    nopRouter{},
		Store:     st,
		Tuning:    &tuning,
		Logger:    logger,
	})

	lines, cancelLines := sess.SubscribeTranscript()
	defer cancelLines()
	activities, cancelActs := sess.SubscribeActivity()
	defer cancelActs()

	var mu sync.Mutex
	var gotLines []transcript.Line
	var gotActivities []call.VoiceActivity
	go func() {
		for lines != nil || activities != nil {
			select {
			case line, ok := <-lines:
				if !ok {
					lines = nil
					continue
				}
				mu.Lock()
				gotLines = append(gotLines, line)
				mu.Unlock()
			case a, ok := <-activities:
				if !ok {
					activities = nil
					continue
				}
				mu.Lock()
				gotActivities = append(gotActivities, a)
				mu.Unlock()
			}
		}
	}()

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, "bot reply", func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, l := range gotLines {
			if l.Role == transcript.RoleAssistant {
				return true
			}
		}
		return false
	})

	waitFor(t, "bot audio playback", func() bool { return player.chunkCount() >= 2 })

	waitFor(t, "settled back to idle", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotActivities) > 0 && gotActivities[len(gotActivities)-1] == call.ActivityIdle
	})

	if err := sess.End(); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	waitFor(t, "hangup delivery", endpoint.EndCallReceived)

	if endpoint.UserAudioBytes() == 0 {
		t.Error("no caller audio reached the endpoint")
	}

	mu.Lock()
	defer mu.Unlock()

	// The user's progressive fragments collapse into one line followed by
	// the bot's reply.
	if len(gotLines) < 2 {
		t.Fatalf("transcript lines: got %d, want at least 2", len(gotLines))
	}
	final := map[string]string{}
	for _, l := range gotLines {
		final[l.Role] = l.Text
	}
	if final[transcript.RoleUser] != "turn the lights on" {
		t.Errorf("user line: got %q", final[transcript.RoleUser])
	}
	if final[transcript.RoleAssistant] != "Sure, turning them on now." {
		t.Errorf("assistant line: got %q", final[transcript.RoleAssistant])
	}

	// The activity stream walks the turn cycle without stuttering.
	for i := 1; i < len(gotActivities); i++ {
		if gotActivities[i] == gotActivities[i-1] {
			t.Errorf("consecutive duplicate activity %v at %d", gotActivities[i], i)
		}
	}
	seen := map[call.VoiceActivity]bool{}
	for _, a := range gotActivities {
		seen[a] = true
	}
	for _, want := range []call.VoiceActivity{
		call.ActivityUserSpeaking,
		call.ActivityWaiting,
		call.ActivityBotSpeaking,
		call.ActivityIdle,
	} {
		if !seen[want] {
			t.Errorf("activity %v never observed", want)
		}
	}

	// The persisted transcript rebuilds to the live lines.
	rebuilt, err := st.Lines("call-42")
	if err != nil {
		t.Fatalf("load transcript: %v", err)
	}
	if len(rebuilt) != 2 {
		t.Errorf("persisted lines: got %d, want 2", len(rebuilt))
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
