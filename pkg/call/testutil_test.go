package call

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gorilla/websocket"
)

// pcmFrame builds a mono 16-bit LE frame of n identical samples.
func pcmFrame(sample int16, n int) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}
	return buf
}

type fakeRecorder struct {
	frames   chan []byte
	startErr error
	closed   atomic.Bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{frames: make(chan []byte, 16)}
}

func (r *fakeRecorder) Start(ctx context.Context) (<-chan []byte, error) {
	if r.startErr != nil {
		return nil, r.startErr
	}
	return r.frames, nil
}

func (r *fakeRecorder) Close() error {
	r.closed.Store(true)
	return nil
}

type fakePlayer struct {
	mu       sync.Mutex
	fed      [][]byte
	openErr  error
	failNext int
	failErr  error
	closes   int
}

func (p *fakePlayer) Open() error { return p.openErr }

func (p *fakePlayer) Feed(chunk []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failNext > 0 {
		p.failNext--
		return p.failErr
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	p.fed = append(p.fed, c)
	return nil
}

func (p *fakePlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return nil
}

func (p *fakePlayer) fedChunks() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.fed))
	copy(out, p.fed)
	return out
}

func (p *fakePlayer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

type fakeRouter struct {
	mu         sync.Mutex
	configures int
	resets     int
	speaker    []bool
}

func (r *fakeRouter) ConfigureCallAudio() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configures++
	return nil
}

func (r *fakeRouter) ResetCallAudio() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	return nil
}

func (r *fakeRouter) SetSpeakerEnabled(enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speaker = append(r.speaker, enabled)
	return nil
}

func (r *fakeRouter) resetCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resets
}

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// voiceServer is a scripted call endpoint for session tests.
type voiceServer struct {
	srv *httptest.Server
	URL string

	// Inbound messages from the client under test.
	controls chan []byte
	binaries chan []byte
}

// startVoiceServer runs a mock endpoint. script, if non-nil, drives the
// server side of the connection after the upgrade.
func startVoiceServer(t *testing.T, script func(conn *websocket.Conn)) *voiceServer {
	t.Helper()

	vs := &voiceServer{
		controls: make(chan []byte, 32),
		binaries: make(chan []byte, 256),
	}

	vs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		if script != nil {
			go script(conn)
		}

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch mt {
			case websocket.TextMessage:
				vs.controls <- data
			case websocket.BinaryMessage:
				vs.binaries <- data
			}
		}
	}))

	vs.URL = "ws" + strings.TrimPrefix(vs.srv.URL, "http")
	t.Cleanup(vs.srv.Close)
	return vs
}

// testConfig assembles a session config with fake devices against the
// given endpoint.
func testConfig(url string, rec *fakeRecorder, player *fakePlayer, router *fakeRouter, tuning *Tuning) Config {
	return Config{
		BaseURL:   url,
		ChatID:    "chat-1",
		CallID:    "call-1",
		Token:     "secret",
		Recorder:  rec,
		NewPlayer: func() Player { return player },
		Router:    router,
		Tuning:    tuning,
	}
}
