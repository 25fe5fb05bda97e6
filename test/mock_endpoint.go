package test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// MockVoiceEndpoint simulates the calling backend for integration tests.
// It runs a small scripted conversation: once the caller's turn ends it
// replies with transcript fragments, bot audio, and a turn_complete.
type MockVoiceEndpoint struct {
	server *httptest.Server
	URL    string
	logger *slog.Logger

	upgrader websocket.Upgrader

	userAudioBytes  atomic.Int64
	endCallReceived atomic.Bool

	writeMu sync.Mutex
}

// StartMockVoiceEndpoint starts a mock endpoint on an auto-assigned port.
func StartMockVoiceEndpoint(logger *slog.Logger) *MockVoiceEndpoint {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockVoiceEndpoint{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	m.server = httptest.NewServer(http.HandlerFunc(m.handleCall))
	m.URL = "ws" + strings.TrimPrefix(m.server.URL, "http")
	return m
}

// UserAudioBytes returns how many bytes of caller audio arrived.
func (m *MockVoiceEndpoint) UserAudioBytes() int64 {
	return m.userAudioBytes.Load()
}

// EndCallReceived reports whether the caller hung up explicitly.
func (m *MockVoiceEndpoint) EndCallReceived() bool {
	return m.endCallReceived.Load()
}

// Close shuts the endpoint down.
func (m *MockVoiceEndpoint) Close() {
	m.server.Close()
}

func (m *MockVoiceEndpoint) handleCall(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("mock endpoint upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	m.logger.Info("mock endpoint: call connected",
		"path", r.URL.Path,
		"call_id", r.URL.Query().Get("call_id"))

	m.sendControl(conn, map[string]string{"type": "ready"})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch mt {
		case websocket.BinaryMessage:
			m.userAudioBytes.Add(int64(len(data)))

		case websocket.TextMessage:
			var msg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(data, &msg); err != nil {
				m.logger.Error("mock endpoint: bad control message", "error", err)
				continue
			}

			switch msg.Type {
			case "user_turn_end":
				m.respondToTurn(conn)
			case "end_call":
				m.endCallReceived.Store(true)
				return
			}
		}
	}
}

// respondToTurn plays the bot side of one conversational turn: the user's
// transcript (delivered progressively), the bot's reply text, two chunks
// of bot speech, and the turn_complete marker.
func (m *MockVoiceEndpoint) respondToTurn(conn *websocket.Conn) {
	m.sendControl(conn, map[string]string{
		"type": "voice", "role": "user", "text": "turn the",
	})
	m.sendControl(conn, map[string]string{
		"type": "voice", "role": "user", "text": "turn the lights on",
	})
	m.sendControl(conn, map[string]string{
		"type": "voice", "role": "assistant", "text": "Sure, turning them on now.",
	})

	m.writeMu.Lock()
	for i := 0; i < 2; i++ {
		if err := conn.WriteMessage(websocket.BinaryMessage, make([]byte, 1920)); err != nil {
			m.logger.Error("mock endpoint: audio write failed", "error", err)
		}
	}
	m.writeMu.Unlock()

	m.sendControl(conn, map[string]string{"type": "turn_complete"})
}

func (m *MockVoiceEndpoint) sendControl(conn *websocket.Conn, msg map[string]string) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	data, _ := json.Marshal(msg)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		m.logger.Error("mock endpoint: control write failed", "error", err)
	}
}
