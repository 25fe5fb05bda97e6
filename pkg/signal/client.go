package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/botsapp/voicecall-go/pkg/transcript"
)

// Client manages the duplex WebSocket channel for one call attempt. It
// demultiplexes inbound frames into control messages (JSON) and bot audio
// (binary), exposes a one-shot ready barrier, and sends microphone frames
// and control messages outbound.
type Client struct {
	baseURL string
	chatID  string
	callID  string
	token   string

	conn   *websocket.Conn
	mu     sync.Mutex
	logger *slog.Logger

	controlCh chan Control
	audioCh   chan []byte
	errCh     chan error
	readyCh   chan struct{}
	readyOnce sync.Once
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds signaling client configuration.
type Config struct {
	BaseURL string       // Call endpoint base URL (ws:// or wss://)
	ChatID  string       // Chat identity the call belongs to
	CallID  string       // Optional outbound call intent ID
	Token   string       // Auth credential appended as a query parameter
	Logger  *slog.Logger // Logger instance
}

// NewClient creates a signaling client for one call attempt.
func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		chatID:    cfg.ChatID,
		callID:    cfg.CallID,
		token:     cfg.Token,
		logger:    cfg.Logger,
		controlCh: make(chan Control, 50),     // Bounded control queue
		audioCh:   make(chan []byte, 200),     // Bounded bot audio queue
		errCh:     make(chan error, 10),
		readyCh:   make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// callURL builds the channel address from chat identity, optional call
// identity, and the credential token.
func (c *Client) callURL() string {
	q := url.Values{}
	q.Set("token", c.token)
	if c.callID != "" {
		q.Set("call_id", c.callID)
	}
	return fmt.Sprintf("%s/ws/voice/%s?%s", c.baseURL, url.PathEscape(c.chatID), q.Encode())
}

// Connect establishes the WebSocket channel and starts the read loop. The
// endpoint signals readiness with a {"type":"ready"} control message,
// observable via Ready().
func (c *Client) Connect(ctx context.Context) error {
	if c.token == "" {
		return fmt.Errorf("missing auth token")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.callURL(), nil)
	if err != nil {
		c.logger.Error("failed to connect call channel", "chat_id", c.chatID, "error", err)
		return fmt.Errorf("connect call channel: %w", err)
	}

	c.conn = conn
	c.logger.Info("call channel connected", "chat_id", c.chatID, "call_id", c.callID)

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return nil
}

// readLoop receives frames and routes them: JSON text → control messages,
// binary → bot audio.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.logger.Error("call channel read error", "chat_id", c.chatID, "error", err)
				select {
				case c.errCh <- err:
				default:
				}
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			c.handleControl(data)
		case websocket.BinaryMessage:
			select {
			case c.audioCh <- data:
			case <-c.ctx.Done():
				return
			default:
				// Audio loss is acceptable; blocking the read loop is not.
				c.logger.Warn("bot audio queue full, dropping frame", "bytes", len(data))
			}
		}
	}
}

// handleControl parses and dispatches one JSON control message.
func (c *Client) handleControl(data []byte) {
	var msg Control
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Error("failed to parse control message", "error", err, "data", string(data))
		return
	}

	switch msg.Type {
	case TypeReady:
		// Exactly once; repeated ready messages are ignored.
		c.readyOnce.Do(func() { close(c.readyCh) })
		return

	case TypeVoice:
		// Forward only non-empty fragments with a known speaker role.
		if strings.TrimSpace(msg.Text) == "" {
			return
		}
		if msg.Role != transcript.RoleUser && msg.Role != transcript.RoleAssistant {
			c.logger.Debug("dropping transcript with unknown role", "role", msg.Role)
			return
		}

	case TypeTurnComplete:

	case TypeError:
		c.logger.Warn("call endpoint error", "message", msg.Message)
		select {
		case <-c.readyCh:
			// Established call: forwarded below for the session to log.
		default:
			// Before ready the endpoint is refusing the call.
			select {
			case c.errCh <- fmt.Errorf("call endpoint error: %s", msg.Message):
			default:
			}
			return
		}

	default:
		c.logger.Debug("unknown control message type", "type", msg.Type)
		return
	}

	select {
	case c.controlCh <- msg:
	case <-c.ctx.Done():
	default:
		c.logger.Warn("control queue full, dropping message", "type", msg.Type)
	}
}

// pingLoop sends periodic WebSocket pings to keep the channel alive across
// idle stretches of a call.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			if conn != nil {
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					c.logger.Debug("ping failed", "error", err)
				}
			}
			c.mu.Unlock()
		}
	}
}

// SendAudioFrame sends one post-gain capture frame. Best-effort: transport
// errors are returned for logging but must not end the call.
func (c *Client) SendAudioFrame(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("call channel closed")
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// SendControl sends an outbound control message such as user_turn_end or
// end_call. Best-effort.
func (c *Client) SendControl(msgType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("call channel closed")
	}

	data, err := json.Marshal(Control{Type: msgType})
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Ready returns a channel closed when the endpoint has signalled readiness.
func (c *Client) Ready() <-chan struct{} {
	return c.readyCh
}

// ControlChan returns the channel of inbound control messages.
func (c *Client) ControlChan() <-chan Control {
	return c.controlCh
}

// AudioChan returns the channel of inbound bot audio frames.
func (c *Client) AudioChan() <-chan []byte {
	return c.audioCh
}

// ErrorChan returns the channel of transport errors.
func (c *Client) ErrorChan() <-chan error {
	return c.errCh
}

// IsConnected reports whether the channel is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close tears the channel down. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()

		c.wg.Wait()
	})
	return nil
}
