package callstatus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Call intent statuses understood by the backend.
const (
	StatusAccepted  = "accepted"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// End reasons attached to terminal statuses.
const (
	ReasonUserEnd = "user_end"
)

// Client reports outbound-call-intent status transitions to the backend
// REST API. All reporting is best-effort: the voice call proceeds whether
// or not the status update lands.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config holds call status client configuration.
type Config struct {
	BaseURL string        // Backend REST base URL
	Token   string        // Bearer token
	Timeout time.Duration // Request timeout; default 5s
	Logger  *slog.Logger  // Logger instance
}

// NewClient creates a call status client.
func NewClient(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     cfg.Logger,
	}
}

type statusUpdate struct {
	Status    string `json:"status"`
	EndReason string `json:"end_reason,omitempty"`
}

// UpdateStatus PATCHes /calls/{callID}/status with the new status and
// optional end reason.
func (c *Client) UpdateStatus(ctx context.Context, callID, status, endReason string) error {
	if callID == "" {
		return fmt.Errorf("missing call ID")
	}

	body, err := json.Marshal(statusUpdate{Status: status, EndReason: endReason})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/calls/%s/status", c.baseURL, callID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call status update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("call status update returned %d", resp.StatusCode)
	}

	c.logger.Debug("call status updated", "call_id", callID, "status", status, "end_reason", endReason)
	return nil
}

// Report is UpdateStatus with the error swallowed into a log line, for the
// fire-and-forget call sites in the session engine.
func (c *Client) Report(ctx context.Context, callID, status, endReason string) {
	if err := c.UpdateStatus(ctx, callID, status, endReason); err != nil {
		c.logger.Warn("call status report failed", "call_id", callID, "status", status, "error", err)
	}
}
