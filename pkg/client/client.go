package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is where `gatewayd serve` listens by default.
const DefaultBaseURL = "http://127.0.0.1:4456/api"

// Client talks to a running gatewayd control API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration
type Config struct {
	BaseURL string
	// Stop and restart block for up to the graceful plus kill windows.
	Timeout time.Duration
	Logger  *slog.Logger // Optional logger for client operations
}

// APIError is returned for non-2xx answers from the control API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// DefaultConfig returns default client configuration
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 30 * time.Second,
	}
}

// New creates a new control API client
func New(config Config) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable checks if the supervisor is running and reachable
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		c.logger.Debug("Failed to create request for reachability check", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("Supervisor unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	ok := resp.StatusCode != http.StatusNotFound
	c.logger.Debug("Supervisor reachability check", "reachable", ok, "status", resp.StatusCode)
	return ok
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

func (c *Client) Start(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodPost, "/start", nil, &st)
	return st, err
}

func (c *Client) Stop(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodPost, "/stop", nil, &st)
	return st, err
}

func (c *Client) Restart(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodPost, "/restart", nil, &st)
	return st, err
}

// RedPhone triggers the emergency shutdown. The reason is required.
func (c *Client) RedPhone(ctx context.Context, reason string) (RedPhoneResult, error) {
	var res RedPhoneResult
	err := c.do(ctx, http.MethodPost, "/red-phone", redPhoneRequest{Reason: reason}, &res)
	return res, err
}

func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/health", nil, &h)
	return h, err
}

// AuditLogs lists audit entries; limit <= 0 uses the server default.
func (c *Client) AuditLogs(ctx context.Context, limit int) ([]AuditLogEntry, error) {
	path := "/audit/logs"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var logs []AuditLogEntry
	err := c.do(ctx, http.MethodGet, path, nil, &logs)
	return logs, err
}

func (c *Client) SessionToken(ctx context.Context) (string, error) {
	var tr tokenResponse
	if err := c.do(ctx, http.MethodGet, "/session-token", nil, &tr); err != nil {
		return "", err
	}
	return tr.Token, nil
}

func (c *Client) DaemonStatus(ctx context.Context) (DaemonStatus, error) {
	var st DaemonStatus
	err := c.do(ctx, http.MethodGet, "/daemon", nil, &st)
	return st, err
}

func (c *Client) DaemonSetEnabled(ctx context.Context, enabled bool) (DaemonStatus, error) {
	var st DaemonStatus
	err := c.do(ctx, http.MethodPost, "/daemon/enable", enableRequest{Enabled: enabled}, &st)
	return st, err
}

// DaemonAction runs start, stop or restart on the service definition.
func (c *Client) DaemonAction(ctx context.Context, action string) (DaemonStatus, error) {
	switch action {
	case "start", "stop", "restart":
	default:
		return DaemonStatus{}, fmt.Errorf("unknown daemon action %q", action)
	}
	var st DaemonStatus
	err := c.do(ctx, http.MethodPost, "/daemon/"+action, nil, &st)
	return st, err
}

// do performs HTTP request with common error handling
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("HTTP request failed", "error", err, "path", path)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleErrorResponse handles HTTP error responses
func (c *Client) handleErrorResponse(resp *http.Response) error {
	var er ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		c.logger.Debug("Failed to decode error response", "status", resp.StatusCode)
		return &APIError{StatusCode: resp.StatusCode}
	}
	c.logger.Debug("API request failed", "error", er.Error, "status", resp.StatusCode)
	return &APIError{StatusCode: resp.StatusCode, Message: er.Error}
}
