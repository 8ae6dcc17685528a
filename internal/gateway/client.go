package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is the gateway's fixed loopback port.
const DefaultPort = 4455

// PortEnv tells the gateway which port to listen on.
const PortEnv = "MAJORCLAW_GATEWAY_PORT"

// DefaultAuditLimit is used when AuditLogs is called with a non-positive limit.
const DefaultAuditLimit = 100

// Client talks to the gateway's HTTP API. Every request carries the session
// token header and is bounded by the client timeout.
type Client struct {
	baseURL string
	header  string
	token   func() string
	http    *http.Client
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Header is the session token header name.
	Header string
	// Token is called per request so a token exported after construction is picked up.
	Token func() string
}

// New creates a gateway client. Zero values fall back to the loopback URL on
// DefaultPort and a 5s timeout.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL("127.0.0.1", DefaultPort)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Header == "" {
		cfg.Header = "x-session-token"
	}
	if cfg.Token == nil {
		cfg.Token = func() string { return "" }
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		header:  cfg.Header,
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// BaseURL formats the gateway root URL for host and port.
func BaseURL(host string, port int) string {
	return "http://" + host + ":" + strconv.Itoa(port)
}

// Health reports the gateway's own health endpoint.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var payload struct {
		Status        *string `json:"status"`
		StartedAt     *string `json:"startedAt"`
		InstanceCount *uint64 `json:"instanceCount"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &payload); err != nil {
		return Health{}, fmt.Errorf("gateway health request failed: %w", err)
	}
	h := Health{Status: "unknown", StartedAt: payload.StartedAt, InstanceCount: payload.InstanceCount}
	if payload.Status != nil {
		h.Status = *payload.Status
	}
	return h, nil
}

// RequestShutdown asks the gateway to exit cooperatively. Only transport and
// status failures are reported; the body is ignored.
func (c *Client) RequestShutdown(ctx context.Context, reason, actor string) error {
	if err := c.do(ctx, http.MethodPost, "/system/shutdown", actionRequest{Reason: reason, Actor: actor}, nil); err != nil {
		return fmt.Errorf("failed to request gateway shutdown: %w", err)
	}
	return nil
}

// RedPhone posts an emergency shutdown notice. The returned entry is nil when
// the gateway answered without an audit record.
func (c *Client) RedPhone(ctx context.Context, reason, actor string) (*AuditLogEntry, error) {
	var payload struct {
		Log json.RawMessage `json:"log"`
	}
	if err := c.do(ctx, http.MethodPost, "/system/red-phone", actionRequest{Reason: reason, Actor: actor}, &payload); err != nil {
		return nil, fmt.Errorf("red phone request failed: %w", err)
	}
	if len(payload.Log) == 0 || string(payload.Log) == "null" {
		return nil, nil
	}
	var entry AuditLogEntry
	if err := json.Unmarshal(payload.Log, &entry); err != nil {
		return nil, fmt.Errorf("red phone audit log decode failed: %w", err)
	}
	return &entry, nil
}

// AuditLogs lists the most recent audit records.
func (c *Client) AuditLogs(ctx context.Context, limit int) ([]AuditLogEntry, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	var payload struct {
		Logs []AuditLogEntry `json:"logs"`
	}
	if err := c.do(ctx, http.MethodGet, "/audit/logs?limit="+strconv.Itoa(limit), nil, &payload); err != nil {
		return nil, fmt.Errorf("audit logs request failed: %w", err)
	}
	if payload.Logs == nil {
		payload.Logs = []AuditLogEntry{}
	}
	return payload.Logs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set(c.header, tok)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
