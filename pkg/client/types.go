package client

import (
	"encoding/json"
	"time"
)

// Status is the supervisor's view of the gateway child.
type Status struct {
	Running   bool           `json:"running"`
	Port      int            `json:"port"`
	PID       int            `json:"pid,omitempty"`
	StartedAt *time.Time     `json:"startedAt,omitempty"`
	Resources *ResourceUsage `json:"resources,omitempty"`
}

// ResourceUsage is the latest resource sample of the child.
type ResourceUsage struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpuPercent"`
	MemoryRSS  uint64    `json:"memoryRss"`
	MemoryMB   float64   `json:"memoryMb"`
	NumThreads int32     `json:"numThreads"`
	SampledAt  time.Time `json:"sampledAt"`
}

// Health is the gateway's own health report.
type Health struct {
	Status        string  `json:"status"`
	StartedAt     *string `json:"startedAt,omitempty"`
	InstanceCount *uint64 `json:"instanceCount,omitempty"`
}

// AuditLogEntry is one record of the gateway's audit trail.
type AuditLogEntry struct {
	ID        string          `json:"id"`
	Category  string          `json:"category"`
	Action    string          `json:"action"`
	Actor     string          `json:"actor"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt string          `json:"createdAt"`
}

// RedPhoneResult reports an emergency shutdown.
type RedPhoneResult struct {
	Status    string         `json:"status"`
	Reason    string         `json:"reason"`
	Timestamp string         `json:"timestamp"`
	Audited   bool           `json:"audited"`
	AuditLog  *AuditLogEntry `json:"auditLog,omitempty"`
}

// DaemonStatus describes the OS service definition.
type DaemonStatus struct {
	Platform     string `json:"platform"`
	Supported    bool   `json:"supported"`
	Enabled      bool   `json:"enabled"`
	Running      bool   `json:"running"`
	ServiceLabel string `json:"serviceLabel"`
	ServicePath  string `json:"servicePath"`
	LogHint      string `json:"logHint"`
	LastError    string `json:"lastError,omitempty"`
	Message      string `json:"message"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

type redPhoneRequest struct {
	Reason string `json:"reason"`
}

type enableRequest struct {
	Enabled bool `json:"enabled"`
}

type tokenResponse struct {
	Token string `json:"token"`
}
