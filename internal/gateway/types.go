package gateway

import (
	"encoding/json"
	"fmt"
)

// Health mirrors the gateway's GET /health payload.
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

type actionRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// StatusError is returned when the gateway answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway returned status %d", e.Code)
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.Code, e.Body)
}
