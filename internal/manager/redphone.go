package manager

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/loykin/gatewayd/internal/gateway"
	"github.com/loykin/gatewayd/internal/history"
	"github.com/loykin/gatewayd/internal/metrics"
)

// ErrReasonRequired rejects a red-phone call without a reason.
var ErrReasonRequired = errors.New("red-phone reason is required")

// RedPhoneResult reports an emergency shutdown.
type RedPhoneResult struct {
	Status    string                 `json:"status"`
	Reason    string                 `json:"reason"`
	Timestamp string                 `json:"timestamp"`
	Audited   bool                   `json:"audited"`
	AuditLog  *gateway.AuditLogEntry `json:"auditLog,omitempty"`
}

// RedPhone records the reason with the gateway's audit trail when it can,
// then shuts the gateway down on the short red-phone timeouts. Audit
// failures do not stop the shutdown.
func (m *Manager) RedPhone(ctx context.Context, reason string) (RedPhoneResult, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return RedPhoneResult{}, ErrReasonRequired
	}

	res := RedPhoneResult{Status: "stopped", Reason: reason}
	entry, err := m.gw.RedPhone(ctx, reason, "user")
	switch {
	case err != nil:
		m.log.Warn("red-phone audit failed", "error", err)
	case entry != nil:
		res.Audited = true
		res.AuditLog = entry
	}

	m.desired.Store(false)
	_, err = m.shutdown(ctx, ShutdownRequest{
		Reason:   "red_phone:" + reason,
		Actor:    "user",
		Graceful: m.t.RedPhoneGraceful,
		Kill:     m.t.RedPhoneKill,
	})
	if err != nil {
		return RedPhoneResult{}, err
	}

	res.Timestamp = time.Now().UTC().Format(time.RFC3339)
	metrics.IncRedPhone(res.Audited)
	m.emit(history.NewEvent(history.EventRedPhone, history.Record{
		Reason:  reason,
		Actor:   "user",
		Audited: res.Audited,
	}))
	return res, nil
}
