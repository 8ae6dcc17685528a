package manager

import (
	"context"
	"time"

	"github.com/loykin/gatewayd/internal/gateway"
	"github.com/loykin/gatewayd/internal/history"
	"github.com/loykin/gatewayd/internal/metrics"
)

const (
	DefaultPollInterval     = 120 * time.Millisecond
	DefaultStopGraceful     = 8500 * time.Millisecond
	DefaultStopKill         = 1500 * time.Millisecond
	DefaultRedPhoneGraceful = 1500 * time.Millisecond
	DefaultRedPhoneKill     = 1500 * time.Millisecond
)

// Gateway is the subset of the gateway HTTP API the supervisor calls.
type Gateway interface {
	RequestShutdown(ctx context.Context, reason, actor string) error
	RedPhone(ctx context.Context, reason, actor string) (*gateway.AuditLogEntry, error)
}

type nopGateway struct{}

func (nopGateway) RequestShutdown(context.Context, string, string) error { return nil }
func (nopGateway) RedPhone(context.Context, string, string) (*gateway.AuditLogEntry, error) {
	return nil, nil
}

// Timeouts bound each shutdown stage.
type Timeouts struct {
	Poll             time.Duration
	StopGraceful     time.Duration
	StopKill         time.Duration
	RedPhoneGraceful time.Duration
	RedPhoneKill     time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Poll:             DefaultPollInterval,
		StopGraceful:     DefaultStopGraceful,
		StopKill:         DefaultStopKill,
		RedPhoneGraceful: DefaultRedPhoneGraceful,
		RedPhoneKill:     DefaultRedPhoneKill,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Poll <= 0 {
		t.Poll = d.Poll
	}
	if t.StopGraceful <= 0 {
		t.StopGraceful = d.StopGraceful
	}
	if t.StopKill <= 0 {
		t.StopKill = d.StopKill
	}
	if t.RedPhoneGraceful <= 0 {
		t.RedPhoneGraceful = d.RedPhoneGraceful
	}
	if t.RedPhoneKill <= 0 {
		t.RedPhoneKill = d.RedPhoneKill
	}
	return t
}

// ShutdownRequest names who asked for the shutdown and how long each stage
// may take.
type ShutdownRequest struct {
	Reason   string
	Actor    string
	Graceful time.Duration
	Kill     time.Duration
}

func (m *Manager) stopRequest(reason, actor string) ShutdownRequest {
	return ShutdownRequest{Reason: reason, Actor: actor, Graceful: m.t.StopGraceful, Kill: m.t.StopKill}
}

// Stop shuts the gateway down and keeps the watchdog from respawning it.
func (m *Manager) Stop(ctx context.Context) (Status, error) {
	m.desired.Store(false)
	return m.shutdown(ctx, m.stopRequest("manual_stop", "user"))
}

// StopForExit is called once when the host process is exiting. Later calls
// return immediately.
func (m *Manager) StopForExit(ctx context.Context) (Status, error) {
	if !m.closing.CompareAndSwap(false, true) {
		return Status{Port: m.port}, nil
	}
	m.desired.Store(false)
	return m.shutdown(ctx, m.stopRequest("app_exit", "app"))
}

// Restart shuts the current child down and spawns a fresh one. The watchdog
// stays idle until the old child is gone.
func (m *Manager) Restart(ctx context.Context) (Status, error) {
	m.desired.Store(false)
	if _, err := m.shutdown(ctx, m.stopRequest("restart", "user")); err != nil {
		return Status{Port: m.port}, err
	}
	return m.Start()
}

// shutdown detaches the recorded child, asks the gateway to exit, waits up
// to req.Graceful, kills the process group if it is still alive, waits up
// to req.Kill and finally reaps it. A cancelled ctx skips straight to the
// kill.
func (m *Manager) shutdown(ctx context.Context, req ShutdownRequest) (Status, error) {
	var h Handle
	if err := m.rec.with(func(slot *Handle) error {
		h, *slot = *slot, nil
		return nil
	}); err != nil {
		return Status{Port: m.port}, err
	}
	if h == nil {
		return Status{Port: m.port}, nil
	}
	metrics.SetRunning(false)

	began := time.Now()
	pid := h.PID()
	log := m.log.With("pid", pid, "reason", req.Reason, "actor", req.Actor)

	if err := m.gw.RequestShutdown(ctx, req.Reason, req.Actor); err != nil {
		log.Debug("gateway shutdown request failed", "error", err)
	}

	escalated := false
	if !m.waitExit(ctx, h, req.Graceful) {
		escalated = true
		rec := history.Record{PID: pid, Reason: req.Reason, Actor: req.Actor}
		if err := h.Kill(); err != nil {
			log.Warn("gateway kill failed", "error", err)
			rec.Error = err.Error()
		} else {
			log.Warn("gateway ignored shutdown request, killed", "graceful", req.Graceful)
		}
		metrics.IncKill()
		m.emit(history.NewEvent(history.EventKill, rec))
		m.waitExit(ctx, h, req.Kill)
	}

	rec := history.Record{PID: pid, Reason: req.Reason, Actor: req.Actor, Escalated: escalated}
	if err := h.Wait(); err != nil && !escalated {
		rec.Error = err.Error()
	}
	rec.Duration = time.Since(began)

	metrics.IncStop(req.Actor, escalated)
	metrics.ObserveShutdown(req.Actor, rec.Duration.Seconds())
	log.Info("gateway stopped", "escalated", escalated, "duration", rec.Duration)
	m.emit(history.NewEvent(history.EventStop, rec))
	return Status{Port: m.port}, nil
}

// waitExit polls h until it exits, window elapses or ctx is done.
func (m *Manager) waitExit(ctx context.Context, h Handle, window time.Duration) bool {
	deadline := time.Now().Add(window)
	for {
		done, err := h.TryWait()
		if err != nil {
			m.log.Debug("gateway probe failed during shutdown", "error", err)
			return false
		}
		if done {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.NewTimer(min(m.t.Poll, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}
