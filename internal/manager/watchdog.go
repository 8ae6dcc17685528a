package manager

import (
	"context"
	"time"

	"github.com/loykin/gatewayd/internal/history"
	"github.com/loykin/gatewayd/internal/metrics"
)

const DefaultWatchdogInterval = 5 * time.Second

// Watch respawns the gateway whenever it should be running and is not. It
// returns when ctx is done or once StopForExit has been entered. The
// watchdog never stops the gateway.
func (m *Manager) Watch(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !m.reconcileOnce() {
			return
		}
	}
}

// reconcileOnce runs one watchdog tick and reports whether the loop should
// continue.
func (m *Manager) reconcileOnce() bool {
	if m.closing.Load() {
		return false
	}
	if !m.desired.Load() {
		metrics.IncWatchdogTick("skipped")
		return true
	}
	st, spawned, err := m.start()
	switch {
	case err != nil:
		metrics.IncWatchdogTick("error")
		m.log.Error("watchdog respawn failed", "error", err)
	case spawned:
		metrics.IncWatchdogTick("respawned")
		m.log.Warn("watchdog respawned gateway", "pid", st.PID)
		m.emit(history.NewEvent(history.EventRespawn, history.Record{PID: st.PID, Actor: "watchdog"}))
	default:
		metrics.IncWatchdogTick("healthy")
	}
	return true
}
