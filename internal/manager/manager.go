package manager

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/loykin/gatewayd/internal/gateway"
	"github.com/loykin/gatewayd/internal/history"
	"github.com/loykin/gatewayd/internal/metrics"
	"github.com/loykin/gatewayd/internal/process"
	"github.com/loykin/gatewayd/internal/session"
)

// OwnerPIDEnv tells the gateway which process supervises it.
const OwnerPIDEnv = "MAJORCLAW_GATEWAY_OWNER_PID"

// Status is the in-process view of the gateway child.
type Status struct {
	Running   bool       `json:"running"`
	Port      int        `json:"port"`
	PID       int        `json:"pid,omitempty"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// SpawnFunc starts a gateway child from spec.
type SpawnFunc func(spec process.Spec) (Handle, error)

// Options wires a Manager. Zero values fall back to defaults.
type Options struct {
	Spec             process.Spec
	Port             int
	Gateway          Gateway
	Timeouts         Timeouts
	WatchdogInterval time.Duration
	Token            func() string
	Spawn            SpawnFunc
	History          history.Emitter
	Logger           *slog.Logger
}

// Manager supervises a single gateway child process.
type Manager struct {
	rec     record
	desired atomic.Bool
	closing atomic.Bool

	spec     process.Spec
	port     int
	gw       Gateway
	t        Timeouts
	interval time.Duration
	token    func() string
	spawn    SpawnFunc
	hist     history.Emitter
	log      *slog.Logger
}

func New(opts Options) *Manager {
	m := &Manager{
		spec:     opts.Spec,
		port:     opts.Port,
		gw:       opts.Gateway,
		t:        opts.Timeouts.withDefaults(),
		interval: opts.WatchdogInterval,
		token:    opts.Token,
		spawn:    opts.Spawn,
		hist:     opts.History,
		log:      opts.Logger,
	}
	if m.port == 0 {
		m.port = gateway.DefaultPort
	}
	if m.interval <= 0 {
		m.interval = DefaultWatchdogInterval
	}
	if m.token == nil {
		m.token = session.Token
	}
	if m.spawn == nil {
		m.spawn = func(spec process.Spec) (Handle, error) { return process.Start(spec) }
	}
	if m.gw == nil {
		m.gw = nopGateway{}
	}
	if m.log == nil {
		m.log = slog.Default()
	}
	m.log = m.log.With("component", "supervisor")
	m.desired.Store(true)
	return m
}

// Port is the canonical gateway port reported in every status.
func (m *Manager) Port() int { return m.port }

// Desired reports whether the gateway is meant to be running.
func (m *Manager) Desired() bool { return m.desired.Load() }

// Closing reports whether StopForExit has been entered.
func (m *Manager) Closing() bool { return m.closing.Load() }

// PID returns the recorded child's pid, or 0.
func (m *Manager) PID() int {
	st, err := m.Status()
	if err != nil || !st.Running {
		return 0
	}
	return st.PID
}

// Start spawns the gateway unless a live child is already recorded.
func (m *Manager) Start() (Status, error) {
	m.desired.Store(true)
	st, _, err := m.start()
	return st, err
}

func (m *Manager) start() (Status, bool, error) {
	var (
		st      Status
		spawned bool
		exited  *history.Event
	)
	err := m.rec.with(func(slot *Handle) error {
		if h := *slot; h != nil {
			done, err := h.TryWait()
			if err != nil {
				return fmt.Errorf("failed to inspect gateway process: %w", err)
			}
			if !done {
				st = m.running(h)
				return nil
			}
			e := m.exitEvent(h)
			exited = &e
			*slot = nil
		}

		h, err := m.spawn(m.childSpec())
		if err != nil {
			return fmt.Errorf("failed to start gateway: %w", err)
		}
		*slot = h
		spawned = true
		st = m.running(h)
		return nil
	})
	if exited != nil {
		m.emit(*exited)
	}
	if err != nil {
		return Status{Port: m.port}, false, err
	}
	if spawned {
		metrics.IncStart()
		metrics.SetRunning(true)
		m.log.Info("gateway spawned", "pid", st.PID, "port", m.port)
		m.emit(history.NewEvent(history.EventStart, history.Record{PID: st.PID}))
	}
	return st, spawned, nil
}

// Status probes the recorded child without blocking. An exited child is
// cleared from the record.
func (m *Manager) Status() (Status, error) {
	var (
		st     = Status{Port: m.port}
		exited *history.Event
	)
	err := m.rec.with(func(slot *Handle) error {
		h := *slot
		if h == nil {
			return nil
		}
		done, err := h.TryWait()
		if err != nil {
			return fmt.Errorf("failed to inspect gateway process: %w", err)
		}
		if done {
			e := m.exitEvent(h)
			exited = &e
			*slot = nil
			return nil
		}
		st = m.running(h)
		return nil
	})
	if exited != nil {
		m.emit(*exited)
	}
	if err != nil {
		return Status{Port: m.port}, err
	}
	return st, nil
}

func (m *Manager) childSpec() process.Spec {
	spec := m.spec
	spec.Env = append(append([]string(nil), m.spec.Env...),
		session.TokenEnv+"="+m.token(),
		OwnerPIDEnv+"="+strconv.Itoa(os.Getpid()),
		gateway.PortEnv+"="+strconv.Itoa(m.port),
	)
	return spec
}

func (m *Manager) running(h Handle) Status {
	started := h.StartedAt()
	return Status{Running: true, Port: m.port, PID: h.PID(), StartedAt: &started}
}

// exitEvent is built under the lock; the child has already been reaped so
// Wait returns immediately.
func (m *Manager) exitEvent(h Handle) history.Event {
	rec := history.Record{PID: h.PID()}
	if err := h.Wait(); err != nil {
		rec.Error = err.Error()
	}
	metrics.IncUnexpectedExit()
	metrics.SetRunning(false)
	m.log.Warn("gateway exited", "pid", rec.PID, "error", rec.Error)
	return history.NewEvent(history.EventExit, rec)
}

func (m *Manager) emit(e history.Event) {
	if m.hist != nil {
		m.hist.Emit(e)
	}
}
