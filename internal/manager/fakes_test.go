package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/gatewayd/internal/gateway"
	"github.com/loykin/gatewayd/internal/history"
	"github.com/loykin/gatewayd/internal/process"
)

type fakeHandle struct {
	pid      int
	started  time.Time
	done     chan struct{}
	once     sync.Once
	kills    atomic.Int32
	probeErr error
}

func newFakeHandle(pid int) *fakeHandle {
	return &fakeHandle{pid: pid, started: time.Now(), done: make(chan struct{})}
}

func (h *fakeHandle) PID() int             { return h.pid }
func (h *fakeHandle) StartedAt() time.Time { return h.started }

func (h *fakeHandle) TryWait() (bool, error) {
	if h.probeErr != nil {
		return false, h.probeErr
	}
	select {
	case <-h.done:
		return true, nil
	default:
		return false, nil
	}
}

func (h *fakeHandle) Kill() error {
	h.kills.Add(1)
	h.exit()
	return nil
}

func (h *fakeHandle) Wait() error {
	<-h.done
	return nil
}

func (h *fakeHandle) exit() { h.once.Do(func() { close(h.done) }) }

type spawner struct {
	mu      sync.Mutex
	next    int
	handles []*fakeHandle
	specs   []process.Spec
	err     error
}

func (s *spawner) spawn(spec process.Spec) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.next++
	h := newFakeHandle(1000 + s.next)
	s.handles = append(s.handles, h)
	s.specs = append(s.specs, spec)
	return h, nil
}

func (s *spawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func (s *spawner) last() *fakeHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handles[len(s.handles)-1]
}

type fakeGateway struct {
	mu            sync.Mutex
	shutdowns     []string
	redPhones     []string
	onShutdown    func()
	shutdownErr   error
	redPhoneEntry *gateway.AuditLogEntry
	redPhoneErr   error
}

func (g *fakeGateway) RequestShutdown(_ context.Context, reason, actor string) error {
	g.mu.Lock()
	g.shutdowns = append(g.shutdowns, reason+"/"+actor)
	cb := g.onShutdown
	g.mu.Unlock()
	if cb != nil {
		cb()
	}
	return g.shutdownErr
}

func (g *fakeGateway) RedPhone(_ context.Context, reason, actor string) (*gateway.AuditLogEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.redPhones = append(g.redPhones, reason+"/"+actor)
	return g.redPhoneEntry, g.redPhoneErr
}

func (g *fakeGateway) calls() (shutdowns, redPhones int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.shutdowns), len(g.redPhones)
}

type recorder struct {
	mu     sync.Mutex
	events []history.Event
}

func (r *recorder) Emit(e history.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []history.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]history.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) last(t history.EventType) (history.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return history.Event{}, false
}

var errUnreachable = errors.New("connection refused")

// fastTimeouts keeps shutdown windows short enough for unit tests.
func fastTimeouts() Timeouts {
	return Timeouts{
		Poll:             10 * time.Millisecond,
		StopGraceful:     300 * time.Millisecond,
		StopKill:         100 * time.Millisecond,
		RedPhoneGraceful: 150 * time.Millisecond,
		RedPhoneKill:     100 * time.Millisecond,
	}
}

type fixture struct {
	m   *Manager
	sp  *spawner
	gw  *fakeGateway
	rec *recorder
}

func newFixture() *fixture {
	f := &fixture{sp: &spawner{}, gw: &fakeGateway{}, rec: &recorder{}}
	f.m = New(Options{
		Spec:     process.Spec{Name: "gateway", Command: "pnpm", Args: []string{"--filter", "@majorclaw/gateway", "dev:server"}},
		Gateway:  f.gw,
		Timeouts: fastTimeouts(),
		Token:    func() string { return "mc-test-token" },
		Spawn:    f.sp.spawn,
		History:  f.rec,
	})
	return f
}
