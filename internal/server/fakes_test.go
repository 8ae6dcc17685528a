package server

import (
	"context"
	"errors"
	"sync"

	"github.com/loykin/gatewayd/internal/daemon"
	"github.com/loykin/gatewayd/internal/gateway"
	"github.com/loykin/gatewayd/internal/manager"
	"github.com/loykin/gatewayd/internal/metrics"
)

type fakeSupervisor struct {
	mu       sync.Mutex
	status   manager.Status
	err      error
	calls    []string
	reasons  []string
	ctxs     []context.Context
	redPhone manager.RedPhoneResult
}

func (f *fakeSupervisor) record(op string) (manager.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op)
	return f.status, f.err
}

func (f *fakeSupervisor) Status() (manager.Status, error) { return f.record("status") }
func (f *fakeSupervisor) Start() (manager.Status, error)  { return f.record("start") }
func (f *fakeSupervisor) Stop(ctx context.Context) (manager.Status, error) {
	f.keep(ctx)
	return f.record("stop")
}
func (f *fakeSupervisor) Restart(ctx context.Context) (manager.Status, error) {
	f.keep(ctx)
	return f.record("restart")
}

func (f *fakeSupervisor) keep(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ctxs = append(f.ctxs, ctx)
}

func (f *fakeSupervisor) RedPhone(ctx context.Context, reason string) (manager.RedPhoneResult, error) {
	f.keep(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "red-phone")
	f.reasons = append(f.reasons, reason)
	if reason == "" {
		return manager.RedPhoneResult{}, manager.ErrReasonRequired
	}
	if f.err != nil {
		return manager.RedPhoneResult{}, f.err
	}
	res := f.redPhone
	res.Reason = reason
	return res, nil
}

type fakeGateway struct {
	health    gateway.Health
	healthErr error
	logs      []gateway.AuditLogEntry
	logsErr   error
	limits    []int
}

func (f *fakeGateway) Health(context.Context) (gateway.Health, error) {
	return f.health, f.healthErr
}

func (f *fakeGateway) AuditLogs(_ context.Context, limit int) ([]gateway.AuditLogEntry, error) {
	f.limits = append(f.limits, limit)
	return f.logs, f.logsErr
}

type fakeDaemon struct {
	status  daemon.Status
	err     error
	calls   []string
	enabled []bool
}

func (f *fakeDaemon) result(op string) (daemon.Status, error) {
	f.calls = append(f.calls, op)
	return f.status, f.err
}

func (f *fakeDaemon) Status(context.Context) (daemon.Status, error) { return f.result("status") }
func (f *fakeDaemon) SetEnabled(_ context.Context, enabled bool) (daemon.Status, error) {
	f.enabled = append(f.enabled, enabled)
	return f.result("enable")
}
func (f *fakeDaemon) Start(context.Context) (daemon.Status, error)   { return f.result("start") }
func (f *fakeDaemon) Stop(context.Context) (daemon.Status, error)    { return f.result("stop") }
func (f *fakeDaemon) Restart(context.Context) (daemon.Status, error) { return f.result("restart") }

type fixedResources struct {
	usage metrics.ResourceUsage
	ok    bool
}

func (f fixedResources) Latest() (metrics.ResourceUsage, bool) { return f.usage, f.ok }

var errBoom = errors.New("boom")
