package gatewayd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/gatewayd/internal/config"
	"github.com/loykin/gatewayd/internal/daemon"
	"github.com/loykin/gatewayd/internal/gateway"
	"github.com/loykin/gatewayd/internal/history"
	"github.com/loykin/gatewayd/internal/history/factory"
	"github.com/loykin/gatewayd/internal/manager"
	"github.com/loykin/gatewayd/internal/metrics"
	"github.com/loykin/gatewayd/internal/server"
	"github.com/loykin/gatewayd/internal/session"
)

// Re-export core types for external consumers.

type Config = config.Config

type Status = manager.Status

type RedPhoneResult = manager.RedPhoneResult

type DaemonStatus = daemon.Status

type HistorySink = history.Sink

var (
	ErrReasonRequired = manager.ErrReasonRequired
	ErrRecordPoisoned = manager.ErrRecordPoisoned
)

func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Supervisor wires the gateway manager to its client, history sinks,
// resource sampler and service controller as described by a Config.
type Supervisor struct {
	cfg       *Config
	mgr       *manager.Manager
	gw        *gateway.Client
	ctl       daemon.Controller
	hist      *history.Dispatcher
	resources *metrics.ProcessMetricsCollector
	log       *slog.Logger
}

// New builds a supervisor. History sinks are opened here; Close releases them.
func New(cfg *Config, log *slog.Logger) (*Supervisor, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{cfg: cfg, log: log}

	var emitter history.Emitter
	if cfg.History.Enabled {
		sinks, err := factory.NewSinks(cfg.History.Sinks)
		if err != nil {
			return nil, fmt.Errorf("failed to open history sinks: %w", err)
		}
		s.hist = history.NewDispatcher(sinks, history.DispatcherConfig{
			Rate:   cfg.History.Rate,
			Buffer: cfg.History.Buffer,
		}, log)
		emitter = s.hist
	}

	spec, err := cfg.GatewaySpec()
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to build gateway command: %w", err)
	}
	s.gw = gateway.New(gateway.Config{
		BaseURL: cfg.GatewayURL(),
		Timeout: cfg.Gateway.RequestTimeout,
		Header:  session.Header,
		Token:   session.Token,
	})
	s.mgr = manager.New(manager.Options{
		Spec:             spec,
		Port:             cfg.Gateway.Port,
		Gateway:          s.gw,
		Timeouts:         cfg.Timeouts(),
		WatchdogInterval: cfg.Supervisor.WatchdogInterval,
		History:          emitter,
		Logger:           log,
	})
	s.ctl = daemon.New(runtime.GOOS, cfg.DaemonOptions(cfg.WorkspaceRoot()))
	if cfg.Metrics.Enabled && cfg.Metrics.ProcessMetrics.Enabled {
		s.resources = metrics.NewProcessMetricsCollector(cfg.Metrics.ProcessMetrics, log)
	}
	return s, nil
}

func (s *Supervisor) Start() (Status, error)                   { return s.mgr.Start() }
func (s *Supervisor) Status() (Status, error)                  { return s.mgr.Status() }
func (s *Supervisor) Stop(ctx context.Context) (Status, error) { return s.mgr.Stop(ctx) }
func (s *Supervisor) Restart(ctx context.Context) (Status, error) {
	return s.mgr.Restart(ctx)
}
func (s *Supervisor) StopForExit(ctx context.Context) (Status, error) {
	return s.mgr.StopForExit(ctx)
}
func (s *Supervisor) RedPhone(ctx context.Context, reason string) (RedPhoneResult, error) {
	return s.mgr.RedPhone(ctx, reason)
}
func (s *Supervisor) PID() int                  { return s.mgr.PID() }
func (s *Supervisor) Daemon() daemon.Controller { return s.ctl }
func (s *Supervisor) SessionToken() string      { return session.Token() }

// Supervise runs the watchdog, and the resource sampler when enabled,
// until ctx is done.
func (s *Supervisor) Supervise(ctx context.Context) {
	if s.resources != nil {
		go s.resources.Run(ctx, s.mgr.PID)
	}
	s.mgr.Watch(ctx)
}

// Handler returns the control API under the configured base path. /metrics
// is mounted on it when metrics are enabled without a dedicated listener.
func (s *Supervisor) Handler() http.Handler {
	deps := server.Deps{
		Supervisor: s.mgr,
		Gateway:    s.gw,
		Daemon:     s.ctl,
		Token:      session.Token,
		Logger:     s.log,
	}
	if s.resources != nil {
		deps.Resources = s.resources
	}
	if s.cfg.Metrics.Enabled && s.cfg.Metrics.Listen == "" {
		deps.Metrics = metrics.Handler()
	}
	return server.NewRouter(deps, s.cfg.Server.BasePath).Handler()
}

// Close flushes and closes the history sinks.
func (s *Supervisor) Close() error {
	if s.hist == nil {
		return nil
	}
	return s.hist.Close()
}

// NewHTTPServer returns an unstarted server for h with the control API timeouts.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return server.NewServer(addr, h)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }
func MetricsHandler() http.Handler                  { return metrics.Handler() }
