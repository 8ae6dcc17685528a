package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loykin/gatewayd"
	"github.com/loykin/gatewayd/internal/logger"
	"github.com/loykin/gatewayd/internal/pidfile"
)

// exitGrace is added to the stop windows when bounding the final shutdown.
const exitGrace = 5 * time.Second

func runServe(ctx context.Context, path, pidFile string) error {
	cfg, err := gatewayd.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	log, closer := logger.New(cfg.Log, os.Stderr)
	defer func() { _ = closer.Close() }()
	slog.SetDefault(log)

	if pidFile != "" {
		if err := pidfile.Acquire(pidFile); err != nil {
			return fmt.Errorf("gatewayd: %w", err)
		}
		defer func() { _ = pidfile.Remove(pidFile) }()
	}

	if cfg.Metrics.Enabled {
		if err := gatewayd.RegisterMetricsDefault(); err != nil {
			log.Warn("failed to register metrics", "error", err)
		}
	}

	sup, err := gatewayd.New(cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = sup.Close() }()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Supervisor.AutoStart {
		if st, err := sup.Start(); err != nil {
			log.Error("auto-start failed", "error", err)
		} else {
			log.Info("gateway started", "pid", st.PID, "port", st.Port)
		}
	}
	go sup.Supervise(ctx)

	servers := []*http.Server{gatewayd.NewHTTPServer(cfg.Server.Listen, sup.Handler())}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", gatewayd.MetricsHandler())
		servers = append(servers, gatewayd.NewHTTPServer(cfg.Metrics.Listen, mux))
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			log.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errCh:
		log.Error("server failed", "error", runErr)
	}

	t := cfg.Timeouts()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), t.StopGraceful+t.StopKill+exitGrace)
	defer stopCancel()
	if _, err := sup.StopForExit(stopCtx); err != nil {
		log.Error("failed to stop gateway", "error", err)
	}
	for _, srv := range servers {
		if err := srv.Shutdown(stopCtx); err != nil {
			_ = srv.Close()
		}
	}
	return runErr
}
