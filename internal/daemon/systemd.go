package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loykin/gatewayd/internal/gateway"
	"github.com/loykin/gatewayd/internal/workspace"
)

const lingerHint = "ensure user services are available; loginctl enable-linger may be required"

// systemd manages a user unit on Linux.
type systemd struct {
	opts Options
}

func newSystemd(opts Options) *systemd { return &systemd{opts: opts} }

func (s *systemd) unitPath() string {
	return filepath.Join(s.opts.Home, ".config", "systemd", "user", s.opts.Unit+".service")
}

func (s *systemd) systemctl(ctx context.Context, args ...string) (Output, error) {
	return s.opts.Runner.Run(ctx, "systemctl", append([]string{"--user"}, args...)...)
}

// firstLine returns the lower-cased first line of systemctl's answer.
func firstLine(out string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	return strings.ToLower(strings.TrimSpace(line))
}

func (s *systemd) Status(ctx context.Context) (Status, error) {
	path := s.unitPath()
	st := Status{
		Platform:     "linux",
		Supported:    true,
		ServiceLabel: s.opts.Unit,
		ServicePath:  path,
		LogHint:      fmt.Sprintf("journalctl --user -u %s -f", s.opts.Unit),
	}

	if fileExists(path) {
		out, err := s.systemctl(ctx, "is-enabled", s.opts.Unit)
		st.Enabled = err == nil && (out.ExitCode == 0 || firstLine(out.Stdout) == "enabled")
	}

	out, err := s.systemctl(ctx, "is-active", s.opts.Unit)
	st.Running = err == nil && (out.ExitCode == 0 || firstLine(out.Stdout) == "active")
	st.LastError = lastError(out, err)

	if st.Enabled {
		st.Message = "Systemd user service is enabled."
	} else {
		st.Message = "Systemd user service is disabled."
	}
	return st, nil
}

func (s *systemd) SetEnabled(ctx context.Context, enabled bool) (Status, error) {
	path := s.unitPath()
	if !enabled {
		_, _ = s.systemctl(ctx, "disable", "--now", s.opts.Unit)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.opts.Logger.Debug("failed to remove systemd unit", "path", path, "error", err)
		}
		_, _ = s.systemctl(ctx, "daemon-reload")
		return s.Status(ctx)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Status{}, fmt.Errorf("failed to create systemd user directory: %w", err)
	}
	execStart := s.opts.Pnpm
	if !filepath.IsAbs(execStart) {
		execStart = "/usr/bin/env " + execStart
	}
	body, err := render(unitTemplate, unitData{
		WorkDir:   s.opts.WorkspaceRoot,
		ExecStart: execStart,
		Package:   workspace.GatewayPackage,
		PortEnv:   gateway.PortEnv,
		Port:      s.opts.Port,
	})
	if err != nil {
		return Status{}, err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return Status{}, fmt.Errorf("failed to write systemd unit file: %w", err)
	}

	_, _ = s.systemctl(ctx, "daemon-reload")
	out, err := s.systemctl(ctx, "enable", "--now", s.opts.Unit)
	if err := check("systemctl --user enable --now", out, err); err != nil {
		return Status{}, fmt.Errorf("%w (%s)", err, lingerHint)
	}
	return s.Status(ctx)
}

func (s *systemd) Start(ctx context.Context) (Status, error)   { return s.do(ctx, "start") }
func (s *systemd) Stop(ctx context.Context) (Status, error)    { return s.do(ctx, "stop") }
func (s *systemd) Restart(ctx context.Context) (Status, error) { return s.do(ctx, "restart") }

func (s *systemd) do(ctx context.Context, verb string) (Status, error) {
	out, err := s.systemctl(ctx, verb, s.opts.Unit)
	if err := check("systemctl --user "+verb, out, err); err != nil {
		return Status{}, err
	}
	return s.Status(ctx)
}
