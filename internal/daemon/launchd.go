package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/loykin/gatewayd/internal/gateway"
	"github.com/loykin/gatewayd/internal/workspace"
)

// launchd manages a per-user LaunchAgent on macOS.
type launchd struct {
	opts Options
}

func newLaunchd(opts Options) *launchd { return &launchd{opts: opts} }

func (l *launchd) plistPath() string {
	return filepath.Join(l.opts.Home, "Library", "LaunchAgents", l.opts.Label+".plist")
}

func (l *launchd) logDir() string {
	return filepath.Join(l.opts.Home, "Library", "Logs", "MajorClaw")
}

// domain is the gui/<uid> launchctl domain; target adds the label.
func (l *launchd) domain() string { return "gui/" + strconv.Itoa(l.opts.UID) }
func (l *launchd) target() string { return l.domain() + "/" + l.opts.Label }

func (l *launchd) run(ctx context.Context, args ...string) (Output, error) {
	return l.opts.Runner.Run(ctx, "launchctl", args...)
}

func (l *launchd) Status(ctx context.Context) (Status, error) {
	path := l.plistPath()
	st := Status{
		Platform:     "macos",
		Supported:    true,
		Enabled:      fileExists(path),
		ServiceLabel: l.opts.Label,
		ServicePath:  path,
		LogHint:      "$HOME/Library/Logs/MajorClaw/stdout.log",
	}

	out, err := l.run(ctx, "print", l.target())
	switch {
	case err == nil && out.ExitCode == 0:
		lower := strings.ToLower(out.Stdout)
		st.Running = strings.Contains(lower, "state = running") || strings.Contains(lower, "pid =")
		if st.Enabled {
			st.Message = "Always-on launch agent is enabled."
		}
	case err != nil:
		st.LastError = lastError(out, err)
		if st.Enabled {
			st.Message = "Launch agent is enabled but launchctl status could not be read."
		}
	default:
		st.LastError = lastError(out, nil)
		if st.Enabled {
			st.Message = "Launch agent is enabled but not currently running."
		}
	}
	if !st.Enabled {
		st.Message = "Always-on launch agent is disabled."
	}
	return st, nil
}

func (l *launchd) SetEnabled(ctx context.Context, enabled bool) (Status, error) {
	path := l.plistPath()
	if !enabled {
		if fileExists(path) {
			if out, err := l.run(ctx, "bootout", l.domain(), path); check("launchctl bootout", out, err) != nil {
				l.opts.Logger.Debug("bootout during disable failed", "error", lastError(out, err))
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				l.opts.Logger.Debug("failed to remove launch agent plist", "path", path, "error", err)
			}
		}
		return l.Status(ctx)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Status{}, fmt.Errorf("failed to create launch agents directory: %w", err)
	}
	if err := os.MkdirAll(l.logDir(), 0o755); err != nil {
		return Status{}, fmt.Errorf("failed to create logs directory: %w", err)
	}
	body, err := render(plistTemplate, plistData{
		Label:      l.opts.Label,
		Pnpm:       l.opts.Pnpm,
		Package:    workspace.GatewayPackage,
		WorkDir:    l.opts.WorkspaceRoot,
		PortEnv:    gateway.PortEnv,
		Port:       l.opts.Port,
		StdoutPath: filepath.Join(l.logDir(), "stdout.log"),
		StderrPath: filepath.Join(l.logDir(), "stderr.log"),
	})
	if err != nil {
		return Status{}, err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return Status{}, fmt.Errorf("failed to write launch agent plist: %w", err)
	}

	// A stale registration makes bootstrap fail, so clear it first.
	_, _ = l.run(ctx, "bootout", l.domain(), path)
	out, err := l.run(ctx, "bootstrap", l.domain(), path)
	if err := check("launchctl bootstrap", out, err); err != nil {
		return Status{}, err
	}
	_, _ = l.run(ctx, "kickstart", "-k", l.target())
	return l.Status(ctx)
}

func (l *launchd) Start(ctx context.Context) (Status, error) {
	if out, err := l.run(ctx, "print", l.target()); err != nil || out.ExitCode != 0 {
		out, err := l.run(ctx, "bootstrap", l.domain(), l.plistPath())
		if err := check("launchctl bootstrap", out, err); err != nil {
			return Status{}, err
		}
	}
	out, err := l.run(ctx, "kickstart", "-k", l.target())
	if err := check("launchctl kickstart", out, err); err != nil {
		return Status{}, err
	}
	return l.Status(ctx)
}

func (l *launchd) Stop(ctx context.Context) (Status, error) {
	out, err := l.run(ctx, "bootout", l.target())
	if err := check("launchctl bootout", out, err); err != nil {
		return Status{}, err
	}
	return l.Status(ctx)
}

func (l *launchd) Restart(ctx context.Context) (Status, error) {
	out, err := l.run(ctx, "kickstart", "-k", l.target())
	if err := check("launchctl kickstart", out, err); err != nil {
		return Status{}, err
	}
	return l.Status(ctx)
}
