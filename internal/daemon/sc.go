package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// sc manages a Windows service through sc.exe. Installation is delegated to
// the workspace's PowerShell script.
type sc struct {
	opts Options
}

func newSC(opts Options) *sc { return &sc{opts: opts} }

func (w *sc) installScript() string {
	return filepath.Join(w.opts.WorkspaceRoot, "ops", "windows", "install-gateway-service.ps1")
}

func (w *sc) run(ctx context.Context, args ...string) (Output, error) {
	return w.opts.Runner.Run(ctx, "sc", args...)
}

func parseSCRunning(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "state") && strings.Contains(lower, "running")
}

func parseSCEnabled(out string) bool {
	lower := strings.ToLower(out)
	return strings.Contains(lower, "start_type") &&
		(strings.Contains(lower, "auto_start") || strings.Contains(lower, "auto start"))
}

func (w *sc) Status(ctx context.Context) (Status, error) {
	query, qerr := w.run(ctx, "query", w.opts.Service)
	config, _ := w.run(ctx, "qc", w.opts.Service)

	hint := fmt.Sprintf("PowerShell: Get-WinEvent -LogName Application | Where-Object {$_.ProviderName -like '*%s*'} -MaxEvents 50",
		w.opts.Service)
	st := Status{
		Platform:     "windows",
		Supported:    true,
		Enabled:      parseSCEnabled(config.Stdout),
		Running:      parseSCRunning(query.Stdout),
		ServiceLabel: w.opts.Service,
		ServicePath:  w.installScript(),
		LogHint:      hint,
		LastError:    lastError(query, qerr),
	}
	if st.Enabled {
		st.Message = "Windows service is installed."
	} else {
		st.Message = "Windows service is not installed."
	}
	return st, nil
}

func (w *sc) SetEnabled(ctx context.Context, enabled bool) (Status, error) {
	if !enabled {
		_, _ = w.run(ctx, "stop", w.opts.Service)
		_, _ = w.run(ctx, "delete", w.opts.Service)
		return w.Status(ctx)
	}

	script := w.installScript()
	if !fileExists(script) {
		return Status{}, fmt.Errorf("windows install script not found at %s", script)
	}
	out, err := w.opts.Runner.Run(ctx, "powershell", "-NoProfile", "-ExecutionPolicy", "Bypass", "-File", script)
	if err := check("windows service install script", out, err); err != nil {
		return Status{}, fmt.Errorf("%w (admin rights may be required)", err)
	}
	return w.Status(ctx)
}

func (w *sc) Start(ctx context.Context) (Status, error) {
	out, err := w.run(ctx, "start", w.opts.Service)
	if err := check("sc start", out, err); err != nil {
		return Status{}, err
	}
	return w.Status(ctx)
}

func (w *sc) Stop(ctx context.Context) (Status, error) {
	out, err := w.run(ctx, "stop", w.opts.Service)
	if err := check("sc stop", out, err); err != nil {
		return Status{}, err
	}
	return w.Status(ctx)
}

func (w *sc) Restart(ctx context.Context) (Status, error) {
	_, _ = w.run(ctx, "stop", w.opts.Service)
	return w.Start(ctx)
}
