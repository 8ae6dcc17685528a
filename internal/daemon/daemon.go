// Package daemon manages the OS-native service definition that keeps the
// gateway running while no supervisor is attached. It is independent of
// the in-process child handled by the manager package.
package daemon

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/loykin/gatewayd/internal/gateway"
	"github.com/loykin/gatewayd/internal/metrics"
	"github.com/loykin/gatewayd/internal/workspace"
)

const (
	DefaultLabel          = "com.jonnycatx.major-claw.gateway"
	DefaultUnit           = "major-claw-gateway"
	DefaultService        = "MajorClawGateway"
	DefaultCommandTimeout = 20 * time.Second

	UnsupportedMessage = "Always-on service toggle is not supported on this platform."
)

// Status is a fresh reading of the service definition and its state.
type Status struct {
	Platform     string `json:"platform"`
	Supported    bool   `json:"supported"`
	Enabled      bool   `json:"enabled"`
	Running      bool   `json:"running"`
	ServiceLabel string `json:"serviceLabel"`
	ServicePath  string `json:"servicePath"`
	LogHint      string `json:"logHint"`
	LastError    string `json:"lastError,omitempty"`
	Message      string `json:"message"`
}

// Controller is implemented once per service manager.
type Controller interface {
	Status(ctx context.Context) (Status, error)
	SetEnabled(ctx context.Context, enabled bool) (Status, error)
	Start(ctx context.Context) (Status, error)
	Stop(ctx context.Context) (Status, error)
	Restart(ctx context.Context) (Status, error)
}

// Options configures every controller; unset fields use defaults.
type Options struct {
	Label          string
	Unit           string
	Service        string
	CommandTimeout time.Duration
	// Port is exported to the service as MAJORCLAW_GATEWAY_PORT.
	Port           int

	WorkspaceRoot string
	Pnpm          string
	Home          string
	UID           int
	Runner        Runner
	Logger        *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Label == "" {
		o.Label = DefaultLabel
	}
	if o.Unit == "" {
		o.Unit = DefaultUnit
	}
	if o.Service == "" {
		o.Service = DefaultService
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.Port == 0 {
		o.Port = gateway.DefaultPort
	}
	if o.WorkspaceRoot == "" {
		o.WorkspaceRoot = workspace.Root()
	}
	if o.Pnpm == "" {
		o.Pnpm = workspace.ResolvePnpm(o.WorkspaceRoot)
	}
	if o.Home == "" {
		o.Home, _ = os.UserHomeDir()
	}
	if o.UID == 0 {
		o.UID = os.Getuid()
	}
	if o.Runner == nil {
		o.Runner = ExecRunner{Timeout: o.CommandTimeout}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	o.Logger = o.Logger.With("component", "daemon")
	return o
}

// New returns the controller for goos (a runtime.GOOS value).
func New(goos string, opts Options) Controller {
	var c Controller
	switch goos {
	case "darwin":
		c = newLaunchd(opts.withDefaults())
	case "linux":
		c = newSystemd(opts.withDefaults())
	case "windows":
		c = newSC(opts.withDefaults())
	default:
		return unsupported{platform: goos}
	}
	return instrumented{c: c, platform: platformName(goos)}
}

func platformName(goos string) string {
	if goos == "darwin" {
		return "macos"
	}
	return goos
}

// instrumented counts operations per platform and result.
type instrumented struct {
	c        Controller
	platform string
}

func (i instrumented) observe(op string, st Status, err error) (Status, error) {
	metrics.IncDaemonOp(i.platform, op, err)
	return st, err
}

func (i instrumented) Status(ctx context.Context) (Status, error) {
	st, err := i.c.Status(ctx)
	return i.observe("status", st, err)
}

func (i instrumented) SetEnabled(ctx context.Context, enabled bool) (Status, error) {
	op := "disable"
	if enabled {
		op = "enable"
	}
	st, err := i.c.SetEnabled(ctx, enabled)
	return i.observe(op, st, err)
}

func (i instrumented) Start(ctx context.Context) (Status, error) {
	st, err := i.c.Start(ctx)
	return i.observe("start", st, err)
}

func (i instrumented) Stop(ctx context.Context) (Status, error) {
	st, err := i.c.Stop(ctx)
	return i.observe("stop", st, err)
}

func (i instrumented) Restart(ctx context.Context) (Status, error) {
	st, err := i.c.Restart(ctx)
	return i.observe("restart", st, err)
}

// unsupported answers every call with a static status and no error.
type unsupported struct{ platform string }

func (u unsupported) status() Status {
	return Status{Platform: u.platform, Message: UnsupportedMessage}
}

func (u unsupported) Status(context.Context) (Status, error)           { return u.status(), nil }
func (u unsupported) SetEnabled(context.Context, bool) (Status, error) { return u.status(), nil }
func (u unsupported) Start(context.Context) (Status, error)            { return u.status(), nil }
func (u unsupported) Stop(context.Context) (Status, error)             { return u.status(), nil }
func (u unsupported) Restart(context.Context) (Status, error)          { return u.status(), nil }

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}
