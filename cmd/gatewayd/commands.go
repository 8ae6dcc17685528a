package main

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/loykin/gatewayd/internal/config"
	"github.com/loykin/gatewayd/internal/daemon"
	"github.com/loykin/gatewayd/pkg/client"
)

type daemonOp int

const (
	daemonStatus daemonOp = iota
	daemonEnable
	daemonDisable
	daemonStart
	daemonStop
	daemonRestart
)

type command struct {
	flags *GlobalFlags
	out   io.Writer

	// newController builds the local service controller; tests replace it.
	newController func() (daemon.Controller, error)
}

func newCommand(flags *GlobalFlags, out io.Writer) *command {
	c := &command{flags: flags, out: out}
	c.newController = c.localController
	return c
}

func (c *command) api() *client.Client {
	return client.New(client.Config{BaseURL: c.flags.APIUrl, Timeout: c.flags.APITimeout})
}

// reachable fails fast with a hint when no supervisor answers.
func (c *command) reachable(ctx context.Context) (*client.Client, error) {
	api := c.api()
	if !api.IsReachable(ctx) {
		return nil, fmt.Errorf("supervisor not reachable at %s - start it first with 'gatewayd serve'", c.flags.APIUrl)
	}
	return api, nil
}

func (c *command) Status(ctx context.Context, f StatusFlags) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	st, err := api.Status(ctx)
	if err != nil {
		return err
	}
	if f.JSON {
		printJSON(c.out, st)
		return nil
	}
	printStatus(c.out, st)
	return nil
}

func (c *command) lifecycle(ctx context.Context, op func(*client.Client, context.Context) (client.Status, error)) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	st, err := op(api, ctx)
	if err != nil {
		return err
	}
	printStatus(c.out, st)
	return nil
}

func (c *command) Start(ctx context.Context) error   { return c.lifecycle(ctx, (*client.Client).Start) }
func (c *command) Stop(ctx context.Context) error    { return c.lifecycle(ctx, (*client.Client).Stop) }
func (c *command) Restart(ctx context.Context) error { return c.lifecycle(ctx, (*client.Client).Restart) }

func (c *command) RedPhone(ctx context.Context, f RedPhoneFlags) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	res, err := api.RedPhone(ctx, f.Reason)
	if err != nil {
		return err
	}
	printRedPhone(c.out, res)
	return nil
}

func (c *command) Health(ctx context.Context) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	h, err := api.Health(ctx)
	if err != nil {
		return err
	}
	printJSON(c.out, h)
	return nil
}

func (c *command) Token(ctx context.Context) error {
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	tok, err := api.SessionToken(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, tok)
	return nil
}

func (c *command) AuditLogs(ctx context.Context, f AuditLogFlags) error {
	if f.Limit <= 0 {
		return fmt.Errorf("--limit must be positive")
	}
	api, err := c.reachable(ctx)
	if err != nil {
		return err
	}
	logs, err := api.AuditLogs(ctx, f.Limit)
	if err != nil {
		return err
	}
	printJSON(c.out, logs)
	return nil
}

// Daemon runs op against the local service controller.
func (c *command) Daemon(ctx context.Context, op daemonOp) error {
	ctl, err := c.newController()
	if err != nil {
		return err
	}
	var st daemon.Status
	switch op {
	case daemonStatus:
		st, err = ctl.Status(ctx)
	case daemonEnable:
		st, err = ctl.SetEnabled(ctx, true)
	case daemonDisable:
		st, err = ctl.SetEnabled(ctx, false)
	case daemonStart:
		st, err = ctl.Start(ctx)
	case daemonStop:
		st, err = ctl.Stop(ctx)
	case daemonRestart:
		st, err = ctl.Restart(ctx)
	default:
		return fmt.Errorf("unknown daemon operation %d", op)
	}
	if err != nil {
		return err
	}
	printDaemonStatus(c.out, st)
	return nil
}

func (c *command) localController() (daemon.Controller, error) {
	cfg, err := config.Load(c.flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	return daemon.New(runtime.GOOS, cfg.DaemonOptions(cfg.WorkspaceRoot())), nil
}
