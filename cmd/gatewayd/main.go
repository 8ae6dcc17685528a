package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/gatewayd/pkg/client"
)

func main() {
	root := buildRoot(os.Stdout)
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot wires every subcommand around a shared command value.
func buildRoot(out io.Writer) *cobra.Command {
	globalFlags := &GlobalFlags{}
	statusFlags := &StatusFlags{}
	redPhoneFlags := &RedPhoneFlags{}
	auditFlags := &AuditLogFlags{}
	serveFlags := &ServeFlags{}

	gwCommand := newCommand(globalFlags, out)

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags, serveFlags),
		createStatusCommand(gwCommand, statusFlags),
		createLifecycleCommand("start", "Start the gateway", gwCommand.Start),
		createLifecycleCommand("stop", "Stop the gateway (graceful, then kill)", gwCommand.Stop),
		createLifecycleCommand("restart", "Stop and start the gateway", gwCommand.Restart),
		createRedPhoneCommand(gwCommand, redPhoneFlags),
		createHealthCommand(gwCommand),
		createTokenCommand(gwCommand),
		createAuditLogsCommand(gwCommand, auditFlags),
		createDaemonCommand(gwCommand),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "gatewayd",
		Short: "MajorClaw gateway supervisor",
		Long: `gatewayd keeps the MajorClaw gateway running: it spawns the gateway,
restarts it when it dies, stops it gracefully, and manages the OS service
definition that launches it at login.

Examples:
  gatewayd serve --config gatewayd.toml   # Run the supervisor
  gatewayd status
  gatewayd red-phone --reason "runaway agent"
  gatewayd daemon enable`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", client.DefaultBaseURL, "control API URL of a running supervisor")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 30*time.Second, "request timeout")
	return root
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the supervisor and its control API",
		Long: `Run the supervisor in the foreground. The gateway is started right away
unless supervisor.auto_start is false, and is stopped on SIGINT/SIGTERM.

Examples:
  gatewayd serve
  gatewayd serve gatewayd.toml
  gatewayd serve --daemonize --pidfile /tmp/gatewayd.pid --logfile /tmp/gatewayd.out`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globalFlags.ConfigPath
			if len(args) > 0 {
				path = args[0]
			}
			if serveFlags.Daemonize {
				return daemonize(serveFlags.PidFile, serveFlags.LogFile)
			}
			return runServe(cmd.Context(), path, serveFlags.PidFile)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run in the background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the supervisor PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect background output to this file")
	return cmd
}

func createStatusCommand(gwCommand *command, flags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the gateway is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			return gwCommand.Status(cmd.Context(), *flags)
		},
	}
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "print the raw JSON response")
	return cmd
}

func createLifecycleCommand(use, short string, run func(ctx context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func createRedPhoneCommand(gwCommand *command, flags *RedPhoneFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "red-phone",
		Short: "Emergency stop: audit the reason and shut the gateway down now",
		Long: `Records the reason in the gateway's audit trail, disables the watchdog and
stops the gateway on the short emergency timeouts. The gateway stays down
until "gatewayd start".

Examples:
  gatewayd red-phone --reason "agent loop draining credits"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return gwCommand.RedPhone(cmd.Context(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Reason, "reason", "", "why the gateway is being stopped (required)")
	if err := cmd.MarkFlagRequired("reason"); err != nil {
		panic(err)
	}
	return cmd
}

func createHealthCommand(gwCommand *command) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show the gateway's own health report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return gwCommand.Health(cmd.Context())
		},
	}
}

func createTokenCommand(gwCommand *command) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the session token shared with the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return gwCommand.Token(cmd.Context())
		},
	}
}

func createAuditLogsCommand(gwCommand *command, flags *AuditLogFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit-logs",
		Short: "List the gateway's audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			return gwCommand.AuditLogs(cmd.Context(), *flags)
		},
	}
	cmd.Flags().IntVar(&flags.Limit, "limit", 100, "maximum number of entries")
	return cmd
}

// createDaemonCommand groups the OS service definition commands. These run
// the platform controller in-process and need no running supervisor.
func createDaemonCommand(gwCommand *command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the OS service that launches the gateway at login",
	}
	sub := func(use, short string, op daemonOp) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(c *cobra.Command, args []string) error {
				return gwCommand.Daemon(c.Context(), op)
			},
		}
	}
	cmd.AddCommand(
		sub("status", "Show the service definition status", daemonStatus),
		sub("enable", "Install and enable the service", daemonEnable),
		sub("disable", "Disable and remove the service", daemonDisable),
		sub("start", "Start the service", daemonStart),
		sub("stop", "Stop the service", daemonStop),
		sub("restart", "Restart the service", daemonRestart),
	)
	return cmd
}
