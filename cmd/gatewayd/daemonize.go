package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/loykin/gatewayd/internal/pidfile"
)

// daemonize re-executes the current command line without --daemonize in a
// detached session and exits the parent.
func daemonize(pidFile string, logFile string) error {
	if pidFile != "" {
		if pid, alive, _ := pidfile.Alive(pidFile); alive {
			return fmt.Errorf("gatewayd: %w (pid %d, %s)", pidfile.ErrRunning, pid, pidFile)
		}
	}
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	// #nosec G204
	cmd := exec.Command(executable, backgroundArgs(os.Args[1:], pidFile)...)
	configureDaemonAttrs(cmd)
	cmd.Stdin = nil

	if logFile != "" {
		// #nosec G304
		logF, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer func() { _ = logF.Close() }()
		cmd.Stdout = logF
		cmd.Stderr = logF
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start background process: %w", err)
	}

	fmt.Printf("gatewayd started in background with PID %d\n", cmd.Process.Pid)
	os.Exit(0)
	return nil
}

// backgroundArgs drops --daemonize and --logfile and re-adds --pidfile so the
// child writes its own PID.
func backgroundArgs(args []string, pidFile string) []string {
	var out []string
	skipNext := false
	for _, arg := range args {
		if skipNext {
			skipNext = false
			continue
		}
		switch arg {
		case "--daemonize", "--daemonize=true":
			continue
		case "--pidfile", "--logfile":
			skipNext = true
			continue
		}
		if hasFlagValue(arg, "--pidfile") || hasFlagValue(arg, "--logfile") {
			continue
		}
		out = append(out, arg)
	}
	if pidFile != "" {
		out = append(out, "--pidfile", pidFile)
	}
	return out
}

func hasFlagValue(arg, flag string) bool {
	return len(arg) > len(flag) && arg[:len(flag)+1] == flag+"="
}
