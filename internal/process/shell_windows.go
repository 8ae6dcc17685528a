//go:build windows

package process

import "os/exec"

// getShellCommand runs a command line through cmd.exe.
func getShellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("cmd", "/c", script)
}

// getTrueCommand is used when no command is configured.
func getTrueCommand() *exec.Cmd {
	return exec.Command("cmd", "/c", "rem")
}
