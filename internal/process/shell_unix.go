//go:build !windows

package process

import "os/exec"

// getShellCommand runs a command line through /bin/sh.
func getShellCommand(script string) *exec.Cmd {
	// #nosec G204
	return exec.Command("/bin/sh", "-c", script)
}

// getTrueCommand is used when no command is configured.
func getTrueCommand() *exec.Cmd {
	return exec.Command("/bin/true")
}
