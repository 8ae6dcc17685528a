package process

import (
	"os/exec"
	"strings"

	"github.com/loykin/gatewayd/internal/logger"
)

// Spec describes how the gateway child is launched.
type Spec struct {
	Name    string        `json:"name"`
	Command string        `json:"command"`  // executable, or a shell line when Args is empty
	Args    []string      `json:"args"`     // explicit argv; disables shell parsing of Command
	WorkDir string        `json:"work_dir"` // working directory, usually the workspace root
	Env     []string      `json:"env"`      // KEY=VALUE pairs appended to the inherited environment
	Log     logger.Config `json:"log"`
}

// BuildCommand returns an unstarted command for the spec.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if len(s.Args) > 0 {
		// #nosec G204
		return exec.Command(cmdStr, s.Args...)
	}
	if cmdStr == "" {
		return getTrueCommand()
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		return getShellCommand(cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}
