package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Output is what a service-manager command printed and how it exited.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes service-manager utilities. A non-zero exit is reported in
// Output.ExitCode with a nil error; err is reserved for commands that could
// not be run at all.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner runs commands with os/exec, bounding each by Timeout.
type ExecRunner struct {
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) && ctx.Err() == nil {
			out.ExitCode = ee.ExitCode()
			return out, nil
		}
		if ctx.Err() != nil {
			return out, fmt.Errorf("%s timed out: %w", name, ctx.Err())
		}
		return out, err
	}
	return out, nil
}

// CommandError reports a service-manager command that failed.
type CommandError struct {
	Op       string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	switch {
	case e.Err != nil:
		return e.Op + " failed: " + e.Err.Error()
	case e.Stderr != "":
		return e.Op + " failed: " + e.Stderr
	default:
		return fmt.Sprintf("%s failed: exit status %d", e.Op, e.ExitCode)
	}
}

func (e *CommandError) Unwrap() error { return e.Err }

// check turns a failed run into a *CommandError.
func check(op string, out Output, err error) error {
	if err != nil {
		return &CommandError{Op: op, Err: err}
	}
	if out.ExitCode != 0 {
		return &CommandError{Op: op, ExitCode: out.ExitCode, Stderr: strings.TrimSpace(out.Stderr)}
	}
	return nil
}

// lastError picks the text a status query reports when a probe failed.
func lastError(out Output, err error) string {
	if err != nil {
		return err.Error()
	}
	return strings.TrimSpace(out.Stderr)
}
