package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// ErrNotStarted is returned by probes on a handle whose command never started.
var ErrNotStarted = errors.New("process not started")

// Process is a running gateway child. One goroutine owns cmd.Wait and
// closes done when the child is reaped; every other observer selects on done,
// so probes never race with os/exec internals.
type Process struct {
	name      string
	cmd       *exec.Cmd
	startedAt time.Time
	done      chan struct{}
	exitErr   error
	closers   []io.Closer
}

// Start launches the spec in its own process group with stdout/stderr routed
// to the configured rotating log files (or the null device).
func Start(spec Spec) (*Process, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	cmd.Env = append(os.Environ(), spec.Env...)
	configureSysProcAttr(cmd)

	p := &Process{name: spec.Name, cmd: cmd, done: make(chan struct{})}
	if err := p.attachOutput(spec); err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		p.closeOutput()
		return nil, err
	}
	p.startedAt = time.Now()
	go p.wait()
	return p, nil
}

func (p *Process) attachOutput(spec Spec) error {
	outW, errW, err := spec.Log.ProcessWriters(spec.Name)
	if err != nil {
		return fmt.Errorf("open gateway logs: %w", err)
	}
	if spec.Log.File.Dir != "" {
		_ = os.MkdirAll(spec.Log.File.Dir, 0o750)
	}
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	p.closers = append(p.closers, null)
	p.cmd.Stdin = null
	p.cmd.Stdout, p.cmd.Stderr = null, null
	if outW != nil {
		p.cmd.Stdout = outW
		p.closers = append(p.closers, outW)
	}
	if errW != nil {
		p.cmd.Stderr = errW
		p.closers = append(p.closers, errW)
	}
	return nil
}

func (p *Process) closeOutput() {
	for _, c := range p.closers {
		_ = c.Close()
	}
	p.closers = nil
}

func (p *Process) wait() {
	p.exitErr = p.cmd.Wait()
	p.closeOutput()
	close(p.done)
}

// Name returns the spec name the process was started with.
func (p *Process) Name() string { return p.name }

// PID returns the operating system process id.
func (p *Process) PID() int {
	if p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// StartedAt returns when the child was spawned.
func (p *Process) StartedAt() time.Time { return p.startedAt }

// TryWait reports whether the child has exited without blocking.
func (p *Process) TryWait() (bool, error) {
	if p.cmd == nil || p.cmd.Process == nil {
		return false, ErrNotStarted
	}
	select {
	case <-p.done:
		return true, nil
	default:
		return false, nil
	}
}

// Kill forcibly terminates the child's process group. Killing an already
// reaped child is a no-op.
func (p *Process) Kill() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return ErrNotStarted
	}
	select {
	case <-p.done:
		return nil
	default:
	}
	if err := killGroup(p.cmd.Process.Pid); err != nil {
		if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			return kerr
		}
	}
	return nil
}

// Wait blocks until the child is reaped and returns its exit error.
func (p *Process) Wait() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return ErrNotStarted
	}
	<-p.done
	return p.exitErr
}

// Done is closed once the child has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }
