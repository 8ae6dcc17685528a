package daemon

import (
	"context"
	"strings"
	"sync"
	"testing"
)

// scriptedRunner answers commands from a table keyed by the joined command
// line. Unknown commands succeed with empty output.
type scriptedRunner struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]Output
	errs      map[string]error
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{responses: map[string]Output{}, errs: map[string]error{}}
}

func (r *scriptedRunner) on(cmd string, out Output) *scriptedRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[cmd] = out
	return r
}

func (r *scriptedRunner) fail(cmd string, err error) *scriptedRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs[cmd] = err
	return r
}

func (r *scriptedRunner) Run(_ context.Context, name string, args ...string) (Output, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, key)
	return r.responses[key], r.errs[key]
}

func (r *scriptedRunner) history() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *scriptedRunner) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func testOptions(t *testing.T, r Runner) Options {
	t.Helper()
	return Options{
		WorkspaceRoot: t.TempDir(),
		Pnpm:          "/opt/homebrew/bin/pnpm",
		Home:          t.TempDir(),
		UID:           501,
		Runner:        r,
	}
}
