// Package pidfile records the running supervisor so a second `serve` can
// refuse to start. The file holds the PID on the first line and, when the
// platform reports it, the process start time as JSON on the second; a
// mismatching start time means the PID was reused.
package pidfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrRunning is returned by Acquire when a live process owns the file.
var ErrRunning = errors.New("already running")

type meta struct {
	StartUnix int64 `json:"start_unix"`
}

// Write records pid and its start time at path.
func Write(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	content := strconv.Itoa(pid) + "\n"
	if start := procStartUnix(pid); start > 0 {
		b, _ := json.Marshal(meta{StartUnix: start})
		content += string(b) + "\n"
	}
	// #nosec G306
	return os.WriteFile(path, []byte(content), 0o644)
}

// Read returns the PID and recorded start time (0 when absent).
func Read(path string) (int, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid pid in %s: %w", path, err)
	}
	var m meta
	if len(lines) > 1 {
		_ = json.Unmarshal([]byte(strings.TrimSpace(lines[1])), &m)
	}
	return pid, m.StartUnix, nil
}

// Alive reports the PID in path and whether that process is still the one
// that wrote it. A missing file is not an error.
func Alive(path string) (int, bool, error) {
	pid, start, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if start > 0 {
		if cur := procStartUnix(pid); cur > 0 && cur != start {
			return pid, false, nil
		}
	}
	return pid, pidAlive(pid), nil
}

// Acquire writes the current PID to path unless another live process
// already owns it. Stale and unreadable files are replaced.
func Acquire(path string) error {
	pid, alive, err := Alive(path)
	if err == nil && alive && pid != os.Getpid() {
		return fmt.Errorf("%w (pid %d, %s)", ErrRunning, pid, path)
	}
	return Write(path, os.Getpid())
}

// Remove deletes path; a missing file or empty path is fine.
func Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
