package manager

import (
	"errors"
	"sync"
	"time"
)

// ErrRecordPoisoned is returned by every operation once a panic escaped
// while the process record lock was held. The record state can no longer be
// trusted and the supervisor must be restarted.
var ErrRecordPoisoned = errors.New("gateway process record lock poisoned")

// Handle is a spawned gateway child. *process.Process satisfies it.
type Handle interface {
	PID() int
	StartedAt() time.Time
	// TryWait reports whether the child has exited without blocking.
	TryWait() (bool, error)
	Kill() error
	Wait() error
}

// record holds at most one live child handle.
type record struct {
	mu       sync.Mutex
	h        Handle
	poisoned bool
}

// with runs fn with exclusive access to the slot. fn must not block on
// network I/O or sleep.
func (r *record) with(fn func(slot *Handle) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.poisoned {
		return ErrRecordPoisoned
	}
	completed := false
	defer func() {
		if !completed {
			r.poisoned = true
		}
	}()
	err := fn(&r.h)
	completed = true
	return err
}
