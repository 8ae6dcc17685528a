package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of gateway lifecycle event.
type EventType string

const (
	EventStart    EventType = "start"
	EventExit     EventType = "exit"
	EventStop     EventType = "stop"
	EventKill     EventType = "kill"
	EventRedPhone EventType = "red_phone"
	EventRespawn  EventType = "respawn"
)

// Record carries the details of one lifecycle event. Fields that do not
// apply to an event type are left zero.
type Record struct {
	PID       int           `json:"pid"`
	Reason    string        `json:"reason,omitempty"`
	Actor     string        `json:"actor,omitempty"`
	Escalated bool          `json:"escalated"`
	Audited   bool          `json:"audited"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Record     Record    `json:"record"`
}

// NewEvent stamps a record with a fresh id and the current time.
func NewEvent(t EventType, rec Record) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		OccurredAt: time.Now().UTC(),
		Record:     rec,
	}
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Emitter accepts events without blocking the caller.
type Emitter interface {
	Emit(e Event)
}
