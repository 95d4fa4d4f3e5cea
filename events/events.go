// Package events carries task lifecycle notifications to in-process
// subscribers and, optionally, to NATS.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of lifecycle event.
type Type string

const (
	TypeSubmitted Type = "task.submitted" // task accepted, status processing
	TypeCompleted Type = "task.completed" // script and report recorded
	TypeFailed    Type = "task.failed"    // error recorded
)

// Event is a task status change. It never carries script text.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates an event with a fresh ID and the current time.
func New(typ Type, taskID, status string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      typ,
		TaskID:    taskID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

// Handler processes a published event.
type Handler func(ctx context.Context, ev *Event) error

// Publisher accepts lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, ev *Event) error
}

// Bus fans events out to subscribers and keeps a bounded history.
type Bus interface {
	Publisher

	// Subscribe registers a handler for events of the given types, or all
	// events when none are given. Returns an unsubscribe function.
	Subscribe(handler Handler, types ...Type) (unsubscribe func())

	// History returns up to limit recent events, oldest first.
	History(limit int) []*Event
}

// Discard is a Publisher that drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, *Event) error { return nil }
