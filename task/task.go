// Package task defines the script generation task model and the task table
// that holds it.
package task

import (
	"context"
	"errors"
	"time"

	"github.com/K-Arthur/script-generator/validation"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusProcessing || s.Terminal()
}

var (
	// ErrNotFound is returned when no task has the requested ID.
	ErrNotFound = errors.New("task not found")

	// ErrExists is returned when inserting a task whose ID is already taken.
	ErrExists = errors.New("task already exists")

	// ErrTerminal is returned when finishing a task that already finished.
	ErrTerminal = errors.New("task already finished")

	// ErrNotTerminal is returned when finishing a task with a non-terminal record.
	ErrNotTerminal = errors.New("finish requires a terminal status")
)

// Request is an accepted script generation request. It is immutable once
// the task is created.
type Request struct {
	Content            string `json:"content"`
	TemplateName       string `json:"template_name,omitempty"`
	HighlightedConcept string `json:"highlighted_concept,omitempty"`
	PreviousTopic      string `json:"previous_topic,omitempty"`
}

// Task is one generation request and its outcome. Once terminal, exactly one
// of {Script and Validation} or {Error} is set.
type Task struct {
	ID         string             `json:"id"`
	Status     Status             `json:"status"`
	Request    Request            `json:"request"`
	Script     string             `json:"script,omitempty"`
	Validation *validation.Report `json:"validation,omitempty"`
	Error      string             `json:"error,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// New returns a processing task for req.
func New(id string, req Request, now time.Time) *Task {
	now = now.UTC()
	return &Task{
		ID:        id,
		Status:    StatusProcessing,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Completed returns the terminal record for a successful run of t.
func (t *Task) Completed(script string, report *validation.Report, now time.Time) *Task {
	out := t.base(now)
	out.Status = StatusCompleted
	out.Script = script
	out.Validation = report
	return out
}

// Failed returns the terminal record for a failed run of t. No partial
// script or report is carried over.
func (t *Task) Failed(msg string, now time.Time) *Task {
	out := t.base(now)
	out.Status = StatusFailed
	out.Error = msg
	return out
}

func (t *Task) base(now time.Time) *Task {
	return &Task{
		ID:        t.ID,
		Request:   t.Request,
		CreatedAt: t.CreatedAt,
		UpdatedAt: now.UTC(),
	}
}

// Clone returns a copy of t that shares only the immutable report.
func (t *Task) Clone() *Task {
	c := *t
	return &c
}

// Store is the task table. Implementations must make Finish an atomic
// replacement so concurrent readers never observe a partially updated task.
type Store interface {
	// Insert persists a new task. Returns ErrExists if the ID is taken.
	Insert(ctx context.Context, t *Task) error

	// Get retrieves a task by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, id string) (*Task, error)

	// Finish replaces a processing task with its terminal record.
	// Returns ErrTerminal if the stored task already finished.
	Finish(ctx context.Context, t *Task) error

	// List returns tasks matching the filter, oldest first.
	List(ctx context.Context, filter Filter) ([]*Task, error)

	// Prune deletes terminal tasks last updated before the cutoff and
	// returns how many were removed. Processing tasks are never pruned.
	Prune(ctx context.Context, before time.Time) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// Filter controls which tasks are returned by List.
type Filter struct {
	Status *Status `json:"status,omitempty"`
	Limit  int     `json:"limit,omitempty"`
}

func (f Filter) match(t *Task) bool {
	return f.Status == nil || t.Status == *f.Status
}

func checkFinish(t *Task) error {
	if !t.Status.Terminal() {
		return ErrNotTerminal
	}
	return nil
}
