// Package orchestrator drives each script request through the quality-gated
// generation loop: chunk, generate, validate, improve at most once, and
// record a single terminal result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/K-Arthur/script-generator/chunker"
	"github.com/K-Arthur/script-generator/events"
	"github.com/K-Arthur/script-generator/generation"
	"github.com/K-Arthur/script-generator/task"
	"github.com/K-Arthur/script-generator/validation"
)

// ErrClosed is returned by Submit after Shutdown has begun.
var ErrClosed = errors.New("orchestrator is shutting down")

const finishAttempts = 3

var (
	errCanceled = errors.New("canceled")
	errShutdown = errors.New("server shutting down")
)

// Generator drafts and revises scripts. *generation.Client implements it.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (string, error)
	Improve(ctx context.Context, script string, report *validation.Report) (string, error)
}

// Validator scores scripts. *validation.Validator implements it.
type Validator interface {
	Validate(script, templateName string) *validation.Report
}

// Observer receives task lifecycle measurements.
type Observer interface {
	TaskSubmitted()
	TaskFinished(status string, elapsed time.Duration)
	ImprovementRound()
}

// Orchestrator owns the task state machine. It is safe for concurrent use.
type Orchestrator struct {
	store     task.Store
	gen       Generator
	validator Validator
	chunker   *chunker.Chunker
	events    events.Publisher
	observer  Observer
	timeout   time.Duration
	logger    *slog.Logger

	now           func() time.Time
	newID         func() string
	finishBackoff time.Duration

	mu      sync.Mutex
	handles map[string]*handle
	closed  bool
	wg      sync.WaitGroup
}

// handle tracks one in-flight task.
type handle struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithChunker sets the pre-processing chunker.
func WithChunker(c *chunker.Chunker) Option {
	return func(o *Orchestrator) { o.chunker = c }
}

// WithEvents sets the lifecycle event publisher.
func WithEvents(p events.Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.events = p
		}
	}
}

// WithObserver sets the metrics observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithTaskTimeout bounds the backend calls of each task. Zero disables it.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// New creates an Orchestrator.
func New(store task.Store, gen Generator, validator Validator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		gen:       gen,
		validator: validator,
		chunker:   chunker.NewDefault(),
		events:    events.Discard,
		logger:    slog.Default(),
		now:       time.Now,
		newID:     uuid.NewString,
		handles:   make(map[string]*handle),

		finishBackoff: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit records a new processing task and starts its background run.
// It returns as soon as the task is stored.
func (o *Orchestrator) Submit(ctx context.Context, req task.Request) (*task.Task, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, &validation.InputError{Field: "content", Message: "must not be empty"}
	}

	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	t := task.New(o.newID(), req, o.now())
	if err := o.store.Insert(ctx, t); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	runCtx, cancel := context.WithCancelCause(context.Background())
	h := &handle{cancel: cancel, done: make(chan struct{})}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		cancel(errShutdown)
		// Shutdown began while the insert was in flight.
		if err := o.store.Finish(context.WithoutCancel(ctx), t.Failed(errShutdown.Error(), o.now())); err != nil {
			o.logger.Error("record task result failed",
				slog.String("task_id", t.ID),
				slog.Any("err", err))
		}
		return nil, ErrClosed
	}
	o.handles[t.ID] = h
	o.wg.Add(1)
	o.mu.Unlock()

	if o.observer != nil {
		o.observer.TaskSubmitted()
	}
	o.publish(events.New(events.TypeSubmitted, t.ID, string(t.Status)))
	o.logger.Info("task submitted",
		slog.String("task_id", t.ID),
		slog.String("template", req.TemplateName))

	go o.run(runCtx, t, h)

	return t.Clone(), nil
}

// Get returns the current snapshot of a task.
func (o *Orchestrator) Get(ctx context.Context, id string) (*task.Task, error) {
	return o.store.Get(ctx, id)
}

// List returns tasks matching the filter.
func (o *Orchestrator) List(ctx context.Context, filter task.Filter) ([]*task.Task, error) {
	return o.store.List(ctx, filter)
}

// Cancel stops an in-flight task, which then finishes as failed. It reports
// whether a running task with that ID was found.
func (o *Orchestrator) Cancel(id string) bool {
	o.mu.Lock()
	h, ok := o.handles[id]
	o.mu.Unlock()
	if ok {
		h.cancel(errCanceled)
	}
	return ok
}

// Wait blocks until the task is terminal or ctx is done, then returns the
// stored record.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*task.Task, error) {
	o.mu.Lock()
	h, ok := o.handles[id]
	o.mu.Unlock()
	if ok {
		select {
		case <-h.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.store.Get(ctx, id)
}

// Running returns the number of in-flight tasks.
func (o *Orchestrator) Running() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.handles)
}

// Shutdown stops accepting tasks, cancels those in flight, and waits for
// them to record their terminal state or for ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	for _, h := range o.handles {
		h.cancel(errShutdown)
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

func (o *Orchestrator) run(ctx context.Context, t *task.Task, h *handle) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		delete(o.handles, t.ID)
		o.mu.Unlock()
		h.cancel(nil)
		close(h.done)
	}()

	start := o.now()
	final := o.process(ctx, t)

	// The terminal write must land even when the run was canceled.
	if err := o.finish(context.WithoutCancel(ctx), final); err != nil {
		o.logger.Error("record task result failed",
			slog.String("task_id", t.ID),
			slog.Any("err", err))
		ev := events.New(events.TypeFailed, t.ID, string(task.StatusFailed))
		ev.Error = fmt.Sprintf("record result: %v", err)
		o.publish(ev)
		return
	}

	elapsed := o.now().Sub(start)
	if o.observer != nil {
		o.observer.TaskFinished(string(final.Status), elapsed)
	}

	typ := events.TypeCompleted
	if final.Status == task.StatusFailed {
		typ = events.TypeFailed
	}
	ev := events.New(typ, t.ID, string(final.Status))
	ev.Error = final.Error
	o.publish(ev)

	o.logger.Info("task finished",
		slog.String("task_id", t.ID),
		slog.String("status", string(final.Status)),
		slog.Duration("elapsed", elapsed))
}

// process runs the generation loop and returns the terminal record. It
// never returns a processing task.
func (o *Orchestrator) process(ctx context.Context, t *task.Task) *task.Task {
	req := t.Request
	log := o.logger.With(slog.String("task_id", t.ID))

	if o.chunker != nil {
		n := 0
		for range o.chunker.All(req.Content) {
			n++
		}
		log.Debug("content chunked", slog.Int("chunks", n))
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	script, err := o.gen.Generate(ctx, generation.Request{
		Content:       req.Content,
		TemplateName:  req.TemplateName,
		Concept:       req.HighlightedConcept,
		PreviousTopic: req.PreviousTopic,
	})
	if err != nil {
		return o.fail(ctx, t, "generate", err)
	}

	report := o.validator.Validate(script, req.TemplateName)
	if report.NeedsImprovement() {
		log.Info("script needs improvement",
			slog.Any("sections", report.FailingSections()))
		if o.observer != nil {
			o.observer.ImprovementRound()
		}

		improved, err := o.gen.Improve(ctx, script, report)
		if err != nil {
			return o.fail(ctx, t, "improve", err)
		}
		// The second report is final whether or not it passes.
		script = improved
		report = o.validator.Validate(script, req.TemplateName)
	}

	return t.Completed(script, report, o.now())
}

// finish stores the terminal record, retrying transient store errors.
func (o *Orchestrator) finish(ctx context.Context, final *task.Task) error {
	var err error
	for attempt := 1; attempt <= finishAttempts; attempt++ {
		if err = o.store.Finish(ctx, final); err == nil || errors.Is(err, task.ErrTerminal) {
			return err
		}
		if attempt < finishAttempts {
			o.logger.Warn("record task result retrying",
				slog.String("task_id", final.ID),
				slog.Int("attempt", attempt),
				slog.Any("err", err))
			time.Sleep(time.Duration(attempt) * o.finishBackoff)
		}
	}
	return err
}

func (o *Orchestrator) fail(ctx context.Context, t *task.Task, step string, err error) *task.Task {
	msg := failureMessage(ctx, err, o.timeout)
	o.logger.Warn("task failed",
		slog.String("task_id", t.ID),
		slog.String("step", step),
		slog.Any("err", err))
	return t.Failed(msg, o.now())
}

// failureMessage maps a step error to the message stored on the task.
func failureMessage(ctx context.Context, err error, timeout time.Duration) string {
	switch cause := context.Cause(ctx); {
	case errors.Is(cause, errCanceled), errors.Is(cause, errShutdown):
		return cause.Error()
	case errors.Is(cause, context.DeadlineExceeded):
		return fmt.Sprintf("timed out after %s", timeout)
	}
	return err.Error()
}

func (o *Orchestrator) publish(ev *events.Event) {
	if err := o.events.Publish(context.Background(), ev); err != nil {
		o.logger.Warn("publish event failed",
			slog.String("task_id", ev.TaskID),
			slog.String("type", string(ev.Type)),
			slog.Any("err", err))
	}
}
