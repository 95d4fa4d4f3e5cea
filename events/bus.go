package events

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// InMemoryBus is a thread-safe in-process event bus.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers []handlerEntry
	nextID   int
	history  []*Event
	maxHist  int
}

type handlerEntry struct {
	id      int
	types   []Type
	handler Handler
}

func (e handlerEntry) wants(t Type) bool {
	return len(e.types) == 0 || slices.Contains(e.types, t)
}

// NewInMemoryBus creates an InMemoryBus with a 1000-event history cap.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{maxHist: 1000}
}

// Publish records ev and delivers it to every matching subscriber.
// Handlers run synchronously, outside the lock.
func (b *InMemoryBus) Publish(ctx context.Context, ev *Event) error {
	b.mu.Lock()
	b.history = append(b.history, ev)
	if len(b.history) > b.maxHist {
		b.history = b.history[len(b.history)-b.maxHist:]
	}

	var targets []Handler
	for _, e := range b.handlers {
		if e.wants(ev.Type) {
			targets = append(targets, e.handler)
		}
	}
	b.mu.Unlock()

	var errs []error
	for _, h := range targets {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish: %d handler error(s): %v", len(errs), errs[0])
	}
	return nil
}

// Subscribe registers a handler. The returned function unsubscribes it.
func (b *InMemoryBus) Subscribe(handler Handler, types ...Type) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers = append(b.handlers, handlerEntry{id: id, types: types, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers = slices.DeleteFunc(b.handlers, func(e handlerEntry) bool { return e.id == id })
	}
}

// History returns the most recent limit events in chronological order.
// A non-positive limit returns the whole history.
func (b *InMemoryBus) History(limit int) []*Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := 0
	if limit > 0 && len(b.history) > limit {
		start = len(b.history) - limit
	}
	return slices.Clone(b.history[start:])
}
