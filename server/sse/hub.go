// Package sse implements a Server-Sent Events hub for task status updates.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/K-Arthur/script-generator/events"
)

// client represents a single SSE connection. An empty taskID receives
// every event.
type client struct {
	ch     chan []byte
	taskID string
}

// Hub manages SSE client connections and broadcasts events.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	logger  *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a Hub ready to accept connections.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Close ends every open stream and makes new ones return at once. Server
// shutdown waits for connections to go idle, which a stream never does.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Handle broadcasts ev. It has the events.Handler signature so the hub can
// subscribe to a bus.
func (h *Hub) Handle(_ context.Context, ev *events.Event) error {
	h.Broadcast(ev)
	return nil
}

// Broadcast sends an event to all interested clients. Slow clients miss
// events rather than block the publisher.
func (h *Hub) Broadcast(ev *events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("hub broadcast marshal", slog.Any("err", err))
		return
	}
	msg := encode(ev.Type, data)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.taskID != "" && c.taskID != ev.TaskID {
			continue
		}
		select {
		case c.ch <- msg:
		default:
			h.logger.Debug("sse client slow, event dropped", slog.String("task_id", ev.TaskID))
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeSSE handles an SSE connection request. The optional task_id query
// parameter restricts the stream to one task.
func (h *Hub) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	c := &client{ch: make(chan []byte, 64), taskID: r.URL.Query().Get("task_id")}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()

	fmt.Fprint(w, "event: connected\ndata: {}\n\n") //nolint:errcheck
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case data := <-c.ch:
			if _, err := w.Write(data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// encode formats one SSE frame. JSON from encoding/json never contains raw
// newlines, so a single data line suffices.
func encode(typ events.Type, data []byte) []byte {
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", typ, data)
}
