package task

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps tasks in process memory. Tasks are stored and returned
// as copies so callers can never mutate the table directly.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task)}
}

func (s *MemoryStore) Insert(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("insert %s: %w", t.ID, ErrExists)
	}
	s.tasks[t.ID] = t.Clone()
	s.order = append(s.order, t.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) Finish(_ context.Context, t *Task) error {
	if err := checkFinish(t); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tasks[t.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status.Terminal() {
		return fmt.Errorf("finish %s: %w", t.ID, ErrTerminal)
	}
	s.tasks[t.ID] = t.Clone()
	return nil
}

func (s *MemoryStore) List(_ context.Context, filter Filter) ([]*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Task
	for _, id := range s.order {
		t := s.tasks[id]
		if !filter.match(t) {
			continue
		}
		out = append(out, t.Clone())
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.order[:0]
	removed := 0
	for _, id := range s.order {
		t := s.tasks[id]
		if t.Status.Terminal() && t.UpdatedAt.Before(before) {
			delete(s.tasks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return removed, nil
}

func (s *MemoryStore) Close() error { return nil }
