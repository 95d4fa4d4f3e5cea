package task

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewPruner_Invalid(t *testing.T) {
	s := NewMemoryStore()
	if _, err := NewPruner(s, 0, "@every 1m", nil); err == nil {
		t.Error("expected error for zero ttl")
	}
	if _, err := NewPruner(s, time.Hour, "not a schedule", nil); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

func TestPruner_RunOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	old := New("old", Request{Content: "x"}, epoch)
	recent := New("recent", Request{Content: "x"}, epoch)
	for _, tk := range []*Task{old, recent} {
		if err := s.Insert(ctx, tk); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	_ = s.Finish(ctx, old.Completed("s", nil, epoch))
	_ = s.Finish(ctx, recent.Completed("s", nil, epoch.Add(23*time.Hour)))

	p, err := NewPruner(s, 24*time.Hour, "@every 10m", nil)
	if err != nil {
		t.Fatalf("NewPruner: %v", err)
	}
	p.now = func() time.Time { return epoch.Add(30 * time.Hour) }

	n, err := p.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Errorf("RunOnce removed %d, want 1", n)
	}
	if _, err := s.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Error("old task should be pruned")
	}
	if _, err := s.Get(ctx, "recent"); err != nil {
		t.Error("recent task should be kept")
	}
}

func TestPruner_StartStop(t *testing.T) {
	p, err := NewPruner(NewMemoryStore(), time.Hour, "@every 1h", nil)
	if err != nil {
		t.Fatalf("NewPruner: %v", err)
	}
	p.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Stop(ctx)
	if ctx.Err() != nil {
		t.Error("Stop did not return before the deadline")
	}
}
