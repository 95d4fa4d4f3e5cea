package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestInMemoryBus_Subscribe_Unsubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	var received int32
	unsub := bus.Subscribe(func(_ context.Context, _ *Event) error {
		atomic.AddInt32(&received, 1)
		return nil
	})

	if err := bus.Publish(ctx, New(TypeSubmitted, "t1", "processing")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("received = %d, want 1", received)
	}

	unsub()
	if err := bus.Publish(ctx, New(TypeCompleted, "t1", "completed")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if atomic.LoadInt32(&received) != 1 {
		t.Errorf("received after unsubscribe = %d, want 1", received)
	}
}

func TestInMemoryBus_TypeFilter(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	var got []Type
	bus.Subscribe(func(_ context.Context, ev *Event) error {
		got = append(got, ev.Type)
		return nil
	}, TypeCompleted, TypeFailed)

	for _, typ := range []Type{TypeSubmitted, TypeCompleted, TypeSubmitted, TypeFailed} {
		_ = bus.Publish(ctx, New(typ, "t", "x"))
	}
	if len(got) != 2 || got[0] != TypeCompleted || got[1] != TypeFailed {
		t.Errorf("got %v, want [task.completed task.failed]", got)
	}
}

func TestInMemoryBus_HandlerError(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	var called int32
	bus.Subscribe(func(context.Context, *Event) error { return errors.New("boom") })
	bus.Subscribe(func(context.Context, *Event) error {
		atomic.AddInt32(&called, 1)
		return nil
	})

	if err := bus.Publish(ctx, New(TypeFailed, "t", "failed")); err == nil {
		t.Error("expected handler error to surface")
	}
	if atomic.LoadInt32(&called) != 1 {
		t.Error("a failing handler must not stop delivery to the others")
	}
}

func TestInMemoryBus_History(t *testing.T) {
	bus := NewInMemoryBus()
	bus.maxHist = 3
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		_ = bus.Publish(ctx, New(TypeSubmitted, id, "processing"))
	}

	all := bus.History(0)
	if len(all) != 3 {
		t.Fatalf("History(0) len = %d, want 3", len(all))
	}
	if all[0].TaskID != "b" || all[2].TaskID != "d" {
		t.Errorf("History order = %s..%s, want b..d", all[0].TaskID, all[2].TaskID)
	}

	last := bus.History(1)
	if len(last) != 1 || last[0].TaskID != "d" {
		t.Errorf("History(1) = %v", last)
	}
}

func TestInMemoryBus_ConcurrentPublish(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()

	var received int64
	bus.Subscribe(func(context.Context, *Event) error {
		atomic.AddInt64(&received, 1)
		return nil
	})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				_ = bus.Publish(ctx, New(TypeSubmitted, "t", "processing"))
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt64(&received); n != 200 {
		t.Errorf("received = %d, want 200", n)
	}
}

type fakeNATS struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func TestNATSForwarder_Handle(t *testing.T) {
	fake := &fakeNATS{}
	fwd := newNATSForwarder(fake, "", nil)

	bus := NewInMemoryBus()
	bus.Subscribe(fwd.Handle)

	ev := New(TypeFailed, "t9", "failed")
	ev.Error = "all providers failed"
	if err := bus.Publish(context.Background(), ev); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if len(fake.subjects) != 1 || fake.subjects[0] != "scriptgen.tasks.task.failed" {
		t.Fatalf("subjects = %v", fake.subjects)
	}
	var decoded Event
	if err := json.Unmarshal(fake.payloads[0], &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.TaskID != "t9" || decoded.Error != "all providers failed" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestNATSForwarder_PublishError(t *testing.T) {
	fake := &fakeNATS{err: errors.New("nats: connection closed")}
	fwd := newNATSForwarder(fake, "custom", nil)
	if got := fwd.Subject(TypeCompleted); got != "custom.task.completed" {
		t.Errorf("Subject = %q", got)
	}
	if err := fwd.Handle(context.Background(), New(TypeCompleted, "t", "completed")); err == nil {
		t.Error("expected publish error")
	}
	if err := fwd.Close(); err != nil {
		t.Errorf("Close without connection: %v", err)
	}
}
