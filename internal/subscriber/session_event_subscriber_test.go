package subscriber

import (
	"context"
	"sync"
	"testing"

	"github.com/specbuilder/backend/internal/eventbus"
	"github.com/specbuilder/backend/internal/service/orchestrator"
)

type fakeScheduler struct {
	mu        sync.Mutex
	fns       map[string]func()
	schedules int
	cancels   []string
}

func (f *fakeScheduler) Schedule(key string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fns == nil {
		f.fns = make(map[string]func())
	}
	f.fns[key] = fn
	f.schedules++
}

func (f *fakeScheduler) Cancel(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, key)
	_, ok := f.fns[key]
	delete(f.fns, key)
	return ok
}

func (f *fakeScheduler) fire(key string) {
	f.mu.Lock()
	fn := f.fns[key]
	delete(f.fns, key)
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fakeQueue struct {
	jobs      []*orchestrator.Job
	cancelled []string
}

func (f *fakeQueue) Enqueue(job *orchestrator.Job) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) CancelSession(sessionID string) bool {
	f.cancelled = append(f.cancelled, sessionID)
	return false
}

func newTestSubscriber() (*SessionEventSubscriber, *fakeScheduler, *fakeQueue, *eventbus.SessionEventBus) {
	sched := &fakeScheduler{}
	queue := &fakeQueue{}
	sub := NewSessionEventSubscriber(sched, queue, 0)
	bus := eventbus.NewSessionEventBus()
	sub.Register(bus)
	return sub, sched, queue, bus
}

func TestMessageAddedSchedulesRegeneration(t *testing.T) {
	_, sched, queue, bus := newTestSubscriber()
	ctx := context.Background()

	if err := eventbus.Emit(ctx, bus, eventbus.SessionEvent{Type: eventbus.SessionEventMessageAdded, SessionID: "s1", MessageCount: 2, Revision: 2}); err != nil {
		t.Fatalf("emit error: %v", err)
	}
	if sched.schedules != 1 {
		t.Fatalf("expected 1 schedule, got %d", sched.schedules)
	}

	sched.fire("s1")
	if len(queue.jobs) != 1 || queue.jobs[0].SessionID != "s1" || queue.jobs[0].Force {
		t.Fatalf("unexpected jobs: %+v", queue.jobs)
	}
}

func TestMessageAddedSkipsUnchangedRevision(t *testing.T) {
	_, sched, _, bus := newTestSubscriber()
	ctx := context.Background()

	for _, rev := range []int64{1, 1, 2} {
		if err := eventbus.Emit(ctx, bus, eventbus.SessionEvent{Type: eventbus.SessionEventMessageAdded, SessionID: "s1", Revision: rev}); err != nil {
			t.Fatalf("emit error: %v", err)
		}
	}
	if sched.schedules != 2 {
		t.Fatalf("expected 2 schedules, got %d", sched.schedules)
	}
}

func TestResetCancelsPendingAndRunning(t *testing.T) {
	_, sched, queue, bus := newTestSubscriber()
	ctx := context.Background()

	_ = eventbus.Emit(ctx, bus, eventbus.SessionEvent{Type: eventbus.SessionEventMessageAdded, SessionID: "s1", MessageCount: 2, Revision: 2})
	if err := eventbus.Emit(ctx, bus, eventbus.SessionEvent{Type: eventbus.SessionEventReset, SessionID: "s1"}); err != nil {
		t.Fatalf("emit error: %v", err)
	}

	if len(sched.cancels) != 1 || sched.cancels[0] != "s1" {
		t.Fatalf("expected pending schedule to be cancelled: %v", sched.cancels)
	}
	if len(queue.cancelled) != 1 || queue.cancelled[0] != "s1" {
		t.Fatalf("expected running job to be cancelled: %v", queue.cancelled)
	}

	// 重置后相同版本的消息需要重新调度
	_ = eventbus.Emit(ctx, bus, eventbus.SessionEvent{Type: eventbus.SessionEventMessageAdded, SessionID: "s1", MessageCount: 2, Revision: 2})
	if sched.schedules != 2 {
		t.Fatalf("expected reschedule after reset, got %d", sched.schedules)
	}
}

func TestMessageAddedRequiresSessionID(t *testing.T) {
	_, _, _, bus := newTestSubscriber()
	if err := eventbus.Emit(context.Background(), bus, eventbus.SessionEvent{Type: eventbus.SessionEventMessageAdded}); err == nil {
		t.Fatalf("expected error for empty session id")
	}
}

func TestMessageEditedCancelsRunningAndReschedules(t *testing.T) {
	_, sched, queue, bus := newTestSubscriber()
	ctx := context.Background()

	_ = eventbus.Emit(ctx, bus, eventbus.SessionEvent{Type: eventbus.SessionEventMessageAdded, SessionID: "s1", MessageCount: 2, Revision: 2})
	if err := eventbus.Emit(ctx, bus, eventbus.SessionEvent{Type: eventbus.SessionEventMessageEdited, SessionID: "s1", MessageCount: 1, Revision: 3}); err != nil {
		t.Fatalf("emit error: %v", err)
	}
	if len(queue.cancelled) != 1 || queue.cancelled[0] != "s1" {
		t.Fatalf("expected running job to be cancelled: %v", queue.cancelled)
	}
	if sched.schedules != 2 {
		t.Fatalf("expected edit to reschedule, got %d", sched.schedules)
	}

	// 重新生成的回复使条数回到 2，但版本已变化
	_ = eventbus.Emit(ctx, bus, eventbus.SessionEvent{Type: eventbus.SessionEventMessageAdded, SessionID: "s1", MessageCount: 2, Revision: 4})
	if sched.schedules != 3 {
		t.Fatalf("expected schedule for the re-run reply, got %d", sched.schedules)
	}
}
