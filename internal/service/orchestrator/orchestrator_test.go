package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeExecutor struct {
	err   error
	calls int32
	block bool
}

func (f *fakeExecutor) ExecuteRegeneration(ctx context.Context, sessionID string, force bool) error {
	atomic.AddInt32(&f.calls, 1)
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func newTestOrchestrator(t *testing.T, executor Executor) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(1, executor)
	if err != nil {
		t.Fatalf("NewOrchestrator error: %v", err)
	}
	o.retryTicker.Stop()
	o.backoff = time.Millisecond
	t.Cleanup(func() { o.pool.Release() })
	return o
}

func waitCalls(executor *fakeExecutor, want int32, within time.Duration) int32 {
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&executor.calls) >= want {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	return atomic.LoadInt32(&executor.calls)
}

func TestTryDispatchMaxRetries(t *testing.T) {
	executor := &fakeExecutor{}
	o := newTestOrchestrator(t, executor)

	job := &Job{SessionID: "s1", RetryCount: 1, MaxRetries: 1, Timeout: 10 * time.Millisecond}
	o.tryDispatch(job)

	if got := o.retryQueue.Len(); got != 0 {
		t.Fatalf("retry queue should be empty, got %d", got)
	}
	if atomic.LoadInt32(&executor.calls) != 0 {
		t.Fatalf("executor should not be called, got %d", executor.calls)
	}
	if job.RetryCount != 1 {
		t.Fatalf("retry count should remain 1, got %d", job.RetryCount)
	}
}

func TestTryDispatchExecutes(t *testing.T) {
	executor := &fakeExecutor{}
	o := newTestOrchestrator(t, executor)

	o.tryDispatch(&Job{SessionID: "s2", MaxRetries: 1, Timeout: time.Second})

	if got := waitCalls(executor, 1, 200*time.Millisecond); got != 1 {
		t.Fatalf("executor should be called once, got %d", got)
	}
}

func TestExecuteJobRetriesTransientErrors(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("upstream 500")}
	o := newTestOrchestrator(t, executor)

	o.executeJob(&Job{SessionID: "s3", MaxRetries: 3, Timeout: time.Second})

	if got := atomic.LoadInt32(&executor.calls); got != 3 {
		t.Fatalf("executor should be called 3 times, got %d", got)
	}
}

func TestExecuteJobStopsOnPermanentError(t *testing.T) {
	executor := &fakeExecutor{err: Permanent(errors.New("no messages"))}
	o := newTestOrchestrator(t, executor)

	o.executeJob(&Job{SessionID: "s4", MaxRetries: 3, Timeout: time.Second})

	if got := atomic.LoadInt32(&executor.calls); got != 1 {
		t.Fatalf("executor should be called once, got %d", got)
	}
}

func TestExecuteJobStopsOnTimeout(t *testing.T) {
	executor := &fakeExecutor{err: context.DeadlineExceeded}
	o := newTestOrchestrator(t, executor)
	o.backoff = time.Second

	start := time.Now()
	o.executeJob(&Job{SessionID: "s5", MaxRetries: 3, Timeout: 50 * time.Millisecond})
	elapsed := time.Since(start)

	if atomic.LoadInt32(&executor.calls) != 1 {
		t.Fatalf("executor should be called once, got %d", executor.calls)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("executeJob took too long: %v", elapsed)
	}
}

func TestCancelSession(t *testing.T) {
	executor := &fakeExecutor{block: true}
	o := newTestOrchestrator(t, executor)

	done := make(chan struct{})
	go func() {
		o.executeJob(&Job{SessionID: "s6", MaxRetries: 1, Timeout: 5 * time.Second})
		close(done)
	}()

	waitCalls(executor, 1, 200*time.Millisecond)
	deadline := time.Now().Add(200 * time.Millisecond)
	cancelled := false
	for !cancelled && time.Now().Before(deadline) {
		cancelled = o.CancelSession("s6")
		if !cancelled {
			time.Sleep(5 * time.Millisecond)
		}
	}
	if !cancelled {
		t.Fatalf("expected running job to be cancelled")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("job did not stop after cancel")
	}
	if o.CancelSession("s6") {
		t.Fatalf("job should be unregistered after cancel")
	}
}

func TestEnqueueAfterStop(t *testing.T) {
	o, err := NewOrchestrator(1, &fakeExecutor{})
	if err != nil {
		t.Fatalf("NewOrchestrator error: %v", err)
	}
	o.Start()
	o.Stop()

	if err := o.Enqueue(NewJob("s7", false, 0)); !errors.Is(err, ErrOrchestratorStopped) {
		t.Fatalf("expected ErrOrchestratorStopped, got %v", err)
	}
}
