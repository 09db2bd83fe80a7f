package eventbus

import (
	"context"
	"errors"
	"testing"
)

func TestBusPublishBroadcast(t *testing.T) {
	bus := NewSessionEventBus()
	calledA := false
	calledB := false

	bus.Subscribe(SessionEventMessageAdded, func(ctx context.Context, event SessionEvent) error {
		calledA = true
		return nil
	})
	bus.Subscribe(SessionEventMessageAdded, func(ctx context.Context, event SessionEvent) error {
		calledB = true
		return nil
	})

	if err := bus.Publish(context.Background(), SessionEventMessageAdded, SessionEvent{Type: SessionEventMessageAdded}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !calledA || !calledB {
		t.Fatalf("expected handlers to be called")
	}
}

func TestBusDispatchByType(t *testing.T) {
	bus := NewSessionEventBus()
	called := false
	bus.Subscribe(SessionEventReset, func(ctx context.Context, event SessionEvent) error {
		called = true
		return nil
	})

	if err := Emit(context.Background(), bus, SessionEvent{Type: SessionEventSpecUpdated, SessionID: "s1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("handler for another type should not be called")
	}

	if err := Emit(context.Background(), bus, SessionEvent{Type: SessionEventReset, SessionID: "s1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("expected reset handler to be called")
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewSessionEventBus()
	called := false
	unsubscribe := bus.Subscribe(SessionEventMessageAdded, func(ctx context.Context, event SessionEvent) error {
		called = true
		return nil
	})
	unsubscribe()

	if err := bus.Publish(context.Background(), SessionEventMessageAdded, SessionEvent{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatalf("expected handler to be unsubscribed")
	}
}

func TestBusPublishJoinErrors(t *testing.T) {
	bus := NewSessionEventBus()
	bus.Subscribe(SessionEventMessageAdded, func(ctx context.Context, event SessionEvent) error {
		return errors.New("err-a")
	})
	bus.Subscribe(SessionEventMessageAdded, func(ctx context.Context, event SessionEvent) error {
		return errors.New("err-b")
	})

	if err := bus.Publish(context.Background(), SessionEventMessageAdded, SessionEvent{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEmitNilBus(t *testing.T) {
	if err := Emit(context.Background(), nil, SessionEvent{Type: SessionEventReset}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
