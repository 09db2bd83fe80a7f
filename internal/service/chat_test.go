package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/specbuilder/backend/internal/model"
	"github.com/specbuilder/backend/internal/prompts"
	"github.com/specbuilder/backend/internal/service/orchestrator"
	"github.com/specbuilder/backend/internal/specdoc"
	"github.com/specbuilder/backend/internal/subscriber"
)

func collect(tokens <-chan string, errs <-chan error) (string, error) {
	var b strings.Builder
	for tok := range tokens {
		b.WriteString(tok)
	}
	return b.String(), <-errs
}

func TestStreamRejectsBlankMessages(t *testing.T) {
	env := newTestEnv(t)

	_, _, err := env.chat.Stream(context.Background(), StreamRequest{
		Messages: []model.ChatMessage{{Role: model.RoleUser, Content: "   "}},
		Phase:    model.PhaseOverview,
		Locale:   specdoc.LocaleEN,
	})
	if !errors.Is(err, ErrNoValidMessages) {
		t.Fatalf("expected ErrNoValidMessages, got %v", err)
	}
	if len(env.model.Calls()) != 0 {
		t.Fatalf("model should not be called")
	}
}

func TestStreamRelaysChunks(t *testing.T) {
	env := newTestEnv(t)
	env.model.Chunks = []string{"Hello", ", ", "world"}

	tokens, errs, err := env.chat.Stream(context.Background(), StreamRequest{
		Messages: []model.ChatMessage{{Role: model.RoleUser, Content: " hi "}, {Role: model.RoleAssistant, Content: ""}},
		Phase:    model.PhaseOverview,
		Locale:   specdoc.LocaleEN,
	})
	if err != nil {
		t.Fatalf("Stream error: %v", err)
	}
	text, err := collect(tokens, errs)
	if err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if text != "Hello, world" {
		t.Fatalf("unexpected text: %q", text)
	}

	calls := env.model.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected one call, got %d", len(calls))
	}
	// 系统提示词 + 一条非空消息
	if len(calls[0]) != 2 || calls[0][1].Content != "hi" {
		t.Fatalf("unexpected model input: %+v", calls[0])
	}
}

func TestReplyStoresAssistantMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, _ := env.sessions.Create(ctx, specdoc.LocaleEN)
	env.model.Chunks = []string{"Project Name: ", "Acme\n", "What problem does it solve?"}

	var emitted []string
	updated, err := env.chat.Reply(ctx, session.ID, "I want to build Acme", func(content string) error {
		emitted = append(emitted, content)
		return nil
	})
	if err != nil {
		t.Fatalf("Reply error: %v", err)
	}
	if len(emitted) != 3 {
		t.Fatalf("expected 3 emitted chunks, got %v", emitted)
	}
	if len(updated.Messages) != 2 || updated.Messages[1].Role != model.RoleAssistant {
		t.Fatalf("unexpected messages: %+v", updated.Messages)
	}
	if updated.Spec.ProjectName != "Acme" {
		t.Fatalf("expected project name to be extracted, got %q", updated.Spec.ProjectName)
	}
	if env.sessions.IsBusy(session.ID) {
		t.Fatalf("busy flag should be released")
	}
}

func TestReplyFailureAppendsErrorMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, _ := env.sessions.Create(ctx, specdoc.LocaleEN)
	env.model.Err = errors.New("upstream unavailable")

	var emitted []string
	updated, err := env.chat.Reply(ctx, session.ID, "hello", func(content string) error {
		emitted = append(emitted, content)
		return nil
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	want := prompts.ErrorMessage(specdoc.LocaleEN)
	if len(emitted) != 1 || emitted[0] != want {
		t.Fatalf("expected error message to be emitted, got %v", emitted)
	}
	last, _ := updated.LastMessage()
	if last.Role != model.RoleAssistant || last.Content != want {
		t.Fatalf("expected inline error message, got %+v", last)
	}
	if env.sessions.IsBusy(session.ID) {
		t.Fatalf("busy flag should be released after failure")
	}
}

func TestReplyWhileBusy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, _ := env.sessions.Create(ctx, specdoc.LocaleEN)

	env.sessions.Acquire(session.ID)
	if _, err := env.chat.Reply(ctx, session.ID, "hello", nil); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected ErrSessionBusy, got %v", err)
	}
}

func TestEditAndReplyRerunsTurn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	session, _ := env.sessions.Create(ctx, specdoc.LocaleEN)
	env.model.Chunks = []string{"first answer"}

	if _, err := env.chat.Reply(ctx, session.ID, "first question", nil); err != nil {
		t.Fatalf("Reply error: %v", err)
	}
	current, _ := env.sessions.Get(ctx, session.ID)
	userMsg := current.Messages[0]
	assistantMsg := current.Messages[1]

	if _, err := env.chat.EditAndReply(ctx, session.ID, assistantMsg.ID, "x", nil); !errors.Is(err, ErrNotUserMessage) {
		t.Fatalf("expected ErrNotUserMessage, got %v", err)
	}

	env.model.Chunks = []string{"second answer"}
	updated, err := env.chat.EditAndReply(ctx, session.ID, userMsg.ID, "edited question", nil)
	if err != nil {
		t.Fatalf("EditAndReply error: %v", err)
	}
	if len(updated.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(updated.Messages))
	}
	if updated.Messages[0].Content != "edited question" || updated.Messages[1].Content != "second answer" {
		t.Fatalf("unexpected messages: %+v", updated.Messages)
	}
}

type countingScheduler struct {
	mu        sync.Mutex
	schedules int
}

func (c *countingScheduler) Schedule(key string, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schedules++
}

func (c *countingScheduler) Cancel(key string) bool { return false }

func (c *countingScheduler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schedules
}

type cancelRecorder struct {
	mu        sync.Mutex
	cancelled []string
}

func (r *cancelRecorder) Enqueue(job *orchestrator.Job) error { return nil }

func (r *cancelRecorder) CancelSession(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, sessionID)
	return true
}

func TestEditAndReplySchedulesRegeneration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sched := &countingScheduler{}
	queue := &cancelRecorder{}
	subscriber.NewSessionEventSubscriber(sched, queue, 0).Register(env.bus)

	session, _ := env.sessions.Create(ctx, specdoc.LocaleEN)
	env.model.Chunks = []string{"What should we call it?"}
	if _, err := env.chat.Reply(ctx, session.ID, "build Acme", nil); err != nil {
		t.Fatalf("Reply error: %v", err)
	}
	before := sched.count()
	current, _ := env.sessions.Get(ctx, session.ID)

	env.model.Chunks = []string{"Got it."}
	updated, err := env.chat.EditAndReply(ctx, session.ID, current.Messages[0].ID, "build Acme Parcel", nil)
	if err != nil {
		t.Fatalf("EditAndReply error: %v", err)
	}
	if len(updated.Messages) != len(current.Messages) {
		t.Fatalf("expected message count to return to %d, got %d", len(current.Messages), len(updated.Messages))
	}
	if after := sched.count(); after <= before {
		t.Fatalf("editing a message should schedule regeneration: before=%d after=%d", before, after)
	}
	if len(queue.cancelled) != 1 || queue.cancelled[0] != session.ID {
		t.Fatalf("expected running regeneration to be cancelled: %v", queue.cancelled)
	}
	if updated.Revision <= current.Revision {
		t.Fatalf("expected revision to advance: %d -> %d", current.Revision, updated.Revision)
	}
}
