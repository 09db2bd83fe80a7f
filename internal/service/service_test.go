package service

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/specbuilder/backend/config"
	"github.com/specbuilder/backend/internal/eventbus"
	"github.com/specbuilder/backend/internal/model"
	"github.com/specbuilder/backend/internal/pkg/llm/llmtest"
	"github.com/specbuilder/backend/internal/repository"
)

type testEnv struct {
	cfg       *config.Config
	db        *gorm.DB
	bus       *eventbus.SessionEventBus
	model     *llmtest.ChatModel
	provider  *llmtest.Provider
	docRepo   repository.DocumentRepository
	sessions  *SessionService
	chat      *ChatService
	documents *DocumentService
	recorder  *eventRecorder
}

type eventRecorder struct {
	mu     sync.Mutex
	events []eventbus.SessionEvent
}

func (r *eventRecorder) handle(ctx context.Context, event eventbus.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) ofType(t eventbus.SessionEventType) []eventbus.SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []eventbus.SessionEvent
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db error: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db error: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&model.Session{}, &model.DocumentVersion{}); err != nil {
		t.Fatalf("migrate error: %v", err)
	}

	cfg := config.Default()
	cfg.LLM.APIKey = "sk-test"
	cfg.Locale.Default = "en"

	bus := eventbus.NewSessionEventBus()
	recorder := &eventRecorder{}
	for _, typ := range []eventbus.SessionEventType{
		eventbus.SessionEventMessageAdded,
		eventbus.SessionEventMessageEdited,
		eventbus.SessionEventPhaseChanged,
		eventbus.SessionEventSpecUpdated,
		eventbus.SessionEventReset,
		eventbus.SessionEventDocumentUpdated,
		eventbus.SessionEventDeleted,
	} {
		bus.Subscribe(typ, recorder.handle)
	}

	chatModel := &llmtest.ChatModel{}
	provider := &llmtest.Provider{Model: chatModel}
	docRepo := repository.NewDocumentRepository(db)
	sessions := NewSessionService(cfg, repository.NewSessionRepository(db), docRepo, bus)

	return &testEnv{
		cfg:       cfg,
		db:        db,
		bus:       bus,
		model:     chatModel,
		provider:  provider,
		docRepo:   docRepo,
		sessions:  sessions,
		chat:      NewChatService(provider, sessions),
		documents: NewDocumentService(cfg, provider, docRepo, sessions, bus),
		recorder:  recorder,
	}
}
