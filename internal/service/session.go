package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/specbuilder/backend/config"
	"github.com/specbuilder/backend/internal/eventbus"
	"github.com/specbuilder/backend/internal/extractor"
	"github.com/specbuilder/backend/internal/model"
	"github.com/specbuilder/backend/internal/repository"
	"github.com/specbuilder/backend/internal/service/statemachine"
	"github.com/specbuilder/backend/internal/specdoc"
)

// errUnchanged 用于 update 回调表示无需保存
var errUnchanged = errors.New("unchanged")

// SessionService 会话状态的唯一修改入口
// 同一会话的修改串行执行：加锁、读取快照、修改、整体保存
type SessionService struct {
	cfg      *config.Config
	repo     repository.SessionRepository
	docRepo  repository.DocumentRepository
	bus      *eventbus.SessionEventBus
	locks    sync.Map
	busyMu   sync.Mutex
	busy     map[string]struct{}
	machines map[specdoc.Locale]*statemachine.PhaseStateMachine
}

func NewSessionService(cfg *config.Config, repo repository.SessionRepository, docRepo repository.DocumentRepository, bus *eventbus.SessionEventBus) *SessionService {
	return &SessionService{
		cfg:     cfg,
		repo:    repo,
		docRepo: docRepo,
		bus:     bus,
		busy:    make(map[string]struct{}),
		machines: map[specdoc.Locale]*statemachine.PhaseStateMachine{
			specdoc.LocaleJA: statemachine.NewPhaseStateMachine(specdoc.LocaleJA),
			specdoc.LocaleEN: statemachine.NewPhaseStateMachine(specdoc.LocaleEN),
		},
	}
}

// DefaultLocale 配置中的默认语言
func (s *SessionService) DefaultLocale() specdoc.Locale {
	return specdoc.ParseLocale(s.cfg.Locale.Default, specdoc.LocaleJA)
}

// LocaleOf 会话语言，无效时使用默认语言
func (s *SessionService) LocaleOf(session *model.Session) specdoc.Locale {
	l := specdoc.Locale(session.Locale)
	if l.Valid() {
		return l
	}
	return s.DefaultLocale()
}

func (s *SessionService) machine(locale specdoc.Locale) *statemachine.PhaseStateMachine {
	if m, ok := s.machines[locale]; ok {
		return m
	}
	return s.machines[specdoc.LocaleJA]
}

func (s *SessionService) lock(id string) func() {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// update 在会话锁内读取、修改并保存快照；fn 返回 errUnchanged 时跳过保存
func (s *SessionService) update(ctx context.Context, id string, fn func(session *model.Session) error) (*model.Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(session); err != nil {
		if errors.Is(err, errUnchanged) {
			return session, nil
		}
		return nil, err
	}
	if err := s.repo.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session failed: %w", err)
	}
	return session, nil
}

func (s *SessionService) emit(ctx context.Context, event eventbus.SessionEvent) {
	if err := eventbus.Emit(ctx, s.bus, event); err != nil {
		klog.Errorf("[SessionService] 事件处理失败: type=%s, sessionID=%s, error=%v", event.Type, event.SessionID, err)
	}
}

// Create 新建会话，文档为该语言的初始文档
func (s *SessionService) Create(ctx context.Context, locale specdoc.Locale) (*model.Session, error) {
	if !locale.Valid() {
		locale = s.DefaultLocale()
	}
	session := &model.Session{
		ID:              uuid.NewString(),
		Locale:          string(locale),
		Settings:        model.Settings{Provider: s.cfg.LLM.Provider},
		Spec:            model.NewProjectSpec(),
		Messages:        []model.Message{},
		CurrentPhase:    model.PhaseMin,
		PreviewMarkdown: locale.InitialDocument(),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session failed: %w", err)
	}
	klog.V(6).Infof("[SessionService] 会话已创建: sessionID=%s, locale=%s", session.ID, locale)
	return session, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*model.Session, error) {
	return s.repo.Get(ctx, id)
}

func (s *SessionService) List(ctx context.Context, limit int) ([]model.Session, error) {
	return s.repo.List(ctx, limit)
}

// Delete 删除会话及其文档历史
func (s *SessionService) Delete(ctx context.Context, id string) error {
	unlock := s.lock(id)
	err := s.repo.Delete(ctx, id)
	unlock()
	if err != nil {
		return err
	}
	s.locks.Delete(id)
	if s.docRepo != nil {
		if err := s.docRepo.DeleteBySession(ctx, id); err != nil {
			klog.Errorf("[SessionService] 删除文档历史失败: sessionID=%s, error=%v", id, err)
		}
	}
	s.emit(ctx, eventbus.SessionEvent{Type: eventbus.SessionEventDeleted, SessionID: id})
	return nil
}

// Acquire 标记会话正在处理一轮对话
func (s *SessionService) Acquire(id string) error {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	if _, ok := s.busy[id]; ok {
		return ErrSessionBusy
	}
	s.busy[id] = struct{}{}
	return nil
}

func (s *SessionService) Release(id string) {
	s.busyMu.Lock()
	delete(s.busy, id)
	s.busyMu.Unlock()
}

func (s *SessionService) IsBusy(id string) bool {
	s.busyMu.Lock()
	defer s.busyMu.Unlock()
	_, ok := s.busy[id]
	return ok
}

// AddMessage 追加一条消息
func (s *SessionService) AddMessage(ctx context.Context, id string, role model.Role, content string) (*model.Session, model.Message, error) {
	msg := model.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
	session, err := s.update(ctx, id, func(session *model.Session) error {
		session.Messages = append(session.Messages, msg)
		session.Revision++
		return nil
	})
	if err != nil {
		return nil, model.Message{}, err
	}
	s.emit(ctx, eventbus.SessionEvent{
		Type:         eventbus.SessionEventMessageAdded,
		SessionID:    id,
		MessageCount: len(session.Messages),
		Revision:     session.Revision,
	})
	return session, msg, nil
}

// EditMessage 替换消息内容，并删除其后的全部消息
func (s *SessionService) EditMessage(ctx context.Context, id, messageID, content string) (*model.Session, error) {
	session, err := s.update(ctx, id, func(session *model.Session) error {
		idx := session.MessageIndex(messageID)
		if idx < 0 {
			return ErrMessageNotFound
		}
		session.Messages[idx].Content = content
		session.Messages[idx].Timestamp = time.Now()
		session.Messages = session.Messages[:idx+1]
		session.Revision++
		return nil
	})
	if err != nil {
		return nil, err
	}
	klog.V(6).Infof("[SessionService] 消息已编辑: sessionID=%s, messageID=%s, remaining=%d", id, messageID, len(session.Messages))
	s.emit(ctx, eventbus.SessionEvent{
		Type:         eventbus.SessionEventMessageEdited,
		SessionID:    id,
		MessageCount: len(session.Messages),
		Revision:     session.Revision,
	})
	return session, nil
}

// SettingsPatch 部分更新设置，nil 字段不修改
type SettingsPatch struct {
	Provider      *string
	APIKey        *string
	UseServiceKey *bool
}

func (s *SessionService) UpdateSettings(ctx context.Context, id string, patch SettingsPatch) (*model.Session, error) {
	return s.update(ctx, id, func(session *model.Session) error {
		if patch.Provider != nil {
			session.Settings.Provider = *patch.Provider
		}
		if patch.APIKey != nil {
			session.Settings.APIKey = strings.TrimSpace(*patch.APIKey)
		}
		if patch.UseServiceKey != nil {
			session.Settings.UseServiceKey = *patch.UseServiceKey
		}
		return nil
	})
}

// SetPhase 显式切换阶段，只允许前进一步；目标为当前阶段时不做修改
func (s *SessionService) SetPhase(ctx context.Context, id string, to model.Phase) (*model.Session, error) {
	var from model.Phase
	session, err := s.update(ctx, id, func(session *model.Session) error {
		from = session.CurrentPhase
		if err := s.machine(s.LocaleOf(session)).ValidateTransition(from, to); err != nil {
			return err
		}
		if from == to {
			return errUnchanged
		}
		session.CurrentPhase = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from == to {
		return session, nil
	}
	s.emit(ctx, eventbus.SessionEvent{
		Type:          eventbus.SessionEventPhaseChanged,
		SessionID:     id,
		PreviousPhase: from,
		Phase:         to,
	})
	return session, nil
}

// SetPreviewMarkdown 替换会话文档
// revision 为生成开始时的消息历史版本，不一致说明期间消息被修改，返回 ErrStaleDocument；传 -1 不检查
func (s *SessionService) SetPreviewMarkdown(ctx context.Context, id, markdown string, revision int64) (*model.Session, error) {
	return s.update(ctx, id, func(session *model.Session) error {
		if revision >= 0 && session.Revision != revision {
			return ErrStaleDocument
		}
		if session.PreviewMarkdown == markdown {
			return errUnchanged
		}
		session.PreviewMarkdown = markdown
		return nil
	})
}

// Reset 清空消息，仕様、阶段、文档恢复初始状态；文档历史保留
func (s *SessionService) Reset(ctx context.Context, id string) (*model.Session, error) {
	session, err := s.update(ctx, id, func(session *model.Session) error {
		session.Spec = model.NewProjectSpec()
		session.CurrentPhase = model.PhaseMin
		session.Messages = []model.Message{}
		session.Revision++
		session.PreviewMarkdown = s.LocaleOf(session).InitialDocument()
		return nil
	})
	if err != nil {
		return nil, err
	}
	klog.V(6).Infof("[SessionService] 会话已重置: sessionID=%s", id)
	s.emit(ctx, eventbus.SessionEvent{Type: eventbus.SessionEventReset, SessionID: id})
	return session, nil
}

// ProcessAssistantReply 一轮对话结束后更新阶段与仕様
// 提取使用本轮开始时的阶段；只有阶段或仕様实际变化时才保存
func (s *SessionService) ProcessAssistantReply(ctx context.Context, id, userText, assistantText string) (*model.Session, error) {
	var (
		outcome  statemachine.Outcome
		previous model.Phase
		fields   []string
	)
	session, err := s.update(ctx, id, func(session *model.Session) error {
		locale := s.LocaleOf(session)
		previous = session.CurrentPhase
		outcome = s.machine(locale).Step(previous, userText, assistantText)

		fragment := extractor.Extract(outcome.ExtractPhase, assistantText, locale)
		delta, changed := extractor.Reconcile(fragment, session.Spec)
		if changed {
			extractor.Apply(&session.Spec, delta)
			fields = delta.Fields()
		}

		phaseChanged := outcome.Phase.Valid() && outcome.Phase != previous
		if phaseChanged {
			session.CurrentPhase = outcome.Phase
		}
		if !changed && !phaseChanged {
			return errUnchanged
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	klog.V(6).Infof("[SessionService] 对话处理完成: sessionID=%s, phase=%d->%d, advanced=%t, fields=%v",
		id, previous, session.CurrentPhase, outcome.Advanced, fields)

	if session.CurrentPhase != previous {
		s.emit(ctx, eventbus.SessionEvent{
			Type:          eventbus.SessionEventPhaseChanged,
			SessionID:     id,
			PreviousPhase: previous,
			Phase:         session.CurrentPhase,
		})
	}
	if len(fields) > 0 {
		s.emit(ctx, eventbus.SessionEvent{
			Type:      eventbus.SessionEventSpecUpdated,
			SessionID: id,
			Phase:     session.CurrentPhase,
			Fields:    fields,
		})
	}
	return session, nil
}
