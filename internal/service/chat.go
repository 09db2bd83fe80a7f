package service

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/klog/v2"

	"github.com/specbuilder/backend/internal/model"
	"github.com/specbuilder/backend/internal/pkg/llm"
	"github.com/specbuilder/backend/internal/prompts"
	"github.com/specbuilder/backend/internal/specdoc"
)

// EmitFunc 把文本片段写给客户端，返回错误时停止继续写入
type EmitFunc func(content string) error

type ChatService struct {
	models   llm.ChatModelProvider
	sessions *SessionService
}

func NewChatService(models llm.ChatModelProvider, sessions *SessionService) *ChatService {
	return &ChatService{models: models, sessions: sessions}
}

// StreamRequest 无会话的对话请求，状态由调用方维护
type StreamRequest struct {
	Messages []model.ChatMessage
	Phase    model.Phase
	Spec     model.ProjectSpec
	Locale   specdoc.Locale
	Settings model.Settings
}

// Stream 校验消息后开始流式输出
// 返回的 tokens 关闭后从 errs 读取最终错误
func (s *ChatService) Stream(ctx context.Context, req StreamRequest) (<-chan string, <-chan error, error) {
	history := validMessages(req.Messages)
	if len(history) == 0 {
		return nil, nil, ErrNoValidMessages
	}
	cm, err := s.models.ForSettings(ctx, req.Settings)
	if err != nil {
		return nil, nil, fmt.Errorf("get chat model failed: %w", err)
	}
	msgs, err := prompts.ChatMessages(ctx, req.Locale, req.Phase, req.Spec, history)
	if err != nil {
		return nil, nil, err
	}
	tokens, errs := llm.StreamText(ctx, cm, msgs)
	return tokens, errs, nil
}

// Reply 追加用户消息并执行一轮对话
func (s *ChatService) Reply(ctx context.Context, sessionID, content string, emit EmitFunc) (*model.Session, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrNoValidMessages
	}
	if err := s.sessions.Acquire(sessionID); err != nil {
		return nil, err
	}
	defer s.sessions.Release(sessionID)

	session, _, err := s.sessions.AddMessage(ctx, sessionID, model.RoleUser, content)
	if err != nil {
		return nil, err
	}
	return s.runTurn(ctx, session, content, emit)
}

// EditAndReply 编辑一条用户消息，删除其后的消息并重新执行这一轮
func (s *ChatService) EditAndReply(ctx context.Context, sessionID, messageID, content string, emit EmitFunc) (*model.Session, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrNoValidMessages
	}
	if err := s.sessions.Acquire(sessionID); err != nil {
		return nil, err
	}
	defer s.sessions.Release(sessionID)

	current, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	idx := current.MessageIndex(messageID)
	if idx < 0 {
		return nil, ErrMessageNotFound
	}
	if current.Messages[idx].Role != model.RoleUser {
		return nil, ErrNotUserMessage
	}

	session, err := s.sessions.EditMessage(ctx, sessionID, messageID, content)
	if err != nil {
		return nil, err
	}
	return s.runTurn(ctx, session, content, emit)
}

// runTurn 流式生成助手回复；失败时追加通用错误消息，不重试
// 流结束后的持久化不受客户端断开影响
func (s *ChatService) runTurn(ctx context.Context, session *model.Session, userText string, emit EmitFunc) (*model.Session, error) {
	locale := s.sessions.LocaleOf(session)
	persistCtx := context.WithoutCancel(ctx)

	reply, streamErr := s.streamReply(ctx, session, locale, emit)
	if streamErr != nil {
		klog.Errorf("[ChatService] 对话失败: sessionID=%s, error=%v", session.ID, streamErr)
		errMsg := prompts.ErrorMessage(locale)
		updated, _, err := s.sessions.AddMessage(persistCtx, session.ID, model.RoleAssistant, errMsg)
		if err != nil {
			return nil, err
		}
		if emit != nil {
			_ = emit(errMsg)
		}
		return updated, fmt.Errorf("chat turn failed: %w", streamErr)
	}

	if _, _, err := s.sessions.AddMessage(persistCtx, session.ID, model.RoleAssistant, reply); err != nil {
		return nil, err
	}
	return s.sessions.ProcessAssistantReply(persistCtx, session.ID, userText, reply)
}

func (s *ChatService) streamReply(ctx context.Context, session *model.Session, locale specdoc.Locale, emit EmitFunc) (string, error) {
	history := session.ChatHistory()
	if len(history) == 0 {
		return "", ErrNoValidMessages
	}
	cm, err := s.models.ForSettings(ctx, session.Settings)
	if err != nil {
		return "", err
	}
	msgs, err := prompts.ChatMessages(ctx, locale, session.CurrentPhase, session.Spec, history)
	if err != nil {
		return "", err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tokens, errs := llm.StreamText(streamCtx, cm, msgs)
	var b strings.Builder
	var emitErr error
	for token := range tokens {
		b.WriteString(token)
		if emit == nil || emitErr != nil {
			continue
		}
		if emitErr = emit(token); emitErr != nil {
			klog.V(6).Infof("[ChatService] 客户端写入失败，停止生成: sessionID=%s, error=%v", session.ID, emitErr)
			cancel()
		}
	}
	if err := <-errs; err != nil {
		return "", err
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("empty reply")
	}
	return b.String(), nil
}
