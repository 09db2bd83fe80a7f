package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"k8s.io/klog/v2"

	"github.com/specbuilder/backend/config"
	"github.com/specbuilder/backend/internal/eventbus"
	"github.com/specbuilder/backend/internal/model"
	"github.com/specbuilder/backend/internal/pkg/llm"
	"github.com/specbuilder/backend/internal/prompts"
	"github.com/specbuilder/backend/internal/repository"
	"github.com/specbuilder/backend/internal/service/orchestrator"
	"github.com/specbuilder/backend/internal/specdoc"
	"github.com/specbuilder/backend/internal/utils"
)

// MinDiffBaseLength 已有文档（去除首尾空白后）达到该字符数时使用差分生成
const MinDiffBaseLength = 100

type DocumentService struct {
	cfg      *config.Config
	models   llm.ChatModelProvider
	docRepo  repository.DocumentRepository
	sessions *SessionService
	bus      *eventbus.SessionEventBus
}

func NewDocumentService(cfg *config.Config, models llm.ChatModelProvider, docRepo repository.DocumentRepository, sessions *SessionService, bus *eventbus.SessionEventBus) *DocumentService {
	return &DocumentService{
		cfg:      cfg,
		models:   models,
		docRepo:  docRepo,
		sessions: sessions,
		bus:      bus,
	}
}

type GenerateRequest struct {
	Messages        []model.ChatMessage
	CurrentMarkdown string
	Locale          specdoc.Locale
	// Force 忽略已有文档，总是全量生成
	Force    bool
	Settings model.Settings
}

type GenerateResult struct {
	Markdown string `json:"markdown"`
	IsDiff   bool   `json:"isDiff"`
}

func (s *DocumentService) minDiffLength() int {
	if s.cfg != nil && s.cfg.Preview.MinDiffLength > 0 {
		return s.cfg.Preview.MinDiffLength
	}
	return MinDiffBaseLength
}

// UseDiff 已有文档足够长时走差分生成
func (s *DocumentService) UseDiff(currentMarkdown string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(currentMarkdown)) >= s.minDiffLength()
}

// Generate 根据对话生成文档
// 模型输出外层的 markdown 代码块会被去掉；全量生成时直接返回，差分生成时把模型输出的变更章节合并到已有文档
func (s *DocumentService) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	messages := validMessages(req.Messages)
	if len(messages) == 0 {
		return nil, ErrNoValidMessages
	}
	locale := req.Locale
	if !locale.Valid() {
		locale = specdoc.LocaleJA
	}

	cm, err := s.models.ForSettings(ctx, req.Settings)
	if err != nil {
		return nil, fmt.Errorf("get chat model failed: %w", err)
	}
	if s.cfg != nil && s.cfg.LLM.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LLM.Timeout)
		defer cancel()
	}

	transcript := prompts.Transcript(messages, locale)
	diff := !req.Force && s.UseDiff(req.CurrentMarkdown)

	if !diff {
		msgs, err := prompts.FullDocumentMessages(ctx, locale, transcript)
		if err != nil {
			return nil, err
		}
		out, err := llm.Generate(ctx, cm, msgs)
		if err != nil {
			return nil, err
		}
		out = utils.ExtractMarkdown(out)
		klog.V(6).Infof("[DocumentService] 全量生成完成: length=%d", len(out))
		return &GenerateResult{Markdown: out, IsDiff: false}, nil
	}

	msgs, err := prompts.DiffDocumentMessages(ctx, locale, req.CurrentMarkdown, transcript)
	if err != nil {
		return nil, err
	}
	out, err := llm.Generate(ctx, cm, msgs)
	if err != nil {
		return nil, err
	}
	out = utils.ExtractMarkdown(out)
	merged := specdoc.MergeMarkdown(req.CurrentMarkdown, out, locale)
	klog.V(6).Infof("[DocumentService] 差分生成完成: diffLength=%d, mergedLength=%d", len(out), len(merged))
	return &GenerateResult{Markdown: merged, IsDiff: true}, nil
}

// Regenerate 用会话当前的对话重新生成文档，保存为新版本并替换会话文档
func (s *DocumentService) Regenerate(ctx context.Context, sessionID string, force bool) (*model.DocumentVersion, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	locale := s.sessions.LocaleOf(session)
	revision := session.Revision
	before := session.PreviewMarkdown

	result, err := s.Generate(ctx, GenerateRequest{
		Messages:        session.ChatHistory(),
		CurrentMarkdown: before,
		Locale:          locale,
		Force:           force,
		Settings:        session.Settings,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.sessions.SetPreviewMarkdown(ctx, sessionID, result.Markdown, revision); err != nil {
		return nil, err
	}

	changes := specdoc.Changes(before, result.Markdown, locale)
	if changes.Empty() {
		klog.V(6).Infof("[DocumentService] 文档无变化，不保存新版本: sessionID=%s", sessionID)
		return s.currentVersion(ctx, sessionID, result)
	}
	version := &model.DocumentVersion{
		SessionID:       sessionID,
		IsDiff:          result.IsDiff,
		Content:         result.Markdown,
		TitleChanged:    changes.TitleChanged,
		ChangedSections: changes.Sections,
		Insertions:      changes.Insertions,
		Deletions:       changes.Deletions,
	}
	if err := s.docRepo.CreateVersioned(ctx, version); err != nil {
		return nil, fmt.Errorf("save document version failed: %w", err)
	}

	klog.V(6).Infof("[DocumentService] 文档已更新: sessionID=%s, version=%d, isDiff=%t, sections=%v",
		sessionID, version.Version, version.IsDiff, version.ChangedSections)
	if err := eventbus.Emit(ctx, s.bus, eventbus.SessionEvent{
		Type:         eventbus.SessionEventDocumentUpdated,
		SessionID:    sessionID,
		MessageCount: len(session.Messages),
		Revision:     revision,
		Fields:       changes.Sections,
		Version:      version.Version,
	}); err != nil {
		klog.Errorf("[DocumentService] 事件处理失败: sessionID=%s, error=%v", sessionID, err)
	}
	return version, nil
}

// currentVersion 文档未变化时返回最新版本；还没有任何版本时返回未保存的快照
func (s *DocumentService) currentVersion(ctx context.Context, sessionID string, result *GenerateResult) (*model.DocumentVersion, error) {
	latest, err := s.docRepo.GetLatest(ctx, sessionID)
	switch {
	case err == nil:
		return latest, nil
	case errors.Is(err, repository.ErrNotFound):
		return &model.DocumentVersion{SessionID: sessionID, IsDiff: result.IsDiff, Content: result.Markdown}, nil
	default:
		return nil, err
	}
}

// ExecuteRegeneration 供后台任务调用；不会因重试而改变结果的错误标记为不可重试
func (s *DocumentService) ExecuteRegeneration(ctx context.Context, sessionID string, force bool) error {
	_, err := s.Regenerate(ctx, sessionID, force)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNoValidMessages),
		errors.Is(err, ErrStaleDocument),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, llm.ErrMissingAPIKey),
		errors.Is(err, llm.ErrUnsupportedProvider):
		return orchestrator.Permanent(err)
	default:
		klog.Errorf("[DocumentService] 文档生成失败: sessionID=%s, error=%v", sessionID, err)
		return err
	}
}

// Document 会话当前文档
func (s *DocumentService) Document(ctx context.Context, sessionID string) (string, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return session.PreviewMarkdown, nil
}

// Versions 文档历史，新版本在前
func (s *DocumentService) Versions(ctx context.Context, sessionID string) ([]model.DocumentVersion, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.docRepo.GetBySession(ctx, sessionID)
}

func (s *DocumentService) Version(ctx context.Context, sessionID string, version int) (*model.DocumentVersion, error) {
	return s.docRepo.GetVersion(ctx, sessionID, version)
}

// RenderedSpec 由结构化仕様直接渲染的文档
func (s *DocumentService) RenderedSpec(ctx context.Context, sessionID string) (model.ProjectSpec, string, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return model.ProjectSpec{}, "", err
	}
	return session.Spec, specdoc.RenderSpec(session.Spec, s.sessions.LocaleOf(session)), nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_", "\n", " ", "\r", " ",
)

// Export 返回导出文件名（<标题>.md）与内容
func (s *DocumentService) Export(ctx context.Context, sessionID string) (string, string, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", "", err
	}
	return ExportFilename(session.PreviewMarkdown, session.Spec, s.sessions.LocaleOf(session)), session.PreviewMarkdown, nil
}

// ExportFilename 取文档标题作为文件名；标题为占位符时退回项目名，再退回 "spec"
func ExportFilename(markdown string, spec model.ProjectSpec, locale specdoc.Locale) string {
	title := specdoc.TitleOf(markdown)
	placeholder := strings.TrimSpace(strings.TrimPrefix(locale.PlaceholderTitle(), "#"))
	if title == "" || title == placeholder {
		title = strings.TrimSpace(spec.ProjectName)
	}
	if title == "" {
		title = "spec"
	}
	return filenameReplacer.Replace(title) + ".md"
}

// validMessages 去掉空白消息并去除首尾空白
func validMessages(messages []model.ChatMessage) []model.ChatMessage {
	out := make([]model.ChatMessage, 0, len(messages))
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		out = append(out, model.ChatMessage{Role: m.Role, Content: content})
	}
	return out
}
