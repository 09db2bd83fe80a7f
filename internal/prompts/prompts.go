// Package prompts 按语言渲染对话与文档生成用的提示词模板。
package prompts

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/specbuilder/backend/internal/model"
	"github.com/specbuilder/backend/internal/specdoc"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Kind 模板种类
type Kind string

const (
	KindChatSystem   Kind = "chat_system"
	KindFullDocument Kind = "document_full"
	KindDiffDocument Kind = "document_diff"
)

const historyKey = "history"

const transcriptSeparator = "\n\n---\n\n"

var errorMessages = map[specdoc.Locale]string{
	specdoc.LocaleJA: "エラーが発生しました。設定を確認してもう一度お試しください。",
	specdoc.LocaleEN: "An error occurred. Please check your settings and try again.",
}

// source 读取模板原文，缺少该语言的模板时退回日语
func source(kind Kind, locale specdoc.Locale) (string, error) {
	if !locale.Valid() {
		locale = specdoc.LocaleJA
	}
	data, err := templateFS.ReadFile(fmt.Sprintf("templates/%s.%s.tmpl", kind, locale))
	if err != nil {
		data, err = templateFS.ReadFile(fmt.Sprintf("templates/%s.%s.tmpl", kind, specdoc.LocaleJA))
		if err != nil {
			return "", fmt.Errorf("template %s not found: %w", kind, err)
		}
	}
	return string(data), nil
}

// ChatMessages 渲染当前阶段的系统提示词，并拼接对话历史
func ChatMessages(ctx context.Context, locale specdoc.Locale, phase model.Phase, spec model.ProjectSpec, history []model.ChatMessage) ([]*schema.Message, error) {
	src, err := source(KindChatSystem, locale)
	if err != nil {
		return nil, err
	}
	if !phase.Valid() {
		phase = model.PhaseMin
	}
	spec.Normalize()

	specJSON, err := json.MarshalIndent(spec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal spec failed: %w", err)
	}

	names := make([]string, 0, len(spec.UserTypes))
	for _, ut := range spec.UserTypes {
		names = append(names, ut.Name)
	}

	tpl := prompt.FromMessages(schema.GoTemplate,
		schema.SystemMessage(src),
		schema.MessagesPlaceholder(historyKey, false),
	)
	return tpl.Format(ctx, map[string]any{
		"phase":         int(phase),
		"spec":          spec,
		"specJSON":      string(specJSON),
		"userTypeNames": strings.Join(names, ", "),
		"screenCount":   len(spec.Screens),
		"notSet":        locale.NotSet(),
		historyKey:      ToSchema(history),
	})
}

// FullDocumentMessages 全量生成文档的提示词
func FullDocumentMessages(ctx context.Context, locale specdoc.Locale, transcript string) ([]*schema.Message, error) {
	return documentMessages(ctx, KindFullDocument, locale, map[string]any{
		"transcript": transcript,
	})
}

// DiffDocumentMessages 只输出变更章节的差分提示词
func DiffDocumentMessages(ctx context.Context, locale specdoc.Locale, currentMarkdown, transcript string) ([]*schema.Message, error) {
	return documentMessages(ctx, KindDiffDocument, locale, map[string]any{
		"currentMarkdown": currentMarkdown,
		"transcript":      transcript,
	})
}

func documentMessages(ctx context.Context, kind Kind, locale specdoc.Locale, vars map[string]any) ([]*schema.Message, error) {
	src, err := source(kind, locale)
	if err != nil {
		return nil, err
	}
	vars["sections"] = locale.SectionNames()
	vars["notSet"] = locale.NotSet()

	tpl := prompt.FromMessages(schema.GoTemplate, schema.UserMessage(src))
	return tpl.Format(ctx, vars)
}

// Transcript 把对话整理为 "【发言人】\n内容" 并以分隔线连接
func Transcript(messages []model.ChatMessage, locale specdoc.Locale) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, fmt.Sprintf("【%s】\n%s", locale.Speaker(m.Role), strings.TrimSpace(m.Content)))
	}
	return strings.Join(parts, transcriptSeparator)
}

// ToSchema 转换为 eino 消息
func ToSchema(messages []model.ChatMessage) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		role := schema.User
		if m.Role == model.RoleAssistant {
			role = schema.Assistant
		}
		out = append(out, &schema.Message{Role: role, Content: m.Content})
	}
	return out
}

// ErrorMessage 对话失败时追加到会话中的提示
func ErrorMessage(locale specdoc.Locale) string {
	if msg, ok := errorMessages[locale]; ok {
		return msg
	}
	return errorMessages[specdoc.LocaleJA]
}
