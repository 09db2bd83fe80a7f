// Package llmtest 提供测试用的 chat model 替身。
package llmtest

import (
	"context"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/specbuilder/backend/internal/model"
)

// ChatModel 记录调用并返回预设内容的 chat model
// Chunks 用于 Stream；Reply 用于 Generate；Err 非空时两者都返回该错误
type ChatModel struct {
	Chunks []string
	Reply  string
	Err    error
	// Replies 按调用顺序依次返回，用尽后回到 Reply
	Replies []string

	mu    sync.Mutex
	calls [][]*schema.Message
}

var _ einomodel.BaseChatModel = (*ChatModel)(nil)

func (m *ChatModel) record(input []*schema.Message) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, input)
	return len(m.calls) - 1
}

// Generate 实现 BaseChatModel
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	idx := m.record(input)
	if m.Err != nil {
		return nil, m.Err
	}
	reply := m.Reply
	if idx < len(m.Replies) {
		reply = m.Replies[idx]
	}
	return schema.AssistantMessage(reply, nil), nil
}

// Stream 实现 BaseChatModel
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	m.record(input)
	if m.Err != nil {
		return nil, m.Err
	}
	msgs := make([]*schema.Message, 0, len(m.Chunks))
	for _, c := range m.Chunks {
		msgs = append(msgs, schema.AssistantMessage(c, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

// Calls 返回全部调用的输入
func (m *ChatModel) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]*schema.Message, len(m.calls))
	copy(out, m.calls)
	return out
}

// Provider 总是返回同一个模型
type Provider struct {
	Model einomodel.BaseChatModel
	Err   error

	mu       sync.Mutex
	settings []model.Settings
}

// ForSettings 实现 llm.ChatModelProvider
func (p *Provider) ForSettings(ctx context.Context, settings model.Settings) (einomodel.BaseChatModel, error) {
	p.mu.Lock()
	p.settings = append(p.settings, settings)
	p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Model, nil
}

// Settings 返回每次请求时传入的设置
func (p *Provider) Settings() []model.Settings {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Settings(nil), p.settings...)
}
