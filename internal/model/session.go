package model

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 会话消息，只追加；编辑时截断其后的消息
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatMessage 发往模型的消息（不含 id / 时间戳）
type ChatMessage struct {
	Role    Role   `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content"`
}

// Settings 会话级设置
type Settings struct {
	Provider      string `json:"provider"`
	APIKey        string `json:"apiKey"`
	UseServiceKey bool   `json:"useServiceKey"`
}

// Masked 返回隐藏 APIKey 的副本，用于对外输出
func (s Settings) Masked() Settings {
	if s.APIKey == "" {
		return s
	}
	key := s.APIKey
	if len(key) > 8 {
		key = key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
	} else {
		key = strings.Repeat("*", len(key))
	}
	s.APIKey = key
	return s
}

// Session 持久化的会话快照：设置、仕様、消息、当前阶段、渲染后的文档
// 整体读写，无版本号、无迁移逻辑
type Session struct {
	ID              string      `json:"id" gorm:"primaryKey;size:36"`
	Locale          string      `json:"locale" gorm:"size:8;default:ja"`
	Settings        Settings    `json:"settings" gorm:"serializer:json;type:text"`
	Spec            ProjectSpec `json:"spec" gorm:"serializer:json;type:text"`
	Messages        []Message   `json:"messages" gorm:"serializer:json;type:text"`
	CurrentPhase    Phase       `json:"currentPhase" gorm:"default:1"`
	PreviewMarkdown string      `json:"previewMarkdown" gorm:"type:text"`
	// Revision 消息历史每次变化（追加、编辑、重置）加一
	Revision        int64       `json:"revision" gorm:"default:0"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// LastMessage 返回最后一条消息
func (s *Session) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// MessageIndex 查找消息下标，不存在返回 -1
func (s *Session) MessageIndex(id string) int {
	for i, m := range s.Messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// ChatHistory 过滤空白消息并去除首尾空白
func (s *Session) ChatHistory() []ChatMessage {
	return FilterBlank(s.Messages)
}

// FilterBlank 过滤空白消息并去除首尾空白
func FilterBlank(messages []Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		out = append(out, ChatMessage{Role: m.Role, Content: content})
	}
	return out
}
