package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/specbuilder/backend/internal/model"
	"github.com/specbuilder/backend/internal/prompts"
	"github.com/specbuilder/backend/internal/service"
	"github.com/specbuilder/backend/internal/specdoc"
)

// ChatHandler 无会话的对话接口，状态由客户端维护
type ChatHandler struct {
	chat          *service.ChatService
	defaultLocale specdoc.Locale
}

func NewChatHandler(chat *service.ChatService, defaultLocale specdoc.Locale) *ChatHandler {
	return &ChatHandler{chat: chat, defaultLocale: defaultLocale}
}

type ChatRequest struct {
	Messages []model.ChatMessage `json:"messages" binding:"dive"`
	Phase    model.Phase         `json:"phase" binding:"omitempty,phase"`
	Spec     model.ProjectSpec   `json:"spec"`
	Locale   string              `json:"locale"`
}

// Chat 以 SSE 输出模型回复：data: {"content": "..."} ... data: [DONE]
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Phase == 0 {
		req.Phase = model.PhaseMin
	}
	locale := resolveLocale(c, req.Locale, h.defaultLocale)

	tokens, errs, err := h.chat.Stream(c.Request.Context(), service.StreamRequest{
		Messages: req.Messages,
		Phase:    req.Phase,
		Spec:     req.Spec,
		Locale:   locale,
	})
	if err != nil {
		if errors.Is(err, service.ErrNoValidMessages) {
			c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrNoValidMessages.Error()})
			return
		}
		klog.Errorf("[ChatHandler] 对话请求失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process chat"})
		return
	}

	w := newSSEWriter(c)
	w.start()
	for token := range tokens {
		// 客户端断开后继续消费，直到生产者因 ctx 取消而退出
		_ = w.Content(token)
	}
	if err := <-errs; err != nil {
		// 上游错误只记录日志，客户端收到通用错误提示
		klog.Errorf("[ChatHandler] 流式输出失败: %v", err)
		_ = w.Content(prompts.ErrorMessage(locale))
	}
	w.Done()
}
