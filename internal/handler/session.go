package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/specbuilder/backend/internal/model"
	"github.com/specbuilder/backend/internal/service"
)

type SessionHandler struct {
	sessions *service.SessionService
	chat     *service.ChatService
}

func NewSessionHandler(sessions *service.SessionService, chat *service.ChatService) *SessionHandler {
	return &SessionHandler{sessions: sessions, chat: chat}
}

type CreateSessionRequest struct {
	Locale string `json:"locale"`
}

type MessageRequest struct {
	Content string `json:"content" binding:"required,notblank"`
}

type SettingsRequest struct {
	Provider      *string `json:"provider" binding:"omitempty,oneof=claude openai"`
	APIKey        *string `json:"apiKey"`
	UseServiceKey *bool   `json:"useServiceKey"`
}

type PhaseRequest struct {
	Phase model.Phase `json:"phase" binding:"required,phase"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	// 请求体可以为空
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	session, err := h.sessions.Create(c.Request.Context(), resolveLocale(c, req.Locale, h.sessions.DefaultLocale()))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionView(session))
}

func (h *SessionHandler) List(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	sessions, err := h.sessions.List(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]*model.Session, 0, len(sessions))
	for i := range sessions {
		out = append(out, sessionView(&sessions[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *SessionHandler) Get(c *gin.Context) {
	session, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": sessionView(session),
		"busy":    h.sessions.IsBusy(session.ID),
	})
}

func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// SendMessage 追加用户消息，并以 SSE 输出助手回复
func (h *SessionHandler) SendMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	w := newSSEWriter(c)
	session, err := h.chat.Reply(c.Request.Context(), id, req.Content, w.Content)
	h.finishTurn(c, w, id, session, err)
}

// EditMessage 编辑用户消息、删除其后的消息，并以 SSE 输出新的助手回复
func (h *SessionHandler) EditMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id := c.Param("id")
	w := newSSEWriter(c)
	session, err := h.chat.EditAndReply(c.Request.Context(), id, c.Param("messageId"), req.Content, w.Content)
	h.finishTurn(c, w, id, session, err)
}

// finishTurn 流尚未开始时按错误返回 JSON；已开始时补发会话状态与结束标记
func (h *SessionHandler) finishTurn(c *gin.Context, w *sseWriter, id string, session *model.Session, err error) {
	if err != nil && !w.started {
		writeError(c, err)
		return
	}
	if err != nil {
		klog.Errorf("[SessionHandler] 对话失败: sessionID=%s, error=%v", id, err)
	}
	if session != nil {
		_ = w.Data(gin.H{
			"phase": session.CurrentPhase,
			"spec":  session.Spec,
		})
	}
	w.Done()
}

func (h *SessionHandler) UpdateSettings(c *gin.Context) {
	var req SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := h.sessions.UpdateSettings(c.Request.Context(), c.Param("id"), service.SettingsPatch{
		Provider:      req.Provider,
		APIKey:        req.APIKey,
		UseServiceKey: req.UseServiceKey,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(session))
}

func (h *SessionHandler) Reset(c *gin.Context) {
	id := c.Param("id")
	if h.sessions.IsBusy(id) {
		writeError(c, service.ErrSessionBusy)
		return
	}
	session, err := h.sessions.Reset(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(session))
}

// SetPhase 手动进入下一阶段
func (h *SessionHandler) SetPhase(c *gin.Context) {
	var req PhaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	session, err := h.sessions.SetPhase(c.Request.Context(), c.Param("id"), req.Phase)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionView(session))
}

// Sections 返回语言对应的章节名与初始文档
func (h *SessionHandler) Sections(c *gin.Context) {
	locale := resolveLocale(c, c.Query("locale"), h.sessions.DefaultLocale())
	c.JSON(http.StatusOK, gin.H{
		"locale":   locale,
		"sections": locale.SectionNames(),
		"initial":  locale.InitialDocument(),
	})
}
