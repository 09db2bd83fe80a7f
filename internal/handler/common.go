package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/specbuilder/backend/internal/model"
	"github.com/specbuilder/backend/internal/repository"
	"github.com/specbuilder/backend/internal/service"
	"github.com/specbuilder/backend/internal/service/statemachine"
	"github.com/specbuilder/backend/internal/specdoc"
)

// resolveLocale 请求体中的 locale 优先，其次 Accept-Language，最后使用默认值
func resolveLocale(c *gin.Context, explicit string, fallback specdoc.Locale) specdoc.Locale {
	if explicit != "" {
		return specdoc.ParseLocale(explicit, fallback)
	}
	return specdoc.ParseLocale(c.GetHeader("Accept-Language"), fallback)
}

// statusOf 把服务层错误映射为 HTTP 状态码
func statusOf(err error) int {
	var transitionErr *statemachine.InvalidPhaseTransitionError
	switch {
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSessionBusy), errors.Is(err, service.ErrStaleDocument):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoValidMessages), errors.Is(err, service.ErrNotUserMessage), errors.As(err, &transitionErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusOf(err), gin.H{"error": err.Error()})
}

// sessionView 对外输出的会话快照，API Key 已隐藏
func sessionView(s *model.Session) *model.Session {
	if s == nil {
		return nil
	}
	view := *s
	view.Settings = s.Settings.Masked()
	return &view
}

// sseWriter 首次写入时才发送 SSE 响应头，之前仍可返回普通 JSON 错误
type sseWriter struct {
	c       *gin.Context
	started bool
	failed  bool
}

func newSSEWriter(c *gin.Context) *sseWriter {
	return &sseWriter{c: c}
}

func (w *sseWriter) start() {
	if w.started {
		return
	}
	w.started = true
	h := w.c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.c.Status(http.StatusOK)
	w.c.Writer.WriteHeaderNow()
}

// Data 写入一条 "data: <json>" 事件
func (w *sseWriter) Data(payload any) error {
	w.start()
	if w.failed {
		return errClientGone
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.c.Writer, "data: %s\n\n", data); err != nil {
		w.failed = true
		return err
	}
	w.c.Writer.Flush()
	return nil
}

// Content 写入文本片段
func (w *sseWriter) Content(content string) error {
	return w.Data(gin.H{"content": content})
}

// Done 写入结束标记
func (w *sseWriter) Done() {
	w.start()
	if w.failed {
		return
	}
	if _, err := fmt.Fprint(w.c.Writer, "data: [DONE]\n\n"); err != nil {
		w.failed = true
		return
	}
	w.c.Writer.Flush()
}

var errClientGone = errors.New("client connection closed")
