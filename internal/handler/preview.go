package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/specbuilder/backend/internal/model"
	"github.com/specbuilder/backend/internal/service"
	"github.com/specbuilder/backend/internal/specdoc"
)

// PreviewHandler 无会话的文档生成接口
type PreviewHandler struct {
	documents     *service.DocumentService
	defaultLocale specdoc.Locale
}

func NewPreviewHandler(documents *service.DocumentService, defaultLocale specdoc.Locale) *PreviewHandler {
	return &PreviewHandler{documents: documents, defaultLocale: defaultLocale}
}

type PreviewRequest struct {
	Messages        []model.ChatMessage `json:"messages" binding:"dive"`
	CurrentMarkdown string              `json:"currentMarkdown"`
	Locale          string              `json:"locale"`
}

func (h *PreviewHandler) Preview(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.documents.Generate(c.Request.Context(), service.GenerateRequest{
		Messages:        req.Messages,
		CurrentMarkdown: req.CurrentMarkdown,
		Locale:          resolveLocale(c, req.Locale, h.defaultLocale),
	})
	if err != nil {
		if errors.Is(err, service.ErrNoValidMessages) {
			c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrNoValidMessages.Error()})
			return
		}
		klog.Errorf("[PreviewHandler] 文档生成失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate preview"})
		return
	}

	c.JSON(http.StatusOK, result)
}
