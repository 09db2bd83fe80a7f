package handler

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/specbuilder/backend/internal/service"
	"github.com/specbuilder/backend/internal/service/orchestrator"
)

// queueStatus 后台生成队列状态
type queueStatus interface {
	Status() *orchestrator.QueueStatus
}

type DocumentHandler struct {
	documents *service.DocumentService
	queue     queueStatus
}

func NewDocumentHandler(documents *service.DocumentService, queue queueStatus) *DocumentHandler {
	return &DocumentHandler{documents: documents, queue: queue}
}

type RegenerateRequest struct {
	Force bool `json:"force"`
}

func (h *DocumentHandler) Get(c *gin.Context) {
	markdown, err := h.documents.Document(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"markdown": markdown})
}

// Regenerate 同步重新生成文档；force 为 true 时全量生成
func (h *DocumentHandler) Regenerate(c *gin.Context) {
	var req RegenerateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	id := c.Param("id")
	version, err := h.documents.Regenerate(c.Request.Context(), id, req.Force)
	if err != nil {
		klog.Errorf("[DocumentHandler] 文档生成失败: sessionID=%s, error=%v", id, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"markdown": version.Content,
		"isDiff":   version.IsDiff,
		"version":  version,
	})
}

func (h *DocumentHandler) Versions(c *gin.Context) {
	versions, err := h.documents.Versions(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

func (h *DocumentHandler) Version(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("version"))
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version"})
		return
	}
	version, err := h.documents.Version(c.Request.Context(), c.Param("id"), n)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, version)
}

// Export 以 Markdown 附件下载当前文档
func (h *DocumentHandler) Export(c *gin.Context) {
	filename, content, err := h.documents.Export(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(content))
}

// Spec 返回结构化仕様及其直接渲染结果
func (h *DocumentHandler) Spec(c *gin.Context) {
	spec, markdown, err := h.documents.RenderedSpec(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"spec": spec, "markdown": markdown})
}

// QueueStatus 后台文档生成队列状态
func (h *DocumentHandler) QueueStatus(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusOK, &orchestrator.QueueStatus{})
		return
	}
	c.JSON(http.StatusOK, h.queue.Status())
}
