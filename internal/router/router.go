package router

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/specbuilder/backend/config"
	"github.com/specbuilder/backend/internal/handler"
)

// SSE 接口不压缩，避免缓冲导致流式输出延迟
var streamingPaths = []string{
	`^/api/chat$`,
	`^/api/sessions/[^/]+/messages(/[^/]+)?$`,
}

func Setup(
	cfg *config.Config,
	chatHandler *handler.ChatHandler,
	previewHandler *handler.PreviewHandler,
	sessionHandler *handler.SessionHandler,
	docHandler *handler.DocumentHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := handler.RegisterValidators(); err != nil {
		klog.Errorf("[Router] 注册校验规则失败: %v", err)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept-Language", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: false,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs(streamingPaths)))

	api := r.Group("/api")
	{
		api.POST("/chat", chatHandler.Chat)
		api.POST("/preview", previewHandler.Preview)
		api.GET("/sections", sessionHandler.Sections)
		api.GET("/regeneration/status", docHandler.QueueStatus)

		sessions := api.Group("/sessions")
		{
			sessions.POST("", sessionHandler.Create)
			sessions.GET("", sessionHandler.List)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.DELETE("/:id", sessionHandler.Delete)
			sessions.POST("/:id/messages", sessionHandler.SendMessage)
			sessions.PUT("/:id/messages/:messageId", sessionHandler.EditMessage)
			sessions.PUT("/:id/settings", sessionHandler.UpdateSettings)
			sessions.POST("/:id/reset", sessionHandler.Reset)
			sessions.POST("/:id/phase", sessionHandler.SetPhase)
			sessions.GET("/:id/spec", docHandler.Spec)

			sessions.GET("/:id/document", docHandler.Get)
			sessions.POST("/:id/document/regenerate", docHandler.Regenerate)
			sessions.GET("/:id/document/versions", docHandler.Versions)
			sessions.GET("/:id/document/versions/:version", docHandler.Version)
			sessions.GET("/:id/document/export", docHandler.Export)
		}
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.Status(http.StatusNotFound)
	})

	return r
}
