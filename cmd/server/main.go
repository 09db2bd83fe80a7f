package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"k8s.io/klog/v2"

	"github.com/specbuilder/backend/config"
	"github.com/specbuilder/backend/internal/eventbus"
	"github.com/specbuilder/backend/internal/handler"
	"github.com/specbuilder/backend/internal/pkg/database"
	"github.com/specbuilder/backend/internal/pkg/llm"
	"github.com/specbuilder/backend/internal/repository"
	"github.com/specbuilder/backend/internal/router"
	"github.com/specbuilder/backend/internal/service"
	"github.com/specbuilder/backend/internal/service/orchestrator"
	"github.com/specbuilder/backend/internal/subscriber"
)

func main() {
	// 初始化 klog
	klog.InitFlags(nil)
	flag.Parse()
	defer klog.Flush()

	klog.V(6).Info("服务启动中...")

	cfg := config.GetConfig()
	setupLogFile(cfg.Log)

	if cfg.Database.Type != "mysql" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}

	// 初始化数据库
	db, err := database.InitDB(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// 初始化 Repository
	sessionRepo := repository.NewSessionRepository(db)
	docRepo := repository.NewDocumentRepository(db)

	// 初始化 Service
	bus := eventbus.NewSessionEventBus()
	models := llm.NewFactory(cfg)
	sessionService := service.NewSessionService(cfg, sessionRepo, docRepo, bus)
	docService := service.NewDocumentService(cfg, models, docRepo, sessionService, bus)
	chatService := service.NewChatService(models, sessionService)

	// 后台文档生成：消息事件经防抖后进入编排器
	orch, err := orchestrator.NewOrchestrator(cfg.Preview.Workers, docService)
	if err != nil {
		log.Fatalf("Failed to create orchestrator: %v", err)
	}
	orch.Start()
	defer orch.Stop()

	debouncer := service.NewDebouncer(cfg.Preview.Debounce)
	defer debouncer.Stop()
	subscriber.NewSessionEventSubscriber(debouncer, orch, cfg.LLM.Timeout).Register(bus)

	// 初始化 Handler
	defaultLocale := sessionService.DefaultLocale()
	chatHandler := handler.NewChatHandler(chatService, defaultLocale)
	previewHandler := handler.NewPreviewHandler(docService, defaultLocale)
	sessionHandler := handler.NewSessionHandler(sessionService, chatService)
	docHandler := handler.NewDocumentHandler(docService, orch)

	// 设置路由
	r := router.Setup(cfg, chatHandler, previewHandler, sessionHandler, docHandler)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Server starting on port %s (locale=%s, provider=%s)...", cfg.Server.Port, defaultLocale, cfg.LLM.Provider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	klog.V(6).Info("服务关闭中...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		klog.Errorf("服务关闭失败: %v", err)
	}
}

// setupLogFile 配置了日志文件时，klog 输出到按大小滚动的文件
func setupLogFile(cfg config.LogConfig) {
	if cfg.File == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		klog.Errorf("创建日志目录失败: %v", err)
		return
	}
	_ = flag.Set("logtostderr", "false")
	_ = flag.Set("alsologtostderr", "false")
	klog.SetOutput(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	})
}
