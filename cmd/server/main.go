// Package main 是服务端的入口点
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"ai-chat-server/internal/cache"
	"ai-chat-server/internal/config"
	"ai-chat-server/internal/handler"
	"ai-chat-server/internal/llm"
	"ai-chat-server/internal/memory"
	"ai-chat-server/internal/middleware"
	"ai-chat-server/internal/model"
	"ai-chat-server/internal/repository"
	"ai-chat-server/internal/service"
	"ai-chat-server/internal/websocket"
	"ai-chat-server/pkg/jwt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load("./configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to init database: %v", err)
	}

	// 自动迁移数据库表
	if err := autoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// 初始化 Redis（可选，未配置时所有读写直达数据库）
	var redisCache *cache.RedisCache
	var sessionCache service.SessionCache
	if cfg.Redis.Host != "" {
		redisCache, err = cache.NewRedisCache(cfg)
		if err != nil {
			log.Fatalf("Failed to init redis: %v", err)
		}
		sessionCache = redisCache
	} else {
		log.Println("[WARN] redis not configured, session cache disabled")
	}

	// 初始化外部服务客户端
	llmClient := llm.NewClient(cfg)
	if !llmClient.Configured() {
		log.Println("[WARN] LLM_API_KEY not configured, chat replies will degrade to a fixed error message")
	}
	memoryClient := memory.NewClient(cfg)
	if !memoryClient.Configured() {
		log.Println("[WARN] MEM0_API_KEY not configured, long-term memory disabled")
	}

	// 初始化 JWT 服务
	jwtService := jwt.NewJWTService(cfg.JWT.Secret, 24*time.Hour)

	// 初始化 Repository 层
	sessionRepo := repository.NewSessionRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// 初始化 Service 层
	memoryService := service.NewMemoryService(memoryClient, llmClient)
	summaryService := service.NewSummaryService(llmClient)
	sessionService := service.NewSessionService(sessionRepo, messageRepo, sessionCache)
	chatService := service.NewChatService(llmClient, memoryService, summaryService, sessionRepo, messageRepo, sessionCache)

	// 初始化 Handler 层
	chatHandler := handler.NewChatHandler(chatService)
	sessionHandler := handler.NewSessionHandler(sessionService)
	memoryHandler := handler.NewMemoryHandler(memoryService)
	wsHandler := websocket.NewHandler(chatService)

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	router := gin.New()

	// 全局中间件
	router.Use(middleware.RecoveryMiddleware()) // 恢复 panic
	router.Use(middleware.LoggerMiddleware())   // 请求日志
	router.Use(middleware.CORSMiddleware())     // CORS

	// 注册路由
	registerRoutes(router, jwtService, llmClient, memoryClient, chatHandler, sessionHandler, memoryHandler, wsHandler)

	// 创建 HTTP 服务器
	// 注意: 流式响应会长时间占用连接，写超时必须覆盖最长的一轮生成
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Printf("Server starting on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			log.Printf("Failed to close redis: %v", err)
		}
	}

	log.Println("Server exited")
}

// initDatabase 初始化数据库连接
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.MySQL.Username,
		cfg.MySQL.Password,
		cfg.MySQL.Host,
		cfg.MySQL.Port,
		cfg.MySQL.Database,
		cfg.MySQL.Charset,
	)

	// 配置 GORM logger
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 配置连接池
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MySQL.MaxLifetime) * time.Second)

	log.Println("Database connected successfully")
	return db, nil
}

// autoMigrate 自动迁移数据库表
func autoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	if err := db.AutoMigrate(
		&model.ChatSession{},
		&model.ChatMessage{},
	); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	log.Println("Database migrations completed")
	return nil
}

// registerRoutes 注册所有路由
func registerRoutes(
	router *gin.Engine,
	jwtService *jwt.JWTService,
	llmClient *llm.Client,
	memoryClient *memory.Client,
	chatHandler *handler.ChatHandler,
	sessionHandler *handler.SessionHandler,
	memoryHandler *handler.MemoryHandler,
	wsHandler *websocket.Handler,
) {
	// 健康检查，同时暴露外部依赖的配置状态
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":            "ok",
			"llm_configured":    llmClient.Configured(),
			"memory_configured": memoryClient.Configured(),
		})
	})

	// 所有业务接口开放匿名访问，Token 仅用于会话归属
	api := router.Group("/api")
	api.Use(middleware.OptionalAuthMiddleware(jwtService))

	// 对话相关
	chat := api.Group("/chat")
	{
		chat.POST("", chatHandler.Chat)
		chat.GET("/stream", chatHandler.ChatStream)
		chat.GET("/ws", wsHandler.HandleChatWS)
	}

	// 会话相关
	sessions := api.Group("/sessions")
	{
		sessions.POST("", sessionHandler.Create)
		sessions.GET("", sessionHandler.List)
		sessions.GET("/:id", sessionHandler.Get)
		sessions.PUT("/:id/title", sessionHandler.UpdateTitle)
		sessions.GET("/:id/messages", sessionHandler.Messages)
		sessions.DELETE("/:id", sessionHandler.Delete)
	}

	// 记忆相关（按会话谱系隔离）
	memories := api.Group("/memory")
	{
		memories.GET("/:session_id", memoryHandler.List)
		memories.GET("/:session_id/search", memoryHandler.Search)
		memories.PUT("/:session_id/:memory_id", memoryHandler.Update)
		memories.DELETE("/:session_id/:memory_id", memoryHandler.Delete)
	}
}
