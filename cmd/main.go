package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/byerlikaya/SmartRAG-sub014/config"
	"github.com/byerlikaya/SmartRAG-sub014/handlers"
	"github.com/byerlikaya/SmartRAG-sub014/services/database"
	"github.com/byerlikaya/SmartRAG-sub014/services/impl"
	"github.com/byerlikaya/SmartRAG-sub014/services/parser"
	"github.com/byerlikaya/SmartRAG-sub014/services/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := newLogger(&cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Redis is shared by the stores and the embedding cache. A failed
	// connection is fatal only when a store actually requires it; the
	// embedding cache falls back to memory.
	redisClient := connectRedis(cfg, logger)

	stores, err := storage.NewStores(cfg, redisClient)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer stores.Close()

	catalog, err := database.NewSchemaCatalog(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize schema catalog", zap.Error(err))
	}
	defer catalog.Close()

	ctx := context.Background()

	gateway, err := impl.NewAIGateway(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize AI gateway", zap.Error(err))
	}

	// Document pipeline
	registry := parser.NewRegistry()
	chunker := impl.NewChunker(&cfg.Chunking)
	embeddingCache := impl.NewEmbeddingCache(redisClient, &cfg.Redis)
	embedder := impl.NewEmbeddingEngine(gateway, embeddingCache, &cfg.AI, logger)
	documentService := impl.NewDocumentService(stores.Documents, registry, chunker, embedder, cfg, logger)

	// Query pipeline
	coordinator := database.NewCoordinator(catalog, gateway, cfg, logger)
	analyzer := impl.NewIntentAnalyzer(gateway, catalog, logger)
	synthesizer := impl.NewAnswerSynthesizer(gateway, stores.Documents, logger)
	mcpClient := impl.NewMcpClient(logger)
	orchestrator := impl.NewQueryOrchestrator(
		cfg,
		analyzer,
		documentService,
		coordinator,
		synthesizer,
		mcpClient,
		gateway,
		stores.Documents,
		stores.Conversations,
		logger,
	)

	watcher := impl.NewFileWatcher(&cfg.FileWatcher, documentService, registry, logger)
	startup := impl.NewStartupService(cfg, mcpClient, watcher, catalog, documentService, logger)
	healthService := impl.NewHealthService(gateway, stores.Documents, stores.Conversations, catalog, logger)

	// Initialize handlers
	documentHandlers := handlers.NewDocumentHandlers(documentService)
	chatHandlers := handlers.NewChatHandlers(orchestrator, stores.Conversations)
	adminHandlers := handlers.NewAdminHandlers(cfg, catalog, healthService, orchestrator)

	router := setupRouter(cfg, documentHandlers, chatHandlers, adminHandlers)

	// MCP connections, file watchers, and the background schema analysis
	// start before the listener so probes reflect real state.
	if err := startup.Start(ctx); err != nil {
		logger.Fatal("Startup sequence failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Info("SmartRAG server starting",
			zap.String("address", cfg.GetServerAddress()),
			zap.String("basePath", cfg.Server.BasePath),
			zap.String("aiProvider", cfg.AI.Provider),
			zap.String("storageProvider", cfg.Storage.Provider))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	startup.Stop(shutdownCtx)

	logger.Info("Server exited")
}

func newLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format == "console" {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zapCfg.Build()
}

// connectRedis dials Redis when any configured component needs it. Returns
// nil when Redis is not needed, or when only the optional embedding cache
// wanted it and the connection failed.
func connectRedis(cfg *config.Config, logger *zap.Logger) *redis.Client {
	required := cfg.Storage.Provider == "redis" || cfg.Conversation.Provider == "redis"
	if !required && !cfg.Redis.EnableEmbeddingCache {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		if required {
			logger.Fatal("Redis connection failed", zap.String("addr", cfg.GetRedisAddr()), zap.Error(err))
		}
		logger.Warn("Redis unavailable, embedding cache falls back to memory", zap.Error(err))
		client.Close()
		return nil
	}
	logger.Info("Redis connection established", zap.String("addr", cfg.GetRedisAddr()))
	return client
}

func setupRouter(
	cfg *config.Config,
	documentHandlers *handlers.DocumentHandlers,
	chatHandlers *handlers.ChatHandlers,
	adminHandlers *handlers.AdminHandlers,
) *gin.Engine {
	// Set gin mode based on environment
	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	// Liveness endpoint, outside the base path
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "smartrag",
		})
	})

	api := router.Group(cfg.Server.BasePath + "/api")

	// Document routes - /schemas must come BEFORE /:id routes
	documents := api.Group("/documents")
	{
		documents.GET("/schemas", documentHandlers.ListSchemaDocuments)
		documents.GET("", documentHandlers.ListDocuments)
		documents.GET("/:id", documentHandlers.GetDocument)
		documents.GET("/:id/chunks", documentHandlers.GetDocumentChunks)
		documents.POST("", documentHandlers.UploadDocument)
		documents.DELETE("/:id", documentHandlers.DeleteDocument)
		documents.DELETE("", documentHandlers.DeleteAllDocuments)
	}
	api.GET("/upload/supported-types", documentHandlers.GetSupportedTypes)

	// Chat routes
	chat := api.Group("/chat")
	{
		chat.POST("/messages", chatHandlers.PostMessage)
		chat.GET("/sessions", chatHandlers.ListSessions)
		chat.GET("/sessions/:id", chatHandlers.GetSession)
		chat.DELETE("/sessions", chatHandlers.DeleteAllSessions)
		chat.DELETE("/sessions/:id", chatHandlers.DeleteSession)
	}

	// Admin routes
	api.GET("/settings", adminHandlers.GetSettings)
	api.GET("/connections", adminHandlers.GetConnections)
	api.GET("/health", adminHandlers.GetHealth)
	api.GET("/schemas", adminHandlers.GetSchemas)
	api.POST("/query-analysis", adminHandlers.AnalyzeQuery)

	return router
}
