package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/sitechat/backend/internal/api/handlers"
	"github.com/sitechat/backend/internal/cache/redis"
	"github.com/sitechat/backend/internal/crawler"
	"github.com/sitechat/backend/internal/ingestion"
	"github.com/sitechat/backend/internal/llm"
	"github.com/sitechat/backend/internal/metrics"
	"github.com/sitechat/backend/internal/middleware/ratelimit"
	"github.com/sitechat/backend/internal/middleware/security"
	"github.com/sitechat/backend/internal/middleware/validation"
	"github.com/sitechat/backend/internal/query"
	"github.com/sitechat/backend/internal/storage/sqlite"
	"github.com/sitechat/backend/internal/tenant"
	"github.com/sitechat/backend/internal/vector/milvus"
	"github.com/sitechat/backend/pkg/config"
	"github.com/sitechat/backend/pkg/logger"
)

func main() {
	// Optional .env for local development; real deployments use the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	metrics.Init()

	db, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		logger.Fatal("Failed to open SQLite database", zap.Error(err))
	}
	defer db.Close()

	if err := db.InitSchema(); err != nil {
		logger.Fatal("Failed to initialize database schema", zap.Error(err))
	}

	vectors, err := milvus.NewClient(cfg.Milvus.Endpoint, cfg.Milvus.CollectionName, cfg.Milvus.VectorDim)
	if err != nil {
		logger.Fatal("Failed to connect to Milvus", zap.Error(err))
	}
	defer vectors.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := vectors.EnsureCollection(ctx); err != nil {
		cancel()
		logger.Fatal("Failed to ensure Milvus collection", zap.Error(err))
	}
	cancel()

	// Redis is a cache only. The service runs without it, just slower.
	cache, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB,
		time.Duration(cfg.Redis.TTLSec)*time.Second)
	if err != nil {
		logger.Warn("Redis unavailable, response caching disabled", zap.Error(err))
		cache = nil
	} else {
		defer cache.Close()
	}

	llmClient := llm.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature, cfg.LLM.MaxTokens)

	siteCrawler := crawler.New(crawler.Config{
		MaxPages:        cfg.Crawler.MaxPages,
		Concurrency:     cfg.Crawler.Concurrency,
		FetchTimeout:    time.Duration(cfg.Crawler.FetchTimeoutSec) * time.Second,
		MinContentChars: cfg.Crawler.MinContentChars,
		MinSentences:    cfg.Crawler.MinSentences,
		UserAgent:       cfg.Crawler.UserAgent,
	})

	resolver := tenant.NewResolver(db)

	// Local development shortcut: pre-provision one tenant so the widget
	// works before any admin tooling runs.
	if slug := os.Getenv("SITECHAT_BOOTSTRAP_TENANT"); slug != "" {
		bootCtx, bootCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := resolver.EnsureTenant(bootCtx, slug, slug); err != nil {
			logger.Warn("Failed to bootstrap tenant", zap.String("slug", slug), zap.Error(err))
		}
		bootCancel()
	}

	var invalidator ingestion.CacheInvalidator
	if cache != nil {
		invalidator = cache
	}
	processor := ingestion.NewProcessor(resolver, db, vectors, llmClient, siteCrawler, invalidator, ingestion.Config{
		ChunkSize:        cfg.Ingestion.ChunkSize,
		ChunkOverlap:     cfg.Ingestion.ChunkOverlap,
		EmbedConcurrency: cfg.Ingestion.EmbedConcurrency,
		MaxContentChars:  cfg.Ingestion.MaxContentChars,
	})

	var responseCache query.ResponseCache
	if cache != nil {
		responseCache = cache
	}
	engine := query.NewEngine(resolver, llmClient, vectors, llmClient, db, responseCache, query.Config{
		SimilarityThreshold: cfg.Retrieval.SimilarityThreshold,
		MaxMatches:          cfg.Retrieval.MaxMatches,
	})

	app := buildApp(cfg, engine, processor)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logger.Info("Starting server", zap.String("addr", addr))
		if err := app.Listen(addr); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
	logger.Info("Server stopped")
}

func buildApp(cfg *config.Config, engine *query.Engine, processor *ingestion.Processor) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.RateLimitRPM,
		Logger:               logger.GetLogger(),
	})
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		Logger: logger.GetLogger(),
	}))

	chatHandler := handlers.NewChatHandler(engine)
	ingestHandler := handlers.NewIngestHandler(processor, cfg.Admin.Password)
	wsHandler := handlers.NewWebSocketHandler(engine)

	api := app.Group("/api/v1")
	api.Post("/chat", chatHandler.HandleChat)
	api.Get("/chat/history", chatHandler.HandleHistory)
	api.Post("/admin/ingest", ingestHandler.HandleIngest)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ready"})
	})

	app.Get("/metrics", metrics.Handler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	return app
}
