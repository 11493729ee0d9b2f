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
	"go.uber.org/zap"

	"github.com/faq-agent/backend/internal/agent"
	"github.com/faq-agent/backend/internal/api/handlers"
	"github.com/faq-agent/backend/internal/cache/redis"
	"github.com/faq-agent/backend/internal/generation"
	"github.com/faq-agent/backend/internal/ingestion"
	"github.com/faq-agent/backend/internal/llm"
	"github.com/faq-agent/backend/internal/metrics"
	"github.com/faq-agent/backend/internal/middleware/ratelimit"
	"github.com/faq-agent/backend/internal/middleware/security"
	"github.com/faq-agent/backend/internal/middleware/validation"
	"github.com/faq-agent/backend/internal/pii"
	"github.com/faq-agent/backend/internal/query"
	"github.com/faq-agent/backend/internal/retrieval"
	"github.com/faq-agent/backend/internal/storage/sqlite"
	"github.com/faq-agent/backend/internal/vector/milvus"
	"github.com/faq-agent/backend/pkg/config"
	appLogger "github.com/faq-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting FAQ Agent API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	err = milvusClient.CreateCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to create collection", zap.Error(err))
	}

	redisClient, err := redis.NewClient(
		cfg.Redis.Host,
		cfg.Redis.Port,
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	var completer llm.Completer = llmClient
	if cfg.LLM.RecordCompletions {
		appLogger.Info("Completion recording enabled")
		completer = llm.NewRecordingCompleter(llmClient, redisClient, llm.ModeRecord)
	}

	piiEngine := pii.NewEngine()

	storedChunks, err := sqliteClient.ListChunks()
	if err != nil {
		appLogger.Fatal("Failed to load chunks for lexical index", zap.Error(err))
	}
	lexicalDocs := make([]retrieval.ChunkDoc, 0, len(storedChunks))
	for _, chunk := range storedChunks {
		lexicalDocs = append(lexicalDocs, retrieval.ChunkDoc{ChunkID: chunk.ID, Text: chunk.Text})
	}
	lexicalIndex := retrieval.NewBM25Index(lexicalDocs)
	appLogger.Info("Lexical index built", zap.Int("chunks", len(lexicalDocs)))

	retriever := retrieval.NewRetriever(llmClient, milvusClient, redisClient, retrieval.Config{
		MinSimilarity: float32(cfg.Retrieval.MinSimilarity),
		MaxK:          cfg.Retrieval.MaxK,
		Timeout:       time.Duration(cfg.Retrieval.TimeoutSec) * time.Second,
		Lexical:       lexicalIndex,
	})

	generator := generation.NewGenerator(completer, generation.Config{
		MaxAttempts: cfg.LLM.MaxGenerationRetries,
		Contact:     cfg.Agent.EscalationContact,
	})

	controller := agent.NewController(piiEngine, retriever, generator, agent.Config{
		MaxRounds:         cfg.Retrieval.MaxRounds,
		EscalationEnabled: cfg.Agent.EscalationEnabled,
	})

	queryEngine := query.NewEngine(controller, sqliteClient, redisClient)
	processor := ingestion.NewProcessor(sqliteClient, milvusClient, llmClient, lexicalIndex)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		Logger: appLogger.GetLogger(),
	})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{
		MaxDocumentSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	}))

	askHandler := handlers.NewAskHandler(queryEngine)
	faqHandler := handlers.NewFAQHandler(processor, redisClient)
	wsHandler := handlers.NewWebSocketHandler(queryEngine)

	api := app.Group("/api/v1")

	api.Post("/ask", askHandler.HandleAsk)
	api.Get("/ask/history", askHandler.GetHistory)
	api.Post("/feedback", askHandler.HandleFeedback)

	api.Post("/faqs", faqHandler.HandleIngest)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
