package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/faq-agent/backend/internal/agent"
	"github.com/faq-agent/backend/internal/cache/redis"
	"github.com/faq-agent/backend/internal/evaluation"
	"github.com/faq-agent/backend/internal/generation"
	"github.com/faq-agent/backend/internal/llm"
	"github.com/faq-agent/backend/internal/pii"
	"github.com/faq-agent/backend/internal/retrieval"
	"github.com/faq-agent/backend/internal/storage/models"
	"github.com/faq-agent/backend/internal/storage/sqlite"
	"github.com/faq-agent/backend/internal/vector/milvus"
	"github.com/faq-agent/backend/pkg/config"
	appLogger "github.com/faq-agent/backend/pkg/logger"
)

func main() {
	datasetPath := flag.String("dataset", "", "path to the labeled dataset (JSON)")
	k := flag.Int("k", 5, "retrieval depth for recall@k")
	workers := flag.Int("workers", 4, "parallel evaluation workers")
	mode := flag.String("mode", "record", "completion mode: record or replay")
	itemsPath := flag.String("items", "", "optional path for per-record results (JSON)")
	flag.Parse()

	if *datasetPath == "" {
		fmt.Fprintln(os.Stderr, "usage: evaluate -dataset <path> [-k N] [-workers N] [-mode record|replay] [-items <path>]")
		os.Exit(2)
	}

	recorderMode := llm.Mode(*mode)
	if recorderMode != llm.ModeRecord && recorderMode != llm.ModeReplay {
		fmt.Fprintf(os.Stderr, "unknown mode %q: want record or replay\n", *mode)
		os.Exit(2)
	}

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

	appLogger.Info("Starting evaluation run",
		zap.String("dataset", *datasetPath),
		zap.Int("k", *k),
		zap.Int("workers", *workers),
		zap.String("mode", *mode),
	)

	records, err := evaluation.LoadRecords(*datasetPath)
	if err != nil {
		appLogger.Fatal("Failed to load dataset", zap.Error(err))
	}

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

	// Evaluation always goes through the recorder so a replay run sees the
	// exact completions the record run saw.
	completer := llm.NewRecordingCompleter(llmClient, redisClient, recorderMode)

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
		TopK:              *k,
		EscalationEnabled: cfg.Agent.EscalationEnabled,
	})

	harness := evaluation.NewHarness(controller, evaluation.Config{
		K:       *k,
		Workers: *workers,
	})

	report, err := harness.Run(context.Background(), records)
	if err != nil {
		appLogger.Fatal("Evaluation run failed", zap.Error(err))
	}

	fmt.Print(evaluation.Render(report))

	if *itemsPath != "" {
		data, err := json.MarshalIndent(report.Items, "", "  ")
		if err != nil {
			appLogger.Fatal("Failed to encode per-record results", zap.Error(err))
		}
		if err := os.WriteFile(*itemsPath, data, 0o644); err != nil {
			appLogger.Fatal("Failed to write per-record results", zap.Error(err))
		}
		appLogger.Info("Per-record results written", zap.String("path", *itemsPath))
	}

	run := &models.EvalRun{
		ID:                uuid.New().String(),
		DatasetPath:       *datasetPath,
		K:                 report.K,
		Total:             report.Total,
		Answered:          report.Answered,
		Escalated:         report.Escalated,
		MeanRecall:        report.Recall.Mean,
		MeanFaithfulness:  report.Faithfulness.Mean,
		HallucinationRate: report.HallucinationRate,
		CreatedAt:         time.Now(),
	}
	if err := sqliteClient.InsertEvalRun(run); err != nil {
		appLogger.Warn("Failed to persist evaluation run", zap.Error(err))
	}
}
