package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"ragdocs-api/internal/ai"
	"ragdocs-api/internal/config"
	"ragdocs-api/internal/logger"
	queuepkg "ragdocs-api/internal/queue"
	"ragdocs-api/internal/vectorstore"
	"ragdocs-api/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database(cfg.DBName)

	ctx := context.Background()
	laneRouter := ai.NewLaneRouter(cfg)
	embedder, err := ai.NewEmbeddingService(ctx, cfg, laneRouter, nil)
	if err != nil {
		log.Fatal("Failed to init embedding service:", err)
	}
	defer embedder.Close()

	store := vectorstore.NewStore(vectorstore.Config{
		URL:     cfg.QdrantURL,
		APIKey:  cfg.QdrantAPIKey,
		Timeout: cfg.QdrantTimeout,
	}, laneRouter, nil)

	chunker := services.NewChunkingService(cfg.MaxChunkChars)
	extractor := services.NewExtractor()
	ingestion := services.NewIngestionService(db, chunker, embedder, store, nil, nil)

	redisOpt, err := queuepkg.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal("Invalid Redis configuration:", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queuepkg.NewTaskProcessor(cfg, ingestion, extractor)
	mux := asynq.NewServeMux()
	processor.Register(mux)

	logger.Info("Starting ingestion worker", "concurrency", cfg.WorkerConcurrency)
	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
