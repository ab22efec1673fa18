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
	"github.com/hibiken/asynq"

	"ragdocs-api/internal/ai"
	"ragdocs-api/internal/config"
	"ragdocs-api/internal/logger"
	"ragdocs-api/internal/telemetry"
	"ragdocs-api/internal/vectorstore"
	"ragdocs-api/middleware"
	"ragdocs-api/models"
	"ragdocs-api/routes"
	"ragdocs-api/services"

	queuepkg "ragdocs-api/internal/queue"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	// Telemetry
	var metrics *telemetry.Metrics
	if cfg.TelemetryEnabled {
		shutdownTracer, err := telemetry.InitTracer("ragdocs-api", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal("Failed to init tracer:", err)
		}
		defer shutdownTracer()

		metrics, err = telemetry.InitMetrics()
		if err != nil {
			log.Fatal("Failed to init metrics:", err)
		}
	}

	// MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()
	db := mongoClient.Database(cfg.DBName)

	// Redis (rate limiting)
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Asynq client for background ingestion
	redisOpt, err := queuepkg.RedisConnOpt(cfg)
	if err != nil {
		log.Fatal("Invalid Redis configuration:", err)
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	// AI clients
	ctx := context.Background()
	laneRouter := ai.NewLaneRouter(cfg)
	embedder, err := ai.NewEmbeddingService(ctx, cfg, laneRouter, metrics)
	if err != nil {
		log.Fatal("Failed to init embedding service:", err)
	}
	defer embedder.Close()

	geminiClient, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to init Gemini client:", err)
	}
	defer geminiClient.Close()

	// Vector store
	store := vectorstore.NewStore(vectorstore.Config{
		URL:     cfg.QdrantURL,
		APIKey:  cfg.QdrantAPIKey,
		Timeout: cfg.QdrantTimeout,
	}, laneRouter, metrics)
	for _, lane := range []models.Lane{models.LaneText, models.LaneCode} {
		if err := store.Ensure(ctx, lane); err != nil {
			log.Fatal("Failed to provision vector collection:", err)
		}
	}

	// Pipeline services
	chunker := services.NewChunkingService(cfg.MaxChunkChars)
	extractor := services.NewExtractor()
	cache := services.NewQueryCache(cfg.CacheCapacity)
	ingestion := services.NewIngestionService(db, chunker, embedder, store, cache, metrics)
	enhancer := services.NewGeminiEnhancer(geminiClient)
	retriever := services.NewHybridRetriever(embedder, store, cfg)
	reranker := services.NewReranker(cfg)
	queryService := services.NewQueryService(enhancer, retriever, reranker, cache, geminiClient, metrics, cfg)

	// Periodic lane consistency check
	consistency := services.NewConsistencyService(ingestion, store)
	if err := consistency.Start(); err != nil {
		log.Fatal("Failed to start consistency check:", err)
	}
	defer consistency.Stop()

	// HTTP server
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	if cfg.TelemetryEnabled {
		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
		router.Use(middleware.MetricsMiddleware(metrics))
	}
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().UTC()})
	})

	docs := router.Group("/docs")
	{
		docs.POST("/upload", routes.HandleUploadDocument(cfg, ingestion, extractor, queueClient))
		docs.POST("/crawl", routes.HandleCrawlRequest(cfg, queueClient))
		docs.GET("", routes.HandleListDocuments(ingestion))
		docs.GET("/:doc_id/chunks", routes.HandleListChunks(ingestion))
		docs.DELETE("/:doc_id", routes.HandleDeleteDocument(ingestion))
	}
	router.POST("/chat/query", routes.HandleQuery(queryService))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}
