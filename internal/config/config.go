package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string
	MaxFileSize int64
	// Uploads larger than this are handed to the background worker
	SyncProcessingLimit int64

	// MongoDB (document/chunk metadata)
	MongoURI string
	DBName   string

	// Redis (task queue + rate limiting)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Qdrant vector database
	QdrantURL     string
	QdrantAPIKey  string
	QdrantTimeout time.Duration

	// Gemini
	GeminiAPIKey string
	GeminiModel  string
	GeminiTier   string

	// Per-lane embedding configuration. Each lane has its own model,
	// dimensionality and vector collection; vectors are never mixed.
	TextEmbeddingModel string
	TextVectorDim      int
	TextCollection     string
	CodeEmbeddingModel string
	CodeVectorDim      int
	CodeCollection     string

	// Chunking
	MaxChunkChars int

	// Retrieval
	DefaultTopK   int
	SearchMargin  int
	QueryTimeout  time.Duration
	CacheCapacity int

	// Reranking weights. Tunable rather than hard-coded; the useful ranges
	// are small fractions of the base similarity.
	RerankKeywordBonus      float64
	RerankKeywordCap        float64
	RerankHeadingDefinition float64
	RerankHeadingPartial    float64
	RerankTypeMatch         float64
	RerankLanguageMatch     float64
	SimilarityFloor         float64
	RerankLeniencyMatches   int

	// Answer generation
	ContextTokenBudget int

	// HTTP rate limiting
	RateLimitReqs   int
	RateLimitWindow int

	// Crawl ingestion
	CrawlMaxPages int
	CrawlTimeout  time.Duration

	// Worker
	WorkerConcurrency int

	// Telemetry
	TelemetryEnabled bool
	OTLPEndpoint     string
}

func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		GinMode:             getEnv("GIN_MODE", "debug"),
		CORSOrigins:         strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:8080"), ","),
		MaxFileSize:         getEnvInt64("MAX_FILE_SIZE", 104857600), // 100MB
		SyncProcessingLimit: getEnvInt64("SYNC_PROCESSING_LIMIT", 20971520),

		MongoURI: getEnv("MONGO_URI", "mongodb://localhost:27017/ragdocs"),
		DBName:   getEnv("DB_NAME", "ragdocs"),

		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		QdrantURL:     getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:  getEnv("QDRANT_API_KEY", ""),
		QdrantTimeout: time.Duration(getEnvInt("QDRANT_TIMEOUT", 15)) * time.Second,

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiTier:   getEnv("GEMINI_TIER", "free"),

		TextEmbeddingModel: getEnv("TEXT_EMBEDDING_MODEL", "text-embedding-004"),
		TextVectorDim:      getEnvInt("TEXT_VECTOR_DIM", 768),
		TextCollection:     getEnv("TEXT_COLLECTION", "text_chunks"),
		CodeEmbeddingModel: getEnv("CODE_EMBEDDING_MODEL", "gemini-embedding-001"),
		CodeVectorDim:      getEnvInt("CODE_VECTOR_DIM", 3072),
		CodeCollection:     getEnv("CODE_COLLECTION", "code_chunks"),

		MaxChunkChars: getEnvInt("MAX_CHUNK_CHARS", 600),

		DefaultTopK:   getEnvInt("DEFAULT_TOP_K", 10),
		SearchMargin:  getEnvInt("SEARCH_MARGIN", 5),
		QueryTimeout:  time.Duration(getEnvInt("QUERY_TIMEOUT", 15)) * time.Second,
		CacheCapacity: getEnvInt("QUERY_CACHE_CAPACITY", 100),

		RerankKeywordBonus:      getEnvFloat64("RERANK_KEYWORD_BONUS", 0.05),
		RerankKeywordCap:        getEnvFloat64("RERANK_KEYWORD_CAP", 0.2),
		RerankHeadingDefinition: getEnvFloat64("RERANK_HEADING_DEFINITION", 0.3),
		RerankHeadingPartial:    getEnvFloat64("RERANK_HEADING_PARTIAL", 0.1),
		RerankTypeMatch:         getEnvFloat64("RERANK_TYPE_MATCH", 0.1),
		RerankLanguageMatch:     getEnvFloat64("RERANK_LANGUAGE_MATCH", 0.15),
		SimilarityFloor:         getEnvFloat64("SIMILARITY_FLOOR", 0.25),
		RerankLeniencyMatches:   getEnvInt("RERANK_LENIENCY_MATCHES", 2),

		ContextTokenBudget: getEnvInt("CONTEXT_TOKEN_BUDGET", 3000),

		RateLimitReqs:   getEnvInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow: getEnvInt("RATE_LIMIT_WINDOW", 60),

		CrawlMaxPages: getEnvInt("CRAWL_MAX_PAGES", 25),
		CrawlTimeout:  time.Duration(getEnvInt("CRAWL_TIMEOUT", 60)) * time.Second,

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),

		TelemetryEnabled: getEnvBool("TELEMETRY_ENABLED", false),
		OTLPEndpoint:     getEnv("OTLP_ENDPOINT", "localhost:4317"),
	}

	// Validate required fields
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required - set it in .env file")
	}

	if cfg.TextVectorDim <= 0 || cfg.CodeVectorDim <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive (text=%d, code=%d)",
			cfg.TextVectorDim, cfg.CodeVectorDim)
	}

	if cfg.TextCollection == cfg.CodeCollection {
		return nil, fmt.Errorf("text and code collections must be distinct")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
