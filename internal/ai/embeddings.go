package ai

import (
	"context"
	"fmt"
	"time"

	"ragdocs-api/internal/config"
	"ragdocs-api/internal/telemetry"
	"ragdocs-api/models"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// EmbeddingService generates embeddings with a separate Google Generative AI
// model per lane. A response whose vector length disagrees with the lane's
// configured dimension is an error, never silently truncated or padded.
type EmbeddingService struct {
	client  *genai.Client
	router  *LaneRouter
	metrics *telemetry.Metrics
}

// NewEmbeddingService creates the dual-lane embedding service.
func NewEmbeddingService(ctx context.Context, cfg *config.Config, router *LaneRouter, metrics *telemetry.Metrics) (*EmbeddingService, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY for embeddings")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}

	return &EmbeddingService{
		client:  client,
		router:  router,
		metrics: metrics,
	}, nil
}

// EmbedBatch returns one vector per input string, in input order, using the
// lane's embedding model.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, lane models.Lane, texts []string) ([][]float32, error) {
	lc, err := s.router.Resolve(lane)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()

	em := s.client.EmbeddingModel(lc.Model)
	batch := em.NewBatch()
	for _, text := range texts {
		batch = batch.AddContent(genai.Text(text))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("batch embedding failed for lane %s: %w", lane, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch for lane %s: sent %d, got %d",
			lane, len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("no embedding returned for input %d", i)
		}
		if len(emb.Values) != lc.Dimension {
			return nil, &models.DimensionMismatchError{
				Collection: lc.Collection,
				Want:       lc.Dimension,
				Got:        len(emb.Values),
			}
		}
		vectors[i] = emb.Values
	}

	if s.metrics != nil {
		s.metrics.RecordEmbedding(string(lane), len(texts), time.Since(start).Seconds())
	}

	return vectors, nil
}

// EmbedQuery embeds a single query string for the given lane.
func (s *EmbeddingService) EmbedQuery(ctx context.Context, lane models.Lane, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, lane, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Close releases the underlying client.
func (s *EmbeddingService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
