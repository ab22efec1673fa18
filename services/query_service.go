package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ragdocs-api/internal/config"
	"ragdocs-api/internal/logger"
	"ragdocs-api/internal/telemetry"
	"ragdocs-api/models"
)

// Generator produces a grounded answer from the question and the
// retrieved context. Treated as fallible: when it errors the query falls
// back to a plain formatted excerpt list.
type Generator interface {
	GenerateAnswer(ctx context.Context, question string, contextChunks []string) (string, error)
}

// Retriever is the query-side search pipeline.
type Retriever interface {
	Retrieve(ctx context.Context, query models.EnhancedQuery, docID string, k int) ([]models.SearchCandidate, error)
}

// QueryService runs the full query path: cache lookup, enhancement, hybrid
// retrieval, reranking, context assembly and answer generation.
type QueryService struct {
	enhancer  Enhancer
	retriever Retriever
	reranker  *Reranker
	cache     *QueryCache
	generator Generator
	metrics   *telemetry.Metrics

	defaultTopK  int
	queryTimeout time.Duration
	tokenBudget  int
}

func NewQueryService(enhancer Enhancer, retriever Retriever, reranker *Reranker, cache *QueryCache, generator Generator, metrics *telemetry.Metrics, cfg *config.Config) *QueryService {
	return &QueryService{
		enhancer:     enhancer,
		retriever:    retriever,
		reranker:     reranker,
		cache:        cache,
		generator:    generator,
		metrics:      metrics,
		defaultTopK:  cfg.DefaultTopK,
		queryTimeout: cfg.QueryTimeout,
		tokenBudget:  cfg.ContextTokenBudget,
	}
}

// Query answers one question. Enhancement, retrieval and reranking are
// skipped entirely on a cache hit; answer generation always runs so the
// response reflects the current question phrasing.
func (qs *QueryService) Query(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	start := time.Now()

	k := req.TopK
	if k <= 0 {
		k = qs.defaultTopK
	}

	ctx, cancel := context.WithTimeout(ctx, qs.queryTimeout)
	defer cancel()

	key := CacheKey(req.Query, req.DocID, k)
	queryType := models.QueryTypeGeneral

	ranked, cacheHit := qs.cache.Get(key)
	if !cacheHit {
		enhanced := qs.enhancer.Enhance(ctx, req.Query)
		queryType = enhanced.QueryType

		candidates, err := qs.retriever.Retrieve(ctx, enhanced, req.DocID, k)
		if err != nil {
			qs.recordQuery(string(queryType), false, start)
			return nil, err
		}

		ranked = qs.reranker.Rerank(candidates, enhanced, k)
		qs.cache.Put(key, ranked)
	}
	qs.recordQuery(string(queryType), cacheHit, start)

	contextWindow := BuildContextWindow(ranked, qs.tokenBudget)

	answer := ""
	if len(ranked) > 0 {
		var err error
		answer, err = qs.generator.GenerateAnswer(ctx, req.Query, contextWindow)
		if err != nil {
			logger.Warn("Answer generation failed, returning formatted excerpts", "error", err)
			answer = FormatBasicAnswer(req.Query, ranked)
		}
	} else {
		answer = "No relevant documentation was found for this question."
	}

	sources := make([]models.QuerySource, len(ranked))
	for i, r := range ranked {
		sources[i] = models.QuerySource{
			Content:        r.Payload.Content,
			Metadata:       r.Payload,
			RelevanceScore: r.Score,
		}
	}

	return &models.QueryResponse{
		Answer:      answer,
		Sources:     sources,
		ContextUsed: contextWindow,
		QueryType:   queryType,
		CacheHit:    cacheHit,
		LatencyMS:   time.Since(start).Milliseconds(),
		Timestamp:   time.Now().UTC(),
	}, nil
}

// charsPerToken approximates the model tokenizer for budget purposes.
const charsPerToken = 4

// BuildContextWindow assembles labelled context snippets for the answer
// prompt, stopping before the token budget is exceeded. At least one snippet
// is always included so the generator has something to work with.
func BuildContextWindow(ranked []models.RankedChunk, tokenBudget int) []string {
	if len(ranked) == 0 {
		return nil
	}
	budgetChars := tokenBudget * charsPerToken

	window := make([]string, 0, len(ranked))
	used := 0
	for i, r := range ranked {
		label := fmt.Sprintf("[Source %d] %s", i+1, r.Payload.SourceFile)
		if r.Payload.Heading != "" {
			label += " — " + r.Payload.Heading
		}
		snippet := label + "\n" + r.Payload.Content
		if len(window) > 0 && used+len(snippet) > budgetChars {
			break
		}
		window = append(window, snippet)
		used += len(snippet)
	}
	return window
}

// FormatBasicAnswer renders the top chunks as a readable excerpt list. Used
// when the model is unavailable so queries still return something useful.
func FormatBasicAnswer(query string, ranked []models.RankedChunk) string {
	var sb strings.Builder
	sb.WriteString("Relevant documentation excerpts for: ")
	sb.WriteString(query)
	sb.WriteString("\n")

	limit := 3
	if len(ranked) < limit {
		limit = len(ranked)
	}
	for i := 0; i < limit; i++ {
		r := ranked[i]
		sb.WriteString("\n")
		if r.Payload.Heading != "" {
			sb.WriteString(r.Payload.Heading)
			sb.WriteString("\n")
		}
		content := r.Payload.Content
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (qs *QueryService) recordQuery(queryType string, cacheHit bool, start time.Time) {
	if qs.metrics != nil {
		qs.metrics.RecordQuery(queryType, cacheHit, time.Since(start).Seconds())
		if cacheHit {
			qs.metrics.RecordCacheEvent("hit")
		} else {
			qs.metrics.RecordCacheEvent("miss")
		}
	}
}
