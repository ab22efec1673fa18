package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ragdocs-api/internal/config"
	"ragdocs-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRetriever struct {
	candidates []models.SearchCandidate
	err        error
	calls      int
}

func (s *stubRetriever) Retrieve(_ context.Context, _ models.EnhancedQuery, _ string, _ int) ([]models.SearchCandidate, error) {
	s.calls++
	return s.candidates, s.err
}

type stubGenerator struct {
	answer string
	err    error
}

func (s *stubGenerator) GenerateAnswer(_ context.Context, _ string, _ []string) (string, error) {
	return s.answer, s.err
}

func queryServiceConfig() *config.Config {
	return &config.Config{
		DefaultTopK:        10,
		QueryTimeout:       5 * time.Second,
		ContextTokenBudget: 3000,
	}
}

func newTestQueryService(retriever Retriever, generator Generator) *QueryService {
	return NewQueryService(
		NewLocalEnhancer(),
		retriever,
		testReranker(),
		NewQueryCache(10),
		generator,
		nil,
		queryServiceConfig(),
	)
}

func payloadCandidate(id, content string, sim float64) models.SearchCandidate {
	return models.SearchCandidate{
		ChunkID:    id,
		Similarity: sim,
		Payload: models.ChunkPayload{
			ChunkID:    id,
			SourceFile: "guide.md",
			Content:    content,
			Type:       models.LaneText,
		},
	}
}

func TestQueryReturnsRankedSourcesAndAnswer(t *testing.T) {
	retriever := &stubRetriever{candidates: []models.SearchCandidate{
		payloadCandidate("a", "FastAPI is a modern web framework.", 0.9),
	}}
	qs := newTestQueryService(retriever, &stubGenerator{answer: "FastAPI is a framework."})

	resp, err := qs.Query(context.Background(), models.QueryRequest{Query: "What is FastAPI?"})
	require.NoError(t, err)

	assert.Equal(t, "FastAPI is a framework.", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "a", resp.Sources[0].Metadata.ChunkID)
	assert.False(t, resp.CacheHit)
	assert.NotEmpty(t, resp.ContextUsed)
}

func TestQueryCacheHitSkipsRetrieval(t *testing.T) {
	retriever := &stubRetriever{candidates: []models.SearchCandidate{
		payloadCandidate("a", "Some content.", 0.9),
	}}
	qs := newTestQueryService(retriever, &stubGenerator{answer: "ok"})

	req := models.QueryRequest{Query: "what is fastapi?"}
	_, err := qs.Query(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, retriever.calls)

	resp, err := qs.Query(context.Background(), models.QueryRequest{Query: "  WHAT is  fastapi? "})
	require.NoError(t, err)
	assert.True(t, resp.CacheHit)
	assert.Equal(t, 1, retriever.calls, "cache hit must not re-run retrieval")
}

func TestQueryRetrievalErrorSurfaces(t *testing.T) {
	retriever := &stubRetriever{err: models.ErrAllLanesFailed}
	qs := newTestQueryService(retriever, &stubGenerator{answer: "ok"})

	_, err := qs.Query(context.Background(), models.QueryRequest{Query: "anything"})
	assert.ErrorIs(t, err, models.ErrAllLanesFailed)
}

func TestQueryGeneratorFailureFallsBack(t *testing.T) {
	retriever := &stubRetriever{candidates: []models.SearchCandidate{
		payloadCandidate("a", "The websocket handshake upgrades the connection.", 0.9),
	}}
	qs := newTestQueryService(retriever, &stubGenerator{err: errors.New("model down")})

	resp, err := qs.Query(context.Background(), models.QueryRequest{Query: "websocket handshake"})
	require.NoError(t, err)
	assert.Contains(t, resp.Answer, "websocket handshake")
	assert.Contains(t, resp.Answer, "The websocket handshake upgrades the connection.")
}

func TestQueryEmptyResultsIsNotError(t *testing.T) {
	qs := newTestQueryService(&stubRetriever{}, &stubGenerator{answer: "unused"})

	resp, err := qs.Query(context.Background(), models.QueryRequest{Query: "nothing matches"})
	require.NoError(t, err)
	assert.Empty(t, resp.Sources)
	assert.Contains(t, resp.Answer, "No relevant documentation")
}

func TestBuildContextWindowRespectsBudget(t *testing.T) {
	big := strings.Repeat("x", 2000)
	ranked := []models.RankedChunk{
		{SearchCandidate: payloadCandidate("a", big, 0.9), Score: 0.9},
		{SearchCandidate: payloadCandidate("b", big, 0.8), Score: 0.8},
		{SearchCandidate: payloadCandidate("c", big, 0.7), Score: 0.7},
	}

	// Budget of 1000 tokens is ~4000 chars: the first snippet always fits,
	// the second does, the third would overflow.
	window := BuildContextWindow(ranked, 1000)
	assert.Len(t, window, 1)

	window = BuildContextWindow(ranked, 1500)
	assert.Len(t, window, 2)

	assert.Contains(t, window[0], "[Source 1] guide.md")
}

func TestBuildContextWindowAlwaysIncludesFirst(t *testing.T) {
	ranked := []models.RankedChunk{
		{SearchCandidate: payloadCandidate("a", strings.Repeat("x", 9000), 0.9), Score: 0.9},
	}

	window := BuildContextWindow(ranked, 100)
	require.Len(t, window, 1)
}
