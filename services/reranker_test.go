package services

import (
	"testing"

	"ragdocs-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testReranker() *Reranker {
	return &Reranker{
		keywordBonus:      0.05,
		keywordCap:        0.2,
		headingDefinition: 0.3,
		headingPartial:    0.1,
		typeMatch:         0.1,
		languageMatch:     0.15,
		similarityFloor:   0.25,
		leniencyMatches:   2,
	}
}

func candidate(id string, sim float64, payload models.ChunkPayload) models.SearchCandidate {
	payload.ChunkID = id
	return models.SearchCandidate{
		ChunkID:    id,
		Distance:   1/sim - 1,
		Similarity: sim,
		Payload:    payload,
	}
}

func TestRerankDefinitionHeadingWins(t *testing.T) {
	r := testReranker()
	query := models.EnhancedQuery{
		Original:  "What is FastAPI?",
		Enhanced:  "What is FastAPI?",
		Keywords:  []string{"fastapi"},
		QueryType: models.QueryTypeDefinition,
	}

	cands := []models.SearchCandidate{
		candidate("b", 0.8, models.ChunkPayload{
			Type:    models.LaneText,
			Heading: "## Deployment checklist",
			Content: "Unrelated deployment notes.",
		}),
		candidate("a", 0.8, models.ChunkPayload{
			Type:    models.LaneText,
			Heading: "## What is FastAPI?",
			Content: "FastAPI is a modern web framework.",
		}),
	}

	ranked := r.Rerank(cands, query, 10)
	require.Len(t, ranked, 2)
	assert.Equal(t, "a", ranked[0].ChunkID)
	assert.Greater(t, ranked[0].Score, ranked[1].Score)
}

func TestRerankSimilarityFloorAndLeniency(t *testing.T) {
	r := testReranker()
	query := models.EnhancedQuery{
		Keywords:  []string{"websocket", "handshake"},
		QueryType: models.QueryTypeGeneral,
	}

	cands := []models.SearchCandidate{
		// Below floor, no keyword matches: dropped.
		candidate("dropped", 0.1, models.ChunkPayload{
			Type:    models.LaneText,
			Content: "Totally unrelated paragraph.",
		}),
		// Below floor but matches both keywords: retained.
		candidate("kept", 0.1, models.ChunkPayload{
			Type:    models.LaneText,
			Content: "The websocket handshake upgrades the connection.",
		}),
		candidate("normal", 0.5, models.ChunkPayload{
			Type:    models.LaneText,
			Content: "Some other relevant text.",
		}),
	}

	ranked := r.Rerank(cands, query, 10)
	require.Len(t, ranked, 2)
	ids := []string{ranked[0].ChunkID, ranked[1].ChunkID}
	assert.Contains(t, ids, "kept")
	assert.NotContains(t, ids, "dropped")
}

func TestRerankKeywordBonusIsCapped(t *testing.T) {
	r := testReranker()
	query := models.EnhancedQuery{
		Keywords:  []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta"},
		QueryType: models.QueryTypeGeneral,
	}

	c := candidate("x", 0.5, models.ChunkPayload{
		Type:    models.LaneText,
		Content: "alpha beta gamma delta epsilon zeta",
	})

	ranked := r.Rerank([]models.SearchCandidate{c}, query, 1)
	require.Len(t, ranked, 1)
	// similarity + capped keyword bonus + text type match
	assert.InDelta(t, 0.5+0.2+0.1, ranked[0].Score, 1e-9)
}

func TestRerankTypeAndLanguageMatch(t *testing.T) {
	r := testReranker()
	query := models.EnhancedQuery{
		Keywords:  []string{"decorators"},
		QueryType: models.QueryTypeExample,
		Language:  "python",
	}

	cands := []models.SearchCandidate{
		candidate("text", 0.6, models.ChunkPayload{
			Type:    models.LaneText,
			Content: "Decorators wrap functions.",
		}),
		candidate("code", 0.6, models.ChunkPayload{
			Type:     models.LaneCode,
			Language: "python",
			Content:  "@decorators example",
		}),
	}

	ranked := r.Rerank(cands, query, 10)
	require.Len(t, ranked, 2)
	assert.Equal(t, "code", ranked[0].ChunkID)
	// code intent favors the code lane and the language matches.
	assert.InDelta(t, 0.6+0.05+0.1+0.15, ranked[0].Score, 1e-9)
}

func TestRerankDeterministicTieBreak(t *testing.T) {
	r := testReranker()
	query := models.EnhancedQuery{QueryType: models.QueryTypeGeneral}

	cands := []models.SearchCandidate{
		candidate("zzz", 0.5, models.ChunkPayload{Type: models.LaneText}),
		candidate("aaa", 0.5, models.ChunkPayload{Type: models.LaneText}),
	}

	for i := 0; i < 5; i++ {
		ranked := r.Rerank(cands, query, 10)
		require.Len(t, ranked, 2)
		assert.Equal(t, "aaa", ranked[0].ChunkID)
		assert.Equal(t, "zzz", ranked[1].ChunkID)
	}
}

func TestRerankTruncatesToK(t *testing.T) {
	r := testReranker()
	query := models.EnhancedQuery{QueryType: models.QueryTypeGeneral}

	var cands []models.SearchCandidate
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		cands = append(cands, candidate(id, 0.5, models.ChunkPayload{Type: models.LaneText}))
	}

	ranked := r.Rerank(cands, query, 3)
	assert.Len(t, ranked, 3)
}
