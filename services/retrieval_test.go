package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ragdocs-api/internal/config"
	"ragdocs-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, lane models.Lane, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if lane == models.LaneCode {
		return make([]float32, 8), nil
	}
	return make([]float32, 4), nil
}

type fakeSearcher struct {
	mu      sync.Mutex
	calls   []searchCall
	results map[models.Lane][]models.SearchCandidate
	errs    map[models.Lane]error
}

type searchCall struct {
	lane  models.Lane
	limit int
	docID string
}

func (f *fakeSearcher) Search(_ context.Context, lane models.Lane, _ []float32, limit int, docID string) ([]models.SearchCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, searchCall{lane: lane, limit: limit, docID: docID})
	if err := f.errs[lane]; err != nil {
		return nil, err
	}
	return f.results[lane], nil
}

func textCandidate(id string, sim float64) models.SearchCandidate {
	return models.SearchCandidate{
		ChunkID:    id,
		Distance:   1/sim - 1,
		Similarity: sim,
		Payload:    models.ChunkPayload{ChunkID: id, Type: models.LaneText},
	}
}

func retrieverConfig() *config.Config {
	return &config.Config{SearchMargin: 5}
}

func TestRetrieveTextOnlyForGeneralQuery(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[models.Lane][]models.SearchCandidate{
			models.LaneText: {textCandidate("a", 0.9)},
		},
	}
	hr := NewHybridRetriever(&fakeEmbedder{}, searcher, retrieverConfig())

	query := models.EnhancedQuery{
		Enhanced:  "deployment configuration",
		Keywords:  []string{"deployment", "configuration"},
		QueryType: models.QueryTypeGeneral,
	}

	got, err := hr.Retrieve(context.Background(), query, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.Len(t, searcher.calls, 1)
	assert.Equal(t, models.LaneText, searcher.calls[0].lane)
	// Over-fetch is additive: K + margin.
	assert.Equal(t, 15, searcher.calls[0].limit)
}

func TestRetrieveAddsCodeLaneForCodeIntent(t *testing.T) {
	searcher := &fakeSearcher{results: map[models.Lane][]models.SearchCandidate{}}
	hr := NewHybridRetriever(&fakeEmbedder{}, searcher, retrieverConfig())

	query := models.EnhancedQuery{
		Enhanced:  "how to open a websocket",
		QueryType: models.QueryTypeHowTo,
	}

	_, err := hr.Retrieve(context.Background(), query, "", 10)
	require.NoError(t, err)

	lanes := map[models.Lane]bool{}
	for _, c := range searcher.calls {
		lanes[c.lane] = true
	}
	assert.True(t, lanes[models.LaneText])
	assert.True(t, lanes[models.LaneCode])
}

func TestRetrieveAddsCodeLaneForCodeKeywords(t *testing.T) {
	searcher := &fakeSearcher{results: map[models.Lane][]models.SearchCandidate{}}
	hr := NewHybridRetriever(&fakeEmbedder{}, searcher, retrieverConfig())

	query := models.EnhancedQuery{
		Enhanced:  "middleware function ordering",
		Keywords:  []string{"middleware", "function", "ordering"},
		QueryType: models.QueryTypeGeneral,
	}

	_, err := hr.Retrieve(context.Background(), query, "", 10)
	require.NoError(t, err)
	assert.Len(t, searcher.calls, 2)
}

func TestRetrieveFansOutPerSubTopic(t *testing.T) {
	searcher := &fakeSearcher{results: map[models.Lane][]models.SearchCandidate{}}
	hr := NewHybridRetriever(&fakeEmbedder{}, searcher, retrieverConfig())

	query := models.EnhancedQuery{
		Enhanced:  "install and configure and deploy",
		QueryType: models.QueryTypeMultiStep,
		SubTopics: []string{"install the package", "configure the service"},
	}

	_, err := hr.Retrieve(context.Background(), query, "", 10)
	require.NoError(t, err)
	// One text-lane search per topic: enhanced query plus two sub-topics.
	assert.Len(t, searcher.calls, 3)
}

func TestRetrievePassesDocumentScope(t *testing.T) {
	searcher := &fakeSearcher{results: map[models.Lane][]models.SearchCandidate{}}
	hr := NewHybridRetriever(&fakeEmbedder{}, searcher, retrieverConfig())

	query := models.EnhancedQuery{Enhanced: "anything", QueryType: models.QueryTypeGeneral}

	_, err := hr.Retrieve(context.Background(), query, "doc42", 10)
	require.NoError(t, err)
	require.Len(t, searcher.calls, 1)
	assert.Equal(t, "doc42", searcher.calls[0].docID)
}

func TestRetrieveToleratesPartialLaneFailure(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[models.Lane][]models.SearchCandidate{
			models.LaneText: {textCandidate("a", 0.8)},
		},
		errs: map[models.Lane]error{
			models.LaneCode: errors.New("collection unavailable"),
		},
	}
	hr := NewHybridRetriever(&fakeEmbedder{}, searcher, retrieverConfig())

	query := models.EnhancedQuery{
		Enhanced:  "show me an example",
		QueryType: models.QueryTypeExample,
	}

	got, err := hr.Retrieve(context.Background(), query, "", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ChunkID)
}

func TestRetrieveAllLanesFailed(t *testing.T) {
	hr := NewHybridRetriever(&fakeEmbedder{err: errors.New("embedding down")}, &fakeSearcher{}, retrieverConfig())

	query := models.EnhancedQuery{Enhanced: "anything", QueryType: models.QueryTypeGeneral}

	_, err := hr.Retrieve(context.Background(), query, "", 10)
	assert.ErrorIs(t, err, models.ErrAllLanesFailed)
}

func TestDedupeKeepsHigherSimilarity(t *testing.T) {
	candidates := []models.SearchCandidate{
		textCandidate("a", 0.5),
		textCandidate("b", 0.7),
		textCandidate("a", 0.9),
	}

	got := dedupeCandidates(candidates)
	require.Len(t, got, 2)

	byID := map[string]models.SearchCandidate{}
	for _, c := range got {
		byID[c.ChunkID] = c
	}
	assert.InDelta(t, 0.9, byID["a"].Similarity, 1e-9)
	assert.InDelta(t, 0.7, byID["b"].Similarity, 1e-9)
}
