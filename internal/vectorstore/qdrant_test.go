package vectorstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"ragdocs-api/internal/ai"
	"ragdocs-api/internal/config"
	"ragdocs-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter() *ai.LaneRouter {
	return ai.NewLaneRouter(&config.Config{
		TextCollection: "text_chunks",
		TextVectorDim:  4,
		CodeCollection: "code_chunks",
		CodeVectorDim:  8,
	})
}

func newTestStore(t *testing.T, handler http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewStore(Config{URL: srv.URL}, testRouter(), nil)
}

func TestEnsureCreatesMissingCollection(t *testing.T) {
	var created bool
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/collections/text_chunks":
			http.Error(w, `{"status":{"error":"not found"}}`, http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/collections/text_chunks":
			var body struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, 4, body.Vectors.Size)
			assert.Equal(t, "Cosine", body.Vectors.Distance)
			created = true
			w.Write([]byte(`{"result":true}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	require.NoError(t, store.Ensure(context.Background(), models.LaneText))
	assert.True(t, created)
}

func TestEnsureIsIdempotent(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":4}}}}}`))
	})

	require.NoError(t, store.Ensure(context.Background(), models.LaneText))
}

func TestEnsureDimensionMismatch(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"config":{"params":{"vectors":{"size":768}}}}}`))
	})

	err := store.Ensure(context.Background(), models.LaneText)
	require.Error(t, err)
	assert.True(t, models.IsDimensionMismatch(err))
}

func TestEnsureUnknownLane(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {})

	err := store.Ensure(context.Background(), models.Lane("image"))
	assert.ErrorIs(t, err, models.ErrLaneNotConfigured)
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	err := store.Upsert(context.Background(), models.LaneText, []Point{
		{ID: "p1", Vector: []float32{1, 2, 3}}, // lane expects 4
	})
	require.Error(t, err)
	assert.True(t, models.IsDimensionMismatch(err))
}

func TestSearchOrdersByDistanceAndDerivesSimilarity(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/text_chunks/points/search", r.URL.Path)
		w.Write([]byte(`{"result":[
			{"score": 0.9, "payload": {"chunk_id": "far", "doc_id": "d1", "type": "text"}},
			{"score": 0.1, "payload": {"chunk_id": "near", "doc_id": "d1", "type": "text"}}
		]}`))
	})

	got, err := store.Search(context.Background(), models.LaneText, []float32{1, 0, 0, 0}, 5, "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].ChunkID)
	assert.Equal(t, "far", got[1].ChunkID)
	assert.InDelta(t, 1.0/1.1, got[0].Similarity, 1e-9)
	assert.InDelta(t, 1.0/1.9, got[1].Similarity, 1e-9)
}

func TestSearchAppliesDocumentFilter(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		filter, ok := body["filter"].(map[string]any)
		require.True(t, ok, "filter missing from scoped search")
		must := filter["must"].([]any)
		clause := must[0].(map[string]any)
		assert.Equal(t, "doc_id", clause["key"])
		assert.Equal(t, "d42", clause["match"].(map[string]any)["value"])
		w.Write([]byte(`{"result":[]}`))
	})

	got, err := store.Search(context.Background(), models.LaneText, []float32{1, 0, 0, 0}, 5, "d42")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeleteByDocument(t *testing.T) {
	var deleted bool
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/code_chunks/points/delete", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Contains(t, body, "filter")
		deleted = true
		w.Write([]byte(`{"result":{"status":"acknowledged"}}`))
	})

	require.NoError(t, store.DeleteByDocument(context.Background(), models.LaneCode, "d1"))
	assert.True(t, deleted)
}

func TestCount(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/text_chunks/points/count", r.URL.Path)
		w.Write([]byte(`{"result":{"count":42}}`))
	})

	n, err := store.Count(context.Background(), models.LaneText)
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}
