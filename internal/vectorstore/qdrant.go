package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"ragdocs-api/internal/ai"
	"ragdocs-api/internal/logger"
	"ragdocs-api/internal/telemetry"
	"ragdocs-api/models"
)

// Store is a minimal REST client to Qdrant managing one collection per lane.
// It assumes cosine distance. Collection provisioning is idempotent and safe
// to race from concurrent ingestions.
type Store struct {
	url     string
	apiKey  string
	router  *ai.LaneRouter
	client  *http.Client
	metrics *telemetry.Metrics
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Point is one vector entry keyed by chunk id.
type Point struct {
	ID      string
	Vector  []float32
	Payload models.ChunkPayload
}

func NewStore(cfg Config, router *ai.LaneRouter, metrics *telemetry.Metrics) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Store{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		router:  router,
		client:  &http.Client{Timeout: timeout},
		metrics: metrics,
	}
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// Ensure provisions the lane's collection with its configured dimension.
// No-op when the collection already exists with a matching dimension; a
// dimension disagreement is a hard error since vectors would be rejected or,
// worse, silently wrong.
func (s *Store) Ensure(ctx context.Context, lane models.Lane) error {
	lc, err := s.router.Resolve(lane)
	if err != nil {
		return err
	}

	existing, err := s.collectionDimension(ctx, lc.Collection)
	if err == nil && existing > 0 {
		if existing != lc.Dimension {
			return &models.DimensionMismatchError{Collection: lc.Collection, Want: lc.Dimension, Got: existing}
		}
		return nil
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     lc.Dimension,
			"distance": "Cosine",
		},
	}
	if err := s.putJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, lc.Collection), body, nil); err != nil {
		// A concurrent Ensure may have won the create race. Re-check
		// before treating the conflict as a failure.
		if dim, dimErr := s.collectionDimension(ctx, lc.Collection); dimErr == nil && dim > 0 {
			if dim != lc.Dimension {
				return &models.DimensionMismatchError{Collection: lc.Collection, Want: lc.Dimension, Got: dim}
			}
			return nil
		}
		return err
	}
	logger.Info("Created vector collection", "collection", lc.Collection, "dimension", lc.Dimension)
	return nil
}

func (s *Store) collectionDimension(ctx context.Context, collection string) (int, error) {
	var info collectionInfo
	if err := s.getJSON(ctx, fmt.Sprintf("%s/collections/%s", s.url, collection), &info); err != nil {
		return 0, err
	}
	return info.Result.Config.Params.Vectors.Size, nil
}

// Upsert inserts or replaces points by chunk id in the lane's collection.
func (s *Store) Upsert(ctx context.Context, lane models.Lane, points []Point) error {
	lc, err := s.router.Resolve(lane)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	for _, p := range points {
		if len(p.Vector) != lc.Dimension {
			return &models.DimensionMismatchError{Collection: lc.Collection, Want: lc.Dimension, Got: len(p.Vector)}
		}
	}

	payload := make([]map[string]any, len(points))
	for i, p := range points {
		payload[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	body := map[string]any{"points": payload}
	err = s.putJSON(ctx, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, lc.Collection), body, nil)
	s.record("upsert", string(lane), err)
	return err
}

type searchResponse struct {
	Result []struct {
		Score   float64             `json:"score"`
		Payload models.ChunkPayload `json:"payload"`
	} `json:"result"`
}

// Search returns up to limit nearest points, ordered by increasing distance.
// When docID is non-empty, results are restricted to that document.
func (s *Store) Search(ctx context.Context, lane models.Lane, vector []float32, limit int, docID string) ([]models.SearchCandidate, error) {
	lc, err := s.router.Resolve(lane)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if docID != "" {
		req["filter"] = map[string]any{
			"must": []map[string]any{
				{"key": "doc_id", "match": map[string]any{"value": docID}},
			},
		}
	}

	var resp searchResponse
	err = s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/search", s.url, lc.Collection), req, &resp)
	s.record("search", string(lane), err)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.SearchCandidate, 0, len(resp.Result))
	for _, r := range resp.Result {
		distance := r.Score
		candidates = append(candidates, models.SearchCandidate{
			ChunkID:    r.Payload.ChunkID,
			Distance:   distance,
			Similarity: 1.0 / (1.0 + distance),
			Payload:    r.Payload,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	return candidates, nil
}

// DeleteByDocument removes every point belonging to docID from the lane.
func (s *Store) DeleteByDocument(ctx context.Context, lane models.Lane, docID string) error {
	lc, err := s.router.Resolve(lane)
	if err != nil {
		return err
	}
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "doc_id", "match": map[string]any{"value": docID}},
			},
		},
	}
	err = s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.url, lc.Collection), body, nil)
	s.record("delete", string(lane), err)
	return err
}

type countResponse struct {
	Result struct {
		Count int `json:"count"`
	} `json:"result"`
}

// Count reports the number of points in the lane's collection. Used by the
// periodic consistency check against the metadata store.
func (s *Store) Count(ctx context.Context, lane models.Lane) (int, error) {
	lc, err := s.router.Resolve(lane)
	if err != nil {
		return 0, err
	}
	var resp countResponse
	body := map[string]any{"exact": true}
	if err := s.postJSON(ctx, fmt.Sprintf("%s/collections/%s/points/count", s.url, lc.Collection), body, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Store) record(operation, lane string, err error) {
	if s.metrics != nil {
		s.metrics.RecordVectorOperation(operation, lane, err == nil)
	}
}

func (s *Store) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return s.do(req, out)
}

func (s *Store) putJSON(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *Store) postJSON(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *Store) do(req *http.Request, out any) error {
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", req.Method, req.URL.Path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
