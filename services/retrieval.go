package services

import (
	"context"
	"fmt"
	"sync"

	"ragdocs-api/internal/config"
	"ragdocs-api/internal/logger"
	"ragdocs-api/models"
)

// QueryEmbedder produces a query vector in a lane's embedding space.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, lane models.Lane, text string) ([]float32, error)
}

// LaneSearcher runs a nearest-neighbour search in one lane's collection.
type LaneSearcher interface {
	Search(ctx context.Context, lane models.Lane, vector []float32, limit int, docID string) ([]models.SearchCandidate, error)
}

// codeIndicators are query terms that pull in the code lane even when the
// query type alone does not suggest code intent.
var codeIndicators = map[string]bool{
	"code":      true,
	"function":  true,
	"class":     true,
	"method":    true,
	"snippet":   true,
	"syntax":    true,
	"implement": true,
	"import":    true,
	"api":       true,
	"script":    true,
}

// HybridRetriever fans a query out across lanes and sub-topics concurrently
// and merges the candidate sets. A single failing search degrades to missing
// candidates; only all searches failing is an error.
type HybridRetriever struct {
	embedder QueryEmbedder
	searcher LaneSearcher
	margin   int
}

func NewHybridRetriever(embedder QueryEmbedder, searcher LaneSearcher, cfg *config.Config) *HybridRetriever {
	return &HybridRetriever{
		embedder: embedder,
		searcher: searcher,
		margin:   cfg.SearchMargin,
	}
}

// lanesFor decides which lanes a query touches. Text is always searched.
func lanesFor(query models.EnhancedQuery) []models.Lane {
	lanes := []models.Lane{models.LaneText}
	if codeIntent(query.QueryType) {
		return append(lanes, models.LaneCode)
	}
	for _, kw := range query.Keywords {
		if codeIndicators[kw] {
			return append(lanes, models.LaneCode)
		}
	}
	return lanes
}

// topicsFor returns the search texts: the enhanced query itself, plus each
// sub-topic for multi-step questions.
func topicsFor(query models.EnhancedQuery) []string {
	topics := []string{query.Enhanced}
	for _, st := range query.SubTopics {
		if st != "" && st != query.Enhanced {
			topics = append(topics, st)
		}
	}
	return topics
}

// Retrieve searches every relevant lane (and sub-topic) concurrently,
// over-fetching by a small additive margin to leave headroom for reranking,
// and returns deduplicated candidates in no particular order.
func (hr *HybridRetriever) Retrieve(ctx context.Context, query models.EnhancedQuery, docID string, k int) ([]models.SearchCandidate, error) {
	lanes := lanesFor(query)
	topics := topicsFor(query)
	limit := k + hr.margin

	type task struct {
		lane  models.Lane
		topic string
	}
	tasks := make([]task, 0, len(lanes)*len(topics))
	for _, lane := range lanes {
		for _, topic := range topics {
			tasks = append(tasks, task{lane: lane, topic: topic})
		}
	}

	var (
		mu         sync.Mutex
		candidates []models.SearchCandidate
		failures   int
		lastErr    error
	)

	var wg sync.WaitGroup
	for _, tk := range tasks {
		wg.Add(1)
		go func(tk task) {
			defer wg.Done()

			vector, err := hr.embedder.EmbedQuery(ctx, tk.lane, tk.topic)
			if err == nil {
				var found []models.SearchCandidate
				found, err = hr.searcher.Search(ctx, tk.lane, vector, limit, docID)
				if err == nil {
					mu.Lock()
					candidates = append(candidates, found...)
					mu.Unlock()
					return
				}
			}

			logger.Warn("Lane search failed, continuing with partial results",
				"lane", tk.lane, "error", err)
			mu.Lock()
			failures++
			lastErr = err
			mu.Unlock()
		}(tk)
	}
	wg.Wait()

	if failures == len(tasks) {
		return nil, fmt.Errorf("%w: %v", models.ErrAllLanesFailed, lastErr)
	}
	return dedupeCandidates(candidates), nil
}

// dedupeCandidates collapses duplicate chunk ids, keeping the occurrence
// with the higher similarity.
func dedupeCandidates(candidates []models.SearchCandidate) []models.SearchCandidate {
	best := make(map[string]int, len(candidates))
	out := make([]models.SearchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if idx, seen := best[c.ChunkID]; seen {
			if c.Similarity > out[idx].Similarity {
				out[idx] = c
			}
			continue
		}
		best[c.ChunkID] = len(out)
		out = append(out, c)
	}
	return out
}
