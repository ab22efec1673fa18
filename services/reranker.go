package services

import (
	"sort"
	"strings"

	"ragdocs-api/internal/config"
	"ragdocs-api/models"
)

// Reranker recomputes relevance for search candidates using keyword overlap,
// heading matches and query-type/language affinity on top of the raw vector
// similarity, then returns the top K. All weights are tunable through config.
type Reranker struct {
	keywordBonus      float64
	keywordCap        float64
	headingDefinition float64
	headingPartial    float64
	typeMatch         float64
	languageMatch     float64
	similarityFloor   float64
	leniencyMatches   int
}

func NewReranker(cfg *config.Config) *Reranker {
	return &Reranker{
		keywordBonus:      cfg.RerankKeywordBonus,
		keywordCap:        cfg.RerankKeywordCap,
		headingDefinition: cfg.RerankHeadingDefinition,
		headingPartial:    cfg.RerankHeadingPartial,
		typeMatch:         cfg.RerankTypeMatch,
		languageMatch:     cfg.RerankLanguageMatch,
		similarityFloor:   cfg.SimilarityFloor,
		leniencyMatches:   cfg.RerankLeniencyMatches,
	}
}

func codeIntent(qt models.QueryType) bool {
	switch qt {
	case models.QueryTypeHowTo, models.QueryTypeExample, models.QueryTypeTroubleshooting:
		return true
	}
	return false
}

// countKeywordMatches counts distinct query keywords appearing in the chunk
// content or heading, case-insensitively.
func countKeywordMatches(content, heading string, keywords []string) int {
	content = strings.ToLower(content)
	heading = strings.ToLower(heading)
	matches := 0
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(content, kw) || strings.Contains(heading, kw) {
			matches++
		}
	}
	return matches
}

func (r *Reranker) headingBonus(heading string, qt models.QueryType, keywords []string) float64 {
	if heading == "" {
		return 0
	}
	lower := strings.ToLower(heading)

	if qt == models.QueryTypeDefinition && strings.Contains(lower, "what is") {
		for _, kw := range keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				return r.headingDefinition
			}
		}
	}
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return r.headingPartial
		}
	}
	return 0
}

func (r *Reranker) score(c models.SearchCandidate, query models.EnhancedQuery, matches int) float64 {
	score := c.Similarity

	keywordBonus := float64(matches) * r.keywordBonus
	if keywordBonus > r.keywordCap {
		keywordBonus = r.keywordCap
	}
	score += keywordBonus

	score += r.headingBonus(c.Payload.Heading, query.QueryType, query.Keywords)

	if codeIntent(query.QueryType) {
		if c.Payload.Type == models.LaneCode {
			score += r.typeMatch
		}
	} else if c.Payload.Type == models.LaneText {
		score += r.typeMatch
	}

	if query.Language != "" && c.Payload.Language == query.Language {
		score += r.languageMatch
	}

	return score
}

// Rerank scores candidates and returns the top K by descending score. Ties
// break by raw similarity, then chunk id, so output order is deterministic.
// Candidates below the similarity floor are dropped unless they match enough
// distinct keywords to be kept anyway.
func (r *Reranker) Rerank(candidates []models.SearchCandidate, query models.EnhancedQuery, k int) []models.RankedChunk {
	ranked := make([]models.RankedChunk, 0, len(candidates))
	for _, c := range candidates {
		matches := countKeywordMatches(c.Payload.Content, c.Payload.Heading, query.Keywords)
		if c.Similarity < r.similarityFloor && matches < r.leniencyMatches {
			continue
		}
		ranked = append(ranked, models.RankedChunk{
			SearchCandidate: c,
			Score:           r.score(c, query, matches),
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Similarity != ranked[j].Similarity {
			return ranked[i].Similarity > ranked[j].Similarity
		}
		return ranked[i].ChunkID < ranked[j].ChunkID
	})

	if k > 0 && len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
