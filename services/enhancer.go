package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"ragdocs-api/internal/ai"
	"ragdocs-api/internal/logger"
	"ragdocs-api/models"
)

// Enhancer expands a raw user question into an EnhancedQuery. Implementations
// must never fail: enhancement is best-effort and the query path always gets a
// usable result back.
type Enhancer interface {
	Enhance(ctx context.Context, query string) models.EnhancedQuery
}

var queryStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "is": true, "are": true, "was": true, "were": true,
	"what": true, "how": true, "why": true, "when": true, "where": true,
	"who": true, "which": true, "do": true, "does": true, "did": true,
	"can": true, "could": true, "should": true, "would": true, "i": true,
	"you": true, "it": true, "this": true, "that": true, "my": true,
	"me": true, "about": true, "please": true,
}

var wordTrimRegex = regexp.MustCompile(`^[^a-z0-9+#]+|[^a-z0-9+#]+$`)

// extractQueryKeywords pulls content-bearing terms from the query, lowercased,
// stopwords removed, order preserved, deduplicated.
func extractQueryKeywords(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	seen := make(map[string]bool, len(words))
	keywords := make([]string, 0, len(words))
	for _, word := range words {
		word = wordTrimRegex.ReplaceAllString(word, "")
		if len(word) < 3 || queryStopWords[word] {
			continue
		}
		if seen[word] {
			continue
		}
		seen[word] = true
		keywords = append(keywords, word)
		if len(keywords) >= 8 {
			break
		}
	}
	return keywords
}

var languageAliases = map[string]string{
	"python":     "python",
	"go":         "go",
	"golang":     "go",
	"javascript": "javascript",
	"js":         "javascript",
	"typescript": "typescript",
	"java":       "java",
	"rust":       "rust",
	"ruby":       "ruby",
	"php":        "php",
	"sql":        "sql",
	"bash":       "bash",
	"shell":      "bash",
	"c":          "c",
	"c++":        "cpp",
	"cpp":        "cpp",
	"csharp":     "csharp",
	"c#":         "csharp",
}

var requestedLanguageRegex = regexp.MustCompile(`(?i)\b(?:in|using|with)\s+([a-z+#]+)\b`)

// detectRequestedLanguage finds an explicitly requested programming language
// like "in Python" or "using Go". Returns "" when none is named.
func detectRequestedLanguage(query string) string {
	for _, m := range requestedLanguageRegex.FindAllStringSubmatch(query, -1) {
		if lang, ok := languageAliases[strings.ToLower(m[1])]; ok {
			return lang
		}
	}
	return ""
}

var validQueryTypes = map[models.QueryType]bool{
	models.QueryTypeDefinition:      true,
	models.QueryTypeHowTo:           true,
	models.QueryTypeExample:         true,
	models.QueryTypeComparison:      true,
	models.QueryTypeTroubleshooting: true,
	models.QueryTypeGeneral:         true,
	models.QueryTypeMultiStep:       true,
}

// LocalEnhancer is the no-dependency fallback: term extraction only, query
// type always general, no sub-topics. It cannot fail, which keeps the query
// path available when the model is down.
type LocalEnhancer struct{}

func NewLocalEnhancer() *LocalEnhancer {
	return &LocalEnhancer{}
}

func (le *LocalEnhancer) Enhance(_ context.Context, query string) models.EnhancedQuery {
	return models.EnhancedQuery{
		Original:  query,
		Enhanced:  query,
		Keywords:  extractQueryKeywords(query),
		QueryType: models.QueryTypeGeneral,
		Language:  detectRequestedLanguage(query),
	}
}

// GeminiEnhancer asks the model for a structured enhancement and falls back
// to LocalEnhancer on any failure (breaker open, rate limited, bad JSON).
type GeminiEnhancer struct {
	client   *ai.GeminiClient
	fallback *LocalEnhancer
}

func NewGeminiEnhancer(client *ai.GeminiClient) *GeminiEnhancer {
	return &GeminiEnhancer{
		client:   client,
		fallback: NewLocalEnhancer(),
	}
}

type enhancementPayload struct {
	EnhancedQuery string   `json:"enhanced_query"`
	Keywords      []string `json:"keywords"`
	QueryType     string   `json:"query_type"`
	SubTopics     []string `json:"sub_topics"`
}

var jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)

func buildEnhancementPrompt(query string) string {
	return fmt.Sprintf(`Analyze this documentation search query and respond with ONLY a JSON object, no markdown fences.

Query: %q

JSON fields:
- "enhanced_query": the query rewritten with relevant technical terms added
- "keywords": up to 8 lowercase search keywords
- "query_type": one of "definition", "how-to", "example", "comparison", "troubleshooting", "general", "multi-step"
- "sub_topics": for "multi-step" queries only, 2-4 independent sub-questions in order; otherwise []`, query)
}

func (ge *GeminiEnhancer) Enhance(ctx context.Context, query string) models.EnhancedQuery {
	raw, err := ge.client.Generate(ctx, buildEnhancementPrompt(query))
	if err != nil {
		logger.Warn("Query enhancement unavailable, using local fallback",
			"error", fmt.Errorf("%w: %v", models.ErrEnhancementUnavailable, err))
		return ge.fallback.Enhance(ctx, query)
	}

	parsed, err := parseEnhancement(raw)
	if err != nil {
		logger.Warn("Query enhancement response unparseable, using local fallback", "error", err)
		return ge.fallback.Enhance(ctx, query)
	}

	enhanced := models.EnhancedQuery{
		Original:  query,
		Enhanced:  strings.TrimSpace(parsed.EnhancedQuery),
		Keywords:  parsed.Keywords,
		QueryType: models.QueryType(strings.ToLower(strings.TrimSpace(parsed.QueryType))),
		SubTopics: parsed.SubTopics,
		Language:  detectRequestedLanguage(query),
	}
	if enhanced.Enhanced == "" {
		enhanced.Enhanced = query
	}
	if len(enhanced.Keywords) == 0 {
		enhanced.Keywords = extractQueryKeywords(query)
	}
	if !validQueryTypes[enhanced.QueryType] {
		enhanced.QueryType = models.QueryTypeGeneral
	}
	// Sub-topics only mean anything for multi-step queries.
	if enhanced.QueryType != models.QueryTypeMultiStep {
		enhanced.SubTopics = nil
	}
	return enhanced
}

// parseEnhancement tolerates models that wrap the JSON in markdown fences or
// prose, extracting the first JSON object in the response.
func parseEnhancement(raw string) (*enhancementPayload, error) {
	candidate := jsonObjectRegex.FindString(raw)
	if candidate == "" {
		return nil, fmt.Errorf("no JSON object in enhancement response")
	}
	var payload enhancementPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse enhancement response: %w", err)
	}
	return &payload, nil
}
