package models

import "time"

// QueryType is a coarse classification of the user's question. It widens or
// narrows the search (which lanes, how many topics) and shifts rerank weights,
// but never blocks retrieval.
type QueryType string

const (
	QueryTypeDefinition      QueryType = "definition"
	QueryTypeHowTo           QueryType = "how-to"
	QueryTypeExample         QueryType = "example"
	QueryTypeComparison      QueryType = "comparison"
	QueryTypeTroubleshooting QueryType = "troubleshooting"
	QueryTypeGeneral         QueryType = "general"
	QueryTypeMultiStep       QueryType = "multi-step"
)

// EnhancedQuery is the per-request output of query enhancement.
type EnhancedQuery struct {
	Original  string    `json:"original"`
	Enhanced  string    `json:"enhanced_query"`
	Keywords  []string  `json:"keywords"`
	QueryType QueryType `json:"query_type"`
	// SubTopics is only populated for multi-step questions; each topic is
	// searched independently and the candidate sets are merged.
	SubTopics []string `json:"sub_topics,omitempty"`
	// Language is an explicitly requested programming language parsed from
	// the query ("in Python"), empty if none.
	Language string `json:"language,omitempty"`
}

// SearchCandidate is one vector hit from a single collection query. The full
// payload is carried so no secondary lookup is needed downstream.
type SearchCandidate struct {
	ChunkID    string       `json:"chunk_id"`
	Distance   float64      `json:"distance"`
	Similarity float64      `json:"similarity"`
	Payload    ChunkPayload `json:"payload"`
}

// RankedChunk is a reranked candidate with its blended score.
type RankedChunk struct {
	SearchCandidate
	Score float64 `json:"score"`
}

// QueryRequest is the body of POST /chat/query.
type QueryRequest struct {
	Query string `json:"query" binding:"required"`
	DocID string `json:"doc_id"`
	TopK  int    `json:"top_k"`
}

// QuerySource describes one retrieved chunk in the API response.
type QuerySource struct {
	Content        string       `json:"content"`
	Metadata       ChunkPayload `json:"metadata"`
	RelevanceScore float64      `json:"relevance_score"`
}

// QueryResponse is the body returned by POST /chat/query.
type QueryResponse struct {
	Answer      string        `json:"answer"`
	Sources     []QuerySource `json:"sources"`
	ContextUsed []string      `json:"context_used"`
	QueryType   QueryType     `json:"query_type"`
	CacheHit    bool          `json:"cache_hit"`
	LatencyMS   int64         `json:"latency_ms"`
	Timestamp   time.Time     `json:"timestamp"`
}

// UploadResponse is returned after a document upload.
type UploadResponse struct {
	DocID       string `json:"doc_id"`
	Filename    string `json:"filename"`
	TotalChunks int    `json:"total_chunks"`
	TextChunks  int    `json:"text_chunks"`
	CodeChunks  int    `json:"code_chunks"`
	Status      string `json:"status"`
	TaskID      string `json:"task_id,omitempty"`
}

// Upload status values.
const (
	UploadStatusSuccess       = "success"
	UploadStatusAlreadyExists = "already_exists"
	UploadStatusQueued        = "queued"
)
