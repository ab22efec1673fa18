package models

import (
	"time"
)

// Lane is one of the two parallel content categories. Each lane has its own
// embedding model, dimensionality and vector collection.
type Lane string

const (
	LaneText Lane = "text"
	LaneCode Lane = "code"
)

// Valid reports whether l is a known lane.
func (l Lane) Valid() bool {
	return l == LaneText || l == LaneCode
}

// Document represents an ingested document. The ID is the SHA-256 hex digest
// of the raw uploaded bytes, so identical bytes always map to the same document.
type Document struct {
	ID          string    `bson:"_id" json:"doc_id"`
	Filename    string    `bson:"filename" json:"filename"`
	TotalChunks int       `bson:"total_chunks" json:"total_chunks"`
	TextChunks  int       `bson:"text_chunks" json:"text_chunks"`
	CodeChunks  int       `bson:"code_chunks" json:"code_chunks"`
	SourceURL   string    `bson:"source_url,omitempty" json:"source_url,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// Chunk is a contiguous span of a document assigned to exactly one lane.
// Start and End are line numbers in the extracted source text; End >= Start.
// Language is only set for code lane chunks.
type Chunk struct {
	ChunkID    string `bson:"chunk_id" json:"chunk_id"`
	DocID      string `bson:"doc_id" json:"doc_id"`
	SourceFile string `bson:"source_file" json:"source_file"`
	Content    string `bson:"content" json:"content"`
	Start      int    `bson:"start" json:"start"`
	End        int    `bson:"end" json:"end"`
	Lane       Lane   `bson:"lane" json:"type"`
	Heading    string `bson:"heading,omitempty" json:"heading"`
	Language   string `bson:"language,omitempty" json:"language"`
}

// StoredChunk is the Mongo representation of a Chunk. Content is compressed
// at rest; CharCount keeps the original length for listings.
type StoredChunk struct {
	ChunkID     string    `bson:"chunk_id"`
	DocID       string    `bson:"doc_id"`
	SourceFile  string    `bson:"source_file"`
	Content     []byte    `bson:"content"`
	Compression string    `bson:"compression"`
	CharCount   int       `bson:"char_count"`
	Start       int       `bson:"start"`
	End         int       `bson:"end"`
	Lane        Lane      `bson:"lane"`
	Heading     string    `bson:"heading,omitempty"`
	Language    string    `bson:"language,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

// ChunkPayload is the point payload stored alongside every vector. Field names
// are part of the wire contract shared by ingestion and search.
type ChunkPayload struct {
	ChunkID    string `json:"chunk_id"`
	DocID      string `json:"doc_id"`
	SourceFile string `json:"source_file"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Type       Lane   `json:"type"`
	Heading    string `json:"heading"`
	Language   string `json:"language"`
	Content    string `json:"content"`
}

// PayloadFromChunk builds the vector point payload for a chunk.
func PayloadFromChunk(c Chunk) ChunkPayload {
	return ChunkPayload{
		ChunkID:    c.ChunkID,
		DocID:      c.DocID,
		SourceFile: c.SourceFile,
		Start:      c.Start,
		End:        c.End,
		Type:       c.Lane,
		Heading:    c.Heading,
		Language:   c.Language,
		Content:    c.Content,
	}
}
