package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragdocs-api/models"
)

func TestStoredChunkRoundTrip(t *testing.T) {
	original := models.Chunk{
		ChunkID:    "chunk-1",
		DocID:      "doc-1",
		SourceFile: "guide.md",
		Content:    strings.Repeat("FastAPI is a modern web framework. ", 40),
		Start:      0,
		End:        12,
		Lane:       models.LaneText,
		Heading:    "What is FastAPI?",
	}

	stored, err := storedFromChunk(original)
	require.NoError(t, err)

	assert.Equal(t, len(original.Content), stored.CharCount)
	assert.NotEmpty(t, stored.Compression)
	assert.Less(t, len(stored.Content), len(original.Content))

	restored, err := chunkFromStored(stored)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}

func TestStoredChunkPreservesCodeFields(t *testing.T) {
	original := models.Chunk{
		ChunkID:    "chunk-2",
		DocID:      "doc-1",
		SourceFile: "guide.md",
		Content:    "def main():\n    pass",
		Start:      12,
		End:        15,
		Lane:       models.LaneCode,
		Language:   "python",
	}

	stored, err := storedFromChunk(original)
	require.NoError(t, err)
	assert.Equal(t, models.LaneCode, stored.Lane)
	assert.Equal(t, "python", stored.Language)

	restored, err := chunkFromStored(stored)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}
