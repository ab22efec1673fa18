package services

import (
	"strings"
	"testing"

	"ragdocs-api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkDocumentTextAndCode(t *testing.T) {
	content := "# What is FastAPI?\n\nFastAPI is a framework.\n\n```python\nprint(1)\n```"
	cs := NewChunkingService(600)

	chunks := cs.ChunkDocument("doc1", "intro.md", content)
	require.Len(t, chunks, 2)

	text := chunks[0]
	assert.Equal(t, models.LaneText, text.Lane)
	assert.Equal(t, "# What is FastAPI?\n\nFastAPI is a framework.", text.Content)
	assert.Equal(t, "# What is FastAPI?", text.Heading)
	assert.Equal(t, "doc1", text.DocID)

	code := chunks[1]
	assert.Equal(t, models.LaneCode, code.Lane)
	assert.Equal(t, "print(1)", code.Content)
	assert.Equal(t, "python", code.Language)
	assert.Equal(t, "# What is FastAPI?", code.Heading)
}

func TestChunkDocumentSpansTileInput(t *testing.T) {
	content := "# Intro\n\nSome text here.\n\n```go\nfmt.Println(\"hi\")\n```\n\nMore text after the code.\n"
	cs := NewChunkingService(600)

	chunks := cs.ChunkDocument("doc1", "guide.md", content)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 0, chunks[0].Start)
	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].End, chunks[i].Start, "gap or overlap between chunks %d and %d", i-1, i)
	}
	totalLines := len(strings.Split(content, "\n"))
	assert.Equal(t, totalLines, chunks[len(chunks)-1].End)
}

func TestChunkDocumentEmptyInput(t *testing.T) {
	cs := NewChunkingService(600)

	assert.Empty(t, cs.ChunkDocument("doc1", "empty.md", ""))
	assert.Empty(t, cs.ChunkDocument("doc1", "blank.md", "\n\n   \n"))
}

func TestChunkDocumentSoftLimit(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("This sentence pads out a line of documentation text.\n")
	}
	cs := NewChunkingService(200)

	chunks := cs.ChunkDocument("doc1", "long.md", sb.String())
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.Equal(t, models.LaneText, c.Lane)
		// Breaks happen at line boundaries, so a chunk can run past the
		// limit by at most one line.
		assert.LessOrEqual(t, len(c.Content), 200+len("This sentence pads out a line of documentation text."))
		assert.False(t, strings.HasPrefix(c.Content, " "))
	}
}

func TestChunkDocumentUnclosedFence(t *testing.T) {
	content := "Text before.\n\n```js\nconsole.log(1)\nconsole.log(2)"
	cs := NewChunkingService(600)

	chunks := cs.ChunkDocument("doc1", "broken.md", content)
	require.Len(t, chunks, 2)

	code := chunks[1]
	assert.Equal(t, models.LaneCode, code.Lane)
	assert.Equal(t, "js", code.Language)
	assert.Equal(t, "console.log(1)\nconsole.log(2)", code.Content)
	assert.Equal(t, len(strings.Split(content, "\n")), code.End)
}

func TestChunkDocumentHeadingChangesChunk(t *testing.T) {
	content := "# First\n\nAlpha text.\n\n## Second\n\nBeta text.\n"
	cs := NewChunkingService(600)

	chunks := cs.ChunkDocument("doc1", "sections.md", content)
	require.Len(t, chunks, 2)
	assert.Equal(t, "# First", chunks[0].Heading)
	assert.Contains(t, chunks[0].Content, "Alpha text.")
	assert.Equal(t, "## Second", chunks[1].Heading)
	assert.Contains(t, chunks[1].Content, "Beta text.")
}

func TestSplitByLane(t *testing.T) {
	chunks := []models.Chunk{
		{ChunkID: "a", Lane: models.LaneText},
		{ChunkID: "b", Lane: models.LaneCode},
		{ChunkID: "c", Lane: models.LaneText},
	}

	byLane := SplitByLane(chunks)
	require.Len(t, byLane[models.LaneText], 2)
	require.Len(t, byLane[models.LaneCode], 1)
	assert.Equal(t, "a", byLane[models.LaneText][0].ChunkID)
	assert.Equal(t, "c", byLane[models.LaneText][1].ChunkID)
	assert.Equal(t, "b", byLane[models.LaneCode][0].ChunkID)
}
