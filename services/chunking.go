package services

import (
	"strings"

	"ragdocs-api/models"

	"github.com/google/uuid"
)

// ChunkingService splits markdown-flavoured documentation into lane-tagged
// chunks. Fenced code blocks become code chunks, everything else becomes text
// chunks. Chunk spans are half-open line ranges that tile the source: every
// line of the input belongs to exactly one chunk.
type ChunkingService struct {
	maxChunkChars int
}

// NewChunkingService creates a chunking service. maxChunkChars is a soft
// limit: text chunks break at the first line boundary past it, so a single
// long line is never split mid-word.
func NewChunkingService(maxChunkChars int) *ChunkingService {
	if maxChunkChars <= 0 {
		maxChunkChars = 600
	}
	return &ChunkingService{maxChunkChars: maxChunkChars}
}

func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

func fenceLanguage(line string) string {
	lang := strings.TrimPrefix(strings.TrimSpace(line), "```")
	return strings.ToLower(strings.TrimSpace(lang))
}

func isHeadingLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return false
	}
	rest := strings.TrimLeft(trimmed, "#")
	return rest == "" || strings.HasPrefix(rest, " ")
}

// ChunkDocument splits content into ordered chunks for one document. Start
// and End on each chunk are line numbers (End exclusive). Empty or
// whitespace-only input yields no chunks.
func (cs *ChunkingService) ChunkDocument(docID, sourceFile, content string) []models.Chunk {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")

	var chunks []models.Chunk
	heading := ""

	// Pending text accumulation. pendingStart tracks the span start even
	// when only blank lines have been seen, so blank runs merge into the
	// following chunk instead of producing empty chunks.
	pendingStart := -1
	pendingEnd := 0
	pendingChars := 0
	var pendingLines []string

	flushText := func() {
		if pendingStart < 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(pendingLines, "\n"))
		if text == "" {
			// Blank-only span: fold it into the previous chunk so
			// spans stay gapless, or leave it pending for the next.
			if len(chunks) > 0 {
				chunks[len(chunks)-1].End = pendingEnd
				pendingStart = -1
				pendingLines = nil
				pendingChars = 0
			}
			return
		}
		chunks = append(chunks, models.Chunk{
			ChunkID:    uuid.NewString(),
			DocID:      docID,
			SourceFile: sourceFile,
			Content:    text,
			Start:      pendingStart,
			End:        pendingEnd,
			Lane:       models.LaneText,
			Heading:    heading,
		})
		pendingStart = -1
		pendingLines = nil
		pendingChars = 0
	}

	i := 0
	for i < len(lines) {
		line := lines[i]

		if isFenceLine(line) {
			flushText()
			// A still-pending blank run (no prior chunk to absorb it)
			// extends the code chunk's span backwards.
			codeStart := i
			if pendingStart >= 0 {
				codeStart = pendingStart
				pendingStart = -1
				pendingLines = nil
				pendingChars = 0
			}

			lang := fenceLanguage(line)
			var body []string
			i++
			for i < len(lines) {
				if isFenceLine(lines[i]) {
					i++
					break
				}
				body = append(body, lines[i])
				i++
			}
			// An unclosed fence runs to end of input.

			chunks = append(chunks, models.Chunk{
				ChunkID:    uuid.NewString(),
				DocID:      docID,
				SourceFile: sourceFile,
				Content:    strings.Join(body, "\n"),
				Start:      codeStart,
				End:        i,
				Lane:       models.LaneCode,
				Heading:    heading,
				Language:   lang,
			})
			continue
		}

		if isHeadingLine(line) {
			flushText()
			heading = strings.TrimSpace(line)
		}

		if pendingStart < 0 {
			pendingStart = i
		}
		pendingLines = append(pendingLines, line)
		pendingEnd = i + 1
		pendingChars += len(line) + 1
		i++

		// Soft size limit: break at the next line boundary once the
		// accumulated text passes it.
		if pendingChars >= cs.maxChunkChars {
			flushText()
		}
	}

	flushText()

	// A trailing blank-only run with no chunk before it means the whole
	// input was whitespace.
	return chunks
}

// SplitByLane partitions chunks into per-lane slices preserving order.
func SplitByLane(chunks []models.Chunk) map[models.Lane][]models.Chunk {
	byLane := make(map[models.Lane][]models.Chunk, 2)
	for _, c := range chunks {
		byLane[c.Lane] = append(byLane[c.Lane], c)
	}
	return byLane
}
