package ingestion_engine

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/markdave123-py/crawlvec/internal/core"
	"github.com/markdave123-py/crawlvec/internal/models"
)

// minBreakRatio is how far into the window a whitespace break must be to be used.
const minBreakRatio = 0.8

// Chunker splits cleaned text into overlapping windows measured in runes.
type Chunker struct {
	Size    int
	Overlap int
	MinLen  int
}

func NewChunker(size, overlap, minLen int) Chunker {
	if size <= 0 {
		size = 800
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	if minLen < 0 {
		minLen = 0
	}
	return Chunker{Size: size, Overlap: overlap, MinLen: minLen}
}

// Split returns the chunk texts for text. Boundaries depend only on text,
// Size and Overlap.
func (c Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= c.Size {
		return c.keep([]string{text})
	}

	runes := []rune(text)
	n := len(runes)
	minBreak := int(float64(c.Size) * minBreakRatio)

	var out []string
	start := 0
	for start < n {
		end := start + c.Size
		if end >= n {
			end = n
		} else {
			for i := end - 1; i >= start+minBreak; i-- {
				if unicode.IsSpace(runes[i]) {
					end = i + 1
					break
				}
			}
		}

		out = append(out, strings.TrimSpace(string(runes[start:end])))
		if end == n {
			break
		}

		next := end - c.Overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return c.keep(out)
}

func (c Chunker) keep(chunks []string) []string {
	out := chunks[:0]
	for _, ch := range chunks {
		if ch == "" || utf8.RuneCountInString(ch) < c.MinLen {
			continue
		}
		out = append(out, ch)
	}
	return out
}

// BuildChunks wraps the texts of one entry with their metadata. When there is
// more than one chunk the source file is suffixed with _chunk_<n>, 1-based.
func BuildChunks(entry models.CanonicalEntry, texts []string, tokens core.TokenCounter, runID string, batch int) []models.Chunk {
	out := make([]models.Chunk, 0, len(texts))
	ts := ""
	if !entry.Timestamp.IsZero() {
		ts = entry.Timestamp.Format("2006-01-02T15:04:05Z07:00")
	}

	for i, t := range texts {
		source := entry.SourceFile
		if len(texts) > 1 {
			source = fmt.Sprintf("%s_chunk_%d", entry.SourceFile, i+1)
		}
		tok := 0
		if tokens != nil {
			tok = tokens.CountTokens(t)
		}
		out = append(out, models.Chunk{
			Content:    t,
			SourceFile: source,
			SourceType: models.SourceTypeWebsite,
			Metadata: models.ChunkMetadata{
				URL:         entry.URL,
				Domain:      entry.Domain,
				Collection:  entry.SourceCollection,
				Depth:       entry.Depth,
				ChunkIndex:  i,
				TotalChunks: len(texts),
				Timestamp:   ts,
				Length:      utf8.RuneCountInString(t),
				Tokens:      tok,
				RunID:       runID,
				Batch:       batch,
				Extra:       entry.Extra,
			},
		})
	}
	return out
}
