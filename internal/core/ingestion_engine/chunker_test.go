package ingestion_engine

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/crawlvec/internal/models"
)

// words returns n runes of distinct space-terminated ten-rune words.
func words(n int) string {
	var b strings.Builder
	for i := 0; i < n/10; i++ {
		fmt.Fprintf(&b, "w%08d ", i)
	}
	return b.String()
}

func TestChunker_ShortTextIsOneChunk(t *testing.T) {
	c := NewChunker(800, 100, 50)
	text := strings.Repeat("가", 800)
	assert.Equal(t, []string{text}, c.Split(text))
}

func TestChunker_FourChunksWithOverlap(t *testing.T) {
	c := NewChunker(800, 100, 50)
	text := words(2500)
	require.Equal(t, 2500, utf8.RuneCountInString(text))

	chunks := c.Split(text)
	require.Len(t, chunks, 4)
	for i, ch := range chunks {
		n := utf8.RuneCountInString(ch)
		assert.GreaterOrEqual(t, n, 50, "chunk %d", i)
		assert.LessOrEqual(t, n, 800, "chunk %d", i)
	}

	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		head := string([]rune(chunks[i])[:90])
		assert.Contains(t, string(prev[len(prev)-100:]), head, "chunk %d overlaps the previous one", i)
	}
}

func TestChunker_BreaksOnWhitespaceLateInWindow(t *testing.T) {
	c := NewChunker(100, 10, 1)
	// a space at rune 90 is inside the last 20% of the window
	text := strings.Repeat("x", 90) + " " + strings.Repeat("y", 200)

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, strings.Repeat("x", 90), chunks[0])
}

func TestChunker_IgnoresEarlyWhitespace(t *testing.T) {
	c := NewChunker(100, 10, 1)
	// the only space is at rune 40, before 80% of the window
	text := strings.Repeat("x", 40) + " " + strings.Repeat("y", 200)

	chunks := c.Split(text)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 100, utf8.RuneCountInString(chunks[0]))
}

func TestChunker_Deterministic(t *testing.T) {
	c := NewChunker(300, 50, 20)
	text := pageBody("철학", 40)
	first := c.Split(text)
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, c.Split(text))
	}
}

func TestChunker_DegenerateInputTerminates(t *testing.T) {
	c := NewChunker(10, 50, 0) // overlap normalized below size
	assert.Equal(t, 9, c.Overlap)

	chunks := c.Split(strings.Repeat("z", 25))
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(ch), 10)
	}
}

func TestChunker_DropsShortTail(t *testing.T) {
	c := NewChunker(100, 0, 50)
	text := strings.Repeat("w", 100) + " " + strings.Repeat("t", 10)
	chunks := c.Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, strings.Repeat("w", 100), chunks[0])
}

func TestBuildChunks(t *testing.T) {
	entry := models.CanonicalEntry{
		URL:              "https://www.example.ac.kr/a",
		Domain:           "www.example.ac.kr",
		SourceCollection: "strategic",
		SourceFile:       "strategic_page_000007.txt",
		Depth:            2,
		Timestamp:        time.Date(2025, 5, 5, 1, 2, 3, 0, time.UTC),
	}

	chunks := BuildChunks(entry, []string{"첫 번째 조각", "second part"}, nil, "run-1", 4)
	require.Len(t, chunks, 2)
	assert.Equal(t, "strategic_page_000007.txt_chunk_1", chunks[0].SourceFile)
	assert.Equal(t, "strategic_page_000007.txt_chunk_2", chunks[1].SourceFile)
	assert.Equal(t, models.SourceTypeWebsite, chunks[0].SourceType)

	md := chunks[1].Metadata
	assert.Equal(t, 1, md.ChunkIndex)
	assert.Equal(t, 2, md.TotalChunks)
	assert.Equal(t, 11, md.Length)
	assert.Equal(t, "strategic", md.Collection)
	assert.Equal(t, "2025-05-05T01:02:03Z", md.Timestamp)
	assert.Equal(t, "run-1", md.RunID)
	assert.Equal(t, 4, md.Batch)

	single := BuildChunks(entry, []string{"only"}, nil, "run-1", 0)
	assert.Equal(t, "strategic_page_000007.txt", single[0].SourceFile)
}
