package llm

import (
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/markdave123-py/crawlvec/internal/core"
)

// TiktokenCounter counts tokens with the cl100k_base encoding used by the
// OpenAI embedding models.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *TiktokenCounter) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// ApproxCounter is a cheap token estimator (~4 chars ≈ 1 token).
type ApproxCounter struct{}

func (ApproxCounter) CountTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

// NewTokenCounter returns a tiktoken counter, or the estimator when the
// encoding cannot be loaded (it is fetched on first use).
func NewTokenCounter() core.TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		slog.Warn("tiktoken unavailable, using approximate token counts", "error", err)
		return ApproxCounter{}
	}
	return &TiktokenCounter{enc: enc}
}
