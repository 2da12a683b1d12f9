package chunk

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"

	gverrors "github.com/govreporter/govreporter/internal/errors"
)

// DefaultEncoding is the tokenizer vocabulary used for chunk budgeting.
// It matches the text-embedding-3 model family.
const DefaultEncoding = "cl100k_base"

// TokenCounter measures text length in model tokens. Implementations must
// be safe for concurrent use.
type TokenCounter interface {
	Count(text string) int
}

// NewTokenCounter returns a TokenCounter backed by the named tiktoken
// encoding. When the encoding cannot be loaded (unknown name, cold cache
// with no network) the counter falls back to the chars/4 approximation so
// chunking can proceed offline.
func NewTokenCounter(encoding string) TokenCounter {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		slog.Warn("tokenizer unavailable, falling back to chars/4 estimate",
			slog.String("encoding", encoding),
			gverrors.LogAttr(err))
		return estimateCounter{}
	}
	return &tiktokenCounter{enc: enc}
}

// tiktokenCounter counts tokens against a real BPE vocabulary.
type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

var _ TokenCounter = (*tiktokenCounter)(nil)

func (c *tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// estimateCounter approximates token counts as len(text)/4, the usual
// rule of thumb for English prose.
type estimateCounter struct{}

var _ TokenCounter = estimateCounter{}

func (estimateCounter) Count(text string) int {
	return len(text) / 4
}
