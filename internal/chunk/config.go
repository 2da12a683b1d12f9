package chunk

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the token budget for one document type.
//
// All sizes are measured with the package's TokenCounter. OverlapRatio is
// the fraction of TargetTokens carried from the tail of one chunk into the
// head of the next.
type Config struct {
	MinTokens    int     `yaml:"min_tokens" json:"min_tokens"`
	TargetTokens int     `yaml:"target_tokens" json:"target_tokens"`
	MaxTokens    int     `yaml:"max_tokens" json:"max_tokens"`
	OverlapRatio float64 `yaml:"overlap_ratio" json:"overlap_ratio"`
}

// ScotusDefaults returns the chunking budget for Supreme Court opinions.
func ScotusDefaults() Config {
	return Config{
		MinTokens:    500,
		TargetTokens: 600,
		MaxTokens:    800,
		OverlapRatio: 0.15,
	}
}

// EODefaults returns the chunking budget for Executive Orders.
func EODefaults() Config {
	return Config{
		MinTokens:    240,
		TargetTokens: 340,
		MaxTokens:    400,
		OverlapRatio: 0.10,
	}
}

// OverlapTokens returns the absolute token overlap between adjacent chunks.
func (c Config) OverlapTokens() int {
	return int(float64(c.TargetTokens) * c.OverlapRatio)
}

// Validate checks the chunking invariants.
func (c Config) Validate() error {
	if c.MinTokens <= 0 {
		return fmt.Errorf("min_tokens must be positive, got %d", c.MinTokens)
	}
	if c.TargetTokens < c.MinTokens {
		return fmt.Errorf("target_tokens must be >= min_tokens, got %d < %d", c.TargetTokens, c.MinTokens)
	}
	if c.MaxTokens < c.TargetTokens {
		return fmt.Errorf("max_tokens must be >= target_tokens, got %d < %d", c.MaxTokens, c.TargetTokens)
	}
	if c.OverlapRatio < 0 || c.OverlapRatio >= 1 {
		return fmt.Errorf("overlap_ratio must be in [0, 1), got %g", c.OverlapRatio)
	}
	return nil
}

// ApplyEnv returns a copy of c with RAG_<prefix>_* environment overrides
// applied. Unset or malformed values leave the field unchanged.
//
// Recognized keys for prefix "SCOTUS":
//
//	RAG_SCOTUS_MIN_TOKENS
//	RAG_SCOTUS_TARGET_TOKENS
//	RAG_SCOTUS_MAX_TOKENS
//	RAG_SCOTUS_OVERLAP_RATIO
func (c Config) ApplyEnv(prefix string) Config {
	if v := os.Getenv("RAG_" + prefix + "_MIN_TOKENS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.MinTokens = n
		}
	}
	if v := os.Getenv("RAG_" + prefix + "_TARGET_TOKENS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.TargetTokens = n
		}
	}
	if v := os.Getenv("RAG_" + prefix + "_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.MaxTokens = n
		}
	}
	if v := os.Getenv("RAG_" + prefix + "_OVERLAP_RATIO"); v != "" {
		if r, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && r >= 0 && r < 1 {
			c.OverlapRatio = r
		}
	}
	return c
}
