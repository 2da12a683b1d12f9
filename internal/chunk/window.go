package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// charsPerToken converts token budgets into byte windows before exact
// counting. Four characters per token is the standard approximation for
// English prose.
const charsPerToken = 4

// tailSlack is the soft cap applied when a short tail is absorbed into the
// preceding chunk: the merged chunk may exceed MaxTokens by this factor.
const tailSlack = 1.2

var blankRuns = regexp.MustCompile(`\n\s*\n+`)

// NormalizeWhitespace trims the text and collapses runs of blank lines
// into a single paragraph break. Indentation within lines is preserved,
// which matters for the centered part markers in Supreme Court opinions.
func NormalizeWhitespace(text string) string {
	return blankRuns.ReplaceAllString(strings.TrimSpace(text), "\n\n")
}

// ChunkTextWithTokens splits one structural unit of a document into chunks
// of roughly cfg.TargetTokens tokens each, using a sliding character
// window with overlapTokens of carry between adjacent chunks.
//
// Units whose total count is at most max(MinTokens, TargetTokens) come
// back as a single chunk. Window boundaries snap back to the last sentence
// terminator when one falls in the final fifth of the window. A tail
// shorter than MinTokens is absorbed into the preceding chunk as long as
// the merged chunk stays within tailSlack of MaxTokens; otherwise the tail
// is emitted on its own.
func ChunkTextWithTokens(text, sectionLabel string, cfg Config, overlapTokens int, tokens TokenCounter) []Chunk {
	if overlapTokens >= cfg.TargetTokens {
		overlapTokens = cfg.TargetTokens - 1
		if overlapTokens < 0 {
			overlapTokens = 0
		}
	}

	text = NormalizeWhitespace(text)
	if text == "" {
		return nil
	}

	singleLimit := cfg.MinTokens
	if cfg.TargetTokens > singleLimit {
		singleLimit = cfg.TargetTokens
	}
	if total := tokens.Count(text); total <= singleLimit {
		return []Chunk{{Text: text, SectionLabel: sectionLabel, TokenCount: total}}
	}

	windowBytes := cfg.TargetTokens * charsPerToken
	step := cfg.TargetTokens - overlapTokens
	if step < 1 {
		step = 1
	}
	stepBytes := step * charsPerToken

	var chunks []Chunk
	start := 0
	for start < len(text) {
		end := start + windowBytes
		if end > len(text) {
			end = len(text)
		}
		end = runeFloor(text, end)
		body := text[start:end]

		// Prefer to break at a sentence boundary near the window end.
		if end < len(text) {
			if cut := sentenceCut(body); cut > 0 {
				body = body[:cut]
				end = start + cut
			}
		}

		count := tokens.Count(body)
		tail := strings.TrimSpace(text[end:])
		tailTokens := 0
		if tail != "" {
			tailTokens = tokens.Count(tail)
		}

		if tailTokens > 0 && tailTokens < cfg.MinTokens && len(chunks) > 0 {
			merged := strings.TrimSpace(text[start:])
			mergedTokens := tokens.Count(merged)
			if float64(mergedTokens) <= float64(cfg.MaxTokens)*tailSlack {
				chunks = append(chunks, Chunk{
					Text:         NormalizeWhitespace(merged),
					SectionLabel: sectionLabel,
					TokenCount:   mergedTokens,
				})
			} else {
				chunks = append(chunks,
					Chunk{Text: NormalizeWhitespace(body), SectionLabel: sectionLabel, TokenCount: count},
					Chunk{Text: NormalizeWhitespace(tail), SectionLabel: sectionLabel, TokenCount: tailTokens},
				)
			}
			break
		}

		chunks = append(chunks, Chunk{
			Text:         NormalizeWhitespace(body),
			SectionLabel: sectionLabel,
			TokenCount:   count,
		})

		if overlapTokens > 0 && end < len(text) {
			next := start + stepBytes
			if back := end - overlapTokens*charsPerToken; back > next {
				next = back
			}
			start = runeFloor(text, next)
		} else {
			start = end
		}
		// Guarantee forward progress even with extreme overlap settings.
		if start <= end-windowBytes {
			start = end
		}
	}
	return chunks
}

// sentenceCut returns the byte length of body truncated just after the
// last sentence terminator, or 0 when no terminator falls in the final
// fifth of the window.
func sentenceCut(body string) int {
	last := strings.LastIndex(body, ". ")
	if i := strings.LastIndex(body, "? "); i > last {
		last = i
	}
	if i := strings.LastIndex(body, "! "); i > last {
		last = i
	}
	if last < 0 || float64(last) <= float64(len(body))*0.8 {
		return 0
	}
	return last + 2
}

// runeFloor backs pos up to the nearest UTF-8 rune boundary at or before
// pos so byte slicing never splits a multibyte character.
func runeFloor(s string, pos int) int {
	for pos > 0 && pos < len(s) && !utf8.RuneStart(s[pos]) {
		pos--
	}
	return pos
}
