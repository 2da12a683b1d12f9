package chunk

import (
	"regexp"
	"strconv"
	"strings"
)

// Executive Orders follow the Federal Register's drafting conventions:
// numbered "Sec. N." headers, lettered subsections, and roman-numeral
// subparagraphs. Subsection "(a)" usually appears inline right after the
// section title sentence, so the pattern accepts both a line start and a
// sentence break before the marker.
var (
	eoSectionRe    = regexp.MustCompile(`(?mi)^\s*(Sec(?:tion)?\.?\s*[0-9]+[A-Za-z-]*\.)`)
	eoSectionNumRe = regexp.MustCompile(`[0-9]+[A-Za-z-]*`)
	eoTitleRe      = regexp.MustCompile(`^Sec(?:tion)?\.?\s*[0-9]+[A-Za-z-]*\.\s*([^.]+)\.`)
	eoSubsectionRe = regexp.MustCompile(`(?m)(?:^\s*|\.\s+)(\([a-z]\))\s*`)
	eoSubparaRe    = regexp.MustCompile(`(?m)^\s*\((?:i|ii|iii|iv|v|vi|vii|viii|ix|x)+\)\s*`)
)

// EOChunker splits Executive Orders along Section, subsection, and
// subparagraph boundaries, then windows each deepest unit with the
// configured token budget.
type EOChunker struct {
	cfg    Config
	tokens TokenCounter
}

// NewEOChunker returns a chunker using the given token budget.
func NewEOChunker(cfg Config, tokens TokenCounter) *EOChunker {
	return &EOChunker{cfg: cfg, tokens: tokens}
}

// Chunk splits an Executive Order into labeled chunks. Everything before
// the first section header becomes the "Preamble"; a document without any
// recognizable structure is windowed whole under "Executive Order".
func (c *EOChunker) Chunk(text string) []Chunk {
	overlap := c.cfg.OverlapTokens()

	headers := eoSectionRe.FindAllStringSubmatchIndex(text, -1)

	var chunks []Chunk
	if len(headers) > 0 {
		if preamble := strings.TrimSpace(text[:headers[0][0]]); preamble != "" {
			chunks = append(chunks, ChunkTextWithTokens(preamble, "Preamble", c.cfg, overlap, c.tokens)...)
		}
	}

	for i, h := range headers {
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		sectionText := strings.TrimSpace(text[h[0]:end])
		if sectionText == "" {
			continue
		}
		header := text[h[2]:h[3]]
		chunks = append(chunks, chunkEOSection(sectionText, eoSectionLabel(header, sectionText, i), c.cfg, overlap, c.tokens)...)
	}

	if len(chunks) == 0 {
		return ChunkTextWithTokens(text, "Executive Order", c.cfg, overlap, c.tokens)
	}
	return chunks
}

// eoSectionLabel builds "Sec. <n> - <title>" from the header and the first
// sentence after it, falling back to "Sec. <n>" when no title sentence is
// found and to the ordinal position when the header carries no number.
func eoSectionLabel(header, sectionText string, index int) string {
	num := eoSectionNumRe.FindString(header)
	if num == "" {
		num = strconv.Itoa(index + 1)
	}
	if m := eoTitleRe.FindStringSubmatch(sectionText); m != nil {
		if title := strings.TrimSpace(m[1]); title != "" {
			return "Sec. " + num + " - " + title
		}
	}
	return "Sec. " + num
}

// chunkEOSection windows one section, descending into lettered subsections
// and roman subparagraphs when more than one is present at that level.
// Subparagraphs keep their subsection's label.
//
// Subsection letters must run sequentially from (a); that rule is what
// keeps a roman subparagraph marker like "(i)" from being mistaken for
// the ninth lettered subsection.
func chunkEOSection(sectionText, label string, cfg Config, overlap int, tokens TokenCounter) []Chunk {
	var subs [][]int
	next := byte('a')
	for _, m := range eoSubsectionRe.FindAllStringSubmatchIndex(sectionText, -1) {
		if sectionText[m[2]+1] == next {
			subs = append(subs, m)
			next++
		}
	}
	if len(subs) <= 1 {
		return ChunkTextWithTokens(sectionText, label, cfg, overlap, tokens)
	}

	var chunks []Chunk
	for i, m := range subs {
		// m[2]:m[3] is the "(a)" marker itself; spans start at the paren
		// so a marker matched after a sentence break does not swallow the
		// previous subsection's final period.
		end := len(sectionText)
		if i+1 < len(subs) {
			end = subs[i+1][2]
		}
		subText := strings.TrimSpace(sectionText[m[2]:end])
		if subText == "" {
			continue
		}
		letter := sectionText[m[2]+1 : m[2]+2]
		subLabel := label + "(" + letter + ")"

		paras := eoSubparaRe.FindAllStringIndex(subText, -1)
		if len(paras) <= 1 {
			chunks = append(chunks, ChunkTextWithTokens(subText, subLabel, cfg, overlap, tokens)...)
			continue
		}
		for j, p := range paras {
			pEnd := len(subText)
			if j+1 < len(paras) {
				pEnd = paras[j+1][0]
			}
			paraText := strings.TrimSpace(subText[p[0]:pEnd])
			if paraText == "" {
				continue
			}
			chunks = append(chunks, ChunkTextWithTokens(paraText, subLabel, cfg, overlap, tokens)...)
		}
	}
	return chunks
}
