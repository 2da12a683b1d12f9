package chunk

import (
	"regexp"
	"sort"
	"strings"
)

// Supreme Court opinions arrive as one plain-text blob holding the
// Syllabus followed by each opinion. Reporter conventions are stable
// enough that line-anchored patterns recover the boundaries.
var (
	scotusSyllabusRe = regexp.MustCompile(`(?mi)^\s*SYLLABUS\s*$`)
	scotusMajorityRe = regexp.MustCompile(`(?mi)^(?:Per Curiam\.|JUSTICE\s+[A-Z][A-Za-z-]+,?\s+delivered the opinion of the Court\.?|Opinion of the Court)`)
	scotusConcurRe   = regexp.MustCompile(`(?m)^JUSTICE\s+[A-Z][A-Za-z-]+,\s+(?:with whom.*?joins?,\s+)?concurring`)
	scotusDissentRe  = regexp.MustCompile(`(?m)^JUSTICE\s+[A-Z][A-Za-z-]+,\s+(?:with whom.*?joins?,\s+)?dissenting`)
	scotusSplitRe    = regexp.MustCompile(`(?m)^JUSTICE\s+[A-Z][A-Za-z-]+,\s+(?:with whom.*?joins?,\s+)?concurring in part and dissenting in part`)

	// Part markers are centered by the Reporter of Decisions, which in
	// plain text renders as deep indentation: at least 20 spaces followed
	// by a bare Roman numeral, capital letter, or Arabic numeral.
	scotusPartRe = regexp.MustCompile(`(?m)^[ ]{20,}([IVX]+|[A-Z]|[0-9]+)[ \t]*$`)
)

// scotusSection is one detected opinion boundary.
type scotusSection struct {
	start    int
	label    string
	syllabus bool
}

// ScotusChunker splits Supreme Court opinions along opinion and part
// boundaries, then windows each unit with the configured token budget.
type ScotusChunker struct {
	cfg    Config
	tokens TokenCounter
}

// NewScotusChunker returns a chunker using the given token budget.
func NewScotusChunker(cfg Config, tokens TokenCounter) *ScotusChunker {
	return &ScotusChunker{cfg: cfg, tokens: tokens}
}

// Chunk splits an opinion into labeled chunks and returns the Syllabus
// body (the lines after the SYLLABUS header) when one is present. The
// Syllabus body feeds the metadata extractor, which treats it as the
// authoritative source for holding and outcome.
func (c *ScotusChunker) Chunk(text string) ([]Chunk, string) {
	overlap := c.cfg.OverlapTokens()

	sections := findScotusSections(text)
	if len(sections) == 0 {
		return ChunkTextWithTokens(text, "Opinion", c.cfg, overlap, c.tokens), ""
	}

	var (
		chunks   []Chunk
		syllabus string
	)
	for i, sec := range sections {
		end := len(text)
		if i+1 < len(sections) {
			end = sections[i+1].start
		}
		sectionText := strings.TrimSpace(text[sec.start:end])
		if sectionText == "" {
			continue
		}

		if sec.syllabus {
			if _, body, ok := strings.Cut(sectionText, "\n"); ok {
				if body = strings.TrimSpace(body); body != "" {
					syllabus = body
				}
			}
		}

		chunks = append(chunks, chunkScotusSection(sectionText, sec.label, c.cfg, overlap, c.tokens)...)
	}
	return chunks, syllabus
}

// findScotusSections locates every opinion boundary, sorted by position.
// A "concurring in part and dissenting in part" header also matches the
// plain concurring pattern at the same offset; the more specific label
// wins.
func findScotusSections(text string) []scotusSection {
	var sections []scotusSection

	if m := scotusSyllabusRe.FindStringIndex(text); m != nil {
		sections = append(sections, scotusSection{start: m[0], label: "Syllabus", syllabus: true})
	}
	if m := scotusMajorityRe.FindStringIndex(text); m != nil {
		sections = append(sections, scotusSection{start: m[0], label: "Majority Opinion"})
	}

	split := make(map[int]bool)
	for _, m := range scotusSplitRe.FindAllStringIndex(text, -1) {
		split[m[0]] = true
		sections = append(sections, scotusSection{start: m[0], label: "Concurring in Part, Dissenting in Part"})
	}
	for _, m := range scotusConcurRe.FindAllStringIndex(text, -1) {
		if !split[m[0]] {
			sections = append(sections, scotusSection{start: m[0], label: "Concurring Opinion"})
		}
	}
	for _, m := range scotusDissentRe.FindAllStringIndex(text, -1) {
		if !split[m[0]] {
			sections = append(sections, scotusSection{start: m[0], label: "Dissenting Opinion"})
		}
	}

	sort.Slice(sections, func(i, j int) bool { return sections[i].start < sections[j].start })
	return sections
}

// chunkScotusSection windows one opinion section. When the section carries
// more than one centered part marker, each part is windowed independently
// under a "<label> - Part <marker>" label; text before the first marker
// (the opinion's own header) is not re-emitted.
func chunkScotusSection(sectionText, label string, cfg Config, overlap int, tokens TokenCounter) []Chunk {
	marks := scotusPartRe.FindAllStringSubmatchIndex(sectionText, -1)
	if len(marks) <= 1 {
		return ChunkTextWithTokens(sectionText, label, cfg, overlap, tokens)
	}

	var chunks []Chunk
	for i, m := range marks {
		end := len(sectionText)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		partText := strings.TrimSpace(sectionText[m[0]:end])
		if partText == "" {
			continue
		}
		marker := sectionText[m[2]:m[3]]
		chunks = append(chunks, ChunkTextWithTokens(partText, label+" - Part "+marker, cfg, overlap, tokens)...)
	}
	return chunks
}
