package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scotusLabels(chunks []Chunk) []string {
	labels := make([]string, len(chunks))
	for i, c := range chunks {
		labels[i] = c.SectionLabel
	}
	return labels
}

// TS01: syllabus plus majority with centered part markers
func TestScotusChunker_Chunk_SyllabusAndParts(t *testing.T) {
	// Given: an opinion with a Syllabus and two centered part markers
	text := "SYLLABUS\n\nHeld: X.\n\nJUSTICE ROBERTS delivered the opinion of the Court.\n\n" +
		"                    I\n\nAlpha.\n\n                    II\n\nBeta."
	chunker := NewScotusChunker(ScotusDefaults(), estimateCounter{})

	// When: chunked
	chunks, syllabus := chunker.Chunk(text)

	// Then: one chunk per unit, in source order, with the Syllabus body
	// returned separately
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{
		"Syllabus",
		"Majority Opinion - Part I",
		"Majority Opinion - Part II",
	}, scotusLabels(chunks))
	assert.Equal(t, "Held: X.", syllabus)

	assert.Equal(t, "SYLLABUS\n\nHeld: X.", chunks[0].Text)
	assert.Equal(t, "I\n\nAlpha.", chunks[1].Text)
	assert.Equal(t, "II\n\nBeta.", chunks[2].Text)
}

func TestScotusChunker_Chunk_NoMarkersWholeOpinion(t *testing.T) {
	// Given: text without any recognizable opinion headers
	text := "Some unstructured order of the court denying certiorari."
	chunker := NewScotusChunker(ScotusDefaults(), estimateCounter{})

	chunks, syllabus := chunker.Chunk(text)

	// Then: the whole document is one "Opinion" chunk and no syllabus
	require.Len(t, chunks, 1)
	assert.Equal(t, "Opinion", chunks[0].SectionLabel)
	assert.Empty(t, syllabus)
}

func TestScotusChunker_Chunk_SeparateOpinionSections(t *testing.T) {
	// Given: majority, concurrence, dissent with a joiner clause, and a
	// partial concurrence/dissent
	text := "JUSTICE ROBERTS delivered the opinion of the Court.\n\nMajority reasoning.\n\n" +
		"JUSTICE THOMAS, concurring.\n\nConcurring text.\n\n" +
		"JUSTICE KAGAN, with whom JUSTICE SOTOMAYOR joins, dissenting.\n\nDissent text.\n\n" +
		"JUSTICE BARRETT, concurring in part and dissenting in part.\n\nSplit text."
	chunker := NewScotusChunker(ScotusDefaults(), estimateCounter{})

	chunks, syllabus := chunker.Chunk(text)

	// Then: each opinion becomes its own section, and the partial
	// concurrence is not double counted as a plain concurrence
	assert.Equal(t, []string{
		"Majority Opinion",
		"Concurring Opinion",
		"Dissenting Opinion",
		"Concurring in Part, Dissenting in Part",
	}, scotusLabels(chunks))
	assert.Empty(t, syllabus)
}

func TestScotusChunker_Chunk_PerCuriamIsMajority(t *testing.T) {
	text := "Per Curiam.\n\nThe judgment is reversed."
	chunker := NewScotusChunker(ScotusDefaults(), estimateCounter{})

	chunks, _ := chunker.Chunk(text)

	require.Len(t, chunks, 1)
	assert.Equal(t, "Majority Opinion", chunks[0].SectionLabel)
}

func TestScotusChunker_Chunk_SinglePartMarkerNotSplit(t *testing.T) {
	// Given: only one centered marker inside the majority
	text := "JUSTICE ROBERTS delivered the opinion of the Court.\n\n" +
		"                    I\n\nOnly one part here."
	chunker := NewScotusChunker(ScotusDefaults(), estimateCounter{})

	chunks, _ := chunker.Chunk(text)

	// Then: the section stays whole under its own label
	require.Len(t, chunks, 1)
	assert.Equal(t, "Majority Opinion", chunks[0].SectionLabel)
}

func TestScotusChunker_Chunk_LetterAndNumberMarkers(t *testing.T) {
	// Given: part markers using a capital letter and an arabic numeral
	text := "JUSTICE ROBERTS delivered the opinion of the Court.\n\n" +
		"                    A\n\nAlpha.\n\n                    2\n\nBeta."
	chunker := NewScotusChunker(ScotusDefaults(), estimateCounter{})

	chunks, _ := chunker.Chunk(text)

	assert.Equal(t, []string{
		"Majority Opinion - Part A",
		"Majority Opinion - Part 2",
	}, scotusLabels(chunks))
}

func TestScotusChunker_Chunk_ShallowIndentNotAMarker(t *testing.T) {
	// Given: a roman numeral with fewer than 20 leading spaces
	text := "JUSTICE ROBERTS delivered the opinion of the Court.\n\n" +
		"    I\n\nAlpha.\n\n    II\n\nBeta."
	chunker := NewScotusChunker(ScotusDefaults(), estimateCounter{})

	chunks, _ := chunker.Chunk(text)

	// Then: the section is not split into parts
	require.Len(t, chunks, 1)
	assert.Equal(t, "Majority Opinion", chunks[0].SectionLabel)
}

func TestScotusChunker_Chunk_IdempotentUnderNormalization(t *testing.T) {
	// Given: the same opinion with ragged outer whitespace
	raw := "\n\nSYLLABUS\n\nHeld: X.\n\n\nJUSTICE ROBERTS delivered the opinion of the Court.\n\n" +
		"                    I\n\nAlpha.\n\n                    II\n\nBeta.\n\n\n"
	chunker := NewScotusChunker(ScotusDefaults(), estimateCounter{})

	rawChunks, rawSyllabus := chunker.Chunk(raw)
	normChunks, normSyllabus := chunker.Chunk(NormalizeWhitespace(raw))

	// Then: chunking is insensitive to pre-normalization
	assert.Equal(t, rawChunks, normChunks)
	assert.Equal(t, rawSyllabus, normSyllabus)
}
