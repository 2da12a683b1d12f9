package mcp

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govreporter/govreporter/internal/apis"
	"github.com/govreporter/govreporter/internal/store"
)

func scotusHit(id string, score float32) Hit {
	return Hit{
		ID:         id,
		Type:       "scotus",
		Collection: ScotusCollection,
		Score:      score,
		Text:       "The judgment of the Court of Appeals is reversed.",
		Metadata: map[string]any{
			"document_id":            "9001",
			"case_name":              "Riley v. California",
			"citation_bluebook":      "573 U.S. 373 (2014)",
			"opinion_type":           "majority",
			"justice":                "Roberts",
			"section_label":          "II.A",
			"date":                   "2014-06-25",
			"topics_or_policy_areas": []any{"Fourth Amendment", "digital privacy"},
			"constitution_cited":     []any{"U.S. Const. amend. IV"},
			"federal_statutes_cited": []any{"18 U.S.C. § 2703"},
			"vote_breakdown":         "9-0",
			"holding_plain":          "Police generally may not search digital information on a cell phone seized incident to arrest without a warrant.",
		},
	}
}

func eoHit(id string, score float32) Hit {
	return Hit{
		ID:         id,
		Type:       "executive_order",
		Collection: EOCollection,
		Score:      score,
		Text:       "By the authority vested in me as President by the Constitution.",
		Metadata: map[string]any{
			"document_id":            "2021-01753",
			"title":                  "Protecting Public Health and the Environment",
			"executive_order_number": "13990",
			"president":              "Biden",
			"signing_date":           "2021-01-20",
			"section_label":          "Sec. 2",
			"plain_language_summary": "Directs agencies to review rules that conflict with climate and health priorities.",
			"policy_topics":          []any{"environment", "public health"},
			"impacted_agencies":      []any{"EPA", "DOI"},
			"federal_statutes_cited": []any{"42 U.S.C. § 4321", "42 U.S.C. § 7401", "30 U.S.C. § 181", "5 U.S.C. § 553"},
		},
	}
}

func TestFormatSearchResults_Empty(t *testing.T) {
	f := NewFormatter(0)

	markdown := f.FormatSearchResults("obscure nonsense", nil)

	assert.Equal(t, "No results found for query: 'obscure nonsense'", markdown)
}

func TestFormatSearchResults_MixedTypes(t *testing.T) {
	// Given: one hit from each collection
	f := NewFormatter(0)
	hits := []Hit{scotusHit("s-1", 0.92), eoHit("e-1", 0.85)}

	// When: formatting the combined results
	markdown := f.FormatSearchResults("privacy", hits)

	// Then: both render with their own block shapes
	assert.Contains(t, markdown, `## Search Results for: "privacy"`)
	assert.Contains(t, markdown, "Found 2 relevant document chunks.")
	assert.Contains(t, markdown, "### 1. Riley v. California")
	assert.Contains(t, markdown, "*573 U.S. 373 (2014)*")
	assert.Contains(t, markdown, "**Majority Opinion** by Justice Roberts (Section II.A)")
	assert.Contains(t, markdown, "### 2. Protecting Public Health and the Environment")
	assert.Contains(t, markdown, "**EO Number:** 13990")
	assert.Contains(t, markdown, "**President Biden | Signed January 20, 2021**")
	assert.Contains(t, markdown, "*Relevance Score: 0.920*")
	assert.Contains(t, markdown, "*Relevance Score: 0.850*")
}

func TestFormatSearchResults_CombinedViewSkipsContextBlocks(t *testing.T) {
	// Given: fully annotated hits
	f := NewFormatter(0)
	hits := []Hit{scotusHit("s-1", 0.92), eoHit("e-1", 0.85)}

	// When: formatting the combined results
	markdown := f.FormatSearchResults("privacy", hits)

	// Then: the detailed context blocks are reserved for typed searches
	assert.NotContains(t, markdown, "**Legal Context:**")
	assert.NotContains(t, markdown, "**Policy Context:**")
}

func TestFormatSearchResults_UntypedHitClassifiedFromPayload(t *testing.T) {
	// Given: a hit with no type tag but a SCOTUS-shaped payload
	f := NewFormatter(0)
	hit := scotusHit("s-1", 0.9)
	hit.Type = ""

	// When: formatting
	markdown := f.FormatSearchResults("privacy", []Hit{hit})

	// Then: it renders as an opinion chunk
	assert.Contains(t, markdown, "### 1. Riley v. California")
}

func TestFormatScotusResults_DetailedBlock(t *testing.T) {
	// Given: an annotated opinion hit
	f := NewFormatter(0)

	// When: formatting the typed results
	markdown := f.FormatScotusResults("cell phone search", []Hit{scotusHit("s-1", 0.88)})

	// Then: header and legal context render
	assert.Contains(t, markdown, "## Supreme Court Opinion Search Results")
	assert.Contains(t, markdown, `Query: "cell phone search"`)
	assert.Contains(t, markdown, "Found 1 relevant opinion chunks.")
	assert.Contains(t, markdown, "**Legal Context:**")
	assert.Contains(t, markdown, "- **Legal Topics:** Fourth Amendment, digital privacy")
	assert.Contains(t, markdown, "- **Constitutional Provisions:** U.S. Const. amend. IV")
	assert.Contains(t, markdown, "- **Statutes:** 18 U.S.C. § 2703")
	assert.Contains(t, markdown, "- **Vote:** 9-0")
	assert.Contains(t, markdown, "- **Key Holding:** Police generally may not search")
}

func TestFormatScotusResults_Empty(t *testing.T) {
	f := NewFormatter(0)

	markdown := f.FormatScotusResults("nothing", nil)

	assert.Equal(t, "No Supreme Court opinions found for query: 'nothing'", markdown)
}

func TestFormatEOResults_DetailedBlock(t *testing.T) {
	// Given: an annotated order hit
	f := NewFormatter(0)

	// When: formatting the typed results
	markdown := f.FormatEOResults("climate review", []Hit{eoHit("e-1", 0.77)})

	// Then: header and policy context render, authorities capped at three
	assert.Contains(t, markdown, "## Executive Order Search Results")
	assert.Contains(t, markdown, "Found 1 relevant order chunks.")
	assert.Contains(t, markdown, "**Policy Context:**")
	assert.Contains(t, markdown, "- **Summary:** Directs agencies to review")
	assert.Contains(t, markdown, "- **Policy Topics:** environment, public health")
	assert.Contains(t, markdown, "- **Agencies:** EPA, DOI")
	assert.Contains(t, markdown, "- **Legal Authorities:** 42 U.S.C. § 4321, 42 U.S.C. § 7401, 30 U.S.C. § 181")
	assert.NotContains(t, markdown, "5 U.S.C. § 553")
}

func TestFormatEOResults_Empty(t *testing.T) {
	f := NewFormatter(0)

	markdown := f.FormatEOResults("nothing", nil)

	assert.Equal(t, "No Executive Orders found for query: 'nothing'", markdown)
}

func TestTruncateChunk_LongTextGetsEllipsis(t *testing.T) {
	// Given: a formatter with a tight bound
	f := NewFormatter(20)
	hit := scotusHit("s-1", 0.9)
	hit.Text = strings.Repeat("a", 50)

	// When: formatting
	markdown := f.FormatScotusResults("q", []Hit{hit})

	// Then: the excerpt is cut with an ellipsis
	assert.Contains(t, markdown, strings.Repeat("a", 20)+"...")
	assert.NotContains(t, markdown, strings.Repeat("a", 21))
}

func TestTruncateChunk_ShortTextUntouched(t *testing.T) {
	f := NewFormatter(1000)

	out := f.truncateChunk("short text")

	assert.Equal(t, "short text", out)
}

func TestTruncateChunk_MultibyteTextCutsOnRunes(t *testing.T) {
	// Given: curly quotes and section marks, the multibyte characters
	// legal prose is full of
	f := NewFormatter(10)
	text := strings.Repeat("“The Court” cited § 1983. ", 5)

	out := f.truncateChunk(text)

	// Then: the cut lands on a rune boundary, never mid-sequence
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, string([]rune(text)[:10])+"...", out)
}

func TestClip_MultibyteTextCutsOnRunes(t *testing.T) {
	text := "Señor Justice §§ 1983–1988"

	out := clip(text, 5)

	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "Señor", out)
}

func TestFullDocumentHint_PresentForSmallStrongResults(t *testing.T) {
	// Given: two strong hits pointing at distinct source documents
	f := NewFormatter(0)
	hits := []Hit{scotusHit("chunk-a", 0.9), eoHit("chunk-b", 0.8)}

	// When: formatting
	markdown := f.FormatSearchResults("privacy", hits)

	// Then: the hint names one invocation per document, keyed by chunk ID
	assert.Contains(t, markdown, "**Full Document Access:**")
	assert.Contains(t, markdown, `get_document_by_id(document_id="chunk-a", collection="supreme_court_opinions", full_document=true)`)
	assert.Contains(t, markdown, `get_document_by_id(document_id="chunk-b", collection="executive_orders", full_document=true)`)
}

func TestFullDocumentHint_DeduplicatesBySourceDocument(t *testing.T) {
	// Given: two chunks of the same source document
	first := scotusHit("chunk-a", 0.9)
	second := scotusHit("chunk-b", 0.8)

	// When: building the hint
	hint := fullDocumentHint([]Hit{first, second})

	// Then: only the first chunk is suggested
	assert.Contains(t, hint, `document_id="chunk-a"`)
	assert.NotContains(t, hint, `document_id="chunk-b"`)
}

func TestFullDocumentHint_AbsentForLargeResultSets(t *testing.T) {
	hits := []Hit{
		scotusHit("a", 0.9), scotusHit("b", 0.9),
		scotusHit("c", 0.9), scotusHit("d", 0.9),
	}

	assert.Empty(t, fullDocumentHint(hits))
}

func TestFullDocumentHint_AbsentForWeakScores(t *testing.T) {
	hits := []Hit{scotusHit("a", 0.39)}

	assert.Empty(t, fullDocumentHint(hits))
}

func TestFullDocumentHint_SkipsUnresolvableHits(t *testing.T) {
	// Given: a strong hit whose payload lacks a source document ID
	hit := scotusHit("chunk-a", 0.9)
	delete(hit.Metadata, "document_id")

	// When: building the hint
	hint := fullDocumentHint([]Hit{hit})

	// Then: nothing to suggest
	assert.Empty(t, hint)
}

func TestFormatDocumentChunk_Scotus(t *testing.T) {
	f := NewFormatter(0)
	hit := scotusHit("chunk-1", 0.9)

	markdown := f.FormatDocumentChunk(ScotusCollection, "chunk-1", hit.Text, hit.Metadata)

	assert.Contains(t, markdown, "## Document Retrieved")
	assert.Contains(t, markdown, "**Collection:** supreme_court_opinions")
	assert.Contains(t, markdown, "**Document ID:** chunk-1")
	assert.Contains(t, markdown, "### Riley v. California")
	assert.Contains(t, markdown, "### Document Content:")
	assert.Contains(t, markdown, "The judgment of the Court of Appeals is reversed.")
	assert.Contains(t, markdown, "### Metadata:")
	assert.Contains(t, markdown, "- **Opinion Type:** majority")
	assert.Contains(t, markdown, "- **Date:** June 25, 2014")
}

func TestFormatDocumentChunk_EmptyTextPlaceholder(t *testing.T) {
	f := NewFormatter(0)

	markdown := f.FormatDocumentChunk(EOCollection, "chunk-2", "", map[string]any{"title": "Some Order"})

	assert.Contains(t, markdown, "### Some Order")
	assert.Contains(t, markdown, "No text available")
}

func TestFormatFullDocument_EO(t *testing.T) {
	// Given: a fetched order and the chunk metadata that located it
	f := NewFormatter(0)
	doc := &apis.Document{
		ID:      "2021-01753",
		Title:   "Protecting Public Health and the Environment",
		Date:    "2021-01-20",
		Content: "Section 1. Policy. Our Nation has an abiding commitment.",
		Metadata: map[string]any{
			"executive_order_number": "13990",
			"president":              "Biden",
		},
	}

	// When: formatting
	markdown := f.FormatFullDocument("executive_order", doc, map[string]any{"signing_date": "2021-01-20"})

	// Then: full text and identity lines render
	assert.Contains(t, markdown, "## Full Document Retrieved")
	assert.Contains(t, markdown, "### Protecting Public Health and the Environment")
	assert.Contains(t, markdown, "**EO Number:** 13990")
	assert.Contains(t, markdown, "**President:** Biden")
	assert.Contains(t, markdown, "**Date:** January 20, 2021")
	assert.Contains(t, markdown, "### Full Order Text:")
	assert.Contains(t, markdown, "Section 1. Policy.")
}

func TestFormatFullDocument_MissingContentPlaceholder(t *testing.T) {
	f := NewFormatter(0)

	markdown := f.FormatFullDocument("scotus", &apis.Document{Title: "Doe v. Roe"}, nil)

	assert.Contains(t, markdown, "### Doe v. Roe")
	assert.Contains(t, markdown, "Full opinion text unavailable.")
}

func TestFormatCollectionsList_StatsAndFields(t *testing.T) {
	// Given: one healthy collection and one failed lookup
	f := NewFormatter(0)
	details := []CollectionDetail{
		{
			Name: ScotusCollection,
			Info: &store.CollectionInfo{
				Name:                ScotusCollection,
				PointsCount:         15234,
				VectorsCount:        15234,
				IndexedVectorsCount: 15000,
				Status:              "green",
			},
			SampleFields: []string{"case_name", "date", "text"},
		},
		{
			Name: EOCollection,
			Err:  assert.AnError,
		},
	}

	// When: formatting
	markdown := f.FormatCollectionsList(details)

	// Then: stats, fields, the error entry, and the footer all render
	assert.Contains(t, markdown, "## Available Document Collections")
	assert.Contains(t, markdown, "### 1. supreme_court_opinions")
	assert.Contains(t, markdown, "- **Total Chunks:** 15,234")
	assert.Contains(t, markdown, "- **Vector Count:** 15,234")
	assert.Contains(t, markdown, "- **Indexed Vectors:** 15,000")
	assert.Contains(t, markdown, "- **Status:** green")
	assert.Contains(t, markdown, "- **Available Metadata Fields:**")
	assert.Contains(t, markdown, "  - case_name")
	assert.Contains(t, markdown, "### 2. executive_orders")
	assert.Contains(t, markdown, "*Error retrieving collection info:")
	assert.Contains(t, markdown, "### Collection Features:")
	assert.Contains(t, markdown, "- Semantic search with OpenAI text-embedding-3-small")
}

func TestFormatCollectionsList_OmitsZeroVectorCount(t *testing.T) {
	// Given: a collection on a server that no longer reports vector counts
	f := NewFormatter(0)
	details := []CollectionDetail{
		{
			Name: ScotusCollection,
			Info: &store.CollectionInfo{Name: ScotusCollection, PointsCount: 10, Status: "green"},
		},
	}

	// When: formatting
	markdown := f.FormatCollectionsList(details)

	// Then: the vector count line is dropped entirely
	assert.NotContains(t, markdown, "**Vector Count:**")
	assert.Contains(t, markdown, "- **Total Chunks:** 10")
}

func TestFormatDocumentResource_FullLayout(t *testing.T) {
	// Given: a fetched opinion
	f := NewFormatter(0)
	doc := &apis.Document{
		ID:      "9001",
		Title:   "Riley v. California",
		Date:    "2014-06-25",
		Type:    "scotus_opinion",
		Source:  "courtlistener",
		Content: "Held: the police may not search a cell phone without a warrant.",
		URL:     "https://www.courtlistener.com/opinion/9001/",
		Metadata: map[string]any{
			"citation_bluebook": "573 U.S. 373 (2014)",
			"justice":           "Roberts",
		},
	}

	// When: formatting the resource body
	markdown := f.FormatDocumentResource(doc)

	// Then: identity header, content, and sorted metadata render
	assert.True(t, strings.HasPrefix(markdown, "# Riley v. California\n"))
	assert.Contains(t, markdown, "**Document ID:** 9001")
	assert.Contains(t, markdown, "**Date:** June 25, 2014")
	assert.Contains(t, markdown, "## Document Content")
	assert.Contains(t, markdown, "Held: the police may not search")
	assert.Contains(t, markdown, "## Metadata")
	citation := strings.Index(markdown, "citation_bluebook")
	justice := strings.Index(markdown, "justice")
	require.Greater(t, citation, 0)
	require.Greater(t, justice, 0)
	assert.Less(t, citation, justice, "metadata keys should sort")
}

func TestFormatDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "valid date", input: "2024-01-02", expected: "January 2, 2024"},
		{name: "empty", input: "", expected: ""},
		{name: "unparseable passes through", input: "June 2024", expected: "June 2024"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatDate(tt.input))
		})
	}
}

func TestTitleWords(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"opinion_type", "Opinion Type"},
		{"majority", "Majority"},
		{"topics_or_policy_areas", "Topics Or Policy Areas"},
		{"already Title", "Already Title"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, titleWords(tt.input))
		})
	}
}

func TestCommaUint(t *testing.T) {
	tests := []struct {
		input    uint64
		expected string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{15234, "15,234"},
		{1234567, "1,234,567"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, commaUint(tt.input))
		})
	}
}

func TestMetaString_Values(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{name: "nil", input: nil, expected: ""},
		{name: "string", input: "x", expected: "x"},
		{name: "bool", input: true, expected: "true"},
		{name: "float drops trailing zeros", input: float64(2024), expected: "2024"},
		{name: "string slice", input: []string{"a", "b"}, expected: "a, b"},
		{name: "any slice", input: []any{"a", "b"}, expected: "a, b"},
		{name: "named map", input: map[string]any{"name": "EPA", "id": 1.0}, expected: "EPA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, metaString(tt.input))
		})
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		expected int
	}{
		{name: "zero uses default", limit: 0, expected: 10},
		{name: "negative uses default", limit: -5, expected: 10},
		{name: "in range passes", limit: 25, expected: 25},
		{name: "above max clamps", limit: 500, expected: 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, clampLimit(tt.limit, 10, 1, 50))
		})
	}
}
