package mcp

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/govreporter/govreporter/internal/apis"
	"github.com/govreporter/govreporter/internal/store"
)

// Collection names for the two document families.
const (
	ScotusCollection = "supreme_court_opinions"
	EOCollection     = "executive_orders"
)

// DefaultMaxChunkLength caps chunk text in formatted search results.
const DefaultMaxChunkLength = 1000

// Full-document hints fire only for small, strong result sets.
const (
	hintMaxHits  = 3
	hintMinScore = 0.4
)

// Hit is one scored chunk from the vector store, tagged with the
// document family and collection it came from.
type Hit struct {
	ID         string
	Type       string // "scotus" or "executive_order"
	Collection string
	Score      float32
	Text       string
	Metadata   map[string]any
}

// CollectionDetail is one collection's statistics plus a sample-derived
// preview of its payload fields.
type CollectionDetail struct {
	Name         string
	Info         *store.CollectionInfo
	SampleFields []string
	Err          error
}

// Formatter renders search results and documents as markdown for LLM
// consumption.
type Formatter struct {
	maxChunkLength int
}

// NewFormatter returns a Formatter that truncates chunk text at
// maxChunkLength. Non-positive values fall back to
// DefaultMaxChunkLength.
func NewFormatter(maxChunkLength int) *Formatter {
	if maxChunkLength <= 0 {
		maxChunkLength = DefaultMaxChunkLength
	}
	return &Formatter{maxChunkLength: maxChunkLength}
}

// FormatSearchResults formats mixed-type search results as markdown.
// Hits missing a type tag are classified from their payload shape.
func (f *Formatter) FormatSearchResults(query string, hits []Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No results found for query: '%s'", query)
	}

	out := []string{fmt.Sprintf("## Search Results for: \"%s\"\n", query)}
	out = append(out, fmt.Sprintf("Found %d relevant document chunks.\n", len(hits)))

	for i, hit := range hits {
		switch resolveHitType(hit) {
		case "scotus":
			out = append(out, f.scotusChunk(i+1, hit, false))
		case "executive_order":
			out = append(out, f.eoChunk(i+1, hit, false))
		default:
			out = append(out, f.genericChunk(i+1, hit))
		}
		out = append(out, "")
	}

	if hint := fullDocumentHint(hits); hint != "" {
		out = append(out, hint)
	}
	return strings.Join(out, "\n")
}

// FormatScotusResults formats Supreme Court search results with the
// legal-context block per hit.
func (f *Formatter) FormatScotusResults(query string, hits []Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No Supreme Court opinions found for query: '%s'", query)
	}

	out := []string{"## Supreme Court Opinion Search Results\n"}
	out = append(out, fmt.Sprintf("Query: \"%s\"", query))
	out = append(out, fmt.Sprintf("Found %d relevant opinion chunks.\n", len(hits)))

	for i, hit := range hits {
		out = append(out, f.scotusChunk(i+1, hit, true))
		out = append(out, "")
	}

	if hint := fullDocumentHint(hits); hint != "" {
		out = append(out, hint)
	}
	return strings.Join(out, "\n")
}

// FormatEOResults formats Executive Order search results with the
// policy-context block per hit.
func (f *Formatter) FormatEOResults(query string, hits []Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No Executive Orders found for query: '%s'", query)
	}

	out := []string{"## Executive Order Search Results\n"}
	out = append(out, fmt.Sprintf("Query: \"%s\"", query))
	out = append(out, fmt.Sprintf("Found %d relevant order chunks.\n", len(hits)))

	for i, hit := range hits {
		out = append(out, f.eoChunk(i+1, hit, true))
		out = append(out, "")
	}

	if hint := fullDocumentHint(hits); hint != "" {
		out = append(out, hint)
	}
	return strings.Join(out, "\n")
}

// FormatDocumentChunk formats a single stored chunk with its metadata.
func (f *Formatter) FormatDocumentChunk(collection, documentID, text string, meta map[string]any) string {
	out := []string{"## Document Retrieved\n"}
	out = append(out, fmt.Sprintf("**Collection:** %s", collection))
	out = append(out, fmt.Sprintf("**Document ID:** %s\n", documentID))

	switch collection {
	case ScotusCollection:
		caseName := firstString(meta, "case_name")
		if caseName == "" {
			caseName = "Unknown Case"
		}
		out = append(out, fmt.Sprintf("### %s", caseName))
	case EOCollection:
		title := firstString(meta, "title")
		if title == "" {
			title = "Unknown Order"
		}
		out = append(out, fmt.Sprintf("### %s", title))
		if eoNumber := firstString(meta, "executive_order_number", "eo_number"); eoNumber != "" {
			out = append(out, fmt.Sprintf("**EO Number:** %s", eoNumber))
		}
	}

	out = append(out, "\n### Document Content:")
	if text == "" {
		text = "No text available"
	}
	out = append(out, text)

	out = append(out, "\n### Metadata:")
	for _, item := range relevantMetadata(collection, meta) {
		out = append(out, fmt.Sprintf("- **%s:** %s", item.Label, item.Value))
	}

	return strings.Join(out, "\n")
}

// FormatFullDocument formats a complete document fetched from a
// government API, merged with the chunk metadata that located it.
func (f *Formatter) FormatFullDocument(docType string, doc *apis.Document, chunkMeta map[string]any) string {
	out := []string{"## Full Document Retrieved\n"}

	merged := make(map[string]any, len(chunkMeta))
	for k, v := range chunkMeta {
		merged[k] = v
	}
	text := ""
	if doc != nil {
		for k, v := range doc.Metadata {
			merged[k] = v
		}
		text = doc.Content
	}

	var extra []metaItem
	switch docType {
	case "scotus":
		caseName := firstString(merged, "case_name")
		if caseName == "" && doc != nil {
			caseName = doc.Title
		}
		if caseName == "" {
			caseName = "Supreme Court Opinion"
		}
		out = append(out, fmt.Sprintf("### %s", caseName))

		date := firstString(merged, "date", "decision_date", "publication_date")
		if date == "" && doc != nil {
			date = doc.Date
		}
		if date != "" {
			out = append(out, fmt.Sprintf("**Date:** %s", formatDate(date)))
		}
		if opinionType := firstString(merged, "opinion_type"); opinionType != "" {
			descriptor := fmt.Sprintf("**Opinion Type:** %s", titleWords(opinionType))
			if justice := firstString(merged, "justice", "author_str"); justice != "" {
				descriptor = fmt.Sprintf("%s by %s", descriptor, justice)
			}
			out = append(out, descriptor)
		}

		out = append(out, "\n### Full Opinion Text:")
		if text == "" {
			text = "Full opinion text unavailable."
		}
		out = append(out, text)
		extra = relevantMetadata(ScotusCollection, merged)

	case "executive_order":
		title := firstString(merged, "title")
		if title == "" && doc != nil {
			title = doc.Title
		}
		if title == "" {
			title = "Executive Order"
		}
		out = append(out, fmt.Sprintf("### %s", title))

		if eoNumber := firstString(merged, "executive_order_number", "eo_number"); eoNumber != "" {
			out = append(out, fmt.Sprintf("**EO Number:** %s", eoNumber))
		}
		if president := firstString(merged, "president"); president != "" {
			out = append(out, fmt.Sprintf("**President:** %s", president))
		}
		signingDate := firstString(merged, "signing_date", "publication_date")
		if signingDate == "" && doc != nil {
			signingDate = doc.Date
		}
		if signingDate != "" {
			out = append(out, fmt.Sprintf("**Date:** %s", formatDate(signingDate)))
		}

		out = append(out, "\n### Full Order Text:")
		if text == "" {
			text = "Full executive order text unavailable."
		}
		out = append(out, text)
		extra = relevantMetadata(EOCollection, merged)

	default:
		out = append(out, "### Document")
		if text == "" {
			text = "Full document text unavailable."
		}
		out = append(out, text)
	}

	if len(extra) > 0 {
		out = append(out, "\n### Metadata:")
		for _, item := range extra {
			out = append(out, fmt.Sprintf("- **%s:** %s", item.Label, item.Value))
		}
	}

	return strings.Join(out, "\n")
}

// FormatCollectionsList formats collection statistics and metadata
// field previews.
func (f *Formatter) FormatCollectionsList(details []CollectionDetail) string {
	out := []string{"## Available Document Collections\n"}

	for i, d := range details {
		out = append(out, fmt.Sprintf("### %d. %s", i+1, d.Name))

		switch {
		case d.Err != nil:
			out = append(out, fmt.Sprintf("*Error retrieving collection info: %s*", d.Err))
		case d.Info != nil:
			out = append(out, fmt.Sprintf("- **Total Chunks:** %s", commaUint(d.Info.PointsCount)))
			if d.Info.VectorsCount > 0 {
				out = append(out, fmt.Sprintf("- **Vector Count:** %s", commaUint(d.Info.VectorsCount)))
			}
			out = append(out, fmt.Sprintf("- **Indexed Vectors:** %s", commaUint(d.Info.IndexedVectorsCount)))
			if d.Info.Status != "" {
				out = append(out, fmt.Sprintf("- **Status:** %s", d.Info.Status))
			}
			if len(d.SampleFields) > 0 {
				out = append(out, "- **Available Metadata Fields:**")
				fields := d.SampleFields
				if len(fields) > 10 {
					fields = fields[:10]
				}
				for _, field := range fields {
					out = append(out, fmt.Sprintf("  - %s", field))
				}
			}
		}
		out = append(out, "")
	}

	out = append(out, "### Collection Features:")
	out = append(out, "- Hierarchical chunking preserves document structure")
	out = append(out, "- Rich metadata enables advanced filtering")
	out = append(out, "- Semantic search with OpenAI text-embedding-3-small")
	out = append(out, "- Real-time document retrieval from government APIs")

	return strings.Join(out, "\n")
}

// FormatDocumentResource formats a full document for a resource read.
func (f *Formatter) FormatDocumentResource(doc *apis.Document) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", doc.Title)
	fmt.Fprintf(&sb, "**Document ID:** %s\n", doc.ID)
	fmt.Fprintf(&sb, "**Type:** %s\n", doc.Type)
	fmt.Fprintf(&sb, "**Source:** %s\n", doc.Source)
	fmt.Fprintf(&sb, "**Date:** %s\n", formatDate(doc.Date))
	fmt.Fprintf(&sb, "**URL:** %s\n\n", doc.URL)
	sb.WriteString("---\n\n## Document Content\n\n")
	sb.WriteString(doc.Content)
	sb.WriteString("\n\n---\n\n## Metadata\n\n")

	keys := make([]string, 0, len(doc.Metadata))
	for key := range doc.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&sb, "- **%s:** %s\n", key, metaString(doc.Metadata[key]))
	}

	return sb.String()
}

// scotusChunk formats one Supreme Court opinion chunk. The detailed
// flag adds the legal-context block.
func (f *Formatter) scotusChunk(index int, hit Hit, detailed bool) string {
	meta := hit.Metadata

	caseName := firstString(meta, "case_name")
	if caseName == "" {
		caseName = "Unknown Case"
	}
	lines := []string{fmt.Sprintf("### %d. %s", index, caseName)}

	if citation := firstString(meta, "citation_bluebook", "citation"); citation != "" {
		lines = append(lines, fmt.Sprintf("*%s*", citation))
	}

	if opinionType := firstString(meta, "opinion_type"); opinionType != "" {
		parts := []string{fmt.Sprintf("**%s Opinion**", titleWords(opinionType))}
		if justice := firstString(meta, "justice"); justice != "" {
			parts = append(parts, fmt.Sprintf("by Justice %s", justice))
		}
		if section := firstString(meta, "section_label", "section"); section != "" {
			parts = append(parts, fmt.Sprintf("(Section %s)", section))
		}
		lines = append(lines, strings.Join(parts, " "))
	}

	lines = append(lines, "\n**Excerpt:**")
	lines = append(lines, f.truncateChunk(hitText(hit)))

	if detailed {
		lines = append(lines, "\n**Legal Context:**")
		if topics := firstList(meta, "topics_or_policy_areas", "legal_topics"); len(topics) > 0 {
			lines = append(lines, fmt.Sprintf("- **Legal Topics:** %s", strings.Join(topics, ", ")))
		}
		if provisions := firstList(meta, "constitution_cited", "constitutional_provisions"); len(provisions) > 0 {
			lines = append(lines, fmt.Sprintf("- **Constitutional Provisions:** %s", strings.Join(provisions, ", ")))
		}
		if statutes := firstList(meta, "federal_statutes_cited", "statutes_interpreted"); len(statutes) > 0 {
			lines = append(lines, fmt.Sprintf("- **Statutes:** %s", strings.Join(statutes, ", ")))
		}
		if vote := firstString(meta, "vote_breakdown"); vote != "" {
			lines = append(lines, fmt.Sprintf("- **Vote:** %s", vote))
		}
		if holding := firstString(meta, "holding_plain", "holding"); holding != "" {
			lines = append(lines, fmt.Sprintf("- **Key Holding:** %s...", clip(holding, 200)))
		}
	}

	lines = append(lines, fmt.Sprintf("\n*Relevance Score: %.3f*", hit.Score))
	return strings.Join(lines, "\n")
}

// eoChunk formats one Executive Order chunk. The detailed flag adds the
// policy-context block.
func (f *Formatter) eoChunk(index int, hit Hit, detailed bool) string {
	meta := hit.Metadata

	title := firstString(meta, "title")
	if title == "" {
		title = "Unknown Executive Order"
	}
	lines := []string{fmt.Sprintf("### %d. %s", index, title)}

	if eoNumber := firstString(meta, "executive_order_number", "eo_number"); eoNumber != "" {
		lines = append(lines, fmt.Sprintf("**EO Number:** %s", eoNumber))
	}

	president := firstString(meta, "president")
	signingDate := firstString(meta, "signing_date")
	if president != "" || signingDate != "" {
		var parts []string
		if president != "" {
			parts = append(parts, fmt.Sprintf("President %s", president))
		}
		if signingDate != "" {
			parts = append(parts, fmt.Sprintf("Signed %s", formatDate(signingDate)))
		}
		lines = append(lines, fmt.Sprintf("**%s**", strings.Join(parts, " | ")))
	}

	if section := firstString(meta, "section_label", "section_title"); section != "" {
		lines = append(lines, fmt.Sprintf("\n**%s**", section))
	}

	lines = append(lines, "\n**Excerpt:**")
	lines = append(lines, f.truncateChunk(hitText(hit)))

	if detailed {
		lines = append(lines, "\n**Policy Context:**")
		if summary := firstString(meta, "plain_language_summary", "summary"); summary != "" {
			lines = append(lines, fmt.Sprintf("- **Summary:** %s...", clip(summary, 200)))
		}
		if topics := firstList(meta, "policy_topics", "topics_or_policy_areas"); len(topics) > 0 {
			lines = append(lines, fmt.Sprintf("- **Policy Topics:** %s", strings.Join(topics, ", ")))
		}
		if agencies := firstList(meta, "impacted_agencies", "agencies_impacted"); len(agencies) > 0 {
			lines = append(lines, fmt.Sprintf("- **Agencies:** %s", strings.Join(agencies, ", ")))
		}
		if authorities := firstList(meta, "federal_statutes_cited", "legal_authorities"); len(authorities) > 0 {
			if len(authorities) > 3 {
				authorities = authorities[:3]
			}
			lines = append(lines, fmt.Sprintf("- **Legal Authorities:** %s", strings.Join(authorities, ", ")))
		}
	}

	lines = append(lines, fmt.Sprintf("\n*Relevance Score: %.3f*", hit.Score))
	return strings.Join(lines, "\n")
}

// genericChunk is the fallback formatter for hits of unknown type.
func (f *Formatter) genericChunk(index int, hit Hit) string {
	lines := []string{fmt.Sprintf("### %d. Document Chunk", index)}

	for _, key := range []string{"title", "name", "document_id", "id"} {
		if value := firstString(hit.Metadata, key); value != "" {
			lines = append(lines, fmt.Sprintf("**%s:** %s", titleWords(key), value))
			break
		}
	}

	lines = append(lines, fmt.Sprintf("\n**Content:**\n%s", f.truncateChunk(hitText(hit))))
	lines = append(lines, fmt.Sprintf("\n*Relevance Score: %.3f*", hit.Score))
	return strings.Join(lines, "\n")
}

// truncateChunk bounds chunk text for display, appending an ellipsis
// when text was dropped. Counts runes, not bytes: legal text is full of
// curly quotes and section marks that a byte cut would split.
func (f *Formatter) truncateChunk(text string) string {
	runes := []rune(text)
	if len(runes) > f.maxChunkLength {
		return string(runes[:f.maxChunkLength]) + "..."
	}
	return text
}

// fullDocumentHint suggests full-document retrieval after a search that
// produced at most hintMaxHits results with a top score of at least
// hintMinScore. One invocation line per unique source document, keyed
// by the chunk that surfaced it.
func fullDocumentHint(hits []Hit) string {
	if len(hits) == 0 || len(hits) > hintMaxHits {
		return ""
	}
	var maxScore float32
	for _, hit := range hits {
		if hit.Score > maxScore {
			maxScore = hit.Score
		}
	}
	if maxScore < hintMinScore {
		return ""
	}

	seen := make(map[string]bool, len(hits))
	var lines []string
	for _, hit := range hits {
		docID := firstString(hit.Metadata, "document_id")
		if docID == "" || seen[docID] || hit.ID == "" || hit.Collection == "" {
			continue
		}
		seen[docID] = true

		label := firstString(hit.Metadata, "case_name", "title")
		if label == "" {
			label = docID
		}
		lines = append(lines, fmt.Sprintf("- %s: `get_document_by_id(document_id=%q, collection=%q, full_document=true)`",
			label, hit.ID, hit.Collection))
	}
	if len(lines) == 0 {
		return ""
	}

	out := []string{"---", "**Full Document Access:**", "Retrieve complete documents for deeper context:"}
	out = append(out, lines...)
	return strings.Join(out, "\n")
}

// resolveHitType classifies an untagged hit from its payload shape.
func resolveHitType(hit Hit) string {
	if hit.Type != "" {
		return hit.Type
	}
	meta := hit.Metadata
	if _, ok := meta["case_name"]; ok {
		return "scotus"
	}
	if _, ok := meta["opinion_type"]; ok {
		return "scotus"
	}
	if _, ok := meta["executive_order_number"]; ok {
		return "executive_order"
	}
	if _, ok := meta["president"]; ok {
		return "executive_order"
	}
	return ""
}

// hitText resolves the display text for a hit, falling back to payload
// fields left by older ingest runs.
func hitText(hit Hit) string {
	if hit.Text != "" {
		return hit.Text
	}
	if text := firstString(hit.Metadata, "text", "chunk_text"); text != "" {
		return text
	}
	return "No text available"
}

// metaItem is one rendered metadata bullet.
type metaItem struct {
	Label string
	Value string
}

// dateFields are payload keys holding YYYY-MM-DD values that print in
// long form.
var dateFields = map[string]bool{
	"date":             true,
	"signing_date":     true,
	"publication_date": true,
}

// relevantMetadata selects and orders the metadata bullets for a
// collection. Unknown collections show their first ten fields sorted by
// key.
func relevantMetadata(collection string, meta map[string]any) []metaItem {
	var fields []string
	switch collection {
	case ScotusCollection:
		fields = []string{
			"opinion_type", "justice", "section_label", "date",
			"topics_or_policy_areas", "constitution_cited",
			"federal_statutes_cited", "cases_cited",
		}
	case EOCollection:
		fields = []string{
			"president", "signing_date", "section_label",
			"policy_topics", "impacted_agencies", "federal_statutes_cited",
		}
	default:
		for key := range meta {
			if key != "text" {
				fields = append(fields, key)
			}
		}
		sort.Strings(fields)
		if len(fields) > 10 {
			fields = fields[:10]
		}
	}

	items := make([]metaItem, 0, len(fields))
	for _, field := range fields {
		value := metaString(meta[field])
		if value == "" {
			continue
		}
		if dateFields[field] {
			value = formatDate(value)
		}
		items = append(items, metaItem{Label: titleWords(field), Value: value})
	}
	return items
}

// firstString returns the first non-empty scalar among the named
// payload keys.
func firstString(meta map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := meta[key]; ok {
			if s := metaString(value); s != "" {
				return s
			}
		}
	}
	return ""
}

// firstList returns the first non-empty list among the named payload
// keys. Values decoded from the vector store arrive as []any.
func firstList(meta map[string]any, keys ...string) []string {
	for _, key := range keys {
		switch value := meta[key].(type) {
		case []string:
			if len(value) > 0 {
				return value
			}
		case []any:
			out := make([]string, 0, len(value))
			for _, item := range value {
				if s := metaString(item); s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

// metaString renders one payload value for display. Lists join with
// commas; maps naming themselves collapse to the name.
func metaString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case []string:
		return strings.Join(t, ", ")
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, metaString(item))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		if name, ok := t["name"].(string); ok {
			return name
		}
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	default:
		return fmt.Sprint(v)
	}
}

// formatDate renders a YYYY-MM-DD payload date as "Month DD, YYYY".
// Values that do not parse pass through unchanged; missing dates format
// as empty strings.
func formatDate(value string) string {
	if value == "" {
		return ""
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return value
	}
	return t.Format("January 2, 2006")
}

// titleWords capitalizes each underscore or space separated word:
// "opinion_type" becomes "Opinion Type".
func titleWords(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == ' '
	})
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// clip bounds a string at n runes without an ellipsis.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// commaUint renders n with thousands separators.
func commaUint(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
