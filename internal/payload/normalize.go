package payload

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/govreporter/govreporter/internal/apis"
)

// opinionTypeNames maps CourtListener opinion type codes to the names
// stored in chunk payloads. Codes outside the map pass through unchanged.
var opinionTypeNames = map[string]string{
	"010combined":            "majority",
	"020lead":                "majority",
	"030concurrence":         "concurrence",
	"040dissent":             "dissent",
	"050concurrence_dissent": "concurrence_dissent",
}

// normalizeScotusMetadata flattens an opinion document into the payload
// field set. The spelling of source and type is forced to the canonical
// form regardless of what the caller supplied, and the authoring justice
// and decision date are duplicated under the keys the search filters use.
func normalizeScotusMetadata(doc *apis.Document, logger *slog.Logger) map[string]any {
	md := doc.Metadata

	caseName := stringField(md, "case_name")
	if caseName == "" {
		caseName = doc.Title
	}

	citation := stringField(md, "citation")
	if citation == "" {
		citation = citationFromList(md["citations"], doc.Date, logger)
	}

	opinionType := stringField(md, "type")
	if name, ok := opinionTypeNames[opinionType]; ok {
		opinionType = name
	}

	url := doc.URL
	if url == "" {
		url = stringField(md, "absolute_url")
	}
	if url == "" {
		url = stringField(md, "download_url")
	}

	author := stringField(md, "author_str")

	return map[string]any{
		"document_id":       doc.ID,
		"title":             doc.Title,
		"publication_date":  doc.Date,
		"date":              doc.Date,
		"year":              yearFromDate(doc.Date, logger),
		"source":            apis.SourceCourtListener,
		"type":              apis.TypeScotusOpinion,
		"url":               url,
		"citation_bluebook": citation,
		"case_name":         caseName,
		"opinion_type":      opinionType,
		"judges":            stringField(md, "judges"),
		"author_str":        author,
		"justice":           author,
		"per_curiam":        boolField(md, "per_curiam"),
		"joined_by_str":     stringField(md, "joined_by_str"),
	}
}

// normalizeEOMetadata flattens an executive order document into the
// payload field set. The order number is stored under both eo_number and
// executive_order_number; the retrieval side reads the long form.
func normalizeEOMetadata(doc *apis.Document, logger *slog.Logger) map[string]any {
	md := doc.Metadata

	eoNumber := stringField(md, "executive_order_number")
	if eoNumber == "" {
		eoNumber = stringField(md, "presidential_document_number")
	}

	citation := stringField(md, "citation")
	if citation == "" {
		volume := stringField(md, "volume")
		startPage := stringField(md, "start_page")
		if volume != "" && startPage != "" {
			citation = fmt.Sprintf("%s FR %s", volume, startPage)
		}
	}

	url := doc.URL
	if url == "" {
		url = stringField(md, "html_url")
	}
	if url == "" {
		url = stringField(md, "pdf_url")
	}

	signingDate := stringField(md, "signing_date")
	if signingDate == "" {
		signingDate = doc.Date
	}

	return map[string]any{
		"document_id":            doc.ID,
		"title":                  doc.Title,
		"publication_date":       doc.Date,
		"year":                   yearFromDate(doc.Date, logger),
		"source":                 apis.SourceFederalRegister,
		"type":                   apis.TypeExecutiveOrder,
		"url":                    url,
		"citation_bluebook":      citation,
		"eo_number":              eoNumber,
		"executive_order_number": eoNumber,
		"president":              presidentName(md["president"]),
		"agencies":               stringList(md["agencies"]),
		"signing_date":           signingDate,
	}
}

// yearFromDate extracts the four-digit year from a YYYY-MM-DD or
// YYYY/MM/DD string. Unparseable dates fall back to the current year so
// a bad date never sinks the whole document.
func yearFromDate(date string, logger *slog.Logger) int {
	if len(date) >= 5 && (date[4] == '-' || date[4] == '/') {
		if year, err := strconv.Atoi(date[:4]); err == nil {
			return year
		}
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return t.Year()
	}
	logger.Warn("failed to parse date, using current year",
		slog.String("date", date))
	return time.Now().Year()
}

// citationFromList builds a bluebook citation from a loosely-typed
// citations list, preferring the official U.S. reporter entry (type 1).
// Documents fetched through the CourtListener adapter arrive with the
// citation already built; this path serves documents assembled elsewhere.
func citationFromList(v any, date string, logger *slog.Logger) string {
	list, ok := v.([]any)
	if !ok {
		return ""
	}
	for _, item := range list {
		cite, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if citeType(cite["type"]) != 1 {
			continue
		}
		volume := anyString(cite["volume"])
		reporter := anyString(cite["reporter"])
		page := anyString(cite["page"])
		if volume != "" && reporter != "" && page != "" {
			return fmt.Sprintf("%s %s %s (%d)", volume, reporter, page, yearFromDate(date, logger))
		}
	}
	return ""
}

// citeType reads a citation type discriminator that may arrive as any
// numeric flavor depending on how the metadata map was built.
func citeType(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

// presidentName unwraps the president field, which the Federal Register
// API ships as an object but loose callers may flatten to a string.
func presidentName(v any) string {
	switch t := v.(type) {
	case map[string]any:
		return anyString(t["name"])
	default:
		return anyString(v)
	}
}

// stringField returns md[key] rendered as a string, or "" when the map
// or the key is absent.
func stringField(md map[string]any, key string) string {
	if md == nil {
		return ""
	}
	return anyString(md[key])
}

// boolField returns md[key] when it is a bool, false otherwise.
func boolField(md map[string]any, key string) bool {
	if md == nil {
		return false
	}
	b, _ := md[key].(bool)
	return b
}

// anyString renders a metadata value as a string. Nil becomes "" and
// numbers keep their natural printing, so an order number stored as
// 14100 reads back as "14100".
func anyString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprintf("%v", v)
	}
}

// stringList renders a metadata value as a flat list of strings. Agency
// lists arrive either already flattened or as objects carrying a name.
func stringList(v any) []string {
	switch t := v.(type) {
	case nil:
		return []string{}
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if obj, ok := item.(map[string]any); ok {
				if name := anyString(obj["name"]); name != "" {
					out = append(out, name)
				}
				continue
			}
			if s := anyString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}
