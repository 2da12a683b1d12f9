// Package payload assembles vector-store payloads from fetched documents.
// The builder normalizes source metadata for the document's kind, chunks
// the text, merges in model-extracted fields and emits one payload per
// chunk. Payloads carry everything except the vector, which the ingester
// fills in after batch embedding.
package payload

import (
	"reflect"
	"strings"

	"github.com/govreporter/govreporter/internal/apis"
)

// Kind identifies which normalizer, chunker and extractor a document gets.
type Kind int

const (
	KindUnknown Kind = iota
	KindScotus
	KindExecutiveOrder
)

// String returns the progress-tracker spelling of the kind.
func (k Kind) String() string {
	switch k {
	case KindScotus:
		return "scotus"
	case KindExecutiveOrder:
		return "executive_order"
	default:
		return "unknown"
	}
}

// DetectKind classifies a document from its type and source strings.
// Adapters emit the canonical spellings, but documents built by other
// callers are accepted on loose hints: anything mentioning a court is
// treated as an opinion, anything mentioning the Federal Register as an
// executive order. The court check wins when both match.
func DetectKind(doc *apis.Document) Kind {
	if doc == nil {
		return KindUnknown
	}
	typ := strings.ToLower(doc.Type)
	src := strings.ToLower(doc.Source)
	switch {
	case doc.Type == apis.TypeScotusOpinion,
		strings.Contains(typ, "scotus"),
		strings.Contains(src, "court"):
		return KindScotus
	case doc.Type == apis.TypeExecutiveOrder,
		strings.Contains(typ, "executive"),
		strings.Contains(src, "federal"):
		return KindExecutiveOrder
	default:
		return KindUnknown
	}
}

// Payload is one vector-store point minus its vector: the chunk text plus
// the merged document, model and chunk metadata. ID is the chunk ID the
// store derives its point UUID from.
type Payload struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]any
}

// Validate reports whether a payload can be upserted: non-empty ID and
// text, a metadata map, and every metadata value of a JSON-representable
// kind. The embedding may still be empty; the ingester fills it later.
func Validate(p Payload) bool {
	if p.ID == "" || p.Text == "" {
		return false
	}
	if p.Metadata == nil {
		return false
	}
	for _, v := range p.Metadata {
		if !jsonValue(v) {
			return false
		}
	}
	return true
}

// jsonValue reports whether v is a plain JSON-representable value. Only
// primitives, slices and maps qualify; structs, channels and functions
// would round-trip through the store as surprises, so they are rejected.
func jsonValue(v any) bool {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return true
	}
	return false
}
