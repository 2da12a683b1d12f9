package apis

import (
	"context"
	"regexp"
)

// Canonical document types and sources. Adapters emit these forms so that
// downstream filtering never has to guess at spelling.
const (
	TypeScotusOpinion  = "Supreme Court Opinion"
	TypeExecutiveOrder = "Executive Order"

	SourceCourtListener   = "CourtListener"
	SourceFederalRegister = "Federal Register"
)

// Document is the API-agnostic input to the ingestion pipeline. One
// Document holds the full text of a single opinion or executive order
// plus whatever source-specific metadata the adapter could collect.
type Document struct {
	// ID is the stable, source-issued identifier (CourtListener opinion
	// ID or Federal Register document number).
	ID string

	// Title is the case name or executive order title.
	Title string

	// Date is the decision or signing date in YYYY-MM-DD form.
	Date string

	// Type is TypeScotusOpinion or TypeExecutiveOrder.
	Type string

	// Source is SourceCourtListener or SourceFederalRegister.
	Source string

	// Content is the full plain text. Empty content never reaches the
	// payload builder; adapters surface an error instead.
	Content string

	// URL is the canonical web location for the document.
	URL string

	// Metadata carries source-specific fields (case_name, citations,
	// executive_order_number, president, agencies, ...). Values must be
	// JSON-serializable.
	Metadata map[string]any
}

// Adapter is the source-agnostic surface the ingester drives. Each
// government API gets one implementation.
type Adapter interface {
	// GetDocument fetches a fully populated Document by source ID.
	GetDocument(ctx context.Context, id string) (*Document, error)

	// GetDocumentText fetches only the plain text for a document.
	GetDocumentText(ctx context.Context, id string) (string, error)

	// ListDocumentIDs returns the IDs of all documents in the inclusive
	// date range. max <= 0 means no limit.
	ListDocumentIDs(ctx context.Context, startDate, endDate string, max int) ([]string, error)
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidateDateFormat reports whether s is a YYYY-MM-DD date string. Only
// the shape is checked; February 31st passes.
func ValidateDateFormat(s string) bool {
	return dateRe.MatchString(s)
}
