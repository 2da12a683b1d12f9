package apis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	gverrors "github.com/govreporter/govreporter/internal/errors"
)

const (
	federalRegisterBaseURL = "https://www.federalregister.gov/api/v1"

	// eoPageSize is the per_page value for the documents listing.
	eoPageSize = 100

	// eoTextCacheSize caps the raw-text LRU. Consecutive orders sharing
	// a raw_text_url (common for corrections) hit the cache.
	eoTextCacheSize = 128
)

// eoListingFields is the projection requested from the documents
// listing. Keeping the listing records complete lets GetDocument run
// from cache without a second metadata fetch.
var eoListingFields = []string{
	"document_number",
	"title",
	"executive_order_number",
	"publication_date",
	"signing_date",
	"president",
	"citation",
	"html_url",
	"pdf_url",
	"full_text_xml_url",
	"body_html_url",
	"raw_text_url",
	"json_url",
	"agencies",
	"topics",
}

// FederalRegisterConfig configures the Executive Order adapter.
type FederalRegisterConfig struct {
	// BaseURL overrides the production endpoint, mainly for tests.
	BaseURL string

	// MinDelay is the gap enforced between successive requests. The
	// Federal Register allows 60 requests per minute; the default of
	// 1.1 s stays under that with margin.
	MinDelay time.Duration

	// Timeout bounds one HTTP attempt. Defaults to 30 s.
	Timeout time.Duration
}

// FederalRegisterClient fetches Executive Orders from the Federal
// Register API v1. No authentication is required.
type FederalRegisterClient struct {
	cfg    FederalRegisterConfig
	http   *Client
	logger *slog.Logger

	mu        sync.Mutex
	orders    map[string]*eoRecord // document_number -> listing record
	textCache *lru.Cache[string, string]
}

var _ Adapter = (*FederalRegisterClient)(nil)

// NewFederalRegisterClient builds the adapter.
func NewFederalRegisterClient(cfg FederalRegisterConfig, logger *slog.Logger) *FederalRegisterClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = federalRegisterBaseURL
	}
	if cfg.MinDelay == 0 {
		cfg.MinDelay = 1100 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	textCache, _ := lru.New[string, string](eoTextCacheSize)

	return &FederalRegisterClient{
		cfg: cfg,
		http: NewClient(ClientConfig{
			Headers:  map[string]string{"Accept": "application/json"},
			MinDelay: cfg.MinDelay,
			Timeout:  cfg.Timeout,
			// The Federal Register rate-limits aggressively; five
			// retries at 1s,2s,4s,8s,16s ride out a 429 burst.
			MaxRetries:   5,
			InitialDelay: 1 * time.Second,
			MaxDelay:     16 * time.Second,
		}, logger),
		logger:    logger,
		orders:    make(map[string]*eoRecord),
		textCache: textCache,
	}
}

type presidentRecord struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
}

type agencyRecord struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// eoRecord is the Federal Register document projection we consume.
// executive_order_number arrives as either a bare number or a string
// depending on the endpoint, hence the RawMessage.
type eoRecord struct {
	DocumentNumber  string          `json:"document_number"`
	Title           string          `json:"title"`
	EONumber        json.RawMessage `json:"executive_order_number"`
	PublicationDate string          `json:"publication_date"`
	SigningDate     string          `json:"signing_date"`
	President       presidentRecord `json:"president"`
	Citation        string          `json:"citation"`
	HTMLURL         string          `json:"html_url"`
	PDFURL          string          `json:"pdf_url"`
	RawTextURL      string          `json:"raw_text_url"`
	Abstract        string          `json:"abstract"`
	Agencies        []agencyRecord  `json:"agencies"`
	Topics          []string        `json:"topics"`
}

type eoPage struct {
	Count      int        `json:"count"`
	TotalPages int        `json:"total_pages"`
	Results    []eoRecord `json:"results"`
}

// GetDocument assembles a Document for one executive order, preferring
// the record cached during listing. Content comes from raw_text_url,
// falling back to the abstract when the order has no raw text.
func (c *FederalRegisterClient) GetDocument(ctx context.Context, id string) (*Document, error) {
	rec, err := c.orderRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	content := ""
	if rec.RawTextURL != "" {
		content, err = c.GetExecutiveOrderText(ctx, rec.RawTextURL)
		if err != nil {
			return nil, err
		}
	} else {
		c.logger.Warn("order has no raw_text_url, using abstract",
			slog.String("document_number", id))
		content = rec.Abstract
	}

	agencies := make([]string, 0, len(rec.Agencies))
	for _, agency := range rec.Agencies {
		if agency.Name != "" {
			agencies = append(agencies, agency.Name)
		}
	}

	date := rec.SigningDate
	if date == "" {
		date = rec.PublicationDate
	}

	return &Document{
		ID:      rec.DocumentNumber,
		Title:   rec.Title,
		Date:    date,
		Type:    TypeExecutiveOrder,
		Source:  SourceFederalRegister,
		Content: content,
		URL:     rec.HTMLURL,
		Metadata: map[string]any{
			"document_number":        rec.DocumentNumber,
			"title":                  rec.Title,
			"executive_order_number": eoNumberString(rec.EONumber),
			"president":              rec.President.Name,
			"signing_date":           rec.SigningDate,
			"publication_date":       rec.PublicationDate,
			"citation":               rec.Citation,
			"html_url":               rec.HTMLURL,
			"pdf_url":                rec.PDFURL,
			"raw_text_url":           rec.RawTextURL,
			"agencies":               agencies,
			"topics":                 rec.Topics,
		},
	}, nil
}

// GetDocumentText fetches only the plain text of an executive order.
func (c *FederalRegisterClient) GetDocumentText(ctx context.Context, id string) (string, error) {
	rec, err := c.orderRecord(ctx, id)
	if err != nil {
		return "", err
	}
	if rec.RawTextURL == "" {
		return rec.Abstract, nil
	}
	return c.GetExecutiveOrderText(ctx, rec.RawTextURL)
}

// ListDocumentIDs pages through every executive order signed in
// [startDate, endDate] and returns their document numbers. Each listing
// record is cached for the later GetDocument calls.
func (c *FederalRegisterClient) ListDocumentIDs(ctx context.Context, startDate, endDate string, max int) ([]string, error) {
	if !ValidateDateFormat(startDate) {
		return nil, gverrors.New(gverrors.ErrCodeInvalidDate,
			fmt.Sprintf("invalid start date %q, want YYYY-MM-DD", startDate), nil)
	}
	if !ValidateDateFormat(endDate) {
		return nil, gverrors.New(gverrors.ErrCodeInvalidDate,
			fmt.Sprintf("invalid end date %q, want YYYY-MM-DD", endDate), nil)
	}

	listURL := c.cfg.BaseURL + "/documents"

	var ids []string
	for page := 1; ; page++ {
		params := url.Values{}
		params.Set("conditions[type]", "PRESDOCU")
		params.Set("conditions[presidential_document_type]", "executive_order")
		params.Set("conditions[signing_date][gte]", startDate)
		params.Set("conditions[signing_date][lte]", endDate)
		for _, field := range eoListingFields {
			params.Add("fields[]", field)
		}
		params.Set("per_page", strconv.Itoa(eoPageSize))
		params.Set("page", strconv.Itoa(page))

		var pg eoPage
		if err := c.http.GetJSON(ctx, listURL, params, &pg); err != nil {
			return nil, err
		}
		if len(pg.Results) == 0 {
			break
		}

		for i := range pg.Results {
			rec := &pg.Results[i]
			if rec.DocumentNumber == "" {
				c.logger.Warn("listing record has no document_number, skipping")
				continue
			}
			c.mu.Lock()
			c.orders[rec.DocumentNumber] = rec
			c.mu.Unlock()
			ids = append(ids, rec.DocumentNumber)
			if max > 0 && len(ids) >= max {
				return ids, nil
			}
		}

		c.logger.Info("fetched executive order page",
			slog.Int("page", page),
			slog.Int("total_pages", pg.TotalPages),
			slog.Int("orders", len(ids)))

		if page >= pg.TotalPages {
			break
		}
	}

	return ids, nil
}

// GetExecutiveOrderText fetches the raw text for an order and cleans the
// HTML wrapper some orders are served in. Results are cached by URL.
func (c *FederalRegisterClient) GetExecutiveOrderText(ctx context.Context, rawTextURL string) (string, error) {
	if text, ok := c.textCache.Get(rawTextURL); ok {
		c.logger.Debug("raw text cache hit", slog.String("url", rawTextURL))
		return text, nil
	}

	body, err := c.http.GetText(ctx, rawTextURL)
	if err != nil {
		return "", err
	}

	text := cleanExecutiveOrderHTML(body)
	c.textCache.Add(rawTextURL, text)
	return text, nil
}

// TextCacheLen reports how many unique raw-text URLs are cached.
func (c *FederalRegisterClient) TextCacheLen() int {
	return c.textCache.Len()
}

// ListingMetadata returns the order fields captured during listing, or
// nil when the order was not seen in a listing. The ingester stores
// these on the order's progress row.
func (c *FederalRegisterClient) ListingMetadata(id string) map[string]any {
	c.mu.Lock()
	rec, ok := c.orders[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return map[string]any{
		"title":                  rec.Title,
		"executive_order_number": eoNumberString(rec.EONumber),
		"signing_date":           rec.SigningDate,
		"publication_date":       rec.PublicationDate,
	}
}

// orderRecord returns the metadata record for a document number,
// preferring the listing cache.
func (c *FederalRegisterClient) orderRecord(ctx context.Context, id string) (*eoRecord, error) {
	c.mu.Lock()
	cached, ok := c.orders[id]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	var rec eoRecord
	if err := c.http.GetJSON(ctx, c.cfg.BaseURL+"/documents/"+id, nil, &rec); err != nil {
		return nil, err
	}
	if rec.DocumentNumber == "" {
		rec.DocumentNumber = id
	}

	c.mu.Lock()
	c.orders[id] = &rec
	c.mu.Unlock()
	return &rec, nil
}

var (
	preBlockRe = regexp.MustCompile(`(?s)<pre>(.*?)</pre>`)
	anchorRe   = regexp.MustCompile(`<a[^>]*>.*?</a>`)
)

// cleanExecutiveOrderHTML extracts plain text from a raw-text response.
// Most orders are served as plain text, but some arrive wrapped in an
// HTML page whose <pre> block holds the entity-escaped text with anchor
// tags around cross-references.
func cleanExecutiveOrderHTML(body string) string {
	text := body
	if strings.HasPrefix(text, "<html>") {
		if m := preBlockRe.FindStringSubmatch(text); m != nil {
			text = m[1]
			text = strings.ReplaceAll(text, "&lt;", "<")
			text = strings.ReplaceAll(text, "&gt;", ">")
			text = strings.ReplaceAll(text, "&amp;", "&")
			text = strings.ReplaceAll(text, "&quot;", `"`)
			text = anchorRe.ReplaceAllString(text, "")
		}
	}
	return strings.TrimSpace(text)
}

// eoNumberString renders executive_order_number, which the API returns
// as either a bare number or a quoted string.
func eoNumberString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	return strings.Trim(s, `"`)
}
