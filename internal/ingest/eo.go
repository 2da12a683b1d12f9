package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/govreporter/govreporter/internal/apis"
	"github.com/govreporter/govreporter/internal/embed"
	gverrors "github.com/govreporter/govreporter/internal/errors"
	"github.com/govreporter/govreporter/internal/store"
)

const (
	// EOCollection holds executive order chunks.
	EOCollection = "executive_orders"

	// DefaultEOBatchSize groups orders per vector-store flush. Orders
	// run longer than opinions through extraction, so batches are
	// smaller.
	DefaultEOBatchSize = 25
)

// EOAPI is the slice of the Federal Register client the executive order
// source drives.
type EOAPI interface {
	GetDocument(ctx context.Context, id string) (*apis.Document, error)
	ListDocumentIDs(ctx context.Context, startDate, endDate string, max int) ([]string, error)
	ListingMetadata(id string) map[string]any
	TextCacheLen() int
}

var _ EOAPI = (*apis.FederalRegisterClient)(nil)

// EOSource feeds executive orders from the Federal Register through the
// pipeline. Raw-text fetches are cached by URL inside the API client, so
// orders sharing a raw_text_url cost one fetch.
type EOSource struct {
	api      EOAPI
	builder  PayloadBuilder
	embedder embed.Embedder
	logger   *slog.Logger
}

var _ Source = (*EOSource)(nil)

// NewEOSource wires the executive order source. A nil logger falls back
// to slog.Default.
func NewEOSource(api EOAPI, builder PayloadBuilder, embedder embed.Embedder, logger *slog.Logger) *EOSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &EOSource{api: api, builder: builder, embedder: embedder, logger: logger}
}

// Collection implements Source.
func (s *EOSource) Collection() string { return EOCollection }

// DefaultBatchSize implements Source.
func (s *EOSource) DefaultBatchSize() int { return DefaultEOBatchSize }

// ListDocumentIDs pages the Federal Register listing for the date range.
// The client caches each listing record, so processing needs no second
// metadata fetch per order.
func (s *EOSource) ListDocumentIDs(ctx context.Context, startDate, endDate string) ([]string, error) {
	return s.api.ListDocumentIDs(ctx, startDate, endDate, 0)
}

// DocumentMetadata returns the order fields cached during listing.
func (s *EOSource) DocumentMetadata(docID string) map[string]any {
	return s.api.ListingMetadata(docID)
}

// ProcessDocument fetches, chunks, enriches and embeds one executive
// order.
func (s *EOSource) ProcessDocument(ctx context.Context, docID string) ([]store.StoredDocument, error) {
	doc, err := s.api.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, gverrors.New(gverrors.ErrCodeIngestFailed,
			fmt.Sprintf("could not fetch document for order %s", docID), nil)
	}

	eoNumber, _ := doc.Metadata["executive_order_number"].(string)
	if eoNumber == "" {
		eoNumber = "N/A"
	}
	s.logger.Info("ingesting executive order",
		slog.String("eo_number", eoNumber),
		slog.String("url", doc.URL))

	payloads, err := s.builder.BuildFromDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, gverrors.New(gverrors.ErrCodeChunkingFailed,
			fmt.Sprintf("no payloads generated for order %s", docID), nil)
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, chunkTexts(payloads))
	if err != nil {
		return nil, err
	}
	return storedDocuments(docID, payloads, embeddings)
}

// appendStats adds the raw-text cache line to the final statistics
// block.
func (s *EOSource) appendStats(w io.Writer) {
	fmt.Fprintf(w, "\nText URL Cache Hits: %d unique URLs cached\n", s.api.TextCacheLen())
}
