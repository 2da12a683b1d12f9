package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/govreporter/govreporter/internal/apis"
	"github.com/govreporter/govreporter/internal/embed"
	gverrors "github.com/govreporter/govreporter/internal/errors"
	"github.com/govreporter/govreporter/internal/payload"
	"github.com/govreporter/govreporter/internal/store"
)

const (
	// ScotusCollection holds Supreme Court opinion chunks.
	ScotusCollection = "supreme_court_opinions"

	// DefaultScotusBatchSize groups opinions per vector-store flush.
	DefaultScotusBatchSize = 50
)

// ScotusAPI is the slice of the CourtListener client the opinion source
// drives. Tests substitute a fixture-backed fake.
type ScotusAPI interface {
	ValidateCourt(ctx context.Context, opinionID string) error
	GetDocument(ctx context.Context, id string) (*apis.Document, error)
	ListDocumentIDs(ctx context.Context, startDate, endDate string, max int) ([]string, error)
	ListingMetadata(opinionID string) map[string]any
}

var _ ScotusAPI = (*apis.CourtListenerClient)(nil)

// PayloadBuilder is the chunk-and-enrich step shared by both sources.
type PayloadBuilder interface {
	BuildFromDocument(ctx context.Context, doc *apis.Document) ([]payload.Payload, error)
}

var _ PayloadBuilder = (*payload.Builder)(nil)

// ScotusSource feeds Supreme Court opinions from CourtListener through
// the pipeline.
type ScotusSource struct {
	api      ScotusAPI
	builder  PayloadBuilder
	embedder embed.Embedder
	logger   *slog.Logger
}

var _ Source = (*ScotusSource)(nil)

// NewScotusSource wires the opinion source. A nil logger falls back to
// slog.Default.
func NewScotusSource(api ScotusAPI, builder PayloadBuilder, embedder embed.Embedder, logger *slog.Logger) *ScotusSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScotusSource{api: api, builder: builder, embedder: embedder, logger: logger}
}

// Collection implements Source.
func (s *ScotusSource) Collection() string { return ScotusCollection }

// DefaultBatchSize implements Source.
func (s *ScotusSource) DefaultBatchSize() int { return DefaultScotusBatchSize }

// ListDocumentIDs walks the CourtListener clusters endpoint for the date
// range.
func (s *ScotusSource) ListDocumentIDs(ctx context.Context, startDate, endDate string) ([]string, error) {
	return s.api.ListDocumentIDs(ctx, startDate, endDate, 0)
}

// DocumentMetadata returns the cluster fields cached during listing.
func (s *ScotusSource) DocumentMetadata(docID string) map[string]any {
	return s.api.ListingMetadata(docID)
}

// ProcessDocument checks the opinion's court before spending model
// budget on it, then fetches, chunks, enriches and embeds the opinion.
// Search indexes occasionally return stale rows from other courts, so
// the check is not optional.
func (s *ScotusSource) ProcessDocument(ctx context.Context, docID string) ([]store.StoredDocument, error) {
	if err := s.api.ValidateCourt(ctx, docID); err != nil {
		return nil, err
	}

	doc, err := s.api.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, gverrors.New(gverrors.ErrCodeIngestFailed,
			fmt.Sprintf("could not fetch document for opinion %s", docID), nil)
	}

	title := doc.Title
	if title == "" {
		title = "Opinion ID: " + docID
	}
	s.logger.Info("ingesting opinion", slog.String("case", title))

	payloads, err := s.builder.BuildFromDocument(ctx, doc)
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, gverrors.New(gverrors.ErrCodeChunkingFailed,
			fmt.Sprintf("no payloads generated for opinion %s", docID), nil)
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, chunkTexts(payloads))
	if err != nil {
		return nil, err
	}
	return storedDocuments(docID, payloads, embeddings)
}
