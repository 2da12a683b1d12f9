package payload

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/govreporter/govreporter/internal/apis"
	"github.com/govreporter/govreporter/internal/chunk"
	gverrors "github.com/govreporter/govreporter/internal/errors"
	"github.com/govreporter/govreporter/internal/extract"
)

// Builder turns one fetched document into the payloads the ingester
// embeds and upserts. Chunkers are injected so both document kinds share
// one builder and tests can shrink the token budgets.
type Builder struct {
	extractor extract.Extractor
	scotus    *chunk.ScotusChunker
	eo        *chunk.EOChunker
	logger    *slog.Logger
}

// NewBuilder wires a builder from its parts. A nil logger falls back to
// slog.Default.
func NewBuilder(extractor extract.Extractor, scotusChunker *chunk.ScotusChunker, eoChunker *chunk.EOChunker, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		extractor: extractor,
		scotus:    scotusChunker,
		eo:        eoChunker,
		logger:    logger,
	}
}

// BuildFromDocument normalizes, chunks and enriches one document and
// returns a payload per chunk.
//
// A document of unknown kind is skipped with a warning rather than
// failing the run. Extraction failures degrade: the fallback fields are
// stored and the payloads carry llm_extraction_failed and
// requires_reprocessing so a later run can redo them.
func (b *Builder) BuildFromDocument(ctx context.Context, doc *apis.Document) ([]Payload, error) {
	if doc == nil {
		return nil, gverrors.ValidationError("document is nil", nil)
	}
	if doc.Content == "" {
		return nil, gverrors.New(gverrors.ErrCodeEmptyContent,
			fmt.Sprintf("document %s has no content to process", doc.ID), nil)
	}

	switch kind := DetectKind(doc); kind {
	case KindScotus:
		return b.buildScotus(ctx, doc)
	case KindExecutiveOrder:
		return b.buildEO(ctx, doc)
	default:
		b.logger.Warn("unknown document type, skipping",
			slog.String("doc_id", doc.ID),
			slog.String("type", doc.Type),
			slog.String("source", doc.Source))
		return []Payload{}, nil
	}
}

func (b *Builder) buildScotus(ctx context.Context, doc *apis.Document) ([]Payload, error) {
	docMeta := normalizeScotusMetadata(doc, b.logger)

	chunks, syllabus := b.scotus.Chunk(doc.Content)
	if len(chunks) == 0 {
		b.logger.Warn("no chunks generated", slog.String("doc_id", doc.ID))
		return []Payload{}, nil
	}

	fields, err := b.extractor.ExtractScotus(ctx, doc.Content, syllabus)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.logger.Warn("metadata extraction failed, storing fallback fields",
			slog.String("doc_id", doc.ID),
			gverrors.LogAttr(err))
		if fields == nil {
			fields = extract.FallbackScotusFields()
		}
	}

	full := mergeMetadata(docMeta, fields.Metadata())
	if err != nil {
		full["llm_extraction_failed"] = true
		full["requires_reprocessing"] = true
	}

	payloads := assemblePayloads(doc.ID, full, chunks)
	b.logger.Debug("built payloads",
		slog.String("doc_id", doc.ID),
		slog.String("kind", KindScotus.String()),
		slog.Int("payloads", len(payloads)))
	return payloads, nil
}

func (b *Builder) buildEO(ctx context.Context, doc *apis.Document) ([]Payload, error) {
	docMeta := normalizeEOMetadata(doc, b.logger)

	chunks := b.eo.Chunk(doc.Content)
	if len(chunks) == 0 {
		b.logger.Warn("no chunks generated", slog.String("doc_id", doc.ID))
		return []Payload{}, nil
	}

	fields, err := b.extractor.ExtractEO(ctx, doc.Content)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.logger.Warn("metadata extraction failed, storing fallback fields",
			slog.String("doc_id", doc.ID),
			gverrors.LogAttr(err))
		if fields == nil {
			fields = extract.FallbackEOFields()
		}
	}

	full := mergeMetadata(docMeta, fields.Metadata())
	if err != nil {
		full["llm_extraction_failed"] = true
		full["requires_reprocessing"] = true
	}

	// The executive order search filters read these keys.
	full["impacted_agencies"] = full["agencies_impacted"]
	full["policy_topics"] = full["topics_or_policy_areas"]

	payloads := assemblePayloads(doc.ID, full, chunks)
	b.logger.Debug("built payloads",
		slog.String("doc_id", doc.ID),
		slog.String("kind", KindExecutiveOrder.String()),
		slog.Int("payloads", len(payloads)))
	return payloads, nil
}

// assemblePayloads stamps each chunk with its ID, index and section label
// on top of a copy of the shared document metadata.
func assemblePayloads(docID string, full map[string]any, chunks []chunk.Chunk) []Payload {
	payloads := make([]Payload, 0, len(chunks))
	for i, c := range chunks {
		chunkID := fmt.Sprintf("%s_chunk_%d", docID, i)

		label := c.SectionLabel
		if label == "" {
			label = "Unknown"
		}

		meta := maps.Clone(full)
		meta["chunk_id"] = chunkID
		meta["chunk_index"] = i
		meta["section_label"] = label

		payloads = append(payloads, Payload{
			ID:        chunkID,
			Text:      c.Text,
			Embedding: []float32{},
			Metadata:  meta,
		})
	}
	return payloads
}

// mergeMetadata overlays the model-extracted fields on the normalized
// document fields. The two key sets are disjoint today; the model wins
// if that ever changes.
func mergeMetadata(docMeta, llmFields map[string]any) map[string]any {
	merged := make(map[string]any, len(docMeta)+len(llmFields)+4)
	maps.Copy(merged, docMeta)
	maps.Copy(merged, llmFields)
	return merged
}
