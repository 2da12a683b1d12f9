package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/errgroup"
	"google.golang.org/protobuf/types/known/timestamppb"

	gverrors "github.com/govreporter/govreporter/internal/errors"
	"github.com/govreporter/govreporter/internal/store"
)

// SearchDocumentsInput defines the input schema for the
// search_government_documents tool.
type SearchDocumentsInput struct {
	Query         string   `json:"query" jsonschema:"natural language search query to find semantically relevant documents"`
	DocumentTypes []string `json:"document_types,omitempty" jsonschema:"restrict search to 'scotus' or 'executive_orders', default searches both"`
	Limit         int      `json:"limit,omitempty" jsonschema:"maximum number of results to return, default 10, max 50"`
}

// SearchScotusInput defines the input schema for the
// search_scotus_opinions tool.
type SearchScotusInput struct {
	Query       string `json:"query" jsonschema:"natural language search query for semantic matching within SCOTUS opinions"`
	OpinionType string `json:"opinion_type,omitempty" jsonschema:"filter by opinion type: majority, concurring, dissenting, or syllabus"`
	Justice     string `json:"justice,omitempty" jsonschema:"filter by authoring justice last name, e.g. Roberts or Sotomayor"`
	StartDate   string `json:"start_date,omitempty" jsonschema:"filter opinions decided on or after this date (YYYY-MM-DD)"`
	EndDate     string `json:"end_date,omitempty" jsonschema:"filter opinions decided on or before this date (YYYY-MM-DD)"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of results to return, default 10, max 50"`
}

// SearchEOInput defines the input schema for the
// search_executive_orders tool.
type SearchEOInput struct {
	Query        string   `json:"query" jsonschema:"natural language search query for semantic matching within Executive Orders"`
	President    string   `json:"president,omitempty" jsonschema:"filter by president last name, e.g. Biden or Trump"`
	Agencies     []string `json:"agencies,omitempty" jsonschema:"filter by impacted federal agency codes, matches orders affecting any of them"`
	PolicyTopics []string `json:"policy_topics,omitempty" jsonschema:"filter by policy topic strings, matches orders tagged with any of them"`
	StartDate    string   `json:"start_date,omitempty" jsonschema:"filter orders signed on or after this date (YYYY-MM-DD)"`
	EndDate      string   `json:"end_date,omitempty" jsonschema:"filter orders signed on or before this date (YYYY-MM-DD)"`
	Limit        int      `json:"limit,omitempty" jsonschema:"maximum number of results to return, default 10, max 50"`
}

// GetDocumentInput defines the input schema for the get_document_by_id
// tool.
type GetDocumentInput struct {
	DocumentID   string `json:"document_id" jsonschema:"the unique document/chunk ID to retrieve, obtained from search results"`
	Collection   string `json:"collection" jsonschema:"the collection containing the document: supreme_court_opinions or executive_orders"`
	FullDocument bool   `json:"full_document,omitempty" jsonschema:"fetch the complete document from the government API instead of the stored chunk"`
}

// ListCollectionsInput has no parameters.
type ListCollectionsInput struct{}

// handleSearchDocuments runs the combined search across the requested
// collections, merges by score, and formats the result.
func (s *Server) handleSearchDocuments(ctx context.Context, in SearchDocumentsInput) (string, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(in.Query) == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}

	docTypes := in.DocumentTypes
	if len(docTypes) == 0 {
		docTypes = []string{"scotus", "executive_orders"}
	}
	limit := clampLimit(in.Limit, s.config.DefaultLimit, 1, s.config.MaxLimit)

	s.logger.Info("search_government_documents started",
		slog.String("request_id", requestID),
		slog.String("query", in.Query),
		slog.Int("limit", limit))

	vector, err := s.embedder.Embed(ctx, in.Query)
	if err != nil {
		s.logger.Error("search_government_documents failed",
			slog.String("request_id", requestID),
			gverrors.LogAttr(err))
		return "", err
	}

	type target struct {
		docType    string
		collection string
	}
	var targets []target
	for _, docType := range docTypes {
		switch docType {
		case "scotus":
			targets = append(targets, target{"scotus", s.collectionFor("scotus")})
		case "executive_orders", "executive_order":
			targets = append(targets, target{"executive_order", s.collectionFor("executive_orders")})
		default:
			s.logger.Warn("unknown document type requested",
				slog.String("request_id", requestID),
				slog.String("document_type", docType))
		}
	}

	// Collections are independent, so their searches run in parallel.
	hitsPerTarget := make([][]Hit, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		g.Go(func() error {
			results, err := s.store.SemanticSearch(gctx, t.collection, vector, limit, nil)
			if err != nil {
				return err
			}
			hitsPerTarget[i] = toHits(results, t.docType, t.collection)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("search_government_documents failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			gverrors.LogAttr(err))
		return "", err
	}

	var hits []Hit
	for _, part := range hitsPerTarget {
		hits = append(hits, part...)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	s.logger.Info("search_government_documents completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(hits)))

	return s.formatter.FormatSearchResults(in.Query, hits), nil
}

// handleSearchScotus runs the filtered Supreme Court opinion search.
func (s *Server) handleSearchScotus(ctx context.Context, in SearchScotusInput) (string, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(in.Query) == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	limit := clampLimit(in.Limit, s.config.DefaultLimit, 1, s.config.MaxLimit)

	s.logger.Info("search_scotus_opinions started",
		slog.String("request_id", requestID),
		slog.String("query", in.Query),
		slog.Int("limit", limit))

	filter, err := scotusFilter(in)
	if err != nil {
		return "", err
	}

	vector, err := s.embedder.Embed(ctx, in.Query)
	if err != nil {
		s.logger.Error("search_scotus_opinions failed",
			slog.String("request_id", requestID),
			gverrors.LogAttr(err))
		return "", err
	}

	collection := s.collectionFor("scotus")
	results, err := s.store.SemanticSearch(ctx, collection, vector, limit, filter)
	if err != nil {
		s.logger.Error("search_scotus_opinions failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			gverrors.LogAttr(err))
		return "", err
	}

	hits := toHits(results, "scotus", collection)
	s.logger.Info("search_scotus_opinions completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(hits)))

	return s.formatter.FormatScotusResults(in.Query, hits), nil
}

// handleSearchEO runs the filtered Executive Order search.
func (s *Server) handleSearchEO(ctx context.Context, in SearchEOInput) (string, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(in.Query) == "" {
		return "", NewInvalidParamsError("query parameter is required and must be a non-empty string")
	}
	limit := clampLimit(in.Limit, s.config.DefaultLimit, 1, s.config.MaxLimit)

	s.logger.Info("search_executive_orders started",
		slog.String("request_id", requestID),
		slog.String("query", in.Query),
		slog.Int("limit", limit))

	filter, err := eoFilter(in)
	if err != nil {
		return "", err
	}

	vector, err := s.embedder.Embed(ctx, in.Query)
	if err != nil {
		s.logger.Error("search_executive_orders failed",
			slog.String("request_id", requestID),
			gverrors.LogAttr(err))
		return "", err
	}

	collection := s.collectionFor("executive_orders")
	results, err := s.store.SemanticSearch(ctx, collection, vector, limit, filter)
	if err != nil {
		s.logger.Error("search_executive_orders failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			gverrors.LogAttr(err))
		return "", err
	}

	hits := toHits(results, "executive_order", collection)
	s.logger.Info("search_executive_orders completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(hits)))

	return s.formatter.FormatEOResults(in.Query, hits), nil
}

// handleGetDocument retrieves a stored chunk and optionally the full
// source document behind it. A chunk missing from the store is a
// regular result, not an error.
func (s *Server) handleGetDocument(ctx context.Context, in GetDocumentInput) (string, error) {
	start := time.Now()
	requestID := generateRequestID()

	if in.DocumentID == "" || in.Collection == "" {
		return "", NewInvalidParamsError("document_id and collection parameters are required")
	}

	s.logger.Info("get_document_by_id started",
		slog.String("request_id", requestID),
		slog.String("document_id", in.DocumentID),
		slog.String("collection", in.Collection),
		slog.Bool("full_document", in.FullDocument))

	doc, err := s.store.GetDocument(ctx, in.Collection, in.DocumentID)
	if err != nil {
		s.logger.Error("get_document_by_id failed",
			slog.String("request_id", requestID),
			gverrors.LogAttr(err))
		return "", err
	}
	if doc == nil {
		s.logger.Info("get_document_by_id completed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.Bool("found", false))
		return fmt.Sprintf("Document with ID %s not found in %s", in.DocumentID, in.Collection), nil
	}

	if in.FullDocument {
		docType := s.docTypeForCollection(in.Collection)
		sourceID := firstString(doc.Metadata, "document_id")
		if docType != "" && sourceID != "" {
			if fetcher := s.fetcher(docType); fetcher != nil {
				full, err := fetcher.GetDocument(ctx, sourceID)
				if err != nil {
					s.logger.Error("get_document_by_id failed",
						slog.String("request_id", requestID),
						slog.String("source_id", sourceID),
						gverrors.LogAttr(err))
					return "", err
				}
				s.logger.Info("get_document_by_id completed",
					slog.String("request_id", requestID),
					slog.Duration("duration", time.Since(start)),
					slog.Bool("full_document", true))
				return s.formatter.FormatFullDocument(docType, full, doc.Metadata), nil
			}
			s.logger.Warn("no API client registered for full document fetch",
				slog.String("request_id", requestID),
				slog.String("doc_type", docType))
		}
	}

	s.logger.Info("get_document_by_id completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)))
	return s.formatter.FormatDocumentChunk(in.Collection, in.DocumentID, doc.Text, doc.Metadata), nil
}

// handleListCollections enumerates collections with statistics and a
// one-point payload sample. Per-collection failures degrade to an
// error entry instead of failing the whole listing.
func (s *Server) handleListCollections(ctx context.Context) (string, error) {
	start := time.Now()
	requestID := generateRequestID()

	s.logger.Info("list_collections started", slog.String("request_id", requestID))

	names, err := s.store.ListCollections(ctx)
	if err != nil {
		s.logger.Error("list_collections failed",
			slog.String("request_id", requestID),
			gverrors.LogAttr(err))
		return "", err
	}
	sort.Strings(names)

	details := make([]CollectionDetail, 0, len(names))
	for _, name := range names {
		detail := CollectionDetail{Name: name}

		info, err := s.store.GetCollectionInfo(ctx, name)
		if err == nil && info == nil {
			err = errors.New("collection info unavailable")
		}
		if err == nil {
			detail.Info = info
			var sample []store.StoredDocument
			sample, err = s.store.SamplePoints(ctx, name, 1)
			if err == nil && len(sample) > 0 {
				detail.SampleFields = samplePayloadFields(sample[0])
			}
		}
		if err != nil {
			s.logger.Warn("could not get collection details",
				slog.String("request_id", requestID),
				slog.String("collection", name),
				gverrors.LogAttr(err))
			detail = CollectionDetail{Name: name, Err: err}
		}

		details = append(details, detail)
	}

	s.logger.Info("list_collections completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("collection_count", len(details)))

	return s.formatter.FormatCollectionsList(details), nil
}

// toHits tags raw search results with their document family and source
// collection.
func toHits(results []store.SearchResult, docType, collection string) []Hit {
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			ID:         r.Document.ID,
			Type:       docType,
			Collection: collection,
			Score:      r.Score,
			Text:       r.Document.Text,
			Metadata:   r.Document.Metadata,
		})
	}
	return hits
}

// samplePayloadFields lists the payload field names of one stored
// chunk, sorted for stable output.
func samplePayloadFields(doc store.StoredDocument) []string {
	fields := make([]string, 0, len(doc.Metadata)+1)
	for key := range doc.Metadata {
		fields = append(fields, key)
	}
	if doc.Text != "" {
		fields = append(fields, "text")
	}
	sort.Strings(fields)
	return fields
}

// scotusFilter builds the vendor-native filter for opinion searches.
func scotusFilter(in SearchScotusInput) (*qdrant.Filter, error) {
	var conditions []*qdrant.Condition

	if in.OpinionType != "" {
		conditions = append(conditions, qdrant.NewMatch("opinion_type", in.OpinionType))
	}
	if in.Justice != "" {
		conditions = append(conditions, qdrant.NewMatch("justice", in.Justice))
	}

	dateCond, err := dateRangeCondition("date", in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}
	if dateCond != nil {
		conditions = append(conditions, dateCond)
	}

	if len(conditions) == 0 {
		return nil, nil
	}
	return &qdrant.Filter{Must: conditions}, nil
}

// eoFilter builds the vendor-native filter for order searches. Array
// fields match orders carrying any of the requested values.
func eoFilter(in SearchEOInput) (*qdrant.Filter, error) {
	var conditions []*qdrant.Condition

	if in.President != "" {
		conditions = append(conditions, qdrant.NewMatch("president", in.President))
	}
	if len(in.Agencies) > 0 {
		conditions = append(conditions, qdrant.NewMatchKeywords("impacted_agencies", in.Agencies...))
	}
	if len(in.PolicyTopics) > 0 {
		conditions = append(conditions, qdrant.NewMatchKeywords("policy_topics", in.PolicyTopics...))
	}

	dateCond, err := dateRangeCondition("signing_date", in.StartDate, in.EndDate)
	if err != nil {
		return nil, err
	}
	if dateCond != nil {
		conditions = append(conditions, dateCond)
	}

	if len(conditions) == 0 {
		return nil, nil
	}
	return &qdrant.Filter{Must: conditions}, nil
}

// dateRangeCondition builds an inclusive datetime range over a payload
// date field. Qdrant parses the stored YYYY-MM-DD strings server-side,
// so date-only bounds compare correctly.
func dateRangeCondition(field, startDate, endDate string) (*qdrant.Condition, error) {
	if startDate == "" && endDate == "" {
		return nil, nil
	}

	r := &qdrant.DatetimeRange{}
	if startDate != "" {
		t, err := parseDay(startDate)
		if err != nil {
			return nil, err
		}
		r.Gte = timestamppb.New(t)
	}
	if endDate != "" {
		t, err := parseDay(endDate)
		if err != nil {
			return nil, err
		}
		r.Lte = timestamppb.New(t)
	}
	return qdrant.NewDatetimeRange(field, r), nil
}

func parseDay(value string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, gverrors.New(gverrors.ErrCodeInvalidDate,
			fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value), err)
	}
	return t, nil
}
