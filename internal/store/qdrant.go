package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	gverrors "github.com/govreporter/govreporter/internal/errors"
)

const (
	// EmbeddingDimension is the vector width produced by
	// text-embedding-3-small. Every collection is created with it and
	// every write and query is validated against it.
	EmbeddingDimension = 1536

	// DefaultSearchLimit caps results when the caller passes no limit.
	DefaultSearchLimit = 10

	// DefaultBatchSize is the upsert batch size when the caller passes
	// none.
	DefaultBatchSize = 100
)

// ClientConfig configures the Qdrant connection.
type ClientConfig struct {
	// Host defaults to "localhost".
	Host string

	// Port is the gRPC port, defaulting to 6334.
	Port int

	// APIKey authenticates against managed instances. Empty for local.
	APIKey string

	// UseTLS enables transport security, required by Qdrant Cloud.
	UseTLS bool

	Logger *slog.Logger
}

// Client stores and searches document vectors in Qdrant.
//
// Point IDs are UUIDv5 digests of the original document ID, so
// re-ingesting a document overwrites its points instead of duplicating
// them. The original string ID survives round trips via the payload.
type Client struct {
	api    *qdrant.Client
	logger *slog.Logger
}

var _ VectorStore = (*Client)(nil)

// NewClient connects to Qdrant over gRPC.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	api, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, gverrors.New(gverrors.ErrCodeVectorStore,
			fmt.Sprintf("failed to connect to qdrant at %s:%d", cfg.Host, cfg.Port), err).
			WithSuggestion("check that Qdrant is running and QDRANT_URL or QDRANT_HOST points at it")
	}

	cfg.Logger.Info("connected to qdrant",
		slog.String("host", cfg.Host),
		slog.Int("port", cfg.Port),
		slog.Bool("tls", cfg.UseTLS))

	return &Client{api: api, logger: cfg.Logger}, nil
}

// PointID derives the deterministic Qdrant point ID for a document:
// UUIDv5 of the original ID in the DNS namespace.
func PointID(documentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(documentID)).String()
}

// EnsureCollection creates the collection if it does not exist.
// Collections are fixed at EmbeddingDimension with cosine distance.
func (c *Client) EnsureCollection(ctx context.Context, collection string) error {
	exists, err := c.api.CollectionExists(ctx, collection)
	if err != nil {
		return gverrors.New(gverrors.ErrCodeCollection,
			fmt.Sprintf("failed to check collection %s", collection), err)
	}
	if exists {
		c.logger.Debug("collection exists", slog.String("collection", collection))
		return nil
	}

	err = c.api.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     EmbeddingDimension,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return gverrors.New(gverrors.ErrCodeCollection,
			fmt.Sprintf("failed to create collection %s", collection), err)
	}

	c.logger.Info("created collection",
		slog.String("collection", collection),
		slog.Int("dimension", EmbeddingDimension))
	return nil
}

// StoreDocument upserts a single document with wait=true.
func (c *Client) StoreDocument(ctx context.Context, collection string, doc StoredDocument) error {
	if doc.ID == "" {
		return gverrors.ValidationError("document must have an ID", nil)
	}
	if err := validateDimension(doc.ID, doc.Embedding); err != nil {
		return err
	}
	if err := c.EnsureCollection(ctx, collection); err != nil {
		return err
	}

	_, err := c.api.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{pointFromDocument(doc)},
	})
	if err != nil {
		return gverrors.New(gverrors.ErrCodeVectorStore,
			fmt.Sprintf("failed to store document %s", doc.ID), err)
	}

	c.logger.Debug("stored document",
		slog.String("document_id", doc.ID),
		slog.String("collection", collection))
	return nil
}

// StoreDocumentsBatch validates every document up front, then upserts
// in batches with wait=true. A failed batch is logged and its document
// IDs collected; later batches still run. Returns the success count
// and the IDs from failed batches.
func (c *Client) StoreDocumentsBatch(ctx context.Context, collection string, docs []StoredDocument, batchSize int, onProgress func(processed, total int)) (int, []string, error) {
	if len(docs) == 0 {
		return 0, nil, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for _, doc := range docs {
		if doc.ID == "" {
			return 0, nil, gverrors.ValidationError("all documents must have IDs", nil)
		}
		if err := validateDimension(doc.ID, doc.Embedding); err != nil {
			return 0, nil, err
		}
	}

	if err := c.EnsureCollection(ctx, collection); err != nil {
		return 0, nil, err
	}

	successCount := 0
	var failedIDs []string
	total := len(docs)

	for i := 0; i < total; i += batchSize {
		if err := ctx.Err(); err != nil {
			return successCount, failedIDs, err
		}

		end := min(i+batchSize, total)
		batch := docs[i:end]

		points := make([]*qdrant.PointStruct, len(batch))
		for j, doc := range batch {
			points[j] = pointFromDocument(doc)
		}

		_, err := c.api.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		if err != nil {
			c.logger.Error("batch upsert failed",
				slog.String("collection", collection),
				slog.Int("batch_start", i),
				slog.Int("batch_size", len(batch)),
				gverrors.LogAttr(err))
			for _, doc := range batch {
				failedIDs = append(failedIDs, doc.ID)
			}
		} else {
			successCount += len(batch)
		}

		if onProgress != nil {
			onProgress(end, total)
		}
	}

	c.logger.Info("batch store finished",
		slog.String("collection", collection),
		slog.Int("stored", successCount),
		slog.Int("total", total),
		slog.Int("failed", len(failedIDs)))
	return successCount, failedIDs, nil
}

// GetDocument retrieves a document by its original ID. Lookup errors
// degrade to not-found so callers treat a missing collection the same
// as a missing document.
func (c *Client) GetDocument(ctx context.Context, collection, documentID string) (*StoredDocument, error) {
	points, err := c.api.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(PointID(documentID))},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		c.logger.Debug("document lookup failed",
			slog.String("document_id", documentID),
			slog.String("collection", collection),
			gverrors.LogAttr(err))
		return nil, nil
	}
	if len(points) == 0 {
		return nil, nil
	}

	p := points[0]
	doc := decodePoint(p.GetId(), p.GetPayload(), p.GetVectors())
	return &doc, nil
}

// DocumentExists checks presence without retrieving payload or vectors.
func (c *Client) DocumentExists(ctx context.Context, collection, documentID string) bool {
	points, err := c.api.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(PointID(documentID))},
		WithPayload:    qdrant.NewWithPayload(false),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return false
	}
	return len(points) > 0
}

// Search runs semantic similarity search within a collection. Results
// arrive sorted by score descending and carry no embeddings.
func (c *Client) Search(ctx context.Context, collection string, queryVector []float32, opts SearchOptions) ([]SearchResult, error) {
	if len(queryVector) != EmbeddingDimension {
		return nil, gverrors.New(gverrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query embedding must be %d dimensions, got %d", EmbeddingDimension, len(queryVector)), nil)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	filter := opts.Filter
	if filter == nil && len(opts.MetadataFilter) > 0 {
		filter = equalityFilter(opts.MetadataFilter)
	}

	query := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(queryVector...),
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint64(limit)),
		ScoreThreshold: opts.ScoreThreshold,
		WithPayload:    qdrant.NewWithPayload(true),
	}

	points, err := c.api.Query(ctx, query)
	if err != nil {
		return nil, gverrors.New(gverrors.ErrCodeVectorStore,
			fmt.Sprintf("search in %s failed", collection), err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, SearchResult{
			Document: decodePoint(p.GetId(), p.GetPayload(), p.GetVectors()),
			Score:    p.GetScore(),
		})
	}
	return results, nil
}

// SemanticSearch exposes Search under the name the MCP handlers use,
// passing their vendor-native filter through unchanged.
func (c *Client) SemanticSearch(ctx context.Context, collection string, queryVector []float32, limit int, filter *qdrant.Filter) ([]SearchResult, error) {
	return c.Search(ctx, collection, queryVector, SearchOptions{
		Limit:  limit,
		Filter: filter,
	})
}

// DeleteDocument removes a document by its original ID. Idempotent.
func (c *Client) DeleteDocument(ctx context.Context, collection, documentID string) error {
	_, err := c.api.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(PointID(documentID))),
	})
	if err != nil {
		return gverrors.New(gverrors.ErrCodeVectorStore,
			fmt.Sprintf("failed to delete document %s", documentID), err)
	}

	c.logger.Debug("deleted document",
		slog.String("document_id", documentID),
		slog.String("collection", collection))
	return nil
}

// DeleteDocumentChunks removes every chunk ingested from one source
// document, matched on the document_id payload field. Deleting a document
// with no stored chunks is not an error.
func (c *Client) DeleteDocumentChunks(ctx context.Context, collection, documentID string) error {
	_, err := c.api.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
		}),
	})
	if err != nil {
		return gverrors.New(gverrors.ErrCodeVectorStore,
			fmt.Sprintf("failed to delete chunks of document %s", documentID), err)
	}

	c.logger.Info("deleted document chunks",
		slog.String("document_id", documentID),
		slog.String("collection", collection))
	return nil
}

// DeleteCollection removes a collection and all its documents.
func (c *Client) DeleteCollection(ctx context.Context, collection string) error {
	if err := c.api.DeleteCollection(ctx, collection); err != nil {
		return gverrors.New(gverrors.ErrCodeCollection,
			fmt.Sprintf("failed to delete collection %s", collection), err)
	}
	c.logger.Info("deleted collection", slog.String("collection", collection))
	return nil
}

// GetCollectionInfo returns collection statistics, or nil when the
// collection does not exist.
func (c *Client) GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error) {
	info, err := c.api.GetCollectionInfo(ctx, collection)
	if err != nil {
		c.logger.Debug("collection info unavailable",
			slog.String("collection", collection),
			gverrors.LogAttr(err))
		return nil, nil
	}

	return &CollectionInfo{
		Name:                collection,
		PointsCount:         info.GetPointsCount(),
		VectorsCount:        info.GetVectorsCount(),
		IndexedVectorsCount: info.GetIndexedVectorsCount(),
		Status:              info.GetStatus().String(),
	}, nil
}

// ListCollections returns the names of all collections.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	names, err := c.api.ListCollections(ctx)
	if err != nil {
		return nil, gverrors.New(gverrors.ErrCodeVectorStore, "failed to list collections", err)
	}
	return names, nil
}

// SamplePoints scrolls up to limit documents from a collection without
// a query vector. Payloads come back, embeddings do not.
func (c *Client) SamplePoints(ctx context.Context, collection string, limit int) ([]StoredDocument, error) {
	if limit <= 0 {
		limit = 1
	}

	points, err := c.api.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, gverrors.New(gverrors.ErrCodeVectorStore,
			fmt.Sprintf("failed to sample points from %s", collection), err)
	}

	docs := make([]StoredDocument, 0, len(points))
	for _, p := range points {
		docs = append(docs, decodePoint(p.GetId(), p.GetPayload(), nil))
	}
	return docs, nil
}

// Close releases the gRPC connection.
func (c *Client) Close() error {
	return c.api.Close()
}

// validateDimension rejects embeddings that do not match the
// collection dimension. Missing embeddings fail the same check.
func validateDimension(documentID string, embedding []float32) error {
	if len(embedding) != EmbeddingDimension {
		return gverrors.New(gverrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("document %s: embedding must be %d dimensions, got %d",
				documentID, EmbeddingDimension, len(embedding)), nil)
	}
	return nil
}

// pointFromDocument builds the Qdrant point for a document. The chunk
// text and the original ID travel in the payload next to the metadata.
func pointFromDocument(doc StoredDocument) *qdrant.PointStruct {
	payload := toQdrantPayload(doc.Metadata)
	payload["text"] = toQdrantValue(doc.Text)
	payload["original_id"] = toQdrantValue(doc.ID)

	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(PointID(doc.ID)),
		Vectors: qdrant.NewVectors(doc.Embedding...),
		Payload: payload,
	}
}

// decodePoint rebuilds a StoredDocument from a point's payload. The
// original ID and text are pulled out of the payload; the rest stays
// as metadata.
func decodePoint(id *qdrant.PointId, payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) StoredDocument {
	meta := fromQdrantPayload(payload)

	doc := StoredDocument{Metadata: meta}
	if s, ok := meta["original_id"].(string); ok && s != "" {
		doc.ID = s
	} else {
		doc.ID = pointIDString(id)
	}
	delete(meta, "original_id")

	if s, ok := meta["text"].(string); ok {
		doc.Text = s
	}
	delete(meta, "text")

	if data := vectors.GetVector().GetData(); len(data) > 0 {
		doc.Embedding = data
	}
	return doc
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// equalityFilter lowers a flat metadata map into an ANDed exact-match
// filter.
func equalityFilter(fields map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(fields))
	for key, value := range fields {
		conditions = append(conditions, matchCondition(key, value))
	}
	return &qdrant.Filter{Must: conditions}
}

func matchCondition(key string, value any) *qdrant.Condition {
	switch t := value.(type) {
	case bool:
		return qdrant.NewMatchBool(key, t)
	case int:
		return qdrant.NewMatchInt(key, int64(t))
	case int64:
		return qdrant.NewMatchInt(key, t)
	case float64:
		// Year filters arrive as whole floats when decoded from JSON.
		if t == math.Trunc(t) {
			return qdrant.NewMatchInt(key, int64(t))
		}
		return qdrant.NewMatch(key, strconv.FormatFloat(t, 'f', -1, 64))
	case string:
		return qdrant.NewMatch(key, t)
	}
	return qdrant.NewMatch(key, fmt.Sprint(value))
}
