// Package store persists pipeline output: document vectors in Qdrant
// and ingestion progress in SQLite.
package store

import (
	"context"

	"github.com/qdrant/go-client/qdrant"
)

// StoredDocument is one vector-store point: a chunk's text, its
// embedding, and the merged metadata payload.
type StoredDocument struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]any
}

// SearchResult pairs a retrieved document with its similarity score.
// Documents returned from Search carry no embedding.
type SearchResult struct {
	Document StoredDocument
	Score    float32
}

// CollectionInfo summarizes one collection.
type CollectionInfo struct {
	Name        string
	PointsCount uint64

	// VectorsCount is 0 on newer Qdrant servers, which stopped
	// reporting it. PointsCount is the reliable size signal.
	VectorsCount        uint64
	IndexedVectorsCount uint64
	Status              string
}

// SearchOptions controls Search. The zero value returns the top
// DefaultSearchLimit matches with no filtering.
type SearchOptions struct {
	// Limit caps the number of results. 0 means DefaultSearchLimit.
	Limit int

	// ScoreThreshold drops results scoring below it when non-nil.
	ScoreThreshold *float32

	// MetadataFilter matches payload fields by exact equality, ANDed.
	MetadataFilter map[string]any

	// Filter is a vendor-native filter built by the MCP handlers.
	// When set it wins over MetadataFilter.
	Filter *qdrant.Filter
}

// VectorStore is the persistence interface the ingesters and the MCP
// server depend on. *Client implements it against Qdrant.
type VectorStore interface {
	// EnsureCollection creates the collection if absent. Idempotent.
	EnsureCollection(ctx context.Context, collection string) error

	// StoreDocument upserts a single document.
	StoreDocument(ctx context.Context, collection string, doc StoredDocument) error

	// StoreDocumentsBatch upserts documents in batches and reports how
	// many succeeded plus the IDs of documents in failed batches.
	StoreDocumentsBatch(ctx context.Context, collection string, docs []StoredDocument, batchSize int, onProgress func(processed, total int)) (int, []string, error)

	// GetDocument retrieves a document by its original ID. Returns
	// nil when the document is not found.
	GetDocument(ctx context.Context, collection, documentID string) (*StoredDocument, error)

	// DocumentExists reports whether a document is stored, without
	// retrieving payload or vectors.
	DocumentExists(ctx context.Context, collection, documentID string) bool

	// DeleteDocument removes a document by its original ID.
	DeleteDocument(ctx context.Context, collection, documentID string) error

	// DeleteCollection removes a collection and all its documents.
	DeleteCollection(ctx context.Context, collection string) error

	// GetCollectionInfo returns collection statistics, or nil when the
	// collection does not exist.
	GetCollectionInfo(ctx context.Context, collection string) (*CollectionInfo, error)

	// ListCollections returns the names of all collections.
	ListCollections(ctx context.Context) ([]string, error)

	// Search runs semantic similarity search, sorted by score descending.
	Search(ctx context.Context, collection string, queryVector []float32, opts SearchOptions) ([]SearchResult, error)

	// SemanticSearch is the handler-facing alias for Search with a
	// vendor-native filter.
	SemanticSearch(ctx context.Context, collection string, queryVector []float32, limit int, filter *qdrant.Filter) ([]SearchResult, error)

	// SamplePoints scrolls up to limit documents from a collection
	// without a query vector. Used to expose payload shape.
	SamplePoints(ctx context.Context, collection string, limit int) ([]StoredDocument, error)

	// Close releases the connection.
	Close() error
}

// Status is the processing state of one tracked document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// FailedDocument is one failed entry in Statistics.
type FailedDocument struct {
	DocumentID string
	Error      string
	FailedAt   string
}

// Statistics summarizes ingestion progress for one document type.
type Statistics struct {
	DocumentType string
	Total        int
	Completed    int
	Failed       int
	Pending      int
	Processing   int

	// SuccessRate is the percentage of completed documents among all
	// finished ones. 0 when nothing has finished yet.
	SuccessRate float64

	// AvgProcessingTimeMS is 0 when no completed document carries a
	// recorded processing time.
	AvgProcessingTimeMS int64

	// FailedDocuments holds the most recent failures, capped at 10.
	FailedDocuments []FailedDocument
}

// Run is one row of the ingestion run history.
type Run struct {
	RunID              int64
	DocumentType       string
	StartDate          string
	EndDate            string
	TotalDocuments     int
	CompletedDocuments int
	FailedDocuments    int
	StartedAt          string
	CompletedAt        string // empty while the run is open
	Parameters         string // JSON-encoded run parameters
}
