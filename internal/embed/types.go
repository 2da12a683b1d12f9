// Package embed generates vector embeddings for document chunks and
// search queries.
package embed

import (
	"context"
	"time"
)

const (
	// DefaultModel is the embedding model.
	DefaultModel = "text-embedding-3-small"

	// Dimensions is the vector width produced by DefaultModel.
	Dimensions = 1536

	// DefaultBatchSize is the number of texts sent per API call.
	DefaultBatchSize = 20

	// interBatchDelay separates consecutive batch calls to stay under
	// rate limits.
	interBatchDelay = 100 * time.Millisecond
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts. Order is
	// preserved: the i-th vector corresponds to the i-th input.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string
}
