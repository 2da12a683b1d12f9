package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	gverrors "github.com/govreporter/govreporter/internal/errors"
)

// Config configures the OpenAI embedder.
type Config struct {
	// APIKey authenticates against the API. Empty falls back to the
	// SDK's environment lookup.
	APIKey string

	// Model overrides DefaultModel.
	Model string

	// BaseURL overrides the API endpoint.
	BaseURL string

	// BatchSize is the number of texts per API call (default 20).
	BatchSize int

	// MaxRetries is the retry count after the initial attempt for
	// single embeddings (default 2, giving three attempts with 1s and
	// 2s waits).
	MaxRetries int

	// InitialDelay is the wait before the first retry (default 1s).
	InitialDelay time.Duration
}

// OpenAIEmbedder generates embeddings through the OpenAI API.
//
// Single embeddings retry on any failure. Batch calls are one attempt;
// a failed batch degrades to per-text single calls, and a text that
// still fails gets a zero vector in its slot so the batch never loses
// positional alignment.
type OpenAIEmbedder struct {
	client openai.Client
	cfg    Config
	logger *slog.Logger
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder. SDK-internal retries are
// disabled so the retry schedule here is the only one in effect.
func NewOpenAIEmbedder(cfg Config, logger *slog.Logger) *OpenAIEmbedder {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIEmbedder{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: logger,
	}
}

// Embed generates the embedding for one text, retrying on any failure.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	retryCfg := gverrors.RetryConfig{
		MaxRetries:   e.cfg.MaxRetries,
		InitialDelay: e.cfg.InitialDelay,
		MaxDelay:     4 * e.cfg.InitialDelay,
		Multiplier:   2.0,
	}

	vecs, err := gverrors.RetryWithResult(ctx, retryCfg, func() ([][]float32, error) {
		return e.embedOnce(ctx, []string{text})
	})
	if err != nil {
		return nil, gverrors.New(gverrors.ErrCodeEmbeddingFailed,
			"embedding generation failed", err)
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in slices of BatchSize with a short pause
// between API calls.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		end := start + e.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vecs, err := e.embedOnce(ctx, batch)
		if err != nil {
			e.logger.Error("batch embedding failed, falling back to single calls",
				slog.Int("batch_start", start),
				slog.Int("batch_size", len(batch)),
				gverrors.LogAttr(err))
			vecs, err = e.embedSingles(ctx, batch)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, vecs...)

		if end < len(texts) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(interBatchDelay):
			}
		}
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return Dimensions
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.cfg.Model
}

// embedOnce runs one embeddings call and places vectors by the index
// the API reports.
func (e *OpenAIEmbedder) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(e.cfg.Model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, gverrors.New(gverrors.ErrCodeMalformedResponse,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Data)), nil)
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= int64(len(texts)) {
			return nil, gverrors.New(gverrors.ErrCodeMalformedResponse,
				fmt.Sprintf("embedding index %d out of range", item.Index), nil)
		}
		out[item.Index] = toFloat32(item.Embedding)
	}
	return out, nil
}

// embedSingles retries each text on its own, degrading to a zero
// vector when a text cannot be embedded at all. Context cancellation
// aborts instead of zero-filling the rest.
func (e *OpenAIEmbedder) embedSingles(ctx context.Context, batch []string) ([][]float32, error) {
	vecs := make([][]float32, len(batch))
	for i, text := range batch {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Error("single embedding failed, storing zero vector",
				slog.Int("slot", i),
				gverrors.LogAttr(err))
			vec = make([]float32, Dimensions)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
