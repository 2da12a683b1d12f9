package embed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gverrors "github.com/govreporter/govreporter/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEmbedder(srvURL string, batchSize int) *OpenAIEmbedder {
	return NewOpenAIEmbedder(Config{
		APIKey:       "test-key",
		BaseURL:      srvURL,
		BatchSize:    batchSize,
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
	}, testLogger())
}

// embeddingsServer decodes each request's input strings and serves the
// response built by respond.
func embeddingsServer(t *testing.T, respond func(texts []string, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)
		respond(req.Input, w)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeEmbeddings(w http.ResponseWriter, vectors map[int][]float64) {
	data := make([]map[string]any, 0, len(vectors))
	for idx, vec := range vectors {
		data = append(data, map[string]any{
			"object":    "embedding",
			"index":     idx,
			"embedding": vec,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"model":  DefaultModel,
		"data":   data,
	})
}

func TestOpenAIEmbedder_Embed_ReturnsFloat32Vector(t *testing.T) {
	srv := embeddingsServer(t, func(texts []string, w http.ResponseWriter) {
		require.Equal(t, []string{"some text"}, texts)
		writeEmbeddings(w, map[int][]float64{0: {0.1, -0.2, 0.3}})
	})
	embedder := newTestEmbedder(srv.URL, 0)

	vec, err := embedder.Embed(context.Background(), "some text")

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, -0.2, 0.3}, vec)
}

func TestOpenAIEmbedder_Embed_RetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := embeddingsServer(t, func(texts []string, w http.ResponseWriter) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			http.Error(w, `{"error": {"message": "boom"}}`, http.StatusInternalServerError)
			return
		}
		writeEmbeddings(w, map[int][]float64{0: {1}})
	})
	embedder := newTestEmbedder(srv.URL, 0)

	vec, err := embedder.Embed(context.Background(), "text")

	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, 2, calls)
}

func TestOpenAIEmbedder_Embed_FailsAfterRetries(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := embeddingsServer(t, func(texts []string, w http.ResponseWriter) {
		mu.Lock()
		calls++
		mu.Unlock()
		http.Error(w, `{"error": {"message": "down"}}`, http.StatusInternalServerError)
	})
	embedder := newTestEmbedder(srv.URL, 0)

	_, err := embedder.Embed(context.Background(), "text")

	require.Error(t, err)
	assert.Equal(t, gverrors.ErrCodeEmbeddingFailed, gverrors.GetCode(err))
	assert.Equal(t, 2, calls) // initial attempt + 1 retry
}

func TestOpenAIEmbedder_EmbedBatch_SlicesAndPreservesOrder(t *testing.T) {
	// Given: vectors derived from each text's length
	var mu sync.Mutex
	batchSizes := []int{}
	srv := embeddingsServer(t, func(texts []string, w http.ResponseWriter) {
		mu.Lock()
		batchSizes = append(batchSizes, len(texts))
		mu.Unlock()
		vectors := make(map[int][]float64, len(texts))
		for i, text := range texts {
			vectors[i] = []float64{float64(len(text))}
		}
		writeEmbeddings(w, vectors)
	})
	embedder := newTestEmbedder(srv.URL, 2)

	// When
	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := embedder.EmbedBatch(context.Background(), texts)

	// Then: three API calls of sizes 2,2,1; the i-th vector matches the i-th text
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vecs[i][0], "slot %d", i)
	}
	assert.Equal(t, []int{2, 2, 1}, batchSizes)
}

func TestOpenAIEmbedder_EmbedBatch_PlacesByReportedIndex(t *testing.T) {
	srv := embeddingsServer(t, func(texts []string, w http.ResponseWriter) {
		// Items intentionally arrive in reverse order
		writeEmbeddings(w, map[int][]float64{
			1: {20},
			0: {10},
		})
	})
	embedder := newTestEmbedder(srv.URL, 2)

	vecs, err := embedder.EmbedBatch(context.Background(), []string{"first", "second"})

	require.NoError(t, err)
	assert.Equal(t, float32(10), vecs[0][0])
	assert.Equal(t, float32(20), vecs[1][0])
}

func TestOpenAIEmbedder_EmbedBatch_FallsBackToSinglesWithZeroVectorSlot(t *testing.T) {
	// Given: batch calls fail outright, singles succeed except "poison"
	srv := embeddingsServer(t, func(texts []string, w http.ResponseWriter) {
		if len(texts) > 1 || texts[0] == "poison" {
			http.Error(w, `{"error": {"message": "no"}}`, http.StatusInternalServerError)
			return
		}
		writeEmbeddings(w, map[int][]float64{0: {float64(len(texts[0]))}})
	})
	embedder := newTestEmbedder(srv.URL, 10)

	// When
	vecs, err := embedder.EmbedBatch(context.Background(), []string{"good", "poison", "also good"})

	// Then: order kept, the failed slot is a zero vector of full width
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(4), vecs[0][0])
	assert.Equal(t, float32(9), vecs[2][0])

	require.Len(t, vecs[1], Dimensions)
	for _, v := range vecs[1][:8] {
		assert.Zero(t, v)
	}
}

func TestOpenAIEmbedder_EmbedBatch_Empty(t *testing.T) {
	embedder := newTestEmbedder("http://127.0.0.1:0", 5)

	vecs, err := embedder.EmbedBatch(context.Background(), []string{})

	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestOpenAIEmbedder_Defaults(t *testing.T) {
	embedder := NewOpenAIEmbedder(Config{}, nil)

	assert.Equal(t, DefaultModel, embedder.ModelName())
	assert.Equal(t, Dimensions, embedder.Dimensions())
	assert.Equal(t, DefaultBatchSize, embedder.cfg.BatchSize)
}
