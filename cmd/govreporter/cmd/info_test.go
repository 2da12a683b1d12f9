package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govreporter/govreporter/internal/ingest"
)

func TestInfoSample_RejectsUnknownCollection(t *testing.T) {
	// When: sampling a collection that does not exist
	_, err := runCLI(t, "", "info", "sample", "patents")

	// Then: the argument is rejected before any client is built
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown collection")
}

func TestInfoStats_RejectsUnknownCollection(t *testing.T) {
	// When: asking for statistics of an unknown collection
	_, err := runCLI(t, "", "info", "stats", "patents")

	// Then: the argument is rejected
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown collection")
}

func TestCollectionTarget(t *testing.T) {
	tests := []struct {
		name           string
		arg            string
		wantCollection string
		wantDocType    string
		wantErr        bool
	}{
		{
			name:           "scotus alias",
			arg:            "scotus",
			wantCollection: ingest.ScotusCollection,
			wantDocType:    "scotus",
		},
		{
			name:           "eo alias",
			arg:            "eo",
			wantCollection: ingest.EOCollection,
			wantDocType:    "executive_orders",
		},
		{
			name:           "full scotus name",
			arg:            ingest.ScotusCollection,
			wantCollection: ingest.ScotusCollection,
			wantDocType:    "scotus",
		},
		{
			name:           "full eo name",
			arg:            ingest.EOCollection,
			wantCollection: ingest.EOCollection,
			wantDocType:    "executive_orders",
		},
		{
			name:    "unknown",
			arg:     "patents",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collection, docType, err := collectionTarget(tt.arg)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCollection, collection)
			assert.Equal(t, tt.wantDocType, docType)
		})
	}
}

func TestMetaValue(t *testing.T) {
	meta := map[string]any{
		"case_name":   "Smith v. Arizona",
		"title":       "",
		"chunk_index": 3,
		"president":   nil,
	}

	// First non-empty key wins
	assert.Equal(t, "Smith v. Arizona", metaValue(meta, "case_name", "title"))

	// Empty values are skipped in favor of later keys
	assert.Equal(t, "Smith v. Arizona", metaValue(meta, "title", "case_name"))

	// Non-string values are rendered
	assert.Equal(t, "3", metaValue(meta, "chunk_index"))

	// Nil values and missing keys fall through to N/A
	assert.Equal(t, "N/A", metaValue(meta, "president"))
	assert.Equal(t, "N/A", metaValue(meta, "signing_date"))
}

func TestTextPreview(t *testing.T) {
	// Short text passes through untouched
	assert.Equal(t, "short", textPreview("short", 500))

	// Long text is cut at the rune limit and marked
	long := strings.Repeat("a", 600)
	got := textPreview(long, 500)
	assert.Equal(t, strings.Repeat("a", 500)+" [...]", got)

	// Multibyte runes are not split
	unicode := strings.Repeat("§", 10)
	assert.Equal(t, strings.Repeat("§", 4)+" [...]", textPreview(unicode, 4))
}
