package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gverrors "github.com/govreporter/govreporter/internal/errors"
)

func newTestTracker(t *testing.T) *ProgressTracker {
	t.Helper()
	tracker, err := NewProgressTracker("", "scotus", testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracker.Close() })
	return tracker
}

func TestProgressTrackerAddDocument(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	// Given three documents, one added twice
	require.NoError(t, tracker.AddDocument(ctx, "doc-1", nil))
	require.NoError(t, tracker.AddDocument(ctx, "doc-2", map[string]any{"title": "Smith v. Arizona"}))
	require.NoError(t, tracker.AddDocument(ctx, "doc-3", nil))
	require.NoError(t, tracker.AddDocument(ctx, "doc-2", nil))

	// Then the duplicate is ignored
	pending, err := tracker.PendingDocuments(ctx, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc-1", "doc-2", "doc-3"}, pending)
}

func TestProgressTrackerStateMachine(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.AddDocument(ctx, "doc-1", nil))

	// pending -> processing: no longer eligible for pickup
	require.NoError(t, tracker.MarkProcessing(ctx, "doc-1"))
	pending, err := tracker.PendingDocuments(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// processing -> completed
	require.NoError(t, tracker.MarkCompleted(ctx, "doc-1", 250*time.Millisecond))
	done, err := tracker.IsProcessed(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, done)

	// failed documents queue up again for the next run
	require.NoError(t, tracker.AddDocument(ctx, "doc-2", nil))
	require.NoError(t, tracker.MarkProcessing(ctx, "doc-2"))
	require.NoError(t, tracker.MarkFailed(ctx, "doc-2", "503 from courtlistener"))

	done, err = tracker.IsProcessed(ctx, "doc-2")
	require.NoError(t, err)
	assert.False(t, done)

	pending, err = tracker.PendingDocuments(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-2"}, pending)
}

func TestProgressTrackerResume(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	// Given a run that was interrupted mid-flight
	for i := 1; i <= 5; i++ {
		require.NoError(t, tracker.AddDocument(ctx, fmt.Sprintf("doc-%d", i), nil))
	}
	require.NoError(t, tracker.MarkProcessing(ctx, "doc-1"))
	require.NoError(t, tracker.MarkCompleted(ctx, "doc-1", time.Second))
	require.NoError(t, tracker.MarkProcessing(ctx, "doc-2"))
	require.NoError(t, tracker.MarkFailed(ctx, "doc-2", "network timeout"))
	require.NoError(t, tracker.MarkProcessing(ctx, "doc-3"))

	// When the next run asks for work before the startup sweep
	pending, err := tracker.PendingDocuments(ctx, 0)
	require.NoError(t, err)

	// Then the failed and untouched documents are eligible, but not
	// the stranded processing row
	assert.ElementsMatch(t, []string{"doc-2", "doc-4", "doc-5"}, pending)

	// And the startup sweep returns the stranded row to the queue
	reset, err := tracker.ResetProcessingStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reset)

	pending, err = tracker.PendingDocuments(ctx, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"doc-2", "doc-3", "doc-4", "doc-5"}, pending)
}

func TestProgressTrackerPendingLimit(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, tracker.AddDocument(ctx, fmt.Sprintf("doc-%d", i), nil))
	}

	pending, err := tracker.PendingDocuments(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestProgressTrackerCompletedClearsError(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.AddDocument(ctx, "doc-1", nil))
	require.NoError(t, tracker.MarkFailed(ctx, "doc-1", "rate limited"))

	stats, err := tracker.Statistics(ctx)
	require.NoError(t, err)
	require.Len(t, stats.FailedDocuments, 1)
	assert.Equal(t, "rate limited", stats.FailedDocuments[0].Error)

	// When the retry succeeds
	require.NoError(t, tracker.MarkCompleted(ctx, "doc-1", 400*time.Millisecond))

	// Then the old failure no longer shows up anywhere
	stats, err = tracker.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
	assert.Zero(t, stats.Failed)
	assert.Empty(t, stats.FailedDocuments)
}

func TestProgressTrackerStatistics(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, tracker.AddDocument(ctx, fmt.Sprintf("doc-%d", i), nil))
	}
	require.NoError(t, tracker.MarkCompleted(ctx, "doc-1", 100*time.Millisecond))
	require.NoError(t, tracker.MarkCompleted(ctx, "doc-2", 200*time.Millisecond))
	require.NoError(t, tracker.MarkFailed(ctx, "doc-3", "empty content"))

	stats, err := tracker.Statistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, "scotus", stats.DocumentType)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Pending)
	assert.Zero(t, stats.Processing)
	assert.InDelta(t, 66.67, stats.SuccessRate, 0.01)
	assert.Equal(t, int64(150), stats.AvgProcessingTimeMS)

	require.Len(t, stats.FailedDocuments, 1)
	assert.Equal(t, "doc-3", stats.FailedDocuments[0].DocumentID)
	assert.Equal(t, "empty content", stats.FailedDocuments[0].Error)
	assert.NotEmpty(t, stats.FailedDocuments[0].FailedAt)
}

func TestProgressTrackerFailedListCapped(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	// Given more failures than the report cap
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("doc-%d", i)
		require.NoError(t, tracker.AddDocument(ctx, id, nil))
		require.NoError(t, tracker.MarkFailed(ctx, id, "boom"))
	}

	stats, err := tracker.Statistics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 12, stats.Failed)
	assert.Len(t, stats.FailedDocuments, 10)
}

func TestProgressTrackerRunLifecycle(t *testing.T) {
	tracker := newTestTracker(t)
	ctx := context.Background()

	runID, err := tracker.StartRun(ctx, "2024-01-01", "2024-12-31", map[string]any{"batch_size": 50})
	require.NoError(t, err)
	assert.Positive(t, runID)

	require.NoError(t, tracker.AddDocument(ctx, "doc-1", nil))
	require.NoError(t, tracker.AddDocument(ctx, "doc-2", nil))
	require.NoError(t, tracker.MarkCompleted(ctx, "doc-1", time.Second))
	require.NoError(t, tracker.MarkFailed(ctx, "doc-2", "boom"))

	require.NoError(t, tracker.EndRun(ctx, runID))

	runs, err := tracker.RunHistory(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, runID, run.RunID)
	assert.Equal(t, "scotus", run.DocumentType)
	assert.Equal(t, "2024-01-01", run.StartDate)
	assert.Equal(t, "2024-12-31", run.EndDate)
	assert.Equal(t, 2, run.TotalDocuments)
	assert.Equal(t, 1, run.CompletedDocuments)
	assert.Equal(t, 1, run.FailedDocuments)
	assert.NotEmpty(t, run.StartedAt)
	assert.NotEmpty(t, run.CompletedAt)
	assert.Contains(t, run.Parameters, "batch_size")
}

func TestProgressTrackerLockRejectsSecondProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.db")

	first, err := NewProgressTracker(path, "scotus", testLogger())
	require.NoError(t, err)

	// A second tracker on the same file must fail fast
	_, err = NewProgressTracker(path, "executive_order", testLogger())
	require.Error(t, err)
	assert.Equal(t, gverrors.ErrCodeProgressLocked, gverrors.GetCode(err))

	// Releasing the first frees the file for the next run
	require.NoError(t, first.Close())

	third, err := NewProgressTracker(path, "executive_order", testLogger())
	require.NoError(t, err)
	require.NoError(t, third.Close())
}

func TestProgressTrackerPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.db")
	ctx := context.Background()

	tracker, err := NewProgressTracker(path, "scotus", testLogger())
	require.NoError(t, err)
	require.NoError(t, tracker.AddDocument(ctx, "doc-1", nil))
	require.NoError(t, tracker.AddDocument(ctx, "doc-2", nil))
	require.NoError(t, tracker.MarkCompleted(ctx, "doc-1", time.Second))
	require.NoError(t, tracker.Close())

	reopened, err := NewProgressTracker(path, "scotus", testLogger())
	require.NoError(t, err)
	defer reopened.Close()

	done, err := reopened.IsProcessed(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, done)

	pending, err := reopened.PendingDocuments(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-2"}, pending)
}

func TestProgressTrackerTypeIsolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.db")
	ctx := context.Background()

	scotus, err := NewProgressTracker(path, "scotus", testLogger())
	require.NoError(t, err)
	require.NoError(t, scotus.AddDocument(ctx, "9973155", nil))
	require.NoError(t, scotus.Close())

	eo, err := NewProgressTracker(path, "executive_order", testLogger())
	require.NoError(t, err)
	require.NoError(t, eo.AddDocument(ctx, "2025-01234", nil))

	// Each document type sees only its own rows
	pending, err := eo.PendingDocuments(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01234"}, pending)
	require.NoError(t, eo.Close())

	scotus, err = NewProgressTracker(path, "scotus", testLogger())
	require.NoError(t, err)
	defer scotus.Close()

	pending, err = scotus.PendingDocuments(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"9973155"}, pending)
}

func TestProgressTrackerRejectsCorruptDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.db")
	require.NoError(t, os.WriteFile(path, []byte("this is not a sqlite database"), 0o644))

	_, err := NewProgressTracker(path, "scotus", testLogger())

	require.Error(t, err)
	assert.Equal(t, gverrors.ErrCodeProgressDB, gverrors.GetCode(err))
}

func TestProgressTrackerCloseIsIdempotent(t *testing.T) {
	tracker := newTestTracker(t)
	require.NoError(t, tracker.Close())
	require.NoError(t, tracker.Close())
}
