// Package ingest drives the batch pipeline: list the documents a
// government API published in a date range, run each one through
// chunking, metadata extraction and embedding, and upsert the chunks
// into the vector store. Progress lives in SQLite so an interrupted run
// resumes where it stopped instead of re-paying API and model costs.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"strings"
	"time"

	gverrors "github.com/govreporter/govreporter/internal/errors"
	"github.com/govreporter/govreporter/internal/payload"
	"github.com/govreporter/govreporter/internal/store"
)

// Source is the document-type half of the pipeline. The ingester owns
// batching, progress state and statistics; a source owns everything
// specific to one government API.
type Source interface {
	// Collection names the vector-store collection the source fills.
	Collection() string

	// DefaultBatchSize is the flush size used when the run does not
	// configure one.
	DefaultBatchSize() int

	// ListDocumentIDs returns the IDs of every document in the
	// inclusive date range, in processing order.
	ListDocumentIDs(ctx context.Context, startDate, endDate string) ([]string, error)

	// DocumentMetadata returns listing metadata for one document's
	// progress row, nil when the listing carried none.
	DocumentMetadata(docID string) map[string]any

	// ProcessDocument runs one document through fetch, chunk, enrich
	// and embed, returning one stored document per chunk.
	ProcessDocument(ctx context.Context, docID string) ([]store.StoredDocument, error)
}

// statsAppender is implemented by sources that add lines of their own to
// the final statistics block.
type statsAppender interface {
	appendStats(w io.Writer)
}

// Config carries the run parameters shared by every source.
type Config struct {
	// StartDate and EndDate bound the run, inclusive, as YYYY-MM-DD.
	// The source validates them when listing.
	StartDate string
	EndDate   string

	// BatchSize is the number of documents processed between
	// vector-store flushes. Zero means the source default.
	BatchSize int

	// DryRun processes every document but skips vector-store writes.
	DryRun bool

	// Out receives the final statistics block. Defaults to os.Stdout.
	Out io.Writer

	Logger *slog.Logger
}

// Ingester runs the ingestion template over one source.
type Ingester struct {
	source   Source
	progress *store.ProgressTracker
	vectors  store.VectorStore
	monitor  *PerformanceMonitor

	startDate string
	endDate   string
	batchSize int
	dryRun    bool
	out       io.Writer
	logger    *slog.Logger
}

// New wires an ingester around a source. The progress tracker and the
// vector store are shared with the caller, which stays responsible for
// closing them.
func New(source Source, progress *store.ProgressTracker, vectors store.VectorStore, cfg Config) *Ingester {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = source.DefaultBatchSize()
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ingester{
		source:    source,
		progress:  progress,
		vectors:   vectors,
		monitor:   NewPerformanceMonitor(),
		startDate: cfg.StartDate,
		endDate:   cfg.EndDate,
		batchSize: cfg.BatchSize,
		dryRun:    cfg.DryRun,
		out:       cfg.Out,
		logger:    cfg.Logger,
	}
}

// Run executes one ingestion pass: reset stale rows, list the date
// range, queue anything new, process everything pending in batches and
// print the run summary. A document failure is recorded and skipped;
// only progress-storage faults and cancellation stop the run. The
// ingestion_runs row is closed even on an early return, so an
// interrupted run leaves nothing behind but processing rows for the
// next sweep to reset.
func (ing *Ingester) Run(ctx context.Context) error {
	ing.logger.Info("starting ingestion",
		slog.String("document_type", ing.progress.DocumentType()),
		slog.String("start_date", ing.startDate),
		slog.String("end_date", ing.endDate))
	if ing.dryRun {
		ing.logger.Info("dry run, documents will not be stored")
	}

	if _, err := ing.progress.ResetProcessingStatus(ctx); err != nil {
		return err
	}

	runID, err := ing.progress.StartRun(ctx, ing.startDate, ing.endDate, map[string]any{
		"batch_size": ing.batchSize,
		"dry_run":    ing.dryRun,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := ing.progress.EndRun(context.WithoutCancel(ctx), runID); err != nil {
			ing.logger.Error("ending run failed",
				slog.Int64("run_id", runID),
				gverrors.LogAttr(err))
		}
	}()

	ids, err := ing.source.ListDocumentIDs(ctx, ing.startDate, ing.endDate)
	if err != nil {
		return gverrors.New(gverrors.ErrCodeIngestFailed,
			fmt.Sprintf("listing %s documents failed", ing.progress.DocumentType()), err)
	}
	if len(ids) == 0 {
		ing.logger.Warn("no documents found in date range")
		return nil
	}
	ing.logger.Info("found documents", slog.Int("total", len(ids)))

	for _, id := range ids {
		if err := ing.progress.AddDocument(ctx, id, ing.source.DocumentMetadata(id)); err != nil {
			return err
		}
	}

	pending, err := ing.progress.PendingDocuments(ctx, 0)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		ing.logger.Info("all documents already processed")
		return nil
	}
	ing.logger.Info("processing pending documents", slog.Int("pending", len(pending)))

	ing.monitor.Start()
	if err := ing.processAll(ctx, pending); err != nil {
		return err
	}

	ing.printFinalStatistics(ctx)
	return nil
}

// processAll walks the pending IDs in flush-sized batches. Chunks from
// every document in a batch accumulate and are stored together.
func (ing *Ingester) processAll(ctx context.Context, ids []string) error {
	total := len(ids)
	processed := 0

	for begin := 0; begin < total; begin += ing.batchSize {
		end := min(begin+ing.batchSize, total)
		batchIDs := ids[begin:end]
		ing.logger.Info("processing batch",
			slog.Int("batch", begin/ing.batchSize+1),
			slog.Int("documents", len(batchIDs)))

		var batch []store.StoredDocument
		for _, docID := range batchIDs {
			processed++
			ing.monitor.PrintProgress(processed, total, "Processing documents")

			docs, err := ing.processOne(ctx, docID)
			if err != nil {
				return err
			}
			batch = append(batch, docs...)
		}

		if len(batch) > 0 && !ing.dryRun {
			if err := ing.storeBatch(ctx, batch); err != nil {
				return err
			}
		}
	}
	return nil
}

// processOne walks one document through the progress state machine. A
// document failure is recorded and absorbed; the returned error is
// reserved for faults that must stop the run. On cancellation the row is
// left as processing for the next run's reset sweep.
func (ing *Ingester) processOne(ctx context.Context, docID string) ([]store.StoredDocument, error) {
	start := time.Now()
	if err := ing.progress.MarkProcessing(ctx, docID); err != nil {
		return nil, err
	}

	docs, err := ing.source.ProcessDocument(ctx, docID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		ing.logger.Error("processing document failed",
			slog.String("document_id", docID),
			gverrors.LogAttr(err))
		if err := ing.progress.MarkFailed(ctx, docID, err.Error()); err != nil {
			return nil, err
		}
		ing.monitor.RecordDocument(0, true)
		return nil, nil
	}

	elapsed := time.Since(start)
	if err := ing.progress.MarkCompleted(ctx, docID, elapsed); err != nil {
		return nil, err
	}
	ing.monitor.RecordDocument(elapsed, false)
	return docs, nil
}

// storeBatch flushes processed chunks to the vector store. A store fault
// is logged and absorbed: the documents stay completed in the progress
// database, so recovering a lost batch takes a manual re-run.
// Cancellation is the one error that propagates.
func (ing *Ingester) storeBatch(ctx context.Context, docs []store.StoredDocument) error {
	collection := ing.source.Collection()
	ing.logger.Info("storing batch",
		slog.String("collection", collection),
		slog.Int("chunks", len(docs)))

	stored, failedIDs, err := ing.vectors.StoreDocumentsBatch(ctx, collection, docs, store.DefaultBatchSize, nil)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		ing.logger.Error("storing batch failed",
			slog.String("collection", collection),
			gverrors.LogAttr(err))
		return nil
	}

	ing.logger.Info("batch stored",
		slog.Int("stored", stored),
		slog.Int("failed", len(failedIDs)))
	return nil
}

// printFinalStatistics writes the run summary: progress counts, run
// timing and throughput, the collection size, any source-specific lines,
// and the most recent failures.
func (ing *Ingester) printFinalStatistics(ctx context.Context) {
	w := ing.out
	heavy := strings.Repeat("=", 60)

	fmt.Fprintln(w)
	fmt.Fprintln(w, heavy)
	fmt.Fprintln(w, "INGESTION COMPLETE")
	fmt.Fprintln(w, heavy)

	stats, err := ing.progress.Statistics(ctx)
	if err != nil {
		ing.logger.Error("reading progress statistics failed",
			gverrors.LogAttr(err))
		return
	}

	fmt.Fprintf(w, "Document Type: %s\n", stats.DocumentType)
	fmt.Fprintf(w, "Total Documents: %d\n", stats.Total)
	fmt.Fprintf(w, "Completed: %d\n", stats.Completed)
	fmt.Fprintf(w, "Failed: %d\n", stats.Failed)
	fmt.Fprintf(w, "Pending: %d\n", stats.Pending)
	fmt.Fprintf(w, "Success Rate: %.1f%%\n", stats.SuccessRate)
	if stats.AvgProcessingTimeMS > 0 {
		fmt.Fprintf(w, "Avg Processing Time: %dms\n", stats.AvgProcessingTimeMS)
	}

	perf := ing.monitor.Statistics(0)
	fmt.Fprintf(w, "\nTotal Time: %s\n", formatDuration(perf.Elapsed))
	fmt.Fprintf(w, "Throughput: %.1f docs/minute\n", perf.ThroughputPerMin)

	// Nothing to report when the collection does not exist yet, as on a
	// dry run.
	if info, err := ing.vectors.GetCollectionInfo(ctx, ing.source.Collection()); err == nil && info != nil {
		fmt.Fprintf(w, "\nQdrant Collection: %s\n", info.Name)
		fmt.Fprintf(w, "Total Chunks in Collection: %d\n", info.PointsCount)
	}

	if stats.Failed > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, heavy)
		fmt.Fprintln(w, "FAILED DOCUMENTS (showing up to 10):")
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, fd := range stats.FailedDocuments {
			fmt.Fprintf(w, "ID: %s\n", fd.DocumentID)
			fmt.Fprintf(w, "Error: %s\n", fd.Error)
			fmt.Fprintf(w, "Failed At: %s\n", fd.FailedAt)
			fmt.Fprintln(w, strings.Repeat("-", 40))
		}
	}

	if sa, ok := ing.source.(statsAppender); ok {
		sa.appendStats(w)
	}
}

// chunkTexts collects the embedding inputs in payload order.
func chunkTexts(payloads []payload.Payload) []string {
	texts := make([]string, len(payloads))
	for i, p := range payloads {
		texts[i] = p.Text
	}
	return texts
}

// storedDocuments pairs each payload with its embedding and stamps the
// two fields every ingested chunk carries: the source document ID and
// the ingestion timestamp.
func storedDocuments(docID string, payloads []payload.Payload, embeddings [][]float32) ([]store.StoredDocument, error) {
	if len(embeddings) != len(payloads) {
		return nil, gverrors.InternalError(
			fmt.Sprintf("document %s: got %d embeddings for %d chunks", docID, len(embeddings), len(payloads)), nil)
	}

	now := time.Now().Format(time.RFC3339)
	docs := make([]store.StoredDocument, 0, len(payloads))
	for i, p := range payloads {
		meta := maps.Clone(p.Metadata)
		if meta == nil {
			meta = map[string]any{}
		}
		meta["document_id"] = docID
		meta["ingested_at"] = now

		docs = append(docs, store.StoredDocument{
			ID:        p.ID,
			Text:      p.Text,
			Embedding: embeddings[i],
			Metadata:  meta,
		})
	}
	return docs, nil
}
