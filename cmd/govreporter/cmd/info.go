package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	gverrors "github.com/govreporter/govreporter/internal/errors"
	"github.com/govreporter/govreporter/internal/ingest"
	"github.com/govreporter/govreporter/internal/output"
	"github.com/govreporter/govreporter/internal/store"
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Inspect collections, samples and statistics",
		Long: `Inspect what is stored in the vector database.

Examples:
  govreporter info collections
  govreporter info sample scotus --limit 3 --show-text
  govreporter info stats eo`,
	}

	cmd.AddCommand(newInfoCollectionsCmd())
	cmd.AddCommand(newInfoSampleCmd())
	cmd.AddCommand(newInfoStatsCmd())

	return cmd
}

func newInfoCollectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List collections and their sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfoCollections(cmd.Context(), cmd)
		},
	}
}

func newInfoSampleCmd() *cobra.Command {
	var limit int
	var showText bool

	cmd := &cobra.Command{
		Use:   "sample {scotus|eo}",
		Short: "Show sample documents from a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfoSample(cmd.Context(), cmd, args[0], limit, showText)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 5, "Number of documents to sample")
	cmd.Flags().BoolVar(&showText, "show-text", false, "Print a text preview for each document")

	return cmd
}

func newInfoStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats {scotus|eo}",
		Short: "Show collection and ingestion statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfoStats(cmd.Context(), cmd, args[0])
		},
	}
}

// collectionTarget resolves a CLI collection argument, accepting the
// short aliases and the full collection names.
func collectionTarget(arg string) (collection, docType string, err error) {
	switch arg {
	case "scotus", ingest.ScotusCollection:
		return ingest.ScotusCollection, "scotus", nil
	case "eo", ingest.EOCollection:
		return ingest.EOCollection, "executive_orders", nil
	}
	return "", "", gverrors.ValidationError(
		fmt.Sprintf("unknown collection %q, expected scotus or eo", arg), nil)
}

func runInfoCollections(ctx context.Context, cmd *cobra.Command) error {
	logger := slog.Default()

	vectors, err := newVectorStore("", logger)
	if err != nil {
		return err
	}
	defer vectors.Close()

	names, err := vectors.ListCollections(ctx)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if len(names) == 0 {
		out.Status("", "No collections found in the database.")
		out.Newline()
		out.Status("", "Ingest documents first:")
		out.Status("", "  govreporter ingest scotus --start-date 2024-01-01 --end-date 2024-12-31")
		out.Status("", "  govreporter ingest eo --start-date 2024-01-01 --end-date 2024-12-31")
		return nil
	}

	out.Header("QDRANT COLLECTIONS")
	for _, name := range names {
		info, err := vectors.GetCollectionInfo(ctx, name)
		if err != nil {
			return err
		}
		out.Newline()
		out.Statusf("📚", "Collection: %s", name)
		if info == nil {
			out.Status("", "(no details available)")
			continue
		}
		out.Field("Documents", info.PointsCount)
		out.Field("Indexed Vectors", info.IndexedVectorsCount)
		if info.IndexedVectorsCount == 0 {
			out.Status("", "(using exact search)")
		}
		out.Field("Status", info.Status)
	}

	out.Newline()
	out.Rule()
	out.Statusf("", "Total Collections: %d", len(names))
	out.Statusf("", "Dashboard: %s", cfg.Qdrant.DashboardURL())
	return nil
}

func runInfoSample(ctx context.Context, cmd *cobra.Command, arg string, limit int, showText bool) error {
	collection, _, err := collectionTarget(arg)
	if err != nil {
		return err
	}

	logger := slog.Default()

	vectors, err := newVectorStore("", logger)
	if err != nil {
		return err
	}
	defer vectors.Close()

	docs, err := vectors.SamplePoints(ctx, collection, limit)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Header("SAMPLE DOCUMENTS FROM " + strings.ToUpper(collection))

	if len(docs) == 0 {
		out.Newline()
		out.Status("", "Collection is empty.")
		return nil
	}

	for i, doc := range docs {
		out.Printf("\n[%d] Document ID: %s\n", i+1, metaValue(doc.Metadata, "document_id"))
		switch collection {
		case ingest.ScotusCollection:
			out.Field("Case Name", metaValue(doc.Metadata, "case_name"))
			out.Field("Citation", metaValue(doc.Metadata, "citation"))
			out.Field("Date", metaValue(doc.Metadata, "date"))
			out.Field("Opinion Type", metaValue(doc.Metadata, "opinion_type"))
			out.Field("Justice", metaValue(doc.Metadata, "justice"))
		case ingest.EOCollection:
			out.Field("Title", metaValue(doc.Metadata, "title"))
			out.Field("EO Number", metaValue(doc.Metadata, "executive_order_number"))
			out.Field("President", metaValue(doc.Metadata, "president"))
			out.Field("Signing Date", metaValue(doc.Metadata, "signing_date"))
		}
		out.Field("Section", metaValue(doc.Metadata, "section_label"))
		out.Field("Chunk Index", metaValue(doc.Metadata, "chunk_index"))
		if showText {
			out.Field("Text", textPreview(doc.Text, 500))
		}
	}

	return nil
}

func runInfoStats(ctx context.Context, cmd *cobra.Command, arg string) error {
	collection, docType, err := collectionTarget(arg)
	if err != nil {
		return err
	}

	logger := slog.Default()

	vectors, err := newVectorStore("", logger)
	if err != nil {
		return err
	}
	defer vectors.Close()

	info, err := vectors.GetCollectionInfo(ctx, collection)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	out.Header("STATISTICS FOR " + strings.ToUpper(collection))

	out.Newline()
	out.Status("📊", "Vector Store")
	if info == nil {
		out.Status("", "Collection does not exist yet.")
	} else {
		out.Field("Documents", info.PointsCount)
		out.Field("Indexed Vectors", info.IndexedVectorsCount)
		out.Field("Status", info.Status)
	}

	return printIngestionStats(ctx, out, docType, logger)
}

// printIngestionStats reports the local progress tracker state for one
// document type. Nothing is printed beyond a note when no ingestion has
// run yet.
func printIngestionStats(ctx context.Context, out *output.Writer, docType string, logger *slog.Logger) error {
	path := cfg.ProgressDBPath(docType)
	if !fileExists(path) {
		out.Newline()
		out.Status("", "No ingestion progress recorded yet.")
		return nil
	}

	progress, err := store.NewProgressTracker(path, docType, logger)
	if err != nil {
		return err
	}
	defer progress.Close()

	stats, err := progress.Statistics(ctx)
	if err != nil {
		return err
	}

	out.Newline()
	out.Status("📈", "Ingestion Progress")
	out.Field("Total Documents", stats.Total)
	out.Field("Completed", stats.Completed)
	out.Field("Failed", stats.Failed)
	out.Field("Pending", stats.Pending)
	out.Field("Success Rate", fmt.Sprintf("%.1f%%", stats.SuccessRate))
	out.Field("Avg Processing Time", fmt.Sprintf("%d ms", stats.AvgProcessingTimeMS))

	if len(stats.FailedDocuments) > 0 {
		out.Newline()
		out.Status("❌", "Recent Failures")
		for i, f := range stats.FailedDocuments {
			if i == 5 {
				out.Statusf("", "... and %d more", len(stats.FailedDocuments)-i)
				break
			}
			out.Statusf("", "%s: %s", f.DocumentID, f.Error)
		}
	}

	runs, err := progress.RunHistory(ctx, 5)
	if err != nil {
		return err
	}
	if len(runs) > 0 {
		out.Newline()
		out.Status("🕘", "Recent Runs")
		for _, run := range runs {
			state := "completed " + run.CompletedAt
			if run.CompletedAt == "" {
				state = "in progress"
			}
			out.Statusf("", "[%d] %s to %s, %d/%d documents, %s",
				run.RunID, run.StartDate, run.EndDate,
				run.CompletedDocuments, run.TotalDocuments, state)
		}
	}

	return nil
}

// metaValue returns the first non-empty metadata value among keys,
// or "N/A" when none is set.
func metaValue(meta map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := meta[key]
		if !ok || v == nil {
			continue
		}
		s := fmt.Sprintf("%v", v)
		if s != "" {
			return s
		}
	}
	return "N/A"
}

// textPreview returns up to max runes of text, marking truncation.
func textPreview(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + " [...]"
}
