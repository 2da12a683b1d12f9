package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/govreporter/govreporter/internal/apis"
	gverrors "github.com/govreporter/govreporter/internal/errors"
	"github.com/govreporter/govreporter/internal/ingest"
	"github.com/govreporter/govreporter/internal/store"
)

// ingestOptions holds the flags shared by the ingest subcommands.
type ingestOptions struct {
	startDate  string
	endDate    string
	batchSize  int
	progressDB string
	qdrantURL  string
	dryRun     bool
}

// validate checks the date range before any client is built.
func (o *ingestOptions) validate() error {
	if !apis.ValidateDateFormat(o.startDate) {
		return gverrors.New(gverrors.ErrCodeInvalidDate,
			fmt.Sprintf("invalid start date %q, expected YYYY-MM-DD", o.startDate), nil)
	}
	if !apis.ValidateDateFormat(o.endDate) {
		return gverrors.New(gverrors.ErrCodeInvalidDate,
			fmt.Sprintf("invalid end date %q, expected YYYY-MM-DD", o.endDate), nil)
	}
	if o.endDate < o.startDate {
		return gverrors.New(gverrors.ErrCodeInvalidDate,
			fmt.Sprintf("end date %s is before start date %s", o.endDate, o.startDate), nil)
	}
	return nil
}

func newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Batch-ingest government documents into Qdrant",
		Long: `Ingest batches of documents into the vector database.

Each document is chunked, enriched with LLM-extracted metadata,
embedded and stored in Qdrant. Progress is tracked in a local SQLite
database, so an interrupted run resumes where it left off.`,
	}

	cmd.AddCommand(newIngestScotusCmd())
	cmd.AddCommand(newIngestEOCmd())
	cmd.AddCommand(newIngestAllCmd())

	return cmd
}

// addIngestFlags registers the flags every ingest subcommand takes.
func addIngestFlags(cmd *cobra.Command, opts *ingestOptions, defaultBatch int) {
	cmd.Flags().StringVar(&opts.startDate, "start-date", "", "Start date YYYY-MM-DD (inclusive)")
	cmd.Flags().StringVar(&opts.endDate, "end-date", "", "End date YYYY-MM-DD (inclusive)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", defaultBatch, "Documents per progress batch")
	cmd.Flags().StringVar(&opts.qdrantURL, "qdrant-url", "", "Qdrant endpoint, e.g. http://localhost:6334")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Fetch and process without writing to Qdrant")
	_ = cmd.MarkFlagRequired("start-date")
	_ = cmd.MarkFlagRequired("end-date")
}

func newIngestScotusCmd() *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "scotus",
		Short: "Ingest Supreme Court opinions from CourtListener",
		Long: `Ingest Supreme Court opinions into the supreme_court_opinions
collection.

Requires COURT_LISTENER_API_TOKEN and OPENAI_API_KEY.

Examples:
  govreporter ingest scotus --start-date 2024-01-01 --end-date 2024-12-31
  govreporter ingest scotus --start-date 2020-01-01 --end-date 2024-12-31 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngestScotus(cmd.Context(), cmd, opts)
		},
	}

	addIngestFlags(cmd, opts, ingest.DefaultScotusBatchSize)
	cmd.Flags().StringVar(&opts.progressDB, "progress-db", "",
		"Progress database path (default <progress-dir>/scotus_ingestion.db)")

	return cmd
}

func newIngestEOCmd() *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "eo",
		Short: "Ingest Executive Orders from the Federal Register",
		Long: `Ingest Executive Orders into the executive_orders collection.

The Federal Register API needs no token. Requires OPENAI_API_KEY.

Examples:
  govreporter ingest eo --start-date 2025-01-20 --end-date 2025-06-30
  govreporter ingest eo --start-date 2024-01-01 --end-date 2024-12-31 --batch-size 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngestEO(cmd.Context(), cmd, opts)
		},
	}

	addIngestFlags(cmd, opts, ingest.DefaultEOBatchSize)
	cmd.Flags().StringVar(&opts.progressDB, "progress-db", "",
		"Progress database path (default <progress-dir>/executive_orders_ingestion.db)")

	return cmd
}

func newIngestAllCmd() *cobra.Command {
	opts := &ingestOptions{}

	cmd := &cobra.Command{
		Use:   "all",
		Short: "Ingest SCOTUS opinions and Executive Orders",
		Long: `Run both ingesters over the same date range: Supreme Court
opinions first, then Executive Orders. The Executive Order run only
starts when the SCOTUS run finishes cleanly.

Examples:
  govreporter ingest all --start-date 2024-01-01 --end-date 2024-12-31`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngestAll(cmd.Context(), cmd, opts)
		},
	}

	// Batch size 0 keeps each source's own default.
	addIngestFlags(cmd, opts, 0)

	return cmd
}

func runIngestScotus(ctx context.Context, cmd *cobra.Command, opts *ingestOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	if err := cfg.RequireCourtListenerToken(); err != nil {
		return err
	}
	if err := cfg.RequireOpenAIKey(); err != nil {
		return err
	}

	logger := slog.Default()

	vectors, err := newVectorStore(opts.qdrantURL, logger)
	if err != nil {
		return err
	}
	defer vectors.Close()

	return ingestScotus(ctx, cmd, opts, vectors, logger)
}

func runIngestEO(ctx context.Context, cmd *cobra.Command, opts *ingestOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	if err := cfg.RequireOpenAIKey(); err != nil {
		return err
	}

	logger := slog.Default()

	vectors, err := newVectorStore(opts.qdrantURL, logger)
	if err != nil {
		return err
	}
	defer vectors.Close()

	return ingestEO(ctx, cmd, opts, vectors, logger)
}

func runIngestAll(ctx context.Context, cmd *cobra.Command, opts *ingestOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	if err := cfg.RequireCourtListenerToken(); err != nil {
		return err
	}
	if err := cfg.RequireOpenAIKey(); err != nil {
		return err
	}

	logger := slog.Default()

	// Both runs share one Qdrant connection.
	vectors, err := newVectorStore(opts.qdrantURL, logger)
	if err != nil {
		return err
	}
	defer vectors.Close()

	if err := ingestScotus(ctx, cmd, opts, vectors, logger); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return ingestEO(ctx, cmd, opts, vectors, logger)
}

// ingestScotus runs one SCOTUS ingestion over an existing vector-store
// client.
func ingestScotus(ctx context.Context, cmd *cobra.Command, opts *ingestOptions, vectors *store.Client, logger *slog.Logger) error {
	progressPath := opts.progressDB
	if progressPath == "" {
		progressPath = cfg.ProgressDBPath("scotus")
	}
	progress, err := store.NewProgressTracker(progressPath, "scotus", logger)
	if err != nil {
		return err
	}
	defer progress.Close()

	api := apis.NewCourtListenerClient(apis.CourtListenerConfig{
		Token: cfg.APIs.CourtListenerToken,
	}, logger)
	builder, embedder := buildPipeline(logger)
	source := ingest.NewScotusSource(api, builder, embedder, logger)

	return ingest.New(source, progress, vectors, ingest.Config{
		StartDate: opts.startDate,
		EndDate:   opts.endDate,
		BatchSize: opts.batchSize,
		DryRun:    opts.dryRun,
		Out:       cmd.OutOrStdout(),
		Logger:    logger,
	}).Run(ctx)
}

// ingestEO runs one Executive Order ingestion over an existing
// vector-store client.
func ingestEO(ctx context.Context, cmd *cobra.Command, opts *ingestOptions, vectors *store.Client, logger *slog.Logger) error {
	progressPath := opts.progressDB
	if progressPath == "" {
		progressPath = cfg.ProgressDBPath("executive_orders")
	}
	progress, err := store.NewProgressTracker(progressPath, "executive_orders", logger)
	if err != nil {
		return err
	}
	defer progress.Close()

	api := apis.NewFederalRegisterClient(apis.FederalRegisterConfig{}, logger)
	builder, embedder := buildPipeline(logger)
	source := ingest.NewEOSource(api, builder, embedder, logger)

	return ingest.New(source, progress, vectors, ingest.Config{
		StartDate: opts.startDate,
		EndDate:   opts.endDate,
		BatchSize: opts.batchSize,
		DryRun:    opts.dryRun,
		Out:       cmd.OutOrStdout(),
		Logger:    logger,
	}).Run(ctx)
}
