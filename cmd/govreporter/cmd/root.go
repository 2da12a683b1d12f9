// Package cmd provides the CLI commands for GovernmentReporter.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/govreporter/govreporter/internal/chunk"
	"github.com/govreporter/govreporter/internal/config"
	"github.com/govreporter/govreporter/internal/embed"
	gverrors "github.com/govreporter/govreporter/internal/errors"
	"github.com/govreporter/govreporter/internal/extract"
	"github.com/govreporter/govreporter/internal/logging"
	"github.com/govreporter/govreporter/internal/payload"
	"github.com/govreporter/govreporter/internal/store"
	"github.com/govreporter/govreporter/pkg/version"
)

// Shared command state, populated by the root PersistentPreRunE.
var (
	cfgFile        string
	verbose        bool
	cfg            *config.Config
	loggingCleanup func()
)

// NewRootCmd creates the root command for the govreporter CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "govreporter",
		Short: "US government documents as an MCP knowledge base",
		Long: `GovernmentReporter ingests United States government publications
into a Qdrant vector database and serves them to LLMs over the
Model Context Protocol.

Supported sources:
  - Supreme Court opinions (CourtListener API)
  - Executive Orders (Federal Register API)

Run 'govreporter ingest' to build collections, 'govreporter server'
to expose them to MCP clients, and 'govreporter query' to search
from the terminal.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set version template
	cmd.SetVersionTemplate("govreporter version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ./govreporter.yaml when present)")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging to stderr")

	// Environment and logging hooks
	cmd.PersistentPreRunE = setupEnvironment
	cmd.PersistentPostRunE = teardownEnvironment

	// Add subcommands
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newServerCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newDeleteCmd())

	return cmd
}

// setupEnvironment loads .env, resolves configuration and starts
// logging before any subcommand runs.
func setupEnvironment(cmd *cobra.Command, _ []string) error {
	// Secrets live in .env during development. Variables already
	// exported in the environment win over file values.
	_ = godotenv.Load()

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	cfg = loaded

	logCfg := cfg.LogConfig()
	logCfg.WriteToStderr = false
	if verbose {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	if cmd.Name() == "server" {
		if serverLogLevel != "" {
			level, err := normalizeLogLevel(serverLogLevel)
			if err != nil {
				return err
			}
			cfg.Server.LogLevel = level
		}
		logCfg.Level = cfg.Server.LogLevel
		logCfg = logging.MCPMode(logCfg)
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// teardownEnvironment flushes the log file opened in setupEnvironment.
func teardownEnvironment(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and maps the result to a process exit
// code: 0 on success, 130 after an interrupt, 1 on any other error.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// PersistentPostRunE does not run on error paths.
	defer func() {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Interrupted.")
			return 130
		}
		var rerr *gverrors.ReporterError
		if errors.As(err, &rerr) {
			fmt.Fprint(os.Stderr, gverrors.FormatForCLI(rerr))
		} else {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		return 1
	}
	return 0
}

// newVectorStore dials Qdrant using the loaded configuration. A
// non-empty urlOverride (the --qdrant-url flag) wins over config and
// environment.
func newVectorStore(urlOverride string, logger *slog.Logger) (*store.Client, error) {
	if urlOverride != "" {
		if err := cfg.SetQdrantURL(urlOverride); err != nil {
			return nil, err
		}
	}
	return store.NewClient(store.ClientConfig{
		Host:   cfg.Qdrant.Host,
		Port:   cfg.Qdrant.Port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
		Logger: logger,
	})
}

// newEmbedder builds the OpenAI embedder from config.
func newEmbedder(logger *slog.Logger) embed.Embedder {
	return embed.NewOpenAIEmbedder(embed.Config{
		APIKey:    cfg.OpenAI.APIKey,
		Model:     cfg.OpenAI.EmbeddingModel,
		BaseURL:   cfg.OpenAI.BaseURL,
		BatchSize: cfg.OpenAI.EmbeddingBatchSize,
	}, logger)
}

// buildPipeline assembles the chunk-extract-embed stack shared by both
// document sources.
func buildPipeline(logger *slog.Logger) (*payload.Builder, embed.Embedder) {
	tokens := chunk.NewTokenCounter(chunk.DefaultEncoding)
	scotusChunker := chunk.NewScotusChunker(cfg.Chunking.Scotus, tokens)
	eoChunker := chunk.NewEOChunker(cfg.Chunking.EO, tokens)
	extractor := extract.NewOpenAIExtractor(extract.Config{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.ExtractionModel,
		BaseURL: cfg.OpenAI.BaseURL,
	}, logger)
	builder := payload.NewBuilder(extractor, scotusChunker, eoChunker, logger)
	return builder, newEmbedder(logger)
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
