package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/govreporter/govreporter/internal/apis"
	"github.com/govreporter/govreporter/internal/embed"
	gverrors "github.com/govreporter/govreporter/internal/errors"
	"github.com/govreporter/govreporter/internal/mcp"
	"github.com/govreporter/govreporter/internal/store"
)

// serverLogLevel is read by setupEnvironment before logging starts.
var serverLogLevel string

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the MCP server on stdio",
		Long: `Start the GovernmentReporter MCP server.

The server exposes semantic search tools over the Model Context
Protocol, speaking JSON-RPC on stdin/stdout. stdout carries protocol
frames only; all logging goes to the log file.

Requires OPENAI_API_KEY for query embedding.

Examples:
  govreporter server
  govreporter server --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&serverLogLevel, "log-level", "",
		"Log level: debug, info, warn or error (default from config)")

	return cmd
}

// normalizeLogLevel maps CLI input onto slog level names.
func normalizeLogLevel(s string) (string, error) {
	switch level := strings.ToLower(s); level {
	case "debug", "info", "warn", "error":
		return level, nil
	case "warning":
		return "warn", nil
	default:
		return "", gverrors.ValidationError(
			fmt.Sprintf("invalid log level %q, expected debug, info, warn or error", s), nil)
	}
}

// newMCPServer builds the retrieval server from the loaded config.
func newMCPServer(vectors store.VectorStore, embedder embed.Embedder, logger *slog.Logger) (*mcp.Server, error) {
	return mcp.NewServer(vectors, embedder, mcp.Config{
		Name:         cfg.Server.Name,
		Version:      cfg.Server.Version,
		DefaultLimit: cfg.Server.DefaultSearchLimit,
		MaxLimit:     cfg.Server.MaxSearchLimit,
		EnableCache:  cfg.Server.EnableCache,
		Logger:       logger,
	})
}

func runServer(ctx context.Context) error {
	if err := cfg.RequireOpenAIKey(); err != nil {
		return err
	}

	logger := slog.Default()

	vectors, err := newVectorStore("", logger)
	if err != nil {
		return err
	}
	defer vectors.Close()

	srv, err := newMCPServer(vectors, newEmbedder(logger), logger)
	if err != nil {
		return err
	}

	// Full-document retrieval reaches back to the source APIs.
	srv.SetDocumentFetcher("scotus", apis.NewCourtListenerClient(apis.CourtListenerConfig{
		Token: cfg.APIs.CourtListenerToken,
	}, logger))
	srv.SetDocumentFetcher("executive_order", apis.NewFederalRegisterClient(apis.FederalRegisterConfig{}, logger))

	logger.Info("Starting MCP server",
		slog.String("name", cfg.Server.Name),
		slog.String("version", cfg.Server.Version))

	return srv.Serve(ctx, "stdio")
}
