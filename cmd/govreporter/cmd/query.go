package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	gverrors "github.com/govreporter/govreporter/internal/errors"
	"github.com/govreporter/govreporter/internal/ingest"
	"github.com/govreporter/govreporter/internal/output"
	"github.com/govreporter/govreporter/internal/store"
)

// queryOptions holds the query command flags.
type queryOptions struct {
	collection string
	limit      int
	minScore   float64
	showText   bool
}

func newQueryCmd() *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query \"<text>\"",
		Short: "Search stored documents from the terminal",
		Long: `Run a one-shot semantic search against the vector database.

The query text is embedded with OpenAI and matched against stored
chunks by cosine similarity.

Requires OPENAI_API_KEY.

Examples:
  govreporter query "fourth amendment vehicle searches"
  govreporter query "climate policy" --collection eo --limit 3
  govreporter query "qualified immunity" --min-score 0.5 --show-text`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.collection, "collection", "all", "Collection to search: scotus, eo or all")
	cmd.Flags().IntVar(&opts.limit, "limit", 5, "Maximum number of results")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0.7, "Minimum similarity score (0 disables the cutoff)")
	cmd.Flags().BoolVar(&opts.showText, "show-text", false, "Print a text preview for each result")

	return cmd
}

// queryTargets resolves the --collection flag to collection names.
func queryTargets(arg string) ([]string, error) {
	switch arg {
	case "all":
		return []string{ingest.ScotusCollection, ingest.EOCollection}, nil
	case "scotus", ingest.ScotusCollection:
		return []string{ingest.ScotusCollection}, nil
	case "eo", ingest.EOCollection:
		return []string{ingest.EOCollection}, nil
	}
	return nil, gverrors.ValidationError(
		fmt.Sprintf("unknown collection %q, expected scotus, eo or all", arg), nil)
}

func runQuery(ctx context.Context, cmd *cobra.Command, text string, opts *queryOptions) error {
	targets, err := queryTargets(opts.collection)
	if err != nil {
		return err
	}
	if err := cfg.RequireOpenAIKey(); err != nil {
		return err
	}

	logger := slog.Default()

	vectors, err := newVectorStore("", logger)
	if err != nil {
		return err
	}
	defer vectors.Close()

	embedder := newEmbedder(logger)

	out := output.New(cmd.OutOrStdout())
	out.Printf("Searching for: %q\n", text)
	out.Printf("Collection: %s\n", opts.collection)
	out.Printf("Minimum score: %v\n\n", opts.minScore)

	vector, err := embedder.Embed(ctx, text)
	if err != nil {
		return err
	}

	searchOpts := store.SearchOptions{Limit: opts.limit}
	if opts.minScore > 0 {
		threshold := float32(opts.minScore)
		searchOpts.ScoreThreshold = &threshold
	}

	type hit struct {
		collection string
		result     store.SearchResult
	}
	var hits []hit
	for _, name := range targets {
		info, err := vectors.GetCollectionInfo(ctx, name)
		if err != nil {
			return err
		}
		if info == nil {
			// Searching every collection tolerates a missing one;
			// naming it explicitly does not.
			if len(targets) == 1 {
				return gverrors.ValidationError(
					fmt.Sprintf("collection %s does not exist", name), nil).
					WithSuggestion("Ingest documents first with 'govreporter ingest'.")
			}
			continue
		}
		results, err := vectors.Search(ctx, name, vector, searchOpts)
		if err != nil {
			return err
		}
		for _, r := range results {
			hits = append(hits, hit{collection: name, result: r})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].result.Score > hits[j].result.Score
	})
	if len(hits) > opts.limit {
		hits = hits[:opts.limit]
	}

	if len(hits) == 0 {
		return gverrors.ValidationError("no results found", nil).
			WithSuggestion("Broaden the query, lower --min-score or ingest more documents.")
	}

	for i, h := range hits {
		meta := h.result.Document.Metadata
		out.Printf("\n[%d] Score: %.4f | Collection: %s\n", i+1, h.result.Score, h.collection)
		out.Rule()
		out.Field("Title", metaValue(meta, "case_name", "title"))
		out.Field("Date", metaValue(meta, "date", "signing_date"))
		out.Field("Section", metaValue(meta, "section_label"))
		switch h.collection {
		case ingest.ScotusCollection:
			out.Field("Type", metaValue(meta, "opinion_type"))
			out.Field("Justice", metaValue(meta, "justice"))
		case ingest.EOCollection:
			out.Field("EO Number", metaValue(meta, "executive_order_number"))
			out.Field("President", metaValue(meta, "president"))
		}
		if opts.showText {
			out.Field("Text", textPreview(h.result.Document.Text, 500))
		}
	}

	return nil
}
